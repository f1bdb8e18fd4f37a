package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

const uploadColumns = `id, user_id, filename, readable_name, comment, status, records_count, created_at, status_changed_at`

// errNothingNew aborts a commit whose posts all exist already.
var errNothingNew = errors.New("no new posts")

// CommitUpload writes an upload batch atomically.
//
// Posts whose id already exists are skipped, together with their seeds,
// unless batch.Overwrite is set. Seed annotations identical to ones already
// on the post are not appended twice, so re-ingesting with overwrite is
// idempotent. If no post was inserted or updated the transaction is rolled
// back and no upload record remains.
func (s *Store) CommitUpload(ctx context.Context, batch storage.UploadBatch) (*storage.CommitResult, error) {
	if batch.Upload.UserID <= 0 {
		return nil, fmt.Errorf("%w: upload requires an owner", storage.ErrInvalidInput)
	}
	if len(batch.Posts) == 0 {
		return nil, fmt.Errorf("%w: upload has no posts", storage.ErrInvalidInput)
	}

	var result *storage.CommitResult
	err := s.inTx(ctx, "commit upload", func(tx *sql.Tx) error {
		res := &storage.CommitResult{}
		now := s.now()

		up := batch.Upload
		up.Status = types.UploadActive
		up.CreatedAt = now
		up.StatusChangedAt = &now
		inserted, err := tx.ExecContext(ctx, `
			INSERT INTO uploads (user_id, filename, readable_name, comment, status, records_count, created_at, status_changed_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		`, up.UserID, up.Filename, up.ReadableName, nullableString(up.Comment), string(up.Status), up.CreatedAt, nullableTime(up.StatusChangedAt))
		if err != nil {
			return fmt.Errorf("insert upload: %w", err)
		}
		uploadID, err := inserted.LastInsertId()
		if err != nil {
			return err
		}

		for i := range batch.Posts {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := batch.Posts[i]
			post := rec.Post
			post.UploadID = uploadID
			post.CreatedAt = now

			ins, upd, err := s.insertPost(ctx, tx, &post, up.UserID, batch.Overwrite)
			if err != nil {
				return err
			}
			switch {
			case ins:
				res.Inserted++
			case upd:
				res.Updated++
			default:
				res.Skipped++
				continue
			}

			if err := s.seedPost(ctx, tx, post.ID, rec); err != nil {
				return fmt.Errorf("seed post %q: %w", post.ID, err)
			}
		}

		if res.Inserted+res.Updated == 0 {
			result = res
			return errNothingNew
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE uploads SET records_count = ? WHERE id = ?",
			res.Inserted+res.Updated, uploadID,
		); err != nil {
			return fmt.Errorf("update records count: %w", err)
		}

		res.UploadID = &uploadID
		result = res
		return nil
	})
	if errors.Is(err, errNothingNew) {
		s.logger.Info("Upload contained no new posts",
			zap.Int64("user_id", batch.Upload.UserID),
			zap.Int("skipped", result.Skipped))
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Upload committed",
		zap.Int64("upload_id", *result.UploadID),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Store) seedPost(ctx context.Context, tx *sql.Tx, postID string, rec storage.PostRecord) error {
	for _, q := range rec.Questions {
		q.PostID = postID
		if err := types.ValidateAIQuestion(&q); err != nil {
			continue
		}
		if _, err := s.insertAIQuestion(ctx, tx, &q, true); err != nil {
			return err
		}
	}
	for _, c := range rec.Categories {
		c.PostID = postID
		if err := types.ValidateAICategory(&c); err != nil {
			continue
		}
		if _, err := s.insertAICategory(ctx, tx, &c, true); err != nil {
			return err
		}
	}
	for _, t := range rec.Tags {
		value := types.NormalizeTagValue(t.Value)
		if value == "" || !t.Level.IsValid() {
			continue
		}
		source := t.Source
		if !source.IsValid() {
			source = types.SourceImport
		}
		if err := s.assign(ctx, tx, postID, t.Level, value, source); err != nil {
			return err
		}
	}
	return nil
}

// ExistingPostIDs reports which of ids userID already holds.
func (s *Store) ExistingPostIDs(ctx context.Context, userID int64, ids []string) (map[string]bool, error) {
	const chunk = 500

	out := make(map[string]bool)
	err := s.run(ctx, "existing post ids", func() error {
		found := make(map[string]bool)
		for start := 0; start < len(ids); start += chunk {
			end := min(start+chunk, len(ids))
			part := ids[start:end]

			args := make([]any, 0, len(part)+1)
			args = append(args, userID)
			for _, id := range part {
				args = append(args, id)
			}
			rows, err := s.db.QueryContext(ctx, `
				SELECT p.id FROM posts p
				JOIN uploads u ON u.id = p.upload_id
				WHERE u.user_id = ? AND p.id IN (`+placeholders(len(part))+")", args...)
			if err != nil {
				return err
			}
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					rows.Close()
					return err
				}
				found[id] = true
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
		}
		out = found
		return nil
	})
	return out, err
}

func scanUpload(r rowScanner) (*types.Upload, error) {
	var u types.Upload
	var comment sql.NullString
	var status string
	var changed sql.NullTime
	err := r.Scan(&u.ID, &u.UserID, &u.Filename, &u.ReadableName, &comment, &status,
		&u.RecordsCount, &u.CreatedAt, &changed)
	if err != nil {
		return nil, err
	}
	u.Comment = comment.String
	u.Status = types.UploadStatus(status)
	if changed.Valid {
		t := changed.Time
		u.StatusChangedAt = &t
	}
	return &u, nil
}

func getUpload(ctx context.Context, q querier, id int64) (*types.Upload, error) {
	u, err := scanUpload(q.QueryRowContext(ctx, "SELECT "+uploadColumns+" FROM uploads WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: upload %d", storage.ErrNotFound, id)
	}
	return u, err
}

// GetUpload retrieves an upload by id.
func (s *Store) GetUpload(ctx context.Context, id int64) (*types.Upload, error) {
	var out *types.Upload
	err := s.run(ctx, "get upload", func() error {
		u, err := getUpload(ctx, s.db, id)
		out = u
		return err
	})
	return out, err
}

// ListUploads returns uploads matching filter, newest first.
func (s *Store) ListUploads(ctx context.Context, filter storage.UploadFilter) ([]types.Upload, error) {
	var where []string
	var args []any
	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := "SELECT " + uploadColumns + " FROM uploads"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	var out []types.Upload
	err := s.run(ctx, "list uploads", func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		list := []types.Upload{}
		for rows.Next() {
			u, err := scanUpload(rows)
			if err != nil {
				return fmt.Errorf("scan upload: %w", err)
			}
			list = append(list, *u)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		out = list
		return nil
	})
	return out, err
}

// ownedUpload loads an upload and checks that userID owns it.
func ownedUpload(ctx context.Context, q querier, id, userID int64) (*types.Upload, error) {
	u, err := getUpload(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if u.UserID != userID {
		return nil, fmt.Errorf("%w: upload %d belongs to another user", storage.ErrForbidden, id)
	}
	return u, nil
}

// SetUploadStatus moves an upload along its lifecycle.
func (s *Store) SetUploadStatus(ctx context.Context, id, userID int64, status types.UploadStatus) error {
	if !types.IsValidUploadStatus(status) {
		return fmt.Errorf("%w: unknown upload status %q", storage.ErrInvalidInput, status)
	}

	err := s.inTx(ctx, "set upload status", func(tx *sql.Tx) error {
		u, err := ownedUpload(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if !types.IsValidUploadTransition(u.Status, status) {
			return fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, u.Status, status)
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE uploads SET status = ?, status_changed_at = ? WHERE id = ?",
			string(status), s.now(), id)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("Upload status changed",
		zap.Int64("upload_id", id),
		zap.String("status", string(status)))
	return nil
}

// PurgeUpload permanently removes a deleted upload, its posts and every
// record attached to those posts. Tag registry values are kept.
func (s *Store) PurgeUpload(ctx context.Context, id, userID int64) (int, error) {
	var removed int
	err := s.inTx(ctx, "purge upload", func(tx *sql.Tx) error {
		u, err := ownedUpload(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if !types.CanPurge(u.Status) {
			return fmt.Errorf("%w: upload %d is %s, only deleted uploads can be purged",
				storage.ErrInvalidTransition, id, u.Status)
		}

		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM posts WHERE upload_id = ?", id,
		).Scan(&removed); err != nil {
			return err
		}

		children := []string{
			"ai_questions", "ai_categories", "user_questions", "user_topics",
			"tag_assignments", "inference_feedback",
		}
		for _, table := range children {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE post_id IN (SELECT id FROM posts WHERE upload_id = ?)", id,
			); err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM posts WHERE upload_id = ?", id); err != nil {
			return fmt.Errorf("purge posts: %w", err)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM uploads WHERE id = ?", id)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Upload purged", zap.Int64("upload_id", id), zap.Int("posts", removed))
	return removed, nil
}

// UploadStats summarizes userID's uploads.
func (s *Store) UploadStats(ctx context.Context, userID int64) (*storage.UploadStats, error) {
	uploads, err := s.ListUploads(ctx, storage.UploadFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	stats := &storage.UploadStats{ByStatus: map[types.UploadStatus]int{}}
	cutoff := s.now().Add(-storage.RecentUploadWindow)
	for _, u := range uploads {
		stats.TotalUploads++
		stats.TotalRecords += u.RecordsCount
		stats.ByStatus[u.Status]++
		if !u.CreatedAt.Before(cutoff) {
			stats.RecentUploads++
		}
	}
	return stats, nil
}
