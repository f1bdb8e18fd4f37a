package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

const feedbackSelect = `
	SELECT f.response_id, f.post_id, f.inference_type, f.rating, f.feedback_text, f.user_id,
		f.created_at, f.updated_at, u.first_name, u.last_name, u.email
	FROM inference_feedback f
	LEFT JOIN users u ON u.id = f.user_id`

// Upsert that replaces the rating.
const upsertFeedbackRated = `
	INSERT INTO inference_feedback (response_id, post_id, inference_type, rating, feedback_text, user_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (post_id, inference_type, response_id) DO UPDATE SET
		rating = excluded.rating,
		feedback_text = excluded.feedback_text,
		user_id = COALESCE(excluded.user_id, inference_feedback.user_id),
		updated_at = excluded.updated_at`

// Upsert that keeps the stored rating and replaces only the text.
const upsertFeedbackText = `
	INSERT INTO inference_feedback (response_id, post_id, inference_type, rating, feedback_text, user_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (post_id, inference_type, response_id) DO UPDATE SET
		feedback_text = excluded.feedback_text,
		user_id = COALESCE(excluded.user_id, inference_feedback.user_id),
		updated_at = excluded.updated_at`

// SaveFeedback upserts one feedback record.
//
// A RatingTextUpdate submission only replaces the feedback text of an
// existing record; when the record is new it is stored without a rating.
func (s *Store) SaveFeedback(ctx context.Context, in types.FeedbackInput) (*types.FeedbackRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := upsertFeedbackRated
	rating := nullableString(string(in.Rating))
	if in.Rating == types.RatingTextUpdate {
		query = upsertFeedbackText
		rating = sql.NullString{}
	}

	var out *types.FeedbackRecord
	err := s.inTx(ctx, "save feedback", func(tx *sql.Tx) error {
		if err := requirePost(ctx, tx, in.PostID); err != nil {
			return err
		}
		now := s.now()
		_, err := tx.ExecContext(ctx, query,
			in.ResponseID, in.PostID, in.InferenceType, rating, nullableString(in.FeedbackText),
			nullableInt(in.UserID), now, now)
		if err != nil {
			return err
		}

		rec, err := scanFeedback(tx.QueryRowContext(ctx,
			feedbackSelect+" WHERE f.post_id = ? AND f.inference_type = ? AND f.response_id = ?",
			in.PostID, in.InferenceType, in.ResponseID))
		if err != nil {
			return fmt.Errorf("read back feedback: %w", err)
		}
		out = rec
		return nil
	})
	return out, err
}

// GetFeedback returns the most recently updated record for the pair.
// Ties on updated_at go to the later insert.
func (s *Store) GetFeedback(ctx context.Context, postID, inferenceType string) (*types.FeedbackRecord, error) {
	var out *types.FeedbackRecord
	err := s.run(ctx, "get feedback", func() error {
		rec, err := scanFeedback(s.db.QueryRowContext(ctx,
			feedbackSelect+" WHERE f.post_id = ? AND f.inference_type = ? ORDER BY f.updated_at DESC, f.id DESC LIMIT 1",
			postID, inferenceType))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: no feedback for %s/%s", storage.ErrNotFound, postID, inferenceType)
		}
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// ListFeedback returns every record for a post, most recently updated first.
func (s *Store) ListFeedback(ctx context.Context, postID string) ([]types.FeedbackRecord, error) {
	var out []types.FeedbackRecord
	err := s.run(ctx, "list feedback", func() error {
		rows, err := s.db.QueryContext(ctx,
			feedbackSelect+" WHERE f.post_id = ? ORDER BY f.updated_at DESC, f.id DESC", postID)
		if err != nil {
			return err
		}
		defer rows.Close()

		list := []types.FeedbackRecord{}
		for rows.Next() {
			rec, err := scanFeedback(rows)
			if err != nil {
				return fmt.Errorf("scan feedback: %w", err)
			}
			list = append(list, *rec)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		out = list
		return nil
	})
	return out, err
}

// DeleteFeedback removes one record.
func (s *Store) DeleteFeedback(ctx context.Context, postID, inferenceType, responseID string) error {
	return s.run(ctx, "delete feedback", func() error {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM inference_feedback WHERE post_id = ? AND inference_type = ? AND response_id = ?",
			postID, inferenceType, responseID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: feedback %s", storage.ErrNotFound, responseID)
		}
		return nil
	})
}

func scanFeedback(r rowScanner) (*types.FeedbackRecord, error) {
	var rec types.FeedbackRecord
	var rating, text, first, last, email sql.NullString
	var userID sql.NullInt64
	err := r.Scan(&rec.ResponseID, &rec.PostID, &rec.InferenceType, &rating, &text, &userID,
		&rec.CreatedAt, &rec.UpdatedAt, &first, &last, &email)
	if err != nil {
		return nil, err
	}
	rec.Rating = types.Rating(rating.String)
	rec.FeedbackText = text.String
	rec.UserID = intPtr(userID)
	rec.UserFirstName = first.String
	rec.UserLastName = last.String
	rec.UserEmail = email.String
	return &rec, nil
}
