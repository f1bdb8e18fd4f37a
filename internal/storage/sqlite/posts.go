package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

const postColumns = `p.id, p.forum, p.post_type, p.username, p.original_title, p.original_post,
	p.post_url, p.date_posted, p.cluster, p.cluster_label, p.llm_cluster_name,
	p.umap_1, p.umap_2, p.umap_3, p.upload_id, p.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(r rowScanner) (types.Post, error) {
	var p types.Post
	var postType, username, url, date, clusterLabel, llmClusterName sql.NullString
	var cluster sql.NullInt64
	var umap1, umap2, umap3 sql.NullFloat64
	err := r.Scan(&p.ID, &p.Forum, &postType, &username, &p.OriginalTitle, &p.OriginalPost,
		&url, &date, &cluster, &clusterLabel, &llmClusterName,
		&umap1, &umap2, &umap3, &p.UploadID, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.PostType = postType.String
	p.Username = username.String
	p.PostURL = url.String
	p.DatePosted = date.String
	p.Cluster = intPtr(cluster)
	p.ClusterLabel = clusterLabel.String
	p.LLMClusterName = llmClusterName.String
	p.UMAP1 = floatPtr(umap1)
	p.UMAP2 = floatPtr(umap2)
	p.UMAP3 = floatPtr(umap3)
	return p, nil
}

// visibility builds the JOIN and WHERE clause restricting posts to filter.
// Posts are aliased p and their uploads u.
func visibility(filter storage.PostFilter) (string, []any) {
	filter.Normalize()

	where := []string{"u.status = ?"}
	args := []any{string(filter.Status)}
	if !filter.AllUsers {
		where = append(where, "u.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Forum != "" {
		where = append(where, "p.forum = ?")
		args = append(args, filter.Forum)
	}
	if filter.Cluster != nil {
		where = append(where, "p.cluster = ?")
		args = append(args, *filter.Cluster)
	}
	return " JOIN uploads u ON u.id = p.upload_id WHERE " + strings.Join(where, " AND "), args
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]types.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []types.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListPosts returns the posts visible under filter, newest date_posted first.
func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter) ([]types.Post, error) {
	clause, args := visibility(filter)
	query := "SELECT " + postColumns + " FROM posts p" + clause + " ORDER BY p.date_posted DESC, p.id"

	var out []types.Post
	err := s.run(ctx, "list posts", func() error {
		posts, err := s.queryPosts(ctx, query, args...)
		out = posts
		return err
	})
	return out, err
}

// ListPostsByTag returns the visible posts carrying value at level.
func (s *Store) ListPostsByTag(ctx context.Context, filter storage.PostFilter, level types.Level, value string) ([]types.Post, error) {
	if !level.IsValid() {
		return nil, fmt.Errorf("%w: unknown tag level %q", storage.ErrInvalidInput, level)
	}
	clause, args := visibility(filter)
	query := "SELECT " + postColumns + " FROM posts p" + clause + `
		AND p.id IN (
			SELECT a.post_id FROM tag_assignments a
			JOIN tag_registry r ON r.id = a.tag_id
			WHERE r.level = ? AND r.value_key = ?
		)
		ORDER BY p.date_posted DESC, p.id`
	args = append(args, string(level), types.TagKey(value))

	var out []types.Post
	err := s.run(ctx, "list posts by tag", func() error {
		posts, err := s.queryPosts(ctx, query, args...)
		out = posts
		return err
	})
	return out, err
}

// GetPost retrieves a post by id regardless of upload status.
func (s *Store) GetPost(ctx context.Context, id string) (*types.Post, error) {
	var out *types.Post
	err := s.run(ctx, "get post", func() error {
		row := s.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts p WHERE p.id = ?", id)
		p, err := scanPost(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: post %q", storage.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		out = &p
		return nil
	})
	return out, err
}

// ListAnnotatedPosts loads the visible posts and their AI children in three
// queries and stitches them together in memory.
func (s *Store) ListAnnotatedPosts(ctx context.Context, filter storage.PostFilter) ([]storage.AnnotatedPost, error) {
	clause, args := visibility(filter)

	var out []storage.AnnotatedPost
	err := s.run(ctx, "list annotated posts", func() error {
		posts, err := s.queryPosts(ctx, "SELECT "+postColumns+" FROM posts p"+clause+" ORDER BY p.id", args...)
		if err != nil {
			return err
		}

		result := make([]storage.AnnotatedPost, len(posts))
		index := make(map[string]int, len(posts))
		for i, p := range posts {
			result[i] = storage.AnnotatedPost{Post: p}
			index[p.ID] = i
		}

		questions, err := queryAIQuestions(ctx, s.db,
			"SELECT "+aiQuestionColumns+" FROM ai_questions q JOIN posts p ON p.id = q.post_id"+clause+
				" ORDER BY q.created_at, q.id", args...)
		if err != nil {
			return err
		}
		for _, q := range questions {
			if i, ok := index[q.PostID]; ok {
				result[i].AIQuestions = append(result[i].AIQuestions, q)
			}
		}

		categories, err := queryAICategories(ctx, s.db,
			"SELECT "+aiCategoryColumns+" FROM ai_categories c JOIN posts p ON p.id = c.post_id"+clause+
				" ORDER BY c.created_at, c.id", args...)
		if err != nil {
			return err
		}
		for _, c := range categories {
			if i, ok := index[c.PostID]; ok {
				result[i].AICategories = append(result[i].AICategories, c)
			}
		}

		out = result
		return nil
	})
	return out, err
}

// PostsSummary counts visible posts in total, per forum and per cluster.
// Posts without a cluster are not counted in ByCluster.
func (s *Store) PostsSummary(ctx context.Context, filter storage.PostFilter) (*storage.PostsSummary, error) {
	clause, args := visibility(filter)

	var out *storage.PostsSummary
	err := s.run(ctx, "posts summary", func() error {
		summary := &storage.PostsSummary{ByForum: map[string]int{}, ByCluster: map[string]int{}}

		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts p"+clause, args...).Scan(&summary.TotalPosts); err != nil {
			return err
		}

		rows, err := s.db.QueryContext(ctx, "SELECT p.forum, COUNT(*) FROM posts p"+clause+" GROUP BY p.forum", args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var forum string
			var n int
			if err := rows.Scan(&forum, &n); err != nil {
				rows.Close()
				return err
			}
			summary.ByForum[forum] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = s.db.QueryContext(ctx,
			"SELECT p.cluster, COUNT(*) FROM posts p"+clause+" AND p.cluster IS NOT NULL GROUP BY p.cluster", args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var cluster int64
			var n int
			if err := rows.Scan(&cluster, &n); err != nil {
				return err
			}
			summary.ByCluster[strconv.FormatInt(cluster, 10)] = n
		}
		if err := rows.Err(); err != nil {
			return err
		}

		out = summary
		return nil
	})
	return out, err
}

// insertPost writes one post owned by owner. With overwrite the row is
// updated in place when owner already holds the id; otherwise an existing
// id is left alone. An id held by another user is a conflict and is never
// skipped or reassigned. Returns whether the row was inserted, updated, or
// neither.
func (s *Store) insertPost(ctx context.Context, q querier, p *types.Post, owner int64, overwrite bool) (inserted, updated bool, err error) {
	var prevUpload, prevOwner int64
	err = q.QueryRowContext(ctx, `
		SELECT p.upload_id, u.user_id FROM posts p
		JOIN uploads u ON u.id = p.upload_id
		WHERE p.id = ?
	`, p.ID).Scan(&prevUpload, &prevOwner)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, false, fmt.Errorf("look up post %q: %w", p.ID, err)
	}
	if exists && prevOwner != owner {
		return false, false, fmt.Errorf("%w: post %q belongs to another user", storage.ErrConflict, p.ID)
	}
	if exists && !overwrite {
		return false, false, nil
	}

	args := []any{
		p.ID, p.Forum, nullableString(p.PostType), nullableString(p.Username),
		p.OriginalTitle, p.OriginalPost, nullableString(p.PostURL), nullableString(p.DatePosted),
		nullableInt(p.Cluster), nullableString(p.ClusterLabel), nullableString(p.LLMClusterName),
		nullableFloat(p.UMAP1), nullableFloat(p.UMAP2), nullableFloat(p.UMAP3),
		p.UploadID, p.CreatedAt,
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO posts (
			id, forum, post_type, username, original_title, original_post,
			post_url, date_posted, cluster, cluster_label, llm_cluster_name,
			umap_1, umap_2, umap_3, upload_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			forum = excluded.forum,
			post_type = excluded.post_type,
			username = excluded.username,
			original_title = excluded.original_title,
			original_post = excluded.original_post,
			post_url = excluded.post_url,
			date_posted = excluded.date_posted,
			cluster = excluded.cluster,
			cluster_label = excluded.cluster_label,
			llm_cluster_name = excluded.llm_cluster_name,
			umap_1 = excluded.umap_1,
			umap_2 = excluded.umap_2,
			umap_3 = excluded.umap_3,
			upload_id = excluded.upload_id
	`, args...)
	if err != nil {
		return false, false, fmt.Errorf("insert post %q: %w", p.ID, err)
	}
	if exists && prevUpload != p.UploadID {
		if _, err := q.ExecContext(ctx,
			"UPDATE uploads SET records_count = MAX(records_count - 1, 0) WHERE id = ?", prevUpload,
		); err != nil {
			return false, false, fmt.Errorf("update records count: %w", err)
		}
	}
	return !exists, exists, nil
}
