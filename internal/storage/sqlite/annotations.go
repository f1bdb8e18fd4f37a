package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

const (
	aiQuestionColumns = `q.id, q.post_id, q.question_text, q.confidence_score, q.model_version, q.created_at, q.updated_at`
	aiCategoryColumns = `c.id, c.post_id, c.category_type, c.category_value, c.confidence_score, c.model_version, c.created_at, c.updated_at`
)

// AddAIQuestion appends an AI question to a post.
func (s *Store) AddAIQuestion(ctx context.Context, q *types.AIQuestion) (int64, error) {
	if q == nil || q.PostID == "" {
		return 0, fmt.Errorf("%w: post id is required", storage.ErrInvalidInput)
	}
	if err := types.ValidateAIQuestion(q); err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	err := s.inTx(ctx, "add ai question", func(tx *sql.Tx) error {
		if err := requirePost(ctx, tx, q.PostID); err != nil {
			return err
		}
		_, err := s.insertAIQuestion(ctx, tx, q, false)
		return err
	})
	return q.ID, err
}

// insertAIQuestion appends q. With skipDuplicate an identical question
// (same text and model version) already on the post is not appended again.
func (s *Store) insertAIQuestion(ctx context.Context, q querier, aq *types.AIQuestion, skipDuplicate bool) (bool, error) {
	now := s.now()
	if aq.CreatedAt.IsZero() {
		aq.CreatedAt = now
	}
	// Stored as text and ordered by it, so every row must share one zone.
	aq.CreatedAt = aq.CreatedAt.UTC()
	aq.UpdatedAt = aq.CreatedAt

	if skipDuplicate {
		var one int
		err := q.QueryRowContext(ctx, `
			SELECT 1 FROM ai_questions
			WHERE post_id = ? AND question_text = ? AND COALESCE(model_version, '') = ?
			LIMIT 1
		`, aq.PostID, aq.Text, aq.ModelVersion).Scan(&one)
		if err == nil {
			return false, nil
		}
		if err != sql.ErrNoRows {
			return false, err
		}
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO ai_questions (post_id, question_text, confidence_score, model_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, aq.PostID, aq.Text, nullableFloat(aq.ConfidenceScore), nullableString(aq.ModelVersion), aq.CreatedAt, aq.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert ai question: %w", err)
	}
	aq.ID, err = res.LastInsertId()
	return true, err
}

// ListAIQuestions returns a post's AI questions, oldest first.
func (s *Store) ListAIQuestions(ctx context.Context, postID string) ([]types.AIQuestion, error) {
	var out []types.AIQuestion
	err := s.run(ctx, "list ai questions", func() error {
		qs, err := queryAIQuestions(ctx, s.db,
			"SELECT "+aiQuestionColumns+" FROM ai_questions q WHERE q.post_id = ? ORDER BY q.created_at, q.id", postID)
		out = qs
		return err
	})
	return out, err
}

func queryAIQuestions(ctx context.Context, q querier, query string, args ...any) ([]types.AIQuestion, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.AIQuestion{}
	for rows.Next() {
		var aq types.AIQuestion
		var score sql.NullFloat64
		var model sql.NullString
		if err := rows.Scan(&aq.ID, &aq.PostID, &aq.Text, &score, &model, &aq.CreatedAt, &aq.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ai question: %w", err)
		}
		aq.ConfidenceScore = floatPtr(score)
		aq.ModelVersion = model.String
		out = append(out, aq)
	}
	return out, rows.Err()
}

// AddAICategory appends an AI category to a post.
func (s *Store) AddAICategory(ctx context.Context, c *types.AICategory) (int64, error) {
	if c == nil || c.PostID == "" {
		return 0, fmt.Errorf("%w: post id is required", storage.ErrInvalidInput)
	}
	if err := types.ValidateAICategory(c); err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	err := s.inTx(ctx, "add ai category", func(tx *sql.Tx) error {
		if err := requirePost(ctx, tx, c.PostID); err != nil {
			return err
		}
		_, err := s.insertAICategory(ctx, tx, c, false)
		return err
	})
	return c.ID, err
}

func (s *Store) insertAICategory(ctx context.Context, q querier, c *types.AICategory, skipDuplicate bool) (bool, error) {
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	// Stored as text and ordered by it, so every row must share one zone.
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.CreatedAt

	if skipDuplicate {
		var one int
		err := q.QueryRowContext(ctx, `
			SELECT 1 FROM ai_categories
			WHERE post_id = ? AND category_type = ? AND category_value = ? AND COALESCE(model_version, '') = ?
			LIMIT 1
		`, c.PostID, c.CategoryType, c.CategoryValue, c.ModelVersion).Scan(&one)
		if err == nil {
			return false, nil
		}
		if err != sql.ErrNoRows {
			return false, err
		}
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO ai_categories (post_id, category_type, category_value, confidence_score, model_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.PostID, c.CategoryType, c.CategoryValue, nullableFloat(c.ConfidenceScore), nullableString(c.ModelVersion), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert ai category: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return true, err
}

// ListAICategories returns a post's AI categories, oldest first.
func (s *Store) ListAICategories(ctx context.Context, postID string) ([]types.AICategory, error) {
	var out []types.AICategory
	err := s.run(ctx, "list ai categories", func() error {
		cs, err := queryAICategories(ctx, s.db,
			"SELECT "+aiCategoryColumns+" FROM ai_categories c WHERE c.post_id = ? ORDER BY c.created_at, c.id", postID)
		out = cs
		return err
	})
	return out, err
}

func queryAICategories(ctx context.Context, q querier, query string, args ...any) ([]types.AICategory, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.AICategory{}
	for rows.Next() {
		var c types.AICategory
		var score sql.NullFloat64
		var model sql.NullString
		if err := rows.Scan(&c.ID, &c.PostID, &c.CategoryType, &c.CategoryValue, &score, &model, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ai category: %w", err)
		}
		c.ConfidenceScore = floatPtr(score)
		c.ModelVersion = model.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// userStream names the table and text column of a user-authored annotation stream.
type userStream struct {
	table   string
	textCol string
	noun    string
}

var (
	questionStream = userStream{table: "user_questions", textCol: "question_text", noun: "user question"}
	topicStream    = userStream{table: "user_topics", textCol: "topic_text", noun: "user topic"}
)

// userRow is the shape shared by user questions and user topics.
type userRow struct {
	ID        int64
	PostID    string
	Text      string
	Notes     string
	CreatedAt sql.NullTime
	UpdatedAt sql.NullTime
}

func (s *Store) saveUser(ctx context.Context, st userStream, postID string, in types.UserAnnotationInput) (int64, error) {
	if postID == "" {
		return 0, fmt.Errorf("%w: post id is required", storage.ErrInvalidInput)
	}
	if err := in.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	var id int64
	err := s.inTx(ctx, "save "+st.noun, func(tx *sql.Tx) error {
		if err := requirePost(ctx, tx, postID); err != nil {
			return err
		}
		now := s.now()
		res, err := tx.ExecContext(ctx,
			"INSERT INTO "+st.table+" (post_id, "+st.textCol+", notes_text, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			postID, in.Text, in.Notes, now, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *Store) listUser(ctx context.Context, st userStream, postID string) ([]userRow, error) {
	var out []userRow
	err := s.run(ctx, "list "+st.noun+"s", func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, post_id, "+st.textCol+", notes_text, created_at, updated_at FROM "+st.table+
				" WHERE post_id = ? ORDER BY created_at, id", postID)
		if err != nil {
			return err
		}
		defer rows.Close()

		list := []userRow{}
		for rows.Next() {
			var r userRow
			if err := rows.Scan(&r.ID, &r.PostID, &r.Text, &r.Notes, &r.CreatedAt, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan %s: %w", st.noun, err)
			}
			list = append(list, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		out = list
		return nil
	})
	return out, err
}

func (s *Store) updateUser(ctx context.Context, st userStream, id int64, in types.UserAnnotationInput) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return s.run(ctx, "update "+st.noun, func() error {
		res, err := s.db.ExecContext(ctx,
			"UPDATE "+st.table+" SET "+st.textCol+" = ?, notes_text = ?, updated_at = ? WHERE id = ?",
			in.Text, in.Notes, s.now(), id)
		if err != nil {
			return err
		}
		return expectOneRow(res, st.noun, id)
	})
}

func (s *Store) deleteUser(ctx context.Context, st userStream, id int64) error {
	return s.run(ctx, "delete "+st.noun, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+st.table+" WHERE id = ?", id)
		if err != nil {
			return err
		}
		return expectOneRow(res, st.noun, id)
	})
}

func (s *Store) userPost(ctx context.Context, st userStream, id int64) (string, error) {
	var postID string
	err := s.run(ctx, "find "+st.noun, func() error {
		err := s.db.QueryRowContext(ctx, "SELECT post_id FROM "+st.table+" WHERE id = ?", id).Scan(&postID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %d", storage.ErrNotFound, st.noun, id)
		}
		return err
	})
	return postID, err
}

func expectOneRow(res sql.Result, noun string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", storage.ErrNotFound, noun, id)
	}
	return nil
}

// SaveUserQuestion creates a new user question on a post.
func (s *Store) SaveUserQuestion(ctx context.Context, postID string, in types.UserAnnotationInput) (int64, error) {
	return s.saveUser(ctx, questionStream, postID, in)
}

// ListUserQuestions returns a post's user questions, oldest first.
func (s *Store) ListUserQuestions(ctx context.Context, postID string) ([]types.UserQuestion, error) {
	rows, err := s.listUser(ctx, questionStream, postID)
	if err != nil {
		return nil, err
	}
	out := make([]types.UserQuestion, len(rows))
	for i, r := range rows {
		out[i] = types.UserQuestion{
			ID: r.ID, PostID: r.PostID, Text: r.Text, Notes: r.Notes,
			CreatedAt: r.CreatedAt.Time, UpdatedAt: r.UpdatedAt.Time,
		}
	}
	return out, nil
}

// UpdateUserQuestion rewrites a user question's text and notes.
func (s *Store) UpdateUserQuestion(ctx context.Context, id int64, in types.UserAnnotationInput) error {
	return s.updateUser(ctx, questionStream, id, in)
}

// UserQuestionPost returns the id of the post a user question belongs to.
func (s *Store) UserQuestionPost(ctx context.Context, id int64) (string, error) {
	return s.userPost(ctx, questionStream, id)
}

// DeleteUserQuestion removes a user question.
func (s *Store) DeleteUserQuestion(ctx context.Context, id int64) error {
	return s.deleteUser(ctx, questionStream, id)
}

// SaveUserTopic creates a new user topic on a post.
func (s *Store) SaveUserTopic(ctx context.Context, postID string, in types.UserAnnotationInput) (int64, error) {
	return s.saveUser(ctx, topicStream, postID, in)
}

// ListUserTopics returns a post's user topics, oldest first.
func (s *Store) ListUserTopics(ctx context.Context, postID string) ([]types.UserTopic, error) {
	rows, err := s.listUser(ctx, topicStream, postID)
	if err != nil {
		return nil, err
	}
	out := make([]types.UserTopic, len(rows))
	for i, r := range rows {
		out[i] = types.UserTopic{
			ID: r.ID, PostID: r.PostID, Text: r.Text, Notes: r.Notes,
			CreatedAt: r.CreatedAt.Time, UpdatedAt: r.UpdatedAt.Time,
		}
	}
	return out, nil
}

// UpdateUserTopic rewrites a user topic's text and notes.
func (s *Store) UpdateUserTopic(ctx context.Context, id int64, in types.UserAnnotationInput) error {
	return s.updateUser(ctx, topicStream, id, in)
}

// UserTopicPost returns the id of the post a user topic belongs to.
func (s *Store) UserTopicPost(ctx context.Context, id int64) (string, error) {
	return s.userPost(ctx, topicStream, id)
}

// DeleteUserTopic removes a user topic.
func (s *Store) DeleteUserTopic(ctx context.Context, id int64) error {
	return s.deleteUser(ctx, topicStream, id)
}
