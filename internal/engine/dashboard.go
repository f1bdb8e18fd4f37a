// Package engine holds the aggregation views and the Dashboard, the data
// access contract the UI layer talks to.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

// Session identifies the user a Dashboard acts for.
type Session struct {
	UserID int64
}

// Authenticated reports whether the session carries a user.
func (s Session) Authenticated() bool {
	return s.UserID > 0
}

// Dashboard is the UI-facing façade over the store, built per request.
//
// Read methods never fail: a store error is logged and turned into an empty
// result so the UI can render "no data". Write methods return an error so
// the UI can show a failure and let the user retry; they run through the
// shared WriteBreaker.
//
// Posts, and everything attached to them, are scoped to the session user's
// active uploads. An unauthenticated session sees nothing and cannot write.
type Dashboard struct {
	store   storage.Store
	session Session
	breaker *WriteBreaker
	logger  *zap.Logger
}

// NewDashboard creates a Dashboard for session. A nil breaker gets a private
// one with default settings; a nil logger discards output.
func NewDashboard(store storage.Store, session Session, breaker *WriteBreaker, logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if breaker == nil {
		breaker = defaultBreaker(logger)
	}
	return &Dashboard{
		store:   store,
		session: session,
		breaker: breaker,
		logger:  logger.With(zap.Int64("user_id", session.UserID)),
	}
}

// Session returns the session the dashboard acts for.
func (d *Dashboard) Session() Session {
	return d.session
}

func (d *Dashboard) filter() storage.PostFilter {
	return storage.PostFilter{UserID: d.session.UserID, Status: types.UploadActive}
}

// readFailed logs a read-path failure. Context cancellation is the caller
// going away, not a store problem, so it is logged at Debug.
func (d *Dashboard) readFailed(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		d.logger.Debug(msg, fields...)
		return
	}
	d.logger.Error(msg, fields...)
}

// write runs fn through the breaker after checking the session.
func (d *Dashboard) write(ctx context.Context, op string, fn func() error) error {
	if !d.session.Authenticated() {
		return fmt.Errorf("%s: %w: not signed in", op, storage.ErrForbidden)
	}
	if err := d.breaker.Do(ctx, fn); err != nil {
		d.logger.Warn("Write failed", zap.String("op", op), zap.Error(err))
		return err
	}
	return nil
}

// writePost runs fn as a write on postID, which must be visible to the session.
func (d *Dashboard) writePost(ctx context.Context, op, postID string, fn func() error) error {
	return d.write(ctx, op, func() error {
		if _, err := d.visiblePost(ctx, postID); err != nil {
			return err
		}
		return fn()
	})
}

// writeCard runs fn as a write on a user card whose post is found by lookup.
func (d *Dashboard) writeCard(ctx context.Context, op string, id int64, lookup func(context.Context, int64) (string, error), fn func() error) error {
	return d.write(ctx, op, func() error {
		postID, err := lookup(ctx, id)
		if err != nil {
			return err
		}
		if _, err := d.visiblePost(ctx, postID); err != nil {
			return err
		}
		return fn()
	})
}

// visiblePost loads postID, reporting ErrNotFound unless it belongs to one of
// the session user's active uploads.
func (d *Dashboard) visiblePost(ctx context.Context, postID string) (*types.Post, error) {
	post, err := d.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	upload, err := d.store.GetUpload(ctx, post.UploadID)
	if err != nil {
		return nil, err
	}
	if upload.UserID != d.session.UserID || upload.Status != types.UploadActive {
		return nil, fmt.Errorf("%w: post %q", storage.ErrNotFound, postID)
	}
	return post, nil
}

// ---------------------------------------------------------------------------
// Posts
// ---------------------------------------------------------------------------

// AllPosts returns the session's visible posts one row each, with the newest
// AI question per post.
func (d *Dashboard) AllPosts(ctx context.Context) []LegacyRow {
	if !d.session.Authenticated() {
		return []LegacyRow{}
	}
	posts, err := d.store.ListAnnotatedPosts(ctx, d.filter())
	if err != nil {
		d.readFailed("Failed to load posts", err)
		return []LegacyRow{}
	}
	return LegacyView(posts)
}

// DatatablePosts returns the flattened view: one row per title with every AI
// question and category folded in.
func (d *Dashboard) DatatablePosts(ctx context.Context) []DatatableRow {
	if !d.session.Authenticated() {
		return []DatatableRow{}
	}
	posts, err := d.store.ListAnnotatedPosts(ctx, d.filter())
	if err != nil {
		d.readFailed("Failed to load datatable posts", err)
		return []DatatableRow{}
	}
	return DatatableView(posts)
}

// AllPostsTable returns AllPosts or, when datatable is set, DatatablePosts as
// a column-ordered Table.
func (d *Dashboard) AllPostsTable(ctx context.Context, datatable bool) Table {
	if datatable {
		return DatatableTable(d.DatatablePosts(ctx))
	}
	return LegacyTable(d.AllPosts(ctx))
}

// PostsByForum returns the visible posts of one forum.
func (d *Dashboard) PostsByForum(ctx context.Context, forum string) []types.Post {
	f := d.filter()
	f.Forum = forum
	return d.listPosts(ctx, f, zap.String("forum", forum))
}

// PostsByCluster returns the visible posts of one cluster.
func (d *Dashboard) PostsByCluster(ctx context.Context, cluster int64) []types.Post {
	f := d.filter()
	f.Cluster = &cluster
	return d.listPosts(ctx, f, zap.Int64("cluster", cluster))
}

func (d *Dashboard) listPosts(ctx context.Context, f storage.PostFilter, fields ...zap.Field) []types.Post {
	if !d.session.Authenticated() {
		return []types.Post{}
	}
	posts, err := d.store.ListPosts(ctx, f)
	if err != nil {
		d.readFailed("Failed to list posts", err, fields...)
		return []types.Post{}
	}
	return posts
}

// PostsByTag returns the visible posts holding value at level.
func (d *Dashboard) PostsByTag(ctx context.Context, level types.Level, value string) []types.Post {
	if !d.session.Authenticated() || !level.IsValid() {
		return []types.Post{}
	}
	posts, err := d.store.ListPostsByTag(ctx, d.filter(), level, value)
	if err != nil {
		d.readFailed("Failed to list posts by tag", err,
			zap.String("level", string(level)), zap.String("value", value))
		return []types.Post{}
	}
	return posts
}

// Post returns one post if the session may see it, or nil.
func (d *Dashboard) Post(ctx context.Context, postID string) *types.Post {
	if !d.session.Authenticated() {
		return nil
	}
	post, err := d.visiblePost(ctx, postID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.readFailed("Failed to load post", err, zap.String("post_id", postID))
		}
		return nil
	}
	return post
}

// PostsSummary returns post counts over the session's visible posts.
func (d *Dashboard) PostsSummary(ctx context.Context) storage.PostsSummary {
	empty := storage.PostsSummary{ByForum: map[string]int{}, ByCluster: map[string]int{}}
	if !d.session.Authenticated() {
		return empty
	}
	summary, err := d.store.PostsSummary(ctx, d.filter())
	if err != nil {
		d.readFailed("Failed to summarize posts", err)
		return empty
	}
	return *summary
}

// ---------------------------------------------------------------------------
// Tags
// ---------------------------------------------------------------------------

// TagsForItem returns a post's tags with provenance. Every level is present,
// possibly empty.
func (d *Dashboard) TagsForItem(ctx context.Context, postID string) types.TagSet {
	if d.Post(ctx, postID) == nil {
		return types.EmptyTagSet()
	}
	set, err := d.store.TagsForPost(ctx, postID)
	if err != nil {
		d.readFailed("Failed to load tags", err, zap.String("post_id", postID))
		return types.EmptyTagSet()
	}
	return *set
}

// SaveTagsForItem replaces the post's tags at every level present in set.
// Values without their own source take source.
func (d *Dashboard) SaveTagsForItem(ctx context.Context, postID string, set types.TagSet, source types.Source) error {
	if source == "" {
		source = types.SourceUser
	}
	if !source.IsValid() {
		return fmt.Errorf("save tags: %w: unknown source %q", storage.ErrInvalidInput, source)
	}
	return d.writePost(ctx, "save tags", postID, func() error {
		return d.store.ReplaceTags(ctx, postID, set, source)
	})
}

// AvailableTags returns the tag vocabulary per level.
func (d *Dashboard) AvailableTags(ctx context.Context) types.AvailableTags {
	empty := types.AvailableTags{Groups: []string{}, Subgroups: []string{}, Tags: []string{}}
	if !d.session.Authenticated() {
		return empty
	}
	tags, err := d.store.AvailableTags(ctx)
	if err != nil {
		d.readFailed("Failed to load available tags", err)
		return empty
	}
	return *tags
}

// ---------------------------------------------------------------------------
// Annotations
// ---------------------------------------------------------------------------

func (d *Dashboard) AIQuestions(ctx context.Context, postID string) []types.AIQuestion {
	if d.Post(ctx, postID) == nil {
		return []types.AIQuestion{}
	}
	qs, err := d.store.ListAIQuestions(ctx, postID)
	if err != nil {
		d.readFailed("Failed to load AI questions", err, zap.String("post_id", postID))
		return []types.AIQuestion{}
	}
	return qs
}

func (d *Dashboard) AICategories(ctx context.Context, postID string) []types.AICategory {
	if d.Post(ctx, postID) == nil {
		return []types.AICategory{}
	}
	cs, err := d.store.ListAICategories(ctx, postID)
	if err != nil {
		d.readFailed("Failed to load AI categories", err, zap.String("post_id", postID))
		return []types.AICategory{}
	}
	return cs
}

func (d *Dashboard) UserQuestions(ctx context.Context, postID string) []types.UserQuestion {
	if d.Post(ctx, postID) == nil {
		return []types.UserQuestion{}
	}
	qs, err := d.store.ListUserQuestions(ctx, postID)
	if err != nil {
		d.readFailed("Failed to load user questions", err, zap.String("post_id", postID))
		return []types.UserQuestion{}
	}
	return qs
}

func (d *Dashboard) UserTopics(ctx context.Context, postID string) []types.UserTopic {
	if d.Post(ctx, postID) == nil {
		return []types.UserTopic{}
	}
	ts, err := d.store.ListUserTopics(ctx, postID)
	if err != nil {
		d.readFailed("Failed to load user topics", err, zap.String("post_id", postID))
		return []types.UserTopic{}
	}
	return ts
}

// SaveUserQuestion stores a new question card and returns its id.
func (d *Dashboard) SaveUserQuestion(ctx context.Context, postID string, in types.UserAnnotationInput) (int64, error) {
	var id int64
	err := d.writePost(ctx, "save user question", postID, func() (err error) {
		id, err = d.store.SaveUserQuestion(ctx, postID, in)
		return err
	})
	return id, err
}

func (d *Dashboard) UpdateUserQuestion(ctx context.Context, id int64, in types.UserAnnotationInput) error {
	return d.writeCard(ctx, "update user question", id, d.store.UserQuestionPost, func() error {
		return d.store.UpdateUserQuestion(ctx, id, in)
	})
}

func (d *Dashboard) DeleteUserQuestion(ctx context.Context, id int64) error {
	return d.writeCard(ctx, "delete user question", id, d.store.UserQuestionPost, func() error {
		return d.store.DeleteUserQuestion(ctx, id)
	})
}

// SaveUserTopic stores a new topic card and returns its id.
func (d *Dashboard) SaveUserTopic(ctx context.Context, postID string, in types.UserAnnotationInput) (int64, error) {
	var id int64
	err := d.writePost(ctx, "save user topic", postID, func() (err error) {
		id, err = d.store.SaveUserTopic(ctx, postID, in)
		return err
	})
	return id, err
}

func (d *Dashboard) UpdateUserTopic(ctx context.Context, id int64, in types.UserAnnotationInput) error {
	return d.writeCard(ctx, "update user topic", id, d.store.UserTopicPost, func() error {
		return d.store.UpdateUserTopic(ctx, id, in)
	})
}

func (d *Dashboard) DeleteUserTopic(ctx context.Context, id int64) error {
	return d.writeCard(ctx, "delete user topic", id, d.store.UserTopicPost, func() error {
		return d.store.DeleteUserTopic(ctx, id)
	})
}

// ---------------------------------------------------------------------------
// Feedback
// ---------------------------------------------------------------------------

// SaveInferenceFeedback upserts the session user's rating of an inference.
func (d *Dashboard) SaveInferenceFeedback(ctx context.Context, in types.FeedbackInput) (*types.FeedbackRecord, error) {
	uid := d.session.UserID
	in.UserID = &uid

	var rec *types.FeedbackRecord
	err := d.writePost(ctx, "save feedback", in.PostID, func() (err error) {
		rec, err = d.store.SaveFeedback(ctx, in)
		return err
	})
	return rec, err
}

// InferenceFeedback returns the current feedback for the pair, or nil.
func (d *Dashboard) InferenceFeedback(ctx context.Context, postID, inferenceType string) *types.FeedbackRecord {
	if d.Post(ctx, postID) == nil {
		return nil
	}
	rec, err := d.store.GetFeedback(ctx, postID, inferenceType)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.readFailed("Failed to load feedback", err,
				zap.String("post_id", postID), zap.String("inference_type", inferenceType))
		}
		return nil
	}
	return rec
}

// FeedbackForPost returns every feedback record of a post.
func (d *Dashboard) FeedbackForPost(ctx context.Context, postID string) []types.FeedbackRecord {
	if d.Post(ctx, postID) == nil {
		return []types.FeedbackRecord{}
	}
	recs, err := d.store.ListFeedback(ctx, postID)
	if err != nil {
		d.readFailed("Failed to list feedback", err, zap.String("post_id", postID))
		return []types.FeedbackRecord{}
	}
	return recs
}

func (d *Dashboard) DeleteInferenceFeedback(ctx context.Context, postID, inferenceType, responseID string) error {
	return d.writePost(ctx, "delete feedback", postID, func() error {
		return d.store.DeleteFeedback(ctx, postID, inferenceType, responseID)
	})
}

// ---------------------------------------------------------------------------
// Uploads and users
// ---------------------------------------------------------------------------

// Uploads lists the session user's uploads, optionally in one status.
func (d *Dashboard) Uploads(ctx context.Context, status types.UploadStatus) []types.Upload {
	if !d.session.Authenticated() {
		return []types.Upload{}
	}
	ups, err := d.store.ListUploads(ctx, storage.UploadFilter{UserID: d.session.UserID, Status: status})
	if err != nil {
		d.readFailed("Failed to list uploads", err, zap.String("status", string(status)))
		return []types.Upload{}
	}
	return ups
}

// UploadStats summarizes the session user's uploads.
func (d *Dashboard) UploadStats(ctx context.Context) storage.UploadStats {
	empty := storage.UploadStats{ByStatus: map[types.UploadStatus]int{}}
	if !d.session.Authenticated() {
		return empty
	}
	stats, err := d.store.UploadStats(ctx, d.session.UserID)
	if err != nil {
		d.readFailed("Failed to compute upload stats", err)
		return empty
	}
	return *stats
}

// SetUploadStatus moves one of the session user's uploads along its lifecycle.
func (d *Dashboard) SetUploadStatus(ctx context.Context, uploadID int64, status types.UploadStatus) error {
	return d.write(ctx, "set upload status", func() error {
		return d.store.SetUploadStatus(ctx, uploadID, d.session.UserID, status)
	})
}

// PurgeUpload permanently removes a deleted upload and returns how many posts
// went with it.
func (d *Dashboard) PurgeUpload(ctx context.Context, uploadID int64) (int, error) {
	var n int
	err := d.write(ctx, "purge upload", func() (err error) {
		n, err = d.store.PurgeUpload(ctx, uploadID, d.session.UserID)
		return err
	})
	if err == nil {
		d.logger.Info("Upload purged", zap.Int64("upload_id", uploadID), zap.Int("posts", n))
	}
	return n, err
}

// AllUsers lists every dashboard account to a signed-in session.
func (d *Dashboard) AllUsers(ctx context.Context) []types.User {
	if !d.session.Authenticated() {
		return []types.User{}
	}
	users, err := d.store.ListUsers(ctx)
	if err != nil {
		d.readFailed("Failed to list users", err)
		return []types.User{}
	}
	return users
}
