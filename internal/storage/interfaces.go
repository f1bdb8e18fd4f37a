// Package storage provides composable storage interfaces for the forumlens
// annotation store.
//
// The store is split into small contracts, one per record family, that a
// backend implements together. Callers depend on the narrowest contract they
// need; the engine and ingestion packages depend on the composite Store.
package storage

import (
	"context"

	"github.com/scrypster/forumlens/pkg/types"
)

// PostStore reads ingested posts. Posts are only written by CommitUpload.
type PostStore interface {
	// ListPosts returns the posts visible under filter, newest date_posted first.
	ListPosts(ctx context.Context, filter PostFilter) ([]types.Post, error)

	// GetPost retrieves a post by id. Returns ErrNotFound if absent.
	GetPost(ctx context.Context, id string) (*types.Post, error)

	// ListAnnotatedPosts returns the posts visible under filter together with
	// their AI questions and AI categories, children ordered oldest first.
	ListAnnotatedPosts(ctx context.Context, filter PostFilter) ([]AnnotatedPost, error)

	// PostsSummary returns count-style aggregates over the posts visible under filter.
	PostsSummary(ctx context.Context, filter PostFilter) (*PostsSummary, error)

	// ListPostsByTag returns the posts visible under filter that hold an
	// assignment of value at level. Values are compared by types.TagKey.
	ListPostsByTag(ctx context.Context, filter PostFilter, level types.Level, value string) ([]types.Post, error)
}

// TagStore manages the tag vocabulary and per-post tag assignments.
type TagStore interface {
	// InternValue inserts value at level if absent and returns its registry id.
	// Values are compared by types.TagKey.
	InternValue(ctx context.Context, level types.Level, value string) (int64, error)

	// AvailableTags returns the distinct registry values per level.
	AvailableTags(ctx context.Context) (*types.AvailableTags, error)

	// TagsForPost returns a post's assignments grouped by level.
	// A post without assignments yields an empty set, not an error.
	TagsForPost(ctx context.Context, postID string) (*types.TagSet, error)

	// ReplaceTags replaces, per level present in set, every assignment of the
	// post at that level. Entries without a source take the given default.
	ReplaceTags(ctx context.Context, postID string, set types.TagSet, source types.Source) error
}

// AnnotationStore manages the AI and user annotation streams attached to posts.
// Every List method orders by creation time ascending, ties broken by id, and
// returns an empty slice for unknown posts.
type AnnotationStore interface {
	AddAIQuestion(ctx context.Context, q *types.AIQuestion) (int64, error)
	ListAIQuestions(ctx context.Context, postID string) ([]types.AIQuestion, error)

	AddAICategory(ctx context.Context, c *types.AICategory) (int64, error)
	ListAICategories(ctx context.Context, postID string) ([]types.AICategory, error)

	// SaveUserQuestion always creates a new row and returns its id.
	SaveUserQuestion(ctx context.Context, postID string, in types.UserAnnotationInput) (int64, error)
	ListUserQuestions(ctx context.Context, postID string) ([]types.UserQuestion, error)
	// UpdateUserQuestion returns ErrNotFound if id does not exist.
	UpdateUserQuestion(ctx context.Context, id int64, in types.UserAnnotationInput) error
	// DeleteUserQuestion hard-deletes; returns ErrNotFound if id does not exist.
	DeleteUserQuestion(ctx context.Context, id int64) error
	// UserQuestionPost returns the post id a user question is attached to,
	// or ErrNotFound.
	UserQuestionPost(ctx context.Context, id int64) (string, error)

	SaveUserTopic(ctx context.Context, postID string, in types.UserAnnotationInput) (int64, error)
	ListUserTopics(ctx context.Context, postID string) ([]types.UserTopic, error)
	UpdateUserTopic(ctx context.Context, id int64, in types.UserAnnotationInput) error
	DeleteUserTopic(ctx context.Context, id int64) error
	UserTopicPost(ctx context.Context, id int64) (string, error)
}

// FeedbackStore records ratings on inferences.
type FeedbackStore interface {
	// SaveFeedback upserts on (post_id, inference_type, response_id) and
	// returns the stored record.
	SaveFeedback(ctx context.Context, in types.FeedbackInput) (*types.FeedbackRecord, error)

	// GetFeedback returns the most recently updated record for the pair,
	// regardless of response id. Returns ErrNotFound when there is none.
	GetFeedback(ctx context.Context, postID, inferenceType string) (*types.FeedbackRecord, error)

	// ListFeedback returns every record for a post.
	ListFeedback(ctx context.Context, postID string) ([]types.FeedbackRecord, error)

	// DeleteFeedback removes one record. Returns ErrNotFound if absent.
	DeleteFeedback(ctx context.Context, postID, inferenceType, responseID string) error
}

// UploadStore persists upload batches and manages their lifecycle.
type UploadStore interface {
	// CommitUpload creates the upload record and inserts its posts, seed
	// annotations and seed tags in one transaction. When no post is new the
	// transaction is rolled back and CommitResult.UploadID is nil.
	CommitUpload(ctx context.Context, batch UploadBatch) (*CommitResult, error)

	// ExistingPostIDs reports which of ids userID already holds.
	ExistingPostIDs(ctx context.Context, userID int64, ids []string) (map[string]bool, error)

	GetUpload(ctx context.Context, id int64) (*types.Upload, error)
	ListUploads(ctx context.Context, filter UploadFilter) ([]types.Upload, error)

	// SetUploadStatus moves an upload owned by userID along the lifecycle.
	// Returns ErrForbidden for another user's upload and ErrInvalidTransition
	// for a move the state machine does not allow.
	SetUploadStatus(ctx context.Context, id, userID int64, status types.UploadStatus) error

	// PurgeUpload permanently removes a deleted upload and everything
	// attached to its posts. Returns the number of posts removed.
	PurgeUpload(ctx context.Context, id, userID int64) (int, error)

	UploadStats(ctx context.Context, userID int64) (*UploadStats, error)
}

// UserStore exposes dashboard accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *types.User) (int64, error)
	GetUser(ctx context.Context, id int64) (*types.User, error)
	ListUsers(ctx context.Context) ([]types.User, error)
}

// Store is the full annotation store contract.
type Store interface {
	PostStore
	TagStore
	AnnotationStore
	FeedbackStore
	UploadStore
	UserStore

	// EnsureSchema creates the schema if it is absent.
	EnsureSchema(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
