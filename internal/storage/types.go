package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/forumlens/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a unique-constraint collision.
	ErrConflict = errors.New("conflict")

	// ErrForbidden indicates the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition indicates an upload status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// SchemaError is a fatal failure to apply the schema. The store is unusable.
type SchemaError struct {
	Op  string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// StorageIOError is a transient storage failure (lock contention, disk I/O).
// Callers may retry at their discretion.
type StorageIOError struct {
	Op  string
	Err error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }

// Retryable reports that the operation may succeed if attempted again.
func (e *StorageIOError) Retryable() bool { return true }

// ClassifyError maps a driver error onto the storage error taxonomy.
// Unrecognized errors are wrapped with op and returned as-is.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *StorageIOError
	var schemaErr *SchemaError
	if errors.As(err, &ioErr) || errors.As(err, &schemaErr) {
		return err
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidTransition) {
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "SQLITE_BUSY"),
		strings.Contains(msg, "disk I/O error"),
		strings.Contains(msg, "database or disk is full"):
		return &StorageIOError{Op: op, Err: err}
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%s: %w: referenced post does not exist", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsMissingTable reports whether err was caused by a table that does not exist,
// which happens when the schema was reset underneath a running process.
func IsMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// PostFilter scopes post reads to what a user may see.
type PostFilter struct {
	// UserID restricts results to uploads owned by this user.
	UserID int64

	// AllUsers disables the ownership restriction (admin views, summaries).
	AllUsers bool

	// Status restricts results to uploads in this status (default: active).
	Status types.UploadStatus

	// Forum restricts results to one forum. Empty means any forum.
	Forum string

	// Cluster restricts results to one cluster. Nil means any cluster.
	Cluster *int64
}

// Normalize applies defaults.
func (f *PostFilter) Normalize() {
	if f.Status == "" {
		f.Status = types.UploadActive
	}
}

// AnnotatedPost is a post with the AI annotation children the aggregation
// views fold in.
type AnnotatedPost struct {
	types.Post
	AIQuestions  []types.AIQuestion
	AICategories []types.AICategory
}

// PostsSummary holds cheap count aggregates.
type PostsSummary struct {
	TotalPosts int            `json:"total_posts"`
	ByForum    map[string]int `json:"by_forum"`
	ByCluster  map[string]int `json:"by_cluster"`
}

// PostRecord is one post to ingest plus the annotations and tags seeded with it.
type PostRecord struct {
	Post       types.Post
	Questions  []types.AIQuestion
	Categories []types.AICategory
	Tags       []types.TagAssignment
}

// UploadBatch is the unit of atomic ingestion.
type UploadBatch struct {
	Upload types.Upload
	Posts  []PostRecord

	// Overwrite updates posts whose id already exists instead of skipping them.
	Overwrite bool
}

// CommitResult reports what CommitUpload wrote.
type CommitResult struct {
	UploadID *int64
	Inserted int
	Updated  int
	Skipped  int
}

// UploadFilter selects uploads to list.
type UploadFilter struct {
	// UserID restricts to one owner. Zero means every owner.
	UserID int64

	// Status restricts to one status. Empty means any status.
	Status types.UploadStatus
}

// UploadStats summarizes one user's uploads.
type UploadStats struct {
	TotalUploads  int                        `json:"total_uploads"`
	TotalRecords  int                        `json:"total_records"`
	ByStatus      map[types.UploadStatus]int `json:"by_status"`
	RecentUploads int                        `json:"recent_uploads"`
}

// RecentUploadWindow is the look-back used for UploadStats.RecentUploads.
const RecentUploadWindow = 7 * 24 * time.Hour
