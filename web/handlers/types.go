package handlers

import (
	"github.com/scrypster/forumlens/internal/engine"
	"github.com/scrypster/forumlens/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// IDResponse is returned when a write creates a row.
type IDResponse struct {
	ID int64 `json:"id"`
}

// PostsResponse wraps a post listing.
type PostsResponse struct {
	Posts []types.Post `json:"posts"`
	Total int          `json:"total"`
}

// RowsResponse wraps the legacy or datatable view of every visible post.
type RowsResponse struct {
	View  string      `json:"view"`
	Rows  interface{} `json:"rows"`
	Total int         `json:"total"`
}

// TableResponse is a column-ordered rendering of the posts view.
type TableResponse struct {
	engine.Table
	Total int `json:"total"`
}

// AnnotationsResponse bundles every annotation of one post.
type AnnotationsResponse struct {
	AIQuestions   []types.AIQuestion     `json:"ai_questions"`
	AICategories  []types.AICategory     `json:"ai_categories"`
	UserQuestions []types.UserQuestion   `json:"user_questions"`
	UserTopics    []types.UserTopic      `json:"user_topics"`
	Feedback      []types.FeedbackRecord `json:"feedback"`
}

// UploadStatusRequest is the body of PUT /api/uploads/{id}/status.
type UploadStatusRequest struct {
	Status types.UploadStatus `json:"status"`
}

// PurgeResponse reports a purged upload.
type PurgeResponse struct {
	UploadID     int64 `json:"upload_id"`
	PostsRemoved int   `json:"posts_removed"`
}

// JobResponse is returned immediately after starting an ingestion job.
type JobResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}
