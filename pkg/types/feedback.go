package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FeedbackRecord is a rating and comment on one inference shown for a post.
// At most one record exists per (PostID, InferenceType, ResponseID).
type FeedbackRecord struct {
	ResponseID    string    `json:"response_id"`
	PostID        string    `json:"post_id"`
	InferenceType string    `json:"inference_type"`
	Rating        Rating    `json:"rating,omitempty"`
	FeedbackText  string    `json:"feedback_text,omitempty"`
	UserID        *int64    `json:"user_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Decoration joined from the users table on read.
	UserFirstName string `json:"user_first_name,omitempty"`
	UserLastName  string `json:"user_last_name,omitempty"`
	UserEmail     string `json:"user_email,omitempty"`
}

// UserDisplayName returns the name of whoever left the feedback.
func (f FeedbackRecord) UserDisplayName() string {
	return displayName(f.UserFirstName, f.UserLastName, f.UserEmail)
}

// FeedbackInput is a feedback submission from the dashboard.
type FeedbackInput struct {
	PostID        string `json:"post_id"`
	InferenceType string `json:"inference_type"`
	Rating        Rating `json:"rating"`
	FeedbackText  string `json:"feedback_text"`
	ResponseID    string `json:"response_id"`
	UserID        *int64 `json:"-"`
}

// Validate normalizes the submission and rejects malformed identities.
func (in *FeedbackInput) Validate() error {
	in.PostID = strings.TrimSpace(in.PostID)
	in.InferenceType = strings.TrimSpace(in.InferenceType)
	in.ResponseID = strings.TrimSpace(in.ResponseID)
	in.FeedbackText = strings.TrimSpace(in.FeedbackText)

	if in.PostID == "" {
		return errors.New("post id is required")
	}
	if in.InferenceType == "" {
		return errors.New("inference type is required")
	}
	if !in.Rating.IsValid() {
		return fmt.Errorf("unknown rating %q", in.Rating)
	}
	id, err := uuid.Parse(in.ResponseID)
	if err != nil {
		return fmt.Errorf("response id %q is not a UUID: %w", in.ResponseID, err)
	}
	in.ResponseID = id.String()
	return nil
}

// NewResponseID returns a fresh feedback thread identity.
func NewResponseID() string {
	return uuid.NewString()
}
