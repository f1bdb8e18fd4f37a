package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyAnnotation is returned when an annotation carries no text at all.
var ErrEmptyAnnotation = errors.New("annotation text is empty")

// AIQuestion is a model-inferred question for a post. AI annotations are
// append-only; several may coexist and are ordered by creation.
type AIQuestion struct {
	ID              int64     `json:"id"`
	PostID          string    `json:"post_id"`
	Text            string    `json:"question_text"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	ModelVersion    string    `json:"model_version,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AICategory is a model-inferred category for a post.
type AICategory struct {
	ID              int64     `json:"id"`
	PostID          string    `json:"post_id"`
	CategoryType    string    `json:"category_type"`
	CategoryValue   string    `json:"category_value"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	ModelVersion    string    `json:"model_version,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserQuestion is a question written by a dashboard user, with free-form notes.
type UserQuestion struct {
	ID        int64     `json:"id"`
	PostID    string    `json:"post_id"`
	Text      string    `json:"question_text"`
	Notes     string    `json:"notes_text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserTopic is a topic note written by a dashboard user.
type UserTopic struct {
	ID        int64     `json:"id"`
	PostID    string    `json:"post_id"`
	Text      string    `json:"topic_text"`
	Notes     string    `json:"notes_text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserAnnotationInput carries the editable fields of a user question or topic.
type UserAnnotationInput struct {
	Text  string `json:"text"`
	Notes string `json:"notes"`
}

// Validate trims both fields and requires at least one of them.
func (in *UserAnnotationInput) Validate() error {
	in.Text = strings.TrimSpace(in.Text)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Text == "" && in.Notes == "" {
		return ErrEmptyAnnotation
	}
	return nil
}

// ValidateAIQuestion checks an AI question before it is appended.
func ValidateAIQuestion(q *AIQuestion) error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return ErrEmptyAnnotation
	}
	return validateConfidence(q.ConfidenceScore)
}

// ValidateAICategory checks an AI category before it is appended.
func ValidateAICategory(c *AICategory) error {
	c.CategoryType = strings.TrimSpace(c.CategoryType)
	c.CategoryValue = strings.TrimSpace(c.CategoryValue)
	if c.CategoryType == "" {
		return errors.New("category type is required")
	}
	if c.CategoryValue == "" {
		return ErrEmptyAnnotation
	}
	return validateConfidence(c.ConfidenceScore)
}

func validateConfidence(score *float64) error {
	if score == nil {
		return nil
	}
	if *score < 0 || *score > 1 {
		return fmt.Errorf("confidence score %v out of range [0,1]", *score)
	}
	return nil
}
