package ingest

import (
	"fmt"
	"strings"
)

// Stage is a step of the ingestion state machine:
// received → parsed → validated → committed | rejected.
type Stage string

const (
	StageReceived  Stage = "received"
	StageParsed    Stage = "parsed"
	StageValidated Stage = "validated"
	StageCommitted Stage = "committed"
	StageRejected  Stage = "rejected"
)

// Terminal reports whether no further stage follows.
func (s Stage) Terminal() bool {
	return s == StageCommitted || s == StageRejected
}

// Request is one file handed to the pipeline.
type Request struct {
	UserID       int64  `json:"-"`
	Filename     string `json:"filename"`
	ReadableName string `json:"readable_name"`
	Comment      string `json:"comment,omitempty"`

	// Contents is a data URL ("data:text/csv;base64,...") as sent by a
	// browser upload widget. When empty, Data is used as-is.
	Contents string `json:"contents,omitempty"`
	Data     []byte `json:"-"`

	// MIMEType overrides the type declared in Contents.
	MIMEType string `json:"mime_type,omitempty"`

	// Overwrite updates posts that already exist instead of skipping them.
	Overwrite bool `json:"overwrite,omitempty"`
}

// Result is the outcome reported to the uploader.
type Result struct {
	Success           bool             `json:"success"`
	Message           string           `json:"message"`
	Stage             Stage            `json:"stage"`
	PostsInserted     int              `json:"posts_inserted"`
	PostsUpdated      int              `json:"posts_updated,omitempty"`
	DuplicatesSkipped int              `json:"duplicates_skipped"`
	TotalProcessed    int              `json:"total_processed"`
	UploadID          *int64           `json:"upload_id"`
	Validation        *ValidationError `json:"validation,omitempty"`
}

// Problem is one row-level issue. Row is 1-based and counts data rows only.
type Problem struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// ValidationError rejects an upload: required columns are missing or rows
// cannot be converted. Nothing is written when it is returned.
type ValidationError struct {
	MissingColumns []string  `json:"missing_columns,omitempty"`
	Problems       []Problem `json:"problems,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.MissingColumns) > 0 {
		parts = append(parts, "missing required columns: "+strings.Join(e.MissingColumns, ", "))
	}
	if n := len(e.Problems); n > 0 {
		p := e.Problems[0]
		msg := fmt.Sprintf("row %d: %s", p.Row, p.Message)
		if n > 1 {
			msg += fmt.Sprintf(" (and %d more)", n-1)
		}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return "invalid upload"
	}
	return "invalid upload: " + strings.Join(parts, "; ")
}

func (e *ValidationError) empty() bool {
	return e.Reason == "" && len(e.MissingColumns) == 0 && len(e.Problems) == 0
}

// Preview is a look at an upload without storing it.
type Preview struct {
	TotalRows        int                 `json:"total_rows"`
	Columns          []string            `json:"columns"`
	Rows             []map[string]string `json:"preview_data"`
	Valid            bool                `json:"is_valid"`
	ValidationErrors []string            `json:"validation_errors"`
	ExistingRows     int                 `json:"existing_rows"`
}
