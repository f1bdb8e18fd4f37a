package types

import "time"

// Post is one forum entry ingested from an upload. It is the root entity every
// annotation, tag assignment and feedback record attaches to.
type Post struct {
	ID             string   `json:"id"` // Deterministic id, stable across re-ingestion
	Forum          string   `json:"forum"`
	PostType       string   `json:"post_type,omitempty"`
	Username       string   `json:"username,omitempty"`
	OriginalTitle  string   `json:"original_title"`
	OriginalPost   string   `json:"original_post"`
	PostURL        string   `json:"post_url,omitempty"`
	DatePosted     string   `json:"date_posted,omitempty"` // As supplied by the source file
	Cluster        *int64   `json:"cluster,omitempty"`
	ClusterLabel   string   `json:"cluster_label,omitempty"`
	LLMClusterName string   `json:"llm_cluster_name,omitempty"`
	UMAP1          *float64 `json:"umap_1,omitempty"`
	UMAP2          *float64 `json:"umap_2,omitempty"`
	UMAP3          *float64 `json:"umap_3,omitempty"`
	UploadID       int64    `json:"upload_id"`

	CreatedAt time.Time `json:"created_at"`
}

// Upload is one ingestion batch and the provenance unit for its posts.
type Upload struct {
	ID              int64        `json:"upload_id"`
	UserID          int64        `json:"user_id"`
	Filename        string       `json:"filename"`
	ReadableName    string       `json:"readable_name"`
	Comment         string       `json:"comment,omitempty"`
	Status          UploadStatus `json:"status"`
	RecordsCount    int          `json:"records_count"`
	CreatedAt       time.Time    `json:"created_at"`
	StatusChangedAt *time.Time   `json:"status_changed_at,omitempty"`
}

// User is a dashboard account as exposed by the store. Credentials are owned
// by the authentication collaborator and never pass through here.
type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns "First Last", falling back to the email address.
func (u User) DisplayName() string {
	return displayName(u.FirstName, u.LastName, u.Email)
}

func displayName(first, last, email string) string {
	if first != "" && last != "" {
		return first + " " + last
	}
	if email != "" {
		return email
	}
	return "Unknown User"
}
