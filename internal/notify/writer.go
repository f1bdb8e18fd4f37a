// Package notify carries upload events between forumlens processes. The
// ingest CLI drops event files into a shared directory and the web process
// watches it, so dashboards learn about uploads made outside the server.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event types.
const (
	UploadCommitted     = "upload_committed"
	UploadStatusChanged = "upload_status_changed"
	UploadPurged        = "upload_purged"
)

// Event is the payload written to an event file and pushed to dashboards.
type Event struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	UploadID int64  `json:"upload_id"`
	Status   string `json:"status,omitempty"`
	Posts    int    `json:"posts,omitempty"`
	Time     int64  `json:"time"`
}

// Publisher receives upload events. EventWriter and the dashboard's
// websocket hub both implement it.
type Publisher interface {
	Publish(Event) error
}

// Dir returns the events directory under dataPath.
func Dir(dataPath string) string {
	return filepath.Join(dataPath, "events")
}

// EventWriter writes event files to a shared directory.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: Dir(dataPath)}
}

// Publish writes one event file. Safe to call concurrently.
func (w *EventWriter) Publish(evt Event) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	if evt.Time == 0 {
		evt.Time = time.Now().UnixNano()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	// Write then rename so watchers never read a partial file.
	name := fmt.Sprintf("%d-%d-%s", evt.Time, evt.UploadID, evt.Type)
	tmp := filepath.Join(w.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, filepath.Join(w.dir, name+eventExt))
}
