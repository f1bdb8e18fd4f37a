// Package backup snapshots the annotation store's SQLite file, verifies
// snapshots and prunes old ones.
package backup

import (
	"time"
)

// Config holds backup service configuration.
type Config struct {
	// DBPath is the path to the SQLite database file to back up
	DBPath string

	// Dir is the directory where snapshots are stored
	Dir string

	// Verify runs an integrity check on every new snapshot
	Verify bool

	// Keep is how many snapshots Prune retains (default: 10)
	Keep int

	// Interval is the period of scheduled snapshots. Zero disables Run.
	Interval time.Duration
}

// Info describes one snapshot file.
type Info struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result describes a snapshot that was just taken.
type Result struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
	Size     int64         `json:"size"`
	Verified bool          `json:"verified"`
	Pruned   int           `json:"pruned"`
}
