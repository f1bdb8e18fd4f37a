package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	snapshotPrefix = "forumlens-"
	snapshotExt    = ".db"
)

// listSnapshots returns the snapshot files in dir, newest first. Files that
// do not follow the snapshot naming scheme are ignored.
func listSnapshots(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var out []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			Path:      filepath.Join(dir, name),
			Name:      name,
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	// Names embed the creation time, so they break modtime ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// pruneSnapshots keeps the newest keep snapshots in dir and removes the rest.
func pruneSnapshots(dir string, keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	snaps, err := listSnapshots(dir)
	if err != nil {
		return 0, err
	}
	if len(snaps) <= keep {
		return 0, nil
	}

	var errs []error
	removed := 0
	for _, s := range snaps[keep:] {
		if err := os.Remove(s.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("failed to delete some snapshots: %w", errors.Join(errs...))
	}
	return removed, nil
}

// diskUsage sums the size of every snapshot in dir.
func diskUsage(dir string) (int64, error) {
	snaps, err := listSnapshots(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range snaps {
		total += s.Size
	}
	return total, nil
}
