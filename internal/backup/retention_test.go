package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSnapshot(t *testing.T, dir, name string, size int, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	mt := time.Now().Add(-age)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	return path
}

// TestListSnapshotsEmpty tests listSnapshots with an empty directory.
func TestListSnapshotsEmpty(t *testing.T) {
	snaps, err := listSnapshots(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected 0 snapshots, got %d", len(snaps))
	}
}

func TestListSnapshotsNonexistentDirectory(t *testing.T) {
	if _, err := listSnapshots("/nonexistent/backup/dir"); err == nil {
		t.Fatal("expected error for non-existent directory")
	}
}

// TestListSnapshotsIgnoresForeignFiles checks that only forumlens-*.db files count.
func TestListSnapshotsIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "readme.txt", 4, 0)
	writeSnapshot(t, dir, "other.db", 4, 0)
	writeSnapshot(t, dir, "forumlens-1.db-wal", 4, 0)
	want := writeSnapshot(t, dir, "forumlens-1.db", 4, 0)
	if err := os.Mkdir(filepath.Join(dir, "forumlens-dir.db"), 0o755); err != nil {
		t.Fatalf("failed to create subdirectory: %v", err)
	}

	snaps, err := listSnapshots(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if snaps[0].Path != want {
		t.Errorf("expected path %s, got %s", want, snaps[0].Path)
	}
}

func TestListSnapshotsSortNewestFirst(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "forumlens-a.db", 1, 3*time.Hour)
	writeSnapshot(t, dir, "forumlens-b.db", 1, time.Hour)
	writeSnapshot(t, dir, "forumlens-c.db", 1, 2*time.Hour)

	snaps, err := listSnapshots(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := []string{snaps[0].Name, snaps[1].Name, snaps[2].Name}
	want := []string{"forumlens-b.db", "forumlens-c.db", "forumlens-a.db"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestPruneSnapshotsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for i, age := range []time.Duration{5, 4, 3, 2, 1} {
		writeSnapshot(t, dir, "forumlens-"+string(rune('a'+i))+".db", 1, age*time.Hour)
	}

	removed, err := pruneSnapshots(dir, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}
	snaps, _ := listSnapshots(dir)
	if len(snaps) != 2 || snaps[0].Name != "forumlens-e.db" || snaps[1].Name != "forumlens-d.db" {
		t.Errorf("unexpected survivors: %+v", snaps)
	}
}

func TestPruneSnapshotsNothingToDo(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "forumlens-a.db", 1, 0)
	removed, err := pruneSnapshots(dir, 3)
	if err != nil || removed != 0 {
		t.Fatalf("pruneSnapshots() = %d, %v; want 0, nil", removed, err)
	}
}

func TestPruneSnapshotsRejectsZeroKeep(t *testing.T) {
	if _, err := pruneSnapshots(t.TempDir(), 0); err == nil {
		t.Fatal("expected error for keep=0")
	}
}

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "forumlens-a.db", 100, 0)
	writeSnapshot(t, dir, "forumlens-b.db", 250, 0)
	writeSnapshot(t, dir, "notes.txt", 1000, 0)

	total, err := diskUsage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 350 {
		t.Errorf("expected 350 bytes, got %d", total)
	}

	if _, err := diskUsage("/nonexistent/backup/dir"); err == nil {
		t.Fatal("expected error for non-existent directory")
	}
}
