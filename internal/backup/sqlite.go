package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// openDB opens path on a single connection. It is opened read-write so that
// WAL-mode files without an existing -shm can still be read.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// snapshotSQLite writes a consistent copy of sourcePath to destPath with
// VACUUM INTO, which reads through the WAL and needs no writer lock.
// destPath must not exist.
func snapshotSQLite(ctx context.Context, sourcePath, destPath string) error {
	src, err := openDB(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer func() { _ = src.Close() }()

	if err := src.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping source database: %w", err)
	}

	quoted := strings.ReplaceAll(destPath, "'", "''")
	if _, err := src.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// verifySQLite runs PRAGMA integrity_check against path.
func verifySQLite(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("snapshot not found: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// restoreSQLite copies a verified snapshot over targetPath. Nothing may hold
// targetPath open while this runs.
func restoreSQLite(ctx context.Context, snapshotPath, targetPath string) error {
	if err := verifySQLite(ctx, snapshotPath); err != nil {
		return fmt.Errorf("snapshot verification failed: %w", err)
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = src.Close() }()

	tmp := targetPath + ".restoring"
	dst, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to copy snapshot: %w", err)
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to sync target file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	// Stale WAL/SHM files belong to the old database.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(targetPath + suffix)
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		return fmt.Errorf("failed to move restored database into place: %w", err)
	}
	return verifySQLite(ctx, targetPath)
}
