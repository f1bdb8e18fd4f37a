package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrRunning is returned by Run when the scheduler is already active and by
// Restore while it is.
var ErrRunning = errors.New("backup scheduler is running")

// Service takes, verifies, lists, prunes and restores snapshots of one
// SQLite database file.
type Service struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	running  bool
	lastTime time.Time
	lastErr  error
}

// Status reports the scheduler's view of the backups.
type Status struct {
	Running       bool      `json:"running"`
	LastSnapshot  time.Time `json:"last_snapshot,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Snapshots     int       `json:"snapshots"`
	DiskSpaceUsed int64     `json:"disk_space_used"`
	Dir           string    `json:"dir"`
}

// NewService creates a backup service, creating cfg.Dir if needed.
func NewService(cfg Config, logger *zap.Logger) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 10
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, logger: logger}, nil
}

// Snapshot copies the database to a timestamped file, verifies it when
// configured to, and prunes down to cfg.Keep snapshots.
func (s *Service) Snapshot(ctx context.Context) (*Result, error) {
	start := time.Now()

	if _, err := os.Stat(s.cfg.DBPath); err != nil {
		return nil, s.record(fmt.Errorf("database not found: %w", err))
	}

	name := snapshotPrefix + start.UTC().Format("20060102-150405.000000") + snapshotExt
	path := filepath.Join(s.cfg.Dir, name)

	if err := snapshotSQLite(ctx, s.cfg.DBPath, path); err != nil {
		return nil, s.record(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, s.record(fmt.Errorf("failed to stat snapshot: %w", err))
	}
	res := &Result{Path: path, Size: info.Size()}

	if s.cfg.Verify {
		if err := verifySQLite(ctx, path); err != nil {
			_ = os.Remove(path)
			return nil, s.record(fmt.Errorf("snapshot verification failed: %w", err))
		}
		res.Verified = true
	}

	pruned, err := pruneSnapshots(s.cfg.Dir, s.cfg.Keep)
	if err != nil {
		// The snapshot itself is good.
		s.logger.Warn("Failed to prune snapshots", zap.Error(err))
	}
	res.Pruned = pruned
	res.Duration = time.Since(start)

	_ = s.record(nil)
	s.logger.Info("Snapshot created",
		zap.String("path", res.Path),
		zap.Int64("size", res.Size),
		zap.Bool("verified", res.Verified),
		zap.Int("pruned", res.Pruned),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (s *Service) record(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err == nil {
		s.lastTime = time.Now()
	}
	return err
}

// Verify runs an integrity check on the snapshot at path.
func (s *Service) Verify(ctx context.Context, path string) error {
	return verifySQLite(ctx, path)
}

// List returns the stored snapshots, newest first.
func (s *Service) List() ([]Info, error) {
	return listSnapshots(s.cfg.Dir)
}

// Prune keeps the newest keep snapshots and returns how many were removed.
func (s *Service) Prune(keep int) (int, error) {
	return pruneSnapshots(s.cfg.Dir, keep)
}

// Restore replaces the database with the snapshot at path. The store must
// be closed and the scheduler stopped. The current database is snapshotted
// first and put back if the restore fails.
func (s *Service) Restore(ctx context.Context, path string) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return ErrRunning
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("snapshot not found: %w", err)
	}

	rollback := s.cfg.DBPath + ".pre-restore"
	haveRollback := false
	if _, err := os.Stat(s.cfg.DBPath); err == nil {
		_ = os.Remove(rollback)
		if err := snapshotSQLite(ctx, s.cfg.DBPath, rollback); err != nil {
			return fmt.Errorf("failed to snapshot current database: %w", err)
		}
		haveRollback = true
		defer func() { _ = os.Remove(rollback) }()
	}

	if err := restoreSQLite(ctx, path, s.cfg.DBPath); err != nil {
		if haveRollback {
			if rbErr := restoreSQLite(ctx, rollback, s.cfg.DBPath); rbErr != nil {
				return fmt.Errorf("restore failed and rollback failed: %v (restore error: %w)", rbErr, err)
			}
			return fmt.Errorf("restore failed, rolled back to previous state: %w", err)
		}
		return err
	}

	s.logger.Info("Database restored", zap.String("snapshot", path))
	return nil
}

// Run takes a snapshot every cfg.Interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("backup interval is not set")
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Info("Backup scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.String("dir", s.cfg.Dir))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Backup scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Snapshot(ctx); err != nil {
				s.logger.Error("Scheduled snapshot failed", zap.Error(err))
			}
		}
	}
}

// Status returns the current scheduler and disk state.
func (s *Service) Status() (*Status, error) {
	snaps, err := s.List()
	if err != nil {
		return nil, err
	}
	usage, err := diskUsage(s.cfg.Dir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Status{
		Running:       s.running,
		LastSnapshot:  s.lastTime,
		Snapshots:     len(snaps),
		DiskSpaceUsed: usage,
		Dir:           s.cfg.Dir,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st, nil
}
