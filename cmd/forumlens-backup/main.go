// Command forumlens-backup snapshots, verifies, prunes and restores the
// annotation store database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/backup"
	"github.com/scrypster/forumlens/internal/config"
	"github.com/scrypster/forumlens/internal/logging"
)

// defaultInterval applies to the scheduler when neither flag nor config sets one.
const defaultInterval = time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("forumlens-backup", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "Path to config file (optional, uses env vars by default)")
		dbPath     = fs.String("db", "", "Path to database file (overrides config)")
		backupDir  = fs.String("backup-dir", "", "Backup directory path (overrides config)")
		interval   = fs.Duration("interval", 0, "Backup interval (overrides config)")
		keep       = fs.Int("keep", 0, "Snapshots to keep (overrides config)")
		noVerify   = fs.Bool("no-verify", false, "Skip the integrity check after each snapshot")
		oneshot    = fs.Bool("oneshot", false, "Take a single snapshot and exit")
		restore    = fs.String("restore", "", "Restore database from snapshot file and exit")
		verifyFile = fs.String("verify", "", "Check the integrity of a snapshot file and exit")
		statusCmd  = fs.Bool("status", false, "Show backup status and exit")
		listCmd    = fs.Bool("list", false, "List all available snapshots and exit")
		pruneCmd   = fs.Bool("prune", false, "Prune to the configured number of snapshots and exit")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 2
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to build logger: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	// Override config with command-line flags
	bc := backup.Config{
		DBPath:   cfg.Storage.DSN(),
		Dir:      cfg.Backup.Path,
		Verify:   cfg.Backup.Verify && !*noVerify,
		Keep:     cfg.Backup.Keep,
		Interval: cfg.Backup.Interval,
	}
	if *dbPath != "" {
		bc.DBPath = *dbPath
	}
	if *backupDir != "" {
		bc.Dir = *backupDir
	}
	if *keep > 0 {
		bc.Keep = *keep
	}
	if *interval > 0 {
		bc.Interval = *interval
	}
	if bc.Interval <= 0 {
		bc.Interval = defaultInterval
	}

	service, err := backup.NewService(bc, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create backup service: %v\n", err)
		return 2
	}

	switch {
	case *restore != "":
		err = handleRestore(ctx, service, *restore, stdout)
	case *verifyFile != "":
		err = handleVerify(ctx, service, *verifyFile, stdout)
	case *statusCmd:
		err = handleStatus(service, stdout)
	case *listCmd:
		err = handleList(service, stdout)
	case *pruneCmd:
		err = handlePrune(service, bc.Keep, stdout)
	case *oneshot:
		err = handleOneshot(ctx, service, stdout)
	default:
		err = runService(ctx, service, logger)
	}
	if err != nil {
		fmt.Fprintf(stderr, "forumlens-backup: %v\n", err)
		return 1
	}
	return 0
}

func handleRestore(ctx context.Context, service *backup.Service, snapshot string, w io.Writer) error {
	fmt.Fprintf(w, "Restoring database from snapshot: %s\n", snapshot)
	if err := service.Restore(ctx, snapshot); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	fmt.Fprintln(w, "Database restored successfully")
	return nil
}

func handleVerify(ctx context.Context, service *backup.Service, snapshot string, w io.Writer) error {
	if err := service.Verify(ctx, snapshot); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: ok\n", snapshot)
	return nil
}

func handleStatus(service *backup.Service, w io.Writer) error {
	st, err := service.Status()
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	fmt.Fprintf(w, "Backup Directory: %s\n", st.Dir)
	fmt.Fprintf(w, "Total Snapshots: %d\n", st.Snapshots)
	fmt.Fprintf(w, "Disk Space Used: %.2f MB\n", float64(st.DiskSpaceUsed)/(1024*1024))
	return nil
}

func handleList(service *backup.Service, w io.Writer) error {
	snaps, err := service.List()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(snaps) == 0 {
		fmt.Fprintln(w, "No snapshots found")
		return nil
	}

	fmt.Fprintf(w, "Found %d snapshot(s):\n\n", len(snaps))
	for i, s := range snaps {
		fmt.Fprintf(w, "%d. %s\n", i+1, s.Path)
		fmt.Fprintf(w, "   Size: %.2f MB\n", float64(s.Size)/(1024*1024))
		fmt.Fprintf(w, "   Created: %s (%s ago)\n",
			s.Timestamp.Format(time.RFC3339),
			time.Since(s.Timestamp).Round(time.Minute))
	}
	return nil
}

func handlePrune(service *backup.Service, keep int, w io.Writer) error {
	n, err := service.Prune(keep)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Pruned %d snapshot(s), keeping %d\n", n, keep)
	return nil
}

func handleOneshot(ctx context.Context, service *backup.Service, w io.Writer) error {
	res, err := service.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot failed: %w", err)
	}
	fmt.Fprintln(w, "Snapshot completed successfully:")
	fmt.Fprintf(w, "  Path: %s\n", res.Path)
	fmt.Fprintf(w, "  Size: %.2f MB\n", float64(res.Size)/(1024*1024))
	fmt.Fprintf(w, "  Duration: %v\n", res.Duration)
	fmt.Fprintf(w, "  Verified: %v\n", res.Verified)
	if res.Pruned > 0 {
		fmt.Fprintf(w, "  Pruned: %d\n", res.Pruned)
	}
	return nil
}

func runService(ctx context.Context, service *backup.Service, logger *zap.Logger) error {
	logger.Info("forumlens backup service started")
	err := service.Run(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Info("forumlens backup service stopped")
		return nil
	}
	return err
}
