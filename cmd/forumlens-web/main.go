// Command forumlens-web serves the dashboard API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/backup"
	"github.com/scrypster/forumlens/internal/config"
	"github.com/scrypster/forumlens/internal/engine"
	"github.com/scrypster/forumlens/internal/ingest"
	"github.com/scrypster/forumlens/internal/logging"
	"github.com/scrypster/forumlens/internal/notify"
	"github.com/scrypster/forumlens/internal/server"
	"github.com/scrypster/forumlens/internal/storage/sqlite"
	"github.com/scrypster/forumlens/web/handlers"
)

// Finished ingestion jobs are kept this long for polling.
const jobRetention = time.Hour

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional, uses env vars by default)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Fatal("forumlens-web failed", zap.Error(err))
	}
}

// run wires the services and serves until ctx is done. ready, when set,
// receives the listen address.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, ready func(addr string)) error {
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := sqlite.Open(ctx, cfg.Storage.DSN(), sqlite.Options{
		BusyTimeout: cfg.Storage.BusyTimeoutMS,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}()

	seeds, err := ingest.LoadSeedTags(cfg.Ingest.SeedTagsPath)
	if err != nil {
		return fmt.Errorf("failed to load seed tags: %w", err)
	}

	// Live upload events: in-process uploads publish straight to the hub,
	// forumlens-ingest runs reach it through event files.
	hub := handlers.NewWebSocketHub(logger, cfg.Server.UserHeader, cfg.Server.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()
	watcher := notify.NewEventWatcher(cfg.Storage.DataPath, hub, logger)
	if err := watcher.Start(); err != nil {
		logger.Warn("Upload event watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	pipeline := ingest.NewPipeline(store, ingest.Options{
		MaxBytes:     cfg.Ingest.MaxUploadBytes,
		ModelVersion: cfg.Ingest.ModelVersion,
		Seeds:        seeds,
		Events:       hub,
		Logger:       logger,
	})
	jobs := ingest.NewJobs(pipeline, logger)
	go forgetJobs(ctx, jobs, logger)

	backups, err := backup.NewService(backup.Config{
		DBPath:   cfg.Storage.DSN(),
		Dir:      cfg.Backup.Path,
		Verify:   cfg.Backup.Verify,
		Keep:     cfg.Backup.Keep,
		Interval: cfg.Backup.Interval,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if cfg.Backup.Interval > 0 {
		go func() {
			if err := backups.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Backup scheduler stopped", zap.Error(err))
			}
		}()
	}

	addr, stopped, err := server.Start(ctx, cfg, server.Deps{
		Store:    store,
		Breaker:  engine.NewWriteBreaker(cfg.Breaker, logger),
		Pipeline: pipeline,
		Jobs:     jobs,
		Backup:   backups,
		Events:   hub,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	logger.Info("forumlens dashboard API running", zap.String("url", "http://"+addr))
	if ready != nil {
		ready(addr)
	}

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")
	<-stopped
	return nil
}

// forgetJobs drops finished ingestion jobs once nobody is likely to poll them.
func forgetJobs(ctx context.Context, jobs *ingest.Jobs, logger *zap.Logger) {
	ticker := time.NewTicker(jobRetention / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := jobs.Forget(time.Now().Add(-jobRetention)); n > 0 {
				logger.Debug("Forgot finished ingestion jobs", zap.Int("count", n))
			}
		}
	}
}
