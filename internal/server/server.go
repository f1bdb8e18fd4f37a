// Package server provides HTTP server initialization and lifecycle management
// for the forumlens dashboard API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/backup"
	"github.com/scrypster/forumlens/internal/config"
	"github.com/scrypster/forumlens/internal/engine"
	"github.com/scrypster/forumlens/internal/ingest"
	"github.com/scrypster/forumlens/internal/notify"
	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/web/handlers"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Deps are the services the HTTP layer adapts.
type Deps struct {
	Store    storage.Store
	Breaker  *engine.WriteBreaker
	Pipeline *ingest.Pipeline
	Jobs     *ingest.Jobs

	// Backup is optional; without it the /api/backup routes are absent.
	Backup *backup.Service

	// Events is optional; it serves GET /api/events and receives upload
	// state changes. The caller runs and stops it.
	Events *handlers.WebSocketHub

	Logger *zap.Logger
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// publisher avoids storing a typed nil in the interface.
func publisher(hub *handlers.WebSocketHub) notify.Publisher {
	if hub == nil {
		return nil
	}
	return hub
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg *config.Config, deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := deps.Breaker
	if breaker == nil {
		breaker = engine.NewWriteBreaker(cfg.Breaker, logger)
	}
	pipeline := deps.Pipeline
	if pipeline == nil {
		pipeline = ingest.NewPipeline(deps.Store, ingest.Options{
			MaxBytes:     cfg.Ingest.MaxUploadBytes,
			ModelVersion: cfg.Ingest.ModelVersion,
			Events:       publisher(deps.Events),
			Logger:       logger,
		})
	}
	jobs := deps.Jobs
	if jobs == nil {
		jobs = ingest.NewJobs(pipeline, logger)
	}

	header := cfg.Server.UserHeader
	dash := handlers.NewDashboardHandlers(deps.Store, breaker, logger, header)
	if deps.Events != nil {
		dash.SetEvents(deps.Events)
	}
	uploads := handlers.NewIngestHandlers(pipeline, jobs, logger, header, cfg.Ingest.MaxUploadBytes)

	mux := http.NewServeMux()

	// Posts and aggregation views
	mux.HandleFunc("GET /api/posts", dash.ListPosts)
	mux.HandleFunc("GET /api/posts/table", dash.PostsTable)
	mux.HandleFunc("GET /api/posts/summary", dash.PostsSummary)
	mux.HandleFunc("GET /api/posts/{id}", dash.GetPost)
	mux.HandleFunc("GET /api/forums/{forum}/posts", dash.PostsByForum)
	mux.HandleFunc("GET /api/clusters/{cluster}/posts", dash.PostsByCluster)

	// Tags
	mux.HandleFunc("GET /api/tags", dash.AvailableTags)
	mux.HandleFunc("GET /api/tags/{level}/{value}/posts", dash.PostsByTag)
	mux.HandleFunc("GET /api/posts/{id}/tags", dash.GetTags)
	mux.HandleFunc("PUT /api/posts/{id}/tags", dash.PutTags)

	// Annotations
	mux.HandleFunc("GET /api/posts/{id}/annotations", dash.GetAnnotations)
	mux.HandleFunc("GET /api/posts/{id}/user-questions", dash.ListUserQuestions)
	mux.HandleFunc("POST /api/posts/{id}/user-questions", dash.CreateUserQuestion)
	mux.HandleFunc("PUT /api/user-questions/{qid}", dash.UpdateUserQuestion)
	mux.HandleFunc("DELETE /api/user-questions/{qid}", dash.DeleteUserQuestion)
	mux.HandleFunc("GET /api/posts/{id}/user-topics", dash.ListUserTopics)
	mux.HandleFunc("POST /api/posts/{id}/user-topics", dash.CreateUserTopic)
	mux.HandleFunc("PUT /api/user-topics/{tid}", dash.UpdateUserTopic)
	mux.HandleFunc("DELETE /api/user-topics/{tid}", dash.DeleteUserTopic)

	// Feedback
	mux.HandleFunc("POST /api/feedback", dash.SaveFeedback)
	mux.HandleFunc("GET /api/posts/{id}/feedback/{type}", dash.GetFeedback)
	mux.HandleFunc("DELETE /api/posts/{id}/feedback/{type}", dash.DeleteFeedback)

	// Uploads
	mux.HandleFunc("GET /api/uploads", dash.ListUploads)
	mux.HandleFunc("POST /api/uploads", uploads.PostUpload)
	mux.HandleFunc("GET /api/uploads/stats", dash.UploadStats)
	mux.HandleFunc("POST /api/uploads/preview", uploads.PostPreview)
	mux.HandleFunc("POST /api/uploads/jobs", uploads.StartJob)
	mux.HandleFunc("GET /api/uploads/jobs/{job_id}", uploads.GetJob)
	mux.HandleFunc("DELETE /api/uploads/jobs/{job_id}", uploads.CancelJob)
	mux.HandleFunc("PUT /api/uploads/{uid}/status", dash.SetUploadStatus)
	mux.HandleFunc("DELETE /api/uploads/{uid}", dash.PurgeUpload)

	mux.HandleFunc("GET /api/users", dash.ListUsers)

	if deps.Events != nil {
		mux.Handle("GET /api/events", deps.Events)
	}

	if deps.Backup != nil {
		bh := handlers.NewBackupHandlers(deps.Backup, logger)
		mux.HandleFunc("GET /api/backup/status", bh.GetStatus)
		mux.HandleFunc("GET /api/backup/snapshots", bh.ListSnapshots)
		mux.HandleFunc("POST /api/backup/snapshots", bh.PostSnapshot)
	}

	// Health endpoint, used by monitoring
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"healthy","version":%q,"breaker":%q}`, Version, breaker.State())
	})

	// Wrap with request logging and rate limiting, then security headers
	rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = handlers.RequestLogger(logger)(handler)
	return securityHeadersMiddleware(handler)
}

// Start listens on cfg.Server.Addr() and serves until ctx is done, then
// shuts down within cfg.Server.ShutdownTimeout. It returns the actual
// address being listened on (useful for testing with port 0) and a channel
// that is closed once the server has stopped.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, <-chan struct{}, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &http.Server{
		Handler:           NewHandler(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr(), err)
	}
	addr := listener.Addr().String()
	logger.Info("HTTP server listening", zap.String("addr", addr))

	stopped := make(chan struct{})
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	go func() {
		defer close(stopped)
		<-ctx.Done()
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
		logger.Info("HTTP server stopped")
	}()

	return addr, stopped, nil
}
