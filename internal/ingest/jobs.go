package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job statuses.
const (
	JobRunning   = "running"
	JobComplete  = "complete"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// ErrUnknownJob is returned for job ids the tracker has never issued.
var ErrUnknownJob = errors.New("unknown ingestion job")

// Progress carries live progress data for a running job.
type Progress struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Stage     Stage     `json:"stage"`
	Filename  string    `json:"filename"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// job tracks the state of one async ingestion.
type job struct {
	mu       sync.RWMutex
	progress Progress
	result   *Result
	cancel   context.CancelFunc
	done     chan struct{}
}

func (j *job) snapshot() Progress {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// Jobs runs pipeline uploads in the background so large files do not hold an
// HTTP request open.
type Jobs struct {
	pipeline *Pipeline
	logger   *zap.Logger

	// mu protects jobs.
	mu   sync.RWMutex
	jobs map[string]*job
}

// NewJobs creates a tracker running uploads through pipeline.
func NewJobs(pipeline *Pipeline, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{pipeline: pipeline, logger: logger, jobs: make(map[string]*job)}
}

// Start begins ingesting req in the background and returns the job id. The
// job outlives ctx's cancellation but keeps its values; use Cancel to stop it.
func (js *Jobs) Start(ctx context.Context, req Request) (string, error) {
	if req.Contents == "" && len(req.Data) == 0 {
		return "", &ValidationError{Reason: "file is empty"}
	}

	jobID := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{
		progress: Progress{
			JobID:     jobID,
			Status:    JobRunning,
			Stage:     StageReceived,
			Filename:  req.Filename,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	js.mu.Lock()
	js.jobs[jobID] = j
	js.mu.Unlock()

	go func() {
		defer cancel()
		res, err := js.pipeline.run(runCtx, req, func(s Stage) {
			j.mu.Lock()
			j.progress.Stage = s
			j.mu.Unlock()
		})

		j.mu.Lock()
		j.result = res
		j.progress.Message = res.Message
		switch {
		case err == nil:
			j.progress.Status = JobComplete
		case errors.Is(err, context.Canceled):
			j.progress.Status = JobCancelled
		default:
			j.progress.Status = JobFailed
		}
		status := j.progress.Status
		j.mu.Unlock()
		close(j.done)

		js.logger.Debug("Ingestion job finished",
			zap.String("job_id", jobID),
			zap.String("status", status))
	}()

	return jobID, nil
}

func (js *Jobs) get(jobID string) (*job, bool) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	j, ok := js.jobs[jobID]
	return j, ok
}

// Progress returns the live progress for a job, or false if unknown.
func (js *Jobs) Progress(jobID string) (Progress, bool) {
	j, ok := js.get(jobID)
	if !ok {
		return Progress{}, false
	}
	return j.snapshot(), true
}

// Result returns the final result of a finished job. Returns nil while the
// job is running or if it is unknown.
func (js *Jobs) Result(jobID string) *Result {
	j, ok := js.get(jobID)
	if !ok {
		return nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Cancel stops a job that has not committed yet. Cancelling a finished job
// has no effect.
func (js *Jobs) Cancel(jobID string) error {
	j, ok := js.get(jobID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	j.cancel()
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (js *Jobs) Wait(ctx context.Context, jobID string) (*Result, error) {
	j, ok := js.get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	select {
	case <-j.done:
		j.mu.RLock()
		defer j.mu.RUnlock()
		return j.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget drops finished jobs started before cutoff and returns how many
// were removed.
func (js *Jobs) Forget(cutoff time.Time) int {
	js.mu.Lock()
	defer js.mu.Unlock()
	n := 0
	for id, j := range js.jobs {
		select {
		case <-j.done:
		default:
			continue
		}
		if j.snapshot().StartedAt.Before(cutoff) {
			delete(js.jobs, id)
			n++
		}
	}
	return n
}
