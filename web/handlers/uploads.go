package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/ingest"
	"github.com/scrypster/forumlens/internal/notify"
	"github.com/scrypster/forumlens/pkg/types"
)

// ListUploads handles GET /api/uploads?status=.
func (h *DashboardHandlers) ListUploads(w http.ResponseWriter, r *http.Request) {
	status := types.UploadStatus(r.URL.Query().Get("status"))
	if status != "" && !types.IsValidUploadStatus(status) {
		respondError(w, http.StatusBadRequest, "invalid upload status", nil)
		return
	}
	respondJSON(w, http.StatusOK, h.dashboard(r).Uploads(r.Context(), status))
}

// UploadStats handles GET /api/uploads/stats.
func (h *DashboardHandlers) UploadStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dashboard(r).UploadStats(r.Context()))
}

// SetUploadStatus handles PUT /api/uploads/{uid}/status.
func (h *DashboardHandlers) SetUploadStatus(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := pathInt64(r, "uid")
	if !ok {
		respondError(w, http.StatusBadRequest, "upload id must be an integer", nil)
		return
	}
	var req UploadStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	d := h.dashboard(r)
	if err := d.SetUploadStatus(r.Context(), uploadID, req.Status); err != nil {
		respondFailure(w, "failed to change upload status", err)
		return
	}
	h.publish(notify.Event{
		Type:     notify.UploadStatusChanged,
		UserID:   d.Session().UserID,
		UploadID: uploadID,
		Status:   string(req.Status),
	})
	w.WriteHeader(http.StatusNoContent)
}

// PurgeUpload handles DELETE /api/uploads/{uid}. Only uploads already in
// the deleted state can be purged.
func (h *DashboardHandlers) PurgeUpload(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := pathInt64(r, "uid")
	if !ok {
		respondError(w, http.StatusBadRequest, "upload id must be an integer", nil)
		return
	}
	d := h.dashboard(r)
	n, err := d.PurgeUpload(r.Context(), uploadID)
	if err != nil {
		respondFailure(w, "failed to purge upload", err)
		return
	}
	h.publish(notify.Event{Type: notify.UploadPurged, UserID: d.Session().UserID, UploadID: uploadID, Posts: n})
	respondJSON(w, http.StatusOK, PurgeResponse{UploadID: uploadID, PostsRemoved: n})
}

// ListUsers handles GET /api/users.
func (h *DashboardHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dashboard(r).AllUsers(r.Context()))
}

// IngestHandlers serves the upload endpoints of the ingestion pipeline.
type IngestHandlers struct {
	pipeline   *ingest.Pipeline
	jobs       *ingest.Jobs
	logger     *zap.Logger
	userHeader string
	maxBody    int64
}

// NewIngestHandlers creates the upload handlers. maxUpload is the decoded
// file limit; request bodies may be a third larger for base64.
func NewIngestHandlers(pipeline *ingest.Pipeline, jobs *ingest.Jobs, logger *zap.Logger, userHeader string, maxUpload int64) *IngestHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	var maxBody int64
	if maxUpload > 0 {
		maxBody = maxUpload/3*4 + 64<<10
	}
	return &IngestHandlers{pipeline: pipeline, jobs: jobs, logger: logger, userHeader: userHeader, maxBody: maxBody}
}

// readRequest decodes an upload request and attributes it to the session user.
func (h *IngestHandlers) readRequest(w http.ResponseWriter, r *http.Request) (ingest.Request, bool) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var req ingest.Request
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload too large", err)
			return req, false
		}
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return req, false
	}
	req.UserID = SessionFromRequest(r, h.userHeader).UserID
	return req, true
}

// PostUpload handles POST /api/uploads: ingest the file and answer with the
// outcome. A rejected upload still carries a Result explaining why.
func (h *IngestHandlers) PostUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	res, err := h.pipeline.Run(r.Context(), req)
	if err != nil {
		respondJSON(w, statusFor(err), res)
		return
	}
	status := http.StatusCreated
	if res.UploadID == nil {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}

// PostPreview handles POST /api/uploads/preview?rows=. Nothing is written.
func (h *IngestHandlers) PostPreview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	rows := parseInt(r.URL.Query().Get("rows"), 5)
	if rows < 0 {
		rows = 0
	}
	if rows > 100 {
		rows = 100
	}
	pv, err := h.pipeline.Preview(r.Context(), req, rows)
	if err != nil {
		respondFailure(w, "failed to preview upload", err)
		return
	}
	respondJSON(w, http.StatusOK, pv)
}

// StartJob handles POST /api/uploads/jobs: ingest in the background and
// return a job id to poll.
func (h *IngestHandlers) StartJob(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	if req.UserID <= 0 {
		respondError(w, http.StatusForbidden, "Authentication required to upload files", nil)
		return
	}
	jobID, err := h.jobs.Start(r.Context(), req)
	if err != nil {
		respondFailure(w, "failed to start upload", err)
		return
	}
	h.logger.Info("Ingestion job started",
		zap.String("job_id", jobID),
		zap.String("filename", req.Filename),
		zap.Int64("user_id", req.UserID))
	respondJSON(w, http.StatusAccepted, JobResponse{
		JobID:   jobID,
		Message: "Upload started. Poll /api/uploads/jobs/" + jobID + " for progress.",
	})
}

// jobStatusResponse is the body of GET /api/uploads/jobs/{job_id}.
type jobStatusResponse struct {
	ingest.Progress
	Result *ingest.Result `json:"result,omitempty"`
}

// GetJob handles GET /api/uploads/jobs/{job_id}.
func (h *IngestHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := extractID(r, "job_id")
	progress, ok := h.jobs.Progress(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "job not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, jobStatusResponse{Progress: progress, Result: h.jobs.Result(jobID)})
}

// CancelJob handles DELETE /api/uploads/jobs/{job_id}.
func (h *IngestHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Cancel(extractID(r, "job_id")); err != nil {
		respondFailure(w, "failed to cancel job", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
