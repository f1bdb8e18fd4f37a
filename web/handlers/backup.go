package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/backup"
)

// BackupHandlers exposes the snapshot service.
type BackupHandlers struct {
	svc    *backup.Service
	logger *zap.Logger
}

// NewBackupHandlers creates the backup handlers.
func NewBackupHandlers(svc *backup.Service, logger *zap.Logger) *BackupHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupHandlers{svc: svc, logger: logger}
}

// GetStatus handles GET /api/backup/status.
func (h *BackupHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read backup status", err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// ListSnapshots handles GET /api/backup/snapshots.
func (h *BackupHandlers) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.svc.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list snapshots", err)
		return
	}
	if snaps == nil {
		snaps = []backup.Info{}
	}
	respondJSON(w, http.StatusOK, snaps)
}

// PostSnapshot handles POST /api/backup/snapshots.
func (h *BackupHandlers) PostSnapshot(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("Manual snapshot failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "snapshot failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
