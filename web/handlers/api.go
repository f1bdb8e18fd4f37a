package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/engine"
	"github.com/scrypster/forumlens/internal/ingest"
	"github.com/scrypster/forumlens/internal/notify"
	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

// DashboardHandlers serves the dashboard read and write endpoints. A
// Dashboard is built per request for the session user.
type DashboardHandlers struct {
	store      storage.Store
	breaker    *engine.WriteBreaker
	logger     *zap.Logger
	userHeader string
	events     notify.Publisher
}

// NewDashboardHandlers creates the dashboard handlers. All requests share
// breaker so that a failing store trips it for everybody.
func NewDashboardHandlers(store storage.Store, breaker *engine.WriteBreaker, logger *zap.Logger, userHeader string) *DashboardHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	return &DashboardHandlers{store: store, breaker: breaker, logger: logger, userHeader: userHeader}
}

// SetEvents makes upload state changes visible to live dashboards.
func (h *DashboardHandlers) SetEvents(p notify.Publisher) {
	h.events = p
}

func (h *DashboardHandlers) publish(evt notify.Event) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(evt); err != nil {
		h.logger.Warn("Failed to publish upload event", zap.String("type", evt.Type), zap.Error(err))
	}
}

func (h *DashboardHandlers) dashboard(r *http.Request) *engine.Dashboard {
	return engine.NewDashboard(h.store, SessionFromRequest(r, h.userHeader), h.breaker, h.logger)
}

// extractID extracts an ID from the URL path using Go 1.22+ path parameters.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// pathInt64 reads a numeric path parameter.
func pathInt64(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(extractID(r, key), 10, 64)
	return id, err == nil
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}

// statusFor maps a store, engine or ingest error to an HTTP status.
func statusFor(err error) int {
	var (
		ioErr *storage.StorageIOError
		vErr  *ingest.ValidationError
	)
	switch {
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, types.ErrEmptyAnnotation):
		return http.StatusBadRequest
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ingest.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, engine.ErrCircuitOpen), errors.As(err, &ioErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure writes err with the status statusFor picks.
func respondFailure(w http.ResponseWriter, message string, err error) {
	respondError(w, statusFor(err), message, err)
}
