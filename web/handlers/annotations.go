package handlers

import (
	"net/http"
	"strings"

	"github.com/scrypster/forumlens/pkg/types"
)

// GetAnnotations handles GET /api/posts/{id}/annotations: AI output, user
// cards and feedback for one post in a single response.
func (h *DashboardHandlers) GetAnnotations(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard(r)
	ctx := r.Context()
	id := extractID(r, "id")
	respondJSON(w, http.StatusOK, AnnotationsResponse{
		AIQuestions:   d.AIQuestions(ctx, id),
		AICategories:  d.AICategories(ctx, id),
		UserQuestions: d.UserQuestions(ctx, id),
		UserTopics:    d.UserTopics(ctx, id),
		Feedback:      d.FeedbackForPost(ctx, id),
	})
}

// ListUserQuestions handles GET /api/posts/{id}/user-questions.
func (h *DashboardHandlers) ListUserQuestions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dashboard(r).UserQuestions(r.Context(), extractID(r, "id")))
}

// CreateUserQuestion handles POST /api/posts/{id}/user-questions.
func (h *DashboardHandlers) CreateUserQuestion(w http.ResponseWriter, r *http.Request) {
	var in types.UserAnnotationInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	id, err := h.dashboard(r).SaveUserQuestion(r.Context(), extractID(r, "id"), in)
	if err != nil {
		respondFailure(w, "failed to save question", err)
		return
	}
	respondJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// UpdateUserQuestion handles PUT /api/user-questions/{qid}.
func (h *DashboardHandlers) UpdateUserQuestion(w http.ResponseWriter, r *http.Request) {
	qid, ok := pathInt64(r, "qid")
	if !ok {
		respondError(w, http.StatusBadRequest, "question id must be an integer", nil)
		return
	}
	var in types.UserAnnotationInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if err := h.dashboard(r).UpdateUserQuestion(r.Context(), qid, in); err != nil {
		respondFailure(w, "failed to update question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUserQuestion handles DELETE /api/user-questions/{qid}.
func (h *DashboardHandlers) DeleteUserQuestion(w http.ResponseWriter, r *http.Request) {
	qid, ok := pathInt64(r, "qid")
	if !ok {
		respondError(w, http.StatusBadRequest, "question id must be an integer", nil)
		return
	}
	if err := h.dashboard(r).DeleteUserQuestion(r.Context(), qid); err != nil {
		respondFailure(w, "failed to delete question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUserTopics handles GET /api/posts/{id}/user-topics.
func (h *DashboardHandlers) ListUserTopics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dashboard(r).UserTopics(r.Context(), extractID(r, "id")))
}

// CreateUserTopic handles POST /api/posts/{id}/user-topics.
func (h *DashboardHandlers) CreateUserTopic(w http.ResponseWriter, r *http.Request) {
	var in types.UserAnnotationInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	id, err := h.dashboard(r).SaveUserTopic(r.Context(), extractID(r, "id"), in)
	if err != nil {
		respondFailure(w, "failed to save topic", err)
		return
	}
	respondJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// UpdateUserTopic handles PUT /api/user-topics/{tid}.
func (h *DashboardHandlers) UpdateUserTopic(w http.ResponseWriter, r *http.Request) {
	tid, ok := pathInt64(r, "tid")
	if !ok {
		respondError(w, http.StatusBadRequest, "topic id must be an integer", nil)
		return
	}
	var in types.UserAnnotationInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if err := h.dashboard(r).UpdateUserTopic(r.Context(), tid, in); err != nil {
		respondFailure(w, "failed to update topic", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUserTopic handles DELETE /api/user-topics/{tid}.
func (h *DashboardHandlers) DeleteUserTopic(w http.ResponseWriter, r *http.Request) {
	tid, ok := pathInt64(r, "tid")
	if !ok {
		respondError(w, http.StatusBadRequest, "topic id must be an integer", nil)
		return
	}
	if err := h.dashboard(r).DeleteUserTopic(r.Context(), tid); err != nil {
		respondFailure(w, "failed to delete topic", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveFeedback handles POST /api/feedback. The feedback is attributed to
// the session user whatever the body says.
func (h *DashboardHandlers) SaveFeedback(w http.ResponseWriter, r *http.Request) {
	var in types.FeedbackInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	rec, err := h.dashboard(r).SaveInferenceFeedback(r.Context(), in)
	if err != nil {
		respondFailure(w, "failed to save feedback", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetFeedback handles GET /api/posts/{id}/feedback/{type}.
func (h *DashboardHandlers) GetFeedback(w http.ResponseWriter, r *http.Request) {
	rec := h.dashboard(r).InferenceFeedback(r.Context(), extractID(r, "id"), extractID(r, "type"))
	if rec == nil {
		respondError(w, http.StatusNotFound, "feedback not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// DeleteFeedback handles DELETE /api/posts/{id}/feedback/{type}?response_id=.
func (h *DashboardHandlers) DeleteFeedback(w http.ResponseWriter, r *http.Request) {
	responseID := strings.TrimSpace(r.URL.Query().Get("response_id"))
	if responseID == "" {
		respondError(w, http.StatusBadRequest, "response_id is required", nil)
		return
	}
	err := h.dashboard(r).DeleteInferenceFeedback(r.Context(), extractID(r, "id"), extractID(r, "type"), responseID)
	if err != nil {
		respondFailure(w, "failed to delete feedback", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
