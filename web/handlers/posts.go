package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/scrypster/forumlens/pkg/types"
)

// ListPosts handles GET /api/posts.
// ?view=datatable folds duplicate titles into one row; the default legacy
// view returns one row per post.
func (h *DashboardHandlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard(r)
	switch view := r.URL.Query().Get("view"); view {
	case "", "legacy":
		rows := d.AllPosts(r.Context())
		respondJSON(w, http.StatusOK, RowsResponse{View: "legacy", Rows: rows, Total: len(rows)})
	case "datatable":
		rows := d.DatatablePosts(r.Context())
		respondJSON(w, http.StatusOK, RowsResponse{View: "datatable", Rows: rows, Total: len(rows)})
	default:
		respondError(w, http.StatusBadRequest, "unknown view "+strconv.Quote(view), nil)
	}
}

// PostsTable handles GET /api/posts/table, the column-ordered rendering of
// the posts view. ?datatable=true selects the folded view.
func (h *DashboardHandlers) PostsTable(w http.ResponseWriter, r *http.Request) {
	datatable, _ := strconv.ParseBool(r.URL.Query().Get("datatable"))
	table := h.dashboard(r).AllPostsTable(r.Context(), datatable)
	respondJSON(w, http.StatusOK, TableResponse{Table: table, Total: len(table.Rows)})
}

// PostsSummary handles GET /api/posts/summary.
func (h *DashboardHandlers) PostsSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dashboard(r).PostsSummary(r.Context()))
}

// PostsByForum handles GET /api/forums/{forum}/posts.
func (h *DashboardHandlers) PostsByForum(w http.ResponseWriter, r *http.Request) {
	forum := strings.TrimSpace(extractID(r, "forum"))
	if forum == "" {
		respondError(w, http.StatusBadRequest, "forum is required", nil)
		return
	}
	posts := h.dashboard(r).PostsByForum(r.Context(), forum)
	respondJSON(w, http.StatusOK, PostsResponse{Posts: posts, Total: len(posts)})
}

// PostsByCluster handles GET /api/clusters/{cluster}/posts.
func (h *DashboardHandlers) PostsByCluster(w http.ResponseWriter, r *http.Request) {
	cluster, ok := pathInt64(r, "cluster")
	if !ok {
		respondError(w, http.StatusBadRequest, "cluster must be an integer", nil)
		return
	}
	posts := h.dashboard(r).PostsByCluster(r.Context(), cluster)
	respondJSON(w, http.StatusOK, PostsResponse{Posts: posts, Total: len(posts)})
}

// PostsByTag handles GET /api/tags/{level}/{value}/posts.
func (h *DashboardHandlers) PostsByTag(w http.ResponseWriter, r *http.Request) {
	level, err := types.ParseLevel(extractID(r, "level"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tag level", err)
		return
	}
	posts := h.dashboard(r).PostsByTag(r.Context(), level, extractID(r, "value"))
	respondJSON(w, http.StatusOK, PostsResponse{Posts: posts, Total: len(posts)})
}

// GetPost handles GET /api/posts/{id}. Posts outside the session's active
// uploads are reported as not found.
func (h *DashboardHandlers) GetPost(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	post := h.dashboard(r).Post(r.Context(), id)
	if post == nil {
		respondError(w, http.StatusNotFound, "post not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, post)
}

// GetTags handles GET /api/posts/{id}/tags.
func (h *DashboardHandlers) GetTags(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dashboard(r).TagsForItem(r.Context(), extractID(r, "id")))
}

// PutTags handles PUT /api/posts/{id}/tags. Levels absent from the body are
// left alone; ?source= sets the provenance of values that carry none.
func (h *DashboardHandlers) PutTags(w http.ResponseWriter, r *http.Request) {
	var set types.TagSet
	if err := decodeJSON(r, &set); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	var source types.Source
	if raw := r.URL.Query().Get("source"); raw != "" {
		s, err := types.ParseSource(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid tag source", err)
			return
		}
		source = s
	}

	d := h.dashboard(r)
	postID := extractID(r, "id")
	if err := d.SaveTagsForItem(r.Context(), postID, set, source); err != nil {
		respondFailure(w, "failed to save tags", err)
		return
	}
	respondJSON(w, http.StatusOK, d.TagsForItem(r.Context(), postID))
}

// AvailableTags handles GET /api/tags.
func (h *DashboardHandlers) AvailableTags(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dashboard(r).AvailableTags(r.Context()))
}
