package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/api"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /api/v1/admin/audit.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := DefaultListParams()
	q := r.URL.Query()

	params.EventType = q.Get("event_type")
	if u := q.Get("user_id"); u != "" {
		id, err := uuid.Parse(u)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid user_id"))
			return
		}
		params.UserID = &id
	}
	if f := q.Get("from"); f != "" {
		t, err := time.Parse(time.RFC3339, f)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid from timestamp"))
			return
		}
		params.From = &t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid to timestamp"))
			return
		}
		params.To = &t
	}
	if p := q.Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := q.Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}

	entries, total, err := h.repo.List(r.Context(), params)
	if err != nil {
		slog.Error("listing audit entries", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, entries, total, params.Page, params.PageSize)
}
