package usage

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/api"
	"github.com/codexgate/codexgate/internal/auth"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// Record handles POST /api/v1/usage, the report from the proxy data path.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity.UserID == uuid.Nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	rec, err := h.svc.Record(r.Context(), identity.UserID, req)
	if err != nil {
		if errors.Is(err, ErrRecordFailed) {
			api.HandleError(w, api.ErrBackendUnavailable)
			return
		}
		slog.Error("recording usage", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, rec)
}

// Stats handles GET /api/v1/usage.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity.UserID == uuid.Nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	since := time.Now().AddDate(0, 0, -30)
	if d := r.URL.Query().Get("days"); d != "" {
		if days, err := strconv.Atoi(d); err == nil && days > 0 && days <= 365 {
			since = time.Now().AddDate(0, 0, -days)
		}
	}

	stats, err := h.svc.UserStats(r.Context(), identity.UserID, since)
	if err != nil {
		slog.Error("fetching usage stats", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, stats)
}

// History handles GET /api/v1/usage/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity.UserID == uuid.Nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	limit, offset := 20, 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	records, total, err := h.svc.History(r.Context(), identity.UserID, limit, offset)
	if err != nil {
		slog.Error("fetching usage history", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, records, total, offset/limit+1, limit)
}

// Daily handles GET /api/v1/usage/daily.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity.UserID == uuid.Nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n > 0 && n <= 90 {
			days = n
		}
	}

	stats, err := h.svc.DailyBreakdown(r.Context(), identity.UserID, days)
	if err != nil {
		slog.Error("fetching daily usage", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, stats)
}

// SystemStats handles GET /api/v1/admin/usage.
func (h *Handler) SystemStats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -30)
	if d := r.URL.Query().Get("days"); d != "" {
		if days, err := strconv.Atoi(d); err == nil && days > 0 && days <= 365 {
			since = time.Now().AddDate(0, 0, -days)
		}
	}

	stats, err := h.svc.SystemStats(r.Context(), since)
	if err != nil {
		slog.Error("fetching system usage", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, stats)
}
