package cache

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/codexgate/codexgate/internal/api"
)

// SetRequest is the admin payload for writing a cache entry.
type SetRequest struct {
	Key   string `json:"key" validate:"required,max=512"`
	Value string `json:"value" validate:"required"`
	TTL   int64  `json:"ttl_seconds" validate:"gte=0"`
}

// Handler is the admin surface over the hybrid store.
type Handler struct {
	store    *Hybrid
	validate *validator.Validate
}

func NewHandler(store *Hybrid) *Handler {
	return &Handler{
		store:    store,
		validate: validator.New(),
	}
}

// Inspect handles GET /api/v1/admin/cache?action=stats|keys|get.
func (h *Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "", "stats":
		api.JSON(w, http.StatusOK, h.store.Stats(r.Context()))
	case "keys":
		pattern := r.URL.Query().Get("pattern")
		if pattern == "" {
			pattern = "*"
		}
		keys, err := h.store.Keys(r.Context(), pattern)
		if err != nil {
			slog.Error("listing cache keys", "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		api.JSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
	case "get":
		key := r.URL.Query().Get("key")
		if key == "" {
			api.HandleError(w, api.NewBadRequestError("key is required"))
			return
		}
		value, err := h.store.Get(r.Context(), key)
		if errors.Is(err, ErrNotFound) {
			api.HandleError(w, api.NewNotFoundError("key not found"))
			return
		}
		if err != nil {
			slog.Error("reading cache key", "key", key, "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		api.JSON(w, http.StatusOK, map[string]string{"key": key, "value": string(value)})
	default:
		api.HandleError(w, api.NewBadRequestError("unknown action"))
	}
}

// Set handles POST /api/v1/admin/cache.
func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	var req SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	ttl := time.Duration(req.TTL) * time.Second
	if err := h.store.Set(r.Context(), req.Key, []byte(req.Value), ttl); err != nil {
		slog.Error("writing cache key", "key", req.Key, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "cache entry set")
}

// Remove handles DELETE /api/v1/admin/cache?action=delete|clear.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "delete":
		key := r.URL.Query().Get("key")
		if key == "" {
			api.HandleError(w, api.NewBadRequestError("key is required"))
			return
		}
		if _, err := h.store.Delete(r.Context(), key); err != nil {
			slog.Error("deleting cache key", "key", key, "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		api.JSONMessage(w, http.StatusOK, "cache entry deleted")
	case "clear":
		if err := h.store.Clear(r.Context()); err != nil {
			slog.Error("clearing cache", "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		api.JSONMessage(w, http.StatusOK, "cache cleared")
	default:
		api.HandleError(w, api.NewBadRequestError("unknown action"))
	}
}
