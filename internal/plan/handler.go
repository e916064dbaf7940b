package plan

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/api"
	"github.com/codexgate/codexgate/internal/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Status handles GET /api/v1/plan.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity.UserID == uuid.Nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	status, err := h.svc.Status(r.Context(), identity.UserID)
	if err != nil {
		slog.Error("fetching plan status", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}
