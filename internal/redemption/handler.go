package redemption

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/api"
	"github.com/codexgate/codexgate/internal/auth"
	"github.com/codexgate/codexgate/internal/plan"
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

// Redeem handles POST /api/v1/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity.UserID == uuid.Nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	grant, err := h.svc.Redeem(r.Context(), identity.UserID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode):
			api.HandleError(w, api.ErrInvalidCode)
		case errors.Is(err, ErrCodeExpired):
			api.HandleError(w, api.ErrCodeExpired)
		case errors.Is(err, ErrAlreadyUsed):
			api.HandleError(w, api.ErrCodeAlreadyUsed)
		default:
			slog.Error("redeeming code", "error", err)
			api.HandleError(w, api.ErrInternalServer)
		}
		return
	}

	api.JSON(w, http.StatusOK, grant)
}

// Create handles POST /api/v1/admin/codes.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	code, err := h.svc.Create(r.Context(), req, identity.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			api.HandleError(w, api.NewConflictError("code already exists"))
			return
		}
		slog.Error("creating code", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, code)
}

// CreateBatch handles POST /api/v1/admin/codes/batch.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	codes, err := h.svc.CreateBatch(r.Context(), req, identity.UserID)
	if err != nil {
		slog.Error("creating code batch", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, codes)
}

// List handles GET /api/v1/admin/codes.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Limit:  20,
	}
	if pt := r.URL.Query().Get("plan_type"); pt != "" {
		filter.PlanType = plan.Type(pt)
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			filter.Limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	codes, total, err := h.svc.List(r.Context(), filter)
	if err != nil {
		slog.Error("listing codes", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	page := filter.Offset/filter.Limit + 1
	api.JSONPaginated(w, http.StatusOK, codes, total, page, filter.Limit)
}

// Delete handles DELETE /api/v1/admin/codes/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid code id"))
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			api.HandleError(w, api.NewNotFoundError("code not found"))
			return
		}
		slog.Error("deleting code", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "code deleted")
}
