package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/api"
	"github.com/codexgate/codexgate/internal/auth"
	"github.com/codexgate/codexgate/internal/events"
)

// AdmissionRequest asks to admit one upstream call spending an estimated
// token amount.
type AdmissionRequest struct {
	TokensEstimated int64 `json:"tokens_estimated" validate:"gte=0"`
}

// AdmissionResponse mirrors Decision for the wire.
type AdmissionResponse struct {
	Allowed           bool   `json:"allowed"`
	Reason            string `json:"reason,omitempty"`
	RequestsRemaining int    `json:"requests_remaining"`
	RequestResetAt    int64  `json:"request_reset_at"`
	TokensRemaining   int64  `json:"tokens_remaining"`
	TokenResetAt      int64  `json:"token_reset_at"`
}

type Handler struct {
	limiter   *Limiter
	publisher *events.Publisher
	validate  *validator.Validate
}

func NewHandler(limiter *Limiter, publisher *events.Publisher) *Handler {
	return &Handler{
		limiter:   limiter,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// Admit handles POST /api/v1/admission: the proxy data path calls it before
// forwarding a request upstream.
func (h *Handler) Admit(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity.UserID == uuid.Nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req AdmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	d := h.limiter.CheckAndConsume(r.Context(), identity.UserID.String(), identity.Role, req.TokensEstimated)
	SetHeaders(w, d)

	if !d.Allowed {
		h.publisher.AdmissionRejected(r.Context(), events.AdmissionEvent{
			UserID:    identity.UserID.String(),
			Role:      string(identity.Role),
			Reason:    d.Reason,
			Timestamp: time.Now().UTC(),
		})
		w.Header().Set("Retry-After", retryAfter(d))
		api.JSON(w, http.StatusTooManyRequests, toResponse(d))
		return
	}

	api.JSON(w, http.StatusOK, toResponse(d))
}

// Limits handles GET /api/v1/limits: a read-only view of the caller's budget.
func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity.UserID == uuid.Nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	d := h.limiter.PeekRemaining(r.Context(), identity.UserID.String(), identity.Role)
	SetHeaders(w, d)
	api.JSON(w, http.StatusOK, toResponse(d))
}

// SetHeaders writes the rate-limit state headers for a decision.
func SetHeaders(w http.ResponseWriter, d Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Remaining-Requests", strconv.Itoa(d.RequestsRemaining))
	h.Set("X-RateLimit-Remaining-Tokens", strconv.FormatInt(d.TokensRemaining, 10))
	h.Set("X-RateLimit-Reset-Requests", strconv.FormatInt(d.RequestResetAt.UnixMilli(), 10))
	h.Set("X-RateLimit-Reset-Tokens", strconv.FormatInt(d.TokenResetAt.UnixMilli(), 10))
}

func retryAfter(d Decision) string {
	reset := d.RequestResetAt
	if d.Reason == "tokens" {
		reset = d.TokenResetAt
	}
	secs := int(time.Until(reset).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func toResponse(d Decision) AdmissionResponse {
	return AdmissionResponse{
		Allowed:           d.Allowed,
		Reason:            d.Reason,
		RequestsRemaining: d.RequestsRemaining,
		RequestResetAt:    d.RequestResetAt.UnixMilli(),
		TokensRemaining:   d.TokensRemaining,
		TokenResetAt:      d.TokenResetAt.UnixMilli(),
	}
}
