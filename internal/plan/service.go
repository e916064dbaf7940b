package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/events"
	"github.com/codexgate/codexgate/internal/metrics"
)

// ErrNoActivePlan is returned by Debit and CheckLimit when the user holds no
// active plan.
var ErrNoActivePlan = errors.New("plan: no active plan")

// Grant is the result of redeeming a code into a plan.
type Grant struct {
	Plan     *UserPlan `json:"plan"`
	Extended bool      `json:"extended"`
}

// Service owns the plan lifecycle: grants from redemptions, usage debits,
// and the expiry sweep.
type Service struct {
	repo      Repository
	publisher *events.Publisher
}

func NewService(repo Repository, publisher *events.Publisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// Grant turns a consumed redemption code into a plan. A same-type active
// plan is extended in place: the limit grows by tokenLimit, the expiry moves
// forward one plan period from its previous value, and tokens_used is left
// alone. An active plan of a different type is replaced: deactivated, with a
// fresh plan starting now.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, planType Type, tokenLimit int64) (*Grant, error) {
	if !planType.Valid() {
		return nil, fmt.Errorf("plan: invalid plan type %q", planType)
	}

	active, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if active != nil && active.Type == planType {
		extended, err := s.repo.Extend(ctx, active.ID, tokenLimit, planType.Extend(active.ExpiresAt))
		if err != nil {
			return nil, err
		}
		if extended != nil {
			metrics.PlanGrantsTotal.WithLabelValues("extended").Inc()
			slog.Info("plan extended", "user_id", userID, "plan_id", extended.ID,
				"plan_type", planType, "token_limit", extended.TokenLimit, "expires_at", extended.ExpiresAt)
			s.publisher.PlanChanged(ctx, events.PlanEvent{
				UserID:    userID.String(),
				PlanType:  string(planType),
				Mode:      "extended",
				Timestamp: time.Now().UTC(),
			})
			return &Grant{Plan: extended, Extended: true}, nil
		}
		// The plan was deactivated between lookup and extend; fall through
		// and create a fresh one.
		active = nil
	}

	mode := "created"
	if active != nil {
		// Different plan type: the new plan replaces the old one.
		if err := s.repo.Deactivate(ctx, active.ID); err != nil {
			return nil, err
		}
		mode = "replaced"
	}

	now := time.Now()
	p := &UserPlan{
		UserID:     userID,
		Type:       planType,
		TokenLimit: tokenLimit,
		TokensUsed: 0,
		StartsAt:   now,
		ExpiresAt:  planType.Extend(now),
		IsActive:   true,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	metrics.PlanGrantsTotal.WithLabelValues(mode).Inc()
	slog.Info("plan granted", "user_id", userID, "plan_id", p.ID,
		"plan_type", planType, "token_limit", tokenLimit, "mode", mode)
	s.publisher.PlanChanged(ctx, events.PlanEvent{
		UserID:    userID.String(),
		PlanType:  string(planType),
		Mode:      mode,
		Timestamp: now.UTC(),
	})
	return &Grant{Plan: p, Extended: false}, nil
}

// Debit adds tokens to the active plan's usage. The increment is advisory:
// tokens_used may exceed token_limit, and admission control is the rate
// limiter's job.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, tokens int64) error {
	active, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return err
	}
	if active == nil {
		return ErrNoActivePlan
	}
	return s.repo.IncrementTokensUsed(ctx, active.ID, tokens)
}

// GetActive returns the user's active plan, or nil when none exists.
func (s *Service) GetActive(ctx context.Context, userID uuid.UUID) (*UserPlan, error) {
	return s.repo.FindActiveByUser(ctx, userID)
}

// CheckLimit reports whether the active plan could absorb tokensRequested
// more tokens. Advisory only; Debit never enforces it.
func (s *Service) CheckLimit(ctx context.Context, userID uuid.UUID, tokensRequested int64) (bool, error) {
	active, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if active == nil {
		return false, ErrNoActivePlan
	}
	return active.TokensUsed+tokensRequested <= active.TokenLimit, nil
}

// Status assembles the API view of the user's plan.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	active, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return &Status{}, nil
	}
	t := active.Type
	exp := active.ExpiresAt
	return &Status{
		Type:            &t,
		TokenLimit:      active.TokenLimit,
		TokensUsed:      active.TokensUsed,
		TokensRemaining: active.TokensRemaining(),
		ExpiresAt:       &exp,
	}, nil
}

// DeactivateExpiredPlans is bookkeeping: FindActiveByUser already filters on
// expires_at, so running it late or twice is harmless.
func (s *Service) DeactivateExpiredPlans(ctx context.Context) (int64, error) {
	n, err := s.repo.DeactivateExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("deactivated expired plans", "count", n)
	}
	return n, nil
}
