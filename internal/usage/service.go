package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/events"
	"github.com/codexgate/codexgate/internal/metrics"
	"github.com/codexgate/codexgate/internal/plan"
)

// ErrRecordFailed wraps a persistence failure. The caller should retry the
// report: nothing was recorded and nothing was debited.
var ErrRecordFailed = errors.New("usage record not persisted")

// Service records usage and serves aggregates.
type Service struct {
	repo      Repository
	plans     *plan.Service
	publisher *events.Publisher
	logger    *slog.Logger
}

func NewService(repo Repository, plans *plan.Service, publisher *events.Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, plans: plans, publisher: publisher, logger: logger}
}

// Record prices the reported tokens, persists the ledger entry, then debits
// the active plan. Persistence failures abort before any debit so the ledger
// and the plan cannot disagree in the user's disfavor.
func (s *Service) Record(ctx context.Context, userID uuid.UUID, req RecordRequest) (*Record, error) {
	rec := &Record{
		UserID:           userID,
		Model:            req.Model,
		Endpoint:         req.Endpoint,
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
		TotalTokens:      req.PromptTokens + req.CompletionTokens,
		Cost:             Cost(req.Model, req.PromptTokens, req.CompletionTokens),
		RequestID:        req.RequestID,
		Success:          req.Success,
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		s.logger.Error("usage record insert failed", "user_id", userID, "model", req.Model, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}

	// Debit is advisory: the record is already durable, so a debit failure
	// is logged and the report still succeeds.
	if err := s.plans.Debit(ctx, userID, rec.TotalTokens); err != nil {
		if errors.Is(err, plan.ErrNoActivePlan) {
			s.logger.Warn("usage recorded without an active plan", "user_id", userID, "tokens", rec.TotalTokens)
		} else {
			s.logger.Error("plan debit failed after usage record", "user_id", userID, "error", err)
		}
	}

	metrics.UsageTokensTotal.WithLabelValues(rec.Model).Add(float64(rec.TotalTokens))
	metrics.UsageCostTotal.WithLabelValues(rec.Model).Add(rec.Cost)

	s.publisher.UsageRecorded(ctx, events.UsageEvent{
		UserID:      userID.String(),
		Model:       rec.Model,
		TotalTokens: rec.TotalTokens,
		Cost:        rec.Cost,
		Timestamp:   time.Now().UTC(),
	})

	return rec, nil
}

// UserStats aggregates one user's usage since the given time.
func (s *Service) UserStats(ctx context.Context, userID uuid.UUID, since time.Time) (*Stats, error) {
	return s.repo.UserStats(ctx, userID, since)
}

// SystemStats aggregates all usage since the given time.
func (s *Service) SystemStats(ctx context.Context, since time.Time) (*SystemStats, error) {
	return s.repo.SystemStats(ctx, since)
}

// DailyBreakdown returns per-day aggregates for the last days days.
func (s *Service) DailyBreakdown(ctx context.Context, userID uuid.UUID, days int) ([]DailyStat, error) {
	if days <= 0 || days > 90 {
		days = 30
	}
	return s.repo.DailyBreakdown(ctx, userID, days)
}

// History returns a page of the user's raw ledger entries.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.History(ctx, userID, limit, offset)
}
