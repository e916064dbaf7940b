package usage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexgate/codexgate/internal/plan"
)

type fakeRepository struct {
	records   []*Record
	insertErr error
}

func (f *fakeRepository) Insert(_ context.Context, r *Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	cp := *r
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeRepository) UserStats(_ context.Context, userID uuid.UUID, since time.Time) (*Stats, error) {
	var s Stats
	for _, r := range f.records {
		if r.UserID != userID || r.CreatedAt.Before(since) {
			continue
		}
		s.TotalRequests++
		s.PromptTokens += r.PromptTokens
		s.CompletionTokens += r.CompletionTokens
		s.TotalTokens += r.TotalTokens
		s.TotalCost += r.Cost
	}
	return &s, nil
}

func (f *fakeRepository) SystemStats(_ context.Context, _ time.Time) (*SystemStats, error) {
	return &SystemStats{}, nil
}

func (f *fakeRepository) DailyBreakdown(_ context.Context, _ uuid.UUID, _ int) ([]DailyStat, error) {
	return nil, nil
}

func (f *fakeRepository) History(_ context.Context, userID uuid.UUID, limit, offset int) ([]*Record, int64, error) {
	var out []*Record
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, int64(len(out)), nil
}

type fakePlanRepository struct {
	plans map[uuid.UUID]*plan.UserPlan
}

func newFakePlanRepository() *fakePlanRepository {
	return &fakePlanRepository{plans: make(map[uuid.UUID]*plan.UserPlan)}
}

func (f *fakePlanRepository) Create(_ context.Context, p *plan.UserPlan) error {
	p.ID = uuid.New()
	cp := *p
	f.plans[p.ID] = &cp
	return nil
}

func (f *fakePlanRepository) FindActiveByUser(_ context.Context, userID uuid.UUID) (*plan.UserPlan, error) {
	for _, p := range f.plans {
		if p.UserID == userID && p.IsActive && p.ExpiresAt.After(time.Now()) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePlanRepository) Extend(_ context.Context, _ uuid.UUID, _ int64, _ time.Time) (*plan.UserPlan, error) {
	return nil, nil
}

func (f *fakePlanRepository) IncrementTokensUsed(_ context.Context, id uuid.UUID, tokens int64) error {
	if p, ok := f.plans[id]; ok {
		p.TokensUsed += tokens
	}
	return nil
}

func (f *fakePlanRepository) Deactivate(_ context.Context, _ uuid.UUID) error { return nil }

func (f *fakePlanRepository) DeactivateExpired(_ context.Context) (int64, error) { return 0, nil }

func newTestService(repo Repository, planRepo plan.Repository) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, plan.NewService(planRepo, nil), nil, logger)
}

func TestRecord_PersistsAndDebits(t *testing.T) {
	repo := &fakeRepository{}
	planRepo := newFakePlanRepository()
	planSvc := plan.NewService(planRepo, nil)
	svc := newTestService(repo, planRepo)
	ctx := context.Background()
	userID := uuid.New()

	_, err := planSvc.Grant(ctx, userID, plan.TypeDaily, 10000)
	require.NoError(t, err)

	rec, err := svc.Record(ctx, userID, RecordRequest{
		Model:            "gpt-4o-mini",
		PromptTokens:     100,
		CompletionTokens: 50,
		RequestID:        "req-abc123",
		Success:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), rec.TotalTokens)
	assert.InDelta(t, 100*0.00015/1000+50*0.0006/1000, rec.Cost, 1e-12)
	require.Len(t, repo.records, 1)
	assert.Equal(t, "req-abc123", repo.records[0].RequestID)
	assert.True(t, repo.records[0].Success)

	active, err := planSvc.GetActive(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), active.TokensUsed)
}

func TestRecord_InsertFailureAbortsDebit(t *testing.T) {
	repo := &fakeRepository{insertErr: errors.New("connection refused")}
	planRepo := newFakePlanRepository()
	planSvc := plan.NewService(planRepo, nil)
	svc := newTestService(repo, planRepo)
	ctx := context.Background()
	userID := uuid.New()

	_, err := planSvc.Grant(ctx, userID, plan.TypeDaily, 10000)
	require.NoError(t, err)

	_, err = svc.Record(ctx, userID, RecordRequest{Model: "gpt-4o", PromptTokens: 10})
	assert.ErrorIs(t, err, ErrRecordFailed)

	active, err := planSvc.GetActive(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, active.TokensUsed)
}

func TestRecord_SucceedsWithoutActivePlan(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(repo, newFakePlanRepository())

	rec, err := svc.Record(context.Background(), uuid.New(), RecordRequest{
		Model:        "gpt-3.5-turbo",
		PromptTokens: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), rec.TotalTokens)
	assert.Len(t, repo.records, 1)
}

func TestUserStats(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(repo, newFakePlanRepository())
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, userID, RecordRequest{Model: "gpt-4o", PromptTokens: 100, CompletionTokens: 100})
		require.NoError(t, err)
	}

	stats, err := svc.UserStats(ctx, userID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(600), stats.TotalTokens)
}
