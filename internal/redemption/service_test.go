package redemption

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexgate/codexgate/internal/plan"
)

type fakeRepository struct {
	codes map[string]*Code
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{codes: make(map[string]*Code)}
}

func (f *fakeRepository) Create(_ context.Context, c *Code) error {
	if _, exists := f.codes[c.Code]; exists {
		return errDuplicate
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	cp := *c
	f.codes[c.Code] = &cp
	return nil
}

func (f *fakeRepository) CreateBatch(ctx context.Context, codes []*Code) error {
	for _, c := range codes {
		if err := f.Create(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepository) FindByCode(_ context.Context, code string) (*Code, error) {
	c, ok := f.codes[code]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepository) Claim(_ context.Context, code string, userID uuid.UUID) (*Code, error) {
	c, ok := f.codes[code]
	if !ok || c.IsUsed {
		return nil, nil
	}
	now := time.Now()
	c.IsUsed = true
	c.UsedBy = &userID
	c.UsedAt = &now
	cp := *c
	return &cp, nil
}

func (f *fakeRepository) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	for key, c := range f.codes {
		if c.ID == id {
			delete(f.codes, key)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) List(_ context.Context, filter ListFilter) ([]*Code, int64, error) {
	var out []*Code
	for _, c := range f.codes {
		cp := *c
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

var errDuplicate = &duplicateError{}

type duplicateError struct{}

func (*duplicateError) Error() string { return "duplicate code" }

type fakePlanRepository struct {
	plans map[uuid.UUID]*plan.UserPlan
}

func newFakePlanRepository() *fakePlanRepository {
	return &fakePlanRepository{plans: make(map[uuid.UUID]*plan.UserPlan)}
}

func (f *fakePlanRepository) Create(_ context.Context, p *plan.UserPlan) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
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

func (f *fakePlanRepository) Extend(_ context.Context, id uuid.UUID, addTokens int64, newExpiresAt time.Time) (*plan.UserPlan, error) {
	p, ok := f.plans[id]
	if !ok || !p.IsActive {
		return nil, nil
	}
	p.TokenLimit += addTokens
	p.ExpiresAt = newExpiresAt
	cp := *p
	return &cp, nil
}

func (f *fakePlanRepository) IncrementTokensUsed(_ context.Context, id uuid.UUID, tokens int64) error {
	if p, ok := f.plans[id]; ok {
		p.TokensUsed += tokens
	}
	return nil
}

func (f *fakePlanRepository) Deactivate(_ context.Context, id uuid.UUID) error {
	if p, ok := f.plans[id]; ok {
		p.IsActive = false
	}
	return nil
}

func (f *fakePlanRepository) DeactivateExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func newTestService(repo Repository) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, plan.NewService(newFakePlanRepository(), nil), nil, logger)
}

func seedCode(t *testing.T, repo *fakeRepository, code string, planType plan.Type, limit int64, expiresAt *time.Time) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &Code{
		Code:       code,
		PlanType:   planType,
		TokenLimit: limit,
		ExpiresAt:  expiresAt,
	}))
}

func TestRedeem_Success(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	seedCode(t, repo, "WELCOME2024", plan.TypeDaily, 10000, nil)
	userID := uuid.New()

	grant, err := svc.Redeem(context.Background(), userID, "WELCOME2024")
	require.NoError(t, err)
	assert.False(t, grant.Extended)
	assert.Equal(t, plan.TypeDaily, grant.Plan.Type)
	assert.Equal(t, int64(10000), grant.Plan.TokenLimit)

	stored, err := repo.FindByCode(context.Background(), "WELCOME2024")
	require.NoError(t, err)
	assert.True(t, stored.IsUsed)
	require.NotNil(t, stored.UsedBy)
	assert.Equal(t, userID, *stored.UsedBy)
}

func TestRedeem_CanonicalizesInput(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	seedCode(t, repo, "WELCOME2024", plan.TypeDaily, 10000, nil)

	_, err := svc.Redeem(context.Background(), uuid.New(), "  welcome2024 ")
	require.NoError(t, err)
}

func TestRedeem_InvalidCode(t *testing.T) {
	svc := newTestService(newFakeRepository())

	_, err := svc.Redeem(context.Background(), uuid.New(), "NOSUCHCODE")
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.Redeem(context.Background(), uuid.New(), "   ")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestRedeem_AlreadyUsed(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	seedCode(t, repo, "ONESHOT", plan.TypeWeekly, 50000, nil)

	_, err := svc.Redeem(context.Background(), uuid.New(), "ONESHOT")
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), uuid.New(), "ONESHOT")
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestRedeem_ExpiredCodeStaysUnused(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	past := time.Now().Add(-time.Hour)
	seedCode(t, repo, "OLDCODE", plan.TypeDaily, 10000, &past)

	_, err := svc.Redeem(context.Background(), uuid.New(), "OLDCODE")
	assert.ErrorIs(t, err, ErrCodeExpired)

	// Rejection is not consumption: the ledger row is untouched.
	stored, err := repo.FindByCode(context.Background(), "OLDCODE")
	require.NoError(t, err)
	assert.False(t, stored.IsUsed)
	assert.Nil(t, stored.UsedBy)
}

func TestCreate_GeneratesCodeWhenBlank(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	c, err := svc.Create(context.Background(), CreateRequest{
		PlanType:   plan.TypeMonthly,
		TokenLimit: 200000,
	}, uuid.New())
	require.NoError(t, err)
	assert.Len(t, c.Code, generatedCodeLength)
	for _, r := range c.Code {
		assert.Contains(t, codeAlphabet, string(r))
	}
}

func TestCreate_CanonicalizesExplicitCode(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	c, err := svc.Create(context.Background(), CreateRequest{
		Code:       " promo-2026 ",
		PlanType:   plan.TypeDaily,
		TokenLimit: 10000,
	}, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "PROMO-2026", c.Code)
}

func TestCreate_RejectsBadExpiry(t *testing.T) {
	svc := newTestService(newFakeRepository())
	bad := "not-a-date"

	_, err := svc.Create(context.Background(), CreateRequest{
		PlanType:   plan.TypeDaily,
		TokenLimit: 10000,
		ExpiresAt:  &bad,
	}, uuid.New())
	assert.Error(t, err)
}

func TestCreateBatch(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	codes, err := svc.CreateBatch(context.Background(), BatchRequest{
		Count:      10,
		Prefix:     "launch-",
		PlanType:   plan.TypeWeekly,
		TokenLimit: 50000,
	}, uuid.New())
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]bool)
	for _, c := range codes {
		assert.True(t, strings.HasPrefix(c.Code, "LAUNCH-"))
		assert.False(t, seen[c.Code], "codes must be unique within a batch")
		seen[c.Code] = true
	}
}

func TestDelete_UnknownID(t *testing.T) {
	svc := newTestService(newFakeRepository())

	err := svc.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrInvalidCode)
}
