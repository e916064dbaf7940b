package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexgate/codexgate/internal/auth"
	"github.com/codexgate/codexgate/internal/config"
)

func testLimits() Limits {
	return NewLimits(config.LimitsConfig{
		User: config.RoleLimit{
			MaxRequests:   60,
			RequestWindow: 60 * time.Second,
			MaxTokens:     10000,
		},
		Admin: config.RoleLimit{
			MaxRequests:   120,
			RequestWindow: 60 * time.Second,
			MaxTokens:     50000,
		},
		SuperAdmin: config.RoleLimit{
			MaxRequests:   300,
			RequestWindow: 60 * time.Second,
			MaxTokens:     200000,
		},
	})
}

func setupLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, testLimits()), mr
}

func TestCheckAndConsume_UnderLimit(t *testing.T) {
	l, _ := setupLimiter(t)

	d := l.CheckAndConsume(context.Background(), "u1", auth.RoleUser, 100)
	assert.True(t, d.Allowed)
	assert.Equal(t, 59, d.RequestsRemaining)
	assert.Equal(t, int64(9900), d.TokensRemaining)
}

func TestCheckAndConsume_RequestWindowExhaustion(t *testing.T) {
	l, mr := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		d := l.CheckAndConsume(ctx, "u1", auth.RoleUser, 1)
		require.True(t, d.Allowed, "request %d should be admitted", i+1)
	}

	d := l.CheckAndConsume(ctx, "u1", auth.RoleUser, 1)
	assert.False(t, d.Allowed)
	assert.Equal(t, "requests", d.Reason)
	assert.Equal(t, 0, d.RequestsRemaining)

	// After the window elapses a new call is admitted and counters restart.
	mr.FastForward(61 * time.Second)
	d = l.CheckAndConsume(ctx, "u1", auth.RoleUser, 1)
	assert.True(t, d.Allowed)
	assert.Equal(t, 59, d.RequestsRemaining)
}

func TestCheckAndConsume_TokenBudgetIndependence(t *testing.T) {
	l, mr := setupLimiter(t)
	ctx := context.Background()

	// One admitted call consuming almost the whole token budget.
	d := l.CheckAndConsume(ctx, "u1", auth.RoleUser, 9999)
	require.True(t, d.Allowed)

	// Over token budget, under request budget: rejected without touching
	// the request counter.
	d = l.CheckAndConsume(ctx, "u1", auth.RoleUser, 500)
	assert.False(t, d.Allowed)
	assert.Equal(t, "tokens", d.Reason)

	got, err := mr.Get(requestKeyPrefix + "u1")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	// A call that fits the remaining token budget is still admitted.
	d = l.CheckAndConsume(ctx, "u1", auth.RoleUser, 1)
	assert.True(t, d.Allowed)
}

func TestCheckAndConsume_RejectionLeavesTokenCounter(t *testing.T) {
	l, mr := setupLimiter(t)
	ctx := context.Background()

	// Exhaust the request window with zero-token calls.
	for i := 0; i < 60; i++ {
		require.True(t, l.CheckAndConsume(ctx, "u1", auth.RoleUser, 0).Allowed)
	}

	d := l.CheckAndConsume(ctx, "u1", auth.RoleUser, 42)
	require.False(t, d.Allowed)
	assert.Equal(t, "requests", d.Reason)

	// The rejected call must not have spent tokens.
	assert.False(t, mr.Exists(tokenKeyPrefix+"u1"))
}

func TestCheckAndConsume_RoleTiers(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()

	d := l.CheckAndConsume(ctx, "a1", auth.RoleAdmin, 0)
	assert.Equal(t, 119, d.RequestsRemaining)
	assert.Equal(t, int64(50000), d.TokensRemaining)

	d = l.CheckAndConsume(ctx, "s1", auth.RoleSuperAdmin, 0)
	assert.Equal(t, 299, d.RequestsRemaining)

	// Unknown roles fall back to the user tier.
	d = l.CheckAndConsume(ctx, "x1", auth.Role("mystery"), 0)
	assert.Equal(t, 59, d.RequestsRemaining)
}

func TestCheckAndConsume_FailsOpen(t *testing.T) {
	l, mr := setupLimiter(t)
	mr.Close()

	d := l.CheckAndConsume(context.Background(), "u1", auth.RoleUser, 100)
	assert.True(t, d.Allowed)
	assert.Equal(t, 60, d.RequestsRemaining)
	assert.Equal(t, int64(10000), d.TokensRemaining)
}

func TestPeekRemaining_DoesNotConsume(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()

	require.True(t, l.CheckAndConsume(ctx, "u1", auth.RoleUser, 250).Allowed)

	for i := 0; i < 3; i++ {
		d := l.PeekRemaining(ctx, "u1", auth.RoleUser)
		assert.Equal(t, 59, d.RequestsRemaining)
		assert.Equal(t, int64(9750), d.TokensRemaining)
	}
}

func TestPeekRemaining_FreshCaller(t *testing.T) {
	l, _ := setupLimiter(t)

	d := l.PeekRemaining(context.Background(), "new", auth.RoleUser)
	assert.Equal(t, 60, d.RequestsRemaining)
	assert.Equal(t, int64(10000), d.TokensRemaining)
	assert.WithinDuration(t, time.Now().Add(60*time.Second), d.RequestResetAt, 2*time.Second)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), d.TokenResetAt, 2*time.Second)
}
