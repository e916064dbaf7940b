package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codexgate/codexgate/internal/auth"
	"github.com/codexgate/codexgate/internal/metrics"
)

const (
	requestKeyPrefix = "rate_limit:requests:"
	tokenKeyPrefix   = "rate_limit:tokens:"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed           bool
	Reason            string // "requests" or "tokens" when rejected
	RequestsRemaining int
	RequestResetAt    time.Time
	TokensRemaining   int64
	TokenResetAt      time.Time
}

// Limiter enforces the dual-window budget: a short per-role request window
// and a 24h token window. Both sub-checks and both increments happen in one
// Lua script so two concurrent calls cannot both spend the same remaining
// budget.
type Limiter struct {
	rdb    redis.Cmdable
	limits Limits
}

func New(rdb redis.Cmdable, limits Limits) *Limiter {
	return &Limiter{rdb: rdb, limits: limits}
}

// admitScript checks both windows and increments both counters only when
// both checks pass. A rejection leaves both counters untouched, keeping the
// windows independent. TTLs are applied only when an increment creates a
// key, so established windows keep their reset times.
var admitScript = redis.NewScript(`
local req = tonumber(redis.call('GET', KEYS[1]) or '0')
local tok = tonumber(redis.call('GET', KEYS[2]) or '0')
local max_req = tonumber(ARGV[1])
local req_win = tonumber(ARGV[2])
local max_tok = tonumber(ARGV[3])
local tok_win = tonumber(ARGV[4])
local n = tonumber(ARGV[5])

local reason = ''
if req >= max_req then
  reason = 'requests'
elseif tok + n > max_tok then
  reason = 'tokens'
else
  req = redis.call('INCR', KEYS[1])
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], req_win)
  end
  if n > 0 then
    tok = redis.call('INCRBY', KEYS[2], n)
    if redis.call('PTTL', KEYS[2]) < 0 then
      redis.call('PEXPIRE', KEYS[2], tok_win)
    end
  end
end

return {reason, req, tok, redis.call('PTTL', KEYS[1]), redis.call('PTTL', KEYS[2])}
`)

// CheckAndConsume admits or rejects a call that wants tokensRequested tokens.
// If the counter store is unreachable the limiter fails open: the call is
// admitted, a warning is logged, and the full budget is reported.
func (l *Limiter) CheckAndConsume(ctx context.Context, userID string, role auth.Role, tokensRequested int64) Decision {
	limit := l.limits.ForRole(role)
	now := time.Now()

	res, err := admitScript.Run(ctx, l.rdb,
		[]string{requestKeyPrefix + userID, tokenKeyPrefix + userID},
		limit.MaxRequests,
		limit.RequestWindow.Milliseconds(),
		limit.MaxTokens,
		tokenWindow.Milliseconds(),
		tokensRequested,
	).Slice()
	if err != nil {
		slog.Warn("rate limiter: counter store unreachable, failing open",
			"user_id", userID, "error", err)
		metrics.RateLimiterFailOpenTotal.Inc()
		return Decision{
			Allowed:           true,
			RequestsRemaining: limit.MaxRequests,
			RequestResetAt:    now.Add(limit.RequestWindow),
			TokensRemaining:   limit.MaxTokens,
			TokenResetAt:      now.Add(tokenWindow),
		}
	}

	reason, _ := res[0].(string)
	reqCount := toInt64(res[1])
	tokCount := toInt64(res[2])

	d := Decision{
		Allowed:           reason == "",
		Reason:            reason,
		RequestsRemaining: clampInt(int64(limit.MaxRequests) - reqCount),
		RequestResetAt:    resetAt(now, toInt64(res[3]), limit.RequestWindow),
		TokensRemaining:   clampInt64(limit.MaxTokens - tokCount),
		TokenResetAt:      resetAt(now, toInt64(res[4]), tokenWindow),
	}

	outcome := "allowed"
	if !d.Allowed {
		outcome = "rejected_" + d.Reason
	}
	metrics.AdmissionsTotal.WithLabelValues(string(role), outcome).Inc()
	return d
}

// PeekRemaining reports the current budget without consuming any of it.
func (l *Limiter) PeekRemaining(ctx context.Context, userID string, role auth.Role) Decision {
	limit := l.limits.ForRole(role)
	now := time.Now()

	pipe := l.rdb.Pipeline()
	reqCmd := pipe.Get(ctx, requestKeyPrefix+userID)
	tokCmd := pipe.Get(ctx, tokenKeyPrefix+userID)
	reqTTLCmd := pipe.PTTL(ctx, requestKeyPrefix+userID)
	tokTTLCmd := pipe.PTTL(ctx, tokenKeyPrefix+userID)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		slog.Warn("rate limiter: peek failed, reporting full budget",
			"user_id", userID, "error", err)
		return Decision{
			Allowed:           true,
			RequestsRemaining: limit.MaxRequests,
			RequestResetAt:    now.Add(limit.RequestWindow),
			TokensRemaining:   limit.MaxTokens,
			TokenResetAt:      now.Add(tokenWindow),
		}
	}

	reqCount, _ := reqCmd.Int64()
	tokCount, _ := tokCmd.Int64()

	return Decision{
		Allowed:           true,
		RequestsRemaining: clampInt(int64(limit.MaxRequests) - reqCount),
		RequestResetAt:    resetAtDur(now, reqTTLCmd.Val(), limit.RequestWindow),
		TokensRemaining:   clampInt64(limit.MaxTokens - tokCount),
		TokenResetAt:      resetAtDur(now, tokTTLCmd.Val(), tokenWindow),
	}
}

func resetAt(now time.Time, ttlMs int64, window time.Duration) time.Time {
	if ttlMs > 0 {
		return now.Add(time.Duration(ttlMs) * time.Millisecond)
	}
	return now.Add(window)
}

func resetAtDur(now time.Time, ttl time.Duration, window time.Duration) time.Time {
	if ttl > 0 {
		return now.Add(ttl)
	}
	return now.Add(window)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		var out int64
		fmt.Sscan(n, &out)
		return out
	default:
		return 0
	}
}

func clampInt(v int64) int {
	if v < 0 {
		return 0
	}
	return int(v)
}

func clampInt64(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
