package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the atomic counter / key-value backend shared by the rate-limit
// counters and the generic admin cache. The two use different key namespaces
// over the same interface.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	// IncrBy atomically adds delta to the counter at key and returns the new
	// value. When the increment creates the key, ttl is applied; an existing
	// key keeps its remaining TTL.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// TTL returns the remaining lifetime of key, or a negative duration when
	// the key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
