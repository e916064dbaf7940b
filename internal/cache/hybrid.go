package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codexgate/codexgate/internal/metrics"
)

// Hybrid serves from the primary (networked) store and transparently degrades
// to the in-process memory store when the primary fails. Callers never see a
// backend outage as an error on the cache path.
type Hybrid struct {
	primary  Store
	fallback *MemoryStore
}

var _ Store = (*Hybrid)(nil)

func NewHybrid(primary Store, fallback *MemoryStore) *Hybrid {
	return &Hybrid{primary: primary, fallback: fallback}
}

func (h *Hybrid) degraded(op string, err error) {
	metrics.CacheFallbacksTotal.WithLabelValues(op).Inc()
	slog.Warn("cache: primary backend failed, using memory fallback", "op", op, "error", err)
}

func (h *Hybrid) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := h.primary.Set(ctx, key, value, ttl); err != nil {
		h.degraded("set", err)
		return h.fallback.Set(ctx, key, value, ttl)
	}
	return nil
}

// Get consults the fallback on primary error and on primary miss: a value
// written to memory during an outage stays readable after the primary
// recovers.
func (h *Hybrid) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := h.primary.Get(ctx, key)
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, ErrNotFound) {
		h.degraded("get", err)
	}
	return h.fallback.Get(ctx, key)
}

func (h *Hybrid) Has(ctx context.Context, key string) (bool, error) {
	ok, err := h.primary.Has(ctx, key)
	if err != nil {
		h.degraded("has", err)
		return h.fallback.Has(ctx, key)
	}
	if ok {
		return true, nil
	}
	return h.fallback.Has(ctx, key)
}

// Delete removes the key from both stores so a fallback copy cannot
// resurrect a deleted value.
func (h *Hybrid) Delete(ctx context.Context, key string) (bool, error) {
	deleted := false
	if ok, err := h.primary.Delete(ctx, key); err != nil {
		h.degraded("delete", err)
	} else if ok {
		deleted = true
	}
	if ok, _ := h.fallback.Delete(ctx, key); ok {
		deleted = true
	}
	return deleted, nil
}

func (h *Hybrid) Clear(ctx context.Context) error {
	if err := h.primary.Clear(ctx); err != nil {
		h.degraded("clear", err)
	}
	return h.fallback.Clear(ctx)
}

func (h *Hybrid) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := h.primary.Keys(ctx, pattern)
	if err != nil {
		h.degraded("keys", err)
		return h.fallback.Keys(ctx, pattern)
	}
	return keys, nil
}

func (h *Hybrid) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	v, err := h.primary.IncrBy(ctx, key, delta, ttl)
	if err != nil {
		h.degraded("incrby", err)
		return h.fallback.IncrBy(ctx, key, delta, ttl)
	}
	return v, nil
}

func (h *Hybrid) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := h.primary.TTL(ctx, key)
	if err != nil {
		h.degraded("ttl", err)
		return h.fallback.TTL(ctx, key)
	}
	return d, nil
}

// Stats describes the hybrid cache for the admin surface.
type Stats struct {
	MemoryKeys     int  `json:"memory_keys"`
	PrimaryHealthy bool `json:"primary_healthy"`
}

func (h *Hybrid) Stats(ctx context.Context) Stats {
	_, err := h.primary.Has(ctx, "cachestats:probe")
	return Stats{
		MemoryKeys:     h.fallback.Len(),
		PrimaryHealthy: err == nil,
	}
}
