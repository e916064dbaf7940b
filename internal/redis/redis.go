package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/codexgate/codexgate/internal/config"
)

// NewClient creates a Redis client. An unreachable Redis at startup is not
// fatal: the client is returned anyway so the limiter can fail open and the
// cache can serve from its memory fallback until Redis comes back.
func NewClient(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable at startup, running degraded", "addr", cfg.Addr(), "error", err)
		return client
	}

	slog.Info("connected to Redis", "addr", cfg.Addr())
	return client
}
