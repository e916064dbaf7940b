package plan

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically flips is_active on expired plans. It is idempotent
// and safe to run in every process instance.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

// Start runs the sweep loop. Blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("plan sweeper started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			if _, err := s.svc.DeactivateExpiredPlans(ctx); err != nil {
				slog.Warn("plan sweep failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("plan sweeper stopped")
			return
		}
	}
}
