package scheduler

import (
	"context"
	"log/slog"
	"time"

	"autoposter/internal/domain"
)

// Sweeper is the interface the scheduler drives each tick.
type Sweeper interface {
	Sweep(ctx context.Context) (*domain.SweepStats, error)
}

// Scheduler owns the periodic evaluation loop. It is an explicit
// component with a Start lifecycle rather than ambient global state, so
// tests can drive it with a cancelled context and a short interval.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
}

func New(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start runs sweeps until ctx is cancelled. The first sweep fires
// immediately so a restart picks up overdue automations without waiting
// a full tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := s.sweeper.Sweep(sweepCtx); err != nil {
		s.logger.Error("sweep failed", "error", err)
	}
}
