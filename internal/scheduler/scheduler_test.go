package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"autoposter/internal/domain"
)

type countingSweeper struct {
	calls atomic.Int64
}

func (c *countingSweeper) Sweep(ctx context.Context) (*domain.SweepStats, error) {
	c.calls.Add(1)
	return &domain.SweepStats{}, nil
}

func TestScheduler_SweepsUntilCancelled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	sweeper := &countingSweeper{}

	s := New(sweeper, 10*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// immediate first sweep plus at least one tick
	assert.GreaterOrEqual(t, sweeper.calls.Load(), int64(2))
}
