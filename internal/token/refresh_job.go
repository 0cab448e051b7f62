package token

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const maxConcurrentRefreshes = 5

// RefreshJob proactively refreshes tokens expiring inside the expiry
// window so the worker pool rarely has to refresh inline. It is run on
// a cron schedule from main.
type RefreshJob struct {
	store   AccountStore
	manager *Manager
	window  time.Duration
	logger  *slog.Logger
}

func NewRefreshJob(store AccountStore, manager *Manager, window time.Duration, logger *slog.Logger) *RefreshJob {
	return &RefreshJob{
		store:   store,
		manager: manager,
		window:  window,
		logger:  logger.With("component", "token_refresh_job"),
	}
}

// Run refreshes every active account whose token expires within the
// window. Accounts are refreshed concurrently behind a semaphore; one
// failing account never blocks the rest.
func (j *RefreshJob) Run(ctx context.Context) {
	accounts, err := j.store.ListExpiring(ctx, time.Now().Add(j.window))
	if err != nil {
		j.logger.Error("list expiring tokens failed", "error", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	j.logger.Info("refreshing expiring tokens", "count", len(accounts))

	sem := make(chan struct{}, maxConcurrentRefreshes)
	var wg sync.WaitGroup

	for _, account := range accounts {
		account := account
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := j.manager.Refresh(ctx, account); err != nil {
				j.logger.Warn("proactive refresh failed",
					"account_id", account.ID,
					"platform", account.Platform,
					"error", err,
				)
			}
		}()
	}

	wg.Wait()
}
