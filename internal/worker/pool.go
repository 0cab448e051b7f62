// Package worker runs the execution pool that drains the posting queue:
// claim an eligible item under a lease, refresh credentials, publish to
// the platform, and drive the item's state machine through retries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"autoposter/internal/config"
	"autoposter/internal/domain"
	"autoposter/internal/platform"
)

// ItemStore is the queue surface the pool consumes. Every mutation is a
// compare-and-set state transition; a lost race surfaces as
// domain.ErrClaimConflict and the worker simply moves on.
type ItemStore interface {
	// ClaimNext atomically claims the earliest eligible item of an
	// account that has no item currently posting. Returns nil when the
	// queue has nothing eligible.
	ClaimNext(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*domain.ContentItem, error)

	// MarkPosted transitions posting -> posted.
	MarkPosted(ctx context.Context, id int64, platformPostID string, postedAt time.Time) error

	// Reschedule transitions posting -> scheduled at a later time and
	// increments the retry counter.
	Reschedule(ctx context.Context, id int64, at time.Time, errMsg string) error

	// MarkFailed transitions posting -> failed.
	MarkFailed(ctx context.Context, id int64, errMsg string) error

	// ReleaseExpired returns items whose posting lease lapsed (crashed
	// worker) back to scheduled. Reports how many were released.
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
}

type AccountStore interface {
	GetByID(ctx context.Context, id int64) (*domain.SocialAccount, error)
}

// TokenProvider hands out an access token valid for at least one publish
// call, refreshing transparently. A revoked account surfaces as
// domain.ErrAccountInactive.
type TokenProvider interface {
	ValidToken(ctx context.Context, account *domain.SocialAccount) (string, error)
}

// FailureRecorder feeds permanent publish failures back into automation
// error accounting.
type FailureRecorder interface {
	RecordError(ctx context.Context, automationID int64, msg string, threshold int) (bool, error)
}

type EventPublisher interface {
	PublishItemEvent(ctx context.Context, item *domain.ContentItem, event string) error
}

type Pool struct {
	store       ItemStore
	accounts    AccountStore
	tokens      TokenProvider
	registry    *platform.Registry
	automations FailureRecorder
	publisher   EventPublisher
	logger      *slog.Logger
	cfg         config.WorkerConfig

	errorThreshold int
	busy           atomic.Int64
	now            func() time.Time
}

func NewPool(
	store ItemStore,
	accounts AccountStore,
	tokens TokenProvider,
	registry *platform.Registry,
	automations FailureRecorder,
	publisher EventPublisher,
	logger *slog.Logger,
	cfg config.WorkerConfig,
	errorThreshold int,
) *Pool {
	return &Pool{
		store:          store,
		accounts:       accounts,
		tokens:         tokens,
		registry:       registry,
		automations:    automations,
		publisher:      publisher,
		logger:         logger.With("component", "worker"),
		cfg:            cfg,
		errorThreshold: errorThreshold,
		now:            time.Now,
	}
}

// Run starts the workers and the lease reaper and blocks until ctx is
// cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool started",
		"workers", p.cfg.Count,
		"lease", p.cfg.ClaimLease,
		"poll_interval", p.cfg.PollInterval,
	)

	host, _ := os.Hostname()

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Count; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", host, i)

		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx, workerID)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reaperLoop(ctx)
	}()

	wg.Wait()
	p.logger.Info("worker pool stopped")
	return ctx.Err()
}

// Busy reports how many workers hold a claim right now, for the stats
// endpoint.
func (p *Pool) Busy() int64 {
	return p.busy.Load()
}

func (p *Pool) Size() int {
	return p.cfg.Count
}

func (p *Pool) workerLoop(ctx context.Context, workerID string) {
	logger := p.logger.With("worker_id", workerID)

	for {
		if ctx.Err() != nil {
			return
		}

		item, err := p.store.ClaimNext(ctx, workerID, p.now(), p.cfg.ClaimLease)
		if err != nil {
			if errors.Is(err, domain.ErrClaimConflict) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim failed", "error", err)
			p.sleep(ctx, p.cfg.PollInterval)
			continue
		}
		if item == nil {
			p.sleep(ctx, p.cfg.PollInterval)
			continue
		}

		p.busy.Add(1)
		p.process(ctx, logger, item)
		p.busy.Add(-1)
	}
}

// process executes one claimed item end to end. The item is in posting
// status and exclusively ours until we transition it or the lease
// expires.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, item *domain.ContentItem) {
	logger = logger.With("item_id", item.ID, "account_id", item.SocialAccountID)

	account, err := p.accounts.GetByID(ctx, item.SocialAccountID)
	if err != nil {
		p.retry(ctx, logger, item, fmt.Errorf("load account: %w", err))
		return
	}

	if !account.IsActive {
		// fail fast: no platform call for a disconnected account
		p.fail(ctx, logger, item, domain.ErrAccountInactive)
		return
	}

	token, err := p.tokens.ValidToken(ctx, account)
	if err != nil {
		if domain.IsPermanent(err) {
			p.fail(ctx, logger, item, err)
		} else {
			p.retry(ctx, logger, item, fmt.Errorf("token refresh: %w", err))
		}
		return
	}
	account.AccessToken = token

	adapter, err := p.registry.For(account.Platform)
	if err != nil {
		p.fail(ctx, logger, item, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	result, err := adapter.Publish(pubCtx, account, item.Content, item.Hashtags, item.MediaURLs)
	if err != nil {
		if domain.IsPermanent(err) {
			p.fail(ctx, logger, item, err)
		} else {
			p.retry(ctx, logger, item, err)
		}
		return
	}

	postedAt := p.now()
	if err := p.store.MarkPosted(ctx, item.ID, result.PostID, postedAt); err != nil {
		logger.Error("mark posted failed", "error", err)
		return
	}

	item.Status = domain.ContentPosted
	item.PostedAt = &postedAt
	item.PlatformPostID = &result.PostID
	p.publishEvent(ctx, logger, item, "posted")

	logger.Info("item posted",
		"platform", account.Platform,
		"platform_post_id", result.PostID,
		"retry_count", item.RetryCount,
	)
}

// retry re-enqueues a transiently failed item with backoff, or fails it
// terminally once the retry budget is spent. A platform-provided
// retry-after hint overrides the computed backoff verbatim.
func (p *Pool) retry(ctx context.Context, logger *slog.Logger, item *domain.ContentItem, cause error) {
	if item.RetryCount >= p.cfg.Retry.MaxAttempts {
		p.fail(ctx, logger, item, fmt.Errorf("retries exhausted after %d attempts: %w", item.RetryCount, cause))
		return
	}

	delay, fromPlatform := domain.RetryAfterHint(cause)
	if !fromPlatform {
		delay = backoffFor(p.cfg.Retry, item.RetryCount+1)
	}
	at := p.now().Add(delay)

	if err := p.store.Reschedule(ctx, item.ID, at, cause.Error()); err != nil {
		logger.Error("reschedule failed", "error", err)
		return
	}

	logger.Warn("transient failure, item rescheduled",
		"retry", item.RetryCount+1,
		"max_retries", p.cfg.Retry.MaxAttempts,
		"delay", delay,
		"retry_after_hint", fromPlatform,
		"error", cause,
	)
}

func (p *Pool) fail(ctx context.Context, logger *slog.Logger, item *domain.ContentItem, cause error) {
	if err := p.store.MarkFailed(ctx, item.ID, cause.Error()); err != nil {
		logger.Error("mark failed failed", "error", err)
		return
	}

	logger.Error("item failed permanently", "error", cause)

	msg := cause.Error()
	item.Status = domain.ContentFailed
	item.ErrorMessage = &msg
	p.publishEvent(ctx, logger, item, "failed")

	if item.AutomationID != nil {
		escalated, err := p.automations.RecordError(ctx, *item.AutomationID, cause.Error(), p.errorThreshold)
		if err != nil {
			logger.Error("record automation error failed", "error", err)
			return
		}
		if escalated {
			logger.Warn("automation escalated to error status", "automation_id", *item.AutomationID)
		}
	}
}

func (p *Pool) publishEvent(ctx context.Context, logger *slog.Logger, item *domain.ContentItem, event string) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishItemEvent(ctx, item, event); err != nil {
		logger.Warn("publish item event failed", "event", event, "error", err)
	}
}

// reaperLoop returns items whose posting lease expired (worker crash)
// back to scheduled so another worker completes them. Runs at half the
// lease interval.
func (p *Pool) reaperLoop(ctx context.Context) {
	interval := p.cfg.ClaimLease / 2
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := p.store.ReleaseExpired(ctx, p.now())
			if err != nil {
				p.logger.Error("lease reap failed", "error", err)
				continue
			}
			if released > 0 {
				p.logger.Warn("released expired claims", "count", released)
			}
		}
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
