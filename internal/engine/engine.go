// Package engine orchestrates automation runs: it evaluates which
// automations are due, asks the generator for content, and enqueues one
// content item per target platform for the worker pool to publish.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autoposter/internal/config"
	"autoposter/internal/domain"
	"autoposter/internal/schedule"
)

type Engine struct {
	automations AutomationStore
	items       ContentStore
	accounts    AccountStore
	generator   Generator
	publisher   EventPublisher
	tx          Transactor
	logger      *slog.Logger
	cfg         config.EngineConfig

	now func() time.Time
}

func New(
	automations AutomationStore,
	items ContentStore,
	accounts AccountStore,
	generator Generator,
	publisher EventPublisher,
	tx Transactor,
	logger *slog.Logger,
	cfg config.EngineConfig,
) *Engine {
	return &Engine{
		automations: automations,
		items:       items,
		accounts:    accounts,
		generator:   generator,
		publisher:   publisher,
		tx:          tx,
		logger:      logger.With("component", "engine"),
		cfg:         cfg,
		now:         time.Now,
	}
}

// Sweep runs one evaluation pass over all due automations. Each due
// automation is dispatched to its own goroutine, bounded by a semaphore,
// so one slow generation call never delays the others. Failures are
// isolated per automation; Sweep itself only fails when the due query
// does.
func (e *Engine) Sweep(ctx context.Context) (*domain.SweepStats, error) {
	start := e.now()

	due, err := e.automations.ListDue(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("list due automations: %w", err)
	}

	stats := &domain.SweepStats{Due: len(due)}
	if len(due) == 0 {
		stats.Duration = e.now().Sub(start)
		return stats, nil
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, e.cfg.MaxConcurrentGens)
	)

	for i := range due {
		automation := due[i]
		if !schedule.Due(&automation, start) {
			stats.Skipped++
			continue
		}

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			enqueued, skipped, err := e.runAutomation(ctx, &automation)

			mu.Lock()
			defer mu.Unlock()
			stats.Enqueued += enqueued
			stats.Skipped += skipped
			if err != nil {
				stats.Errors++
			} else {
				stats.Generated++
			}
		}()
	}

	wg.Wait()
	stats.Duration = e.now().Sub(start)

	e.logger.Info("sweep completed",
		"due", stats.Due,
		"generated", stats.Generated,
		"enqueued", stats.Enqueued,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

// runAutomation executes one due automation: generate content for every
// target platform, then enqueue the items and update run bookkeeping.
// Generation completes for all platforms before anything is enqueued,
// so a failure on one platform leaves the queue untouched and the whole
// run is retried on a later tick without duplicating the platforms that
// had already generated. A generation failure records a run error,
// escalating to error status past the threshold, and leaves
// last_run/next_run untouched.
func (e *Engine) runAutomation(ctx context.Context, a *domain.Automation) (enqueued, skipped int, err error) {
	now := e.now()
	logger := e.logger.With("automation_id", a.ID, "name", a.Name)

	type pending struct {
		platform domain.Platform
		item     *domain.ContentItem
	}
	batch := make([]pending, 0, len(a.Platforms))

	for _, p := range a.Platforms {
		account, err := e.accounts.FindActive(ctx, a.UserID, p)
		if err != nil {
			logger.Error("lookup account failed", "platform", p, "error", err)
			skipped++
			continue
		}
		if account == nil {
			logger.Warn("no active account for platform, skipping", "platform", p)
			skipped++
			continue
		}

		content, err := e.generator.Generate(ctx, e.buildRequest(a, p))
		if err != nil {
			genErr := &domain.GenerationError{Err: err}
			logger.Error("content generation failed", "platform", p, "error", genErr)

			escalated, recErr := e.automations.RecordError(ctx, a.ID, genErr.Error(), e.cfg.ErrorThreshold)
			if recErr != nil {
				logger.Error("record run error failed", "error", recErr)
			}
			if escalated {
				logger.Warn("automation escalated to error status",
					"error_count", a.ErrorCount+1,
					"threshold", e.cfg.ErrorThreshold,
				)
			}
			return 0, skipped, genErr
		}

		batch = append(batch, pending{platform: p, item: &domain.ContentItem{
			UserID:          a.UserID,
			AutomationID:    &a.ID,
			SocialAccountID: account.ID,
			Content:         content.Text,
			Hashtags:        content.Hashtags,
			ScheduledFor:    now.Add(e.cfg.PostingDelay),
			Status:          domain.ContentScheduled,
		}})
	}

	for _, pend := range batch {
		item := pend.item

		id, err := e.items.Create(ctx, item)
		if err != nil {
			logger.Error("enqueue content item failed", "platform", pend.platform, "error", err)
			skipped++
			continue
		}

		item.ID = id
		if e.publisher != nil {
			if err := e.publisher.PublishItemEvent(ctx, item, "scheduled"); err != nil {
				logger.Warn("publish scheduled event failed", "item_id", id, "error", err)
			}
		}

		logger.Debug("content item enqueued",
			"item_id", id,
			"platform", pend.platform,
			"scheduled_for", item.ScheduledFor,
		)
		enqueued++
	}

	anchor := now
	if a.LastRun != nil {
		anchor = *a.LastRun
	}
	nextRun, err := schedule.Next(a.PostingSchedule, anchor, now)
	if err != nil {
		logger.Error("compute next run failed", "error", err)
		if _, recErr := e.automations.RecordError(ctx, a.ID, err.Error(), e.cfg.ErrorThreshold); recErr != nil {
			logger.Error("record run error failed", "error", recErr)
		}
		return enqueued, skipped, err
	}

	if err := e.automations.MarkRun(ctx, a.ID, a.Version, now, nextRun); err != nil {
		// a concurrent user edit bumped the version; their next_run wins
		logger.Debug("run bookkeeping lost version race", "error", err)
		return enqueued, skipped, nil
	}

	logger.Info("automation ran",
		"enqueued", enqueued,
		"next_run", nextRun,
	)
	return enqueued, skipped, nil
}

func (e *Engine) buildRequest(a *domain.Automation, p domain.Platform) domain.GenerationRequest {
	return domain.GenerationRequest{
		Topic:          a.ContentSettings.Topic,
		Tone:           a.ContentSettings.Tone,
		ContentType:    a.ContentSettings.ContentType,
		TargetAudience: a.ContentSettings.TargetAudience,
		IncludeCTA:     a.ContentSettings.IncludeCTA,
		Platform:       p,
		AI:             a.AISettings,
		Hashtags:       a.HashtagSettings,
	}
}

// CancelItem removes a scheduled item from the queue before a worker
// claims it. If the item is already posting the in-flight attempt
// completes and the caller gets domain.ErrAlreadyPosting; a posted or
// failed item is final and yields domain.ErrItemFinal.
func (e *Engine) CancelItem(ctx context.Context, id int64) error {
	return e.items.Cancel(ctx, id)
}

// ResetAutomation is the user-initiated recovery from error status:
// error counters clear and evaluation resumes on the next tick.
func (e *Engine) ResetAutomation(ctx context.Context, id int64) error {
	a, err := e.automations.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load automation: %w", err)
	}

	now := e.now()
	anchor := now
	if a.LastRun != nil {
		anchor = *a.LastRun
	}
	nextRun, err := schedule.Next(a.PostingSchedule, anchor, now)
	if err != nil {
		return fmt.Errorf("compute next run: %w", err)
	}

	return e.automations.Reset(ctx, id, nextRun)
}

// DeleteAutomation removes an automation and cascade-cancels its
// still-scheduled queue entries in one transaction. Posted history is
// kept.
func (e *Engine) DeleteAutomation(ctx context.Context, id int64) error {
	run := func(ctx context.Context) error {
		cancelled, err := e.items.CancelByAutomation(ctx, id)
		if err != nil {
			return fmt.Errorf("cancel queued items: %w", err)
		}
		if cancelled > 0 {
			e.logger.Info("cancelled queued items for deleted automation",
				"automation_id", id,
				"count", cancelled,
			)
		}
		return e.automations.Delete(ctx, id)
	}

	if e.tx == nil {
		return run(ctx)
	}
	return e.tx.WithTransaction(ctx, run)
}
