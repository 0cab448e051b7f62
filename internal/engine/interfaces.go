package engine

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"autoposter/internal/domain"
)

// Generator produces post text and hashtags for one platform. The AI
// service behind it is an external collaborator.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedContent, error)
}

type AutomationStore interface {
	ListDue(ctx context.Context, now time.Time) ([]domain.Automation, error)
	GetByID(ctx context.Context, id int64) (*domain.Automation, error)

	// MarkRun records a successful run: last_run, next_run, run_count+1,
	// error_count back to zero. The update is compare-and-set on version
	// so it never clobbers a concurrent user edit.
	MarkRun(ctx context.Context, id, version int64, lastRun, nextRun time.Time) error

	// RecordError increments error_count and stores the message; once the
	// consecutive-failure threshold is reached the automation flips to
	// error status and reports escalated=true.
	RecordError(ctx context.Context, id int64, msg string, threshold int) (escalated bool, err error)

	// Reset is the user-initiated recovery from error status.
	Reset(ctx context.Context, id int64, nextRun time.Time) error

	Delete(ctx context.Context, id int64) error
	CountDue(ctx context.Context, now time.Time) (int64, error)
}

type ContentStore interface {
	Create(ctx context.Context, item *domain.ContentItem) (int64, error)

	// Cancel transitions scheduled -> cancelled. Returns
	// domain.ErrAlreadyPosting when a worker holds the item.
	Cancel(ctx context.Context, id int64) error

	CancelByAutomation(ctx context.Context, automationID int64) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.ContentStatus]int64, error)
}

type AccountStore interface {
	// FindActive returns nil when the user has no active account on the
	// platform.
	FindActive(ctx context.Context, userID int64, platform domain.Platform) (*domain.SocialAccount, error)
}

// EventPublisher emits content lifecycle events for the analytics
// pipeline.
type EventPublisher interface {
	PublishItemEvent(ctx context.Context, item *domain.ContentItem, event string) error
	Close() error
}

// Transactor runs fn atomically; store calls made with the ctx it
// passes join the same transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
