package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClaimConflict signals that a compare-and-set transition lost a
	// race with another worker. Not an error condition; the loser moves on.
	ErrClaimConflict = errors.New("item claimed by another worker")

	// ErrAlreadyPosting is returned when cancellation races an in-flight
	// claim. The attempt completes; publish is not revocable.
	ErrAlreadyPosting = errors.New("item is already posting")

	// ErrItemFinal is returned when cancellation targets an item in a
	// final status. A posted or failed item never changes again.
	ErrItemFinal = errors.New("item is in a final status")

	// ErrAccountInactive makes queued items for a disconnected account
	// fail fast without a platform call.
	ErrAccountInactive = errors.New("social account is inactive")
)

// GenerationError wraps a content generator failure. Repeated generation
// failures escalate the automation to error status.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("content generation: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PublishError classifies a platform publish failure as transient
// (retried with backoff) or permanent (item fails immediately).
// RetryAfter, when set by a rate-limited platform, overrides the
// computed backoff verbatim.
type PublishError struct {
	Permanent  bool
	RetryAfter time.Duration
	Err        error
}

func (e *PublishError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("publish (%s): %v", kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Transient creates a retryable publish error.
func Transient(err error) *PublishError {
	return &PublishError{Err: err}
}

// RateLimited creates a retryable publish error carrying the platform's
// retry-after hint.
func RateLimited(err error, retryAfter time.Duration) *PublishError {
	return &PublishError{Err: err, RetryAfter: retryAfter}
}

// Permanent creates a non-retryable publish error.
func Permanent(err error) *PublishError {
	return &PublishError{Permanent: true, Err: err}
}

// IsPermanent reports whether err should skip the retry path entirely.
// Auth failures and inactive accounts are permanent by definition.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrAccountInactive) {
		return true
	}
	var pe *PublishError
	return errors.As(err, &pe) && pe.Permanent
}

// RetryAfterHint extracts a platform-provided retry-after duration, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var pe *PublishError
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		return pe.RetryAfter, true
	}
	return 0, false
}
