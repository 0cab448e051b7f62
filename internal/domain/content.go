package domain

import (
	"encoding/json"
	"time"
)

type ContentStatus string

const (
	ContentScheduled ContentStatus = "scheduled"
	ContentPosting   ContentStatus = "posting"
	ContentPosted    ContentStatus = "posted"
	ContentFailed    ContentStatus = "failed"
	ContentCancelled ContentStatus = "cancelled"
)

// transitions is the content item state machine. failed -> scheduled is the
// retry re-enqueue; posting -> scheduled is lease expiry after a worker
// crash. posted and cancelled are terminal.
var transitions = map[ContentStatus][]ContentStatus{
	ContentScheduled: {ContentPosting, ContentCancelled},
	ContentPosting:   {ContentPosted, ContentFailed, ContentScheduled},
	ContentFailed:    {ContentScheduled},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to ContentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ContentItem is one concrete piece of content destined for one platform
// account at one time. Items are never deleted, only marked cancelled.
// While status is posting the item is exclusively claimed by one worker;
// the claim is lease-based (ClaimExpiresAt) so a crashed worker's item is
// released back to scheduled by the reaper.
type ContentItem struct {
	ID              int64
	UserID          int64
	AutomationID    *int64 // nil for directly scheduled content
	SocialAccountID int64
	Content         string
	Hashtags        []string
	MediaURLs       []string
	ScheduledFor    time.Time
	Status          ContentStatus
	PostedAt        *time.Time
	PlatformPostID  *string
	EngagementData  json.RawMessage // opaque, filled post-hoc by analytics
	ErrorMessage    *string
	RetryCount      int
	ClaimedBy       *string
	ClaimExpiresAt  *time.Time
	CreatedAt       time.Time
}
