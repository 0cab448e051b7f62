package domain

import "time"

type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformReddit    Platform = "reddit"
)

// SocialAccount holds one connected platform account and its OAuth
// credentials. Tokens are mutated exclusively by the token manager; an
// account whose refresh token is revoked is marked inactive and all of
// its queued items fail fast without contacting the platform.
type SocialAccount struct {
	ID             int64
	UserID         int64
	Platform       Platform
	PlatformUserID string
	Username       string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	IsActive       bool
	CreatedAt      time.Time
}
