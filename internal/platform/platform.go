// Package platform defines the capability set every social network
// adapter implements and the registry used to dispatch on a platform
// value. Concrete wire formats live in the per-platform files.
package platform

import (
	"context"
	"fmt"

	"autoposter/internal/domain"
)

// PublishResult is what a successful publish returns.
type PublishResult struct {
	PostID string
	URL    string
}

// Adapter is the uniform capability set of one social network. Publish
// failures must be classified through domain.PublishError so the worker
// pool can tell transient from permanent. FetchEngagement is consumed by
// the analytics pipeline, not by the posting path.
type Adapter interface {
	Platform() domain.Platform
	Publish(ctx context.Context, account *domain.SocialAccount, text string, hashtags, mediaURLs []string) (*PublishResult, error)
	FetchEngagement(ctx context.Context, account *domain.SocialAccount, postID string) (map[string]any, error)
}

// Registry maps platform values to adapters.
type Registry struct {
	adapters map[domain.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Platform]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Platform()] = a
}

// For returns the adapter for a platform. A missing adapter is a
// permanent failure: retrying cannot make an unsupported platform work.
func (r *Registry) For(p domain.Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, domain.Permanent(fmt.Errorf("no adapter registered for platform %q", p))
	}
	return a, nil
}
