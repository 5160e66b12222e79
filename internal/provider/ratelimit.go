package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Default rate limits per source (requests per second). Unauthenticated
// sources get ~1 req/sec; authenticated APIs allow more.
var defaultRateLimits = map[Name]rate.Limit{
	NameSpotify:     10,
	NameLastFM:      5,
	NameMusicBrainz: 1,
	NameIMVDb:       2,
	NameAllMusic:    1,
	NameDiscogs:     1,
}

// RateLimiterMap holds one token bucket per source, created once at startup
// and shared by all adapter instances. Concurrent enrichments of different
// artists contend only for the real per-provider budget, not an adapter-level
// sleep.
type RateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[Name]*rate.Limiter
}

// NewRateLimiterMap creates all source rate limiters.
func NewRateLimiterMap() *RateLimiterMap {
	m := &RateLimiterMap{
		limiters: make(map[Name]*rate.Limiter, len(defaultRateLimits)),
	}
	for name, limit := range defaultRateLimits {
		m.limiters[name] = rate.NewLimiter(limit, 1)
	}
	return m
}

// Wait blocks until the limiter for the given source allows a request, or
// the context is canceled.
func (m *RateLimiterMap) Wait(ctx context.Context, name Name) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
