package enrich

import (
	"context"
	"time"

	"github.com/sonavault/sonavault/internal/artist"
	"github.com/sonavault/sonavault/internal/settings"
)

// defaultCacheHours is how long an enriched blob stays fresh when no
// override is configured.
const defaultCacheHours = 24

// FreshnessPolicy decides whether a stored metadata blob is recent and rich
// enough to skip re-enrichment.
type FreshnessPolicy struct {
	settings *settings.Service
}

// NewFreshnessPolicy creates a freshness policy.
func NewFreshnessPolicy(settings *settings.Service) *FreshnessPolicy {
	return &FreshnessPolicy{settings: settings}
}

// CacheDuration returns the configured enrichment cache window.
func (p *FreshnessPolicy) CacheDuration(ctx context.Context) time.Duration {
	return p.settings.GetDuration(ctx, "enrichment.cache_hours", time.Hour, defaultCacheHours*time.Hour)
}

// Fresh reports whether the blob can be served from cache: it must exist,
// carry an enrichment timestamp, hold at least one meaningful enriched
// field, and be younger than the cache window. A dated but empty blob is
// stale on purpose, so degenerate runs never suppress retries.
func (p *FreshnessPolicy) Fresh(ctx context.Context, meta *artist.Metadata, now time.Time) bool {
	if meta == nil || meta.EnrichmentDate == nil {
		return false
	}
	if !meta.HasMeaningfulData() {
		return false
	}
	return now.Sub(*meta.EnrichmentDate) < p.CacheDuration(ctx)
}
