package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/sonavault/sonavault/internal/artist"
	"github.com/sonavault/sonavault/internal/database"
	"github.com/sonavault/sonavault/internal/settings"
)

func setupFreshness(t *testing.T) (*FreshnessPolicy, *settings.Service) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	svc := settings.NewService(db)
	return NewFreshnessPolicy(svc), svc
}

func datedBlob(age time.Duration, now time.Time) *artist.Metadata {
	at := now.Add(-age)
	return &artist.Metadata{
		EnrichmentDate: &at,
		Biography:      "something meaningful",
	}
}

func TestFresh(t *testing.T) {
	policy, _ := setupFreshness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if policy.Fresh(ctx, nil, now) {
		t.Error("nil blob should be stale")
	}
	if policy.Fresh(ctx, &artist.Metadata{Biography: "bio"}, now) {
		t.Error("undated blob should be stale")
	}
	if !policy.Fresh(ctx, datedBlob(time.Hour, now), now) {
		t.Error("hour-old meaningful blob should be fresh")
	}
	if policy.Fresh(ctx, datedBlob(25*time.Hour, now), now) {
		t.Error("blob older than the default 24h window should be stale")
	}
}

func TestFresh_DegenerateBlobIsStale(t *testing.T) {
	policy, _ := setupFreshness(t)
	now := time.Now().UTC()

	at := now.Add(-time.Minute)
	empty := &artist.Metadata{
		EnrichmentDate:  &at,
		ConfidenceScore: 0.9,
		SourcesUsed:     []string{"spotify"},
	}
	if policy.Fresh(context.Background(), empty, now) {
		t.Error("dated blob with no meaningful fields must not be fresh")
	}
}

func TestFresh_CacheDurationOverride(t *testing.T) {
	policy, svc := setupFreshness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := svc.Set(ctx, "enrichment.cache_hours", "48"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := policy.CacheDuration(ctx); got != 48*time.Hour {
		t.Errorf("CacheDuration = %v, want 48h", got)
	}
	if !policy.Fresh(ctx, datedBlob(30*time.Hour, now), now) {
		t.Error("30h-old blob should be fresh under a 48h window")
	}

	if err := svc.Set(ctx, "enrichment.cache_hours", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if policy.Fresh(ctx, datedBlob(2*time.Hour, now), now) {
		t.Error("2h-old blob should be stale under a 1h window")
	}
}
