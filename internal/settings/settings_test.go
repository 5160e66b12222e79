package settings

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/sonavault/sonavault/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGetFallbacks(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	if got := svc.Get(ctx, "missing", "dflt"); got != "dflt" {
		t.Errorf("Get = %q, want dflt", got)
	}
	if got := svc.GetBool(ctx, "missing", true); !got {
		t.Error("GetBool fallback should be true")
	}
	if got := svc.GetInt(ctx, "missing", 7); got != 7 {
		t.Errorf("GetInt = %d, want 7", got)
	}
	if got := svc.GetDuration(ctx, "missing", time.Hour, 24*time.Hour); got != 24*time.Hour {
		t.Errorf("GetDuration = %v, want 24h", got)
	}
}

func TestSetAndGet(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	if err := svc.Set(ctx, "enrichment.cache_hours", "6"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := svc.GetInt(ctx, "enrichment.cache_hours", 24); got != 6 {
		t.Errorf("GetInt = %d, want 6", got)
	}
	if got := svc.GetDuration(ctx, "enrichment.cache_hours", time.Hour, 24*time.Hour); got != 6*time.Hour {
		t.Errorf("GetDuration = %v, want 6h", got)
	}

	// Upsert overwrites
	if err := svc.Set(ctx, "enrichment.cache_hours", "12"); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	if got := svc.GetInt(ctx, "enrichment.cache_hours", 24); got != 12 {
		t.Errorf("GetInt after upsert = %d, want 12", got)
	}
}

func TestGetInt_Invalid(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	if err := svc.Set(ctx, "bad", "not-a-number"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := svc.GetInt(ctx, "bad", 3); got != 3 {
		t.Errorf("GetInt = %d, want fallback 3", got)
	}
}

func TestSourcePriorities(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	if got := svc.SourcePriority(ctx, "spotify"); got != 0 {
		t.Errorf("SourcePriority unset = %d, want 0", got)
	}

	if err := svc.SetSourcePriority(ctx, "spotify", 1); err != nil {
		t.Fatalf("SetSourcePriority: %v", err)
	}
	if err := svc.SetSourcePriority(ctx, "lastfm", 3); err != nil {
		t.Fatalf("SetSourcePriority: %v", err)
	}

	if got := svc.SourcePriority(ctx, "spotify"); got != 1 {
		t.Errorf("SourcePriority = %d, want 1", got)
	}

	ranks, err := svc.SourcePriorities(ctx)
	if err != nil {
		t.Fatalf("SourcePriorities: %v", err)
	}
	if len(ranks) != 2 || ranks["spotify"] != 1 || ranks["lastfm"] != 3 {
		t.Errorf("SourcePriorities = %v", ranks)
	}

	// Rank 0 clears the override
	if err := svc.SetSourcePriority(ctx, "spotify", 0); err != nil {
		t.Fatalf("SetSourcePriority clear: %v", err)
	}
	if got := svc.SourcePriority(ctx, "spotify"); got != 0 {
		t.Errorf("SourcePriority after clear = %d, want 0", got)
	}
}
