package enrich

import (
	"context"
	"testing"
)

func TestScheduler_DisabledSkipsStartup(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	if err := f.settings.Set(ctx, "enrichment.auto_enabled", "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s := NewScheduler(f.validator, f.settings, testLogger())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.cron != nil {
		t.Error("disabled scheduler should not build a cron loop")
	}
	s.Stop()
}

func TestScheduler_BadSpec(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	if err := f.settings.Set(ctx, "enrichment.auto_schedule", "not a cron spec"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s := NewScheduler(f.validator, f.settings, testLogger())
	if err := s.Start(ctx); err == nil {
		t.Error("invalid cron expression should fail startup")
		s.Stop()
	}
}

func TestScheduler_StartStop(t *testing.T) {
	f := setupOrchestrator(t)
	s := NewScheduler(f.validator, f.settings, testLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.cron == nil {
		t.Fatal("enabled scheduler should run a cron loop")
	}
	s.Stop()
}
