package enrich

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/sonavault/sonavault/internal/settings"
)

// defaultAutoSchedule runs automated enrichment nightly at 03:00.
const defaultAutoSchedule = "0 3 * * *"

// defaultAutoLimit caps how many candidates one scheduled run takes on.
const defaultAutoLimit = 25

// Scheduler drives periodic AutoEnrich runs from a cron expression stored
// in settings.
type Scheduler struct {
	validator *Validator
	settings  *settings.Service
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewScheduler creates a scheduler.
func NewScheduler(validator *Validator, settings *settings.Service, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		validator: validator,
		settings:  settings,
		logger:    logger.With(slog.String("component", "scheduler")),
	}
}

// Start registers the auto-enrich job and begins the cron loop. Disabled
// deployments (settings key enrichment.auto_enabled = false) skip startup.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.settings.GetBool(ctx, "enrichment.auto_enabled", true) {
		s.logger.Info("automated enrichment disabled")
		return nil
	}

	spec := s.settings.Get(ctx, "enrichment.auto_schedule", defaultAutoSchedule)
	s.cron = cron.New()
	_, err := s.cron.AddFunc(spec, func() {
		limit := s.settings.GetInt(ctx, "enrichment.auto_limit", defaultAutoLimit)
		s.logger.Info("scheduled enrichment starting", slog.Int("limit", limit))
		report := s.validator.AutoEnrich(ctx, limit)
		s.logger.Info("scheduled enrichment finished",
			slog.String("run_id", report.ID),
			slog.Int("candidates", report.CandidatesFound),
			slog.Int("enriched", report.Enriched),
			slog.Int("failed", report.Failed),
			slog.Duration("elapsed", report.Elapsed))
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("automated enrichment scheduled", slog.String("schedule", spec))
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
