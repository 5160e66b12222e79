// Package maintenance keeps the sqlite database healthy over long
// deployments: periodic optimize passes, WAL checkpoints, vacuuming, and
// pruning of old enrichment run reports.
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	appsettings "github.com/sonavault/sonavault/internal/settings"
)

const (
	defaultIntervalHours = 24
	defaultRunRetention  = 90
)

// Status holds database maintenance status information.
type Status struct {
	DBFileSize       int64  `json:"db_file_size"`
	WALFileSize      int64  `json:"wal_file_size"`
	PageCount        int64  `json:"page_count"`
	PageSize         int64  `json:"page_size"`
	LastOptimizeAt   string `json:"last_optimize_at,omitempty"`
	ScheduleEnabled  bool   `json:"schedule_enabled"`
	ScheduleInterval int    `json:"schedule_interval_hours"`
}

// Service provides database maintenance operations.
type Service struct {
	db       *sql.DB
	dbPath   string
	settings *appsettings.Service
	logger   *slog.Logger
}

// NewService creates a maintenance service.
func NewService(db *sql.DB, dbPath string, settings *appsettings.Service, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		dbPath:   dbPath,
		settings: settings,
		logger:   logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns current database maintenance status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		s.logger.Warn("reading page_count", "error", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		s.logger.Warn("reading page_size", "error", err)
	}

	st.LastOptimizeAt = s.settings.Get(ctx, "db_maintenance.last_optimize_at", "")
	st.ScheduleEnabled = s.settings.GetBool(ctx, "db_maintenance.enabled", true)
	st.ScheduleInterval = s.settings.GetInt(ctx, "db_maintenance.interval_hours", defaultIntervalHours)

	return st, nil
}

// Optimize runs PRAGMA optimize, checkpoints the WAL, and prunes old
// enrichment run reports.
func (s *Service) Optimize(ctx context.Context) error {
	s.logger.Info("running PRAGMA optimize")
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}

	s.logger.Info("running WAL checkpoint")
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	if pruned, err := s.PruneRuns(ctx); err != nil {
		s.logger.Warn("pruning enrichment runs", "error", err)
	} else if pruned > 0 {
		s.logger.Info("pruned old enrichment runs", slog.Int64("rows", pruned))
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.settings.Set(ctx, "db_maintenance.last_optimize_at", now); err != nil {
		s.logger.Warn("recording optimize timestamp", "error", err)
	}

	s.logger.Info("optimize complete")
	return nil
}

// PruneRuns deletes enrichment run reports older than the configured
// retention window (db_maintenance.run_retention_days, default 90).
func (s *Service) PruneRuns(ctx context.Context) (int64, error) {
	retention := s.settings.GetInt(ctx, "db_maintenance.run_retention_days", defaultRunRetention)
	cutoff := time.Now().UTC().AddDate(0, 0, -retention).Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM enrichment_runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old runs: %w", err)
	}
	return res.RowsAffected()
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	s.logger.Info("vacuum complete")
	return nil
}

// StartScheduler runs optimize on a fixed interval until the context is
// canceled. Deployments that disable db_maintenance.enabled skip the loop.
func (s *Service) StartScheduler(ctx context.Context) {
	if !s.settings.GetBool(ctx, "db_maintenance.enabled", true) {
		s.logger.Info("maintenance scheduler disabled")
		return
	}
	hours := s.settings.GetInt(ctx, "db_maintenance.interval_hours", defaultIntervalHours)
	interval := time.Duration(hours) * time.Hour

	s.logger.Info("maintenance scheduler started",
		slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Optimize(ctx); err != nil {
				s.logger.Error("scheduled optimize failed", slog.Any("error", err))
			}
		}
	}
}
