// Package settings provides typed access to the runtime key-value settings
// table. Enrichment thresholds, cache durations, and per-source priority
// ranks all live here so they can be changed without a restart.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Service reads and writes settings rows.
type Service struct {
	db *sql.DB
}

// NewService creates a settings service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Get returns the string value for key, or fallback when unset.
func (s *Service) Get(ctx context.Context, key, fallback string) string {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err != nil || v == "" {
		return fallback
	}
	return v
}

// GetBool returns the boolean value for key, or fallback when unset.
func (s *Service) GetBool(ctx context.Context, key string, fallback bool) bool {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return fallback
	}
	return v == "true" || v == "1"
}

// GetInt returns the integer value for key, or fallback when unset or invalid.
func (s *Service) GetInt(ctx context.Context, key string, fallback int) int {
	v := s.Get(ctx, key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetFloat returns the float value for key, or fallback when unset or invalid.
func (s *Service) GetFloat(ctx context.Context, key string, fallback float64) float64 {
	v := s.Get(ctx, key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// GetDuration reads an integer setting expressed in the given unit.
func (s *Service) GetDuration(ctx context.Context, key string, unit time.Duration, fallback time.Duration) time.Duration {
	v := s.GetInt(ctx, key, -1)
	if v < 0 {
		return fallback
	}
	return time.Duration(v) * unit
}

// Set upserts a setting value.
func (s *Service) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("storing setting %s: %w", key, err)
	}
	return nil
}

// Delete removes a setting row. Deleting an absent key is not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	return nil
}

// sourcePriorityKey returns the settings key holding a source's priority rank.
func sourcePriorityKey(source string) string {
	return fmt.Sprintf("enrichment.priority.%s", source)
}

// SourcePriority returns the user-configured priority rank (1 = highest) for
// a metadata source, or 0 when no rank is configured.
func (s *Service) SourcePriority(ctx context.Context, source string) int {
	rank := s.GetInt(ctx, sourcePriorityKey(source), 0)
	if rank < 0 {
		return 0
	}
	return rank
}

// SetSourcePriority stores the priority rank for a metadata source.
// Rank 0 removes the override.
func (s *Service) SetSourcePriority(ctx context.Context, source string, rank int) error {
	if rank <= 0 {
		return s.Delete(ctx, sourcePriorityKey(source))
	}
	return s.Set(ctx, sourcePriorityKey(source), strconv.Itoa(rank))
}

// SourcePriorities returns all configured source priority ranks keyed by
// source name.
func (s *Service) SourcePriorities(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE key LIKE 'enrichment.priority.%'`)
	if err != nil {
		return nil, fmt.Errorf("listing source priorities: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	ranks := make(map[string]int)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning priority row: %w", err)
		}
		rank, err := strconv.Atoi(value)
		if err != nil || rank <= 0 {
			continue
		}
		ranks[key[len("enrichment.priority."):]] = rank
	}
	return ranks, rows.Err()
}
