package enrich

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sonavault/sonavault/internal/artist"
	"github.com/sonavault/sonavault/internal/event"
	"github.com/sonavault/sonavault/internal/settings"
)

// Sub-score weights. They sum to 1.0; the blend is what the quality
// thresholds below are judged against.
const (
	weightIDCoverage = 0.35
	weightRichness   = 0.35
	weightFreshness  = 0.10
	weightConfidence = 0.20
)

// Default validation thresholds, each overridable through settings.
const (
	defaultMinConfidence = 0.5
	defaultMinQuality    = 0.4
	defaultMaxAgeDays    = 90
)

// ValidationResult is the outcome of inspecting one artist's metadata.
type ValidationResult struct {
	ArtistID        string   `json:"artist_id"`
	ArtistName      string   `json:"artist_name,omitempty"`
	Passed          bool     `json:"passed"`
	Confidence      float64  `json:"confidence"`
	QualityScore    float64  `json:"quality_score"`
	IDCoverage      float64  `json:"id_coverage"`
	Richness        float64  `json:"richness"`
	Freshness       float64  `json:"freshness"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	NeedsEnrichment bool     `json:"needs_enrichment"`
	Err             string   `json:"error,omitempty"`
}

// RunReport summarizes one automated enrichment batch.
type RunReport struct {
	ID                 string        `json:"id"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
	CandidatesFound    int           `json:"candidates_found"`
	Enriched           int           `json:"enriched"`
	Failed             int           `json:"failed"`
	ValidationFailures int           `json:"validation_failures"`
	AvgConfidenceDelta float64       `json:"avg_confidence_delta"`
	Elapsed            time.Duration `json:"elapsed"`
	Results            []Result      `json:"results,omitempty"`
}

// Validator inspects stored metadata quality and drives automated
// enrichment runs.
type Validator struct {
	artists      *artist.Service
	orchestrator *Orchestrator
	freshness    *FreshnessPolicy
	settings     *settings.Service
	bus          *event.Bus
	logger       *slog.Logger
	runs         runStore
}

// runStore persists batch reports. Satisfied by database.RunRecorder-style
// stores; nil disables persistence.
type runStore interface {
	SaveRun(ctx context.Context, report *RunReport) error
}

// NewValidator creates a validator. The event bus and run store are
// optional.
func NewValidator(
	artists *artist.Service,
	orchestrator *Orchestrator,
	freshness *FreshnessPolicy,
	settings *settings.Service,
	bus *event.Bus,
	runs runStore,
	logger *slog.Logger,
) *Validator {
	return &Validator{
		artists:      artists,
		orchestrator: orchestrator,
		freshness:    freshness,
		settings:     settings,
		bus:          bus,
		runs:         runs,
		logger:       logger.With(slog.String("component", "validation")),
	}
}

// Validate scores the stored metadata of one artist. Internal errors are
// reported inside the result rather than raised.
func (v *Validator) Validate(ctx context.Context, artistID string) ValidationResult {
	result := ValidationResult{ArtistID: artistID}

	subject, err := v.artists.GetByID(ctx, artistID)
	if err != nil {
		result.Err = fmt.Sprintf("loading artist: %v", err)
		result.NeedsEnrichment = true
		return result
	}
	if subject == nil {
		result.Err = "artist not found"
		return result
	}
	result.ArtistName = subject.Name

	result.IDCoverage = idCoverage(subject)
	if result.IDCoverage < 1.0 {
		result.Issues = append(result.Issues, "missing external service IDs")
		result.Recommendations = append(result.Recommendations, "run enrichment to resolve missing IDs")
	}

	result.Richness = richness(subject.Meta)
	if result.Richness < 0.5 {
		result.Issues = append(result.Issues, "metadata blob is sparse")
		result.Recommendations = append(result.Recommendations, "run enrichment with more sources configured")
	}

	now := time.Now().UTC()
	if v.freshness.Fresh(ctx, subject.Meta, now) {
		result.Freshness = 1.0
	} else {
		result.Issues = append(result.Issues, "metadata is stale or absent")
		result.Recommendations = append(result.Recommendations, "re-run enrichment to refresh metadata")
	}

	if subject.Meta != nil {
		result.Confidence = subject.Meta.ConfidenceScore
	}

	result.QualityScore = weightIDCoverage*result.IDCoverage +
		weightRichness*result.Richness +
		weightFreshness*result.Freshness +
		weightConfidence*result.Confidence

	minConfidence := v.settings.GetFloat(ctx, "validation.min_confidence", defaultMinConfidence)
	minQuality := v.settings.GetFloat(ctx, "validation.min_quality", defaultMinQuality)
	maxAge := v.settings.GetDuration(ctx, "validation.max_age_days", 24*time.Hour, defaultMaxAgeDays*24*time.Hour)

	tooOld := subject.Meta == nil || subject.Meta.EnrichmentDate == nil ||
		now.Sub(*subject.Meta.EnrichmentDate) > maxAge

	switch {
	case result.Confidence < minConfidence:
		result.NeedsEnrichment = true
		result.Issues = append(result.Issues, fmt.Sprintf("confidence %.2f below %.2f", result.Confidence, minConfidence))
	case result.QualityScore < minQuality:
		result.NeedsEnrichment = true
		result.Issues = append(result.Issues, fmt.Sprintf("quality %.2f below %.2f", result.QualityScore, minQuality))
	case tooOld:
		result.NeedsEnrichment = true
		result.Issues = append(result.Issues, "enrichment older than the configured maximum age")
	}
	result.Passed = !result.NeedsEnrichment

	if v.bus != nil {
		v.bus.Publish(event.Event{
			Type: event.ValidationCompleted,
			Data: map[string]any{
				"artist_id": artistID,
				"passed":    result.Passed,
				"quality":   result.QualityScore,
			},
		})
	}
	return result
}

// FindCandidates returns artist IDs that look under-enriched, most
// worthwhile first.
func (v *Validator) FindCandidates(ctx context.Context, limit int) ([]string, error) {
	staleBefore := time.Now().UTC().Add(-v.freshness.CacheDuration(ctx))
	return v.artists.FindEnrichmentCandidates(ctx, limit, staleBefore)
}

// AutoEnrich finds candidates and runs validate/enrich/validate for each.
// A panic or error on one subject is recorded against it and the batch
// moves on.
func (v *Validator) AutoEnrich(ctx context.Context, limit int) RunReport {
	report := RunReport{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	candidates, err := v.FindCandidates(ctx, limit)
	if err != nil {
		v.logger.Error("finding candidates failed", slog.String("error", err.Error()))
		v.finishRun(ctx, &report)
		return report
	}
	report.CandidatesFound = len(candidates)

	var deltaSum float64
	var deltaCount int

	for _, id := range candidates {
		if ctx.Err() != nil {
			break
		}
		result, before, after := v.enrichOne(ctx, id)
		report.Results = append(report.Results, result)

		if result.Success {
			report.Enriched++
			deltaSum += after - before
			deltaCount++
		} else {
			report.Failed++
		}
		if post := v.safeValidate(ctx, id); post != nil && !post.Passed {
			report.ValidationFailures++
		}
	}

	if deltaCount > 0 {
		report.AvgConfidenceDelta = deltaSum / float64(deltaCount)
	}
	v.finishRun(ctx, &report)

	if v.bus != nil {
		v.bus.Publish(event.Event{
			Type: event.AutoEnrichCompleted,
			Data: map[string]any{
				"run_id":     report.ID,
				"candidates": report.CandidatesFound,
				"enriched":   report.Enriched,
				"failed":     report.Failed,
			},
		})
	}
	return report
}

// enrichOne wraps a single subject so a panic scores it as a failure
// instead of killing the batch.
func (v *Validator) enrichOne(ctx context.Context, artistID string) (result Result, before, after float64) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("enrichment panicked",
				slog.String("artist_id", artistID), slog.Any("panic", r))
			result = Result{
				ArtistID: artistID,
				Errors:   []string{fmt.Sprintf("panic: %v", r)},
			}
		}
	}()

	if pre := v.safeValidate(ctx, artistID); pre != nil {
		before = pre.Confidence
	}
	result = v.orchestrator.Enrich(ctx, artistID, false)
	after = result.Confidence
	return result, before, after
}

// safeValidate validates without letting an internal error or panic escape.
func (v *Validator) safeValidate(ctx context.Context, artistID string) (result *ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation panicked",
				slog.String("artist_id", artistID), slog.Any("panic", r))
			result = nil
		}
	}()
	res := v.Validate(ctx, artistID)
	if res.Err != "" {
		return nil
	}
	return &res
}

func (v *Validator) finishRun(ctx context.Context, report *RunReport) {
	report.FinishedAt = time.Now().UTC()
	report.Elapsed = report.FinishedAt.Sub(report.StartedAt)
	if v.runs == nil {
		return
	}
	if err := v.runs.SaveRun(ctx, report); err != nil {
		v.logger.Error("saving run report failed", slog.String("error", err.Error()))
	}
}

// idCoverage scores how many of the three first-class external IDs are set.
func idCoverage(subject *artist.Artist) float64 {
	total := 3.0
	have := 0.0
	if subject.SpotifyID != "" {
		have++
	}
	if subject.LastFMName != "" {
		have++
	}
	if subject.IMVDbID != "" {
		have++
	}
	return have / total
}

// richness scores how many of the major blob field groups are populated.
func richness(meta *artist.Metadata) float64 {
	if meta == nil {
		return 0.0
	}
	total := 6.0
	have := 0.0
	if meta.Biography != "" {
		have++
	}
	if len(meta.Genres) > 0 {
		have++
	}
	if len(meta.RelatedArtists) > 0 {
		have++
	}
	if len(meta.Images) > 0 {
		have++
	}
	if meta.Popularity != nil || meta.Followers != nil || meta.Listeners != nil {
		have++
	}
	if meta.FormedYear != nil || meta.OriginCountry != "" {
		have++
	}
	return have / total
}

// RunRecorder persists batch reports to the enrichment_runs table.
type RunRecorder struct {
	db *sql.DB
}

// NewRunRecorder creates a run recorder.
func NewRunRecorder(db *sql.DB) *RunRecorder {
	return &RunRecorder{db: db}
}

// SaveRun stores one report row, with the full report JSON alongside the
// headline counters.
func (r *RunRecorder) SaveRun(ctx context.Context, report *RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO enrichment_runs (
			id, started_at, finished_at, candidates_found, enriched, failed,
			validation_failures, avg_confidence_delta, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.StartedAt.Format(time.RFC3339),
		report.FinishedAt.Format(time.RFC3339),
		report.CandidatesFound, report.Enriched, report.Failed,
		report.ValidationFailures, report.AvgConfidenceDelta,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("storing run report: %w", err)
	}
	return nil
}
