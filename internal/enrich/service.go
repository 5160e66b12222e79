package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sonavault/sonavault/internal/artist"
	"github.com/sonavault/sonavault/internal/event"
	"github.com/sonavault/sonavault/internal/provider"
	"github.com/sonavault/sonavault/internal/settings"
)

// defaultBatchDelay spaces out sequential enrichments so batch runs stay
// polite to the upstream services.
const defaultBatchDelay = 500 * time.Millisecond

// Result is the outcome of one enrichment attempt. Failures are reported
// here, never as panics.
type Result struct {
	ArtistID       string          `json:"artist_id"`
	ArtistName     string          `json:"artist_name,omitempty"`
	Success        bool            `json:"success"`
	SourcesUsed    []string        `json:"sources_used,omitempty"`
	EnrichedFields map[string]bool `json:"enriched_fields,omitempty"`
	Confidence     float64         `json:"confidence"`
	Elapsed        time.Duration   `json:"elapsed"`
	Errors         []string        `json:"errors,omitempty"`
}

// Orchestrator runs the full enrichment pipeline: freshness check, parallel
// provider fan-out, aggregation, and persistence.
type Orchestrator struct {
	artists    *artist.Service
	registry   *provider.Registry
	aggregator *Aggregator
	freshness  *FreshnessPolicy
	settings   *settings.Service
	bus        *event.Bus
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator. The event bus is optional.
func NewOrchestrator(
	artists *artist.Service,
	registry *provider.Registry,
	aggregator *Aggregator,
	freshness *FreshnessPolicy,
	settings *settings.Service,
	bus *event.Bus,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		artists:    artists,
		registry:   registry,
		aggregator: aggregator,
		freshness:  freshness,
		settings:   settings,
		bus:        bus,
		logger:     logger.With(slog.String("component", "enrichment")),
	}
}

// Enrich runs one enrichment pass for an artist. With force unset, a fresh
// metadata blob short-circuits into a success without any provider traffic.
func (o *Orchestrator) Enrich(ctx context.Context, artistID string, force bool) Result {
	start := time.Now()
	result := Result{ArtistID: artistID}

	subject, err := o.artists.GetByID(ctx, artistID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("loading artist: %v", err))
		result.Elapsed = time.Since(start)
		return result
	}
	if subject == nil {
		result.Errors = append(result.Errors, "artist not found")
		result.Elapsed = time.Since(start)
		return result
	}
	result.ArtistName = subject.Name

	if !force && o.freshness.Fresh(ctx, subject.Meta, time.Now().UTC()) {
		o.logger.Debug("metadata fresh, skipping",
			slog.String("artist", subject.Name), slog.String("id", artistID))
		result.Success = true
		result.Confidence = subject.Meta.ConfidenceScore
		result.SourcesUsed = subject.Meta.SourcesUsed
		result.Elapsed = time.Since(start)
		return result
	}

	gathered, errs := o.fanOut(ctx, subject)
	result.Errors = append(result.Errors, errs...)

	if len(gathered) == 0 {
		result.Errors = append(result.Errors, "no metadata found from any source")
		result.Elapsed = time.Since(start)
		o.publish(event.EnrichmentFailed, result)
		return result
	}

	unified, err := o.aggregator.Aggregate(ctx, gathered)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("aggregating: %v", err))
		result.Elapsed = time.Since(start)
		o.publish(event.EnrichmentFailed, result)
		return result
	}

	for _, name := range unified.SourcesUsed {
		result.SourcesUsed = append(result.SourcesUsed, string(name))
	}
	result.Confidence = unified.Confidence
	result.EnrichedFields = enrichedFields(unified)

	if err := o.persist(ctx, artistID, unified); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("persisting: %v", err))
		result.Elapsed = time.Since(start)
		o.publish(event.EnrichmentFailed, result)
		return result
	}

	// A write happened either way, but a unified record with nothing in it
	// must surface as a failure so callers retry instead of trusting it.
	if !unifiedBlob(unified).HasMeaningfulData() {
		result.Errors = append(result.Errors, "degenerate enrichment: no meaningful fields gathered")
		result.Elapsed = time.Since(start)
		o.publish(event.EnrichmentFailed, result)
		return result
	}

	result.Success = true
	result.Elapsed = time.Since(start)
	o.logger.Info("enriched artist",
		slog.String("artist", subject.Name),
		slog.Int("sources", len(result.SourcesUsed)),
		slog.Float64("confidence", result.Confidence),
		slog.Duration("elapsed", result.Elapsed))
	o.publish(event.EnrichmentCompleted, result)
	return result
}

// EnrichMany enriches artists sequentially with a courtesy delay between
// items. One failing artist never stops the batch; cancellation does.
func (o *Orchestrator) EnrichMany(ctx context.Context, artistIDs []string, force bool) []Result {
	delay := o.settings.GetDuration(ctx, "enrichment.batch_delay_ms", time.Millisecond, defaultBatchDelay)

	results := make([]Result, 0, len(artistIDs))
	for i, id := range artistIDs {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			return results
		}
		results = append(results, o.Enrich(ctx, id, force))
	}
	return results
}

// fanOut queries every enabled provider concurrently. Per-source failures
// are collected as strings; a panicking adapter is contained the same way.
func (o *Orchestrator) fanOut(ctx context.Context, subject *artist.Artist) (map[provider.Name]*provider.ArtistMetadata, []string) {
	providers := o.registry.Enabled(ctx)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		gathered = make(map[provider.Name]*provider.ArtistMetadata)
		errs     []string
	)

	for _, p := range providers {
		wg.Add(1)
		go func(p provider.Provider) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errs = append(errs, fmt.Sprintf("%s: panic: %v", p.Name(), r))
					mu.Unlock()
				}
			}()

			meta, err := p.GetArtistMetadata(ctx, lookupKey(subject, p.Name()))
			if err != nil {
				o.logger.Debug("source failed",
					slog.String("source", string(p.Name())), slog.String("error", err.Error()))
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
				mu.Unlock()
				return
			}
			if meta == nil {
				return
			}
			mu.Lock()
			gathered[p.Name()] = meta
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	return gathered, errs
}

// lookupKey picks the strongest handle the catalog already has for a
// source: its own stored ID when present, the artist name otherwise.
func lookupKey(subject *artist.Artist, source provider.Name) string {
	switch source {
	case provider.NameSpotify:
		if subject.SpotifyID != "" {
			return subject.SpotifyID
		}
	case provider.NameLastFM:
		if subject.LastFMName != "" {
			return subject.LastFMName
		}
	case provider.NameIMVDb:
		if subject.IMVDbID != "" {
			return subject.IMVDbID
		}
	case provider.NameMusicBrainz:
		if subject.Meta != nil && subject.Meta.MusicBrainzID != "" {
			return subject.Meta.MusicBrainzID
		}
	}
	return subject.Name
}

// persist re-reads the artist and writes the merged result. The re-read
// narrows the lost-update window; two simultaneous writers still mean the
// last one wins, which the catalog accepts for single-user deployments.
func (o *Orchestrator) persist(ctx context.Context, artistID string, unified *Unified) error {
	current, err := o.artists.GetByID(ctx, artistID)
	if err != nil {
		return fmt.Errorf("reloading artist: %w", err)
	}
	if current == nil {
		return fmt.Errorf("artist disappeared during enrichment: %s", artistID)
	}

	meta := current.Meta
	if meta == nil {
		meta = &artist.Metadata{}
	}
	meta.MergeFrom(unifiedBlob(unified))

	// Bookkeeping refreshes unconditionally, even on a thin pass.
	now := time.Now().UTC()
	meta.EnrichmentDate = &now
	meta.ConfidenceScore = unified.Confidence
	meta.SourcesUsed = nil
	for _, name := range unified.SourcesUsed {
		meta.SourcesUsed = append(meta.SourcesUsed, string(name))
	}
	current.Meta = meta

	if current.SpotifyID == "" && unified.SpotifyID != "" {
		current.SpotifyID = unified.SpotifyID
	}
	if current.LastFMName == "" && unified.LastFMName != "" {
		current.LastFMName = unified.LastFMName
	}
	if current.IMVDbID == "" && unified.IMVDbID != "" {
		current.IMVDbID = unified.IMVDbID
	}
	if len(current.Genres) == 0 && len(unified.Genres) > 0 {
		current.Genres = unified.Genres
	}

	return o.artists.Update(ctx, current)
}

// unifiedBlob converts an aggregated record into the persistent blob shape.
func unifiedBlob(u *Unified) *artist.Metadata {
	meta := &artist.Metadata{
		Biography:      u.Biography,
		Genres:         u.Genres,
		RelatedArtists: u.SimilarArtists,
		TopTracks:      u.TopTracks,
		Popularity:     u.Popularity,
		Followers:      u.Followers,
		Playcount:      u.Playcount,
		Listeners:      u.Listeners,
		UserPlaycount:  u.UserPlaycount,
		FormedYear:     u.FormedYear,
		DisbandedYear:  u.DisbandedYear,
		OriginCountry:  u.OriginCountry,
		MusicBrainzID:  u.MusicBrainzID,
		Website:        u.Website,
		SocialLinks:    u.SocialLinks,
	}
	for _, img := range u.Images {
		meta.Images = append(meta.Images, artist.Image{
			URL:    img.URL,
			Width:  img.Width,
			Height: img.Height,
			Kind:   img.Kind,
		})
	}
	if len(u.RawSources) > 0 {
		meta.Extra = map[string]any{}
		for name, raw := range u.RawSources {
			meta.Extra[string(name)] = raw
		}
	}
	return meta
}

// enrichedFields reports which field groups the unified record populated.
func enrichedFields(u *Unified) map[string]bool {
	fields := map[string]bool{}
	if u.Biography != "" {
		fields["biography"] = true
	}
	if len(u.Genres) > 0 {
		fields["genres"] = true
	}
	if len(u.SimilarArtists) > 0 {
		fields["related_artists"] = true
	}
	if len(u.TopTracks) > 0 {
		fields["top_tracks"] = true
	}
	if len(u.Images) > 0 {
		fields["images"] = true
	}
	if u.Popularity != nil {
		fields["popularity"] = true
	}
	if u.Followers != nil {
		fields["followers"] = true
	}
	if u.Playcount != nil || u.Listeners != nil {
		fields["listening_stats"] = true
	}
	if u.SpotifyID != "" || u.LastFMName != "" || u.IMVDbID != "" || u.MusicBrainzID != "" {
		fields["external_ids"] = true
	}
	if u.FormedYear != nil || u.OriginCountry != "" {
		fields["origin"] = true
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (o *Orchestrator) publish(t event.Type, r Result) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(event.Event{
		Type: t,
		Data: map[string]any{
			"artist_id":  r.ArtistID,
			"artist":     r.ArtistName,
			"confidence": r.Confidence,
			"sources":    r.SourcesUsed,
			"errors":     r.Errors,
		},
	})
}
