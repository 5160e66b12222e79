package enrich

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sonavault/sonavault/internal/artist"
	"github.com/sonavault/sonavault/internal/database"
	"github.com/sonavault/sonavault/internal/provider"
	"github.com/sonavault/sonavault/internal/settings"
)

// fakeProvider scripts one source's behavior and counts lookups.
type fakeProvider struct {
	name     provider.Name
	meta     *provider.ArtistMetadata
	err      error
	panicMsg string
	disabled bool
	calls    atomic.Int32
}

func (f *fakeProvider) Name() provider.Name          { return f.name }
func (f *fakeProvider) Enabled(context.Context) bool { return !f.disabled }
func (f *fakeProvider) SearchArtist(context.Context, string) ([]provider.Candidate, error) {
	return nil, nil
}

func (f *fakeProvider) GetArtistMetadata(context.Context, string) (*provider.ArtistMetadata, error) {
	f.calls.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	// Copy so callers cannot mutate the script between calls.
	meta := *f.meta
	return &meta, nil
}

type fixture struct {
	db           *sql.DB
	artists      *artist.Service
	settings     *settings.Service
	orchestrator *Orchestrator
	validator    *Validator
}

func setupOrchestrator(t *testing.T, fakes ...*fakeProvider) *fixture {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	registry := provider.NewRegistry()
	for _, f := range fakes {
		registry.Register(f)
	}

	artists := artist.NewService(db)
	svc := settings.NewService(db)
	if err := svc.Set(context.Background(), "enrichment.batch_delay_ms", "0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	aggregator := NewAggregator(svc, testLogger())
	freshness := NewFreshnessPolicy(svc)
	orchestrator := NewOrchestrator(artists, registry, aggregator, freshness, svc, nil, testLogger())
	validator := NewValidator(artists, orchestrator, freshness, svc, nil, NewRunRecorder(db), testLogger())

	return &fixture{
		db:           db,
		artists:      artists,
		settings:     svc,
		orchestrator: orchestrator,
		validator:    validator,
	}
}

func spotifyFake() *fakeProvider {
	return &fakeProvider{name: provider.NameSpotify, meta: spotifyRecord()}
}

func lastfmFake() *fakeProvider {
	return &fakeProvider{name: provider.NameLastFM, meta: lastfmRecord()}
}

func createSubject(t *testing.T, f *fixture) *artist.Artist {
	t.Helper()
	a := &artist.Artist{Name: "Daft Punk"}
	if err := f.artists.Create(context.Background(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a
}

func TestEnrich_ArtistNotFound(t *testing.T) {
	f := setupOrchestrator(t, spotifyFake())
	result := f.orchestrator.Enrich(context.Background(), "missing-id", false)
	if result.Success {
		t.Error("missing artist should fail")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "not found") {
		t.Errorf("Errors = %v", result.Errors)
	}
}

func TestEnrich_EndToEnd(t *testing.T) {
	f := setupOrchestrator(t, spotifyFake(), lastfmFake())
	subject := createSubject(t, f)
	ctx := context.Background()

	result := f.orchestrator.Enrich(ctx, subject.ID, false)
	if !result.Success {
		t.Fatalf("Enrich failed: %v", result.Errors)
	}
	if len(result.SourcesUsed) != 2 {
		t.Errorf("SourcesUsed = %v", result.SourcesUsed)
	}
	want := (0.8*0.9 + 0.7*0.8) / (0.9 + 0.8)
	if diff := result.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want %v", result.Confidence, want)
	}
	if !result.EnrichedFields["biography"] || !result.EnrichedFields["genres"] {
		t.Errorf("EnrichedFields = %v", result.EnrichedFields)
	}

	stored, err := f.artists.GetByID(ctx, subject.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Meta == nil || stored.Meta.EnrichmentDate == nil {
		t.Fatal("blob missing after enrichment")
	}
	if stored.Meta.Biography != "French electronic music duo formed in Paris." {
		t.Errorf("Biography = %q", stored.Meta.Biography)
	}
	if len(stored.Meta.SourcesUsed) != 2 {
		t.Errorf("SourcesUsed = %v", stored.Meta.SourcesUsed)
	}
	// External ID columns filled from the unified record
	if stored.SpotifyID != "sp-1" || stored.LastFMName != "Daft Punk" {
		t.Errorf("ID columns = %q / %q", stored.SpotifyID, stored.LastFMName)
	}
	// Genre column seeded because it was empty
	if len(stored.Genres) == 0 {
		t.Error("genre column should be seeded")
	}
}

func TestEnrich_FreshSkipsProviders(t *testing.T) {
	sp := spotifyFake()
	lf := lastfmFake()
	f := setupOrchestrator(t, sp, lf)
	subject := createSubject(t, f)
	ctx := context.Background()

	first := f.orchestrator.Enrich(ctx, subject.ID, false)
	if !first.Success {
		t.Fatalf("first pass failed: %v", first.Errors)
	}
	callsAfterFirst := sp.calls.Load() + lf.calls.Load()

	second := f.orchestrator.Enrich(ctx, subject.ID, false)
	if !second.Success {
		t.Fatalf("fresh no-op should succeed: %v", second.Errors)
	}
	if got := sp.calls.Load() + lf.calls.Load(); got != callsAfterFirst {
		t.Errorf("fresh pass hit providers: %d calls, want %d", got, callsAfterFirst)
	}
	if second.Confidence != first.Confidence {
		t.Errorf("no-op confidence = %v, want stored %v", second.Confidence, first.Confidence)
	}

	// Force bypasses the cache
	forced := f.orchestrator.Enrich(ctx, subject.ID, true)
	if !forced.Success {
		t.Fatalf("forced pass failed: %v", forced.Errors)
	}
	if got := sp.calls.Load() + lf.calls.Load(); got == callsAfterFirst {
		t.Error("force should hit providers again")
	}
}

func TestEnrich_ProviderFailureIsolated(t *testing.T) {
	failing := &fakeProvider{
		name: provider.NameMusicBrainz,
		err:  &provider.ErrProviderUnavailable{Provider: provider.NameMusicBrainz},
	}
	f := setupOrchestrator(t, failing, spotifyFake())
	subject := createSubject(t, f)

	result := f.orchestrator.Enrich(context.Background(), subject.ID, false)
	if !result.Success {
		t.Fatalf("one failing source must not fail the run: %v", result.Errors)
	}
	if len(result.SourcesUsed) != 1 || result.SourcesUsed[0] != "spotify" {
		t.Errorf("SourcesUsed = %v", result.SourcesUsed)
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "musicbrainz") {
			found = true
		}
	}
	if !found {
		t.Errorf("failing source should be recorded: %v", result.Errors)
	}
}

func TestEnrich_PanicContained(t *testing.T) {
	panicking := &fakeProvider{name: provider.NameIMVDb, panicMsg: "adapter bug"}
	f := setupOrchestrator(t, panicking, spotifyFake())
	subject := createSubject(t, f)

	result := f.orchestrator.Enrich(context.Background(), subject.ID, false)
	if !result.Success {
		t.Fatalf("panicking source must not fail the run: %v", result.Errors)
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "panic") {
			found = true
		}
	}
	if !found {
		t.Errorf("panic should be recorded as a source error: %v", result.Errors)
	}
}

func TestEnrich_NoSources(t *testing.T) {
	failing := &fakeProvider{
		name: provider.NameSpotify,
		err:  &provider.ErrNotFound{Provider: provider.NameSpotify, ID: "x"},
	}
	disabled := &fakeProvider{name: provider.NameLastFM, meta: lastfmRecord(), disabled: true}
	f := setupOrchestrator(t, failing, disabled)
	subject := createSubject(t, f)

	result := f.orchestrator.Enrich(context.Background(), subject.ID, false)
	if result.Success {
		t.Error("zero usable sources should fail")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "no metadata found") {
			found = true
		}
	}
	if !found {
		t.Errorf("Errors = %v", result.Errors)
	}
	if disabled.calls.Load() != 0 {
		t.Error("disabled source must never be queried")
	}
}

func TestEnrich_DegenerateGate(t *testing.T) {
	hollow := &fakeProvider{
		name: provider.NameIMVDb,
		meta: &provider.ArtistMetadata{
			Source:     provider.NameIMVDb,
			Confidence: 0.9,
			Name:       "Daft Punk",
			IMVDbID:    "212",
		},
	}
	f := setupOrchestrator(t, hollow)
	subject := createSubject(t, f)
	ctx := context.Background()

	result := f.orchestrator.Enrich(ctx, subject.ID, false)
	if result.Success {
		t.Error("enrichment with no meaningful fields must fail")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "degenerate") {
			found = true
		}
	}
	if !found {
		t.Errorf("Errors = %v", result.Errors)
	}

	// The write still happened: bookkeeping updated, ID column captured,
	// but the blob stays non-meaningful so the next pass retries.
	stored, err := f.artists.GetByID(ctx, subject.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.IMVDbID != "212" {
		t.Errorf("IMVDbID = %q, ID capture should survive a degenerate run", stored.IMVDbID)
	}
	if stored.Meta == nil || stored.Meta.EnrichmentDate == nil {
		t.Fatal("bookkeeping should be written even on a degenerate run")
	}
	if stored.Meta.HasMeaningfulData() {
		t.Error("degenerate blob must not count as meaningful")
	}

	// And because the blob is not meaningful, the next pass is not skipped
	before := hollow.calls.Load()
	f.orchestrator.Enrich(ctx, subject.ID, false)
	if hollow.calls.Load() == before {
		t.Error("degenerate blob should not suppress re-enrichment")
	}
}

func TestEnrich_NonDestructiveMerge(t *testing.T) {
	// Second-pass source has genres but no biography
	thin := &fakeProvider{
		name: provider.NameMusicBrainz,
		meta: &provider.ArtistMetadata{
			Source:     provider.NameMusicBrainz,
			Confidence: 0.9,
			Name:       "Daft Punk",
			Genres:     []string{"Electronic"},
		},
	}
	f := setupOrchestrator(t, thin)
	subject := createSubject(t, f)
	ctx := context.Background()

	// Seed a stale blob that already carries a biography
	old := time.Now().UTC().Add(-48 * time.Hour)
	subject.Meta = &artist.Metadata{
		EnrichmentDate: &old,
		Biography:      "hand-written biography",
	}
	if err := f.artists.Update(ctx, subject); err != nil {
		t.Fatalf("Update: %v", err)
	}

	result := f.orchestrator.Enrich(ctx, subject.ID, false)
	if !result.Success {
		t.Fatalf("Enrich: %v", result.Errors)
	}

	stored, err := f.artists.GetByID(ctx, subject.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Meta.Biography != "hand-written biography" {
		t.Errorf("Biography = %q, thin pass must not erase it", stored.Meta.Biography)
	}
	if len(stored.Meta.Genres) == 0 {
		t.Error("new genres should be merged in")
	}
	if stored.Meta.EnrichmentDate == nil || !stored.Meta.EnrichmentDate.After(old) {
		t.Error("enrichment date must refresh on every pass")
	}
	if len(stored.Meta.SourcesUsed) != 1 || stored.Meta.SourcesUsed[0] != "musicbrainz" {
		t.Errorf("SourcesUsed = %v, must reflect the latest pass", stored.Meta.SourcesUsed)
	}
}

func TestEnrich_LastWriteWins(t *testing.T) {
	f := setupOrchestrator(t, spotifyFake(), lastfmFake())
	subject := createSubject(t, f)
	ctx := context.Background()

	first := f.orchestrator.Enrich(ctx, subject.ID, true)
	second := f.orchestrator.Enrich(ctx, subject.ID, true)
	if !first.Success || !second.Success {
		t.Fatalf("runs failed: %v / %v", first.Errors, second.Errors)
	}

	stored, err := f.artists.GetByID(ctx, subject.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	// The stored bookkeeping reflects the most recent writer; earlier
	// bookkeeping is overwritten, which the catalog accepts.
	if stored.Meta.ConfidenceScore != second.Confidence {
		t.Errorf("ConfidenceScore = %v, want last writer's %v",
			stored.Meta.ConfidenceScore, second.Confidence)
	}
}

func TestEnrichMany(t *testing.T) {
	f := setupOrchestrator(t, spotifyFake(), lastfmFake())
	a := createSubject(t, f)
	ctx := context.Background()

	results := f.orchestrator.EnrichMany(ctx, []string{a.ID, "missing-id"}, true)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Success {
		t.Errorf("first subject failed: %v", results[0].Errors)
	}
	if results[1].Success {
		t.Error("missing subject should fail without aborting the batch")
	}
}

func TestEnrichMany_Cancellation(t *testing.T) {
	f := setupOrchestrator(t, spotifyFake())
	a := createSubject(t, f)

	if err := f.settings.Set(context.Background(), "enrichment.batch_delay_ms", "50"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.orchestrator.EnrichMany(ctx, []string{a.ID, a.ID, a.ID}, true)
	if len(results) > 1 {
		t.Errorf("cancelled batch ran %d items", len(results))
	}
}
