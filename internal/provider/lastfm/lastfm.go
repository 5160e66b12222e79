// Package lastfm adapts the Last.fm web service to the provider contract.
// Last.fm contributes biographies, listener statistics, tags, similar
// artists, and top tracks.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sonavault/sonavault/internal/enrich"
	"github.com/sonavault/sonavault/internal/provider"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0"

// Adapter implements provider.Provider for Last.fm.
type Adapter struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	logger   *slog.Logger
	baseURL  string
}

// New creates a Last.fm adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, settings, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Last.fm adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  limiter,
		settings: settings,
		logger:   logger.With(slog.String("provider", "lastfm")),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the source identifier.
func (a *Adapter) Name() provider.Name { return provider.NameLastFM }

// Enabled reports whether the source is configured and switched on.
func (a *Adapter) Enabled(ctx context.Context) bool {
	return a.settings.IsEnabled(ctx, provider.NameLastFM)
}

// SearchArtist searches Last.fm for artists matching the given name.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.Candidate, error) {
	apiKey, err := a.getAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx, provider.NameLastFM); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameLastFM,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	params := url.Values{
		"method":  {"artist.search"},
		"artist":  {name},
		"api_key": {apiKey},
		"format":  {"json"},
		"limit":   {"25"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	candidates := make([]provider.Candidate, 0, len(resp.Results.ArtistMatches.Artist))
	for _, hit := range resp.Results.ArtistMatches.Artist {
		candidates = append(candidates, provider.Candidate{
			ProviderID: hit.Name,
			Name:       hit.Name,
			Score:      enrich.NameSimilarity(name, hit.Name),
			Source:     provider.NameLastFM,
		})
	}
	return candidates, nil
}

// GetArtistMetadata fetches and normalizes metadata for an artist by name.
// Last.fm keys artists by name, so nameOrID is always treated as a name.
func (a *Adapter) GetArtistMetadata(ctx context.Context, nameOrID string) (*provider.ArtistMetadata, error) {
	apiKey, err := a.getAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx, provider.NameLastFM); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameLastFM,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	params := url.Values{
		"method":  {"artist.getinfo"},
		"artist":  {nameOrID},
		"api_key": {apiKey},
		"format":  {"json"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp InfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing artist info: %w", err)
	}
	if resp.Artist.Name == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameLastFM, ID: nameOrID}
	}

	meta := mapArtist(&resp.Artist)
	meta.Confidence = enrich.NameSimilarity(nameOrID, resp.Artist.Name)
	meta.TopTracks = a.topTracks(ctx, apiKey, resp.Artist.Name)
	return meta, nil
}

// topTracks is best-effort; a failure only costs the top-track list.
func (a *Adapter) topTracks(ctx context.Context, apiKey, name string) []string {
	if err := a.limiter.Wait(ctx, provider.NameLastFM); err != nil {
		return nil
	}
	params := url.Values{
		"method":  {"artist.gettoptracks"},
		"artist":  {name},
		"api_key": {apiKey},
		"format":  {"json"},
		"limit":   {"10"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/?"+params.Encode())
	if err != nil {
		a.logger.Debug("top tracks fetch failed", slog.String("error", err.Error()))
		return nil
	}
	var resp TopTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	var tracks []string
	for _, tr := range resp.TopTracks.Track {
		if tr.Name != "" {
			tracks = append(tracks, tr.Name)
		}
	}
	return tracks
}

func (a *Adapter) getAPIKey(ctx context.Context) (string, error) {
	apiKey, err := a.settings.GetAPIKey(ctx, provider.NameLastFM)
	if err != nil {
		return "", fmt.Errorf("getting API key: %w", err)
	}
	if apiKey == "" {
		return "", &provider.ErrAuthRequired{Provider: provider.NameLastFM}
	}
	return apiKey, nil
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "SonaVault/1.0")
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{Provider: provider.NameLastFM, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrAuthRequired{Provider: provider.NameLastFM}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameLastFM,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

func mapArtist(info *ArtistInfo) *provider.ArtistMetadata {
	meta := &provider.ArtistMetadata{
		Source:        provider.NameLastFM,
		Name:          info.Name,
		LastFMName:    info.Name,
		MusicBrainzID: info.MBID,
		Biography:     cleanBio(info.Bio.Content),
	}
	if meta.Biography == "" {
		meta.Biography = cleanBio(info.Bio.Summary)
	}

	for _, tag := range info.Tags.Tag {
		if tag.Name != "" {
			meta.Genres = append(meta.Genres, tag.Name)
		}
	}
	for _, similar := range info.Similar.Artist {
		if similar.Name != "" {
			meta.SimilarArtists = append(meta.SimilarArtists, similar.Name)
		}
	}

	meta.Listeners = parseCount(info.Stats.Listeners)
	meta.Playcount = parseCount(info.Stats.Playcount)
	meta.UserPlaycount = parseCount(info.Stats.UserPlaycount)

	if info.URL != "" {
		meta.SocialLinks = map[string]string{"lastfm": info.URL}
	}
	return meta
}

// cleanBio removes the Last.fm attribution link appended to bios.
func cleanBio(bio string) string {
	if idx := strings.Index(bio, "<a href=\"https://www.last.fm"); idx > 0 {
		bio = strings.TrimSpace(bio[:idx])
	}
	return bio
}

func parseCount(s string) *int64 {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
