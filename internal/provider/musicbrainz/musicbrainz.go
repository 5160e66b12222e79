// Package musicbrainz adapts the MusicBrainz web service to the provider
// contract. MusicBrainz is keyless but strictly rate limited (1 req/s) and
// contributes authoritative identity data: MBIDs, origin country, life span,
// community genres, and external links.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sonavault/sonavault/internal/enrich"
	"github.com/sonavault/sonavault/internal/provider"
)

const defaultBaseURL = "https://musicbrainz.org/ws/2"

// minMatchScore is the name-similarity floor below which a search hit is
// rejected rather than risk enriching the wrong artist.
const minMatchScore = 0.6

// Adapter implements provider.Provider for MusicBrainz.
type Adapter struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	logger   *slog.Logger
	baseURL  string
}

// New creates a MusicBrainz adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, settings, logger, defaultBaseURL)
}

// NewWithBaseURL creates a MusicBrainz adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  limiter,
		settings: settings,
		logger:   logger.With(slog.String("provider", "musicbrainz")),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the source identifier.
func (a *Adapter) Name() provider.Name { return provider.NameMusicBrainz }

// Enabled reports whether the source is switched on. MusicBrainz needs no
// credentials, so only the explicit flag can disable it.
func (a *Adapter) Enabled(ctx context.Context) bool {
	return a.settings.IsEnabled(ctx, provider.NameMusicBrainz)
}

// SearchArtist searches MusicBrainz for artists matching the given name.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.Candidate, error) {
	resp, err := a.search(ctx, name)
	if err != nil {
		return nil, err
	}

	candidates := make([]provider.Candidate, 0, len(resp.Artists))
	for _, hit := range resp.Artists {
		candidates = append(candidates, provider.Candidate{
			ProviderID: hit.ID,
			Name:       hit.Name,
			Score:      enrich.NameSimilarity(name, hit.Name),
			Country:    hit.Country,
			Source:     provider.NameMusicBrainz,
		})
	}
	return candidates, nil
}

// GetArtistMetadata fetches metadata by MBID or by name. A name goes through
// search first; the best hit must clear the similarity floor.
func (a *Adapter) GetArtistMetadata(ctx context.Context, nameOrID string) (*provider.ArtistMetadata, error) {
	if isUUID(nameOrID) {
		artist, err := a.lookup(ctx, nameOrID)
		if err != nil {
			return nil, err
		}
		meta := mapArtist(artist)
		meta.Confidence = 1.0
		return meta, nil
	}

	resp, err := a.search(ctx, nameOrID)
	if err != nil {
		return nil, err
	}
	if len(resp.Artists) == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: nameOrID}
	}

	sort.SliceStable(resp.Artists, func(i, j int) bool {
		si := enrich.NameSimilarity(nameOrID, resp.Artists[i].Name)
		sj := enrich.NameSimilarity(nameOrID, resp.Artists[j].Name)
		if si != sj {
			return si > sj
		}
		return resp.Artists[i].Score > resp.Artists[j].Score
	})

	best := resp.Artists[0]
	similarity := enrich.NameSimilarity(nameOrID, best.Name)
	if similarity < minMatchScore {
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: nameOrID}
	}

	artist, err := a.lookup(ctx, best.ID)
	if err != nil {
		return nil, err
	}
	meta := mapArtist(artist)
	meta.Confidence = similarity
	return meta, nil
}

func (a *Adapter) search(ctx context.Context, name string) (*SearchResponse, error) {
	params := url.Values{
		"query": {fmt.Sprintf("artist:%q", name)},
		"fmt":   {"json"},
		"limit": {"10"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/artist?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	return &resp, nil
}

func (a *Adapter) lookup(ctx context.Context, mbid string) (*Artist, error) {
	params := url.Values{
		"inc": {"genres url-rels"},
		"fmt": {"json"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/artist/"+url.PathEscape(mbid)+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var artist Artist
	if err := json.Unmarshal(body, &artist); err != nil {
		return nil, fmt.Errorf("parsing artist lookup: %w", err)
	}
	if artist.ID == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: mbid}
	}
	return &artist, nil
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, provider.NameMusicBrainz); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameMusicBrainz,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	// MusicBrainz requires an identifying User-Agent with contact info.
	req.Header.Set("User-Agent", "SonaVault/1.0 (https://github.com/sonavault/sonavault)")
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{Provider: provider.NameMusicBrainz, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: reqURL}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameMusicBrainz,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

func mapArtist(artist *Artist) *provider.ArtistMetadata {
	meta := &provider.ArtistMetadata{
		Source:        provider.NameMusicBrainz,
		Name:          artist.Name,
		MusicBrainzID: artist.ID,
		OriginCountry: artist.Country,
	}

	meta.FormedYear = parseYear(artist.LifeSpan.Begin)
	if artist.LifeSpan.Ended {
		meta.DisbandedYear = parseYear(artist.LifeSpan.End)
	}

	// Community genres, most-voted first.
	genres := append([]Genre(nil), artist.Genres...)
	sort.SliceStable(genres, func(i, j int) bool { return genres[i].Count > genres[j].Count })
	for _, g := range genres {
		if g.Name != "" {
			meta.Genres = append(meta.Genres, g.Name)
		}
	}

	for _, rel := range artist.Relations {
		switch rel.Type {
		case "official homepage":
			if meta.Website == "" {
				meta.Website = rel.URL.Resource
			}
		case "social network", "youtube", "bandcamp", "soundcloud":
			if meta.SocialLinks == nil {
				meta.SocialLinks = make(map[string]string)
			}
			meta.SocialLinks[socialKey(rel.URL.Resource)] = rel.URL.Resource
		}
	}

	return meta
}

// parseYear extracts the year from a MusicBrainz partial date
// ("1985", "1985-06", "1985-06-21").
func parseYear(date string) *int {
	if len(date) < 4 {
		return nil
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return nil
	}
	return &year
}

// socialKey derives a map key from a social URL's host ("twitter",
// "instagram"). Falls back to the full host.
func socialKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if idx := strings.Index(host, "."); idx > 0 {
		host = host[:idx]
	}
	return host
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
		} else {
			if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
				return false
			}
		}
	}
	return true
}
