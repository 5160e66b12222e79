// Package spotify adapts the Spotify Web API to the provider contract using
// the client-credentials OAuth flow. Spotify contributes canonical IDs,
// popularity, follower counts, genres, images, related artists, and top
// tracks.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/sonavault/sonavault/internal/enrich"
	"github.com/sonavault/sonavault/internal/provider"
)

const (
	defaultBaseURL  = "https://api.spotify.com/v1"
	defaultTokenURL = "https://accounts.spotify.com/api/token"
)

// minMatchScore is the name-similarity floor below which a search hit is
// rejected rather than risk enriching the wrong artist.
const minMatchScore = 0.6

// Adapter implements provider.Provider for Spotify.
type Adapter struct {
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	logger   *slog.Logger
	baseURL  string
	tokenURL string

	// The oauth2 client caches its access token, so it is built once per
	// credential pair and reused until the credentials change.
	mu           sync.Mutex
	client       *http.Client
	clientID     string
	clientSecret string
}

// New creates a Spotify adapter with the default API and token endpoints.
func New(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, settings, logger, defaultBaseURL, defaultTokenURL)
}

// NewWithBaseURL creates a Spotify adapter with custom endpoints (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL, tokenURL string) *Adapter {
	return &Adapter{
		limiter:  limiter,
		settings: settings,
		logger:   logger.With(slog.String("provider", "spotify")),
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokenURL: tokenURL,
	}
}

// Name returns the source identifier.
func (a *Adapter) Name() provider.Name { return provider.NameSpotify }

// Enabled reports whether both client credentials are configured and the
// source is switched on.
func (a *Adapter) Enabled(ctx context.Context) bool {
	return a.settings.IsEnabled(ctx, provider.NameSpotify)
}

// SearchArtist searches Spotify for artists matching the given name.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.Candidate, error) {
	params := url.Values{
		"type":  {"artist"},
		"q":     {name},
		"limit": {"25"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	candidates := make([]provider.Candidate, 0, len(resp.Artists.Items))
	for _, hit := range resp.Artists.Items {
		candidates = append(candidates, provider.Candidate{
			ProviderID: hit.ID,
			Name:       hit.Name,
			Score:      enrich.NameSimilarity(name, hit.Name),
			Source:     provider.NameSpotify,
		})
	}
	return candidates, nil
}

// GetArtistMetadata fetches metadata by Spotify ID or by name. A name goes
// through search first; the best hit must clear the similarity floor.
func (a *Adapter) GetArtistMetadata(ctx context.Context, nameOrID string) (*provider.ArtistMetadata, error) {
	var (
		artist     *Artist
		confidence float64
	)

	if isSpotifyID(nameOrID) {
		body, err := a.doRequest(ctx, a.baseURL+"/artists/"+url.PathEscape(nameOrID))
		if err != nil {
			return nil, err
		}
		var hit Artist
		if err := json.Unmarshal(body, &hit); err != nil {
			return nil, fmt.Errorf("parsing artist lookup: %w", err)
		}
		if hit.ID == "" {
			return nil, &provider.ErrNotFound{Provider: provider.NameSpotify, ID: nameOrID}
		}
		artist = &hit
		confidence = 1.0
	} else {
		hit, score, err := a.bestMatch(ctx, nameOrID)
		if err != nil {
			return nil, err
		}
		artist = hit
		confidence = score
	}

	meta := mapArtist(artist)
	meta.Confidence = confidence
	meta.SimilarArtists = a.relatedArtists(ctx, artist.ID)
	meta.TopTracks = a.topTracks(ctx, artist.ID)
	return meta, nil
}

func (a *Adapter) bestMatch(ctx context.Context, name string) (*Artist, float64, error) {
	params := url.Values{
		"type":  {"artist"},
		"q":     {name},
		"limit": {"10"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, 0, err
	}
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("parsing search response: %w", err)
	}
	if len(resp.Artists.Items) == 0 {
		return nil, 0, &provider.ErrNotFound{Provider: provider.NameSpotify, ID: name}
	}

	items := resp.Artists.Items
	sort.SliceStable(items, func(i, j int) bool {
		si := enrich.NameSimilarity(name, items[i].Name)
		sj := enrich.NameSimilarity(name, items[j].Name)
		if si != sj {
			return si > sj
		}
		return items[i].Popularity > items[j].Popularity
	})

	best := &items[0]
	score := enrich.NameSimilarity(name, best.Name)
	if score < minMatchScore {
		return nil, 0, &provider.ErrNotFound{Provider: provider.NameSpotify, ID: name}
	}
	return best, score, nil
}

// relatedArtists is best-effort; a failure only costs the related list.
func (a *Adapter) relatedArtists(ctx context.Context, id string) []string {
	body, err := a.doRequest(ctx, a.baseURL+"/artists/"+url.PathEscape(id)+"/related-artists")
	if err != nil {
		a.logger.Debug("related artists fetch failed", slog.String("error", err.Error()))
		return nil
	}
	var resp RelatedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	var names []string
	for _, art := range resp.Artists {
		if art.Name != "" {
			names = append(names, art.Name)
		}
	}
	return names
}

// topTracks is best-effort; a failure only costs the top-track list.
func (a *Adapter) topTracks(ctx context.Context, id string) []string {
	body, err := a.doRequest(ctx, a.baseURL+"/artists/"+url.PathEscape(id)+"/top-tracks?market=US")
	if err != nil {
		a.logger.Debug("top tracks fetch failed", slog.String("error", err.Error()))
		return nil
	}
	var resp TopTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	var tracks []string
	for _, tr := range resp.Tracks {
		if tr.Name != "" {
			tracks = append(tracks, tr.Name)
		}
	}
	return tracks
}

// httpClient returns an OAuth2 client-credentials HTTP client, rebuilding it
// only when the stored credentials change.
func (a *Adapter) httpClient(ctx context.Context) (*http.Client, error) {
	clientID, err := a.settings.GetCredential(ctx, provider.NameSpotify, "client_id")
	if err != nil {
		return nil, fmt.Errorf("getting client id: %w", err)
	}
	clientSecret, err := a.settings.GetCredential(ctx, provider.NameSpotify, "client_secret")
	if err != nil {
		return nil, fmt.Errorf("getting client secret: %w", err)
	}
	if clientID == "" || clientSecret == "" {
		return nil, &provider.ErrAuthRequired{Provider: provider.NameSpotify}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil || clientID != a.clientID || clientSecret != a.clientSecret {
		conf := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     a.tokenURL,
		}
		// Background context: the token source outlives any one request.
		a.client = conf.Client(context.Background())
		a.client.Timeout = 15 * time.Second
		a.clientID = clientID
		a.clientSecret = clientSecret
	}
	return a.client, nil
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	client, err := a.httpClient(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx, provider.NameSpotify); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{Provider: provider.NameSpotify, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrAuthRequired{Provider: provider.NameSpotify}
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Provider: provider.NameSpotify, ID: reqURL}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

func mapArtist(artist *Artist) *provider.ArtistMetadata {
	popularity := float64(artist.Popularity) / 100.0
	followers := artist.Followers.Total

	meta := &provider.ArtistMetadata{
		Source:     provider.NameSpotify,
		Name:       artist.Name,
		SpotifyID:  artist.ID,
		Genres:     artist.Genres,
		Popularity: &popularity,
		Followers:  &followers,
	}
	for _, img := range artist.Images {
		meta.Images = append(meta.Images, provider.ImageRef{
			URL:    img.URL,
			Width:  img.Width,
			Height: img.Height,
			Kind:   "thumb",
		})
	}
	if artist.ExternalURLs.Spotify != "" {
		meta.SocialLinks = map[string]string{"spotify": artist.ExternalURLs.Spotify}
	}
	return meta
}

// isSpotifyID reports whether s looks like a Spotify artist ID (22 base62
// characters).
func isSpotifyID(s string) bool {
	if len(s) != 22 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
