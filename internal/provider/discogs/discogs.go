// Package discogs adapts the Discogs API to the provider contract. Discogs
// contributes artist profiles, band members, name variations, images, and
// external links. Its search is noisy, so matching uses the strict
// similarity variant.
package discogs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sonavault/sonavault/internal/enrich"
	"github.com/sonavault/sonavault/internal/provider"
)

const defaultBaseURL = "https://api.discogs.com"

// minMatchScore is the strict name-similarity floor below which a search hit
// is rejected.
const minMatchScore = 0.6

// Adapter implements provider.Provider for Discogs.
type Adapter struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	logger   *slog.Logger
	baseURL  string
}

// New creates a Discogs adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, settings, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Discogs adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  limiter,
		settings: settings,
		logger:   logger.With(slog.String("provider", "discogs")),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the source identifier.
func (a *Adapter) Name() provider.Name { return provider.NameDiscogs }

// Enabled reports whether a personal access token is configured and the
// source is switched on.
func (a *Adapter) Enabled(ctx context.Context) bool {
	return a.settings.IsEnabled(ctx, provider.NameDiscogs)
}

// SearchArtist searches the Discogs database for artists matching the name.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.Candidate, error) {
	resp, err := a.search(ctx, name)
	if err != nil {
		return nil, err
	}

	candidates := make([]provider.Candidate, 0, len(resp.Results))
	for _, hit := range resp.Results {
		candidates = append(candidates, provider.Candidate{
			ProviderID: strconv.Itoa(hit.ID),
			Name:       hit.Title,
			Score:      enrich.NameSimilarityStrict(name, hit.Title),
			Source:     provider.NameDiscogs,
		})
	}
	return candidates, nil
}

// GetArtistMetadata fetches metadata by numeric Discogs ID or by name.
func (a *Adapter) GetArtistMetadata(ctx context.Context, nameOrID string) (*provider.ArtistMetadata, error) {
	if id, err := strconv.Atoi(nameOrID); err == nil {
		artist, err := a.lookup(ctx, id)
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
	if len(resp.Results) == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameDiscogs, ID: nameOrID}
	}

	results := resp.Results
	sort.SliceStable(results, func(i, j int) bool {
		return enrich.NameSimilarityStrict(nameOrID, results[i].Title) >
			enrich.NameSimilarityStrict(nameOrID, results[j].Title)
	})

	best := results[0]
	score := enrich.NameSimilarityStrict(nameOrID, best.Title)
	if score < minMatchScore {
		return nil, &provider.ErrNotFound{Provider: provider.NameDiscogs, ID: nameOrID}
	}

	artist, err := a.lookup(ctx, best.ID)
	if err != nil {
		return nil, err
	}
	meta := mapArtist(artist)
	meta.Confidence = score
	return meta, nil
}

func (a *Adapter) search(ctx context.Context, name string) (*SearchResponse, error) {
	params := url.Values{
		"q":        {name},
		"type":     {"artist"},
		"per_page": {"10"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/database/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	return &resp, nil
}

func (a *Adapter) lookup(ctx context.Context, id int) (*Artist, error) {
	body, err := a.doRequest(ctx, fmt.Sprintf("%s/artists/%d", a.baseURL, id))
	if err != nil {
		return nil, err
	}
	var artist Artist
	if err := json.Unmarshal(body, &artist); err != nil {
		return nil, fmt.Errorf("parsing artist lookup: %w", err)
	}
	if artist.ID == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameDiscogs, ID: strconv.Itoa(id)}
	}
	return &artist, nil
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	token, err := a.settings.GetAPIKey(ctx, provider.NameDiscogs)
	if err != nil {
		return nil, fmt.Errorf("getting API key: %w", err)
	}
	if token == "" {
		return nil, &provider.ErrAuthRequired{Provider: provider.NameDiscogs}
	}

	if err := a.limiter.Wait(ctx, provider.NameDiscogs); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameDiscogs,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "SonaVault/1.0 +https://github.com/sonavault/sonavault")
	req.Header.Set("Authorization", "Discogs token="+token)
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{Provider: provider.NameDiscogs, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrAuthRequired{Provider: provider.NameDiscogs}
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Provider: provider.NameDiscogs, ID: reqURL}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameDiscogs,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

func mapArtist(artist *Artist) *provider.ArtistMetadata {
	meta := &provider.ArtistMetadata{
		Source:    provider.NameDiscogs,
		Name:      artist.Name,
		Biography: cleanProfile(artist.Profile),
	}

	for _, img := range artist.Images {
		kind := "thumb"
		if img.Type == "primary" {
			kind = "background"
		}
		meta.Images = append(meta.Images, provider.ImageRef{
			URL:    img.URI,
			Width:  img.Width,
			Height: img.Height,
			Kind:   kind,
		})
	}

	for _, u := range artist.URLs {
		if meta.Website == "" && !strings.Contains(u, "facebook") && !strings.Contains(u, "twitter") {
			meta.Website = u
			continue
		}
		if meta.SocialLinks == nil {
			meta.SocialLinks = make(map[string]string)
		}
		meta.SocialLinks[socialKey(u)] = u
	}

	raw := map[string]any{"discogs_id": artist.ID}
	if len(artist.Members) > 0 {
		var members []string
		for _, m := range artist.Members {
			if m.Name != "" {
				members = append(members, m.Name)
			}
		}
		raw["members"] = members
	}
	if len(artist.NameVariations) > 0 {
		raw["name_variations"] = artist.NameVariations
	}
	meta.Raw = raw

	return meta
}

// bracketTag matches Discogs profile markup like [a=Artist] and [l=Label].
var bracketTag = regexp.MustCompile(`\[[alrm]=([^\]]+)\]`)

// cleanProfile strips Discogs wiki markup from a profile text, keeping the
// referenced names.
func cleanProfile(profile string) string {
	return strings.TrimSpace(bracketTag.ReplaceAllString(profile, "$1"))
}

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
