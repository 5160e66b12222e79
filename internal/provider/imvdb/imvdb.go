// Package imvdb adapts the IMVDb (Internet Music Video Database) API to the
// provider contract. IMVDb is the authority for music-video credits; its
// entity ID is what links a catalog artist to its videography.
package imvdb

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

const defaultBaseURL = "https://imvdb.com/api/v1"

// minMatchScore is the name-similarity floor below which a search hit is
// rejected.
const minMatchScore = 0.6

// Adapter implements provider.Provider for IMVDb.
type Adapter struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	logger   *slog.Logger
	baseURL  string
}

// New creates an IMVDb adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, settings, logger, defaultBaseURL)
}

// NewWithBaseURL creates an IMVDb adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  limiter,
		settings: settings,
		logger:   logger.With(slog.String("provider", "imvdb")),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the source identifier.
func (a *Adapter) Name() provider.Name { return provider.NameIMVDb }

// Enabled reports whether an app key is configured and the source is
// switched on.
func (a *Adapter) Enabled(ctx context.Context) bool {
	return a.settings.IsEnabled(ctx, provider.NameIMVDb)
}

// SearchArtist searches IMVDb entities matching the given name.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.Candidate, error) {
	resp, err := a.search(ctx, name)
	if err != nil {
		return nil, err
	}

	candidates := make([]provider.Candidate, 0, len(resp.Results))
	for _, hit := range resp.Results {
		candidates = append(candidates, provider.Candidate{
			ProviderID: strconv.Itoa(hit.ID),
			Name:       hit.Name,
			Score:      enrich.NameSimilarity(name, hit.Name),
			Source:     provider.NameIMVDb,
		})
	}
	return candidates, nil
}

// GetArtistMetadata fetches metadata by numeric entity ID or by name.
func (a *Adapter) GetArtistMetadata(ctx context.Context, nameOrID string) (*provider.ArtistMetadata, error) {
	if id, err := strconv.Atoi(nameOrID); err == nil {
		entity, err := a.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		meta := mapEntity(entity)
		meta.Confidence = 1.0
		return meta, nil
	}

	resp, err := a.search(ctx, nameOrID)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameIMVDb, ID: nameOrID}
	}

	results := resp.Results
	sort.SliceStable(results, func(i, j int) bool {
		si := enrich.NameSimilarity(nameOrID, results[i].Name)
		sj := enrich.NameSimilarity(nameOrID, results[j].Name)
		if si != sj {
			return si > sj
		}
		return results[i].ArtistVideoCount > results[j].ArtistVideoCount
	})

	best := results[0]
	score := enrich.NameSimilarity(nameOrID, best.Name)
	if score < minMatchScore {
		return nil, &provider.ErrNotFound{Provider: provider.NameIMVDb, ID: nameOrID}
	}

	entity, err := a.lookup(ctx, best.ID)
	if err != nil {
		return nil, err
	}
	meta := mapEntity(entity)
	meta.Confidence = score
	return meta, nil
}

func (a *Adapter) search(ctx context.Context, name string) (*SearchResponse, error) {
	params := url.Values{"q": {name}}
	body, err := a.doRequest(ctx, a.baseURL+"/search/entities?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	return &resp, nil
}

func (a *Adapter) lookup(ctx context.Context, id int) (*Entity, error) {
	body, err := a.doRequest(ctx, fmt.Sprintf("%s/entity/%d", a.baseURL, id))
	if err != nil {
		return nil, err
	}
	var entity Entity
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, fmt.Errorf("parsing entity lookup: %w", err)
	}
	if entity.ID == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameIMVDb, ID: strconv.Itoa(id)}
	}
	return &entity, nil
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	appKey, err := a.settings.GetAPIKey(ctx, provider.NameIMVDb)
	if err != nil {
		return nil, fmt.Errorf("getting API key: %w", err)
	}
	if appKey == "" {
		return nil, &provider.ErrAuthRequired{Provider: provider.NameIMVDb}
	}

	if err := a.limiter.Wait(ctx, provider.NameIMVDb); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameIMVDb,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "SonaVault/1.0")
	req.Header.Set("IMVDB-APP-KEY", appKey)
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{Provider: provider.NameIMVDb, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrAuthRequired{Provider: provider.NameIMVDb}
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Provider: provider.NameIMVDb, ID: reqURL}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameIMVDb,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

func mapEntity(entity *Entity) *provider.ArtistMetadata {
	meta := &provider.ArtistMetadata{
		Source:  provider.NameIMVDb,
		Name:    entity.Name,
		IMVDbID: strconv.Itoa(entity.ID),
	}

	if entity.Image.Original != "" {
		meta.Images = append(meta.Images, provider.ImageRef{URL: entity.Image.Original, Kind: "background"})
	}
	if entity.Image.Large != "" {
		meta.Images = append(meta.Images, provider.ImageRef{URL: entity.Image.Large, Kind: "thumb"})
	}

	if entity.URL != "" {
		meta.SocialLinks = map[string]string{"imvdb": entity.URL}
	}

	raw := map[string]any{
		"slug":               entity.Slug,
		"artist_video_count": entity.ArtistVideoCount,
	}
	if entity.Byline != "" {
		raw["byline"] = entity.Byline
	}
	if entity.DiscogsID != 0 {
		raw["discogs_id"] = entity.DiscogsID
	}
	meta.Raw = raw

	return meta
}
