// Package allmusic adapts the AllMusic website to the provider contract by
// scraping its search and artist pages. AllMusic has no public API; it
// contributes editorial biographies, genres and styles, and active-date
// spans. Matching uses the strict similarity variant because search pages
// mix artists with similarly named albums and songs.
package allmusic

import (
	"bytes"
	"context"
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

	"golang.org/x/net/html"

	"github.com/sonavault/sonavault/internal/enrich"
	"github.com/sonavault/sonavault/internal/provider"
)

const defaultBaseURL = "https://www.allmusic.com"

// minMatchScore is the strict name-similarity floor below which a scraped
// hit is rejected.
const minMatchScore = 0.6

// artistPath matches artist page links like /artist/radiohead-mn0000326199.
var artistPath = regexp.MustCompile(`/artist/([a-z0-9-]+-mn[0-9]+)`)

// Adapter implements provider.Provider for AllMusic.
type Adapter struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	logger   *slog.Logger
	baseURL  string
}

// New creates an AllMusic adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, settings, logger, defaultBaseURL)
}

// NewWithBaseURL creates an AllMusic adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  limiter,
		settings: settings,
		logger:   logger.With(slog.String("provider", "allmusic")),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the source identifier.
func (a *Adapter) Name() provider.Name { return provider.NameAllMusic }

// Enabled reports whether the source is switched on. Scraping needs no
// credentials, so only the explicit flag can disable it.
func (a *Adapter) Enabled(ctx context.Context) bool {
	return a.settings.IsEnabled(ctx, provider.NameAllMusic)
}

// SearchArtist scrapes the AllMusic artist search page for matching names.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.Candidate, error) {
	hits, err := a.search(ctx, name)
	if err != nil {
		return nil, err
	}

	candidates := make([]provider.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, provider.Candidate{
			ProviderID: hit.id,
			Name:       hit.name,
			Score:      enrich.NameSimilarityStrict(name, hit.name),
			Source:     provider.NameAllMusic,
		})
	}
	return candidates, nil
}

// GetArtistMetadata fetches metadata by AllMusic artist ID (the "mn"-suffixed
// slug) or by name via the search page.
func (a *Adapter) GetArtistMetadata(ctx context.Context, nameOrID string) (*provider.ArtistMetadata, error) {
	if artistPath.MatchString("/artist/" + nameOrID) {
		meta, err := a.scrapeArtist(ctx, nameOrID)
		if err != nil {
			return nil, err
		}
		meta.Confidence = 1.0
		return meta, nil
	}

	hits, err := a.search(ctx, nameOrID)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameAllMusic, ID: nameOrID}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return enrich.NameSimilarityStrict(nameOrID, hits[i].name) >
			enrich.NameSimilarityStrict(nameOrID, hits[j].name)
	})
	best := hits[0]
	score := enrich.NameSimilarityStrict(nameOrID, best.name)
	if score < minMatchScore {
		return nil, &provider.ErrNotFound{Provider: provider.NameAllMusic, ID: nameOrID}
	}

	meta, err := a.scrapeArtist(ctx, best.id)
	if err != nil {
		return nil, err
	}
	meta.Confidence = score
	return meta, nil
}

type searchHit struct {
	id   string
	name string
}

func (a *Adapter) search(ctx context.Context, name string) ([]searchHit, error) {
	doc, err := a.fetch(ctx, a.baseURL+"/search/artists/"+url.PathEscape(name))
	if err != nil {
		return nil, err
	}

	var hits []searchHit
	seen := map[string]bool{}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		m := artistPath.FindStringSubmatch(attr(n, "href"))
		if m == nil {
			return
		}
		text := strings.TrimSpace(textContent(n))
		if text == "" || seen[m[1]] {
			return
		}
		seen[m[1]] = true
		hits = append(hits, searchHit{id: m[1], name: text})
	})
	return hits, nil
}

func (a *Adapter) scrapeArtist(ctx context.Context, id string) (*provider.ArtistMetadata, error) {
	doc, err := a.fetch(ctx, a.baseURL+"/artist/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	meta := &provider.ArtistMetadata{
		Source: provider.NameAllMusic,
		Raw:    map[string]any{"allmusic_id": id},
	}
	var metaDescription string

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch {
		case n.Data == "h1" && hasClass(n, "artist-name"):
			meta.Name = strings.TrimSpace(textContent(n))
		case n.Data == "a" && strings.Contains(attr(n, "href"), "/genre/"):
			appendUnique(&meta.Genres, strings.TrimSpace(textContent(n)))
		case n.Data == "a" && strings.Contains(attr(n, "href"), "/style/"):
			appendUnique(&meta.Genres, strings.TrimSpace(textContent(n)))
		case n.Data == "div" && hasClass(n, "biography"):
			if meta.Biography == "" {
				meta.Biography = strings.TrimSpace(textContent(n))
			}
		case n.Data == "div" && hasClass(n, "activeDates"):
			from, to := parseActiveDates(textContent(n))
			meta.FormedYear = from
			meta.DisbandedYear = to
		case n.Data == "meta" && attr(n, "name") == "description":
			metaDescription = strings.TrimSpace(attr(n, "content"))
		}
	})

	// The page description is a fallback when no biography section exists.
	if meta.Biography == "" {
		meta.Biography = metaDescription
	}

	if meta.Name == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameAllMusic, ID: id}
	}
	return meta, nil
}

func (a *Adapter) fetch(ctx context.Context, reqURL string) (*html.Node, error) {
	if err := a.limiter.Wait(ctx, provider.NameAllMusic); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameAllMusic,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SonaVault/1.0)")
	req.Header.Set("Accept", "text/html")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{Provider: provider.NameAllMusic, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Provider: provider.NameAllMusic, ID: reqURL}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameAllMusic,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{Provider: provider.NameAllMusic, Cause: err}
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	return doc, nil
}

// walk runs fn over every node in the tree, depth first.
func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

func appendUnique(dst *[]string, s string) {
	if s == "" {
		return
	}
	for _, existing := range *dst {
		if strings.EqualFold(existing, s) {
			return
		}
	}
	*dst = append(*dst, s)
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// parseActiveDates extracts formed and disbanded years from spans like
// "1985 - 2011" or "2010s - present".
func parseActiveDates(text string) (from, to *int) {
	years := yearPattern.FindAllString(text, 2)
	if len(years) > 0 {
		if y, err := strconv.Atoi(years[0]); err == nil {
			from = &y
		}
	}
	if len(years) > 1 && !strings.Contains(strings.ToLower(text), "present") {
		if y, err := strconv.Atoi(years[1]); err == nil {
			to = &y
		}
	}
	return from, to
}
