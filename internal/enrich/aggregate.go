package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/sonavault/sonavault/internal/provider"
	"github.com/sonavault/sonavault/internal/settings"
)

// ErrNoSources is returned when aggregation is asked to merge zero records.
var ErrNoSources = errors.New("no sources to aggregate")

// genreVoteThreshold is the minimum accumulated weight×confidence a genre
// needs before it survives the vote.
const genreVoteThreshold = 0.3

// defaultMaxRelated caps the merged related-artists list.
const defaultMaxRelated = 10

// externalIDOrder is the trust order for external identifiers. A less
// trusted source can only fill an ID the more trusted ones did not supply.
var externalIDOrder = []provider.Name{
	provider.NameMusicBrainz,
	provider.NameSpotify,
	provider.NameLastFM,
	provider.NameDiscogs,
	provider.NameAllMusic,
	provider.NameIMVDb,
}

// Unified is the single merged record produced from all per-source records.
// The embedded metadata carries Source "aggregated".
type Unified struct {
	provider.ArtistMetadata

	SourcesUsed []provider.Name
	RawSources  map[provider.Name]map[string]any
}

// Aggregator merges per-source metadata records into one Unified record
// using per-field conflict rules and source trust weights.
type Aggregator struct {
	settings *settings.Service
	logger   *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(settings *settings.Service, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		settings: settings,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
}

// SourceWeight returns the trust weight for a source: the user-configured
// priority rank when one exists, otherwise the built-in default.
func (a *Aggregator) SourceWeight(ctx context.Context, name provider.Name) float64 {
	ranks, err := a.settings.SourcePriorities(ctx)
	if err != nil || len(ranks) == 0 {
		return DefaultSourceWeight(name)
	}
	rank, ok := ranks[string(name)]
	if !ok {
		return DefaultSourceWeight(name)
	}
	maxRank := 0
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}
	return SourceWeightFromRank(rank, maxRank)
}

// Aggregate merges the per-source records. The per-field rules are fixed;
// only the weights and list caps come from settings.
func (a *Aggregator) Aggregate(ctx context.Context, sources map[provider.Name]*provider.ArtistMetadata) (*Unified, error) {
	clean := make(map[provider.Name]*provider.ArtistMetadata, len(sources))
	for name, meta := range sources {
		if meta != nil {
			clean[name] = meta
		}
	}
	if len(clean) == 0 {
		return nil, ErrNoSources
	}

	weights := make(map[provider.Name]float64, len(clean))
	for name := range clean {
		weights[name] = a.SourceWeight(ctx, name)
	}

	// Stable iteration order: sources sorted by weight descending, name as
	// tiebreaker, so every merge rule below is deterministic.
	ordered := make([]provider.Name, 0, len(clean))
	for name := range clean {
		ordered = append(ordered, name)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if weights[ordered[i]] != weights[ordered[j]] {
			return weights[ordered[i]] > weights[ordered[j]]
		}
		return ordered[i] < ordered[j]
	})

	unified := &Unified{
		ArtistMetadata: provider.ArtistMetadata{Source: "aggregated"},
		RawSources:     make(map[provider.Name]map[string]any),
	}
	for _, name := range ordered {
		unified.SourcesUsed = append(unified.SourcesUsed, name)
		if raw := clean[name].Raw; raw != nil {
			unified.RawSources[name] = raw
		}
	}

	// Base record: highest confidence × weight seeds the display name.
	base := ordered[0]
	bestScore := -1.0
	for _, name := range ordered {
		score := clean[name].Confidence * weights[name]
		if score > bestScore {
			bestScore = score
			base = name
		}
	}
	unified.Name = clean[base].Name

	unified.Genres = a.voteGenres(ordered, clean, weights)

	a.mergeCounts(unified, clean, ordered)
	a.mergeLists(ctx, unified, clean, ordered)
	a.mergeScalars(unified, clean, ordered)
	a.mergeExternalIDs(unified, clean)

	// Overall confidence: weighted mean of per-source confidences.
	var num, den float64
	for _, name := range ordered {
		num += clean[name].Confidence * weights[name]
		den += weights[name]
	}
	confidence := 0.0
	if den > 0 {
		confidence = num / den
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	unified.Confidence = confidence

	return unified, nil
}

// voteGenres accumulates weight×confidence votes per case-folded genre and
// keeps those above the threshold, strongest first. The first-seen casing
// (in weight order) is preserved.
func (a *Aggregator) voteGenres(ordered []provider.Name, sources map[provider.Name]*provider.ArtistMetadata, weights map[provider.Name]float64) []string {
	votes := make(map[string]float64)
	casing := make(map[string]string)

	for _, name := range ordered {
		meta := sources[name]
		vote := weights[name] * meta.Confidence
		for _, genre := range meta.Genres {
			key := strings.ToLower(strings.TrimSpace(genre))
			if key == "" {
				continue
			}
			votes[key] += vote
			if _, seen := casing[key]; !seen {
				casing[key] = strings.TrimSpace(genre)
			}
		}
	}

	keys := make([]string, 0, len(votes))
	for key, total := range votes {
		if total >= genreVoteThreshold {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if votes[keys[i]] != votes[keys[j]] {
			return votes[keys[i]] > votes[keys[j]]
		}
		return keys[i] < keys[j]
	})

	var genres []string
	for _, key := range keys {
		genres = append(genres, casing[key])
	}
	return genres
}

// mergeCounts applies the numeric rules: popularity and followers prefer
// Spotify and fall back to the largest non-nil value; listening statistics
// are Last.fm concepts and are taken from Last.fm only.
func (a *Aggregator) mergeCounts(unified *Unified, sources map[provider.Name]*provider.ArtistMetadata, ordered []provider.Name) {
	if sp, ok := sources[provider.NameSpotify]; ok {
		unified.Popularity = sp.Popularity
		unified.Followers = sp.Followers
	}
	if unified.Popularity == nil {
		for _, name := range ordered {
			if p := sources[name].Popularity; p != nil && (unified.Popularity == nil || *p > *unified.Popularity) {
				unified.Popularity = p
			}
		}
	}
	if unified.Followers == nil {
		for _, name := range ordered {
			if f := sources[name].Followers; f != nil && (unified.Followers == nil || *f > *unified.Followers) {
				unified.Followers = f
			}
		}
	}

	if lf, ok := sources[provider.NameLastFM]; ok {
		unified.Playcount = lf.Playcount
		unified.Listeners = lf.Listeners
		unified.UserPlaycount = lf.UserPlaycount
	}
}

// mergeLists applies the list rules: related artists and top tracks prefer
// Spotify then Last.fm; images prefer Spotify then the heaviest source;
// biographies prefer Last.fm then the heaviest source.
func (a *Aggregator) mergeLists(ctx context.Context, unified *Unified, sources map[provider.Name]*provider.ArtistMetadata, ordered []provider.Name) {
	maxRelated := a.settings.GetInt(ctx, "enrichment.max_related_artists", defaultMaxRelated)

	related := pickList(sources, provider.NameSpotify, provider.NameLastFM, provider.NameMusicBrainz)
	if related == nil {
		seen := make(map[string]bool)
		for _, name := range ordered {
			for _, similar := range sources[name].SimilarArtists {
				if similar == "" || seen[strings.ToLower(similar)] {
					continue
				}
				seen[strings.ToLower(similar)] = true
				related = append(related, similar)
			}
		}
	}
	if len(related) > maxRelated {
		related = related[:maxRelated]
	}
	unified.SimilarArtists = related

	if sp, ok := sources[provider.NameSpotify]; ok && len(sp.TopTracks) > 0 {
		unified.TopTracks = sp.TopTracks
	} else if lf, ok := sources[provider.NameLastFM]; ok && len(lf.TopTracks) > 0 {
		unified.TopTracks = lf.TopTracks
	}

	if sp, ok := sources[provider.NameSpotify]; ok && len(sp.Images) > 0 {
		unified.Images = sp.Images
	} else {
		for _, name := range ordered {
			if imgs := sources[name].Images; len(imgs) > 0 {
				unified.Images = imgs
				break
			}
		}
	}

	if lf, ok := sources[provider.NameLastFM]; ok && lf.Biography != "" {
		unified.Biography = lf.Biography
	} else {
		for _, name := range ordered {
			if bio := sources[name].Biography; bio != "" {
				unified.Biography = bio
				break
			}
		}
	}
}

// pickList returns the first preferred source's non-empty similar-artists
// list, or nil when none of them has one.
func pickList(sources map[provider.Name]*provider.ArtistMetadata, preferred ...provider.Name) []string {
	for _, name := range preferred {
		if meta, ok := sources[name]; ok && len(meta.SimilarArtists) > 0 {
			return meta.SimilarArtists
		}
	}
	return nil
}

// mergeScalars fills the remaining single-valued fields from the heaviest
// source that has them.
func (a *Aggregator) mergeScalars(unified *Unified, sources map[provider.Name]*provider.ArtistMetadata, ordered []provider.Name) {
	for _, name := range ordered {
		meta := sources[name]
		if unified.FormedYear == nil {
			unified.FormedYear = meta.FormedYear
		}
		if unified.DisbandedYear == nil {
			unified.DisbandedYear = meta.DisbandedYear
		}
		if unified.OriginCountry == "" {
			unified.OriginCountry = meta.OriginCountry
		}
		if unified.Website == "" {
			unified.Website = meta.Website
		}
		for k, v := range meta.SocialLinks {
			if unified.SocialLinks == nil {
				unified.SocialLinks = make(map[string]string)
			}
			if _, exists := unified.SocialLinks[k]; !exists {
				unified.SocialLinks[k] = v
			}
		}
	}
}

// mergeExternalIDs fills each identifier from the most trusted source that
// supplies it, in the fixed trust order.
func (a *Aggregator) mergeExternalIDs(unified *Unified, sources map[provider.Name]*provider.ArtistMetadata) {
	for _, name := range externalIDOrder {
		meta, ok := sources[name]
		if !ok {
			continue
		}
		if unified.SpotifyID == "" {
			unified.SpotifyID = meta.SpotifyID
		}
		if unified.LastFMName == "" {
			unified.LastFMName = meta.LastFMName
		}
		if unified.IMVDbID == "" {
			unified.IMVDbID = meta.IMVDbID
		}
		if unified.MusicBrainzID == "" {
			unified.MusicBrainzID = meta.MusicBrainzID
		}
	}
}
