// Package enrich implements the multi-source metadata enrichment engine:
// name matching, per-field aggregation across providers, freshness policy,
// the enrichment orchestrator, and the validation/automation layer on top.
package enrich

import (
	"strings"

	"github.com/sonavault/sonavault/internal/provider"
)

// NameSimilarity scores how well two artist names match, in [0,1].
// Exact match after normalization scores 1.0, substring containment either
// way scores 0.9, otherwise the score is the token-set Jaccard index.
func NameSimilarity(a, b string) float64 {
	return nameSimilarity(a, b, 0.9)
}

// NameSimilarityStrict is NameSimilarity with the containment tier lowered
// to 0.85. Sources whose search results are noisy (AllMusic, Discogs) use
// this so a bare substring hit cannot outrank a solid token match elsewhere.
func NameSimilarityStrict(a, b string) float64 {
	return nameSimilarity(a, b, 0.85)
}

func nameSimilarity(a, b string, containment float64) float64 {
	na := normalizeName(a)
	nb := normalizeName(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return containment
	}
	return tokenJaccard(na, nb)
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenJaccard computes |A∩B| / |A∪B| over whitespace-split token sets.
func tokenJaccard(a, b string) float64 {
	setA := map[string]struct{}{}
	for _, tok := range strings.Fields(a) {
		setA[tok] = struct{}{}
	}
	setB := map[string]struct{}{}
	for _, tok := range strings.Fields(b) {
		setB[tok] = struct{}{}
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// QualityScore rates how complete a per-source metadata record is, in [0,1].
// It is a ranking signal inside aggregation, not a user-facing score: fixed
// points for each populated field group, normalized by the maximum of 10.
func QualityScore(m *provider.ArtistMetadata) float64 {
	if m == nil {
		return 0.0
	}
	score := 0.0
	if m.Name != "" {
		score += 1.0
	}
	if len(m.Genres) > 0 {
		score += 1.5
	}
	if len(m.Biography) > 50 {
		score += 2.0
	}
	if len(m.Images) > 0 {
		score += 1.5
	}
	if m.SpotifyID != "" || m.LastFMName != "" || m.IMVDbID != "" || m.MusicBrainzID != "" {
		score += 2.0
	}
	if m.Popularity != nil && *m.Popularity > 0.5 {
		score += 1.0
	}
	if m.FormedYear != nil {
		score += 0.5
	}
	if m.OriginCountry != "" {
		score += 0.5
	}
	return score / 10.0
}

// DefaultSourceWeight returns the built-in trust weight for a source.
// Unknown sources get a conservative 0.5.
func DefaultSourceWeight(name provider.Name) float64 {
	switch name {
	case provider.NameMusicBrainz:
		return 0.95
	case provider.NameSpotify:
		return 0.90
	case provider.NameAllMusic:
		return 0.88
	case provider.NameLastFM:
		return 0.80
	case provider.NameDiscogs:
		return 0.78
	case provider.NameIMVDb:
		return 0.75
	case provider.NameWikipedia:
		return 0.70
	default:
		return 0.5
	}
}

// SourceWeightFromRank converts a user-assigned priority rank into a weight.
// Rank 1 (most trusted) maps to 0.95 and the largest configured rank maps to
// 0.5, linearly. A single configured rank collapses to 0.95.
func SourceWeightFromRank(rank, maxRank int) float64 {
	if rank < 1 {
		rank = 1
	}
	if maxRank < rank {
		maxRank = rank
	}
	if maxRank == 1 {
		return 0.95
	}
	step := (0.95 - 0.5) / float64(maxRank-1)
	return 0.95 - float64(rank-1)*step
}
