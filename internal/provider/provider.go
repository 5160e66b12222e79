// Package provider defines the contract between the enrichment engine and
// the external metadata sources, plus the shared infrastructure (registry,
// rate limiting, credential storage) the adapters use.
package provider

import (
	"context"
	"fmt"
)

// Name uniquely identifies a metadata source.
type Name string

// Known source names.
const (
	NameSpotify     Name = "spotify"
	NameLastFM      Name = "lastfm"
	NameMusicBrainz Name = "musicbrainz"
	NameIMVDb       Name = "imvdb"
	NameAllMusic    Name = "allmusic"
	NameDiscogs     Name = "discogs"
	NameWikipedia   Name = "wikipedia"
)

// AllNames returns all known source names in display order.
func AllNames() []Name {
	return []Name{
		NameMusicBrainz,
		NameSpotify,
		NameAllMusic,
		NameLastFM,
		NameDiscogs,
		NameIMVDb,
	}
}

// DisplayName returns a human-readable name for the source.
func (n Name) DisplayName() string {
	switch n {
	case NameSpotify:
		return "Spotify"
	case NameLastFM:
		return "Last.fm"
	case NameMusicBrainz:
		return "MusicBrainz"
	case NameIMVDb:
		return "IMVDb"
	case NameAllMusic:
		return "AllMusic"
	case NameDiscogs:
		return "Discogs"
	case NameWikipedia:
		return "Wikipedia"
	default:
		return string(n)
	}
}

// ImageRef describes a single artist image offered by a source.
type ImageRef struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Kind   string `json:"kind,omitempty"` // thumb, banner, background
}

// Candidate is a single fuzzy-search hit from a source.
type Candidate struct {
	ProviderID string  `json:"provider_id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"` // name similarity against the query
	Country    string  `json:"country,omitempty"`
	Source     Name    `json:"source"`
}

// ArtistMetadata is the normalized per-source metadata record. One is built
// fresh for every enrichment attempt and discarded after aggregation.
type ArtistMetadata struct {
	Source     Name    `json:"source"`
	Confidence float64 `json:"confidence"` // [0,1] belief the match is correct

	Name      string   `json:"name"`
	Genres    []string `json:"genres,omitempty"`
	Biography string   `json:"biography,omitempty"`

	Popularity    *float64 `json:"popularity,omitempty"`
	Followers     *int64   `json:"followers,omitempty"`
	Playcount     *int64   `json:"playcount,omitempty"` // Last.fm concepts
	Listeners     *int64   `json:"listeners,omitempty"`
	UserPlaycount *int64   `json:"user_playcount,omitempty"`

	Images []ImageRef `json:"images,omitempty"`

	SpotifyID     string `json:"spotify_id,omitempty"`
	LastFMName    string `json:"lastfm_name,omitempty"`
	IMVDbID       string `json:"imvdb_id,omitempty"`
	MusicBrainzID string `json:"musicbrainz_id,omitempty"`

	SimilarArtists []string `json:"similar_artists,omitempty"` // relevance order
	TopTracks      []string `json:"top_tracks,omitempty"`

	FormedYear    *int              `json:"formed_year,omitempty"`
	DisbandedYear *int              `json:"disbanded_year,omitempty"`
	OriginCountry string            `json:"origin_country,omitempty"`
	Website       string            `json:"website,omitempty"`
	SocialLinks   map[string]string `json:"social_links,omitempty"`

	// Raw is the provider payload kept for provenance and extraction of
	// fields that have no first-class slot yet.
	Raw map[string]any `json:"raw,omitempty"`
}

// Provider is the interface every metadata source adapter implements.
type Provider interface {
	// Name returns the unique source identifier.
	Name() Name

	// Enabled reports whether the source is configured and switched on.
	// The orchestrator silently skips disabled sources.
	Enabled(ctx context.Context) bool

	// SearchArtist performs a best-effort fuzzy search. May return empty.
	SearchArtist(ctx context.Context, name string) ([]Candidate, error)

	// GetArtistMetadata fetches and normalizes metadata for an artist by
	// name or provider-specific ID. Returns ErrNotFound when the source has
	// no acceptable match.
	GetArtistMetadata(ctx context.Context, nameOrID string) (*ArtistMetadata, error)
}

// ErrProviderUnavailable indicates a transient failure (rate-limited,
// timeout, server error).
type ErrProviderUnavailable struct {
	Provider Name
	Cause    error
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the source has no match for the requested artist.
type ErrNotFound struct {
	Provider Name
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: artist %s not found", e.Provider, e.ID)
}

// ErrAuthRequired indicates the source needs credentials but none are
// configured.
type ErrAuthRequired struct {
	Provider Name
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("provider %s: credentials not configured", e.Provider)
}
