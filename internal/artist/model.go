package artist

import (
	"encoding/json"
	"time"
)

// Artist represents a catalog artist with its music videos and enriched
// metadata. External IDs for Spotify, Last.fm, and IMVDb are first-class
// columns; everything else enrichment discovers lives in the Meta blob.
type Artist struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SpotifyID  string    `json:"spotify_id"`
	LastFMName string    `json:"lastfm_name"`
	IMVDbID    string    `json:"imvdb_id"`
	Genres     []string  `json:"genres"`
	Labels     []string  `json:"labels"`
	Members    string    `json:"members"`
	Meta       *Metadata `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Video is a music video belonging to an artist.
type Video struct {
	ID        string    `json:"id"`
	ArtistID  string    `json:"artist_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Image is a stored artist image descriptor.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// Metadata is the enrichment blob persisted as a JSON column. Every known
// enriched field is declared; provider-specific extras without a first-class
// slot go into Extra.
type Metadata struct {
	EnrichmentDate  *time.Time `json:"enrichment_date,omitempty"`
	ConfidenceScore float64    `json:"confidence_score,omitempty"`
	SourcesUsed     []string   `json:"sources_used,omitempty"`

	Biography      string   `json:"biography,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	RelatedArtists []string `json:"related_artists,omitempty"`
	TopTracks      []string `json:"top_tracks,omitempty"`
	Images         []Image  `json:"images,omitempty"`

	Popularity    *float64 `json:"popularity,omitempty"`
	Followers     *int64   `json:"followers,omitempty"`
	Playcount     *int64   `json:"playcount,omitempty"`
	Listeners     *int64   `json:"listeners,omitempty"`
	UserPlaycount *int64   `json:"user_playcount,omitempty"`

	FormedYear    *int   `json:"formed_year,omitempty"`
	DisbandedYear *int   `json:"disbanded_year,omitempty"`
	OriginCountry string `json:"origin_country,omitempty"`

	// MusicBrainz has no dedicated artists column, so its ID is carried here.
	MusicBrainzID string `json:"musicbrainz_id,omitempty"`

	Website     string            `json:"website,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// HasMeaningfulData reports whether the blob holds at least one populated
// enriched field. A blob with only a timestamp, confidence, and source list
// does not count: that is the residue of a degenerate enrichment run and must
// not suppress re-enrichment.
func (m *Metadata) HasMeaningfulData() bool {
	if m == nil {
		return false
	}
	switch {
	case m.Biography != "",
		len(m.Genres) > 0,
		len(m.RelatedArtists) > 0,
		len(m.TopTracks) > 0,
		len(m.Images) > 0,
		m.Popularity != nil,
		m.Followers != nil,
		m.Playcount != nil,
		m.Listeners != nil:
		return true
	}
	return false
}

// MergeFrom applies incoming enriched fields non-destructively: a populated
// incoming value overwrites, an empty one never erases an existing value.
// EnrichmentDate, SourcesUsed, and ConfidenceScore are NOT touched here; the
// orchestrator refreshes those unconditionally after every pass.
func (m *Metadata) MergeFrom(in *Metadata) {
	if in == nil {
		return
	}
	if in.Biography != "" {
		m.Biography = in.Biography
	}
	if len(in.Genres) > 0 {
		m.Genres = in.Genres
	}
	if len(in.RelatedArtists) > 0 {
		m.RelatedArtists = in.RelatedArtists
	}
	if len(in.TopTracks) > 0 {
		m.TopTracks = in.TopTracks
	}
	if len(in.Images) > 0 {
		m.Images = in.Images
	}
	if in.Popularity != nil {
		m.Popularity = in.Popularity
	}
	if in.Followers != nil {
		m.Followers = in.Followers
	}
	if in.Playcount != nil {
		m.Playcount = in.Playcount
	}
	if in.Listeners != nil {
		m.Listeners = in.Listeners
	}
	if in.UserPlaycount != nil {
		m.UserPlaycount = in.UserPlaycount
	}
	if in.FormedYear != nil {
		m.FormedYear = in.FormedYear
	}
	if in.DisbandedYear != nil {
		m.DisbandedYear = in.DisbandedYear
	}
	if in.OriginCountry != "" {
		m.OriginCountry = in.OriginCountry
	}
	if in.MusicBrainzID != "" {
		m.MusicBrainzID = in.MusicBrainzID
	}
	if in.Website != "" {
		m.Website = in.Website
	}
	for k, v := range in.SocialLinks {
		if m.SocialLinks == nil {
			m.SocialLinks = make(map[string]string)
		}
		m.SocialLinks[k] = v
	}
	for k, v := range in.Extra {
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
}

// MarshalMetadata encodes a metadata blob for storage. A nil blob is stored
// as SQL NULL (empty string sentinel here).
func MarshalMetadata(m *Metadata) string {
	if m == nil {
		return ""
	}
	data, _ := json.Marshal(m)
	return string(data)
}

// UnmarshalMetadata decodes a stored metadata blob. Empty input yields nil.
func UnmarshalMetadata(data string) *Metadata {
	if data == "" || data == "{}" || data == "null" {
		return nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil
	}
	return &m
}

// MarshalStringSlice encodes a string slice as a JSON array string.
func MarshalStringSlice(s []string) string {
	if s == nil {
		return "[]"
	}
	data, _ := json.Marshal(s)
	return string(data)
}

// UnmarshalStringSlice decodes a JSON array string into a string slice.
func UnmarshalStringSlice(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var result []string
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil
	}
	return result
}
