package imvdb

// SearchResponse is the /search/entities envelope.
type SearchResponse struct {
	Results []Entity `json:"results"`
}

// Entity is an IMVDb artist entity. Image carries pre-scaled variants keyed
// by size (o=original, l=large, b=medium, t=thumb).
type Entity struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	URL       string `json:"url"`
	Byline    string `json:"byline"`
	DiscogsID int    `json:"discogs_id"`
	Image     struct {
		Original string `json:"o"`
		Large    string `json:"l"`
		Medium   string `json:"b"`
		Thumb    string `json:"t"`
	} `json:"image"`
	ArtistVideoCount int `json:"artist_video_count"`
}
