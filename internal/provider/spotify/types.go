package spotify

// SearchResponse is the /search?type=artist envelope.
type SearchResponse struct {
	Artists struct {
		Items []Artist `json:"items"`
	} `json:"artists"`
}

// Artist is the Spotify artist object.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	Genres     []string `json:"genres"`
	Followers  struct {
		Total int64 `json:"total"`
	} `json:"followers"`
	Images []Image `json:"images"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// Image is a Spotify image descriptor, largest first.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// RelatedResponse is the /artists/{id}/related-artists envelope.
type RelatedResponse struct {
	Artists []Artist `json:"artists"`
}

// TopTracksResponse is the /artists/{id}/top-tracks envelope.
type TopTracksResponse struct {
	Tracks []struct {
		Name string `json:"name"`
	} `json:"tracks"`
}
