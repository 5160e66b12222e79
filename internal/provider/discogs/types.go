package discogs

// SearchResponse is the /database/search envelope.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// SearchResult is a single database search hit. Title is the artist name for
// type=artist searches.
type SearchResult struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Thumb      string `json:"thumb"`
	CoverImage string `json:"cover_image"`
}

// Artist is the /artists/{id} payload.
type Artist struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	Profile        string   `json:"profile"`
	URLs           []string `json:"urls"`
	NameVariations []string `json:"namevariations"`
	Members        []struct {
		Name   string `json:"name"`
		Active bool   `json:"active"`
	} `json:"members"`
	Images []struct {
		URI    string `json:"uri"`
		Type   string `json:"type"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"images"`
}
