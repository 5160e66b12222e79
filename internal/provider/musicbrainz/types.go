package musicbrainz

// SearchResponse is the artist search envelope.
type SearchResponse struct {
	Artists []SearchArtist `json:"artists"`
}

// SearchArtist is a single search hit. Score is MusicBrainz's own 0-100
// relevance score, kept only as a tiebreaker.
type SearchArtist struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	Country        string `json:"country"`
	Disambiguation string `json:"disambiguation"`
}

// Artist is the full artist lookup payload.
type Artist struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	LifeSpan struct {
		Begin string `json:"begin"`
		End   string `json:"end"`
		Ended bool   `json:"ended"`
	} `json:"life-span"`
	Genres    []Genre    `json:"genres"`
	Relations []Relation `json:"relations"`
}

// Genre is a community-voted genre tag.
type Genre struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Relation is a url-rels entry linking the artist to an external site.
type Relation struct {
	Type string `json:"type"`
	URL  struct {
		Resource string `json:"resource"`
	} `json:"url"`
}
