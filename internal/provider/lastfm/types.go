package lastfm

// SearchResponse is the artist.search method envelope.
type SearchResponse struct {
	Results struct {
		ArtistMatches struct {
			Artist []SearchArtist `json:"artist"`
		} `json:"artistmatches"`
	} `json:"results"`
}

// SearchArtist is a single artist.search hit.
type SearchArtist struct {
	Name      string `json:"name"`
	MBID      string `json:"mbid"`
	URL       string `json:"url"`
	Listeners string `json:"listeners"`
}

// InfoResponse is the artist.getinfo envelope.
type InfoResponse struct {
	Artist ArtistInfo `json:"artist"`
}

// ArtistInfo is the full artist.getinfo payload.
type ArtistInfo struct {
	Name  string `json:"name"`
	MBID  string `json:"mbid"`
	URL   string `json:"url"`
	Stats struct {
		Listeners     string `json:"listeners"`
		Playcount     string `json:"playcount"`
		UserPlaycount string `json:"userplaycount"`
	} `json:"stats"`
	Similar struct {
		Artist []struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"similar"`
	Tags struct {
		Tag []struct {
			Name string `json:"name"`
		} `json:"tag"`
	} `json:"tags"`
	Bio struct {
		Summary string `json:"summary"`
		Content string `json:"content"`
	} `json:"bio"`
}

// TopTracksResponse is the artist.gettoptracks envelope.
type TopTracksResponse struct {
	TopTracks struct {
		Track []struct {
			Name string `json:"name"`
		} `json:"track"`
	} `json:"toptracks"`
}
