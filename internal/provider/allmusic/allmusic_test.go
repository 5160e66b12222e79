package allmusic

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sonavault/sonavault/internal/database"
	"github.com/sonavault/sonavault/internal/encryption"
	"github.com/sonavault/sonavault/internal/provider"
)

const radioheadID = "radiohead-mn0000326199"

func setupAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	enc, _, err := encryption.NewEncryptor("")
	if err != nil {
		t.Fatalf("creating encryptor: %v", err)
	}
	settings := provider.NewSettingsService(db, enc)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWithBaseURL(provider.NewRateLimiterMap(), settings, logger, server.URL)
}

func searchPage() string {
	return `<html><body>
		<ul class="search-results">
			<li class="artist"><div class="name">
				<a href="/artist/` + radioheadID + `">Radiohead</a>
			</div></li>
			<li class="artist"><div class="name">
				<a href="/artist/on-a-friday-mn0001234567">On a Friday</a>
			</div></li>
		</ul>
	</body></html>`
}

func artistPage() string {
	return `<html><head>
		<meta name="description" content="fallback description">
	</head><body>
		<h1 class="artist-name"> Radiohead </h1>
		<div class="activeDates"><div>1985 - present</div></div>
		<div class="genre"><a href="/genre/pop-rock-ma0000002613">Pop/Rock</a></div>
		<div class="styles">
			<a href="/style/alternative-indie-rock-ma0000004442">Alternative/Indie Rock</a>
			<a href="/style/alternative-indie-rock-ma0000004442">Alternative/Indie Rock</a>
		</div>
		<div class="biography">Radiohead traded conventional rock stardom for restless reinvention.</div>
	</body></html>`
}

func TestSearchArtist(t *testing.T) {
	adapter := setupAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchPage()))
	}))

	candidates, err := adapter.SearchArtist(context.Background(), "Radiohead")
	if err != nil {
		t.Fatalf("SearchArtist: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].ProviderID != radioheadID || candidates[0].Score != 1.0 {
		t.Errorf("first candidate = %+v", candidates[0])
	}
}

func TestGetArtistMetadata_ByName(t *testing.T) {
	adapter := setupAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/artists/Radiohead":
			_, _ = w.Write([]byte(searchPage()))
		case "/artist/" + radioheadID:
			_, _ = w.Write([]byte(artistPage()))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))

	meta, err := adapter.GetArtistMetadata(context.Background(), "Radiohead")
	if err != nil {
		t.Fatalf("GetArtistMetadata: %v", err)
	}
	if meta.Name != "Radiohead" {
		t.Errorf("Name = %q", meta.Name)
	}
	if meta.Confidence != 1.0 {
		t.Errorf("Confidence = %v", meta.Confidence)
	}
	if meta.Biography != "Radiohead traded conventional rock stardom for restless reinvention." {
		t.Errorf("Biography = %q", meta.Biography)
	}
	// Genre + style links merged, duplicates dropped
	if len(meta.Genres) != 2 || meta.Genres[0] != "Pop/Rock" {
		t.Errorf("Genres = %v", meta.Genres)
	}
	if meta.FormedYear == nil || *meta.FormedYear != 1985 {
		t.Errorf("FormedYear = %v", meta.FormedYear)
	}
	if meta.DisbandedYear != nil {
		t.Errorf("DisbandedYear = %v for active artist", meta.DisbandedYear)
	}
	if meta.Raw["allmusic_id"] != radioheadID {
		t.Errorf("Raw allmusic_id = %v", meta.Raw["allmusic_id"])
	}
}

func TestGetArtistMetadata_ByID(t *testing.T) {
	adapter := setupAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/artist/"+radioheadID {
			t.Errorf("path = %q, ID input should skip search", r.URL.Path)
		}
		_, _ = w.Write([]byte(artistPage()))
	}))

	meta, err := adapter.GetArtistMetadata(context.Background(), radioheadID)
	if err != nil {
		t.Fatalf("GetArtistMetadata: %v", err)
	}
	if meta.Confidence != 1.0 {
		t.Errorf("Confidence = %v", meta.Confidence)
	}
}

func TestGetArtistMetadata_NoMatch(t *testing.T) {
	adapter := setupAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>No results</p></body></html>`))
	}))

	_, err := adapter.GetArtistMetadata(context.Background(), "Unknown Artist")
	var notFound *provider.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestParseActiveDates(t *testing.T) {
	from, to := parseActiveDates("1985 - 2011")
	if from == nil || *from != 1985 || to == nil || *to != 2011 {
		t.Errorf("parseActiveDates(span) = %v, %v", from, to)
	}
	from, to = parseActiveDates("1985 - present")
	if from == nil || *from != 1985 || to != nil {
		t.Errorf("parseActiveDates(present) = %v, %v", from, to)
	}
	from, to = parseActiveDates("")
	if from != nil || to != nil {
		t.Errorf("parseActiveDates(empty) = %v, %v", from, to)
	}
}
