package spotify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sonavault/sonavault/internal/database"
	"github.com/sonavault/sonavault/internal/encryption"
	"github.com/sonavault/sonavault/internal/provider"
)

const daftPunkID = "4tZwfgrHOc3mvqYlEYSvVi"

func setupAdapter(t *testing.T, api http.HandlerFunc) *Adapter {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token request method = %q", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("Authorization = %q", auth)
		}
		api(w, r)
	})
	server := httptest.NewServer(mux)
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
	ctx := context.Background()
	if err := settings.SetCredential(ctx, provider.NameSpotify, "client_id", "id"); err != nil {
		t.Fatalf("storing client id: %v", err)
	}
	if err := settings.SetCredential(ctx, provider.NameSpotify, "client_secret", "secret"); err != nil {
		t.Fatalf("storing client secret: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWithBaseURL(provider.NewRateLimiterMap(), settings, logger, server.URL, server.URL+"/token")
}

func searchPayload() string {
	return `{"artists":{"items":[{
		"id":"` + daftPunkID + `",
		"name":"Daft Punk",
		"popularity":82,
		"genres":["french house","electro"],
		"followers":{"total":9000000},
		"images":[{"url":"https://img/large","width":640,"height":640}],
		"external_urls":{"spotify":"https://open.spotify.com/artist/` + daftPunkID + `"}
	}]}}`
}

func TestSearchArtist(t *testing.T) {
	adapter := setupAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("type") != "artist" {
			t.Errorf("type = %q", r.URL.Query().Get("type"))
		}
		_, _ = w.Write([]byte(searchPayload()))
	})

	candidates, err := adapter.SearchArtist(context.Background(), "Daft Punk")
	if err != nil {
		t.Fatalf("SearchArtist: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].ProviderID != daftPunkID || candidates[0].Score != 1.0 {
		t.Errorf("candidate = %+v", candidates[0])
	}
}

func TestGetArtistMetadata_ByName(t *testing.T) {
	adapter := setupAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			_, _ = w.Write([]byte(searchPayload()))
		case strings.HasSuffix(r.URL.Path, "/related-artists"):
			_, _ = w.Write([]byte(`{"artists":[{"name":"Justice"},{"name":"Air"}]}`))
		case strings.HasSuffix(r.URL.Path, "/top-tracks"):
			_, _ = w.Write([]byte(`{"tracks":[{"name":"One More Time"},{"name":"Around the World"}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	meta, err := adapter.GetArtistMetadata(context.Background(), "Daft Punk")
	if err != nil {
		t.Fatalf("GetArtistMetadata: %v", err)
	}
	if meta.Source != provider.NameSpotify || meta.SpotifyID != daftPunkID {
		t.Errorf("identity = %+v", meta)
	}
	if meta.Confidence != 1.0 {
		t.Errorf("Confidence = %v", meta.Confidence)
	}
	if meta.Popularity == nil || *meta.Popularity != 0.82 {
		t.Errorf("Popularity = %v, want normalized 0.82", meta.Popularity)
	}
	if meta.Followers == nil || *meta.Followers != 9000000 {
		t.Errorf("Followers = %v", meta.Followers)
	}
	if len(meta.Genres) != 2 || meta.Genres[0] != "french house" {
		t.Errorf("Genres = %v", meta.Genres)
	}
	if len(meta.Images) != 1 || meta.Images[0].URL != "https://img/large" {
		t.Errorf("Images = %v", meta.Images)
	}
	if len(meta.SimilarArtists) != 2 || meta.SimilarArtists[0] != "Justice" {
		t.Errorf("SimilarArtists = %v", meta.SimilarArtists)
	}
	if len(meta.TopTracks) != 2 || meta.TopTracks[0] != "One More Time" {
		t.Errorf("TopTracks = %v", meta.TopTracks)
	}
}

func TestGetArtistMetadata_ByID(t *testing.T) {
	adapter := setupAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/artists/"+daftPunkID:
			_, _ = w.Write([]byte(`{"id":"` + daftPunkID + `","name":"Daft Punk","popularity":82,"followers":{"total":1}}`))
		case strings.HasSuffix(r.URL.Path, "/related-artists"),
			strings.HasSuffix(r.URL.Path, "/top-tracks"):
			w.WriteHeader(http.StatusNotFound)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	meta, err := adapter.GetArtistMetadata(context.Background(), daftPunkID)
	if err != nil {
		t.Fatalf("GetArtistMetadata: %v", err)
	}
	if meta.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0 for ID lookup", meta.Confidence)
	}
	// Best-effort sub-requests failing must not fail the lookup
	if meta.SimilarArtists != nil || meta.TopTracks != nil {
		t.Errorf("failed sub-requests should yield empty lists: %+v", meta)
	}
}

func TestGetArtistMetadata_BelowSimilarityFloor(t *testing.T) {
	adapter := setupAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"artists":{"items":[{"id":"x","name":"Totally Different Act","popularity":10}]}}`))
	})

	_, err := adapter.GetArtistMetadata(context.Background(), "Daft Punk")
	var notFound *provider.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetArtistMetadata_MissingCredentials(t *testing.T) {
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
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := New(provider.NewRateLimiterMap(), provider.NewSettingsService(db, enc), logger)

	_, err = adapter.GetArtistMetadata(context.Background(), "Daft Punk")
	var auth *provider.ErrAuthRequired
	if !errors.As(err, &auth) {
		t.Fatalf("want ErrAuthRequired, got %v", err)
	}
}

func TestIsSpotifyID(t *testing.T) {
	if !isSpotifyID(daftPunkID) {
		t.Error("valid ID rejected")
	}
	if isSpotifyID("Daft Punk") {
		t.Error("artist name accepted as ID")
	}
	if isSpotifyID("short") {
		t.Error("short string accepted as ID")
	}
}
