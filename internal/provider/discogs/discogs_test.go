package discogs

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
	if err := settings.SetCredential(context.Background(), provider.NameDiscogs, "api_key", "dg-token"); err != nil {
		t.Fatalf("storing token: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWithBaseURL(provider.NewRateLimiterMap(), settings, logger, server.URL)
}

func TestGetArtistMetadata_ByName(t *testing.T) {
	adapter := setupAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Discogs token=dg-token" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Path {
		case "/database/search":
			_, _ = w.Write([]byte(`{"results":[
				{"id":999,"title":"New Order Tribute Ensemble Orchestra Plays"},
				{"id":3909,"title":"New Order"}
			]}`))
		case "/artists/3909":
			_, _ = w.Write([]byte(`{
				"id":3909,
				"name":"New Order",
				"profile":"Formed from the remains of [a=Joy Division].",
				"urls":["https://www.neworder.com","https://www.facebook.com/neworder"],
				"namevariations":["NewOrder"],
				"members":[{"name":"Bernard Sumner","active":true},{"name":"Peter Hook","active":false}],
				"images":[{"uri":"https://img/primary","type":"primary","width":600,"height":400}]
			}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))

	meta, err := adapter.GetArtistMetadata(context.Background(), "New Order")
	if err != nil {
		t.Fatalf("GetArtistMetadata: %v", err)
	}
	if meta.Source != provider.NameDiscogs || meta.Name != "New Order" {
		t.Errorf("identity = %+v", meta)
	}
	if meta.Confidence != 1.0 {
		t.Errorf("Confidence = %v", meta.Confidence)
	}
	if meta.Biography != "Formed from the remains of Joy Division." {
		t.Errorf("Biography = %q, markup should be stripped", meta.Biography)
	}
	if meta.Website != "https://www.neworder.com" {
		t.Errorf("Website = %q", meta.Website)
	}
	if meta.SocialLinks["facebook"] != "https://www.facebook.com/neworder" {
		t.Errorf("SocialLinks = %v", meta.SocialLinks)
	}
	if len(meta.Images) != 1 || meta.Images[0].Kind != "background" {
		t.Errorf("Images = %v", meta.Images)
	}
	members, _ := meta.Raw["members"].([]string)
	if len(members) != 2 || members[0] != "Bernard Sumner" {
		t.Errorf("Raw members = %v", meta.Raw["members"])
	}
}

func TestGetArtistMetadata_ByNumericID(t *testing.T) {
	adapter := setupAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/artists/3909" {
			t.Errorf("path = %q, numeric input should skip search", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":3909,"name":"New Order"}`))
	}))

	meta, err := adapter.GetArtistMetadata(context.Background(), "3909")
	if err != nil {
		t.Fatalf("GetArtistMetadata: %v", err)
	}
	if meta.Confidence != 1.0 {
		t.Errorf("Confidence = %v", meta.Confidence)
	}
}

func TestGetArtistMetadata_NoToken(t *testing.T) {
	adapter := setupAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	if err := adapter.settings.DeleteCredentials(context.Background(), provider.NameDiscogs); err != nil {
		t.Fatalf("DeleteCredentials: %v", err)
	}

	_, err := adapter.GetArtistMetadata(context.Background(), "New Order")
	var auth *provider.ErrAuthRequired
	if !errors.As(err, &auth) {
		t.Fatalf("want ErrAuthRequired, got %v", err)
	}
}

func TestCleanProfile(t *testing.T) {
	got := cleanProfile("Side project of [a=Thom Yorke] on [l=XL Recordings].  ")
	want := "Side project of Thom Yorke on XL Recordings."
	if got != want {
		t.Errorf("cleanProfile = %q, want %q", got, want)
	}
}
