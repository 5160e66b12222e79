package artist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// artistColumns is the ordered list of columns for SELECT queries.
const artistColumns = `id, name, spotify_id, lastfm_name, imvdb_id,
	genres, labels, members, metadata, created_at, updated_at`

// Service provides artist and video data operations.
type Service struct {
	db *sql.DB
}

// NewService creates an artist service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create inserts a new artist.
func (s *Service) Create(ctx context.Context, a *Artist) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artists (
			id, name, spotify_id, lastfm_name, imvdb_id,
			genres, labels, members, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.Name, a.SpotifyID, a.LastFMName, a.IMVDbID,
		MarshalStringSlice(a.Genres), MarshalStringSlice(a.Labels), a.Members,
		nullableBlob(a.Meta),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating artist: %w", err)
	}
	return nil
}

// GetByID retrieves an artist by primary key. Returns nil when no row exists.
func (s *Service) GetByID(ctx context.Context, id string) (*Artist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artistColumns+` FROM artists WHERE id = ?`, id)
	a, err := scanArtist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist by id: %w", err)
	}
	return a, nil
}

// GetByName retrieves an artist by exact name. Returns nil when no row exists.
func (s *Service) GetByName(ctx context.Context, name string) (*Artist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artistColumns+` FROM artists WHERE name = ? LIMIT 1`, name)
	a, err := scanArtist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist by name: %w", err)
	}
	return a, nil
}

// Update modifies an existing artist, including its metadata blob.
func (s *Service) Update(ctx context.Context, a *Artist) error {
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE artists SET
			name = ?, spotify_id = ?, lastfm_name = ?, imvdb_id = ?,
			genres = ?, labels = ?, members = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`,
		a.Name, a.SpotifyID, a.LastFMName, a.IMVDbID,
		MarshalStringSlice(a.Genres), MarshalStringSlice(a.Labels), a.Members,
		nullableBlob(a.Meta),
		a.UpdatedAt.Format(time.RFC3339),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating artist: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("artist not found: %s", a.ID)
	}
	return nil
}

// Delete removes an artist by ID. Cascade deletes its videos.
func (s *Service) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM artists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting artist: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("artist not found: %s", id)
	}
	return nil
}

// Search finds artists by name substring match.
func (s *Service) Search(ctx context.Context, query string) ([]Artist, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE name LIKE ? ORDER BY name LIMIT 20`, pattern)
	if err != nil {
		return nil, fmt.Errorf("searching artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var artists []Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		artists = append(artists, *a)
	}
	return artists, rows.Err()
}

// CreateVideo inserts a music video for an artist.
func (s *Service) CreateVideo(ctx context.Context, v *Video) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (id, artist_id, title, url, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, v.ID, v.ArtistID, v.Title, v.URL, v.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

// CountVideos returns the number of videos attached to an artist.
func (s *Service) CountVideos(ctx context.Context, artistID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM videos WHERE artist_id = ?`, artistID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting videos: %w", err)
	}
	return n, nil
}

// FindEnrichmentCandidates selects artist IDs that look under-enriched:
// missing at least one external ID, an empty metadata blob, or a record not
// touched since staleBefore. Artists that own videos come first (they are
// what users actually browse), then oldest-updated first.
func (s *Service) FindEnrichmentCandidates(ctx context.Context, limit int, staleBefore time.Time) ([]string, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id
		FROM artists a
		LEFT JOIN (
			SELECT artist_id, COUNT(*) AS n FROM videos GROUP BY artist_id
		) v ON v.artist_id = a.id
		WHERE a.spotify_id = '' OR a.lastfm_name = '' OR a.imvdb_id = ''
			OR a.metadata IS NULL OR a.metadata = ''
			OR a.updated_at < ?
		ORDER BY CASE WHEN COALESCE(v.n, 0) > 0 THEN 0 ELSE 1 END, a.updated_at ASC
		LIMIT ?
	`, staleBefore.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("finding enrichment candidates: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning candidate row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanArtist scans a database row into an Artist struct.
func scanArtist(row interface{ Scan(...any) error }) (*Artist, error) {
	var a Artist
	var genres, labels string
	var metadata sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&a.ID, &a.Name, &a.SpotifyID, &a.LastFMName, &a.IMVDbID,
		&genres, &labels, &a.Members, &metadata,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Genres = UnmarshalStringSlice(genres)
	a.Labels = UnmarshalStringSlice(labels)
	if metadata.Valid {
		a.Meta = UnmarshalMetadata(metadata.String)
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)

	return &a, nil
}

func nullableBlob(m *Metadata) any {
	s := MarshalMetadata(m)
	if s == "" {
		return nil
	}
	return s
}

// parseTime parses a time string, handling both RFC3339 and SQLite datetime
// formats.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

// Touch backdates an artist's updated_at column without rewriting any other
// field. The validation layer uses it to mark records for re-inspection.
func (s *Service) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE artists SET updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching artist: %w", err)
	}
	return nil
}
