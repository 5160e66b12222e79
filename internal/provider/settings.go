package provider

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sonavault/sonavault/internal/encryption"
)

// SettingsService manages per-source credentials and enabled flags using the
// settings key-value table. Credentials are encrypted at rest.
type SettingsService struct {
	db        *sql.DB
	encryptor *encryption.Encryptor
}

// NewSettingsService creates a SettingsService.
func NewSettingsService(db *sql.DB, encryptor *encryption.Encryptor) *SettingsService {
	return &SettingsService{db: db, encryptor: encryptor}
}

func credentialKey(name Name, field string) string {
	return fmt.Sprintf("provider.%s.%s", name, field)
}

func enabledKey(name Name) string {
	return fmt.Sprintf("provider.%s.enabled", name)
}

// requiresCredentials reports whether a source cannot function without
// stored credentials.
func requiresCredentials(name Name) bool {
	switch name {
	case NameMusicBrainz, NameAllMusic:
		return false
	default:
		return true
	}
}

// CredentialFields returns the credential field names a source expects.
func CredentialFields(name Name) []string {
	if name == NameSpotify {
		return []string{"client_id", "client_secret"}
	}
	if requiresCredentials(name) {
		return []string{"api_key"}
	}
	return nil
}

// GetCredential retrieves and decrypts one credential field for a source.
// Returns empty string if not configured.
func (s *SettingsService) GetCredential(ctx context.Context, name Name, field string) (string, error) {
	var encrypted string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, credentialKey(name, field)).Scan(&encrypted)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s credential for %s: %w", field, name, err)
	}
	plaintext, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypting %s credential for %s: %w", field, name, err)
	}
	return plaintext, nil
}

// GetAPIKey is shorthand for the common single-key case.
func (s *SettingsService) GetAPIKey(ctx context.Context, name Name) (string, error) {
	return s.GetCredential(ctx, name, "api_key")
}

// SetCredential encrypts and stores one credential field for a source.
func (s *SettingsService) SetCredential(ctx context.Context, name Name, field, value string) error {
	encrypted, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting %s credential for %s: %w", field, name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		credentialKey(name, field), encrypted)
	if err != nil {
		return fmt.Errorf("storing %s credential for %s: %w", field, name, err)
	}
	return nil
}

// DeleteCredentials removes all credential fields for a source.
func (s *SettingsService) DeleteCredentials(ctx context.Context, name Name) error {
	for _, field := range CredentialFields(name) {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM settings WHERE key = ?`, credentialKey(name, field)); err != nil {
			return fmt.Errorf("deleting %s credential for %s: %w", field, name, err)
		}
	}
	return nil
}

// hasCredentials reports whether every credential field for a source is set.
func (s *SettingsService) hasCredentials(ctx context.Context, name Name) (bool, error) {
	for _, field := range CredentialFields(name) {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM settings WHERE key = ?`, credentialKey(name, field)).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("checking %s credential for %s: %w", field, name, err)
		}
		if count == 0 {
			return false, nil
		}
	}
	return true, nil
}

// IsEnabled reports whether a source should be queried: its enabled flag is
// not switched off, and any required credentials are present. Unconfigured
// sources are skipped silently rather than treated as errors.
func (s *SettingsService) IsEnabled(ctx context.Context, name Name) bool {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, enabledKey(name)).Scan(&v)
	if err == nil && (v == "false" || v == "0") {
		return false
	}

	if !requiresCredentials(name) {
		return true
	}
	has, err := s.hasCredentials(ctx, name)
	if err != nil {
		return false
	}
	return has
}

// SetEnabled stores the enabled flag for a source.
func (s *SettingsService) SetEnabled(ctx context.Context, name Name, enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		enabledKey(name), v)
	if err != nil {
		return fmt.Errorf("storing enabled flag for %s: %w", name, err)
	}
	return nil
}

// Status describes a source's configuration state.
type Status struct {
	Name        Name   `json:"name"`
	DisplayName string `json:"display_name"`
	RequiresKey bool   `json:"requires_key"`
	Configured  bool   `json:"configured"`
	Enabled     bool   `json:"enabled"`
}

// ListStatuses returns the configuration status for all known sources.
func (s *SettingsService) ListStatuses(ctx context.Context) ([]Status, error) {
	var statuses []Status
	for _, name := range AllNames() {
		configured := true
		if requiresCredentials(name) {
			has, err := s.hasCredentials(ctx, name)
			if err != nil {
				return nil, err
			}
			configured = has
		}
		statuses = append(statuses, Status{
			Name:        name,
			DisplayName: name.DisplayName(),
			RequiresKey: requiresCredentials(name),
			Configured:  configured,
			Enabled:     s.IsEnabled(ctx, name),
		})
	}
	return statuses, nil
}
