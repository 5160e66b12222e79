package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Logging    LoggingConfig    `yaml:"logging"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EncryptionConfig holds the key used to encrypt provider API keys at rest.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// EnrichmentConfig holds enrichment engine defaults. Most knobs live in the
// settings table and can be changed at runtime; these are bootstrap values.
type EnrichmentConfig struct {
	CacheHours   int    `yaml:"cache_hours"`
	AutoSchedule string `yaml:"auto_schedule"` // cron expression, empty disables
	AutoLimit    int    `yaml:"auto_limit"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "/data/sonavault.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Enrichment: EnrichmentConfig{
			CacheHours: 24,
			AutoLimit:  25,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from trusted env/flag
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("SV_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("SV_ENCRYPTION_KEY"); v != "" {
		c.Encryption.Key = v
	}
	if v := os.Getenv("SV_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SV_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SV_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("SV_CACHE_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Enrichment.CacheHours = n
		}
	}
	if v := os.Getenv("SV_AUTO_SCHEDULE"); v != "" {
		c.Enrichment.AutoSchedule = v
	}
	if v := os.Getenv("SV_AUTO_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Enrichment.AutoLimit = n
		}
	}
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Enrichment.CacheHours <= 0 {
		c.Enrichment.CacheHours = 24
	}
	if c.Enrichment.AutoLimit <= 0 {
		c.Enrichment.AutoLimit = 25
	}
	return nil
}
