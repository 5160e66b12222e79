package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestManager_ReconfigureLevel(t *testing.T) {
	m, logger := NewManager(Config{Level: "info", Format: "json"})
	defer m.Close() //nolint:errcheck

	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug should be disabled at info level")
	}

	m.Reconfigure(Config{Level: "debug", Format: "json"})
	if !logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug should be enabled after reconfigure")
	}
}

func TestManager_ConfigSnapshot(t *testing.T) {
	m, _ := NewManager(Config{Level: "warn", Format: "text"})
	defer m.Close() //nolint:errcheck

	cfg := m.Config()
	if cfg.Level != "warn" || cfg.Format != "text" {
		t.Errorf("Config() = %+v", cfg)
	}
}
