package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/sonavault/sonavault/internal/artist"
	"github.com/sonavault/sonavault/internal/config"
	"github.com/sonavault/sonavault/internal/database"
	"github.com/sonavault/sonavault/internal/encryption"
	"github.com/sonavault/sonavault/internal/enrich"
	"github.com/sonavault/sonavault/internal/event"
	"github.com/sonavault/sonavault/internal/logging"
	"github.com/sonavault/sonavault/internal/maintenance"
	"github.com/sonavault/sonavault/internal/provider"
	"github.com/sonavault/sonavault/internal/provider/allmusic"
	"github.com/sonavault/sonavault/internal/provider/discogs"
	"github.com/sonavault/sonavault/internal/provider/imvdb"
	"github.com/sonavault/sonavault/internal/provider/lastfm"
	"github.com/sonavault/sonavault/internal/provider/musicbrainz"
	"github.com/sonavault/sonavault/internal/provider/spotify"
	"github.com/sonavault/sonavault/internal/settings"
	"github.com/sonavault/sonavault/internal/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired services so subcommands and the daemon share one
// startup path.
type app struct {
	cfg         *config.Config
	logManager  *logging.Manager
	logger      *slog.Logger
	settings    *settings.Service
	orchestrate *enrich.Orchestrator
	validator   *enrich.Validator
	maintenance *maintenance.Service
}

func run(args []string) error {
	configPath := os.Getenv("SV_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	a, cleanup, err := setup(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(args) > 0 {
		return runCommand(a, args)
	}
	return runDaemon(a, configPath)
}

// setup loads config and wires every service. The returned cleanup closes
// the log manager, database, and event bus.
func setup(configPath string) (*app, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.FilePath = cfg.Logging.FilePath
	logManager, logger := logging.NewManager(logCfg)
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logManager.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()         //nolint:errcheck
		logManager.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	encKey, err := resolveEncryptionKey(cfg, logger)
	if err != nil {
		db.Close()         //nolint:errcheck
		logManager.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("resolving encryption key: %w", err)
	}
	encryptor, _, err := encryption.NewEncryptor(encKey)
	if err != nil {
		db.Close()         //nolint:errcheck
		logManager.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("creating encryptor: %w", err)
	}

	settingsService := settings.NewService(db)
	seedBootstrapSettings(context.Background(), settingsService, cfg, logger)

	artistService := artist.NewService(db)

	rateLimiters := provider.NewRateLimiterMap()
	providerSettings := provider.NewSettingsService(db, encryptor)
	registry := provider.NewRegistry()
	registry.Register(spotify.New(rateLimiters, providerSettings, logger))
	registry.Register(lastfm.New(rateLimiters, providerSettings, logger))
	registry.Register(musicbrainz.New(rateLimiters, providerSettings, logger))
	registry.Register(allmusic.New(rateLimiters, providerSettings, logger))
	registry.Register(discogs.New(rateLimiters, providerSettings, logger))
	registry.Register(imvdb.New(rateLimiters, providerSettings, logger))

	bus := event.NewBus(logger, 256)
	go bus.Start()
	for _, t := range []event.Type{
		event.EnrichmentCompleted, event.EnrichmentFailed,
		event.ValidationCompleted, event.AutoEnrichCompleted,
	} {
		bus.Subscribe(t, func(e event.Event) {
			logger.Debug("event", slog.String("type", string(e.Type)), slog.Any("data", e.Data))
		})
	}

	aggregator := enrich.NewAggregator(settingsService, logger)
	freshness := enrich.NewFreshnessPolicy(settingsService)
	orchestrator := enrich.NewOrchestrator(
		artistService, registry, aggregator, freshness, settingsService, bus, logger)
	validator := enrich.NewValidator(
		artistService, orchestrator, freshness, settingsService, bus,
		enrich.NewRunRecorder(db), logger)

	maintenanceService := maintenance.NewService(db, cfg.Database.Path, settingsService, logger)

	a := &app{
		cfg:         cfg,
		logManager:  logManager,
		logger:      logger,
		settings:    settingsService,
		orchestrate: orchestrator,
		validator:   validator,
		maintenance: maintenanceService,
	}
	cleanup := func() {
		bus.Stop()
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
		logManager.Close() //nolint:errcheck
	}
	return a, cleanup, nil
}

// runCommand dispatches one-shot subcommands.
func runCommand(a *app, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "enrich":
		return cmdEnrich(ctx, a, args[1:])
	case "validate":
		return cmdValidate(ctx, a, args[1:])
	case "auto-enrich":
		return cmdAutoEnrich(ctx, a, args[1:])
	case "optimize":
		return a.maintenance.Optimize(ctx)
	case "vacuum":
		return a.maintenance.Vacuum(ctx)
	case "version":
		fmt.Printf("sonavault %s (%s)\n", version.Version, version.Commit)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want enrich, validate, auto-enrich, optimize, vacuum, or version)", args[0])
	}
}

func cmdEnrich(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	force := fs.Bool("force", false, "re-query providers even when metadata is fresh")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := fs.Args()
	if len(ids) == 0 {
		return fmt.Errorf("usage: sonavault enrich [--force] <artist-id>...")
	}

	var results []enrich.Result
	if len(ids) == 1 {
		results = []enrich.Result{a.orchestrate.Enrich(ctx, ids[0], *force)}
	} else {
		results = a.orchestrate.EnrichMany(ctx, ids, *force)
	}
	printJSON(results)

	if n := countFailed(results); n > 0 {
		return fmt.Errorf("%d of %d artists failed enrichment", n, len(results))
	}
	return nil
}

func cmdValidate(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sonavault validate <artist-id>")
	}
	result := a.validator.Validate(ctx, args[0])
	printJSON(result)
	if result.Err != "" {
		return fmt.Errorf("validation error: %s", result.Err)
	}
	return nil
}

func cmdAutoEnrich(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("auto-enrich", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "max candidates to process (0 uses the configured default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n := *limit
	if n <= 0 {
		n = a.settings.GetInt(ctx, "enrichment.auto_limit", a.cfg.Enrichment.AutoLimit)
	}
	report := a.validator.AutoEnrich(ctx, n)
	printJSON(report)
	return nil
}

// runDaemon starts the schedulers and blocks until a shutdown signal.
func runDaemon(a *app, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("starting sonavault",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	scheduler := enrich.NewScheduler(a.validator, a.settings, a.logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting enrichment scheduler: %w", err)
	}
	defer scheduler.Stop()

	go a.maintenance.StartScheduler(ctx)

	// Hot-reload logging settings when the config file changes
	go func() {
		err := config.Watch(ctx, configPath, a.logger, func(cfg *config.Config) {
			logCfg := a.logManager.Config()
			logCfg.Level = cfg.Logging.Level
			logCfg.Format = cfg.Logging.Format
			logCfg.FilePath = cfg.Logging.FilePath
			a.logManager.Reconfigure(logCfg)
		})
		if err != nil {
			a.logger.Warn("config watcher stopped", "error", err)
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

// seedBootstrapSettings copies config file defaults into the settings table
// so runtime knobs start from the deployment's configured values. Existing
// keys are never overwritten.
func seedBootstrapSettings(ctx context.Context, svc *settings.Service, cfg *config.Config, logger *slog.Logger) {
	seed := func(key, value string) {
		if value == "" || svc.Get(ctx, key, "") != "" {
			return
		}
		if err := svc.Set(ctx, key, value); err != nil {
			logger.Warn("seeding setting failed", slog.String("key", key), "error", err)
		}
	}
	seed("enrichment.cache_hours", strconv.Itoa(cfg.Enrichment.CacheHours))
	seed("enrichment.auto_limit", strconv.Itoa(cfg.Enrichment.AutoLimit))
	seed("enrichment.auto_schedule", cfg.Enrichment.AutoSchedule)
}

// resolveEncryptionKey determines the key protecting provider credentials.
// Priority: config/env > key file next to the database > generate new.
func resolveEncryptionKey(cfg *config.Config, logger *slog.Logger) (string, error) {
	if cfg.Encryption.Key != "" {
		return cfg.Encryption.Key, nil
	}

	dataDir := filepath.Dir(cfg.Database.Path)
	keyFile := filepath.Join(dataDir, "encryption.key")

	data, err := os.ReadFile(keyFile) //nolint:gosec // G304: path derived from trusted config
	if err == nil {
		key := strings.TrimSpace(string(data))
		if key != "" {
			logger.Debug("loaded encryption key from file", slog.String("path", keyFile))
			return key, nil
		}
	}

	_, key, err := encryption.NewEncryptor("")
	if err != nil {
		return "", fmt.Errorf("generating encryption key: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		logger.Warn("could not create data directory for encryption key",
			slog.String("path", dataDir), slog.Any("error", err))
		return key, nil
	}
	if err := os.WriteFile(keyFile, []byte(key+"\n"), 0o600); err != nil {
		logger.Warn("could not save encryption key to file",
			slog.String("path", keyFile), slog.Any("error", err))
	} else {
		logger.Warn("generated new encryption key -- back up this file",
			slog.String("path", keyFile))
	}
	return key, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v) //nolint:errcheck
}

func countFailed(results []enrich.Result) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}
