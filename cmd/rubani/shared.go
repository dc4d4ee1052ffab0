package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jkaninda/rubani/internal/config"
	"github.com/jkaninda/rubani/internal/llm"
	"github.com/jkaninda/rubani/internal/llm/openai"
	"github.com/jkaninda/rubani/internal/observability"
	"github.com/jkaninda/rubani/internal/octopus"
	"github.com/jkaninda/rubani/internal/octoterra"
	"github.com/jkaninda/rubani/internal/router"
	"github.com/jkaninda/rubani/internal/secrets"
	"github.com/jkaninda/rubani/internal/storage"
	pgstore "github.com/jkaninda/rubani/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/rubani/internal/storage/sqlite"
	"github.com/jkaninda/rubani/internal/tools"
	"github.com/jkaninda/rubani/internal/tools/factory"
	mcptools "github.com/jkaninda/rubani/internal/tools/mcp"
)

// SharedComponents holds all initialized subsystems the gateway and the
// one-shot query command both require. Built once by initShared, torn
// down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger
	Store  storage.Store

	Obs      *observability.Observability
	Provider llm.Provider
	Exporter *octoterra.Client
	Octopus  *octopus.Client
	Factory  *factory.Factory
	Router   *router.Router

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs all common initialization shared between gateway mode
// and the one-shot query command. Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Resolve credential references (env://, vault://) before anything that
	// needs the keys.
	if err := resolveCredentials(cfg, logger); err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// LLM provider.
	provider, err := newLLMProvider(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing LLM provider: %w", err)
	}
	logger.Debug("llm provider initialized", slog.String("provider", provider.Name()))

	if obs != nil && obs.Metrics != nil {
		provider = observability.NewInstrumentedProvider(provider, obs.Metrics, obs.TracerOrNil())
	}
	sc.Provider = provider

	// Storage (SQLite default, PostgreSQL optional).
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	if err := store.Migrate(context.Background()); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("database", store.Ping)
	}

	// Octopus clients.
	sc.Exporter = octoterra.NewClient(cfg.Octoterra.URL, cfg.Octoterra.Timeout(), logger)
	sc.Octopus = octopus.NewClient(cfg.Octopus.Timeout())
	logger.Debug("octoterra exporter initialized", slog.String("url", cfg.Octoterra.URL))

	// MCP tool servers.
	var extensions []tools.Tool
	if len(cfg.MCP) > 0 {
		bridge := mcptools.NewBridge(logger)
		mcpCtx, mcpCancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, mcpCfg := range cfg.MCP {
			mcpToolList, mcpErr := bridge.ConnectAndDiscover(mcpCtx, mcpCfg)
			if mcpErr != nil {
				logger.Error("MCP server failed, skipping",
					slog.String("server", mcpCfg.Name),
					slog.String("error", mcpErr.Error()),
				)
				continue
			}
			for _, t := range mcpToolList {
				extensions = append(extensions, t)
			}
		}
		mcpCancel()
		sc.addCleanup(bridge.Close)
		logger.Debug("MCP tools registered", slog.Int("count", len(extensions)))
	}

	// Tool factory and router.
	sc.Factory = &factory.Factory{
		Provider:      sc.Provider,
		Exporter:      sc.Exporter,
		Octopus:       sc.Octopus,
		ContextBudget: cfg.LLM.ContextBudget(),
		StepByStep:    cfg.LLM.StepByStep,
		Logger:        logger,
		Extensions:    extensions,
	}
	sc.Router = router.New(router.NewLLMSelector(sc.Provider), logger)

	return sc, nil
}

// resolveCredentials replaces env:// and vault:// references in the config
// API keys with the material they point at. Literal keys pass through.
func resolveCredentials(cfg *config.Config, logger *slog.Logger) error {
	refs := []*string{&cfg.LLM.APIKey, &cfg.Octopus.APIKey}

	hasRef := false
	for _, ref := range refs {
		if secrets.IsRef(*ref) {
			hasRef = true
			break
		}
	}
	if !hasRef {
		return nil
	}

	resolver := secrets.Chain{secrets.Env{}}
	if cfg.Secrets != nil && len(cfg.Secrets.Vault) > 0 {
		vault, err := secrets.NewVault(cfg.Secrets.Vault)
		if err != nil {
			return fmt.Errorf("configuring vault provider: %w", err)
		}
		resolver = append(resolver, vault)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, ref := range refs {
		value, err := secrets.ResolveValue(ctx, resolver, *ref)
		if err != nil {
			return err
		}
		*ref = value
	}
	logger.Debug("credential references resolved")
	return nil
}

// initStore creates the appropriate storage backend from config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	sc := storageConfig(cfg)
	switch driver := sc.DriverName(); driver {
	case storage.DriverPostgres:
		return pgstore.Open(sc.Postgres, logger)
	case storage.DriverSQLite:
		return sqlitestore.Open(sc.SQLite, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

// storageConfig maps the file config onto storage.Config, applying the
// data-dir database default and the RUBANI_DB_DSN override.
func storageConfig(cfg *config.Config) storage.Config {
	sc := storage.Config{
		SQLite: storage.SQLiteConfig{Path: cfg.DatabasePath()},
	}
	if cfg.Storage != nil {
		sc.Driver = cfg.Storage.Driver
		if s := cfg.Storage.SQLite; s != nil {
			if s.Path != "" {
				sc.SQLite.Path = s.Path
			}
			sc.SQLite.JournalMode = s.JournalMode
		}
		if p := cfg.Storage.Postgres; p != nil {
			sc.Postgres = storage.PostgresConfig{
				DSN:              p.DSN,
				MaxOpenConns:     p.MaxOpenConns,
				MaxIdleConns:     p.MaxIdleConns,
				ConnMaxLifetimeS: p.ConnMaxLifetimeS,
			}
		}
	}
	if dsn := os.Getenv("RUBANI_DB_DSN"); dsn != "" {
		sc.Postgres.DSN = dsn
	}
	return sc
}

// newLLMProvider creates the LLM provider based on the configured default.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	primary, err := buildProvider(cfg.LLM.ProviderName(), cfg, logger)
	if err != nil {
		return nil, err
	}

	// Build fallback chain if configured.
	if len(cfg.LLM.Fallback) > 0 {
		providers := []llm.Provider{primary}
		for _, name := range cfg.LLM.Fallback {
			fb, err := buildProvider(name, cfg, logger)
			if err != nil {
				logger.Warn("skipping fallback provider",
					slog.String("provider", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			providers = append(providers, fb)
		}
		if len(providers) > 1 {
			return llm.NewFallbackProvider(providers, logger), nil
		}
	}

	return primary, nil
}

// buildProvider creates a single LLM provider by name.
func buildProvider(name string, cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	switch name {
	case "openai", "":
		var opts []openai.Option
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		return openai.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, logger, opts...), nil
	case "azure":
		return openai.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, logger,
			openai.WithAzure(cfg.LLM.Azure.Endpoint, cfg.LLM.Azure.Deployment, cfg.LLM.Azure.APIVersion),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", name)
	}
}
