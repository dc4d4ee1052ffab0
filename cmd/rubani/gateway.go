package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/rubani/internal/config"
	"github.com/jkaninda/rubani/internal/gateway/httpapi"
	"github.com/jkaninda/rubani/internal/gateway/ws"
	"github.com/jkaninda/rubani/internal/ratelimit"
	"github.com/jkaninda/rubani/internal/scheduler"
)

var (
	gatewayConfigPath string
	gatewayPort       string
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start in gateway mode (HTTP API and WebSocket chat)",
	RunE:  runGateway,
}

func init() {
	// Register flags on both root and gateway so that
	// `rubani --config path` and `rubani gateway --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, gatewayCmd} {
		cmd.Flags().StringVar(&gatewayConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&gatewayPort, "port", "", "override HTTP listen port (e.g. :8080)")
	}
}

// runGateway starts rubani in gateway mode.
func runGateway(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("RUBANI_CONFIG", gatewayConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if gatewayPort != "" {
		cfg.Server.ListenAddr = gatewayPort
	}

	logger.Info("starting in gateway mode", slog.String("config", gatewayConfigPath))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Login-token sweeper (optional).
	if cfg.Scheduler != nil && cfg.Scheduler.Enabled {
		sweeper, err := scheduler.New(sc.Store.LoginTokens(), cfg.Scheduler, sc.Obs.MetricsOrNil(), logger)
		if err != nil {
			return err
		}
		cancelSweeper := sweeper.Start(ctx)
		defer cancelSweeper()
		logger.Debug("login token sweeper initialized",
			slog.String("schedule", cfg.Scheduler.SweepSchedule()),
		)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.Server.RateLimit.BurstSize,
	})

	apiKeys := buildAPIKeys(cfg)

	httpCfg := httpapi.Config{
		ListenAddr:     cfg.Server.Addr(),
		EnableDocs:     cfg.Server.EnableDocs,
		APIKeys:        apiKeys,
		MaxRequestSize: cfg.Server.MaxRequestSizeBytes,
	}
	if sc.Obs != nil {
		httpCfg.Metrics = sc.Obs.Metrics
		httpCfg.HealthChecker = sc.Obs.Health
		if sc.Obs.Metrics != nil {
			httpCfg.MetricsRegistry = sc.Obs.Metrics.Registry
		}
		if sc.Obs.Tracer != nil {
			httpCfg.Tracer = sc.Obs.Tracer.Tracer()
		}
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
	}

	gw := httpapi.NewGateway(httpCfg, sc.Factory, sc.Router, sc.Store, limiter, logger).
		WithOctopusDefaults(cfg.Octopus).
		WithAdmin(cfg.Admin).
		WithTokenTTL(cfg.Scheduler.TokenTTL())

	// WebSocket chat endpoint (optional), mounted on the HTTP server.
	if cfg.Server.WebSocket {
		wsServer := ws.NewServer(sc.Factory, sc.Router, sc.Store, apiKeys, limiter, logger).
			WithOctopusDefaults(cfg.Octopus)
		gw.WithHandler("/ws", wsServer.Handler())
		logger.Debug("websocket chat endpoint enabled", slog.String("path", "/ws"))
	}

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return gw.Stop(shutdownCtx)
}

// buildAPIKeys merges the configured API key → username mapping with the
// RUBANI_API_KEYS env override ("key:user,key:user").
func buildAPIKeys(cfg *config.Config) map[string]string {
	apiKeys := cfg.Server.APIKeys
	if apiKeys == nil {
		apiKeys = make(map[string]string)
	}
	if envKeys := os.Getenv("RUBANI_API_KEYS"); envKeys != "" {
		for _, entry := range strings.Split(envKeys, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) == 2 {
				apiKeys[parts[0]] = parts[1]
			}
		}
	}
	return apiKeys
}
