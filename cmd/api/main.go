package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"linkproxy/internal/shared/config"
	"linkproxy/internal/shared/logger"
	"linkproxy/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Application error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	l := logger.For("main")

	ctx := context.Background()

	var telemetryShutdown func(context.Context) error
	if cfg.Telemetry.Enabled {
		telemetryShutdown, err = telemetry.Init(ctx, telemetry.Config{
			ServiceName:     cfg.Telemetry.ServiceName,
			ServiceVersion:  version,
			Environment:     cfg.Telemetry.Environment,
			UpstreamBaseURL: cfg.Plaid.BaseURL,
			OTLPEndpoint:    cfg.Telemetry.OTLPEndpoint,
			SampleRatio:     cfg.Telemetry.SampleRatio,
			MetricsPort:     cfg.Telemetry.MetricsPort,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	deps, err := NewDependencies(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		if telemetryShutdown != nil {
			telemetryShutdown(ctx)
		}
		return err
	}

	handler := SetupRoutes(deps, cfg)
	srv, redirectSrv, serveErr := StartServers(NewServerConfigFromConfig(handler, cfg))

	l.Info().
		Str("plaid_base_url", cfg.Plaid.BaseURL).
		Dur("plaid_timeout", cfg.Plaid.Timeout).
		Bool("audit", deps.Dispatcher.Enabled()).
		Msg("Link proxy ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		l.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		err = nil
	case err = <-serveErr:
		l.Error().Err(err).Msg("Server failed")
	}

	GracefulShutdown(srv, redirectSrv, deps, telemetryShutdown, shutdownTimeout)
	return err
}
