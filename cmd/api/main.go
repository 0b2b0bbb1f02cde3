package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"finledger/internal/shared/config"
	"finledger/internal/shared/logger"
	"finledger/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer flushTelemetry(shutdownTelemetry, log)
	}

	deps, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	sched, err := NewScheduler(cfg, deps, log)
	if err != nil {
		return err
	}
	if sched != nil {
		sched.Start()
	}

	handler := SetupRoutes(deps, cfg, log)
	srv, redirectSrv := StartServers(NewServerConfigFromConfig(handler, cfg), log)

	select {
	case <-ctx.Done():
	case err := <-srv.errs:
		log.Error().Err(err).Msg("server stopped unexpectedly")
	}

	GracefulShutdown(srv, redirectSrv, sched, cfg.Server.ShutdownTimeout, log)
	return nil
}

func flushTelemetry(shutdown func(context.Context) error, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("telemetry shutdown failed")
	}
}
