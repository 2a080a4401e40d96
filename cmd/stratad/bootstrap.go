package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"strata/internal/config"
	"strata/internal/daemon"
	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/preflight"
	"strata/internal/workflow"
)

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	reportPreflight(ctx, cfg, logger)

	d, err := buildDaemon(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}
	logger.Info("stratad ready", logging.String("api", d.APIAddr()))

	<-ctx.Done()
	logger.Info("stratad shutting down")
	return nil
}

// buildDaemon wires store, engine, and daemon from configuration. The
// returned daemon owns the store; Close releases both.
func buildDaemon(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	engine, err := workflow.NewEngine(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build workflow engine: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, engine)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}

// reportPreflight logs failed checks without blocking startup; a degraded
// catalog or executor still leaves the read API useful.
func reportPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
}
