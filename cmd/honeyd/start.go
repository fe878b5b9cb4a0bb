package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/honeyd/internal/logger"
	"github.com/marmos91/honeyd/pkg/config"
	"github.com/marmos91/honeyd/pkg/server"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the RPC server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context())
	},
}

func runStart(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := logger.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Info("honeyd %s (%s)", version, commit)
	logger.Info("Data directory: %s", cfg.Server.DataDir)

	if err := os.MkdirAll(cfg.Server.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := config.CreateChainStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open chain store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing chain store: %v", err)
		}
	}()
	logger.Info("Chain store: %s", cfg.Chain.Type)

	m := config.InitializeMetrics(cfg)
	if m.Server != nil {
		logger.Info("Metrics enabled on port %d", cfg.Server.Metrics.Port)
	}

	srv := server.New(cfg, server.Deps{
		Chain:         store,
		Wallet:        config.CreateWallet(cfg),
		Metrics:       m.RPCMetrics,
		MetricsServer: m.Server,
		Version:       version,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case <-srv.ShutdownRequested():
		logger.Info("Shutdown requested over RPC")
	}

	if err := srv.Stop(context.Background()); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}
