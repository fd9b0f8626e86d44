package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/docgen/internal/config"
	"github.com/aescanero/docgen/pkg/api/grpc"
	"github.com/aescanero/docgen/pkg/api/http"
	"github.com/aescanero/docgen/pkg/api/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and gRPC servers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting document orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("store", cfg.Store.Backend),
		zap.String("events", cfg.Store.EventsBackend),
		zap.String("llm_provider", cfg.LLM.Provider))

	a, err := newApp(cmd.Context(), cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:      cfg.HTTPPort,
		Manager:   a.manager,
		Documents: a.documents,
		Pool:      a.pool,
		Logger:    logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(a.eventBus, a.manager, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:           cfg.GRPCPort,
		Pool:           a.pool,
		HealthInterval: cfg.Workers.HealthCheckInterval,
		Logger:         logger,
	})
	if err != nil {
		_ = a.shutdown(context.Background())
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	// Start servers
	errCh := make(chan error, 2)
	go func() { errCh <- httpServer.Start() }()
	go func() { errCh <- grpcServer.Start() }()

	logger.Info("document orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	// Wait for interrupt signal or a server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server failed", zap.Error(serveErr))
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := a.shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	logger.Info("document orchestrator shut down complete")
	return serveErr
}
