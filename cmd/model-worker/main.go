package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/dago-task-gateway/internal/config"
	"github.com/aescanero/dago-task-gateway/internal/logging"
	"github.com/aescanero/dago-task-gateway/internal/worker"

	"go.uber.org/zap"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting model worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("worker_id", cfg.WorkerID),
	)

	// Log configuration (without sensitive data)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	engine, err := worker.NewEngine(context.Background(), worker.EngineConfig{
		Kind:     cfg.Engine,
		Provider: cfg.EngineProvider,
		BaseURL:  cfg.EngineBaseURL,
		APIKey:   cfg.EngineAPIKey,
		Model:    cfg.EngineModel,
		Timeout:  cfg.EngineTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize engine", zap.Error(err))
	}
	logger.Info("engine initialized",
		zap.String("engine", engine.Name()),
		zap.String("model", cfg.EngineModel),
	)

	systemPrompt, err := cfg.SystemPrompt()
	if err != nil {
		logger.Fatal("failed to load system prompt", zap.Error(err))
	}

	svc, err := worker.NewService(engine, logger,
		worker.WithSystemPrompt(systemPrompt),
		worker.WithUserTemplate(cfg.UserTemplate),
		worker.WithConcurrency(cfg.Concurrency),
	)
	if err != nil {
		logger.Fatal("failed to create worker service", zap.Error(err))
	}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.ListenAddr), zap.Error(err))
	}

	srv := worker.NewServer(cfg.WorkerID, svc, cfg.Credential, logger)
	if err := srv.Start(lis); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("model worker running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping worker")
	srv.Stop()
}
