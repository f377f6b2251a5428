package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/config"
	"github.com/aescanero/dago-task-gateway/internal/dispatch"
	"github.com/aescanero/dago-task-gateway/internal/events"
	"github.com/aescanero/dago-task-gateway/internal/gateway"
	"github.com/aescanero/dago-task-gateway/internal/health"
	"github.com/aescanero/dago-task-gateway/internal/logging"
	"github.com/aescanero/dago-task-gateway/internal/normalize"
	"github.com/aescanero/dago-task-gateway/internal/pool"
	"github.com/aescanero/dago-task-gateway/internal/session"

	"github.com/redis/go-redis/v9"
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
	cfg, err := config.LoadGateway()
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

	logger.Info("starting task gateway",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// Log configuration (without sensitive data)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	specs, err := cfg.PoolSpecs()
	if err != nil {
		logger.Fatal("failed to load worker pool", zap.Error(err))
	}
	workerPool, err := pool.New(specs)
	if err != nil {
		logger.Fatal("failed to build worker pool", zap.Error(err))
	}

	sessions := session.NewManager(workerPool, logger,
		session.WithConnectTimeout(cfg.ConnectTimeout),
		session.WithSerializedCalls(cfg.SerializeCalls),
	)

	policy, err := pool.PolicyByName(cfg.SelectionPolicy)
	if err != nil {
		logger.Fatal("invalid selection policy", zap.Error(err))
	}

	dispatcher := dispatch.New(workerPool, sessions, logger,
		dispatch.WithPolicy(policy),
		dispatch.WithTimeout(cfg.RequestTimeout),
		dispatch.WithFailureThreshold(cfg.WorkerFailureThreshold),
	)

	normalizer, err := normalize.New(normalize.WithDecisionExpr(cfg.DecisionExpr))
	if err != nil {
		logger.Fatal("failed to create normalizer", zap.Error(err))
	}

	// Decision events (optional)
	var publisher events.Publisher = events.NopPublisher{}
	var redisClient *redis.Client
	if cfg.EventsEnabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable, decision events will be dropped until it is",
				zap.String("addr", cfg.RedisAddr),
				zap.Error(err),
			)
		} else {
			logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		}
		cancel()

		publisher = events.NewRedisPublisher(redisClient, cfg.EventStream, cfg.EventBuffer, logger)
	}

	// Connect to every worker before accepting traffic
	monitor := health.NewMonitor(workerPool, sessions, logger,
		health.WithInterval(cfg.HealthInterval),
		health.WithProbeTimeout(cfg.ProbeTimeout),
	)
	if err := monitor.Bootstrap(context.Background()); err != nil {
		logger.Fatal("failed to start gateway", zap.Error(err))
	}
	monitor.Start()

	server := gateway.NewServer(cfg.HTTPPort, workerPool, dispatcher, normalizer, logger,
		gateway.WithMaxPromptWords(cfg.MaxPromptWords),
		gateway.WithDefaults(cfg.DefaultRequest("")),
		gateway.WithAttempts(cfg.DispatchAttempts),
		gateway.WithDiagnostics(cfg.ResponseDiagnostics),
		gateway.WithPublisher(publisher),
	)
	if err := server.Start(); err != nil {
		logger.Fatal("failed to start http server", zap.Error(err))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("task gateway running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping gateway")

	if err := server.Stop(); err != nil {
		logger.Error("failed to stop http server", zap.Error(err))
	}

	monitor.Stop()

	if err := publisher.Close(); err != nil {
		logger.Error("failed to close event publisher", zap.Error(err))
	}

	if err := sessions.Close(); err != nil {
		logger.Error("failed to close worker sessions", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis connection", zap.Error(err))
		}
	}

	logger.Info("gateway stopped gracefully")
}
