package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	"autoposter/internal/config"
	"autoposter/internal/engine"
	"autoposter/internal/generator"
	"autoposter/internal/health"
	"autoposter/internal/platform"
	"autoposter/internal/publisher"
	"autoposter/internal/scheduler"
	"autoposter/internal/storage/postgres"
	"autoposter/internal/token"
	"autoposter/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(cfg.RabbitMQ, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize stores
	automationStore := postgres.NewAutomationStore(db)
	contentStore := postgres.NewContentStore(db)
	accountStore := postgres.NewAccountStore(db)
	txManager := postgres.NewTxManager(db)

	// Token manager plus the proactive refresh job
	tokenManager := token.NewManager(accountStore, cfg.Token, logger)
	refreshJob := token.NewRefreshJob(accountStore, tokenManager, cfg.Token.ExpiryWindow, logger)

	// Platform adapters
	registry := platform.NewRegistry(
		platform.NewTwitter(platform.TwitterConfig{}, logger),
	)

	genClient := generator.NewClient(cfg.Generator, logger)

	eng := engine.New(
		automationStore,
		contentStore,
		accountStore,
		genClient,
		rabbitMQ,
		txManager,
		logger,
		cfg.Engine,
	)

	pool := worker.NewPool(
		contentStore,
		accountStore,
		tokenManager,
		registry,
		automationStore,
		rabbitMQ,
		logger,
		cfg.Worker,
		cfg.Engine.ErrorThreshold,
	)

	sched := scheduler.New(eng, cfg.Engine.TickInterval, logger)

	healthServer := health.NewServer(cfg.Health.Addr, db, automationStore, contentStore, pool, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	cronRunner := cron.New()
	if err := cronRunner.AddFunc(fmt.Sprintf("@every %s", cfg.Token.RefreshInterval), func() {
		refreshJob.Run(ctx)
	}); err != nil {
		logger.Error("failed to schedule token refresh job", "error", err)
		os.Exit(1)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthServer.Shutdown(shutdownCtx)
	}()

	poolDone := make(chan error, 1)
	go func() {
		poolDone <- pool.Run(ctx)
	}()

	logger.Info("starting automation engine",
		"tick_interval", cfg.Engine.TickInterval,
		"workers", cfg.Worker.Count,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	// let in-flight workers release their claims
	<-poolDone
	logger.Info("shutdown complete")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
