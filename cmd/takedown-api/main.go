// Package main implements the takedown case API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GSharvesh/Hac-KP/internal/api"
	"github.com/GSharvesh/Hac-KP/internal/audit"
	"github.com/GSharvesh/Hac-KP/internal/config"
	"github.com/GSharvesh/Hac-KP/internal/dedup"
	"github.com/GSharvesh/Hac-KP/internal/lock"
	"github.com/GSharvesh/Hac-KP/internal/notify"
	"github.com/GSharvesh/Hac-KP/internal/reporting"
	"github.com/GSharvesh/Hac-KP/internal/workflow"
	"github.com/GSharvesh/Hac-KP/pkg/metrics"
	"github.com/GSharvesh/Hac-KP/pkg/postgres"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("TAKEDOWN_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Service = "takedown-api"

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting takedown-api", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.NewFromDSN(cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Distributed locks fall back to in-process when redis is disabled.
	var locker lock.Locker
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedisLocker(rdb)
	} else {
		locker = lock.NewMemoryLocker()
	}

	var notifier notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(notify.WebhookConfig{
			Endpoint:   cfg.Notify.WebhookURL,
			APIKey:     cfg.Notify.APIKey,
			Timeout:    cfg.Notify.Timeout,
			RetryCount: cfg.Notify.RetryCount,
		})
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	// Services
	store := postgres.NewStore(db)
	auditRepo := postgres.NewAuditRepository(db)
	auditSvc := audit.NewService(auditRepo)
	resolver := dedup.NewResolver(store, cfg.Workflow.MaxLineageDepth)
	workflowSvc := workflow.NewService(store, locker, resolver, auditSvc, notifier, logger, workflow.Config{
		SLABudgets:      cfg.Workflow.SLABudgets(),
		ReassignBudget:  time.Duration(cfg.Workflow.ReassignHours) * time.Hour,
		MaxEscalations:  cfg.Workflow.MaxEscalations,
		EscalationFloor: cfg.Workflow.EscalationFloor,
		LockWait:        cfg.Workflow.LockWait,
		LockTTL:         cfg.Workflow.LockTTL,
	})
	reportingSvc := reporting.NewService(workflowSvc, auditSvc)

	serviceMetrics := metrics.NewServiceMetrics(cfg.Service, version)
	metrics.RegisterDBStats(db.DB)

	healthChecker := api.NewHealthChecker(logger)
	healthChecker.Register("database", db.HealthCheck)

	router := api.NewRouter(&api.RouterConfig{
		Logger:        logger,
		RateLimiter:   api.NewInMemoryRateLimiter(100, time.Minute),
		Metrics:       serviceMetrics,
		HealthChecker: healthChecker,
	}, &api.Services{
		Workflow:  workflowSvc,
		Audit:     auditSvc,
		Reporting: reportingSvc,
	})

	server := api.NewServer(router, &api.ServerConfig{
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Logger:       logger,
	})

	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
