// Package main implements the SLA sweep worker.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GSharvesh/Hac-KP/internal/audit"
	"github.com/GSharvesh/Hac-KP/internal/config"
	"github.com/GSharvesh/Hac-KP/internal/dedup"
	"github.com/GSharvesh/Hac-KP/internal/lock"
	"github.com/GSharvesh/Hac-KP/internal/notify"
	"github.com/GSharvesh/Hac-KP/internal/scheduler"
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
	cfg.Service = "takedown-worker"

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting takedown-worker", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// The worker shares case locks with the API, so both must use the
	// same backend when redis is enabled.
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
		logger.Warn("redis disabled, case locks are process-local")
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

	store := postgres.NewStore(db)
	auditSvc := audit.NewService(postgres.NewAuditRepository(db))
	resolver := dedup.NewResolver(store, cfg.Workflow.MaxLineageDepth)
	workflowSvc := workflow.NewService(store, locker, resolver, auditSvc, notifier, logger, workflow.Config{
		SLABudgets:      cfg.Workflow.SLABudgets(),
		ReassignBudget:  time.Duration(cfg.Workflow.ReassignHours) * time.Hour,
		MaxEscalations:  cfg.Workflow.MaxEscalations,
		EscalationFloor: cfg.Workflow.EscalationFloor,
		LockWait:        cfg.Workflow.LockWait,
		LockTTL:         cfg.Workflow.LockTTL,
	})

	serviceMetrics := metrics.NewServiceMetrics(cfg.Service, version)
	metrics.RegisterDBStats(db.DB)

	sched := scheduler.New(workflowSvc, store, notifier, serviceMetrics, logger, scheduler.Config{
		Interval:        cfg.Scheduler.Interval,
		WarningWindow:   cfg.Scheduler.WarningWindow,
		Concurrency:     cfg.Scheduler.Concurrency,
		PoisonThreshold: cfg.Scheduler.PoisonThreshold,
		BatchSize:       cfg.Scheduler.BatchSize,
	})

	// Expose health and metrics for the orchestrator.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler stopped", "error", err)
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
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
