package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/bugtrail/bugtrail/internal/app"
	"github.com/bugtrail/bugtrail/internal/audit"
	"github.com/bugtrail/bugtrail/internal/auth"
	"github.com/bugtrail/bugtrail/internal/bugs"
	jobmetrics "github.com/bugtrail/bugtrail/internal/jobs"
	"github.com/bugtrail/bugtrail/internal/platform/db"
	"github.com/bugtrail/bugtrail/internal/shared"
	"github.com/bugtrail/bugtrail/internal/users"
	"github.com/bugtrail/bugtrail/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	userRepo := users.NewRepository(pool)
	bugRepo := bugs.NewRepository(pool)
	sessionRepo := auth.NewSessionRepository(pool)
	authService := auth.NewService(userRepo, sessionRepo)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	auditService := audit.NewService(audit.NewRepository(pool))

	notifier := jobs.AssignmentNotifier{Bugs: bugRepo, Users: userRepo, Logger: logger}
	sessionCleaner := jobs.SessionCleaner{
		Auth:         authService,
		Idempotency:  idempotencyStore,
		KeyRetention: cfg.IdemKeyLifetime,
		Logger:       logger,
	}
	auditPruner := jobs.AuditPruner{
		Audit:     auditService,
		Retention: cfg.AuditRetention,
		Logger:    logger,
	}

	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAssignmentNotification, Handler: jobs.Instrument("notify_assignment", metrics, notifier.Handle)},
			{Type: jobs.TaskSessionCleanup, Handler: jobs.Instrument("session_cleanup", metrics, sessionCleaner.Handle)},
			{Type: jobs.TaskAuditRetention, Handler: jobs.Instrument("audit_retention", metrics, auditPruner.Handle)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: jobs.NewSessionCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: jobs.NewAuditRetentionTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
