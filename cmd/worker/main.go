package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-gateway/internal/app"
	"github.com/odyssey-erp/odyssey-gateway/internal/observability"
	"github.com/odyssey-erp/odyssey-gateway/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/users"
	"github.com/odyssey-erp/odyssey-gateway/jobs"
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
	metrics := observability.NewMetrics()

	manager := db.NewManager(db.PoolDialer(cfg.PGDSN), db.ManagerConfig{
		MaxAttempts: cfg.DBMaxRetries,
		RetryDelay:  cfg.DBRetryDelay,
		Logger:      logger,
		Observer:    metrics,
	})
	defer manager.Release()

	rbacService := rbac.NewService(rbac.NewStores(manager), users.NewRepository(manager), manager, logger)
	syncJob := jobs.NewSyncPermissionsJob(rbacService, logger, metrics.Jobs())

	syncTask, err := jobs.NewSyncPermissionsTask("schedule")
	if err != nil {
		logger.Error("build sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cache.QueueOpt(cfg.RedisAddr),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSyncPermissions, Handler: syncJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PermissionSyncCron, Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("sync_cron", cfg.PermissionSyncCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
