package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-gateway/internal/app"
	"github.com/odyssey-erp/odyssey-gateway/internal/auth"
	"github.com/odyssey-erp/odyssey-gateway/internal/observability"
	"github.com/odyssey-erp/odyssey-gateway/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/roles"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
	"github.com/odyssey-erp/odyssey-gateway/internal/users"
	"github.com/odyssey-erp/odyssey-gateway/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	if _, err := manager.Acquire(ctx); err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		manager.Release()
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	usersRepo := users.NewRepository(manager)
	rbacService := rbac.NewService(rbac.NewStores(manager), usersRepo, manager, logger)
	rbacMiddleware := rbac.Middleware{Gate: rbac.NewGate(rbacService, metrics), Logger: logger}

	defaultRole, err := auth.ResolveDefaultRole(ctx, rbacService, cfg.DefaultRoleName, logger)
	if err != nil {
		logger.Error("resolve default role", slog.Any("error", err))
		os.Exit(1)
	}
	authService, err := auth.NewService(usersRepo, rbacService, manager, auth.Options{
		BcryptCost:    cfg.BcryptCost,
		DefaultRoleID: defaultRole,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("init auth service", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Database:           manager,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager, csrfManager, rbacMiddleware, cfg.LoginRateLimit),
		UsersHandler:       users.NewHandler(logger, users.NewService(usersRepo), authService, rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger, rbacService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		manager.Release()
		if err := sessionManager.Close(); err != nil {
			logger.Warn("session store close", slog.Any("error", err))
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Error("shutdown timed out, exiting")
		os.Exit(1)
	}
}
