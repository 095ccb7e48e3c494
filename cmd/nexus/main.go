package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nexus-iot/nexus/internal/app"
	"github.com/nexus-iot/nexus/internal/auth"
	"github.com/nexus-iot/nexus/internal/observability"
	"github.com/nexus-iot/nexus/internal/platform/cache"
	"github.com/nexus-iot/nexus/internal/platform/db"
	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/roles"
	"github.com/nexus-iot/nexus/internal/shared"
	"github.com/nexus-iot/nexus/internal/users"
	"github.com/nexus-iot/nexus/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessions := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL)
	auditLogger := shared.NewAuditLogger(dbpool)

	rolesRepo := roles.NewRepository(dbpool)
	grantCache := roles.NewGrantCache(redisClient, cfg.GrantCacheTTL, logger)
	rolesService := roles.NewService(rolesRepo, grantCache, auditLogger, logger)

	resolver := rbac.NewResolver(rolesService, rbac.ResolverConfig{
		SysAdminFullAccess: cfg.SysAdminFullAccess,
		Concurrency:        cfg.ResolveConcurrency,
	}, logger)
	enforcer := rbac.NewEnforcer(resolver, metrics, logger)
	rbacMiddleware := rbac.Middleware{Enforcer: enforcer}

	usersService := users.NewService(users.NewRepository(dbpool), rolesService)
	authService := auth.NewService(usersService, resolver)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("jobs inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthMiddleware: auth.Middleware{Sessions: sessions, Service: authService, Logger: logger},
		AuthHandler:    auth.NewHandler(),
		RolesHandler:   roles.NewHandler(logger, rolesService, jobsClient, rbacMiddleware),
		UsersHandler:   users.NewHandler(logger, usersService, rbacMiddleware),
		JobsHandler:    jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		Checks: map[string]app.Pinger{
			"postgres": app.PingFunc(dbpool.Ping),
			"redis":    app.PingFunc(cache.Ping(redisClient)),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
