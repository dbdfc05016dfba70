package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/uhmwpe-lab/labdata/internal/app"
	"github.com/uhmwpe-lab/labdata/internal/attachments"
	"github.com/uhmwpe-lab/labdata/internal/auth"
	"github.com/uhmwpe-lab/labdata/internal/observability"
	"github.com/uhmwpe-lab/labdata/internal/platform/cache"
	"github.com/uhmwpe-lab/labdata/internal/platform/db"
	"github.com/uhmwpe-lab/labdata/internal/rbac"
	"github.com/uhmwpe-lab/labdata/internal/resinspinning"
	"github.com/uhmwpe-lab/labdata/internal/roles"
	"github.com/uhmwpe-lab/labdata/internal/shared"
	"github.com/uhmwpe-lab/labdata/internal/users"
	"github.com/uhmwpe-lab/labdata/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)

	rbacRepo := rbac.NewRepository(dbpool)
	engine := rbac.NewEngine(rbacRepo, rbacRepo, rbacRepo, logger)
	guard := rbac.NewGuard(engine)
	rbacHandler := rbac.NewHandler(logger, rbac.NewService(rbacRepo, auditLogger), engine, guard)

	authService := auth.NewService(auth.NewRepository(dbpool), sessionManager, engine, logger)
	authHandler := auth.NewHandler(logger, authService, csrfManager, cfg.LoginRateLimit)

	usersHandler := users.NewHandler(logger, users.NewService(users.NewRepository(dbpool), auditLogger), guard)
	rolesHandler := roles.NewHandler(logger, roles.NewService(roles.NewRepository(dbpool), auditLogger), guard)

	fileStore, err := attachments.NewFileStore(cfg.UploadDir)
	if err != nil {
		logger.Error("init upload storage", slog.Any("error", err))
		os.Exit(1)
	}
	attachmentService := attachments.NewService(attachments.NewRepository(dbpool), fileStore, auditLogger, logger,
		attachments.WithMaxBytes(cfg.UploadMaxBytes),
		attachments.WithAllowedExtensions(cfg.UploadAllowedExt),
	)

	resinService := resinspinning.NewService(resinspinning.NewRepository(dbpool), auditLogger, attachmentService, logger)
	resinHandler := resinspinning.NewHandler(logger, resinService, guard, cfg.ImportMaxBytes)
	attachmentsHandler := attachments.NewHandler(logger, attachmentService, guard, attachments.Parent{
		Module: resinspinning.ModuleName,
		Exists: func(ctx context.Context, id int64) error {
			_, err := resinService.GetRecord(ctx, id)
			return err
		},
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, guard, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		RBACHandler:        rbacHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		ResinHandler:       resinHandler,
		AttachmentsHandler: attachmentsHandler,
		JobHandler:         jobHandler,
		Metrics:            observability.NewMetrics(),
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
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
