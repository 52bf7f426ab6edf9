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
	"github.com/redis/go-redis/v9"

	"github.com/ibms-erp/ibms/internal/app"
	"github.com/ibms-erp/ibms/internal/auth"
	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/clients"
	"github.com/ibms-erp/ibms/internal/dashboard"
	"github.com/ibms-erp/ibms/internal/invoices"
	"github.com/ibms-erp/ibms/internal/mailer"
	"github.com/ibms-erp/ibms/internal/observability"
	"github.com/ibms-erp/ibms/internal/platform/db"
	"github.com/ibms-erp/ibms/internal/shared"
	"github.com/ibms-erp/ibms/internal/users"
	"github.com/ibms-erp/ibms/internal/view"
	"github.com/ibms-erp/ibms/jobs"
	"github.com/ibms-erp/ibms/migrations"
	"github.com/ibms-erp/ibms/report"
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, cfg.PGDSN, migrations.FS); err != nil {
			logger.Error("run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	secure := cfg.IsProduction()
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret, secure)
	activityLogger := shared.NewActivityLogger(pool)
	authzMiddleware := authz.Middleware{Logger: logger}

	smtp, err := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		BaseURL:  cfg.AppBaseURL,
	}, logger)
	if err != nil {
		logger.Error("init mailer", slog.Any("error", err))
		os.Exit(1)
	}

	tokens := auth.NewTokenManager(cfg.AuthSecret, cfg.AuthTokenTTL, cfg.AuthRememberTTL)
	revoker := auth.NewRevoker(redisClient)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokens, revoker, smtp, activityLogger, logger)
	authHandler := auth.NewHandler(logger, authService, templates, csrfManager, secure)
	authGate := auth.Gate{Service: authService, Logger: logger, Secure: secure}

	clientsRepo := clients.NewPGRepository(pool)
	clientsService := clients.NewService(clientsRepo, activityLogger, logger)
	clientsHandler := clients.NewHandler(logger, clientsService, templates, csrfManager, authzMiddleware, secure)

	reportClient := report.NewClient(cfg.GotenbergURL)
	pdfExporter, err := invoices.NewPDFExporter(reportClient)
	if err != nil {
		logger.Error("init pdf exporter", slog.Any("error", err))
		os.Exit(1)
	}

	invoicesRepo := invoices.NewPGRepository(pool)
	invoicesService := invoices.NewService(invoicesRepo, activityLogger, logger)
	invoicesHandler := invoices.NewHandler(logger, invoicesService, clientsService, pdfExporter, templates, csrfManager, authzMiddleware, secure)

	usersRepo := users.NewPGRepository(pool)
	usersService := users.NewService(usersRepo, smtp, activityLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, templates, csrfManager, authzMiddleware, secure)

	dashboardRepo := dashboard.NewPGRepository(pool)
	dashboardService := dashboard.NewService(dashboardRepo, logger)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, clientsService, templates, csrfManager, authzMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CSRFManager:      csrfManager,
		AuthGate:         authGate,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		ClientsHandler:   clientsHandler,
		InvoicesHandler:  invoicesHandler,
		UsersHandler:     usersHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
