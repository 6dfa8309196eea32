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

	"github.com/joho/godotenv"

	"github.com/querydesk/querydesk/internal/api"
	"github.com/querydesk/querydesk/internal/auth"
	"github.com/querydesk/querydesk/internal/config"
	"github.com/querydesk/querydesk/internal/intake"
	interactionpostgres "github.com/querydesk/querydesk/internal/interaction/postgres"
	"github.com/querydesk/querydesk/internal/modelclient"
	"github.com/querydesk/querydesk/internal/observability"
	"github.com/querydesk/querydesk/internal/pipeline"
	"github.com/querydesk/querydesk/internal/query"
	"github.com/querydesk/querydesk/internal/query/sqlexec"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("querydesk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	storeDB, err := interactionpostgres.Open(context.Background(), cfg.Store)
	if err != nil {
		logger.Error("failed to open interaction store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = storeDB.Close() }()

	warehouseDB, err := sqlexec.Open(context.Background(), cfg.Warehouse)
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err), slog.String("driver", cfg.Warehouse.Driver))
		os.Exit(1)
	}
	defer func() { _ = warehouseDB.Close() }()

	var policy query.Policy = query.AllowAll
	if cfg.Warehouse.ReadOnly {
		policy = query.ReadOnlyPolicy{}
	} else if cfg.Warehouse.SharesStore {
		logger.Warn("warehouse shares the interaction store without a read-only policy",
			slog.String("hint", "set QUERYDESK_WAREHOUSE_DSN to a read-only role or QUERYDESK_WAREHOUSE_READ_ONLY=true"))
	}
	executor := sqlexec.New(warehouseDB, sqlexec.Options{Timeout: cfg.Warehouse.Timeout, Policy: policy})

	model, err := modelclient.New(modelclient.Config{
		BaseURL:            cfg.AI.BaseURL,
		APIKey:             cfg.AI.APIKey,
		Model:              cfg.AI.Model,
		Dialect:            cfg.Warehouse.Dialect,
		QueryTemperature:   cfg.AI.QueryTemperature,
		SummaryTemperature: cfg.AI.SummaryTemperature,
		Timeout:            cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}

	repo := interactionpostgres.NewRepository(storeDB)
	service := intake.NewService(
		repo,
		interactionpostgres.NewRequesterDirectory(storeDB),
		pipeline.New(model, executor, logger),
		intake.Options{MarkFailedOnError: cfg.Intake.MarkFailedOnError, Logger: logger},
	)

	deps := api.Dependencies{
		Logger:            logger,
		Interactions:      service,
		Readiness:         api.CombineReadinessChecks(repo.HealthCheck, executor.Ping),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("model", model.Model()),
			slog.String("dialect", cfg.Warehouse.Dialect),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
