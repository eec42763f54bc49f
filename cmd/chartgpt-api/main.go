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

	"github.com/chartgpt/chartgpt/internal/api"
	"github.com/chartgpt/chartgpt/internal/auth"
	"github.com/chartgpt/chartgpt/internal/chartgpt"
	"github.com/chartgpt/chartgpt/internal/codegen"
	"github.com/chartgpt/chartgpt/internal/config"
	"github.com/chartgpt/chartgpt/internal/history"
	"github.com/chartgpt/chartgpt/internal/maintenance"
	historypostgres "github.com/chartgpt/chartgpt/internal/history/postgres"
	"github.com/chartgpt/chartgpt/internal/observability"
	duckdbengine "github.com/chartgpt/chartgpt/internal/query/duckdb"
	"github.com/chartgpt/chartgpt/internal/sandbox"
	"github.com/chartgpt/chartgpt/internal/storage/factory"
)

func main() {
	cfg, err := config.LoadFromEnv("chartgpt-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	objectStore, err := factory.Open(context.Background(), cfg.ObjectStore)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	queryEngine := duckdbengine.NewEngine(objectStore)

	var runs history.Repository = history.NewMemory(0)
	if cfg.History.DSN != "" {
		historyDB, err := historypostgres.Open(context.Background(), historypostgres.DBConfig{
			DSN:             cfg.History.DSN,
			MaxOpenConns:    cfg.History.MaxOpenConns,
			MaxIdleConns:    cfg.History.MaxIdleConns,
			ConnMaxIdleTime: cfg.History.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.History.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open history db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = historyDB.Close() }()
		runs = historypostgres.NewRepository(historyDB)
	} else {
		logger.Warn("CHARTGPT_HISTORY_DSN not set, keeping run history in memory")
	}

	runner := sandbox.NewRunner(sandbox.Options{
		Engine:   queryEngine,
		RowLimit: cfg.Sandbox.QueryRowLimit,
		Logger:   logger,
	})
	codegenConfig := codegen.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}
	sessions := api.NewSessions(func(tenantID string) (*chartgpt.ChartGPT, error) {
		return chartgpt.New(
			chartgpt.WithLLM(cfg.LLM.Backend),
			chartgpt.WithCodegenConfig(codegenConfig),
			chartgpt.WithConversational(cfg.Session.Conversational),
			chartgpt.WithVerbose(cfg.Session.Verbose),
			chartgpt.WithRunner(runner),
			chartgpt.WithLogger(logger.With(slog.String("tenant_id", tenantID))),
		)
	})

	deps := api.Dependencies{
		Logger:      logger,
		Sessions:    sessions,
		QueryEngine: queryEngine,
		ObjectStore: objectStore,
		History:     runs,
		Readiness: api.CombineReadinessChecks(
			api.CheckHistory(runs),
			api.CheckObjectStoreConfig(cfg),
			api.CheckLLMConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("api key auth enabled", slog.Int("keys", validator.Len()))
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Maintenance.RetentionInterval > 0 {
		sweeper := &maintenance.Service{
			History:     runs,
			ObjectStore: objectStore,
			Config: maintenance.Config{
				RetentionInterval: cfg.Maintenance.RetentionInterval,
				KeepRuns:          cfg.Maintenance.KeepRuns,
				SafetyAge:         cfg.Maintenance.SafetyAge,
			},
			Logger: logger,
		}
		go func() {
			_ = sweeper.Run(ctx)
		}()
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("object_store", cfg.ObjectStore.Backend),
			slog.String("llm", cfg.LLM.Backend),
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
