package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chartgpt/chartgpt/internal/demo/sample"
)

func main() {
	cfg, err := sample.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo data config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	table, err := sample.NewGenerator(cfg.Seed, cfg.StartDate, cfg.Days).Table(cfg.Rows)
	if err != nil {
		logger.Error("failed to generate sales table", slog.Any("error", err))
		os.Exit(1)
	}
	data, err := sample.Encode(table, cfg.Format)
	if err != nil {
		logger.Error("failed to encode sales table", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Output != "" {
		if err := os.WriteFile(cfg.Output, data, 0o644); err != nil {
			logger.Error("failed to write demo dataset", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("demo dataset written",
			slog.String("path", cfg.Output),
			slog.String("format", cfg.Format),
			slog.Int("rows", table.Len()),
			slog.Int64("seed", cfg.Seed),
		)
	}

	if !cfg.Upload {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	uploader, err := sample.NewUploader(cfg, nil)
	if err != nil {
		logger.Error("failed to initialize uploader", slog.Any("error", err))
		os.Exit(1)
	}
	result, err := uploader.Upload(ctx, data)
	if err != nil {
		logger.Error("demo dataset upload failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo dataset loaded",
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("tenant_id", cfg.TenantID),
		slog.String("object_key", result.ObjectKey),
		slog.Int("row_count", result.RowCount),
	)
}
