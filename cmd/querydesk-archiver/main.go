package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/querydesk/querydesk/internal/archive"
	"github.com/querydesk/querydesk/internal/config"
	interactionpostgres "github.com/querydesk/querydesk/internal/interaction/postgres"
	"github.com/querydesk/querydesk/internal/observability"
	s3store "github.com/querydesk/querydesk/internal/storage/s3"
)

func main() {
	loop := flag.Bool("loop", false, "keep running and export every QUERYDESK_ARCHIVE_INTERVAL")
	day := flag.String("date", "", "export this UTC day (YYYY-MM-DD) instead of yesterday")
	overwrite := flag.Bool("overwrite", false, "replace an existing archive object for the window")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("querydesk-archiver")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := interactionpostgres.Open(context.Background(), cfg.Store)
	if err != nil {
		logger.Error("failed to open interaction store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store, err := s3store.New(context.Background(), cfg.Archive)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	exporter := &archive.Exporter{
		Source:      interactionpostgres.NewRepository(db),
		ObjectStore: store,
		Config: archive.Config{
			PageSize:  cfg.Archive.PageSize,
			Interval:  cfg.Archive.Interval,
			Overwrite: *overwrite,
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *loop {
		logger.Info("archiver worker started", slog.Duration("interval", cfg.Archive.Interval))
		if err := exporter.Run(ctx); err != nil {
			logger.Error("archiver worker failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("archiver worker stopped")
		return
	}

	from, to := archive.PreviousDay(time.Now())
	if *day != "" {
		parsed, err := time.Parse(time.DateOnly, *day)
		if err != nil {
			logger.Error("invalid -date", slog.String("date", *day), slog.Any("error", err))
			os.Exit(2)
		}
		from, to = parsed, parsed.AddDate(0, 0, 1)
	}
	summary, err := exporter.Export(ctx, from, to)
	if err != nil {
		logger.Error("archive export failed", slog.Any("error", err), slog.Any("summary", summary))
		os.Exit(1)
	}
	logger.Info("archive export completed", slog.Any("summary", summary))
}
