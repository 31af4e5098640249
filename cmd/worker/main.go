package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/loomledger/loomledger/internal/app"
	"github.com/loomledger/loomledger/internal/export"
	jobmetrics "github.com/loomledger/loomledger/internal/jobs"
	"github.com/loomledger/loomledger/internal/platform/cache"
	"github.com/loomledger/loomledger/internal/platform/db"
	"github.com/loomledger/loomledger/internal/shared"
	"github.com/loomledger/loomledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	exporter := export.NewExporter(export.ExporterConfig{
		Source: export.NewRepository(pool),
		Path:   cfg.ExportPath,
		Locker: redislock.New(redisClient),
		Logger: logger,
	})
	exportJob := jobs.NewExportJob(exporter, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExportWorkbook, Handler: exportJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("export_path", exporter.Path()))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
