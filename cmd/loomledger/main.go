package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/cmd/loomledger/cli"
	"github.com/loomledger/loomledger/internal/app"
	"github.com/loomledger/loomledger/internal/audit"
	"github.com/loomledger/loomledger/internal/contractors"
	"github.com/loomledger/loomledger/internal/export"
	"github.com/loomledger/loomledger/internal/observability"
	"github.com/loomledger/loomledger/internal/orders"
	"github.com/loomledger/loomledger/internal/payments"
	"github.com/loomledger/loomledger/internal/platform/cache"
	"github.com/loomledger/loomledger/internal/platform/db"
	"github.com/loomledger/loomledger/internal/reports"
	"github.com/loomledger/loomledger/internal/shared"
	"github.com/loomledger/loomledger/internal/stock"
	"github.com/loomledger/loomledger/jobs"
)

const usage = `usage: loomledger [serve | migrate | export <path> | jobs trigger <task> | jobs stats]`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(cfg, logger)
	case "export":
		err = exportOnce(ctx, cfg, os.Args[2:])
	case "jobs":
		err = cli.RunJobs(ctx, cfg.RedisAddr, cfg.IdempotencyRetention, os.Args[2:], os.Stdout)
	default:
		err = fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(cfg *app.Config, logger *slog.Logger) error {
	changed, err := db.Migrate(cfg.PGDSN)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Bool("changed", changed))
	return nil
}

func exportOnce(ctx context.Context, cfg *app.Config, args []string) error {
	path := cfg.ExportPath
	if len(args) > 0 {
		path = args[0]
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return export.SaveFile(ctx, export.NewRepository(pool), path)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	loc := cfg.Location()

	exportRepo := export.NewRepository(pool)
	var locker *redislock.Client
	if redisClient != nil {
		locker = redislock.New(redisClient)
	}
	exporter := export.NewExporter(export.ExporterConfig{
		Source: exportRepo,
		Path:   cfg.ExportPath,
		Locker: locker,
		Logger: logger,
	})
	var queue export.Enqueuer
	if cfg.Export() == export.ModeQueue {
		jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		queue = jobClient
	}

	reportsService := reports.NewService(reports.NewRepository(pool), reports.NewCache(redisClient, cfg.ReportCacheTTL), logger)
	observers := shared.Observers{
		shared.NewAuditLogger(pool, logger),
		reportsService,
		metrics,
		export.NewNotifier(cfg.Export(), queue, exporter, metrics, logger),
	}

	stockService := stock.NewService(stock.NewRepository(pool), observers)
	paymentsService := payments.NewService(payments.NewRepository(pool), observers, nil, loc)
	ordersService := orders.NewService(orders.NewRepository(pool), observers, shared.NewIdempotencyStore(pool), orders.Config{
		Strategy: cfg.Strategy(),
		Location: loc,
	})
	contractorsService := contractors.NewService(contractors.NewRepository(pool), ordersService, paymentsService, reportsService, observers)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		DB:                 pool,
		StockHandler:       stock.NewHandler(logger, stockService),
		ContractorsHandler: contractors.NewHandler(logger, contractorsService),
		PaymentsHandler:    payments.NewHandler(logger, paymentsService),
		OrdersHandler:      orders.NewHandler(logger, ordersService),
		ReportsHandler:     reports.NewHandler(logger, reportsService),
		ExportHandler:      export.NewHandler(logger, exportRepo),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("export_mode", string(cfg.Export())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
