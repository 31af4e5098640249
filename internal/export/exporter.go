package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
)

const lockKey = "loomledger:export:lock"

// ErrBusy is returned when another process holds the export lock for longer
// than the wait budget.
var ErrBusy = errors.New("export: another export is running")

// Exporter mirrors the ledger tables into a workbook on disk. With a locker,
// only one process writes the file at a time.
type Exporter struct {
	source  Source
	path    string
	locker  *redislock.Client
	lockTTL time.Duration
	wait    time.Duration
	logger  *slog.Logger
}

// ExporterConfig collects Exporter dependencies.
type ExporterConfig struct {
	Source  Source
	Path    string
	Locker  *redislock.Client
	LockTTL time.Duration
	Wait    time.Duration
	Logger  *slog.Logger
}

// NewExporter constructs Exporter.
func NewExporter(cfg ExporterConfig) *Exporter {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Exporter{
		source:  cfg.Source,
		path:    cfg.Path,
		locker:  cfg.Locker,
		lockTTL: cfg.LockTTL,
		wait:    cfg.Wait,
		logger:  cfg.Logger,
	}
}

// Path is the workbook location.
func (e *Exporter) Path() string {
	return e.path
}

// Run writes the workbook file.
func (e *Exporter) Run(ctx context.Context) error {
	if e.path == "" {
		return errors.New("export: path not configured")
	}
	if e.locker != nil {
		waitCtx, cancel := context.WithTimeout(ctx, e.wait)
		lock, err := e.locker.Obtain(waitCtx, lockKey, e.lockTTL, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
		})
		cancel()
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return ErrBusy
		}
		if err != nil {
			return fmt.Errorf("export: obtain lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				e.logger.Warn("export lock release", slog.Any("error", err))
			}
		}()
	}
	start := time.Now()
	if err := SaveFile(ctx, e.source, e.path); err != nil {
		return err
	}
	e.logger.Debug("export written", slog.String("path", e.path), slog.Duration("took", time.Since(start)))
	return nil
}
