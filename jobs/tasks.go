package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/loomledger/loomledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExportWorkbook rewrites the spreadsheet mirror of the ledger.
	TaskExportWorkbook = "export:workbook"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// ExportPayload records which commit asked for the export.
type ExportPayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewExportTask constructs an export task.
func NewExportTask(reason string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ExportPayload{Reason: reason, RequestedAt: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExportWorkbook, body), nil
}

// ExportRunner performs one export.
type ExportRunner interface {
	Run(ctx context.Context) error
}

// ExportJob handles TaskExportWorkbook.
type ExportJob struct {
	runner  ExportRunner
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewExportJob constructs ExportJob.
func NewExportJob(runner ExportRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExportJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportJob{runner: runner, logger: logger, metrics: metrics}
}

// Handle runs the export. Failures are returned so asynq retries them.
func (j *ExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode export payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics.Track(TaskExportWorkbook)
	err := j.runner.Run(ctx)
	if err != nil {
		j.logger.Warn("export job failed", slog.String("reason", payload.Reason), slog.Any("error", err))
	}
	return tracker.End(err)
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		return nil, errors.New("jobs: retention must be positive")
	}
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// KeyPruner deletes idempotency keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob handles TaskIdempotencyCleanup.
type IdempotencyCleanupJob struct {
	store   KeyPruner
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob constructs IdempotencyCleanupJob.
func NewIdempotencyCleanupJob(store KeyPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyCleanupJob{store: store, logger: logger, metrics: metrics}
}

// Handle prunes expired keys.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Retention <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskIdempotencyCleanup)
	removed, err := j.store.Cleanup(ctx, payload.Retention)
	if err == nil {
		j.logger.Info("idempotency keys pruned", slog.Int64("removed", removed))
	}
	return tracker.End(err)
}
