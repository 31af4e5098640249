package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/loomledger/loomledger/internal/jobs"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

type prunerFunc func(ctx context.Context, olderThan time.Duration) (int64, error)

func (f prunerFunc) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return f(ctx, olderThan)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExportTaskRoundTrip(t *testing.T) {
	at := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
	task, err := NewExportTask("order:created:1", at)
	require.NoError(t, err)
	require.Equal(t, TaskExportWorkbook, task.Type())

	var payload ExportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "order:created:1", payload.Reason)
	require.True(t, payload.RequestedAt.Equal(at))
}

func TestExportJobPropagatesFailure(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	calls := 0
	job := NewExportJob(runnerFunc(func(ctx context.Context) error {
		calls++
		if calls > 1 {
			return errors.New("disk full")
		}
		return nil
	}), quietLogger(), metrics)

	task, err := NewExportTask("payment:created:3", time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskExportWorkbook, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
	require.Equal(t, 2, calls)
}

func TestIdempotencyCleanupJob(t *testing.T) {
	_, err := NewIdempotencyCleanupTask(0)
	require.Error(t, err)

	var got time.Duration
	job := NewIdempotencyCleanupJob(prunerFunc(func(ctx context.Context, olderThan time.Duration) (int64, error) {
		got = olderThan
		return 4, nil
	}), quietLogger(), nil)

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, got)
}
