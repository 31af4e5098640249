package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/loomledger/loomledger/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	retention time.Duration
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string, retention time.Duration) *JobsCLI {
	return &JobsCLI{
		client:    asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		inspector: asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr}),
		retention: retention,
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// BuildTask prepares a supported task by name with its default payload.
func BuildTask(name string, retention time.Duration) (*asynq.Task, error) {
	switch name {
	case jobs.TaskExportWorkbook:
		return jobs.NewExportTask("manual", time.Now().UTC())
	case jobs.TaskIdempotencyCleanup:
		return jobs.NewIdempotencyCleanupTask(retention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := BuildTask(name, c.retention)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// RunJobs dispatches "trigger <task>" and "stats".
func RunJobs(ctx context.Context, redisAddr string, retention time.Duration, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("jobs cli: expected trigger <task> or stats")
	}
	c := NewJobsCLI(redisAddr, retention)
	defer c.Close()
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("jobs cli: trigger needs a task name")
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return err
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return err
	default:
		return fmt.Errorf("jobs cli: unknown subcommand %s", args[0])
	}
}
