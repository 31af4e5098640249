package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomledger/loomledger/internal/shared"
)

// Mode selects how committed mutations reach the export.
type Mode string

const (
	// ModeQueue enqueues a background job per commit.
	ModeQueue Mode = "queue"
	// ModeInline runs the export in a goroutine of the serving process.
	ModeInline Mode = "inline"
	// ModeOff disables the export side-effect.
	ModeOff Mode = "off"
)

// ParseMode validates a configured mode.
func ParseMode(value string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return ModeQueue, nil
	case ModeQueue, ModeInline, ModeOff:
		return m, nil
	default:
		return "", fmt.Errorf("export: unknown mode %q", value)
	}
}

// Enqueuer submits export jobs.
type Enqueuer interface {
	EnqueueExport(ctx context.Context, reason string) error
}

// Runner performs an export synchronously.
type Runner interface {
	Run(ctx context.Context) error
}

// FailureCounter records export failures.
type FailureCounter interface {
	ExportFailed(stage string)
}

// Notifier triggers the export after every committed mutation. It never
// returns an error to the caller; failures are logged and counted.
type Notifier struct {
	mode     Mode
	queue    Enqueuer
	runner   Runner
	failures FailureCounter
	logger   *slog.Logger
	// spawn runs inline exports; tests replace it to run synchronously.
	spawn func(func())
}

// NewNotifier constructs Notifier.
func NewNotifier(mode Mode, queue Enqueuer, runner Runner, failures FailureCounter, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		mode:     mode,
		queue:    queue,
		runner:   runner,
		failures: failures,
		logger:   logger,
		spawn:    func(fn func()) { go fn() },
	}
}

// Committed implements shared.CommitObserver.
func (n *Notifier) Committed(ctx context.Context, evt shared.CommitEvent) {
	reason := fmt.Sprintf("%s:%s:%d", evt.Entity, evt.Action, evt.EntityID)
	switch n.mode {
	case ModeQueue:
		if n.queue == nil {
			return
		}
		if err := n.queue.EnqueueExport(context.WithoutCancel(ctx), reason); err != nil {
			n.fail("enqueue", reason, err)
		}
	case ModeInline:
		if n.runner == nil {
			return
		}
		detached := context.WithoutCancel(ctx)
		n.spawn(func() {
			if err := n.runner.Run(detached); err != nil {
				n.fail("run", reason, err)
			}
		})
	}
}

func (n *Notifier) fail(stage, reason string, err error) {
	n.logger.Error("export failed", slog.String("stage", stage), slog.String("reason", reason), slog.Any("error", err))
	if n.failures != nil {
		n.failures.ExportFailed(stage)
	}
}
