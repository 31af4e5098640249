package shared

import (
	"context"
	"time"
)

// CommitEvent describes a mutation that has been committed.
type CommitEvent struct {
	Entity   string
	EntityID int64
	Action   string
	Meta     map[string]any
	At       time.Time
}

// CommitObserver is notified after a business transaction commits. Implementations
// must not block the caller for long and must never fail the parent operation.
type CommitObserver interface {
	Committed(ctx context.Context, evt CommitEvent)
}

// CommitObserverFunc adapts a function to CommitObserver.
type CommitObserverFunc func(ctx context.Context, evt CommitEvent)

// Committed calls f.
func (f CommitObserverFunc) Committed(ctx context.Context, evt CommitEvent) {
	f(ctx, evt)
}

// Observers fans a commit event out to every registered observer.
type Observers []CommitObserver

// Committed notifies each observer in registration order.
func (o Observers) Committed(ctx context.Context, evt CommitEvent) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	for _, obs := range o {
		if obs != nil {
			obs.Committed(ctx, evt)
		}
	}
}

// NotifyCommitted is a nil-safe helper used by services.
func NotifyCommitted(ctx context.Context, obs CommitObserver, evt CommitEvent) {
	if obs == nil {
		return
	}
	obs.Committed(ctx, evt)
}
