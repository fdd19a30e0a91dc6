package database

import (
	"context"
	"time"
)

// Operation names reported in OperationEvent.
const (
	OpWithConnection  = "with_connection"
	OpWithTransaction = "with_transaction"
)

// Outcomes reported in OperationEvent.
const (
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
)

// OperationEvent describes one completed WithConnection or WithTransaction call.
type OperationEvent struct {
	Operation string
	Outcome   string
	Duration  time.Duration
	Err       error
	At        time.Time
}

// Success reports whether the operation returned without error.
func (e OperationEvent) Success() bool {
	return e.Err == nil
}

// Observer receives an event after every manager call.
//
// ObserveOperation runs synchronously on the caller's goroutine after the
// connection has been released; implementations must not block.
type Observer interface {
	ObserveOperation(ctx context.Context, ev OperationEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev OperationEvent)

// ObserveOperation calls f(ctx, ev).
func (f ObserverFunc) ObserveOperation(ctx context.Context, ev OperationEvent) {
	f(ctx, ev)
}

// MultiObserver fans events out to several observers. Nil entries are skipped.
type MultiObserver []Observer

// ObserveOperation forwards ev to every observer in order.
func (m MultiObserver) ObserveOperation(ctx context.Context, ev OperationEvent) {
	for _, o := range m {
		if o != nil {
			o.ObserveOperation(ctx, ev)
		}
	}
}
