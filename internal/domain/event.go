package domain

import (
	"context"
	"time"
)

// EventKind names an observable harness event.
type EventKind string

const (
	EventBalanceSnapshot    EventKind = "balance_snapshot"
	EventProfitComputed     EventKind = "profit_computed"
	EventSwapExecuted       EventKind = "swap_executed"
	EventSwapFailed         EventKind = "swap_failed"
	EventExecutionCompleted EventKind = "execution_completed"
)

// Event is a structured record emitted during an execution.
type Event struct {
	Kind        EventKind      `json:"kind"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Data        map[string]any `json:"data"`
	At          time.Time      `json:"at"`
}

// EventEmitter receives harness events. Emit never fails the caller.
type EventEmitter interface {
	Emit(ctx context.Context, ev Event)
}

type executionIDKey struct{}

// WithExecutionID tags ctx with the running execution's ID.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey{}, id)
}

// ExecutionIDFrom returns the execution ID carried by ctx, if any.
func ExecutionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}
