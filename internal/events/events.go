// Package events fans harness events out to logs and the signal bus.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// Stream is the durable stream every event is appended to.
const Stream = "stream:harness:events"

// Channel returns the pub/sub channel for kind.
func Channel(kind domain.EventKind) string {
	return "ch:harness:" + string(kind)
}

// Channels lists every event channel.
func Channels() []string {
	kinds := []domain.EventKind{
		domain.EventBalanceSnapshot,
		domain.EventProfitComputed,
		domain.EventSwapExecuted,
		domain.EventSwapFailed,
		domain.EventExecutionCompleted,
	}
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = Channel(k)
	}
	return out
}

// Log writes events as structured log records.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log emitter.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With(slog.String("component", "events"))}
}

// Emit logs ev at info level.
func (l *Log) Emit(ctx context.Context, ev domain.Event) {
	attrs := make([]any, 0, len(ev.Data)+2)
	attrs = append(attrs, slog.String("kind", string(ev.Kind)))
	if ev.ExecutionID != "" {
		attrs = append(attrs, slog.String("execution_id", ev.ExecutionID))
	}
	for k, v := range ev.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "event", attrs...)
}

// Bus publishes events on the signal bus and appends them to Stream.
type Bus struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewBus creates a Bus emitter.
func NewBus(bus domain.SignalBus, logger *slog.Logger) *Bus {
	return &Bus{bus: bus, logger: logger.With(slog.String("component", "event_bus"))}
}

// Emit publishes ev. Publish failures are logged and dropped.
func (b *Bus) Emit(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("marshal event", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
		return
	}
	if err := b.bus.Publish(ctx, Channel(ev.Kind), payload); err != nil {
		b.logger.Warn("publish event", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
	}
	if err := b.bus.StreamAppend(ctx, Stream, payload); err != nil {
		b.logger.Warn("append event", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
	}
}

// Multi forwards every event to each emitter in order.
type Multi []domain.EventEmitter

// Emit forwards ev.
func (m Multi) Emit(ctx context.Context, ev domain.Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, ev)
		}
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// Emit stores ev.
func (r *Recorder) Emit(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

var (
	_ domain.EventEmitter = (*Log)(nil)
	_ domain.EventEmitter = (*Bus)(nil)
	_ domain.EventEmitter = Multi(nil)
	_ domain.EventEmitter = (*Recorder)(nil)
)
