// Package notify pushes execution outcomes to chat channels (Telegram,
// Discord). Operators choose which outcomes reach them by event name.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// Outcome event names.
const (
	EventProfitable   = "execution_profitable"
	EventUnprofitable = "execution_unprofitable"
	EventFailed       = "execution_failed"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a message out to every sender, filtered by event name.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify sends title and message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Record classifies a finished execution and notifies on its outcome.
func (n *Notifier) Record(ctx context.Context, r domain.ExecutionResult) error {
	event, title, message := Describe(r)
	return n.Notify(ctx, event, title, message)
}

// Describe renders r as an outcome event, a title and a message body.
func Describe(r domain.ExecutionResult) (event, title, message string) {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\nstrategy: %s\n", r.ID, r.Strategy)
	switch {
	case !r.Success:
		event, title = EventFailed, fmt.Sprintf("Execution failed: %s", r.Strategy)
		fmt.Fprintf(&b, "kind: %s\n", r.FailureKind)
		if r.FailureReason != "" {
			fmt.Fprintf(&b, "reason: %s\n", r.FailureReason)
		}
	case r.Profitable():
		event, title = EventProfitable, fmt.Sprintf("Profitable execution: %s", r.Strategy)
	default:
		event, title = EventUnprofitable, fmt.Sprintf("Unprofitable execution: %s", r.Strategy)
	}
	switch {
	case r.ProfitFormatted != "" && r.BaseSymbol != "":
		fmt.Fprintf(&b, "profit: %s %s\n", r.ProfitFormatted, r.BaseSymbol)
	case r.Profit != nil:
		fmt.Fprintf(&b, "profit: %s (base %s)\n", r.Profit, r.BaseAsset.Hex())
	}
	if r.Settled && r.SettledProfit != nil {
		fmt.Fprintf(&b, "settled profit: %s\n", r.SettledProfit)
	}
	fmt.Fprintf(&b, "gas: %d, took %s", r.GasUsed, r.Duration)
	return event, title, b.String()
}

// dispatch delivers to every sender; one failing sender does not stop the
// rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
