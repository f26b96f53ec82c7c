// Package dispatch routes matched-rule actions to their configured
// recipients. It is a fire-and-forget effect boundary: delivery failures are
// logged and counted, never retried, and never fail the correlation pipeline.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/intelsphere/apex-feeds/internal/metrics"
	"github.com/intelsphere/apex-feeds/internal/models"
)

// Notifier is the external delivery collaborator. It alone interprets the
// action type.
type Notifier interface {
	Notify(ctx context.Context, action models.ActionTrigger, event models.CorrelationEvent) error
}

// Dispatcher fans a correlation event out to every action trigger.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
}

// NewDispatcher constructs a Dispatcher. A nil notifier falls back to logging
// deliveries.
func NewDispatcher(notifier Notifier, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = &LogNotifier{Logger: logger}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, logger: logger, timeout: timeout}
}

// Dispatch delivers the event to each action's recipients asynchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.CorrelationEvent, actions []models.ActionTrigger) {
	for _, action := range actions {
		go d.deliver(ctx, action, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, action models.ActionTrigger, event models.CorrelationEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, action, event); err != nil {
		metrics.ObserveDispatchError()
		d.logger.Warn("action delivery failed",
			slog.String("action", string(action.Type)),
			slog.String("rule", event.RuleID),
			slog.Any("error", err))
	}
}

// LogNotifier records deliveries in the log; used when no external recipient
// is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, action models.ActionTrigger, event models.CorrelationEvent) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("dispatching action",
		slog.String("action", string(action.Type)),
		slog.String("rule", event.RuleName),
		slog.Any("recipients", action.Recipients),
		slog.Int("priority", action.Priority))
	return nil
}
