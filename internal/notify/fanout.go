// Package notify contains the alert sinks: delivery channels that receive
// finished alerts from the rule engines. Sinks are synchronous from the
// engine's point of view; Deliver returns once the alert is handed off.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/premarket-labs/spreadbot/internal/domain"
)

// Fanout dispatches each alert to every configured sink in order. A failing
// sink does not prevent delivery to the remaining ones; failures are
// collected into a combined error.
type Fanout struct {
	sinks  []domain.AlertSink
	logger *slog.Logger
}

// NewFanout creates a Fanout over the given sinks.
func NewFanout(sinks []domain.AlertSink, logger *slog.Logger) *Fanout {
	return &Fanout{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "alert_fanout")),
	}
}

// Deliver hands the alert to each sink in turn.
func (f *Fanout) Deliver(ctx context.Context, alert domain.Alert, links map[string]string) error {
	var errs []string
	for _, sink := range f.sinks {
		if err := sink.Deliver(ctx, alert, links); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.ErrorContext(ctx, "sink failed",
				slog.String("token", alert.Core().Token),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sink(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

var _ domain.AlertSink = (*Fanout)(nil)
