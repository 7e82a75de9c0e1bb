package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/premarket-labs/spreadbot/internal/domain"
)

// recentPerToken bounds the per-token alert history kept in memory.
const recentPerToken = 5

// Recorder keeps a small in-memory window of recent alerts per token for the
// status endpoint. It is itself a sink so it plugs into the same fan-out as
// the delivery channels.
type Recorder struct {
	mu          sync.Mutex
	recent      map[string][]domain.Alert
	lastAlertAt time.Time
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{recent: make(map[string][]domain.Alert)}
}

// Deliver records the alert. It never fails.
func (r *Recorder) Deliver(_ context.Context, alert domain.Alert, _ map[string]string) error {
	core := alert.Core()
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := append(r.recent[core.Token], alert)
	if len(bucket) > recentPerToken {
		bucket = bucket[len(bucket)-recentPerToken:]
	}
	r.recent[core.Token] = bucket
	r.lastAlertAt = time.UnixMilli(core.UpdatedAtMs).UTC()
	return nil
}

// Tokens returns the tokens with recorded alerts, sorted.
func (r *Recorder) Tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := make([]string, 0, len(r.recent))
	for token := range r.recent {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// Recent returns up to recentPerToken most recent alerts for token, newest
// first.
func (r *Recorder) Recent(token string) []domain.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket := r.recent[token]
	out := make([]domain.Alert, 0, len(bucket))
	for i := len(bucket) - 1; i >= 0; i-- {
		out = append(out, bucket[i])
	}
	return out
}

// LastAlertAt returns the timestamp of the newest recorded alert, zero if
// none.
func (r *Recorder) LastAlertAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAlertAt
}

var _ domain.AlertSink = (*Recorder)(nil)

// LogSink writes alerts to the process log. It is the default sink when no
// delivery channel is configured, so detected opportunities are never
// invisible.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "log_sink"))}
}

// Deliver logs the alert at info level.
func (l *LogSink) Deliver(ctx context.Context, alert domain.Alert, _ map[string]string) error {
	core := alert.Core()
	trade := alert.TradeView()
	l.logger.InfoContext(ctx, "alert",
		slog.String("kind", alert.Kind()),
		slog.String("token", core.Token),
		slog.String("buy", trade.BuyLabel),
		slog.String("sell", trade.SellLabel),
		slog.Float64("gross_percent", core.GrossSpreadPercent),
		slog.Float64("net_percent", core.NetSpreadPercent),
		slog.Float64("reference_notional", core.ReferenceNotional),
	)
	return nil
}

var _ domain.AlertSink = (*LogSink)(nil)
