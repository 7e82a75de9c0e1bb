package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/premarket-labs/spreadbot/internal/domain"
)

// RedisSink publishes alerts as JSON envelopes on a Redis Pub/Sub channel so
// external consumers (dashboards, downstream bots) can react without being
// wired into the process.
type RedisSink struct {
	rdb     *redis.Client
	channel string
}

// alertEnvelope is the wire shape published to Redis. Kind discriminates the
// variant; the variant struct is embedded whole under its own key.
type alertEnvelope struct {
	Kind   string                    `json:"kind"`
	Core   domain.AlertCore          `json:"core"`
	Trade  domain.TradeView          `json:"trade"`
	Spread *domain.SpreadAlert       `json:"spread,omitempty"`
	Hedged *domain.HedgedSpreadAlert `json:"hedged,omitempty"`
}

// NewRedisSink creates a sink publishing to channel on the given client.
func NewRedisSink(rdb *redis.Client, channel string) *RedisSink {
	return &RedisSink{rdb: rdb, channel: channel}
}

// Deliver marshals the alert and publishes it. Subscriber count is not
// checked: zero listeners is fine for pub/sub.
func (r *RedisSink) Deliver(ctx context.Context, alert domain.Alert, _ map[string]string) error {
	env := alertEnvelope{
		Kind:  alert.Kind(),
		Core:  alert.Core(),
		Trade: alert.TradeView(),
	}
	switch a := alert.(type) {
	case domain.SpreadAlert:
		env.Spread = &a
	case domain.HedgedSpreadAlert:
		env.Hedged = &a
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis sink: marshal alert: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis sink: publish %s: %w", r.channel, err)
	}
	return nil
}

var _ domain.AlertSink = (*RedisSink)(nil)
