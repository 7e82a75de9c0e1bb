package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/premarket-labs/spreadbot/internal/bus"
	"github.com/premarket-labs/spreadbot/internal/domain"
)

// whalesEventKinds maps Socket.IO event names onto update kinds. Frames with
// any other event name are dropped.
var whalesEventKinds = map[string]domain.UpdateKind{
	"orderbook": domain.UpdateBook,
	"listing":   domain.UpdateListing,
	"trade":     domain.UpdateTrade,
}

// WhalesMarket consumes the pre-market Socket.IO stream directly over a
// websocket, answering the Engine.IO handshake and heartbeat frames itself.
// An optional token allow-list restricts what gets published.
type WhalesMarket struct {
	bus    *bus.Bus[domain.MarketUpdate]
	url    string
	tokens map[string]struct{}
	logger *slog.Logger
}

func NewWhalesMarket(b *bus.Bus[domain.MarketUpdate], url string, tokens []string, logger *slog.Logger) *WhalesMarket {
	var allow map[string]struct{}
	if len(tokens) > 0 {
		allow = make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			allow[strings.ToUpper(t)] = struct{}{}
		}
	}
	return &WhalesMarket{
		bus:    b,
		url:    url,
		tokens: allow,
		logger: logger.With(slog.String("component", "feed.whales")),
	}
}

func (w *WhalesMarket) Name() string { return "whales-market" }

func (w *WhalesMarket) RunOnce(ctx context.Context) error {
	conn, err := dialWS(ctx, w.url)
	if err != nil {
		return fmt.Errorf("feed/whales: connect: %w", err)
	}
	defer conn.Close()

	for {
		raw, err := conn.readText()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed/whales: read: %w", err)
		}
		if err := w.handle(ctx, conn, string(raw)); err != nil {
			return err
		}
	}
}

func (w *WhalesMarket) handle(ctx context.Context, conn *wsConn, frame string) error {
	// Engine.IO control frames: "0" opens the session and expects the
	// namespace connect "40" back, "2" is a ping answered with "3".
	switch {
	case strings.HasPrefix(frame, "0"):
		return conn.writeText("40")
	case frame == "2":
		return conn.writeText("3")
	}

	event, data, ok := parseSocketIOFrame(frame)
	if !ok {
		return nil
	}
	kind, ok := whalesEventKinds[event]
	if !ok {
		w.logger.Debug("unhandled event", slog.String("event", event))
		return nil
	}

	for _, u := range normalizeWhalesEvent(kind, data, time.Now().UnixMilli()) {
		if w.tokens != nil {
			if _, ok := w.tokens[u.Token]; !ok {
				continue
			}
		}
		if err := w.bus.Publish(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// parseSocketIOFrame splits a Socket.IO text frame into its event name and
// payload. Only "42" event frames carry data.
func parseSocketIOFrame(frame string) (string, json.RawMessage, bool) {
	if !strings.HasPrefix(frame, "42") {
		return "", nil, false
	}
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(frame[2:]), &parts); err != nil {
		return "", nil, false
	}
	if len(parts) == 0 {
		return "", nil, false
	}
	var event string
	if err := json.Unmarshal(parts[0], &event); err != nil {
		return "", nil, false
	}
	var data json.RawMessage
	if len(parts) > 1 {
		data = parts[1]
	}
	return event, data, true
}

type whalesPayload struct {
	Token  string `json:"token"`
	Symbol string `json:"symbol"`
	Ticker string `json:"ticker"`
	Pair   string `json:"pair"`

	BestBid      flexFloat `json:"bestBid"`
	BestBidSnake flexFloat `json:"best_bid"`
	BestAsk      flexFloat `json:"bestAsk"`
	BestAskSnake flexFloat `json:"best_ask"`

	Size     flexFloat `json:"size"`
	Amount   flexFloat `json:"amount"`
	Quantity flexFloat `json:"quantity"`

	Price     flexFloat `json:"price"`
	LastPrice flexFloat `json:"last_price"`
	Mid       flexFloat `json:"mid"`
}

// normalizeWhalesEvent converts an event payload, which may be a single
// object or a batch, into market updates. Entries without a recognizable
// token are dropped.
func normalizeWhalesEvent(kind domain.UpdateKind, data json.RawMessage, nowMs int64) []domain.MarketUpdate {
	if len(data) == 0 {
		return nil
	}

	var items []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil
		}
	} else {
		items = []json.RawMessage{data}
	}

	var updates []domain.MarketUpdate
	for _, item := range items {
		var p whalesPayload
		if err := json.Unmarshal(item, &p); err != nil {
			continue
		}
		token := firstNonEmpty(p.Token, p.Symbol, p.Ticker)
		if token == "" {
			continue
		}
		token = strings.ToUpper(token)

		instrument := p.Pair
		if instrument == "" {
			instrument = token + "_USDT"
		}

		price := coalesceFloat(p.Price.ptr(), p.LastPrice.ptr(), p.Mid.ptr())
		size := coalesceFloat(p.Size.ptr(), p.Amount.ptr(), p.Quantity.ptr())
		var notional *float64
		if price != nil && size != nil {
			n := *price * *size
			notional = &n
		}

		updates = append(updates, domain.MarketUpdate{
			Token:       token,
			Venue:       "WHALES",
			Instrument:  instrument,
			Kind:        kind,
			BestBid:     coalesceFloat(p.BestBid.ptr(), p.BestBidSnake.ptr()),
			BestAsk:     coalesceFloat(p.BestAsk.ptr(), p.BestAskSnake.ptr()),
			LastPrice:   price,
			Size:        size,
			Notional:    notional,
			TimestampMs: nowMs,
			Raw:         item,
		})
	}
	return updates
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func coalesceFloat(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
