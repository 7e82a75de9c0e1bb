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

const (
	bybitWSURL = "wss://stream.bybit.com/v5/public/linear"

	// bybitPingInterval keeps the stream alive; the server drops idle
	// connections shortly after 20 seconds without a ping.
	bybitPingInterval = 20 * time.Second
)

// formatBybitSymbol normalizes "tnsr/usdt" style input to "TNSRUSDT".
func formatBybitSymbol(symbol string) string {
	s := strings.ReplaceAll(symbol, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ToUpper(s)
}

// BybitTicker streams ticker updates for USDT-margined perpetuals.
type BybitTicker struct {
	bus     *bus.Bus[domain.MarketUpdate]
	symbols []string
	url     string
	logger  *slog.Logger
}

func NewBybitTicker(b *bus.Bus[domain.MarketUpdate], symbols []string, logger *slog.Logger) *BybitTicker {
	formatted := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		formatted = append(formatted, formatBybitSymbol(sym))
	}
	return &BybitTicker{
		bus:     b,
		symbols: formatted,
		url:     bybitWSURL,
		logger:  logger.With(slog.String("component", "feed.bybit")),
	}
}

func (b *BybitTicker) Name() string { return "bybit-ticker" }

func (b *BybitTicker) RunOnce(ctx context.Context) error {
	if len(b.symbols) == 0 {
		b.logger.Warn("no symbols configured; idling")
		return sleepCtx(ctx, 5*time.Second)
	}

	conn, err := dialWS(ctx, b.url)
	if err != nil {
		return fmt.Errorf("feed/bybit: connect: %w", err)
	}
	defer conn.Close()

	args := make([]string, len(b.symbols))
	for i, sym := range b.symbols {
		args[i] = "tickers." + sym
	}
	if err := conn.writeJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return fmt.Errorf("feed/bybit: subscribe: %w", err)
	}
	b.logger.Info("subscribed", slog.Int("tickers", len(args)))

	go func() {
		t := time.NewTicker(bybitPingInterval)
		defer t.Stop()
		for {
			select {
			case <-conn.closed():
				return
			case <-t.C:
				if err := conn.writeJSON(map[string]string{"op": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		raw, err := conn.readText()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed/bybit: read: %w", err)
		}
		if err := b.handle(ctx, conn, raw); err != nil {
			return err
		}
	}
}

func (b *BybitTicker) handle(ctx context.Context, conn *wsConn, raw []byte) error {
	if string(raw) == "pong" {
		return nil
	}

	var ctrl struct {
		Op   string `json:"op"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &ctrl); err != nil {
		b.logger.Debug("non-JSON frame", slog.String("raw", string(raw)))
		return nil
	}
	if ctrl.Op == "ping" {
		return conn.writeJSON(map[string]string{"op": "pong"})
	}
	if ctrl.Type == "COMMAND" || ctrl.Op == "subscribe" || ctrl.Op == "pong" {
		// Command acknowledgement or heartbeat reply.
		return nil
	}

	update, ok := parseBybitTicker(raw, time.Now().UnixMilli())
	if !ok {
		return nil
	}
	return b.bus.Publish(ctx, update)
}

type bybitTickerData struct {
	Bid1Price flexFloat `json:"bid1Price"`
	Ask1Price flexFloat `json:"ask1Price"`
	Bid1Size  flexFloat `json:"bid1Size"`
	Ask1Size  flexFloat `json:"ask1Size"`
	LastPrice flexFloat `json:"lastPrice"`
	Ts        flexFloat `json:"ts"`
}

// parseBybitTicker normalizes a "tickers.<SYMBOL>" payload. The notional hint
// is the thinner of the two top-of-book sides.
func parseBybitTicker(raw []byte, nowMs int64) (domain.MarketUpdate, bool) {
	var env struct {
		Topic string          `json:"topic"`
		Data  bybitTickerData `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.MarketUpdate{}, false
	}
	if !strings.HasPrefix(env.Topic, "tickers.") {
		return domain.MarketUpdate{}, false
	}
	symbol := strings.TrimPrefix(env.Topic, "tickers.")
	token := strings.TrimSuffix(symbol, "USDT")

	bid := env.Data.Bid1Price.ptr()
	ask := env.Data.Ask1Price.ptr()
	bidSize := env.Data.Bid1Size.ptr()
	askSize := env.Data.Ask1Size.ptr()

	ts := nowMs
	if t := env.Data.Ts.ptr(); t != nil {
		ts = int64(*t)
	}

	return domain.MarketUpdate{
		Token:       token,
		Venue:       "BYBIT",
		Instrument:  symbol + "PERP",
		Kind:        domain.UpdateBook,
		BestBid:     bid,
		BestAsk:     ask,
		LastPrice:   env.Data.LastPrice.ptr(),
		Size:        bidSize,
		BidSize:     bidSize,
		AskSize:     askSize,
		Notional:    minNotional(bid, bidSize, ask, askSize),
		TimestampMs: ts,
		Raw:         raw,
	}, true
}
