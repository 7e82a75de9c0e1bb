package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/premarket-labs/spreadbot/internal/bus"
	"github.com/premarket-labs/spreadbot/internal/domain"
)

const hyperliquidWSURL = "wss://api.hyperliquid.xyz/ws"

// HyperliquidTicker streams level 2 snapshots for perpetual markets and
// emits top-of-book updates.
type HyperliquidTicker struct {
	bus     *bus.Bus[domain.MarketUpdate]
	symbols []string
	url     string
	logger  *slog.Logger
}

func NewHyperliquidTicker(b *bus.Bus[domain.MarketUpdate], symbols []string, logger *slog.Logger) *HyperliquidTicker {
	formatted := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		formatted = append(formatted, strings.ToUpper(sym))
	}
	return &HyperliquidTicker{
		bus:     b,
		symbols: formatted,
		url:     hyperliquidWSURL,
		logger:  logger.With(slog.String("component", "feed.hyperliquid")),
	}
}

func (h *HyperliquidTicker) Name() string { return "hyperliquid-ticker" }

func (h *HyperliquidTicker) RunOnce(ctx context.Context) error {
	if len(h.symbols) == 0 {
		h.logger.Warn("no symbols configured; idling")
		return sleepCtx(ctx, 5*time.Second)
	}

	conn, err := dialWS(ctx, h.url)
	if err != nil {
		return fmt.Errorf("feed/hyperliquid: connect: %w", err)
	}
	defer conn.Close()

	for _, sym := range h.symbols {
		sub := map[string]any{
			"method":       "subscribe",
			"subscription": map[string]string{"type": "l2", "coin": sym},
		}
		if err := conn.writeJSON(sub); err != nil {
			return fmt.Errorf("feed/hyperliquid: subscribe %s: %w", sym, err)
		}
	}
	h.logger.Info("subscribed", slog.Int("markets", len(h.symbols)))

	for {
		raw, err := conn.readText()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed/hyperliquid: read: %w", err)
		}
		if err := h.handle(ctx, conn, raw); err != nil {
			return err
		}
	}
}

func (h *HyperliquidTicker) handle(ctx context.Context, conn *wsConn, raw []byte) error {
	if string(raw) == "pong" {
		return nil
	}

	var ctrl struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &ctrl); err != nil {
		h.logger.Debug("non-JSON frame", slog.String("raw", string(raw)))
		return nil
	}
	if ctrl.Type == "ping" {
		return conn.writeJSON(map[string]string{"type": "pong"})
	}

	update, ok := parseHyperliquidBook(raw, h.symbols, time.Now().UnixMilli())
	if !ok {
		return nil
	}
	return h.bus.Publish(ctx, update)
}

type hyperliquidLevel struct {
	Px   flexFloat `json:"px"`
	Sz   flexFloat `json:"sz"`
	Side string    `json:"side"`
}

type hyperliquidBookData struct {
	Coin   string             `json:"coin"`
	Symbol string             `json:"symbol"`
	Bids   json.RawMessage    `json:"bids"`
	Asks   json.RawMessage    `json:"asks"`
	Levels []hyperliquidLevel `json:"levels"`
	Time   flexFloat          `json:"time"`
	Ts     flexFloat          `json:"ts"`
	MarkPx flexFloat          `json:"markPx"`
	Mid    flexFloat          `json:"mid"`
}

// parseHyperliquidBook normalizes an l2 snapshot for a subscribed coin.
// Updates for coins outside the subscription set are dropped.
func parseHyperliquidBook(raw []byte, symbols []string, nowMs int64) (domain.MarketUpdate, bool) {
	var env struct {
		Channel string              `json:"channel"`
		Data    hyperliquidBookData `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.MarketUpdate{}, false
	}
	if env.Channel != "l2" && env.Channel != "l2Book" {
		return domain.MarketUpdate{}, false
	}

	coin := env.Data.Coin
	if coin == "" {
		coin = env.Data.Symbol
	}
	coin = strings.ToUpper(coin)
	if coin == "" || !slices.Contains(symbols, coin) {
		return domain.MarketUpdate{}, false
	}

	bid, bidSize := hyperliquidTopOfBook(env.Data.Bids, env.Data.Levels, "BID")
	ask, askSize := hyperliquidTopOfBook(env.Data.Asks, env.Data.Levels, "ASK")

	last := env.Data.MarkPx.ptr()
	if last == nil {
		last = env.Data.Mid.ptr()
	}

	ts := nowMs
	if t := env.Data.Time.ptr(); t != nil {
		ts = int64(*t)
	} else if t := env.Data.Ts.ptr(); t != nil {
		ts = int64(*t)
	}

	return domain.MarketUpdate{
		Token:       coin,
		Venue:       "HYPERLIQUID",
		Instrument:  coin + "PERP",
		Kind:        domain.UpdateBook,
		BestBid:     bid,
		BestAsk:     ask,
		LastPrice:   last,
		Size:        bidSize,
		BidSize:     bidSize,
		AskSize:     askSize,
		Notional:    minNotional(bid, bidSize, ask, askSize),
		TimestampMs: ts,
		Raw:         raw,
	}, true
}

// hyperliquidTopOfBook extracts the first level of one side. Levels arrive
// either as ["px", "sz"] pairs, as {px, sz} objects, or as a flat "levels"
// list tagged with a side key.
func hyperliquidTopOfBook(side json.RawMessage, levels []hyperliquidLevel, want string) (*float64, *float64) {
	if len(side) > 0 {
		var rows []json.RawMessage
		if err := json.Unmarshal(side, &rows); err == nil && len(rows) > 0 {
			first := rows[0]
			var pair []flexFloat
			if err := json.Unmarshal(first, &pair); err == nil && len(pair) >= 2 {
				return pair[0].ptr(), pair[1].ptr()
			}
			var lvl hyperliquidLevel
			if err := json.Unmarshal(first, &lvl); err == nil {
				return lvl.Px.ptr(), lvl.Sz.ptr()
			}
			return nil, nil
		}
	}
	for _, lvl := range levels {
		if strings.EqualFold(lvl.Side, want) {
			return lvl.Px.ptr(), lvl.Sz.ptr()
		}
	}
	return nil, nil
}
