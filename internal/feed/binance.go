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

const binanceWSURL = "wss://fstream.binance.com/ws"

// formatBinanceSymbol normalizes "tnsr/usdt" style input to "tnsrusdt",
// the lower-case form the stream names require.
func formatBinanceSymbol(symbol string) string {
	s := strings.ReplaceAll(symbol, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ToLower(s)
}

// BinanceFuturesTicker streams bookTicker updates for USDT-margined
// perpetuals from the futures websocket.
type BinanceFuturesTicker struct {
	bus     *bus.Bus[domain.MarketUpdate]
	symbols []string
	url     string
	logger  *slog.Logger
}

func NewBinanceFuturesTicker(b *bus.Bus[domain.MarketUpdate], symbols []string, logger *slog.Logger) *BinanceFuturesTicker {
	formatted := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		formatted = append(formatted, formatBinanceSymbol(sym))
	}
	return &BinanceFuturesTicker{
		bus:     b,
		symbols: formatted,
		url:     binanceWSURL,
		logger:  logger.With(slog.String("component", "feed.binance")),
	}
}

func (b *BinanceFuturesTicker) Name() string { return "binance-futures" }

func (b *BinanceFuturesTicker) RunOnce(ctx context.Context) error {
	if len(b.symbols) == 0 {
		b.logger.Warn("no symbols configured; idling")
		return sleepCtx(ctx, 5*time.Second)
	}

	conn, err := dialWS(ctx, b.url)
	if err != nil {
		return fmt.Errorf("feed/binance: connect: %w", err)
	}
	defer conn.Close()

	params := make([]string, len(b.symbols))
	for i, sym := range b.symbols {
		params[i] = sym + "@bookTicker"
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().Unix(),
	}
	if err := conn.writeJSON(sub); err != nil {
		return fmt.Errorf("feed/binance: subscribe: %w", err)
	}
	b.logger.Info("subscribed", slog.Int("streams", len(params)))

	for {
		raw, err := conn.readText()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed/binance: read: %w", err)
		}
		if err := b.handle(ctx, raw); err != nil {
			return err
		}
	}
}

func (b *BinanceFuturesTicker) handle(ctx context.Context, raw []byte) error {
	if strings.EqualFold(string(raw), "pong") {
		return nil
	}
	update, ok := parseBinanceBookTicker(raw, time.Now().UnixMilli())
	if !ok {
		return nil
	}
	return b.bus.Publish(ctx, update)
}

type binanceBookTicker struct {
	Event     string    `json:"e"`
	Symbol    string    `json:"s"`
	Bid       flexFloat `json:"b"`
	Ask       flexFloat `json:"a"`
	BidQty    flexFloat `json:"B"`
	AskQty    flexFloat `json:"A"`
	Last      flexFloat `json:"p"`
	TradeTime flexFloat `json:"T"`
	EventTime flexFloat `json:"E"`
}

// parseBinanceBookTicker normalizes a bookTicker payload, which arrives flat
// on raw streams and nested under "data" on combined streams. Subscription
// acknowledgements carry a "result" key alongside the request id.
func parseBinanceBookTicker(raw []byte, nowMs int64) (domain.MarketUpdate, bool) {
	var probe struct {
		Result json.RawMessage `json:"result"`
		ID     *int64          `json:"id"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.MarketUpdate{}, false
	}
	if len(probe.Result) > 0 && probe.ID != nil {
		return domain.MarketUpdate{}, false
	}

	body := raw
	if len(probe.Data) > 0 && probe.Data[0] == '{' {
		body = probe.Data
	}
	var data binanceBookTicker
	if err := json.Unmarshal(body, &data); err != nil {
		return domain.MarketUpdate{}, false
	}
	if data.Event != "" && data.Event != "bookTicker" {
		return domain.MarketUpdate{}, false
	}
	if data.Symbol == "" {
		return domain.MarketUpdate{}, false
	}

	symbol := data.Symbol
	token := strings.TrimSuffix(symbol, "USDT")

	bid := data.Bid.ptr()
	ask := data.Ask.ptr()
	bidSize := data.BidQty.ptr()
	askSize := data.AskQty.ptr()

	ts := nowMs
	if t := data.TradeTime.ptr(); t != nil {
		ts = int64(*t)
	} else if t := data.EventTime.ptr(); t != nil {
		ts = int64(*t)
	}

	return domain.MarketUpdate{
		Token:       token,
		Venue:       "BINANCE",
		Instrument:  symbol + "PERP",
		Kind:        domain.UpdateBook,
		BestBid:     bid,
		BestAsk:     ask,
		LastPrice:   data.Last.ptr(),
		Size:        bidSize,
		BidSize:     bidSize,
		AskSize:     askSize,
		Notional:    minNotional(bid, bidSize, ask, askSize),
		TimestampMs: ts,
		Raw:         raw,
	}, true
}
