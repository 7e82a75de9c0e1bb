package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/premarket-labs/spreadbot/internal/bus"
	"github.com/premarket-labs/spreadbot/internal/domain"
)

const (
	mexcWSURL       = "wss://wbs.mexc.com/raw/ws"
	mexcBookChannel = "spot@public.bookTicker.v3.api@%s"
	mexcListingURL  = "https://www.mexc.com/open/api/v2/market/coin/list"
)

// formatMexcSymbol normalizes "tnsr/usdt" style input to "TNSR_USDT".
func formatMexcSymbol(symbol string) string {
	s := strings.ReplaceAll(symbol, "/", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToUpper(s)
}

// MexcBookTicker streams top-of-book updates for a set of spot symbols from
// the public MEXC bookTicker channel.
type MexcBookTicker struct {
	bus     *bus.Bus[domain.MarketUpdate]
	symbols []string
	url     string
	logger  *slog.Logger
}

func NewMexcBookTicker(b *bus.Bus[domain.MarketUpdate], symbols []string, logger *slog.Logger) *MexcBookTicker {
	formatted := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		formatted = append(formatted, formatMexcSymbol(sym))
	}
	return &MexcBookTicker{
		bus:     b,
		symbols: formatted,
		url:     mexcWSURL,
		logger:  logger.With(slog.String("component", "feed.mexc")),
	}
}

func (m *MexcBookTicker) Name() string { return "mexc-book" }

func (m *MexcBookTicker) RunOnce(ctx context.Context) error {
	if len(m.symbols) == 0 {
		m.logger.Warn("no symbols configured; idling")
		return sleepCtx(ctx, 5*time.Second)
	}

	conn, err := dialWS(ctx, m.url)
	if err != nil {
		return fmt.Errorf("feed/mexc: connect: %w", err)
	}
	defer conn.Close()

	params := make([]string, len(m.symbols))
	for i, sym := range m.symbols {
		params[i] = fmt.Sprintf(mexcBookChannel, sym)
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().Unix(),
	}
	if err := conn.writeJSON(sub); err != nil {
		return fmt.Errorf("feed/mexc: subscribe: %w", err)
	}
	m.logger.Info("subscribed", slog.Int("channels", len(params)))

	for {
		raw, err := conn.readText()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed/mexc: read: %w", err)
		}
		if err := m.handle(ctx, conn, raw); err != nil {
			return err
		}
	}
}

func (m *MexcBookTicker) handle(ctx context.Context, conn *wsConn, raw []byte) error {
	switch string(raw) {
	case "pong":
		return nil
	case "ping":
		return conn.writeText("pong")
	}

	var ctrl struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &ctrl); err != nil {
		m.logger.Debug("non-JSON frame", slog.String("raw", string(raw)))
		return nil
	}
	if ctrl.Method == "PING" {
		return conn.writeJSON(map[string]any{"method": "PONG", "params": ctrl.Params})
	}
	if len(ctrl.Result) > 0 {
		// Subscription acknowledgement.
		return nil
	}

	update, ok := parseMexcBook(raw, time.Now().UnixMilli())
	if !ok {
		return nil
	}
	return m.bus.Publish(ctx, update)
}

type mexcBookData struct {
	Bid  flexFloat `json:"b"`
	Ask  flexFloat `json:"a"`
	Last flexFloat `json:"bp"`
	Size flexFloat `json:"B"`
	Ts   flexFloat `json:"t"`
}

// parseMexcBook normalizes a bookTicker payload. The channel carries the
// venue symbol as its last "@"-separated segment, and the token is the
// symbol's base leg.
func parseMexcBook(raw []byte, nowMs int64) (domain.MarketUpdate, bool) {
	var env struct {
		Channel string        `json:"c"`
		Data    *mexcBookData `json:"d"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.MarketUpdate{}, false
	}
	if env.Channel == "" || env.Data == nil {
		return domain.MarketUpdate{}, false
	}

	parts := strings.Split(env.Channel, "@")
	if len(parts) < 3 {
		return domain.MarketUpdate{}, false
	}
	symbol := parts[len(parts)-1]
	token := strings.SplitN(symbol, "_", 2)[0]

	ts := nowMs
	if t := env.Data.Ts.ptr(); t != nil {
		ts = int64(*t)
	}

	return domain.MarketUpdate{
		Token:       token,
		Venue:       "MEXC",
		Instrument:  symbol,
		Kind:        domain.UpdateBook,
		BestBid:     env.Data.Bid.ptr(),
		BestAsk:     env.Data.Ask.ptr(),
		LastPrice:   env.Data.Last.ptr(),
		Size:        env.Data.Size.ptr(),
		TimestampMs: ts,
		Raw:         raw,
	}, true
}

// MexcListingPoller polls the public coin list and emits a listing update the
// first time a symbol is seen in the ENABLED state.
type MexcListingPoller struct {
	bus      *bus.Bus[domain.MarketUpdate]
	interval time.Duration
	client   *http.Client
	url      string
	logger   *slog.Logger
	seen     map[string]struct{}
}

func NewMexcListingPoller(b *bus.Bus[domain.MarketUpdate], interval time.Duration, logger *slog.Logger) *MexcListingPoller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MexcListingPoller{
		bus:      b,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		url:      mexcListingURL,
		logger:   logger.With(slog.String("component", "feed.mexc_listings")),
		seen:     make(map[string]struct{}),
	}
}

func (p *MexcListingPoller) Name() string { return "mexc-listings" }

func (p *MexcListingPoller) RunOnce(ctx context.Context) error {
	for {
		if err := p.poll(ctx); err != nil {
			return err
		}
		if err := sleepCtx(ctx, p.interval); err != nil {
			return err
		}
	}
}

func (p *MexcListingPoller) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("feed/mexc: listings request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("feed/mexc: listings fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed/mexc: listings fetch: status %d", resp.StatusCode)
	}

	var body struct {
		Data []mexcCoin `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("feed/mexc: listings decode: %w", err)
	}

	updates := normalizeMexcListings(body.Data, p.seen, time.Now().UnixMilli())
	for _, u := range updates {
		if err := p.bus.Publish(ctx, u); err != nil {
			return err
		}
	}
	if len(updates) > 0 {
		p.logger.Info("new listings", slog.Int("count", len(updates)))
	}
	return nil
}

type mexcCoin struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	State    string `json:"state"`
	Status   string `json:"status"`
}

// normalizeMexcListings emits one listing update per newly-seen ENABLED
// symbol. Every (symbol, state) pair is recorded in seen so state flips are
// reported once each.
func normalizeMexcListings(coins []mexcCoin, seen map[string]struct{}, nowMs int64) []domain.MarketUpdate {
	var updates []domain.MarketUpdate
	for _, coin := range coins {
		symbol := coin.Symbol
		if symbol == "" {
			symbol = coin.Currency
		}
		if symbol == "" {
			continue
		}
		state := coin.State
		if state == "" {
			state = coin.Status
		}
		key := symbol + ":" + state
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if !strings.EqualFold(state, "ENABLED") {
			continue
		}
		raw, _ := json.Marshal(coin)
		updates = append(updates, domain.MarketUpdate{
			Token:       strings.SplitN(symbol, "_", 2)[0],
			Venue:       "MEXC",
			Instrument:  symbol,
			Kind:        domain.UpdateListing,
			TimestampMs: nowMs,
			Raw:         raw,
		})
	}
	return updates
}
