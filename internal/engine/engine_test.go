package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/premarket-labs/spreadbot/internal/bus"
	"github.com/premarket-labs/spreadbot/internal/domain"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (s *captureSink) Deliver(_ context.Context, alert domain.Alert, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *captureSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bookUpdate(token, venue string, ts int64) domain.MarketUpdate {
	return domain.MarketUpdate{Token: token, Venue: venue, Kind: domain.UpdateBook, TimestampMs: ts}
}

func newDirectEngine(t *testing.T, sink domain.AlertSink, th Thresholds, pairs ...VenuePair) *Engine {
	t.Helper()
	b := bus.New[domain.MarketUpdate]()
	return New("spread", b, sink, nil, th, DirectPairs(pairs), testLogger())
}

func TestDirectSpreadScenario(t *testing.T) {
	sink := &captureSink{}
	e := newDirectEngine(t, sink, Thresholds{
		MinSpreadPercent: 0.5,
		MinNotionalUSDT:  50,
		DebounceWindow:   30 * time.Second,
		SlippageBps:      5,
		FeeBps:           map[string]float64{"MEXC": 10, "WHALES": 20},
	}, VenuePair{A: "MEXC", B: "WHALES"})

	ctx := context.Background()
	mexc := bookUpdate("ABC", "MEXC", 1)
	mexc.BestBid = domain.Float(0.99)
	mexc.BestAsk = domain.Float(1.00)
	mexc.Notional = domain.Float(150)
	if err := e.Handle(ctx, mexc); err != nil {
		t.Fatalf("handle: %v", err)
	}

	whales := bookUpdate("ABC", "WHALES", 2)
	whales.BestBid = domain.Float(1.05)
	whales.BestAsk = domain.Float(1.06)
	whales.Notional = domain.Float(200)
	if err := e.Handle(ctx, whales); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sink.alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(sink.alerts))
	}
	alert, ok := sink.alerts[0].(domain.SpreadAlert)
	if !ok {
		t.Fatalf("expected SpreadAlert, got %T", sink.alerts[0])
	}
	if alert.BuyVenue != "MEXC" || alert.SellVenue != "WHALES" {
		t.Fatalf("wrong direction: buy=%s sell=%s", alert.BuyVenue, alert.SellVenue)
	}
	if got := alert.GrossSpreadPercent; !close2(got, 5.00) {
		t.Fatalf("gross = %v, want 5.00", got)
	}
	// net = 5.00 - (10+20+5)/100 = 4.65
	if got := alert.NetSpreadPercent; !close2(got, 4.65) {
		t.Fatalf("net = %v, want 4.65", got)
	}
	if alert.ReferenceNotional != 150 {
		t.Fatalf("reference notional = %v, want 150", alert.ReferenceNotional)
	}
	if alert.UpdatedAtMs != 2 {
		t.Fatalf("updated at = %d, want newest quote timestamp 2", alert.UpdatedAtMs)
	}
	if alert.ID == "" {
		t.Fatalf("alert should carry an ID")
	}
}

func close2(got, want float64) bool {
	diff := got - want
	return diff < 1e-9 && diff > -1e-9
}

func TestNoAlertWithoutNotional(t *testing.T) {
	sink := &captureSink{}
	e := newDirectEngine(t, sink, Thresholds{MinSpreadPercent: 0.1, MinNotionalUSDT: 10},
		VenuePair{A: "MEXC", B: "WHALES"})

	ctx := context.Background()
	mexc := bookUpdate("XYZ", "MEXC", 1)
	mexc.BestBid = domain.Float(0.5)
	mexc.BestAsk = domain.Float(0.5)
	if err := e.Handle(ctx, mexc); err != nil {
		t.Fatalf("handle: %v", err)
	}
	whales := bookUpdate("XYZ", "WHALES", 2)
	whales.BestBid = domain.Float(0.6)
	whales.BestAsk = domain.Float(0.61)
	if err := e.Handle(ctx, whales); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sink.alerts) != 0 {
		t.Fatalf("huge spread with unknown notional must not alert, got %d", len(sink.alerts))
	}
}

func TestNotionalBelowMinimumRejected(t *testing.T) {
	sink := &captureSink{}
	e := newDirectEngine(t, sink, Thresholds{MinNotionalUSDT: 500},
		VenuePair{A: "MEXC", B: "WHALES"})

	ctx := context.Background()
	mexc := bookUpdate("T", "MEXC", 1)
	mexc.BestAsk = domain.Float(1.0)
	mexc.Notional = domain.Float(100)
	_ = e.Handle(ctx, mexc)
	whales := bookUpdate("T", "WHALES", 2)
	whales.BestBid = domain.Float(1.5)
	whales.Notional = domain.Float(1000)
	_ = e.Handle(ctx, whales)

	if len(sink.alerts) != 0 {
		t.Fatalf("min-side notional below the floor must reject, got %d alerts", len(sink.alerts))
	}
}

func TestNonBookUpdatesIgnored(t *testing.T) {
	sink := &captureSink{}
	e := newDirectEngine(t, sink, Thresholds{}, VenuePair{A: "A", B: "B"})

	u := bookUpdate("T", "A", 1)
	u.Kind = domain.UpdateListing
	u.BestBid = domain.Float(1)
	u.BestAsk = domain.Float(1)
	if err := e.Handle(context.Background(), u); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(e.quotes) != 0 {
		t.Fatalf("listing update must not touch the quote cache")
	}
}

func TestNonPositiveAskSkipped(t *testing.T) {
	sink := &captureSink{}
	e := newDirectEngine(t, sink, Thresholds{}, VenuePair{A: "A", B: "B"})

	ctx := context.Background()
	a := bookUpdate("T", "A", 1)
	a.BestAsk = domain.Float(0)
	a.Notional = domain.Float(100)
	_ = e.Handle(ctx, a)
	b := bookUpdate("T", "B", 2)
	b.BestBid = domain.Float(1.0)
	b.Notional = domain.Float(100)
	_ = e.Handle(ctx, b)

	if len(sink.alerts) != 0 {
		t.Fatalf("zero ask must never divide, got %d alerts", len(sink.alerts))
	}
}

func TestDebounceSuppressesWithoutImprovement(t *testing.T) {
	sink := &captureSink{}
	e := newDirectEngine(t, sink, Thresholds{
		MinSpreadPercent:      0.1,
		MinNotionalUSDT:       10,
		MinImprovementPercent: 0.2,
		DebounceWindow:        60 * time.Second,
	}, VenuePair{A: "MEXC", B: "WHALES"})

	clock := time.Unix(1000, 0)
	e.now = func() time.Time { return clock }

	ctx := context.Background()
	emit := func(ask, bid float64, ts int64) {
		a := bookUpdate("DEF", "MEXC", ts)
		a.BestAsk = domain.Float(ask)
		a.BestBid = domain.Float(ask)
		a.Notional = domain.Float(100)
		if err := e.Handle(ctx, a); err != nil {
			t.Fatalf("handle: %v", err)
		}
		b := bookUpdate("DEF", "WHALES", ts+1)
		b.BestBid = domain.Float(bid)
		b.Notional = domain.Float(90)
		if err := e.Handle(ctx, b); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	emit(1.00, 1.20, 1) // first alert: net 20%
	if len(sink.alerts) != 1 {
		t.Fatalf("expected first alert, got %d", len(sink.alerts))
	}

	// Seconds later, slightly better but within min improvement: suppressed.
	clock = clock.Add(5 * time.Second)
	emit(0.999, 1.20, 3) // net ~20.12%, improvement 0.12 <= 0.2
	if len(sink.alerts) != 1 {
		t.Fatalf("expected debounce to collapse the repeat, got %d", len(sink.alerts))
	}

	// Improvement strictly above the threshold passes inside the window.
	clock = clock.Add(5 * time.Second)
	emit(1.00, 1.21, 5) // net 21%, improvement 1.0 > 0.2
	if len(sink.alerts) != 2 {
		t.Fatalf("expected improved alert to pass, got %d", len(sink.alerts))
	}

	// After the window, zero improvement fires unconditionally.
	clock = clock.Add(61 * time.Second)
	emit(1.00, 1.21, 7)
	if len(sink.alerts) != 3 {
		t.Fatalf("expected post-window alert, got %d", len(sink.alerts))
	}
}

func TestStickyQuoteDrivesLaterEvaluation(t *testing.T) {
	sink := &captureSink{}
	e := newDirectEngine(t, sink, Thresholds{MinNotionalUSDT: 10},
		VenuePair{A: "MEXC", B: "WHALES"})

	ctx := context.Background()
	first := bookUpdate("GHI", "MEXC", 1)
	first.BestAsk = domain.Float(1.00)
	first.Notional = domain.Float(100)
	_ = e.Handle(ctx, first)

	// Bid-only partial update must not erase the cached ask.
	partial := bookUpdate("GHI", "MEXC", 2)
	partial.BestBid = domain.Float(0.98)
	_ = e.Handle(ctx, partial)

	other := bookUpdate("GHI", "WHALES", 3)
	other.BestBid = domain.Float(1.10)
	other.Notional = domain.Float(100)
	_ = e.Handle(ctx, other)

	if len(sink.alerts) != 1 {
		t.Fatalf("expected alert built from sticky ask, got %d", len(sink.alerts))
	}
	if got := sink.alerts[0].TradeView().BuyPrice; got != 1.00 {
		t.Fatalf("buy price = %v, want sticky 1.00", got)
	}
}

func TestHedgedScenario(t *testing.T) {
	sink := &captureSink{}
	b := bus.New[domain.MarketUpdate]()
	e := New("hedged", b, sink, nil, Thresholds{
		MinSpreadPercent: 1.0,
		MinNotionalUSDT:  50,
		DebounceWindow:   30 * time.Second,
		SlippageBps:      5,
		FeeBps:           map[string]float64{"WHALES": 20, "BYBIT": 10},
	}, HedgedPairs([]HedgedPair{{Order: "WHALES", Perp: "BYBIT"}}), testLogger())

	ctx := context.Background()
	order := bookUpdate("TNSR", "WHALES", 10)
	order.BestAsk = domain.Float(1.10)
	order.AskSize = domain.Float(100)
	if err := e.Handle(ctx, order); err != nil {
		t.Fatalf("handle: %v", err)
	}
	perp := bookUpdate("TNSR", "BYBIT", 20)
	perp.BestBid = domain.Float(1.25)
	perp.BidSize = domain.Float(120)
	if err := e.Handle(ctx, perp); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sink.alerts) != 1 {
		t.Fatalf("expected exactly the order-buy direction, got %d", len(sink.alerts))
	}
	alert, ok := sink.alerts[0].(domain.HedgedSpreadAlert)
	if !ok {
		t.Fatalf("expected HedgedSpreadAlert, got %T", sink.alerts[0])
	}
	if alert.Direction != domain.DirectionOrderBuyPerpSell {
		t.Fatalf("direction = %s", alert.Direction)
	}
	wantGross := (1.25 - 1.10) / 1.10 * 100
	if !close2(alert.GrossSpreadPercent, wantGross) {
		t.Fatalf("gross = %v, want %v", alert.GrossSpreadPercent, wantGross)
	}
	if !close2(alert.NetSpreadPercent, wantGross-0.35) {
		t.Fatalf("net = %v, want gross - 0.35", alert.NetSpreadPercent)
	}
	// Order leg notional 1.10*100=110, perp leg 1.25*120=150.
	if !close2(alert.ReferenceNotional, 110) {
		t.Fatalf("reference notional = %v, want 110", alert.ReferenceNotional)
	}
	if alert.OrderPrice != 1.10 || alert.PerpPrice != 1.25 {
		t.Fatalf("leg prices wrong: order=%v perp=%v", alert.OrderPrice, alert.PerpPrice)
	}
	if alert.UpdatedAtMs != 20 {
		t.Fatalf("updated at = %d", alert.UpdatedAtMs)
	}
}

func TestHedgedDirectionsDebouncedIndependently(t *testing.T) {
	sink := &captureSink{}
	b := bus.New[domain.MarketUpdate]()
	e := New("hedged", b, sink, nil, Thresholds{
		MinSpreadPercent: 0.1,
		MinNotionalUSDT:  1,
		DebounceWindow:   time.Hour,
	}, HedgedPairs([]HedgedPair{{Order: "WHALES", Perp: "BYBIT"}}), testLogger())

	ctx := context.Background()
	// Crossed both ways: order ask < perp bid and perp ask < order bid cannot
	// both hold at once in a sane market, so move quotes between steps.
	order := bookUpdate("T", "WHALES", 1)
	order.BestAsk = domain.Float(1.00)
	order.BestBid = domain.Float(0.99)
	order.Notional = domain.Float(100)
	_ = e.Handle(ctx, order)

	perp := bookUpdate("T", "BYBIT", 2)
	perp.BestBid = domain.Float(1.10)
	perp.BestAsk = domain.Float(1.11)
	perp.Notional = domain.Float(100)
	_ = e.Handle(ctx, perp)

	if len(sink.alerts) != 1 {
		t.Fatalf("expected order-buy alert, got %d", len(sink.alerts))
	}

	// Now flip the book so the opposite direction becomes profitable. The
	// first direction's debounce entry must not gate this one.
	flip := bookUpdate("T", "BYBIT", 3)
	flip.BestBid = domain.Float(0.80)
	flip.BestAsk = domain.Float(0.81)
	_ = e.Handle(ctx, flip)

	if len(sink.alerts) != 2 {
		t.Fatalf("expected independent perp-buy alert, got %d", len(sink.alerts))
	}
	second := sink.alerts[1].(domain.HedgedSpreadAlert)
	if second.Direction != domain.DirectionPerpBuyOrderSell {
		t.Fatalf("direction = %s", second.Direction)
	}
	// perp-buy leg prices: order side sells at its bid, perp side buys at its ask.
	if second.OrderPrice != 0.99 || second.PerpPrice != 0.81 {
		t.Fatalf("leg prices wrong: order=%v perp=%v", second.OrderPrice, second.PerpPrice)
	}
}

func TestUnknownVenueFeeDefaultsToZero(t *testing.T) {
	th := Thresholds{SlippageBps: 5, FeeBps: map[string]float64{"MEXC": 10}}
	if got := th.TotalCostPercent("MEXC", "UNKNOWN"); !close2(got, 0.15) {
		t.Fatalf("total cost = %v, want 0.15", got)
	}
}

func TestEngineRunConsumesFromBus(t *testing.T) {
	sink := &captureSink{}
	b := bus.New[domain.MarketUpdate]()
	e := New("spread", b, sink, nil, Thresholds{MinNotionalUSDT: 1},
		DirectPairs([]VenuePair{{A: "A", B: "B"}}), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// Wait for the subscription to register before publishing.
	deadline := time.Now().Add(time.Second)
	for b.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("engine never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	a := bookUpdate("T", "A", 1)
	a.BestAsk = domain.Float(1.0)
	a.Notional = domain.Float(10)
	if err := b.Publish(ctx, a); err != nil {
		t.Fatalf("publish: %v", err)
	}
	u := bookUpdate("T", "B", 2)
	u.BestBid = domain.Float(1.2)
	u.Notional = domain.Float(10)
	if err := b.Publish(ctx, u); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for sink.len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no alert arrived via bus")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("run should return context.Canceled, got %v", err)
	}
	if b.Len() != 0 {
		t.Fatalf("engine must unsubscribe on exit")
	}
}
