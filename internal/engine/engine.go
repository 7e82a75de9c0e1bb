// Package engine implements the streaming spread-evaluation pipeline. One
// generic Engine consumes book updates from the bus, maintains a per-venue
// quote cache, and re-evaluates a set of pairing directions on every update.
// The direct cross-venue topology and the hedged order/perp topology differ
// only in the direction sets and alert shapes they produce.
package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/premarket-labs/spreadbot/internal/bus"
	"github.com/premarket-labs/spreadbot/internal/domain"
)

// Thresholds carries the gating parameters shared by both engine families.
// Fees and slippage are expressed in basis points; spreads in percent.
type Thresholds struct {
	MinSpreadPercent      float64
	MinNotionalUSDT       float64
	MinImprovementPercent float64
	DebounceWindow        time.Duration
	SlippageBps           float64
	FeeBps                map[string]float64
}

// TotalCostPercent aggregates both venues' fees and the slippage allowance
// into a single percentage deducted from the gross spread. Venues without a
// configured fee contribute zero.
func (t Thresholds) TotalCostPercent(buyVenue, sellVenue string) float64 {
	totalBps := t.FeeBps[buyVenue] + t.FeeBps[sellVenue] + t.SlippageBps
	return totalBps / 100.0
}

// evaluation is the computed result for one direction, handed to the
// direction's alert factory when every gate passes.
type evaluation struct {
	Token              string
	BuyVenue           string
	SellVenue          string
	BuyPrice           float64
	SellPrice          float64
	GrossSpreadPercent float64
	NetSpreadPercent   float64
	ReferenceNotional  float64
	UpdatedAtMs        int64
}

// direction is one buy/sell orientation of a configured pair. The buy leg
// always executes against the venue's ask, the sell leg against its bid.
type direction struct {
	buyVenue  string
	sellVenue string
	tag       string // debounce direction tag; empty for direct pairs
	newAlert  func(ev evaluation) domain.Alert
}

// Engine evaluates one family of pairing directions against live quotes. It
// owns its quote cache and debounce state exclusively; one update is
// processed to completion, including the awaited sink hand-off, before the
// next is dequeued.
type Engine struct {
	name       string
	bus        *bus.Bus[domain.MarketUpdate]
	sink       domain.AlertSink
	links      map[string]string
	thresholds Thresholds
	directions []direction
	quotes     map[string]map[string]*domain.Quote // token -> venue -> quote
	debounce   *debounceGate
	logger     *slog.Logger
	buffer     int

	now func() time.Time // injected for deterministic debounce tests
}

// New assembles an engine for the given directions. Callers build directions
// through DirectPairs or HedgedPairs.
func New(name string, b *bus.Bus[domain.MarketUpdate], sink domain.AlertSink, links map[string]string, thresholds Thresholds, directions []direction, logger *slog.Logger) *Engine {
	return &Engine{
		name:       name,
		bus:        b,
		sink:       sink,
		links:      links,
		thresholds: thresholds,
		directions: directions,
		quotes:     make(map[string]map[string]*domain.Quote),
		debounce:   newDebounceGate(thresholds.DebounceWindow, thresholds.MinImprovementPercent),
		logger:     logger.With(slog.String("engine", name)),
		buffer:     256,
		now:        time.Now,
	}
}

// Run subscribes to the bus and evaluates updates until ctx is cancelled.
// The subscription is released on every exit path.
func (e *Engine) Run(ctx context.Context) error {
	ch := e.bus.Subscribe(e.buffer)
	defer e.bus.Unsubscribe(ch)

	e.logger.Info("engine started", slog.Int("directions", len(e.directions)))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-ch:
			if err := e.Handle(ctx, update); err != nil {
				return err
			}
		}
	}
}

// Handle applies one update to the quote cache and re-evaluates the affected
// token. Non-book updates are ignored. The only error path is a failed or
// cancelled alert hand-off.
func (e *Engine) Handle(ctx context.Context, update domain.MarketUpdate) error {
	if update.Kind != domain.UpdateBook {
		return nil
	}
	if update.BestBid == nil && update.BestAsk == nil {
		return nil
	}

	venues, ok := e.quotes[update.Token]
	if !ok {
		venues = make(map[string]*domain.Quote)
		e.quotes[update.Token] = venues
	}
	quote, ok := venues[update.Venue]
	if !ok {
		quote = &domain.Quote{}
		venues[update.Venue] = quote
	}
	quote.Apply(update)

	return e.evaluate(ctx, update.Token)
}

func (e *Engine) evaluate(ctx context.Context, token string) error {
	venues := e.quotes[token]
	now := e.now()

	for _, dir := range e.directions {
		buy := venues[dir.buyVenue]
		sell := venues[dir.sellVenue]
		if buy == nil || sell == nil {
			continue
		}
		if buy.BestAsk == nil || sell.BestBid == nil {
			continue
		}
		buyPrice := *buy.BestAsk
		sellPrice := *sell.BestBid
		if buyPrice <= 0 {
			continue
		}

		gross := (sellPrice - buyPrice) / buyPrice * 100.0
		if math.IsNaN(gross) {
			continue
		}
		net := gross - e.thresholds.TotalCostPercent(dir.buyVenue, dir.sellVenue)
		if net < e.thresholds.MinSpreadPercent {
			continue
		}

		notional := referenceNotional(buy, sell)
		if notional == nil || *notional < e.thresholds.MinNotionalUSDT {
			continue
		}

		key := debounceKey{Token: token, BuyVenue: dir.buyVenue, SellVenue: dir.sellVenue, Tag: dir.tag}
		if !e.debounce.Allow(key, now, net) {
			continue
		}

		updatedAt := buy.TimestampMs
		if sell.TimestampMs > updatedAt {
			updatedAt = sell.TimestampMs
		}
		alert := dir.newAlert(evaluation{
			Token:              token,
			BuyVenue:           dir.buyVenue,
			SellVenue:          dir.sellVenue,
			BuyPrice:           buyPrice,
			SellPrice:          sellPrice,
			GrossSpreadPercent: gross,
			NetSpreadPercent:   net,
			ReferenceNotional:  *notional,
			UpdatedAtMs:        updatedAt,
		})

		if err := e.sink.Deliver(ctx, alert, e.links); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Delivery trouble is the sink's problem; the opportunity was
			// found and recorded either way.
			e.logger.Error("alert hand-off failed",
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
		}
		e.debounce.Record(key, now, net)

		e.logger.Debug("alert emitted",
			slog.String("token", token),
			slog.String("buy_venue", dir.buyVenue),
			slog.String("sell_venue", dir.sellVenue),
			slog.Float64("net_spread_percent", net),
		)
	}
	return nil
}

// referenceNotional is the smaller of the two sides' usable notional values:
// the buy side executes against the ask, the sell side against the bid.
func referenceNotional(buy, sell *domain.Quote) *float64 {
	buyNotional := buy.SideNotional(domain.SideAsk)
	sellNotional := sell.SideNotional(domain.SideBid)
	switch {
	case buyNotional == nil:
		return sellNotional
	case sellNotional == nil:
		return buyNotional
	case *sellNotional < *buyNotional:
		return sellNotional
	default:
		return buyNotional
	}
}

func newAlertCore(ev evaluation) domain.AlertCore {
	return domain.AlertCore{
		ID:                 uuid.NewString(),
		Token:              ev.Token,
		GrossSpreadPercent: ev.GrossSpreadPercent,
		NetSpreadPercent:   ev.NetSpreadPercent,
		ReferenceNotional:  ev.ReferenceNotional,
		UpdatedAtMs:        ev.UpdatedAtMs,
	}
}
