package domain

import "context"

// Alert kinds.
const (
	KindSpread       = "spread"
	KindHedgedSpread = "hedged_spread"
)

// Hedged trade directions.
const (
	DirectionOrderBuyPerpSell = "order_buy_perp_sell"
	DirectionPerpBuyOrderSell = "perp_buy_order_sell"
)

// AlertCore carries the fields common to every alert variant.
type AlertCore struct {
	ID                 string // UUID, assigned at emission
	Token              string
	GrossSpreadPercent float64
	NetSpreadPercent   float64
	ReferenceNotional  float64
	UpdatedAtMs        int64 // newer of the two contributing quote timestamps
}

// TradeView is the uniform buy/sell projection of an alert used for
// formatting, regardless of the variant's own field semantics.
type TradeView struct {
	BuyLabel  string // display label, e.g. "WHALES (order)"
	BuyVenue  string // venue key for link lookup
	BuyPrice  float64
	SellLabel string
	SellVenue string
	SellPrice float64
}

// Alert is the tagged variant handed to sinks. Consumers branch on Kind only
// when they need variant-specific fields; formatting goes through TradeView.
type Alert interface {
	Kind() string
	Core() AlertCore
	TradeView() TradeView
}

// SpreadAlert reports a direct cross-venue spread opportunity.
type SpreadAlert struct {
	AlertCore
	BuyVenue  string
	SellVenue string
	BuyPrice  float64
	SellPrice float64
}

func (a SpreadAlert) Kind() string    { return KindSpread }
func (a SpreadAlert) Core() AlertCore { return a.AlertCore }

func (a SpreadAlert) TradeView() TradeView {
	return TradeView{
		BuyLabel:  a.BuyVenue,
		BuyVenue:  a.BuyVenue,
		BuyPrice:  a.BuyPrice,
		SellLabel: a.SellVenue,
		SellVenue: a.SellVenue,
		SellPrice: a.SellPrice,
	}
}

// HedgedSpreadAlert reports an order-venue/perp-venue hedge opportunity.
// Direction tags which leg is bought; OrderPrice and PerpPrice always refer
// to their venue's executing side for that direction.
type HedgedSpreadAlert struct {
	AlertCore
	OrderVenue string
	PerpVenue  string
	Direction  string
	OrderPrice float64
	PerpPrice  float64
}

func (a HedgedSpreadAlert) Kind() string    { return KindHedgedSpread }
func (a HedgedSpreadAlert) Core() AlertCore { return a.AlertCore }

func (a HedgedSpreadAlert) TradeView() TradeView {
	if a.Direction == DirectionOrderBuyPerpSell {
		return TradeView{
			BuyLabel:  a.OrderVenue + " (order)",
			BuyVenue:  a.OrderVenue,
			BuyPrice:  a.OrderPrice,
			SellLabel: a.PerpVenue + " (perp)",
			SellVenue: a.PerpVenue,
			SellPrice: a.PerpPrice,
		}
	}
	return TradeView{
		BuyLabel:  a.PerpVenue + " (perp)",
		BuyVenue:  a.PerpVenue,
		BuyPrice:  a.PerpPrice,
		SellLabel: a.OrderVenue + " (order)",
		SellVenue: a.OrderVenue,
		SellPrice: a.OrderPrice,
	}
}

// AlertSink receives finished alerts from the engines. Deliver must return
// only once the alert has been handed off (or recorded in dry-run mode); the
// emitting engine blocks on it before processing its next update. links maps
// venue identifiers to human-readable venue URLs for formatting.
type AlertSink interface {
	Deliver(ctx context.Context, alert Alert, links map[string]string) error
}
