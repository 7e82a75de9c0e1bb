// Package domain defines the canonical data model shared by feeds, engines,
// and alert delivery: normalized market updates, cached quotes, and the alert
// variants handed to sinks.
package domain

// UpdateKind classifies a normalized market update.
type UpdateKind string

const (
	UpdateBook    UpdateKind = "book"
	UpdateTrade   UpdateKind = "trade"
	UpdateListing UpdateKind = "listing"
	UpdateOrder   UpdateKind = "order"
	UpdateFill    UpdateKind = "fill"
)

// MarketUpdate is the canonical representation of market data emitted by
// venue producers. Optional numeric fields are pointers: nil means the venue
// did not report the field in this update, and engines must keep the
// previously cached value ("sticky" partial updates).
type MarketUpdate struct {
	Token      string // venue-agnostic asset identifier, e.g. "TNSR"
	Venue      string // source venue identifier, e.g. "MEXC"
	Instrument string // venue-native symbol, e.g. "TNSR_USDT"
	Kind       UpdateKind

	BestBid   *float64
	BestAsk   *float64
	LastPrice *float64
	Size      *float64 // legacy aggregate size (typically best bid quantity)
	BidSize   *float64
	AskSize   *float64
	Notional  *float64 // price*size hint for liquidity filtering

	TimestampMs int64
	Raw         []byte // original payload for diagnostics
}

// Quote is the cached top-of-book state for one (token, venue) pair. Fields
// stay nil until a venue first reports them; a later update overwrites a
// field only when it carries a value for it.
type Quote struct {
	BestBid     *float64
	BestAsk     *float64
	BidSize     *float64
	AskSize     *float64
	Notional    *float64 // fallback when a side's price*size is unknown
	TimestampMs int64
}

// Apply folds a book update into the quote. Absent update fields never erase
// known state; BidSize falls back to the legacy Size field.
func (q *Quote) Apply(u MarketUpdate) {
	if u.BestBid != nil {
		q.BestBid = u.BestBid
	}
	if u.BestAsk != nil {
		q.BestAsk = u.BestAsk
	}
	if u.BidSize != nil {
		q.BidSize = u.BidSize
	} else if u.Size != nil {
		q.BidSize = u.Size
	}
	if u.AskSize != nil {
		q.AskSize = u.AskSize
	}
	if u.Notional != nil {
		q.Notional = u.Notional
	}
	q.TimestampMs = u.TimestampMs
}

// QuoteSide selects the bid or ask side of a quote.
type QuoteSide int

const (
	SideBid QuoteSide = iota
	SideAsk
)

// SideNotional returns the side's price*size when both are known, otherwise
// the quote's fallback notional, otherwise nil.
func (q *Quote) SideNotional(side QuoteSide) *float64 {
	var price, size *float64
	switch side {
	case SideAsk:
		price, size = q.BestAsk, q.AskSize
	default:
		price, size = q.BestBid, q.BidSize
	}
	if price != nil && size != nil {
		v := *price * *size
		return &v
	}
	return q.Notional
}

// Float returns a pointer to v. Convenience for building updates.
func Float(v float64) *float64 { return &v }
