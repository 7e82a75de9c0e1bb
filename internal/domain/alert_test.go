package domain

import "testing"

func TestQuoteApplySticky(t *testing.T) {
	var q Quote
	q.Apply(MarketUpdate{
		Kind:        UpdateBook,
		BestBid:     Float(1.0),
		BestAsk:     Float(1.1),
		BidSize:     Float(50),
		TimestampMs: 1,
	})
	// Partial update: only the ask moves, everything else must survive.
	q.Apply(MarketUpdate{
		Kind:        UpdateBook,
		BestAsk:     Float(1.2),
		TimestampMs: 2,
	})

	if q.BestBid == nil || *q.BestBid != 1.0 {
		t.Fatalf("best bid lost by partial update: %v", q.BestBid)
	}
	if q.BestAsk == nil || *q.BestAsk != 1.2 {
		t.Fatalf("best ask not updated: %v", q.BestAsk)
	}
	if q.BidSize == nil || *q.BidSize != 50 {
		t.Fatalf("bid size lost by partial update: %v", q.BidSize)
	}
	if q.TimestampMs != 2 {
		t.Fatalf("timestamp not advanced: %d", q.TimestampMs)
	}
}

func TestQuoteApplyLegacySizeFallback(t *testing.T) {
	var q Quote
	q.Apply(MarketUpdate{Kind: UpdateBook, Size: Float(25), TimestampMs: 1})
	if q.BidSize == nil || *q.BidSize != 25 {
		t.Fatalf("legacy size should populate bid size, got %v", q.BidSize)
	}

	q.Apply(MarketUpdate{Kind: UpdateBook, BidSize: Float(30), Size: Float(99), TimestampMs: 2})
	if *q.BidSize != 30 {
		t.Fatalf("explicit bid size should win over legacy size, got %v", *q.BidSize)
	}
}

func TestSideNotionalPrefersPriceTimesSize(t *testing.T) {
	q := Quote{
		BestAsk:  Float(1.10),
		AskSize:  Float(100),
		Notional: Float(9999),
	}
	got := q.SideNotional(SideAsk)
	if got == nil || *got < 109.999 || *got > 110.001 {
		t.Fatalf("expected ask notional 110, got %v", got)
	}

	// Without a size the fallback notional is used.
	q.AskSize = nil
	got = q.SideNotional(SideAsk)
	if got == nil || *got != 9999 {
		t.Fatalf("expected fallback notional, got %v", got)
	}

	// Without a fallback either the side has no notional at all.
	q.Notional = nil
	if q.SideNotional(SideAsk) != nil {
		t.Fatalf("expected nil notional when nothing is known")
	}
}

func TestSpreadAlertTradeView(t *testing.T) {
	a := SpreadAlert{
		AlertCore: AlertCore{Token: "ABC"},
		BuyVenue:  "MEXC",
		SellVenue: "WHALES",
		BuyPrice:  1.00,
		SellPrice: 1.05,
	}
	tv := a.TradeView()
	if tv.BuyLabel != "MEXC" || tv.SellLabel != "WHALES" {
		t.Fatalf("unexpected labels: %+v", tv)
	}
	if tv.BuyPrice != 1.00 || tv.SellPrice != 1.05 {
		t.Fatalf("unexpected prices: %+v", tv)
	}
}

func TestHedgedAlertTradeViewBothDirections(t *testing.T) {
	base := HedgedSpreadAlert{
		AlertCore:  AlertCore{Token: "TNSR"},
		OrderVenue: "WHALES",
		PerpVenue:  "BYBIT",
		OrderPrice: 1.10,
		PerpPrice:  1.25,
	}

	buy := base
	buy.Direction = DirectionOrderBuyPerpSell
	tv := buy.TradeView()
	if tv.BuyLabel != "WHALES (order)" || tv.BuyPrice != 1.10 {
		t.Fatalf("order-buy view wrong: %+v", tv)
	}
	if tv.SellLabel != "BYBIT (perp)" || tv.SellPrice != 1.25 {
		t.Fatalf("order-buy sell leg wrong: %+v", tv)
	}

	sell := base
	sell.Direction = DirectionPerpBuyOrderSell
	tv = sell.TradeView()
	if tv.BuyLabel != "BYBIT (perp)" || tv.BuyPrice != 1.25 {
		t.Fatalf("perp-buy view wrong: %+v", tv)
	}
	if tv.SellVenue != "WHALES" || tv.SellPrice != 1.10 {
		t.Fatalf("perp-buy sell leg wrong: %+v", tv)
	}
}
