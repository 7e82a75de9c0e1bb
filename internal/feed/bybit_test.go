package feed

import (
	"testing"
)

func TestParseBybitTickerNormalizesUpdate(t *testing.T) {
	raw := []byte(`{
		"topic": "tickers.TNSRUSDT",
		"data": {
			"bid1Price": "1.25", "ask1Price": "1.3",
			"bid1Size": "500", "ask1Size": "400",
			"lastPrice": "1.27", "ts": 1712000000000
		}
	}`)

	u, ok := parseBybitTicker(raw, 7)
	if !ok {
		t.Fatal("expected update")
	}
	if u.Venue != "BYBIT" || u.Token != "TNSR" || u.Instrument != "TNSRUSDTPERP" {
		t.Fatalf("unexpected identity: %q %q %q", u.Venue, u.Token, u.Instrument)
	}
	if u.BestBid == nil || *u.BestBid != 1.25 {
		t.Fatalf("best bid = %v", u.BestBid)
	}
	if u.BidSize == nil || *u.BidSize != 500 {
		t.Fatalf("bid size = %v", u.BidSize)
	}
	// min(1.25*500, 1.3*400) = 520, the ask side.
	if u.Notional == nil || *u.Notional != 520 {
		t.Fatalf("notional = %v", u.Notional)
	}
	if u.TimestampMs != 1712000000000 {
		t.Fatalf("timestamp = %d", u.TimestampMs)
	}
}

func TestParseBybitTickerPartialBook(t *testing.T) {
	raw := []byte(`{"topic": "tickers.TNSRUSDT", "data": {"bid1Price": "1.25"}}`)

	u, ok := parseBybitTicker(raw, 7)
	if !ok {
		t.Fatal("expected update")
	}
	if u.BestAsk != nil || u.Notional != nil {
		t.Fatalf("ask=%v notional=%v, want nil", u.BestAsk, u.Notional)
	}
	if u.TimestampMs != 7 {
		t.Fatalf("timestamp = %d, want fallback 7", u.TimestampMs)
	}
}

func TestParseBybitTickerRejectsOtherTopics(t *testing.T) {
	for _, raw := range []string{
		`{"topic": "orderbook.50.TNSRUSDT", "data": {}}`,
		`{"op": "subscribe", "success": true}`,
		`garbage`,
	} {
		if _, ok := parseBybitTicker([]byte(raw), 0); ok {
			t.Fatalf("parsed unexpected frame: %s", raw)
		}
	}
}

func TestFormatBybitSymbol(t *testing.T) {
	if got := formatBybitSymbol("tnsr/usdt"); got != "TNSRUSDT" {
		t.Fatalf("got %q", got)
	}
	if got := formatBybitSymbol("TNSR-USDT"); got != "TNSRUSDT" {
		t.Fatalf("got %q", got)
	}
}
