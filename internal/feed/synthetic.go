package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/premarket-labs/spreadbot/internal/bus"
	"github.com/premarket-labs/spreadbot/internal/domain"
)

// Synthetic publishes random-walk book updates for a token/venue grid. It
// exists for dry runs and demos where no real venue connectivity is wanted.
type Synthetic struct {
	bus      *bus.Bus[domain.MarketUpdate]
	tokens   []string
	venues   []string
	interval time.Duration
	logger   *slog.Logger

	rng  *rand.Rand
	mids map[string]float64
}

func NewSynthetic(b *bus.Bus[domain.MarketUpdate], tokens, venues []string, interval time.Duration, logger *slog.Logger) *Synthetic {
	if interval <= 0 {
		interval = time.Second
	}
	up := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			out = append(out, strings.ToUpper(s))
		}
		return out
	}
	return &Synthetic{
		bus:      b,
		tokens:   up(tokens),
		venues:   up(venues),
		interval: interval,
		logger:   logger.With(slog.String("component", "feed.synthetic")),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		mids:     make(map[string]float64),
	}
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) RunOnce(ctx context.Context) error {
	if len(s.tokens) == 0 || len(s.venues) == 0 {
		s.logger.Warn("no tokens or venues configured; idling")
		return sleepCtx(ctx, 5*time.Second)
	}
	s.logger.Info("emitting synthetic books",
		slog.Int("tokens", len(s.tokens)), slog.Int("venues", len(s.venues)))

	for {
		for _, token := range s.tokens {
			for _, venue := range s.venues {
				if err := s.bus.Publish(ctx, s.step(token, venue)); err != nil {
					return err
				}
			}
		}
		if err := sleepCtx(ctx, s.interval); err != nil {
			return err
		}
	}
}

// step advances the mid price for one token/venue by up to ±0.5% and builds
// a book update around it.
func (s *Synthetic) step(token, venue string) domain.MarketUpdate {
	key := token + "|" + venue
	mid, ok := s.mids[key]
	if !ok {
		mid = 0.5 + s.rng.Float64()*2
	}
	mid *= 1 + (s.rng.Float64()-0.5)/100
	s.mids[key] = mid

	bid := mid * 0.999
	ask := mid * 1.001
	bidSize := 100 + s.rng.Float64()*900
	askSize := 100 + s.rng.Float64()*900

	return domain.MarketUpdate{
		Token:       token,
		Venue:       venue,
		Instrument:  token + "_USDT",
		Kind:        domain.UpdateBook,
		BestBid:     domain.Float(bid),
		BestAsk:     domain.Float(ask),
		LastPrice:   domain.Float(mid),
		Size:        domain.Float(bidSize),
		BidSize:     domain.Float(bidSize),
		AskSize:     domain.Float(askSize),
		Notional:    minNotional(domain.Float(bid), domain.Float(bidSize), domain.Float(ask), domain.Float(askSize)),
		TimestampMs: time.Now().UnixMilli(),
	}
}
