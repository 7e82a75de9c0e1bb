package engine

import "time"

// debounceKey identifies one alerting opportunity. Tag is empty for direct
// spreads and carries the hedge direction for hedged spreads, so the two
// directions of one hedged pair are gated independently.
type debounceKey struct {
	Token     string
	BuyVenue  string
	SellVenue string
	Tag       string
}

type emission struct {
	at  time.Time
	net float64
}

// debounceGate suppresses repeated alerts for the same key. Within the
// window an alert passes only when its net spread strictly exceeds the last
// emitted net spread plus the minimum improvement; outside the window every
// alert passes. Entries are never evicted: the key space is bounded by the
// configured token x venue-pair x direction set.
type debounceGate struct {
	window         time.Duration
	minImprovement float64
	last           map[debounceKey]emission
}

func newDebounceGate(window time.Duration, minImprovement float64) *debounceGate {
	return &debounceGate{
		window:         window,
		minImprovement: minImprovement,
		last:           make(map[debounceKey]emission),
	}
}

// Allow reports whether an alert for key with the given net spread may be
// emitted at now. It does not record the emission; call Record after the
// alert hand-off succeeds.
func (g *debounceGate) Allow(key debounceKey, now time.Time, net float64) bool {
	prev, ok := g.last[key]
	if !ok {
		return true
	}
	if now.Sub(prev.at) >= g.window {
		return true
	}
	return net > prev.net+g.minImprovement
}

// Record stores the emission time and net spread for key, refreshing the
// window.
func (g *debounceGate) Record(key debounceKey, now time.Time, net float64) {
	g.last[key] = emission{at: now, net: net}
}
