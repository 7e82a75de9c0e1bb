package engine

import "github.com/premarket-labs/spreadbot/internal/domain"

// VenuePair is an unordered pair of venues compared for direct spreads.
// Both trading directions are evaluated.
type VenuePair struct {
	A string
	B string
}

// HedgedPair is the ordered pairing of a spot/OTC order venue with a
// perpetual-futures venue. The two hedge directions are evaluated, but the
// legs are never symmetric.
type HedgedPair struct {
	Order string
	Perp  string
}

// DirectPairs expands venue pairs into both buy/sell orientations producing
// SpreadAlerts.
func DirectPairs(pairs []VenuePair) []direction {
	dirs := make([]direction, 0, 2*len(pairs))
	for _, pair := range pairs {
		for _, leg := range [][2]string{{pair.A, pair.B}, {pair.B, pair.A}} {
			dirs = append(dirs, direction{
				buyVenue:  leg[0],
				sellVenue: leg[1],
				newAlert: func(ev evaluation) domain.Alert {
					return domain.SpreadAlert{
						AlertCore: newAlertCore(ev),
						BuyVenue:  ev.BuyVenue,
						SellVenue: ev.SellVenue,
						BuyPrice:  ev.BuyPrice,
						SellPrice: ev.SellPrice,
					}
				},
			})
		}
	}
	return dirs
}

// HedgedPairs expands order/perp pairs into their two fixed hedge directions
// producing HedgedSpreadAlerts. The debounce tag keeps the two directions of
// one pair gated independently.
func HedgedPairs(pairs []HedgedPair) []direction {
	dirs := make([]direction, 0, 2*len(pairs))
	for _, pair := range pairs {
		order, perp := pair.Order, pair.Perp
		dirs = append(dirs,
			direction{
				buyVenue:  order,
				sellVenue: perp,
				tag:       domain.DirectionOrderBuyPerpSell,
				newAlert: func(ev evaluation) domain.Alert {
					return domain.HedgedSpreadAlert{
						AlertCore:  newAlertCore(ev),
						OrderVenue: order,
						PerpVenue:  perp,
						Direction:  domain.DirectionOrderBuyPerpSell,
						OrderPrice: ev.BuyPrice,
						PerpPrice:  ev.SellPrice,
					}
				},
			},
			direction{
				buyVenue:  perp,
				sellVenue: order,
				tag:       domain.DirectionPerpBuyOrderSell,
				newAlert: func(ev evaluation) domain.Alert {
					return domain.HedgedSpreadAlert{
						AlertCore:  newAlertCore(ev),
						OrderVenue: order,
						PerpVenue:  perp,
						Direction:  domain.DirectionPerpBuyOrderSell,
						OrderPrice: ev.SellPrice,
						PerpPrice:  ev.BuyPrice,
					}
				},
			},
		)
	}
	return dirs
}
