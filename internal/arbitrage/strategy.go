// Package arbitrage evaluates verified cross-venue pairs and selects the
// cheaper hedge direction when buying both sides costs less than the $1
// payout after fees.
package arbitrage

import "github.com/alanyoungcy/crossarb/internal/domain"

// Evaluate prices one hedge direction. A leg priced at or below zero means
// the venue had no liquidity on that side and the direction is never viable.
func Evaluate(kind domain.StrategyKind, prices domain.LegPrices, feeRate, tradeSize float64) (domain.ArbitrageStrategy, bool) {
	sideA, sideB := kind.Sides()
	pa, pb := legPrice(prices, sideA, true), legPrice(prices, sideB, false)

	s := domain.ArbitrageStrategy{
		Kind:   kind,
		SideA:  sideA,
		SideB:  sideB,
		PriceA: pa,
		PriceB: pb,
	}
	s.TotalCost = pa + pb
	s.GrossProfit = 1 - s.TotalCost
	s.Fees = feeRate * s.TotalCost
	s.NetProfit = s.GrossProfit - s.Fees
	if s.TotalCost > 0 {
		s.Spread = s.NetProfit / s.TotalCost
	}
	s.ExpectedProfit = s.NetProfit * tradeSize

	if pa <= 0 || pb <= 0 {
		return s, false
	}
	return s, s.Spread > 0
}

// SelectStrategy returns the viable direction with the larger spread, or nil
// when neither direction is profitable after fees. On equal spreads the
// a_yes_b_no direction wins.
func SelectStrategy(prices domain.LegPrices, feeRate, tradeSize float64) *domain.ArbitrageStrategy {
	var best *domain.ArbitrageStrategy
	for _, kind := range []domain.StrategyKind{domain.StrategyAYesBNo, domain.StrategyANoBYes} {
		s, ok := Evaluate(kind, prices, feeRate, tradeSize)
		if !ok {
			continue
		}
		if best == nil || s.Spread > best.Spread {
			best = &s
		}
	}
	return best
}

func legPrice(p domain.LegPrices, side domain.Outcome, venueA bool) float64 {
	switch {
	case venueA && side == domain.OutcomeYes:
		return p.AYes
	case venueA:
		return p.ANo
	case side == domain.OutcomeYes:
		return p.BYes
	default:
		return p.BNo
	}
}
