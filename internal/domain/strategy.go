package domain

import "time"

// StrategyKind enumerates the two hedge directions of a binary market pair.
type StrategyKind string

const (
	// StrategyAYesBNo buys YES on venue A and NO on venue B.
	StrategyAYesBNo StrategyKind = "a_yes_b_no"
	// StrategyANoBYes buys NO on venue A and YES on venue B.
	StrategyANoBYes StrategyKind = "a_no_b_yes"
)

// Sides returns the outcome bought on venue A and venue B for the kind.
func (k StrategyKind) Sides() (a, b Outcome) {
	if k == StrategyANoBYes {
		return OutcomeNo, OutcomeYes
	}
	return OutcomeYes, OutcomeNo
}

// LegPrices are the four outcome prices observed for a pair at evaluation.
type LegPrices struct {
	AYes float64 `json:"a_yes"`
	ANo  float64 `json:"a_no"`
	BYes float64 `json:"b_yes"`
	BNo  float64 `json:"b_no"`
}

// ArbitrageStrategy is the detector's selected hedge. It is not persisted
// directly; ArbitrageOpportunity snapshots it.
type ArbitrageStrategy struct {
	Kind           StrategyKind `json:"kind"`
	SideA          Outcome      `json:"side_a"`
	SideB          Outcome      `json:"side_b"`
	PriceA         float64      `json:"price_a"`
	PriceB         float64      `json:"price_b"`
	TotalCost      float64      `json:"total_cost"`
	GrossProfit    float64      `json:"gross_profit"`
	Fees           float64      `json:"fees"`
	NetProfit      float64      `json:"net_profit"`
	Spread         float64      `json:"spread"`
	ExpectedProfit float64      `json:"expected_profit"`
}

// EvaluationResult carries a pair evaluation together with the leg prices it
// was computed from. Strategy is nil when no actionable hedge exists.
type EvaluationResult struct {
	Pair        VerifiedPair
	Prices      LegPrices
	Strategy    *ArbitrageStrategy
	EvaluatedAt time.Time
	Err         error
}

// Actionable reports whether the evaluation produced a strategy.
func (r EvaluationResult) Actionable() bool {
	return r.Strategy != nil
}
