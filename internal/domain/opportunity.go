package domain

import "time"

// ArbitrageOpportunity is the persisted snapshot of one detection.
type ArbitrageOpportunity struct {
	ID                   string       `json:"id"`
	PairID               string       `json:"pair_id"`
	DetectedAt           time.Time    `json:"detected_at"`
	Prices               LegPrices    `json:"prices"`
	Spread               float64      `json:"spread"`
	Kind                 StrategyKind `json:"kind"`
	ExpectedProfit       float64      `json:"expected_profit"`
	Executed             bool         `json:"executed"`
	ExecutionStartedAt   *time.Time   `json:"execution_started_at"`
	ExecutionCompletedAt *time.Time   `json:"execution_completed_at"`
	RealizedPnL          *float64     `json:"realized_pnl"`
	Notes                string       `json:"notes"`
}
