package domain

import "time"

// Position is the running cost basis for one (venue, event, side).
type Position struct {
	ID            string     `json:"id"`
	Venue         Venue      `json:"venue"`
	EventID       string     `json:"event_id"`
	Side          Outcome    `json:"side"`
	Quantity      float64    `json:"quantity"`
	AvgPrice      float64    `json:"avg_price"`
	RealizedPnL   float64    `json:"realized_pnl"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	OpenedAt      time.Time  `json:"opened_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ClosedAt      *time.Time `json:"closed_at"`
}

// QuantityEpsilon absorbs float dust from fractional fills. A remainder at or
// below it counts as zero.
const QuantityEpsilon = 1e-9

// Open reports whether the position still holds quantity.
func (p Position) Open() bool {
	return p.Quantity > QuantityEpsilon
}

// PnLSummary aggregates PnL across positions.
type PnLSummary struct {
	Realized   float64 `json:"realized_pnl"`
	Unrealized float64 `json:"unrealized_pnl"`
	Total      float64 `json:"total_pnl"`
}

// Exposure is capital committed to one market, split by venue.
type Exposure struct {
	ByVenue map[Venue]float64 `json:"by_venue"`
	Total   float64           `json:"total"`
}
