package domain

import (
	"context"
	"fmt"
)

// Venue identifies an external trading platform.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// ParseVenue validates a venue name.
func ParseVenue(s string) (Venue, error) {
	switch Venue(s) {
	case VenueKalshi, VenuePolymarket:
		return Venue(s), nil
	}
	return "", fmt.Errorf("unknown venue %q", s)
}

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Complement returns the opposite outcome.
func (o Outcome) Complement() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Quote holds the best executable price for each outcome of a market,
// expressed as a probability in [0, 1].
type Quote struct {
	Yes float64
	No  float64
}

// Price returns the quoted price for the given outcome.
func (q Quote) Price(o Outcome) float64 {
	if o == OutcomeYes {
		return q.Yes
	}
	return q.No
}

// MarketRecord is a venue-specific market listing. Each gateway owns the
// mapping from its own wire schema to the common Event shape.
type MarketRecord interface {
	ToEvent() (Event, error)
}

// OrderRequest is a buy order for one outcome of a venue market.
type OrderRequest struct {
	ExternalID string
	Side       Outcome
	Quantity   float64
	Price      float64
}

// OrderFill is the fill state reported by a venue for one order.
type OrderFill struct {
	FilledQty    float64
	TotalQty     float64
	AvgFillPrice float64
}

// VenueGateway is the request/response surface the core consumes from each
// venue. Implementations translate transport failures into domain errors and
// retry transient failures internally.
type VenueGateway interface {
	Venue() Venue
	ListMarkets(ctx context.Context) ([]MarketRecord, error)
	GetMarket(ctx context.Context, externalID string) (MarketRecord, error)
	GetQuote(ctx context.Context, externalID string) (Quote, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (exchangeOrderID string, err error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	GetOrderStatus(ctx context.Context, exchangeOrderID string) (OrderFill, error)
}
