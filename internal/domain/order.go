package domain

import (
	"fmt"
	"time"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// FilledRatio is the fill fraction at which an order counts as filled.
const FilledRatio = 0.99

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusSubmitted, OrderStatusFailed},
	OrderStatusSubmitted: {OrderStatusPartial, OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPartial:   {OrderStatusPartial, OrderStatusFilled, OrderStatusCancelled},
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusFailed
}

// CanTransition reports whether s may move to next. Staying in the same
// non-terminal state is always allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next && !s.Terminal() {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StatusForFill derives the fill status for a filled quantity against the
// requested quantity.
func StatusForFill(filled, requested float64) OrderStatus {
	switch {
	case requested > 0 && filled >= requested*FilledRatio:
		return OrderStatusFilled
	case filled > 0:
		return OrderStatusPartial
	default:
		return OrderStatusSubmitted
	}
}

// Order is one leg of a hedge placed on a venue.
type Order struct {
	ID              string      `json:"id"`
	PairID          string      `json:"pair_id"`
	OpportunityID   string      `json:"opportunity_id"`
	Venue           Venue       `json:"venue"`
	EventID         string      `json:"event_id"`
	ExternalID      string      `json:"external_id"`
	ExchangeOrderID string      `json:"exchange_order_id"`
	Side            Outcome     `json:"side"`
	RequestedSize   float64     `json:"requested_size"`
	FilledSize      float64     `json:"filled_size"`
	LimitPrice      float64     `json:"limit_price"`
	AvgFillPrice    float64     `json:"avg_fill_price"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	SubmittedAt     *time.Time  `json:"submitted_at"`
	FilledAt        *time.Time  `json:"filled_at"`
	CancelledAt     *time.Time  `json:"cancelled_at"`
	RetryCount      int         `json:"retry_count"`
	Error           string      `json:"error"`
}

// Transition moves the order to next, stamping the matching timestamp.
func (o *Order) Transition(next OrderStatus, at time.Time) error {
	if !o.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	switch next {
	case OrderStatusSubmitted:
		o.SubmittedAt = &at
	case OrderStatusFilled:
		o.FilledAt = &at
	case OrderStatusCancelled:
		o.CancelledAt = &at
	}
	return nil
}

// ApplyFill records a venue fill report and advances the status.
func (o *Order) ApplyFill(fill OrderFill, at time.Time) error {
	o.FilledSize = fill.FilledQty
	if fill.AvgFillPrice > 0 {
		o.AvgFillPrice = fill.AvgFillPrice
	}
	if o.Status.Terminal() {
		return nil
	}
	next := StatusForFill(o.FilledSize, o.RequestedSize)
	if next == OrderStatusSubmitted && o.Status == OrderStatusPartial {
		return nil
	}
	return o.Transition(next, at)
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() float64 {
	r := o.RequestedSize - o.FilledSize
	if r < 0 {
		return 0
	}
	return r
}

// FillPrice returns the average fill price, or the limit price when the venue
// did not report one.
func (o Order) FillPrice() float64 {
	if o.AvgFillPrice > 0 {
		return o.AvgFillPrice
	}
	return o.LimitPrice
}
