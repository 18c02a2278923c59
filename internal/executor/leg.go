package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// leg is one side of a hedge together with the venue it trades on.
type leg struct {
	name  string
	gw    domain.VenueGateway
	order domain.Order
}

func newLeg(name string, gw domain.VenueGateway, req Request, ev domain.Event, side domain.Outcome, price float64, now time.Time) *leg {
	return &leg{
		name:  name,
		gw:    gw,
		order: newOrder(req, gw.Venue(), ev, side, price, now),
	}
}

func newOrder(req Request, venue domain.Venue, ev domain.Event, side domain.Outcome, price float64, now time.Time) domain.Order {
	return domain.Order{
		ID:            uuid.New().String(),
		PairID:        req.Pair.ID,
		OpportunityID: req.Opportunity.ID,
		Venue:         venue,
		EventID:       ev.ID,
		ExternalID:    ev.ExternalID,
		Side:          side,
		RequestedSize: req.Size,
		LimitPrice:    price,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
	}
}

// place submits the order. On failure the order moves to failed and the
// venue error is returned.
func (l *leg) place(ctx context.Context, now func() time.Time) error {
	id, err := l.gw.PlaceOrder(ctx, domain.OrderRequest{
		ExternalID: l.order.ExternalID,
		Side:       l.order.Side,
		Quantity:   l.order.RequestedSize,
		Price:      l.order.LimitPrice,
	})
	if err != nil {
		l.order.Error = err.Error()
		_ = l.order.Transition(domain.OrderStatusFailed, now())
		return fmt.Errorf("leg %s place on %s: %w", l.name, l.gw.Venue(), err)
	}
	l.order.ExchangeOrderID = id
	return l.order.Transition(domain.OrderStatusSubmitted, now())
}

// poll refreshes fill state from the venue. Terminal orders are not polled.
func (l *leg) poll(ctx context.Context, now func() time.Time) error {
	if l.order.Status.Terminal() || l.order.ExchangeOrderID == "" {
		return nil
	}
	fill, err := l.gw.GetOrderStatus(ctx, l.order.ExchangeOrderID)
	if err != nil {
		return fmt.Errorf("leg %s status on %s: %w", l.name, l.gw.Venue(), err)
	}
	return l.order.ApplyFill(fill, now())
}

// cancel cancels whatever remains open at the venue.
func (l *leg) cancel(ctx context.Context, now func() time.Time) error {
	if l.order.Status.Terminal() || l.order.ExchangeOrderID == "" {
		return nil
	}
	if err := l.gw.CancelOrder(ctx, l.order.ExchangeOrderID); err != nil {
		l.order.Error = fmt.Sprintf("cancel failed: %v", err)
		return fmt.Errorf("leg %s cancel on %s: %w", l.name, l.gw.Venue(), err)
	}
	return l.order.Transition(domain.OrderStatusCancelled, now())
}

func (l *leg) filled() bool {
	return l.order.Status == domain.OrderStatusFilled
}
