// Package venuetest provides a scriptable in-memory domain.VenueGateway for
// tests of components that talk to venues.
package venuetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Record is a MarketRecord that converts to a fixed event or error.
type Record struct {
	Event domain.Event
	Err   error
}

// ToEvent implements domain.MarketRecord.
func (r Record) ToEvent() (domain.Event, error) {
	if r.Err != nil {
		return domain.Event{}, r.Err
	}
	return r.Event, nil
}

type order struct {
	req       domain.OrderRequest
	filled    float64
	cancelled bool
}

// Gateway is a concurrency-safe fake venue. Orders fill instantly to
// FillRatio of their quantity unless a per-call script overrides it.
type Gateway struct {
	venue domain.Venue

	mu         sync.Mutex
	markets    []domain.MarketRecord
	listErr    error
	quotes     map[string]domain.Quote
	quoteErrs  map[string]error
	placeErr   error
	cancelErr  error
	fillRatio  float64
	fillPrice  float64
	orders     map[string]*order
	seq        int
	placed     []domain.OrderRequest
	cancelled  []string
	quoteCalls int
}

var _ domain.VenueGateway = (*Gateway)(nil)

// New returns a gateway for venue whose orders fill completely.
func New(venue domain.Venue) *Gateway {
	return &Gateway{
		venue:     venue,
		quotes:    make(map[string]domain.Quote),
		quoteErrs: make(map[string]error),
		orders:    make(map[string]*order),
		fillRatio: 1,
	}
}

// SetMarkets replaces the listing returned by ListMarkets.
func (g *Gateway) SetMarkets(records ...domain.MarketRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markets = records
}

// FailList makes ListMarkets return err.
func (g *Gateway) FailList(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listErr = err
}

// SetQuote sets the quote for a market.
func (g *Gateway) SetQuote(externalID string, q domain.Quote) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[externalID] = q
	delete(g.quoteErrs, externalID)
}

// FailQuote makes GetQuote for a market return err.
func (g *Gateway) FailQuote(externalID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quoteErrs[externalID] = err
}

// FailPlace makes every PlaceOrder return err. Pass nil to clear.
func (g *Gateway) FailPlace(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placeErr = err
}

// FailCancel makes every CancelOrder return err.
func (g *Gateway) FailCancel(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelErr = err
}

// SetFill sets the fraction of each new order that fills and the reported
// average fill price. A zero price reports the limit price.
func (g *Gateway) SetFill(ratio, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fillRatio = ratio
	g.fillPrice = price
}

// FillOrder sets the filled quantity of an existing order.
func (g *Gateway) FillOrder(exchangeOrderID string, qty float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.orders[exchangeOrderID]; ok {
		o.filled = qty
	}
}

// Placed returns every accepted order request.
func (g *Gateway) Placed() []domain.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.OrderRequest(nil), g.placed...)
}

// Cancelled returns the exchange ids passed to CancelOrder.
func (g *Gateway) Cancelled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cancelled...)
}

// QuoteCalls returns how many times GetQuote was called.
func (g *Gateway) QuoteCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.quoteCalls
}

// Venue implements domain.VenueGateway.
func (g *Gateway) Venue() domain.Venue { return g.venue }

// ListMarkets implements domain.VenueGateway.
func (g *Gateway) ListMarkets(ctx context.Context) ([]domain.MarketRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]domain.MarketRecord(nil), g.markets...), nil
}

// GetMarket implements domain.VenueGateway.
func (g *Gateway) GetMarket(ctx context.Context, externalID string) (domain.MarketRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.markets {
		if ev, err := m.ToEvent(); err == nil && ev.ExternalID == externalID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("venuetest: market %s: %w", externalID, domain.ErrNotFound)
}

// GetQuote implements domain.VenueGateway.
func (g *Gateway) GetQuote(ctx context.Context, externalID string) (domain.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quoteCalls++
	if err, ok := g.quoteErrs[externalID]; ok {
		return domain.Quote{}, err
	}
	q, ok := g.quotes[externalID]
	if !ok {
		return domain.Quote{}, domain.ErrNoQuote
	}
	return q, nil
}

// PlaceOrder implements domain.VenueGateway.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.placeErr != nil {
		return "", g.placeErr
	}
	g.seq++
	id := fmt.Sprintf("%s-%d", g.venue, g.seq)
	g.orders[id] = &order{req: req, filled: req.Quantity * g.fillRatio}
	g.placed = append(g.placed, req)
	return id, nil
}

// CancelOrder implements domain.VenueGateway.
func (g *Gateway) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, exchangeOrderID)
	if g.cancelErr != nil {
		return g.cancelErr
	}
	o, ok := g.orders[exchangeOrderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.cancelled = true
	return nil
}

// GetOrderStatus implements domain.VenueGateway.
func (g *Gateway) GetOrderStatus(ctx context.Context, exchangeOrderID string) (domain.OrderFill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[exchangeOrderID]
	if !ok {
		return domain.OrderFill{}, domain.ErrNotFound
	}
	price := g.fillPrice
	if price == 0 {
		price = o.req.Price
	}
	fill := domain.OrderFill{FilledQty: o.filled, TotalQty: o.req.Quantity}
	if o.filled > 0 {
		fill.AvgFillPrice = price
	}
	return fill, nil
}
