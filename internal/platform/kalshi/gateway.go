package kalshi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const pageSize = 200

var hundred = decimal.NewFromInt(100)

// Gateway adapts Client to domain.VenueGateway.
type Gateway struct {
	client      *Client
	marketLimit int
	logger      *slog.Logger
}

var _ domain.VenueGateway = (*Gateway)(nil)

// NewGateway wraps c. marketLimit caps ListMarkets; zero means one page.
func NewGateway(c *Client, marketLimit int, logger *slog.Logger) *Gateway {
	if marketLimit <= 0 {
		marketLimit = pageSize
	}
	return &Gateway{
		client:      c,
		marketLimit: marketLimit,
		logger:      logger.With(slog.String("component", "kalshi_gateway")),
	}
}

// Venue reports VenueKalshi.
func (g *Gateway) Venue() domain.Venue { return domain.VenueKalshi }

// ListMarkets pages through open markets until the cursor runs out or
// marketLimit records have been collected.
func (g *Gateway) ListMarkets(ctx context.Context) ([]domain.MarketRecord, error) {
	var (
		out    []domain.MarketRecord
		cursor string
	)
	for len(out) < g.marketLimit {
		page, err := g.client.GetMarkets(ctx, cursor, min(pageSize, g.marketLimit-len(out)))
		if err != nil {
			return nil, err
		}
		for _, m := range page.Markets {
			out = append(out, m)
		}
		if page.Cursor == "" || len(page.Markets) == 0 {
			break
		}
		cursor = page.Cursor
	}
	g.logger.DebugContext(ctx, "listed markets", slog.Int("count", len(out)))
	return out, nil
}

// GetMarket fetches one market by ticker.
func (g *Gateway) GetMarket(ctx context.Context, ticker string) (domain.MarketRecord, error) {
	m, err := g.client.GetMarket(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetQuote prices each outcome at its best resting bid.
func (g *Gateway) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	book, err := g.client.GetOrderbook(ctx, ticker)
	if err != nil {
		return domain.Quote{}, err
	}
	q := domain.Quote{Yes: bestBid(book.Yes), No: bestBid(book.No)}
	if q.Yes == 0 && q.No == 0 {
		return domain.Quote{}, fmt.Errorf("kalshi: %s: %w", ticker, domain.ErrNoQuote)
	}
	return q, nil
}

// PlaceOrder submits a limit buy. Quantity is floored to whole contracts and
// the price rounded to cents in [1, 99].
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if g.client.privateKey == nil {
		return "", errNoCredentials
	}
	count := decimal.NewFromFloat(req.Quantity).Floor().IntPart()
	cents := decimal.NewFromFloat(req.Price).Mul(hundred).Round(0).IntPart()
	if count < 1 || cents < 1 || cents > 99 {
		return "", fmt.Errorf("kalshi: %s qty=%v price=%v: %w", req.ExternalID, req.Quantity, req.Price, domain.ErrInvalidOrder)
	}

	body := CreateOrderRequest{
		Ticker:        req.ExternalID,
		ClientOrderID: uuid.NewString(),
		Action:        "buy",
		Side:          string(req.Side),
		Count:         count,
		Type:          "limit",
	}
	if req.Side == domain.OutcomeYes {
		body.YesPrice = &cents
	} else {
		body.NoPrice = &cents
	}

	order, err := g.client.CreateOrder(ctx, body)
	if err != nil {
		return "", err
	}
	g.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.OrderID),
		slog.String("ticker", req.ExternalID),
		slog.String("side", string(req.Side)),
		slog.Int64("count", count),
		slog.Int64("price_cents", cents),
	)
	return order.OrderID, nil
}

// CancelOrder cancels a resting order.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	return g.client.CancelOrder(ctx, orderID)
}

// GetOrderStatus reports filled and total contracts with the average fill
// price in dollars.
func (g *Gateway) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderFill, error) {
	o, err := g.client.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderFill{}, err
	}
	return orderFill(o), nil
}

func orderFill(o Order) domain.OrderFill {
	filled := o.FillCount
	if filled == 0 {
		filled = o.TakerFillCount + o.MakerFillCount
	}
	total := o.InitialCount
	if total == 0 {
		total = filled + o.RemainingCount
	}

	fill := domain.OrderFill{
		FilledQty: float64(filled),
		TotalQty:  float64(total),
	}
	if filled == 0 {
		return fill
	}

	cost := decimal.NewFromInt(o.TakerFillCost + o.MakerFillCost)
	if cost.IsZero() {
		limit := o.YesPrice
		if o.Side == string(domain.OutcomeNo) {
			limit = o.NoPrice
		}
		cost = decimal.NewFromInt(limit * filled)
	}
	fill.AvgFillPrice = cost.Div(decimal.NewFromInt(filled)).Div(hundred).InexactFloat64()
	return fill
}

// bestBid returns the highest [price_cents, qty] level with positive size
// as a probability.
func bestBid(levels [][]int) float64 {
	best := 0
	for _, lvl := range levels {
		if len(lvl) < 2 || lvl[1] <= 0 {
			continue
		}
		best = max(best, lvl[0])
	}
	return decimal.NewFromInt(int64(best)).Div(hundred).InexactFloat64()
}
