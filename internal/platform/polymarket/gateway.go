// Package polymarket is the venue-B gateway: Gamma market discovery plus
// CLOB books and orders behind domain.VenueGateway.
package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const pageSize = 100

// Gateway adapts the Gamma and CLOB clients to domain.VenueGateway. Events
// are keyed by slug; the outcome token ids behind a slug are resolved
// through Gamma on first use and cached.
type Gateway struct {
	gamma       *GammaClient
	clob        *ClobClient
	marketLimit int
	logger      *slog.Logger

	mu     sync.RWMutex
	tokens map[string][2]string // slug -> {yes, no}
}

var _ domain.VenueGateway = (*Gateway)(nil)

// NewGateway wires the two clients. marketLimit caps ListMarkets.
func NewGateway(gamma *GammaClient, clob *ClobClient, marketLimit int, logger *slog.Logger) *Gateway {
	if marketLimit <= 0 {
		marketLimit = pageSize
	}
	return &Gateway{
		gamma:       gamma,
		clob:        clob,
		marketLimit: marketLimit,
		logger:      logger.With(slog.String("component", "polymarket_gateway")),
		tokens:      make(map[string][2]string),
	}
}

// Venue reports VenuePolymarket.
func (g *Gateway) Venue() domain.Venue { return domain.VenuePolymarket }

// ListMarkets pages through open Gamma markets up to marketLimit, caching
// each market's token ids along the way.
func (g *Gateway) ListMarkets(ctx context.Context) ([]domain.MarketRecord, error) {
	var out []domain.MarketRecord
	for offset := 0; offset < g.marketLimit; {
		page, err := g.gamma.GetMarkets(ctx, min(pageSize, g.marketLimit-offset), offset)
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			g.remember(m)
			out = append(out, m)
		}
		if len(page) < pageSize {
			break
		}
		offset += len(page)
	}
	g.logger.DebugContext(ctx, "listed markets", slog.Int("count", len(out)))
	return out, nil
}

// GetMarket fetches one market by slug.
func (g *Gateway) GetMarket(ctx context.Context, slug string) (domain.MarketRecord, error) {
	m, err := g.gamma.GetMarketBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	g.remember(m)
	return m, nil
}

// GetQuote prices each outcome at the best bid of its token's book. When
// both books are empty the Gamma outcome prices are used instead.
func (g *Gateway) GetQuote(ctx context.Context, slug string) (domain.Quote, error) {
	yesToken, noToken, err := g.resolve(ctx, slug)
	if err != nil {
		return domain.Quote{}, err
	}

	var yes, no decimal.Decimal
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		b, err := g.clob.GetBook(gctx, yesToken)
		yes = b.BestBid()
		return err
	})
	eg.Go(func() error {
		b, err := g.clob.GetBook(gctx, noToken)
		no = b.BestBid()
		return err
	})
	if err := eg.Wait(); err != nil {
		return domain.Quote{}, err
	}

	q := domain.Quote{Yes: yes.InexactFloat64(), No: no.InexactFloat64()}
	if q.Yes == 0 && q.No == 0 {
		m, err := g.gamma.GetMarketBySlug(ctx, slug)
		if err != nil {
			return domain.Quote{}, err
		}
		q = m.Prices()
	}
	if q.Yes == 0 && q.No == 0 {
		return domain.Quote{}, fmt.Errorf("polymarket: %s: %w", slug, domain.ErrNoQuote)
	}
	return q, nil
}

// PlaceOrder submits a GTC limit buy on the outcome's token. Price and size
// are rounded to cents.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if !g.clob.CanTrade() {
		return "", errNoCredentials
	}
	price := decimal.NewFromFloat(req.Price).Round(2)
	size := decimal.NewFromFloat(req.Quantity).Round(2)
	if !size.IsPositive() || !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return "", fmt.Errorf("polymarket: %s size=%v price=%v: %w", req.ExternalID, req.Quantity, req.Price, domain.ErrInvalidOrder)
	}

	yesToken, noToken, err := g.resolve(ctx, req.ExternalID)
	if err != nil {
		return "", err
	}
	token := yesToken
	if req.Side == domain.OutcomeNo {
		token = noToken
	}

	result, err := g.clob.PostOrder(ctx, OrderPayload{
		TokenID:   token,
		Side:      "BUY",
		Size:      size.String(),
		Price:     price.String(),
		OrderType: "GTC",
		Owner:     g.clob.hmacAuth.Key,
	})
	if err != nil {
		return "", err
	}
	g.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", result.OrderID),
		slog.String("slug", req.ExternalID),
		slog.String("side", string(req.Side)),
		slog.String("size", size.String()),
		slog.String("price", price.String()),
	)
	return result.OrderID, nil
}

// CancelOrder cancels a resting order.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	return g.clob.CancelOrder(ctx, orderID)
}

// GetOrderStatus reports the matched and original size of an order.
func (g *Gateway) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderFill, error) {
	o, err := g.clob.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderFill{}, err
	}
	return o.Fill()
}

func (g *Gateway) remember(m Market) {
	yes, no, err := m.Tokens()
	if err != nil || m.Slug == "" {
		return
	}
	g.mu.Lock()
	g.tokens[m.Slug] = [2]string{yes, no}
	g.mu.Unlock()
}

func (g *Gateway) resolve(ctx context.Context, slug string) (string, string, error) {
	g.mu.RLock()
	ids, ok := g.tokens[slug]
	g.mu.RUnlock()
	if ok {
		return ids[0], ids[1], nil
	}

	m, err := g.gamma.GetMarketBySlug(ctx, slug)
	if err != nil {
		return "", "", err
	}
	yes, no, err := m.Tokens()
	if err != nil {
		return "", "", err
	}
	g.remember(m)
	return yes, no, nil
}
