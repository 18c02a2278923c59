package polymarket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/platform/retry"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL string
	t       transport
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, opts ...Option) *GammaClient {
	return &GammaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		t:       newTransport("polymarket_gamma", opts),
	}
}

// GetMarkets returns one page of open markets.
func (g *GammaClient) GetMarkets(ctx context.Context, limit, offset int) ([]Market, error) {
	params := url.Values{}
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	markets, err := g.get(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}
	return markets, nil
}

// GetMarketBySlug returns a single market looked up by its URL slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (Market, error) {
	params := url.Values{}
	params.Set("slug", slug)

	markets, err := g.get(ctx, "/markets?"+params.Encode())
	if err != nil {
		return Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", slug, err)
	}
	if len(markets) == 0 {
		return Market{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}
	return markets[0], nil
}

func (g *GammaClient) get(ctx context.Context, path string) ([]Market, error) {
	return retry.Value(ctx, g.t.retry, func(ctx context.Context) ([]Market, error) {
		var out []Market
		err := g.t.send(ctx, http.MethodGet, g.baseURL, path, nil, nil, &out)
		return out, err
	})
}
