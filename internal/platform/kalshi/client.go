// Package kalshi is the venue-A gateway: a signed REST client for the
// Kalshi trade API and the domain.VenueGateway built on it.
package kalshi

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
	"github.com/alanyoungcy/crossarb/internal/platform/retry"
)

const venueLabel = string(domain.VenueKalshi)

// Client is the REST client for the Kalshi trade API v2. Requests are
// signed with RSA-PSS when credentials are configured.
type Client struct {
	baseURL    string
	keyID      string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    domain.RateLimiter
	perSecond  int
	retry      retry.Policy
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials sets the API key id and RSA key used to sign requests.
func WithCredentials(keyID string, key *rsa.PrivateKey) Option {
	return func(c *Client) {
		c.keyID = keyID
		c.privateKey = key
	}
}

// WithHTTPClient replaces the default 30s-timeout HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter throttles outgoing requests to perSecond.
func WithRateLimiter(l domain.RateLimiter, perSecond int) Option {
	return func(c *Client) {
		c.limiter = l
		c.perSecond = perSecond
	}
}

// WithRetry sets the backoff policy for idempotent requests.
func WithRetry(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for baseURL, e.g.
// "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.Default(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "kalshi"))
	return c
}

// GetMarkets returns one page of open markets starting at cursor.
func (c *Client) GetMarkets(ctx context.Context, cursor string, limit int) (MarketsResponse, error) {
	q := url.Values{}
	q.Set("status", "open")
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return retry.Value(ctx, c.retry, func(ctx context.Context) (MarketsResponse, error) {
		var out MarketsResponse
		err := c.do(ctx, http.MethodGet, "/markets", q, nil, &out)
		return out, err
	})
}

// GetMarket returns one market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	return retry.Value(ctx, c.retry, func(ctx context.Context) (Market, error) {
		var out MarketResponse
		err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker), nil, nil, &out)
		return out.Market, err
	})
}

// GetOrderbook returns the resting bids for a market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (Orderbook, error) {
	return retry.Value(ctx, c.retry, func(ctx context.Context) (Orderbook, error) {
		var out OrderbookResponse
		err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker)+"/orderbook", nil, nil, &out)
		return out.Orderbook, err
	})
}

// CreateOrder submits an order. It is never retried: a lost response
// could otherwise double the position.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	var out OrderResponse
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, req, &out); err != nil {
		return Order{}, err
	}
	return out.Order, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodDelete, "/portfolio/orders/"+url.PathEscape(orderID), nil, nil, nil)
	})
}

// GetOrder returns the current state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return retry.Value(ctx, c.retry, func(ctx context.Context) (Order, error) {
		var out OrderResponse
		err := c.do(ctx, http.MethodGet, "/portfolio/orders/"+url.PathEscape(orderID), nil, nil, &out)
		return out.Order, err
	})
}

// do sends one request and decodes a 2xx body into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil && c.perSecond > 0 {
		if err := c.limiter.Wait(ctx, venueLabel, c.perSecond, time.Second); err != nil {
			return fmt.Errorf("kalshi: rate limit wait: %w", err)
		}
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("kalshi: parse url: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kalshi: marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("kalshi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.sign(req, u.Path); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.VenueLatency.WithLabelValues(venueLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VenueRequests.WithLabelValues(venueLabel, "transport").Inc()
		if ctx.Err() != nil {
			return fmt.Errorf("kalshi: %s %s: %w", method, path, ctx.Err())
		}
		return fmt.Errorf("kalshi: %s %s: %w: %v", method, path, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.VenueRequests.WithLabelValues(venueLabel, "transport").Inc()
		return fmt.Errorf("kalshi: read response: %w: %v", domain.ErrTransient, err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		metrics.VenueRequests.WithLabelValues(venueLabel, strconv.Itoa(resp.StatusCode)).Inc()
		c.logger.DebugContext(ctx, "request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("kalshi: %s %s: %w", method, path, err)
	}
	metrics.VenueRequests.WithLabelValues(venueLabel, "ok").Inc()

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("kalshi: decode %s: %w", path, err)
	}
	return nil
}

// sign adds the KALSHI-ACCESS-* headers. The signed message is the
// millisecond timestamp, method and URL path without query.
func (c *Client) sign(req *http.Request, path string) error {
	if c.privateKey == nil {
		return nil
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	sig, err := crypto.SignPSS(c.privateKey, ts+req.Method+path)
	if err != nil {
		return fmt.Errorf("kalshi: %w", err)
	}
	req.Header.Set("KALSHI-ACCESS-KEY", c.keyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", sig)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx responses to domain errors.
func checkStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	var env ErrorResponse
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}

	var sentinel error
	switch {
	case status == http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	case status >= 500:
		sentinel = domain.ErrTransient
	case status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		sentinel = domain.ErrInvalidOrder
	default:
		return fmt.Errorf("HTTP %d: %s", status, msg)
	}
	return fmt.Errorf("%w (HTTP %d): %s", sentinel, status, msg)
}

var errNoCredentials = errors.New("kalshi: trading requires api credentials")
