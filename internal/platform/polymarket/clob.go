package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/platform/retry"
)

var errNoCredentials = errors.New("polymarket/clob: trading requires L2 credentials")

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API: books, order placement, cancellation and status.
type ClobClient struct {
	baseURL  string
	t        transport
	signer   *crypto.Signer
	hmacAuth *crypto.HMACAuth
	now      func() time.Time
}

// NewClobClient creates a CLOB client. signer and auth may be nil for a
// read-only client; DeriveAPIKey fills auth from signer.
func NewClobClient(baseURL string, signer *crypto.Signer, auth *crypto.HMACAuth, opts ...Option) *ClobClient {
	return &ClobClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		t:        newTransport("polymarket_clob", opts),
		signer:   signer,
		hmacAuth: auth,
		now:      time.Now,
	}
}

// CanTrade reports whether L2 credentials are available.
func (c *ClobClient) CanTrade() bool {
	return c.signer != nil && c.hmacAuth != nil
}

// GetBook returns the order book for one outcome token.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (Book, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	book, err := retry.Value(ctx, c.t.retry, func(ctx context.Context) (Book, error) {
		var out Book
		err := c.t.send(ctx, http.MethodGet, c.baseURL, "/book?"+params.Encode(), nil, nil, &out)
		return out, err
	})
	if err != nil {
		return Book{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	return book, nil
}

// PostOrder submits a limit order. It is never retried.
func (c *ClobClient) PostOrder(ctx context.Context, order OrderPayload) (OrderResult, error) {
	var result OrderResult
	if err := c.doAuthenticated(ctx, http.MethodPost, "/order", order, &result); err != nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: order rejected: %s", result.ErrorMsg)
	}
	return result, nil
}

// CancelOrder cancels a single order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]string{"orderID": orderID}
	err := retry.Do(ctx, c.t.retry, func(ctx context.Context) error {
		return c.doAuthenticated(ctx, http.MethodDelete, "/order", body, nil)
	})
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetOrder retrieves a single order by ID.
func (c *ClobClient) GetOrder(ctx context.Context, orderID string) (Order, error) {
	order, err := retry.Value(ctx, c.t.retry, func(ctx context.Context) (Order, error) {
		var out Order
		err := c.doAuthenticated(ctx, http.MethodGet, "/data/order/"+url.PathEscape(orderID), nil, &out)
		return out, err
	})
	if err != nil {
		return Order{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}
	return order, nil
}

// DeriveAPIKey runs the L1 auth flow: it signs a ClobAuth message and
// exchanges it for L2 credentials, which the client keeps.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (APICredentials, error) {
	if c.signer == nil {
		return APICredentials{}, errors.New("polymarket/clob: derive api key: no wallet signer")
	}
	ts := c.now().Unix()
	const nonce = 0

	sig, err := c.signer.SignAuthMessage(ts, nonce)
	if err != nil {
		return APICredentials{}, fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}
	headers := map[string]string{
		"POLY_ADDRESS":   c.signer.Address().Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": strconv.FormatInt(ts, 10),
		"POLY_NONCE":     strconv.Itoa(nonce),
	}

	var creds APICredentials
	if err := c.t.send(ctx, http.MethodGet, c.baseURL, "/auth/derive-api-key", nil, headers, &creds); err != nil {
		return APICredentials{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	c.hmacAuth = &crypto.HMACAuth{Key: creds.APIKey, Secret: creds.Secret, Passphrase: creds.Passphrase}
	return creds, nil
}

// doAuthenticated sends a request carrying L2 HMAC headers.
func (c *ClobClient) doAuthenticated(ctx context.Context, method, path string, body, out any) error {
	if !c.CanTrade() {
		return errNoCredentials
	}

	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	headers := c.hmacAuth.L2HeadersAt(c.signer.Address().Hex(), method, path, string(raw), c.now().Unix())
	return c.t.send(ctx, method, c.baseURL, path, raw, headers, out)
}
