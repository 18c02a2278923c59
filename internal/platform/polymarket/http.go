package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
	"github.com/alanyoungcy/crossarb/internal/platform/retry"
)

const venueLabel = string(domain.VenuePolymarket)

// transport is the HTTP plumbing shared by the Gamma and CLOB clients.
type transport struct {
	httpClient *http.Client
	limiter    domain.RateLimiter
	perSecond  int
	retry      retry.Policy
	logger     *slog.Logger
}

// Option configures a Gamma or CLOB client.
type Option func(*transport)

// WithHTTPClient replaces the default 30s-timeout HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(t *transport) { t.httpClient = hc }
}

// WithRateLimiter throttles outgoing requests to perSecond. Gamma and CLOB
// share one limiter key.
func WithRateLimiter(l domain.RateLimiter, perSecond int) Option {
	return func(t *transport) {
		t.limiter = l
		t.perSecond = perSecond
	}
}

// WithRetry sets the backoff policy for idempotent requests.
func WithRetry(p retry.Policy) Option {
	return func(t *transport) { t.retry = p }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *transport) { t.logger = l }
}

func newTransport(component string, opts []Option) transport {
	t := transport{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.Default(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&t)
	}
	t.logger = t.logger.With(slog.String("component", component))
	return t
}

// send issues one request to baseURL+path with optional extra headers and
// decodes a 2xx JSON body into out.
func (t *transport) send(ctx context.Context, method, baseURL, path string, body []byte, headers map[string]string, out any) error {
	if t.limiter != nil && t.perSecond > 0 {
		if err := t.limiter.Wait(ctx, venueLabel, t.perSecond, time.Second); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	metrics.VenueLatency.WithLabelValues(venueLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VenueRequests.WithLabelValues(venueLabel, "transport").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.VenueRequests.WithLabelValues(venueLabel, "transport").Inc()
		return fmt.Errorf("read response: %w: %v", domain.ErrTransient, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		metrics.VenueRequests.WithLabelValues(venueLabel, strconv.Itoa(resp.StatusCode)).Inc()
		t.logger.DebugContext(ctx, "request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return err
	}
	metrics.VenueRequests.WithLabelValues(venueLabel, "ok").Inc()

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := strings.TrimSpace(string(body))
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w (HTTP %d): %s", domain.ErrTransient, statusCode, bodyStr)
	case statusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
