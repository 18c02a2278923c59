package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/platform/retry"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func noSleep(context.Context, time.Duration) error { return nil }

func newTestGateway(t *testing.T, h http.Handler, opts ...Option) (*Gateway, *rsa.PrivateKey) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	opts = append([]Option{
		WithCredentials("key-id", key),
		WithRetry(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: noSleep}),
		WithLogger(discard()),
	}, opts...)
	c := NewClient(srv.URL+"/trade-api/v2", opts...)
	return NewGateway(c, 0, discard()), key
}

func TestMarketToEvent(t *testing.T) {
	ev, err := Market{
		Ticker:    "KXBTC-24DEC31",
		Title:     "Will Bitcoin reach $100k by end of 2024?",
		Status:    "open",
		CloseTime: "2024-12-31T23:59:00Z",
	}.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, domain.VenueKalshi, ev.Venue)
	assert.Equal(t, "KXBTC-24DEC31", ev.ExternalID)
	assert.Equal(t, "https://kalshi.com/markets/KXBTC-24DEC31", ev.URL)
	assert.True(t, ev.Active)
	require.NotNil(t, ev.CloseTime)
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), *ev.CloseTime)

	ev, err = Market{Ticker: "X", Title: "t", Status: "settled", CloseTime: "soon"}.ToEvent()
	require.NoError(t, err)
	assert.False(t, ev.Active)
	assert.Nil(t, ev.CloseTime)

	_, err = Market{Title: "no ticker"}.ToEvent()
	assert.ErrorIs(t, err, domain.ErrMalformedMarket)
	_, err = Market{Ticker: "X", Title: "  "}.ToEvent()
	assert.ErrorIs(t, err, domain.ErrMalformedMarket)
}

func TestListMarketsPaginatesAndSigns(t *testing.T) {
	var key *rsa.PrivateKey
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/markets", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("status"))

		ts := r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		require.NoError(t, err)
		digest := sha256.Sum256([]byte(ts + r.Method + r.URL.Path))
		assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig,
			&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}))
		assert.Equal(t, "key-id", r.Header.Get("KALSHI-ACCESS-KEY"))

		var resp MarketsResponse
		switch r.URL.Query().Get("cursor") {
		case "":
			resp = MarketsResponse{Markets: []Market{{Ticker: "A", Title: "a"}}, Cursor: "next"}
		case "next":
			resp = MarketsResponse{Markets: []Market{{Ticker: "B", Title: "b"}}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	gw, k := newTestGateway(t, h)
	key = k

	records, err := gw.ListMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	ev, err := records[1].ToEvent()
	require.NoError(t, err)
	assert.Equal(t, "B", ev.ExternalID)
}

func TestGetQuoteUsesBestBids(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/markets/KXBTC/orderbook", r.URL.Path)
		_, _ = io.WriteString(w, `{"orderbook":{"yes":[[52,10],[55,3],[60,0]],"no":[[40,5],[38,9]]}}`)
	})
	gw, _ := newTestGateway(t, h)

	q, err := gw.GetQuote(context.Background(), "KXBTC")
	require.NoError(t, err)
	assert.Equal(t, 0.55, q.Yes)
	assert.Equal(t, 0.40, q.No)
}

func TestGetQuoteEmptyBook(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"orderbook":{"yes":null,"no":null}}`)
	})
	gw, _ := newTestGateway(t, h)

	_, err := gw.GetQuote(context.Background(), "KXBTC")
	assert.ErrorIs(t, err, domain.ErrNoQuote)
}

func TestPlaceOrderPayload(t *testing.T) {
	var got CreateOrderRequest
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/trade-api/v2/portfolio/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"order":{"order_id":"ord-1","status":"resting"}}`)
	})
	gw, _ := newTestGateway(t, h)

	id, err := gw.PlaceOrder(context.Background(), domain.OrderRequest{
		ExternalID: "KXBTC", Side: domain.OutcomeNo, Quantity: 100.7, Price: 0.405,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)

	assert.Equal(t, "KXBTC", got.Ticker)
	assert.Equal(t, "buy", got.Action)
	assert.Equal(t, "no", got.Side)
	assert.Equal(t, "limit", got.Type)
	assert.Equal(t, int64(100), got.Count)
	assert.Nil(t, got.YesPrice)
	require.NotNil(t, got.NoPrice)
	assert.Equal(t, int64(41), *got.NoPrice)
	assert.NotEmpty(t, got.ClientOrderID)
}

func TestPlaceOrderRejectsInvalid(t *testing.T) {
	gw, _ := newTestGateway(t, http.NotFoundHandler())

	_, err := gw.PlaceOrder(context.Background(), domain.OrderRequest{ExternalID: "X", Side: domain.OutcomeYes, Quantity: 0.5, Price: 0.5})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	_, err = gw.PlaceOrder(context.Background(), domain.OrderRequest{ExternalID: "X", Side: domain.OutcomeYes, Quantity: 5, Price: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestPlaceOrderIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	gw, _ := newTestGateway(t, h)

	_, err := gw.PlaceOrder(context.Background(), domain.OrderRequest{ExternalID: "X", Side: domain.OutcomeYes, Quantity: 5, Price: 0.5})
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrderStatus(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/portfolio/orders/ord-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"order":{"order_id":"ord-1","side":"yes","yes_price":55,
			"initial_count":100,"fill_count":40,"remaining_count":60,"taker_fill_cost":2180}}`)
	})
	gw, _ := newTestGateway(t, h)

	fill, err := gw.GetOrderStatus(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, fill.FilledQty)
	assert.Equal(t, 100.0, fill.TotalQty)
	assert.InDelta(t, 0.545, fill.AvgFillPrice, 1e-9)
}

func TestOrderFillFallsBackToLimitPrice(t *testing.T) {
	fill := orderFill(Order{Side: "no", NoPrice: 40, TakerFillCount: 10, MakerFillCount: 5, RemainingCount: 5})
	assert.Equal(t, 15.0, fill.FilledQty)
	assert.Equal(t, 20.0, fill.TotalQty)
	assert.InDelta(t, 0.40, fill.AvgFillPrice, 1e-9)

	assert.Zero(t, orderFill(Order{InitialCount: 10}).AvgFillPrice)
}

func TestStatusMappingAndRetry(t *testing.T) {
	cases := []struct {
		status int
		want   error
		calls  int32
	}{
		{http.StatusNotFound, domain.ErrNotFound, 1},
		{http.StatusUnauthorized, domain.ErrUnauthorized, 1},
		{http.StatusForbidden, domain.ErrUnauthorized, 1},
		{http.StatusTooManyRequests, domain.ErrRateLimited, 3},
		{http.StatusServiceUnavailable, domain.ErrTransient, 3},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			var calls atomic.Int32
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"error":{"code":"x","message":"nope"}}`)
			})
			gw, _ := newTestGateway(t, h)

			_, err := gw.GetMarket(context.Background(), "X")
			assert.ErrorIs(t, err, tc.want)
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, tc.calls, calls.Load())
		})
	}
}

func TestCheckStatusInvalidOrder(t *testing.T) {
	assert.ErrorIs(t, checkStatus(http.StatusBadRequest, nil), domain.ErrInvalidOrder)
	assert.NoError(t, checkStatus(http.StatusCreated, nil))
}

type countingLimiter struct{ waits atomic.Int32 }

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(_ context.Context, key string, limit int, window time.Duration) error {
	l.waits.Add(1)
	return nil
}

func TestRequestsGoThroughLimiter(t *testing.T) {
	lim := &countingLimiter{}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gw, _ := newTestGateway(t, h, WithRateLimiter(lim, 10))

	require.NoError(t, gw.CancelOrder(context.Background(), "ord-1"))
	assert.Equal(t, int32(1), lim.waits.Load())
}
