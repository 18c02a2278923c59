package kalshi

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// MarketURLBase prefixes a ticker to form the public market page.
const MarketURLBase = "https://kalshi.com/markets/"

// Market is a Kalshi market as returned by GET /markets. Prices are cents.
type Market struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Status      string `json:"status"`
	CloseTime   string `json:"close_time"`
	YesBid      int    `json:"yes_bid"`
	YesAsk      int    `json:"yes_ask"`
	NoBid       int    `json:"no_bid"`
	NoAsk       int    `json:"no_ask"`
	LastPrice   int    `json:"last_price"`
	Volume      int64  `json:"volume"`
}

var _ domain.MarketRecord = Market{}

// ToEvent validates the record and maps it to the shared Event shape. A
// missing ticker or title is malformed; an unparseable close time is
// dropped rather than failing the record.
func (m Market) ToEvent() (domain.Event, error) {
	ticker := strings.TrimSpace(m.Ticker)
	title := strings.TrimSpace(m.Title)
	if ticker == "" || title == "" {
		return domain.Event{}, fmt.Errorf("kalshi: market %q: %w", m.Ticker, domain.ErrMalformedMarket)
	}

	ev := domain.Event{
		Venue:      domain.VenueKalshi,
		ExternalID: ticker,
		Title:      title,
		URL:        MarketURLBase + ticker,
		Active:     m.Status == "open" || m.Status == "active",
	}
	if m.CloseTime != "" {
		if ct, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
			ct = ct.UTC()
			ev.CloseTime = &ct
		}
	}
	return ev, nil
}

// MarketsResponse is one page of GET /markets.
type MarketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// MarketResponse wraps GET /markets/{ticker}.
type MarketResponse struct {
	Market Market `json:"market"`
}

// Orderbook holds resting bids per side as [price_cents, quantity] levels.
// Kalshi sends null for an empty side.
type Orderbook struct {
	Yes [][]int `json:"yes"`
	No  [][]int `json:"no"`
}

// OrderbookResponse wraps GET /markets/{ticker}/orderbook.
type OrderbookResponse struct {
	Orderbook Orderbook `json:"orderbook"`
}

// CreateOrderRequest is the body of POST /portfolio/orders.
type CreateOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Action        string `json:"action"`
	Side          string `json:"side"`
	Count         int64  `json:"count"`
	Type          string `json:"type"`
	YesPrice      *int64 `json:"yes_price,omitempty"`
	NoPrice       *int64 `json:"no_price,omitempty"`
}

// Order is a Kalshi order. Fill costs are in cents.
type Order struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	InitialCount   int64  `json:"initial_count"`
	FillCount      int64  `json:"fill_count"`
	RemainingCount int64  `json:"remaining_count"`
	TakerFillCount int64  `json:"taker_fill_count"`
	MakerFillCount int64  `json:"maker_fill_count"`
	TakerFillCost  int64  `json:"taker_fill_cost"`
	MakerFillCost  int64  `json:"maker_fill_cost"`
}

// OrderResponse wraps order create/get/cancel responses.
type OrderResponse struct {
	Order Order `json:"order"`
}

// ErrorResponse is Kalshi's error envelope.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
