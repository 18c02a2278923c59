package polymarket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// MarketURLBase prefixes a slug to form the public market page.
const MarketURLBase = "https://polymarket.com/market/"

// flexBool unmarshals from JSON bool or string ("true"/"false") since Gamma
// is inconsistent about which it sends.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// jsonList is a string-encoded JSON array, e.g. "[\"Yes\",\"No\"]". Gamma
// also sends real arrays on some endpoints; both decode.
type jsonList []string

func (l *jsonList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return fmt.Errorf("polymarket: decode embedded list: %w", err)
	}
	*l = arr
	return nil
}

// Market is a Polymarket market as returned by the Gamma API.
type Market struct {
	ID            string   `json:"id"`
	ConditionID   string   `json:"conditionId"`
	Slug          string   `json:"slug"`
	Question      string   `json:"question"`
	EndDate       string   `json:"endDate"`
	Active        flexBool `json:"active"`
	Closed        flexBool `json:"closed"`
	Outcomes      jsonList `json:"outcomes"`
	OutcomePrices jsonList `json:"outcomePrices"`
	ClobTokenIDs  jsonList `json:"clobTokenIds"`
	Volume        string   `json:"volume"`
}

var _ domain.MarketRecord = Market{}

// ToEvent validates the record and maps it to the shared Event shape keyed
// by slug. A missing slug or question is malformed.
func (m Market) ToEvent() (domain.Event, error) {
	slug := strings.TrimSpace(m.Slug)
	question := strings.TrimSpace(m.Question)
	if slug == "" || question == "" {
		return domain.Event{}, fmt.Errorf("polymarket: market %q: %w", m.ID, domain.ErrMalformedMarket)
	}

	ev := domain.Event{
		Venue:      domain.VenuePolymarket,
		ExternalID: slug,
		Title:      question,
		URL:        MarketURLBase + slug,
		Active:     bool(m.Active) && !bool(m.Closed),
	}
	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			t = t.UTC()
			ev.CloseTime = &t
		}
	}
	return ev, nil
}

// Tokens returns the CLOB token ids for the Yes and No outcomes.
func (m Market) Tokens() (yes, no string, err error) {
	if len(m.ClobTokenIDs) != 2 {
		return "", "", fmt.Errorf("polymarket: market %s has %d tokens: %w", m.Slug, len(m.ClobTokenIDs), domain.ErrMalformedMarket)
	}
	yesIdx, noIdx := 0, 1
	if len(m.Outcomes) == 2 && strings.EqualFold(m.Outcomes[0], "no") {
		yesIdx, noIdx = 1, 0
	}
	return m.ClobTokenIDs[yesIdx], m.ClobTokenIDs[noIdx], nil
}

// Prices returns the Gamma mid prices for Yes and No. Missing or
// unparseable entries read as zero.
func (m Market) Prices() domain.Quote {
	var q domain.Quote
	if len(m.OutcomePrices) != 2 {
		return q
	}
	parse := func(s string) float64 {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	}
	q.Yes, q.No = parse(m.OutcomePrices[0]), parse(m.OutcomePrices[1])
	if len(m.Outcomes) == 2 && strings.EqualFold(m.Outcomes[0], "no") {
		q.Yes, q.No = q.No, q.Yes
	}
	return q
}

// Level is one price level of a CLOB book; both fields are decimal strings.
type Level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Book is the CLOB order book for one token.
type Book struct {
	Market  string  `json:"market"`
	AssetID string  `json:"asset_id"`
	Bids    []Level `json:"bids"`
	Asks    []Level `json:"asks"`
}

// BestBid returns the highest bid with positive size, or zero.
func (b Book) BestBid() decimal.Decimal {
	best := decimal.Zero
	for _, lvl := range b.Bids {
		p, perr := decimal.NewFromString(lvl.Price)
		s, serr := decimal.NewFromString(lvl.Size)
		if perr != nil || serr != nil || !s.IsPositive() {
			continue
		}
		if p.GreaterThan(best) {
			best = p
		}
	}
	return best
}

// OrderPayload is the body of POST /order.
type OrderPayload struct {
	TokenID   string `json:"tokenID"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Price     string `json:"price"`
	OrderType string `json:"orderType"`
	Owner     string `json:"owner"`
}

// OrderResult is the response of POST /order.
type OrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// Order is an order as returned by GET /data/order/{id}.
type Order struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

// Fill converts the order's decimal strings into an OrderFill. Matches
// execute at the limit price or better; the limit is reported.
func (o Order) Fill() (domain.OrderFill, error) {
	total, err := decimal.NewFromString(o.OriginalSize)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("polymarket: order %s original_size %q: %w", o.ID, o.OriginalSize, err)
	}
	matched := decimal.Zero
	if o.SizeMatched != "" {
		if matched, err = decimal.NewFromString(o.SizeMatched); err != nil {
			return domain.OrderFill{}, fmt.Errorf("polymarket: order %s size_matched %q: %w", o.ID, o.SizeMatched, err)
		}
	}
	fill := domain.OrderFill{
		FilledQty: matched.InexactFloat64(),
		TotalQty:  total.InexactFloat64(),
	}
	if matched.IsPositive() {
		if price, err := decimal.NewFromString(o.Price); err == nil {
			fill.AvgFillPrice = price.InexactFloat64()
		}
	}
	return fill, nil
}

// APICredentials are the L2 credentials returned by the key derivation flow.
type APICredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}
