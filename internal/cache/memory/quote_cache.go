package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type quoteEntry struct {
	q  domain.Quote
	ts time.Time
}

// QuoteCache keeps the latest quote per venue market in a map.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]quoteEntry
}

var _ domain.QuoteCache = (*QuoteCache)(nil)

// NewQuoteCache returns an empty cache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{quotes: make(map[string]quoteEntry)}
}

func quoteKey(venue domain.Venue, externalID string) string {
	return string(venue) + ":" + externalID
}

// SetQuote stores q unless a newer quote is already present.
func (c *QuoteCache) SetQuote(ctx context.Context, venue domain.Venue, externalID string, q domain.Quote, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := quoteKey(venue, externalID)
	if cur, ok := c.quotes[k]; ok && cur.ts.After(ts) {
		return nil
	}
	c.quotes[k] = quoteEntry{q: q, ts: ts}
	return nil
}

// GetQuote returns the cached quote and its timestamp.
func (c *QuoteCache) GetQuote(ctx context.Context, venue domain.Venue, externalID string) (domain.Quote, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.quotes[quoteKey(venue, externalID)]
	if !ok {
		return domain.Quote{}, time.Time{}, domain.ErrNotFound
	}
	return e.q, e.ts, nil
}
