package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// setIfNewerLua writes the quote hash unless the stored ts is newer.
const setIfNewerLua = `
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[3]) then
    return 0
end
redis.call('HSET', KEYS[1], 'yes', ARGV[1], 'no', ARGV[2], 'ts', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`

// quoteTTL bounds how long an unrefreshed quote survives.
const quoteTTL = 24 * time.Hour

// QuoteCache implements domain.QuoteCache with one hash per venue market:
// fields yes, no and ts (unix nanoseconds).
type QuoteCache struct {
	rdb    *redis.Client
	setNew *redis.Script
}

var _ domain.QuoteCache = (*QuoteCache)(nil)

// NewQuoteCache creates a QuoteCache.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), setNew: redis.NewScript(setIfNewerLua)}
}

func quoteKey(venue domain.Venue, externalID string) string {
	return keyPrefix + "quote:" + string(venue) + ":" + externalID
}

// SetQuote stores q unless a newer quote is already cached.
func (qc *QuoteCache) SetQuote(ctx context.Context, venue domain.Venue, externalID string, q domain.Quote, ts time.Time) error {
	err := qc.setNew.Run(ctx, qc.rdb, []string{quoteKey(venue, externalID)},
		formatFloat(q.Yes), formatFloat(q.No), ts.UnixNano(), quoteTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", venue, externalID, err)
	}
	return nil
}

// GetQuote returns the cached quote, or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue domain.Venue, externalID string) (domain.Quote, time.Time, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(venue, externalID)).Result()
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, externalID, err)
	}
	q, ts, err := parseQuote(vals)
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, externalID, err)
	}
	return q, ts, nil
}

func parseQuote(vals map[string]string) (domain.Quote, time.Time, error) {
	if len(vals) == 0 {
		return domain.Quote{}, time.Time{}, domain.ErrNotFound
	}
	yes, err := strconv.ParseFloat(vals["yes"], 64)
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("parse yes: %w", err)
	}
	no, err := strconv.ParseFloat(vals["no"], 64)
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("parse no: %w", err)
	}
	ns, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, time.Time{}, fmt.Errorf("parse ts: %w", err)
	}
	return domain.Quote{Yes: yes, No: no}, time.Unix(0, ns).UTC(), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
