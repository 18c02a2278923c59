package arbitrage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/venuetest"
)

type recordingCache struct {
	writes map[string]domain.Quote
}

func (c *recordingCache) SetQuote(_ context.Context, v domain.Venue, id string, q domain.Quote, _ time.Time) error {
	c.writes[string(v)+":"+id] = q
	return nil
}

func (c *recordingCache) GetQuote(context.Context, domain.Venue, string) (domain.Quote, time.Time, error) {
	return domain.Quote{}, time.Time{}, domain.ErrNotFound
}

func pair(id, a, b string) domain.VerifiedPair {
	return domain.VerifiedPair{
		ID:     id,
		Active: true,
		EventA: domain.Event{ID: "ea-" + id, Venue: domain.VenueKalshi, ExternalID: a},
		EventB: domain.Event{ID: "eb-" + id, Venue: domain.VenuePolymarket, ExternalID: b},
	}
}

func newDetector(ga, gb domain.VenueGateway, cache domain.QuoteCache) *Detector {
	return NewDetector(DetectorConfig{
		VenueA:        ga,
		VenueB:        gb,
		Quotes:        cache,
		FeeRate:       0.03,
		MinSpread:     0.01,
		TradeSize:     100,
		MaxConcurrent: 2,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestDetectorEvaluate(t *testing.T) {
	ga := venuetest.New(domain.VenueKalshi)
	gb := venuetest.New(domain.VenuePolymarket)
	ga.SetQuote("KXBTC", domain.Quote{Yes: 0.55, No: 0.47})
	gb.SetQuote("0xbtc", domain.Quote{Yes: 0.62, No: 0.40})
	cache := &recordingCache{writes: map[string]domain.Quote{}}

	res := newDetector(ga, gb, cache).Evaluate(context.Background(), pair("p1", "KXBTC", "0xbtc"))
	require.NoError(t, res.Err)
	require.True(t, res.Actionable())
	assert.Equal(t, domain.StrategyAYesBNo, res.Strategy.Kind)
	assert.Equal(t, domain.LegPrices{AYes: 0.55, ANo: 0.47, BYes: 0.62, BNo: 0.40}, res.Prices)
	assert.False(t, res.EvaluatedAt.IsZero())
	assert.Len(t, cache.writes, 2)
}

func TestDetectorBelowMinSpread(t *testing.T) {
	ga := venuetest.New(domain.VenueKalshi)
	gb := venuetest.New(domain.VenuePolymarket)
	// total 0.965: positive spread of ~0.5%, below the 1% threshold.
	ga.SetQuote("A", domain.Quote{Yes: 0.565, No: 0.5})
	gb.SetQuote("B", domain.Quote{Yes: 0.6, No: 0.40})

	res := newDetector(ga, gb, nil).Evaluate(context.Background(), pair("p1", "A", "B"))
	assert.NoError(t, res.Err)
	assert.False(t, res.Actionable())
	assert.Equal(t, 0.565, res.Prices.AYes)
}

func TestDetectorQuoteFailure(t *testing.T) {
	ga := venuetest.New(domain.VenueKalshi)
	gb := venuetest.New(domain.VenuePolymarket)
	ga.SetQuote("A", domain.Quote{Yes: 0.2, No: 0.2})
	gb.FailQuote("B", errors.New("boom"))

	res := newDetector(ga, gb, nil).Evaluate(context.Background(), pair("p1", "A", "B"))
	assert.Error(t, res.Err)
	assert.False(t, res.Actionable())
}

func TestDetectorMonitorIsolatesFailures(t *testing.T) {
	ga := venuetest.New(domain.VenueKalshi)
	gb := venuetest.New(domain.VenuePolymarket)
	ga.SetQuote("A1", domain.Quote{Yes: 0.55, No: 0.47})
	gb.SetQuote("B1", domain.Quote{Yes: 0.62, No: 0.40})
	ga.SetQuote("A2", domain.Quote{Yes: 0.55, No: 0.47})
	gb.FailQuote("B2", errors.New("timeout"))
	ga.SetQuote("A3", domain.Quote{Yes: 0.60, No: 0.42})
	gb.SetQuote("B3", domain.Quote{Yes: 0.58, No: 0.45})

	pairs := []domain.VerifiedPair{pair("p1", "A1", "B1"), pair("p2", "A2", "B2"), pair("p3", "A3", "B3")}
	results := newDetector(ga, gb, nil).Monitor(context.Background(), pairs)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, pairs[i].ID, r.Pair.ID)
	}
	assert.True(t, results[0].Actionable())
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.False(t, results[2].Actionable())

	opps := Opportunities(results)
	require.Len(t, opps, 1)
	assert.Equal(t, "p1", opps[0].Pair.ID)
}
