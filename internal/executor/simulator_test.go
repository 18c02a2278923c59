package executor

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// scriptedSource makes rand.Float64 return the scripted values in order.
type scriptedSource struct {
	vals []float64
	i    int
}

func (s *scriptedSource) Int63() int64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return int64(v * (1 << 63))
}

func (s *scriptedSource) Seed(int64) {}

func (f fixture) sim(src rand.Source, partialProb float64, balance float64) *SimulatedEngine {
	return NewSimulatedEngine(SimConfig{
		Stores:                 f.stores,
		Positions:              f.fills,
		FeeRate:                0.03,
		SlippageMax:            0.005,
		PartialFillProbability: partialProb,
		StartingBalance:        balance,
		ImbalancePenaltyRate:   0.1,
		Rand:                   rand.New(src),
		Logger:                 discardLogger(),
	})
}

func TestSimFullFillNoSlippage(t *testing.T) {
	f := newFixture()
	req := f.request(t, 100)
	eng := f.sim(&scriptedSource{vals: []float64{0, 0.99}}, 0.1, 10000)

	res, err := eng.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.InDelta(t, 2.15, res.RealizedPnL, 1e-9)
	assert.Equal(t, domain.OrderStatusFilled, res.LegA.Status)
	assert.Equal(t, domain.OrderStatusFilled, res.LegB.Status)
	assert.Empty(t, f.gwA.Placed(), "simulation never calls a venue")

	stats := eng.Stats()
	assert.Equal(t, 1, stats.TotalTrades)
	assert.Equal(t, 1, stats.SuccessfulTrades)
	assert.Equal(t, 1.0, stats.WinRate)
	assert.InDelta(t, 10002.15, stats.CurrentBalance, 1e-9)
	assert.InDelta(t, 2.15, stats.AvgProfit, 1e-9)

	opp, err := f.stores.Opportunities.GetByID(context.Background(), req.Opportunity.ID)
	require.NoError(t, err)
	assert.True(t, opp.Executed)
}

func TestSimImbalancePenalised(t *testing.T) {
	f := newFixture()
	req := f.request(t, 100)
	// Leg A: no slippage, full fill. Leg B: no slippage, partial fill at 70%.
	src := &scriptedSource{vals: []float64{0, 0.9, 0, 0.1, 0}}
	eng := f.sim(src, 0.5, 10000)

	res, err := eng.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, StatusPartial, res.Status)
	assert.InDelta(t, 100, res.LegA.FilledSize, 1e-9)
	assert.InDelta(t, 70, res.LegB.FilledSize, 1e-9)
	assert.Equal(t, domain.OrderStatusCancelled, res.LegB.Status)

	// matched 70: 70 - 66.5 - 1.995, then 30 * 0.1 penalty.
	assert.InDelta(t, 1.505-3, res.RealizedPnL, 1e-9)

	stats := eng.Stats()
	assert.Equal(t, 1, stats.FailedTrades)
	assert.Equal(t, 0.0, stats.WinRate)
	assert.InDelta(t, 10000+1.505-3, stats.CurrentBalance, 1e-9)
	assert.Zero(t, stats.AvgProfit, "average is over successful trades only")

	// The partial leg reached the position manager before it was cancelled.
	fills := f.fills.all()
	require.Len(t, fills, 2)
	assert.Equal(t, domain.OrderStatusPartial, fills[1].Status)
}

func TestSimSmallImbalanceStillSucceeds(t *testing.T) {
	f := newFixture()
	req := f.request(t, 100)
	// Both legs partial: A at 0.70 + 0.25*0.2 = 75%, B at 70%.
	src := &scriptedSource{vals: []float64{0, 0.1, 0.2, 0, 0.1, 0}}
	eng := f.sim(src, 0.5, 10000)

	res, err := eng.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.InDelta(t, 75, res.LegA.FilledSize, 1e-9)
	assert.InDelta(t, 70, res.LegB.FilledSize, 1e-9)
	assert.InDelta(t, 1.505, res.RealizedPnL, 1e-9)
}

func TestSimSlippageRaisesFillPrice(t *testing.T) {
	f := newFixture()
	req := f.request(t, 100)
	eng := f.sim(&scriptedSource{vals: []float64{0.5, 0.99}}, 0.1, 10000)

	res, err := eng.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.InDelta(t, 0.55*1.0025, res.LegA.AvgFillPrice, 1e-9)
	assert.InDelta(t, 0.40*1.0025, res.LegB.AvgFillPrice, 1e-9)
	assert.Less(t, res.RealizedPnL, 2.15)
}

func TestSimInsufficientBalance(t *testing.T) {
	f := newFixture()
	req := f.request(t, 100)
	eng := f.sim(&scriptedSource{vals: []float64{0}}, 0, 50)

	res, err := eng.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, domain.ErrInsufficientBalance.Error())
	assert.Nil(t, res.LegA)

	stats := eng.Stats()
	assert.Equal(t, 1, stats.TotalTrades)
	assert.Equal(t, 1, stats.FailedTrades)
	assert.Equal(t, 50.0, stats.CurrentBalance)

	orders, err := f.stores.Orders.ListByOpportunity(context.Background(), req.Opportunity.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSimResetStats(t *testing.T) {
	f := newFixture()
	eng := f.sim(rand.NewSource(7), 0.1, 10000)

	for range 3 {
		_, err := eng.Execute(context.Background(), f.request(t, 10))
		require.NoError(t, err)
	}
	require.Equal(t, 3, eng.Stats().TotalTrades)

	eng.ResetStats()
	stats := eng.Stats()
	assert.Zero(t, stats.TotalTrades)
	assert.Zero(t, stats.TotalPnL)
	assert.Equal(t, 10000.0, stats.CurrentBalance)
}

func TestSimSeededRunsAreReproducible(t *testing.T) {
	run := func() []float64 {
		f := newFixture()
		eng := f.sim(rand.NewSource(42), 0.5, 10000)
		var pnls []float64
		for range 5 {
			res, err := eng.Execute(context.Background(), f.request(t, 100))
			require.NoError(t, err)
			pnls = append(pnls, res.RealizedPnL)
		}
		return pnls
	}
	assert.Equal(t, run(), run())
}
