package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestPreTradeCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	positions := NewPositionService(f.stores, nil, nil, discardLogger())
	risk := NewRiskService(positions, RiskConfig{MaxTradeSize: 1000, MaxPositionPerMarket: 600}, discardLogger())

	pair := domain.VerifiedPair{ID: "p", EventAID: "e1", EventBID: "e2"}
	strat := domain.ArbitrageStrategy{PriceA: 0.55, PriceB: 0.40}

	require.NoError(t, risk.PreTradeCheck(ctx, pair, strat, 1000))
	assert.ErrorIs(t, risk.PreTradeCheck(ctx, pair, strat, 1500), domain.ErrRiskLimit)
	assert.ErrorIs(t, risk.PreTradeCheck(ctx, pair, strat, 0), domain.ErrRiskLimit)

	// 200 contracts at 0.50 already held on venue A's event.
	_, err := positions.ApplyFill(ctx, domain.Order{
		Venue: domain.VenueKalshi, EventID: "e1", Side: domain.OutcomeYes,
		Status: domain.OrderStatusFilled, FilledSize: 200, AvgFillPrice: 0.50,
	})
	require.NoError(t, err)

	// 100 + 0.55*1000 = 650 > 600.
	assert.ErrorIs(t, risk.PreTradeCheck(ctx, pair, strat, 1000), domain.ErrRiskLimit)
	assert.NoError(t, risk.PreTradeCheck(ctx, pair, strat, 500))
}
