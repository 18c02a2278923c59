package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/store/memstore"
	"github.com/alanyoungcy/crossarb/internal/venuetest"
)

var errVenueDown = errors.New("venue down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fillLog records every order handed to the position manager.
type fillLog struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (f *fillLog) ApplyFill(ctx context.Context, o domain.Order) (domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return domain.Position{Venue: o.Venue, EventID: o.EventID, Side: o.Side, Quantity: o.FilledSize}, nil
}

func (f *fillLog) all() []domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Order(nil), f.orders...)
}

type fixture struct {
	stores domain.Stores
	gwA    *venuetest.Gateway
	gwB    *venuetest.Gateway
	fills  *fillLog
}

func newFixture() fixture {
	return fixture{
		stores: memstore.New().Stores(),
		gwA:    venuetest.New(domain.VenueKalshi),
		gwB:    venuetest.New(domain.VenuePolymarket),
		fills:  &fillLog{},
	}
}

// request inserts an opportunity for a 0.55 YES / 0.40 NO hedge and returns
// the matching execution request.
func (f fixture) request(t *testing.T, size float64) Request {
	t.Helper()
	pair := domain.VerifiedPair{
		ID:       "pair-1",
		EventAID: "ev-a",
		EventBID: "ev-b",
		Active:   true,
		EventA:   domain.Event{ID: "ev-a", Venue: domain.VenueKalshi, ExternalID: "KXBTC-24DEC31"},
		EventB:   domain.Event{ID: "ev-b", Venue: domain.VenuePolymarket, ExternalID: "btc-100k-2024"},
	}
	strat := domain.ArbitrageStrategy{
		Kind:   domain.StrategyAYesBNo,
		SideA:  domain.OutcomeYes,
		SideB:  domain.OutcomeNo,
		PriceA: 0.55,
		PriceB: 0.40,
	}
	opp := domain.ArbitrageOpportunity{
		ID:         "opp-" + uuid.New().String(),
		PairID:     pair.ID,
		DetectedAt: time.Now(),
		Kind:       strat.Kind,
	}
	require.NoError(t, f.stores.Opportunities.Insert(context.Background(), opp))
	return Request{Pair: pair, Strategy: strat, Opportunity: opp, Size: size}
}

func (f fixture) live() *LiveEngine {
	return NewLiveEngine(LiveConfig{
		VenueA:       f.gwA,
		VenueB:       f.gwB,
		Stores:       f.stores,
		Positions:    f.fills,
		FeeRate:      0.03,
		PollInterval: time.Millisecond,
		FillTimeout:  30 * time.Millisecond,
		Logger:       discardLogger(),
	})
}

func (f fixture) audits(t *testing.T, event string) []domain.AuditEntry {
	t.Helper()
	all, err := f.stores.Audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	var out []domain.AuditEntry
	for _, e := range all {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
