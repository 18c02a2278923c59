package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/venuetest"
)

func TestCatalogRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	ga := venuetest.New(domain.VenueKalshi)
	ga.SetMarkets(
		venuetest.Record{Event: domain.Event{ExternalID: "KX1", Title: "Bitcoin above 70k", Active: true}},
		venuetest.Record{Err: domain.ErrMalformedMarket},
		venuetest.Record{Event: domain.Event{ExternalID: "", Title: "no id"}},
	)
	gb := venuetest.New(domain.VenuePolymarket)
	gb.SetMarkets(venuetest.Record{Event: domain.Event{ExternalID: "0x1", Title: "Bitcoin above 70k", Active: true}})

	svc := NewCatalogService(f.stores.Events, f.bus, discardLogger(), ga, gb)
	res, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted[domain.VenueKalshi])
	assert.Equal(t, 1, res.Upserted[domain.VenuePolymarket])
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, res.Failed)

	ev, err := f.stores.Events.GetByExternalID(ctx, domain.VenueKalshi, "KX1")
	require.NoError(t, err)
	assert.Equal(t, domain.VenueKalshi, ev.Venue)
}

func TestCatalogRefreshVenueFailureIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	ga := venuetest.New(domain.VenueKalshi)
	ga.FailList(errors.New("503"))
	gb := venuetest.New(domain.VenuePolymarket)
	gb.SetMarkets(venuetest.Record{Event: domain.Event{ExternalID: "0x1", Title: "t", Active: true}})

	res, err := NewCatalogService(f.stores.Events, nil, discardLogger(), ga, gb).Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Venue{domain.VenueKalshi}, res.Failed)
	assert.Equal(t, 1, res.Upserted[domain.VenuePolymarket])
}
