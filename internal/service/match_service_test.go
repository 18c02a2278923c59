package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func newMatchService(f fixture) *MatchService {
	return NewMatchService(f.stores, f.bus, MatchConfig{MinSimilarity: 75, TimeWindow: 24 * time.Hour}, discardLogger())
}

func bitcoinEvents(t *testing.T, f fixture) (a, b domain.Event) {
	closeA := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	closeB := time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)
	out := f.seed(t,
		domain.Event{Venue: domain.VenueKalshi, ExternalID: "KXBTC", Title: "Will Bitcoin be above $70,000 on Dec 31, 2025?", CloseTime: &closeA, Active: true},
		domain.Event{Venue: domain.VenuePolymarket, ExternalID: "btc-70k", Title: "Will Bitcoin trade above $70,000 on December 31, 2025?", CloseTime: &closeB, Active: true},
		domain.Event{Venue: domain.VenuePolymarket, ExternalID: "fed", Title: "Fed cuts rates in March", Active: true},
	)
	return out[0], out[1]
}

func TestFindCandidatesExcludesPairedAndRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newMatchService(f)
	a, b := bitcoinEvents(t, f)

	got, err := svc.FindCandidates(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].EventA.ID)
	assert.Equal(t, b.ID, got[0].EventB.ID)

	require.NoError(t, svc.RejectCandidate(ctx, a.ID, b.ID, "ops"))
	got, err = svc.FindCandidates(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVerifyPairIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newMatchService(f)
	a, b := bitcoinEvents(t, f)

	p1, err := svc.VerifyPair(ctx, a.ID, b.ID, "alice", "")
	require.NoError(t, err)
	p2, err := svc.VerifyPair(ctx, a.ID, b.ID, "bob", "again")
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "alice", p2.ApprovedBy)

	pairs, err := svc.ListActivePairs(ctx)
	require.NoError(t, err)
	assert.Len(t, pairs, 1)

	got, err := svc.FindCandidates(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVerifyPairRejectsWrongVenues(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newMatchService(f)
	a, b := bitcoinEvents(t, f)

	_, err := svc.VerifyPair(ctx, b.ID, a.ID, "alice", "")
	assert.ErrorIs(t, err, domain.ErrInvalidPair)
	_, err = svc.VerifyPair(ctx, a.ID, "missing", "alice", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeactivatePair(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newMatchService(f)
	a, b := bitcoinEvents(t, f)

	p, err := svc.VerifyPair(ctx, a.ID, b.ID, "alice", "")
	require.NoError(t, err)
	require.NoError(t, svc.DeactivatePair(ctx, p.ID))
	assert.NoError(t, svc.DeactivatePair(ctx, "does-not-exist"))

	pairs, err := svc.ListActivePairs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	// Re-verifying after deactivation creates a fresh pair.
	p2, err := svc.VerifyPair(ctx, a.ID, b.ID, "alice", "")
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, p2.ID)
}

func TestImportPairs(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newMatchService(f)
	bitcoinEvents(t, f)

	doc := `
pairs:
  - kalshi: KXBTC
    polymarket: btc-70k
    notes: seeded
  - kalshi: UNKNOWN
    polymarket: fed
`
	n, err := svc.ImportPairs(ctx, strings.NewReader(doc), "seed")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pairs, err := svc.ListActivePairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "seeded", pairs[0].Notes)

	entries, err := f.stores.Audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "pair_verified", entries[0].Event)
}
