package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestBusPatternDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBus(0)

	all, err := b.Subscribe(ctx, "*")
	require.NoError(t, err)
	pairs, err := b.Subscribe(ctx, domain.ChannelPairs)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, domain.ChannelOpportunities, []byte("opp")))
	require.NoError(t, b.Publish(ctx, domain.ChannelPairs, []byte("pair")))

	assert.Equal(t, []byte("opp"), <-all)
	assert.Equal(t, []byte("pair"), <-all)
	assert.Equal(t, []byte("pair"), <-pairs)

	cancel()
	select {
	case _, ok := <-pairs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestBusStreams(t *testing.T) {
	ctx := context.Background()
	b := NewBus(2)
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, b.StreamAppend(ctx, "s", []byte(p)))
	}
	msgs, err := b.StreamRead(ctx, "s", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", string(msgs[0].Payload))

	rest, err := b.StreamRead(ctx, "s", msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Payload))
}

func TestQuoteCacheKeepsNewest(t *testing.T) {
	ctx := context.Background()
	c := NewQuoteCache()
	t0 := time.Now()
	require.NoError(t, c.SetQuote(ctx, domain.VenueKalshi, "K", domain.Quote{Yes: 0.4}, t0))
	require.NoError(t, c.SetQuote(ctx, domain.VenueKalshi, "K", domain.Quote{Yes: 0.3}, t0.Add(-time.Second)))
	q, ts, err := c.GetQuote(ctx, domain.VenueKalshi, "K")
	require.NoError(t, err)
	assert.Equal(t, 0.4, q.Yes)
	assert.Equal(t, t0, ts)

	_, _, err = c.GetQuote(ctx, domain.VenuePolymarket, "K")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
