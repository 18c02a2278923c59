package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestLockManager(t *testing.T) {
	now := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	l := NewLockManager()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "orchestrator", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "orchestrator", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	unlock2, err := l.Acquire(ctx, "orchestrator", time.Minute)
	require.NoError(t, err)

	// A stale unlock must not release the new holder.
	unlock()
	_, err = l.Acquire(ctx, "orchestrator", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	now = now.Add(2 * time.Minute)
	_, err = l.Acquire(ctx, "orchestrator", time.Minute)
	assert.NoError(t, err, "expired locks can be taken over")
	unlock2()
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	r := NewRateLimiter()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		ok, err := r.Allow(ctx, "kalshi", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := r.Allow(ctx, "kalshi", 3, time.Second)
	assert.False(t, ok)
	ok, _ = r.Allow(ctx, "polymarket", 3, time.Second)
	assert.True(t, ok, "keys are independent")

	now = now.Add(1100 * time.Millisecond)
	ok, _ = r.Allow(ctx, "kalshi", 3, time.Second)
	assert.True(t, ok)
}
