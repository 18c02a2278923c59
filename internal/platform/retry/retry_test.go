package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type sleeps []time.Duration

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	*s = append(*s, d)
	return nil
}

func TestDoRetriesTransientWithBackoff(t *testing.T) {
	var waited sleeps
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: waited.sleep}

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("kalshi: get: %w", domain.ErrTransient)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, sleeps{time.Second, 2 * time.Second}, waited)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	var waited sleeps
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, Sleep: waited.sleep}

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return domain.ErrUnauthorized
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waited)
}

func TestValueReturnsLastErrorWhenExhausted(t *testing.T) {
	var waited sleeps
	p := Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Sleep: waited.sleep}

	calls := 0
	_, err := Value(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrRateLimited
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 3, calls)
	assert.Len(t, waited, 2)
}

func TestValueStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Value(ctx, Policy{MaxAttempts: 4, BaseDelay: time.Hour}, func(context.Context) (string, error) {
		calls++
		return "", domain.ErrTransient
	})
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 1, calls)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("wrap: %w", domain.ErrTransient)))
	assert.True(t, Retryable(domain.ErrRateLimited))
	assert.False(t, Retryable(domain.ErrNotFound))
	assert.False(t, Retryable(errors.New("boom")))
}
