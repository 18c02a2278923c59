package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// LockManager is an in-process domain.LockManager for single-node runs
// without Redis.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]uint64 // key -> holder generation
	until map[string]time.Time
	gen   uint64
	now   func() time.Time
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager returns an empty lock table.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]uint64),
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Acquire takes key for ttl or returns domain.ErrLockHeld.
func (l *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if _, ok := l.held[key]; ok && now.Before(l.until[key]) {
		return nil, domain.ErrLockHeld
	}
	l.gen++
	gen := l.gen
	l.held[key] = gen
	l.until[key] = now.Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == gen {
				delete(l.held, key)
				delete(l.until, key)
			}
		})
	}, nil
}

// RateLimiter is an in-process sliding-window domain.RateLimiter.
type RateLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter returns an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

// Allow admits one request if fewer than limit were admitted in the window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cutoff := now.Add(-window)
	kept := r.hits[key][:0]
	for _, ts := range r.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= limit {
		r.hits[key] = kept
		return false, nil
	}
	r.hits[key] = append(kept, now)
	return true, nil
}

// Wait blocks until Allow admits a request or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		ok, _ := r.Allow(ctx, key, limit, window)
		if ok {
			return nil
		}
		t := time.NewTimer(window / time.Duration(max(limit, 1)))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
