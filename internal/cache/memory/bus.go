// Package memory provides in-process implementations of the cache
// interfaces, used when Redis is disabled.
package memory

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const subscriberBuffer = 256

type subscriber struct {
	pattern string
	ch      chan []byte
}

// Bus is a process-local SignalBus. Subscribe accepts glob patterns the way
// Redis PSUBSCRIBE does. Slow subscribers drop messages rather than block
// publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	streams map[string][]domain.StreamMessage
	seq     int64
	maxLen  int
}

var _ domain.SignalBus = (*Bus)(nil)

// NewBus creates a bus whose streams keep at most maxLen entries.
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Bus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every subscriber whose pattern matches channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads for channels matching pattern. The
// channel closes when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, pattern string) (<-chan []byte, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("memory bus: bad pattern %q: %w", pattern, err)
	}
	s := &subscriber{pattern: pattern, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// StreamAppend appends payload to a bounded stream.
func (b *Bus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      fmt.Sprintf("%d-%d", time.Now().UnixMilli(), b.seq),
		Payload: payload,
	})
	if len(msgs) > b.maxLen {
		msgs = msgs[len(msgs)-b.maxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count entries after lastID. Use "0" or "" to read
// from the start.
func (b *Bus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.streams[stream]
	start := 0
	if lastID != "" && lastID != "0" {
		start = len(msgs)
		for i, m := range msgs {
			if m.ID == lastID {
				start = i + 1
				break
			}
		}
	}
	out := append([]domain.StreamMessage(nil), msgs[start:]...)
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out, nil
}
