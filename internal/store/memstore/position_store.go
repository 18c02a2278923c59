package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PositionStore implements domain.PositionStore.
type PositionStore struct{ db *DB }

var _ domain.PositionStore = (*PositionStore)(nil)

// Get returns the position for (venue, event, side).
func (s *PositionStore) Get(ctx context.Context, venue domain.Venue, eventID string, side domain.Outcome) (domain.Position, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	id, ok := s.db.positionKeys[positionKey{venue, eventID, side}]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return s.db.positions[id], nil
}

// GetByID returns a position by id.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	p, ok := s.db.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

// Upsert writes the position keyed by (venue, event, side).
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) (domain.Position, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := positionKey{p.Venue, p.EventID, p.Side}
	if id, ok := s.db.positionKeys[key]; ok {
		p.ID = id
		s.db.positions[id] = p
		return p, nil
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	s.db.positions[p.ID] = p
	s.db.positionKeys[key] = p.ID
	s.db.posOrder = append(s.db.posOrder, p.ID)
	return p, nil
}

// List returns positions in open order.
func (s *PositionStore) List(ctx context.Context, openOnly bool) ([]domain.Position, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.Position
	for _, id := range s.db.posOrder {
		p := s.db.positions[id]
		if openOnly && !p.Open() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ListByEvents returns positions on any of the given events.
func (s *PositionStore) ListByEvents(ctx context.Context, eventIDs []string) ([]domain.Position, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	want := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = struct{}{}
	}
	var out []domain.Position
	for _, id := range s.db.posOrder {
		if p := s.db.positions[id]; hasKey(want, p.EventID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}

// AuditStore implements domain.AuditStore.
type AuditStore struct{ db *DB }

var _ domain.AuditStore = (*AuditStore)(nil)

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.auditSeq++
	s.db.audit = append(s.db.audit, domain.AuditEntry{
		ID:        s.db.auditSeq,
		Event:     event,
		Detail:    detail,
		CreatedAt: s.db.now(),
	})
	return nil
}

// List returns audit entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range s.db.audit {
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DeleteBefore removes entries created strictly before the cutoff.
func (s *AuditStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	kept := s.db.audit[:0]
	var n int64
	for _, e := range s.db.audit {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.db.audit = kept
	return n, nil
}
