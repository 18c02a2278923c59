package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// EventStore implements domain.EventStore.
type EventStore struct{ db *DB }

var _ domain.EventStore = (*EventStore)(nil)

// UpsertBatch inserts new events and refreshes title, url, close time and
// active flag on existing ones.
func (s *EventStore) UpsertBatch(ctx context.Context, events []domain.Event) ([]domain.Event, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := s.db.now()
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		key := eventKey{e.Venue, e.ExternalID}
		if id, ok := s.db.eventKeys[key]; ok {
			cur := s.db.events[id]
			cur.Title = e.Title
			cur.URL = e.URL
			cur.CloseTime = e.CloseTime
			cur.Active = e.Active
			cur.UpdatedAt = now
			s.db.events[id] = cur
			out = append(out, cur)
			continue
		}
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		e.CreatedAt = now
		e.UpdatedAt = now
		s.db.events[e.ID] = e
		s.db.eventKeys[key] = e.ID
		s.db.eventOrder = append(s.db.eventOrder, e.ID)
		out = append(out, e)
	}
	return out, nil
}

// GetByID returns an event by id.
func (s *EventStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	e, ok := s.db.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return e, nil
}

// GetByExternalID returns an event by its venue identity.
func (s *EventStore) GetByExternalID(ctx context.Context, venue domain.Venue, externalID string) (domain.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	id, ok := s.db.eventKeys[eventKey{venue, externalID}]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return s.db.events[id], nil
}

// ListUnmatched returns active events of venue outside any active pair.
func (s *EventStore) ListUnmatched(ctx context.Context, venue domain.Venue) ([]domain.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.Event
	for _, id := range s.db.eventOrder {
		e := s.db.events[id]
		if e.Venue != venue || !e.Active || s.db.pairedLocked(id) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
