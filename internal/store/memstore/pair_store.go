package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PairStore implements domain.PairStore.
type PairStore struct{ db *DB }

var _ domain.PairStore = (*PairStore)(nil)

// Create inserts an active pair. Either event already sitting on the same
// side of another active pair yields ErrAlreadyExists.
func (s *PairStore) Create(ctx context.Context, p domain.VerifiedPair) (domain.VerifiedPair, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.events[p.EventAID]; !ok {
		return domain.VerifiedPair{}, domain.ErrNotFound
	}
	if _, ok := s.db.events[p.EventBID]; !ok {
		return domain.VerifiedPair{}, domain.ErrNotFound
	}
	for _, existing := range s.db.pairs {
		if !existing.Active {
			continue
		}
		if existing.EventAID == p.EventAID || existing.EventBID == p.EventBID {
			return domain.VerifiedPair{}, domain.ErrAlreadyExists
		}
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.ApprovedAt.IsZero() {
		p.ApprovedAt = s.db.now()
	}
	p.Active = true
	p.EventA, p.EventB = domain.Event{}, domain.Event{}
	s.db.pairs[p.ID] = p
	s.db.pairOrder = append(s.db.pairOrder, p.ID)
	return s.db.hydrate(p), nil
}

// FindActive returns the active pair linking the two events.
func (s *PairStore) FindActive(ctx context.Context, eventAID, eventBID string) (domain.VerifiedPair, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, id := range s.db.pairOrder {
		p := s.db.pairs[id]
		if p.Active && p.EventAID == eventAID && p.EventBID == eventBID {
			return s.db.hydrate(p), nil
		}
	}
	return domain.VerifiedPair{}, domain.ErrNotFound
}

// GetByID returns a pair, active or not.
func (s *PairStore) GetByID(ctx context.Context, id string) (domain.VerifiedPair, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	p, ok := s.db.pairs[id]
	if !ok {
		return domain.VerifiedPair{}, domain.ErrNotFound
	}
	return s.db.hydrate(p), nil
}

// Deactivate clears the active flag.
func (s *PairStore) Deactivate(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.pairs[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Active = false
	s.db.pairs[id] = p
	return nil
}

// ListActive returns active pairs in approval order.
func (s *PairStore) ListActive(ctx context.Context) ([]domain.VerifiedPair, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.VerifiedPair
	for _, id := range s.db.pairOrder {
		if p := s.db.pairs[id]; p.Active {
			out = append(out, s.db.hydrate(p))
		}
	}
	return out, nil
}

// RejectionStore implements domain.RejectionStore.
type RejectionStore struct{ db *DB }

var _ domain.RejectionStore = (*RejectionStore)(nil)

// Reject records a rejection. Repeats are ignored.
func (s *RejectionStore) Reject(ctx context.Context, r domain.RejectedCandidate) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.rejections {
		if existing.EventAID == r.EventAID && existing.EventBID == r.EventBID {
			return nil
		}
	}
	if r.RejectedAt.IsZero() {
		r.RejectedAt = s.db.now()
	}
	s.db.rejections = append(s.db.rejections, r)
	return nil
}

// ListRejected returns every recorded rejection.
func (s *RejectionStore) ListRejected(ctx context.Context) ([]domain.RejectedCandidate, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return append([]domain.RejectedCandidate(nil), s.db.rejections...), nil
}
