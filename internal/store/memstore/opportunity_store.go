package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore.
type OpportunityStore struct{ db *DB }

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// Insert stores a new opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	if _, ok := s.db.opps[opp.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.db.opps[opp.ID] = opp
	s.db.oppOrder = append(s.db.oppOrder, opp.ID)
	return nil
}

// MarkStarted stamps the execution start time.
func (s *OpportunityStore) MarkStarted(ctx context.Context, id string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.opps[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.ExecutionStartedAt = &at
	s.db.opps[id] = o
	return nil
}

// MarkCompleted records the execution outcome.
func (s *OpportunityStore) MarkCompleted(ctx context.Context, id string, executed bool, at time.Time, realizedPnL *float64, notes string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.opps[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Executed = executed
	o.ExecutionCompletedAt = &at
	o.RealizedPnL = realizedPnL
	o.Notes = notes
	s.db.opps[id] = o
	return nil
}

// GetByID returns one opportunity.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	o, ok := s.db.opps[id]
	if !ok {
		return domain.ArbitrageOpportunity{}, domain.ErrNotFound
	}
	return o, nil
}

// ListRecent returns the newest opportunities first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make([]domain.ArbitrageOpportunity, 0, len(s.db.oppOrder))
	for _, id := range s.db.oppOrder {
		out = append(out, s.db.opps[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBefore returns opportunities detected before the cutoff, oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.ArbitrageOpportunity
	for _, id := range s.db.oppOrder {
		if o := s.db.opps[id]; o.DetectedAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

// OrderStore implements domain.OrderStore.
type OrderStore struct{ db *DB }

var _ domain.OrderStore = (*OrderStore)(nil)

// Create stores a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if _, ok := s.db.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.db.orders[o.ID] = o
	s.db.orderOrder = append(s.db.orderOrder, o.ID)
	return nil
}

// Update overwrites an existing order.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	s.db.orders[o.ID] = o
	return nil
}

// GetByID returns one order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	o, ok := s.db.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

// ListByOpportunity returns the legs of one opportunity in creation order.
func (s *OrderStore) ListByOpportunity(ctx context.Context, opportunityID string) ([]domain.Order, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.Order
	for _, id := range s.db.orderOrder {
		if o := s.db.orders[id]; o.OpportunityID == opportunityID {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListBefore returns orders created before the cutoff.
func (s *OrderStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.Order
	for _, id := range s.db.orderOrder {
		if o := s.db.orders[id]; o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}
