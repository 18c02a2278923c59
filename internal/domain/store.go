package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventStore persists normalized venue events.
type EventStore interface {
	// UpsertBatch inserts or updates events keyed by (venue, external_id) and
	// returns the stored rows with their ids.
	UpsertBatch(ctx context.Context, events []Event) ([]Event, error)
	GetByID(ctx context.Context, id string) (Event, error)
	GetByExternalID(ctx context.Context, venue Venue, externalID string) (Event, error)
	// ListUnmatched returns active events of a venue that are not part of an
	// active verified pair, in insertion order.
	ListUnmatched(ctx context.Context, venue Venue) ([]Event, error)
}

// PairStore persists the verified pair registry.
type PairStore interface {
	// Create inserts a pair. It returns ErrAlreadyExists when either event is
	// already referenced by an active pair on the same side.
	Create(ctx context.Context, pair VerifiedPair) (VerifiedPair, error)
	FindActive(ctx context.Context, eventAID, eventBID string) (VerifiedPair, error)
	GetByID(ctx context.Context, id string) (VerifiedPair, error)
	Deactivate(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]VerifiedPair, error)
}

// RejectionStore remembers candidates an operator rejected so the matcher
// does not offer them again.
type RejectionStore interface {
	Reject(ctx context.Context, r RejectedCandidate) error
	ListRejected(ctx context.Context) ([]RejectedCandidate, error)
}

// OpportunityStore persists arbitrage opportunity snapshots.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	MarkStarted(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id string, executed bool, at time.Time, realizedPnL *float64, notes string) error
	GetByID(ctx context.Context, id string) (ArbitrageOpportunity, error)
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]ArbitrageOpportunity, error)
}

// OrderStore persists hedge legs.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByOpportunity(ctx context.Context, opportunityID string) ([]Order, error)
	ListBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// PositionStore persists per (venue, event, side) positions.
type PositionStore interface {
	Get(ctx context.Context, venue Venue, eventID string, side Outcome) (Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
	Upsert(ctx context.Context, pos Position) (Position, error)
	List(ctx context.Context, openOnly bool) ([]Position, error)
	ListByEvents(ctx context.Context, eventIDs []string) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Stores bundles every persistence interface the core depends on.
type Stores struct {
	Events        EventStore
	Pairs         PairStore
	Rejections    RejectionStore
	Opportunities OpportunityStore
	Orders        OrderStore
	Positions     PositionStore
	Audit         AuditStore
}
