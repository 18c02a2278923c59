// Package memstore implements the domain store interfaces in process memory.
// It backs the "memory" store driver for dry runs and serves as the store in
// service and engine tests.
package memstore

import (
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type eventKey struct {
	venue      domain.Venue
	externalID string
}

type positionKey struct {
	venue   domain.Venue
	eventID string
	side    domain.Outcome
}

// DB is the shared state behind every memstore store. All stores returned by
// Stores read and write the same DB, so pair lookups see the current events.
type DB struct {
	mu  sync.RWMutex
	now func() time.Time

	events     map[string]domain.Event
	eventOrder []string
	eventKeys  map[eventKey]string

	pairs     map[string]domain.VerifiedPair
	pairOrder []string

	rejections []domain.RejectedCandidate

	opps     map[string]domain.ArbitrageOpportunity
	oppOrder []string

	orders     map[string]domain.Order
	orderOrder []string

	positions    map[string]domain.Position
	positionKeys map[positionKey]string
	posOrder     []string

	audit    []domain.AuditEntry
	auditSeq int64
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		now:          time.Now,
		events:       make(map[string]domain.Event),
		eventKeys:    make(map[eventKey]string),
		pairs:        make(map[string]domain.VerifiedPair),
		opps:         make(map[string]domain.ArbitrageOpportunity),
		orders:       make(map[string]domain.Order),
		positions:    make(map[string]domain.Position),
		positionKeys: make(map[positionKey]string),
	}
}

// WithClock overrides the timestamp source. Intended for tests.
func (db *DB) WithClock(now func() time.Time) *DB {
	db.now = now
	return db
}

// Stores returns every store interface backed by db.
func (db *DB) Stores() domain.Stores {
	return domain.Stores{
		Events:        &EventStore{db: db},
		Pairs:         &PairStore{db: db},
		Rejections:    &RejectionStore{db: db},
		Opportunities: &OpportunityStore{db: db},
		Orders:        &OrderStore{db: db},
		Positions:     &PositionStore{db: db},
		Audit:         &AuditStore{db: db},
	}
}

// hydrate attaches the pair's events. Callers hold db.mu.
func (db *DB) hydrate(p domain.VerifiedPair) domain.VerifiedPair {
	p.EventA = db.events[p.EventAID]
	p.EventB = db.events[p.EventBID]
	return p
}

// pairedLocked reports whether an event belongs to an active pair.
func (db *DB) pairedLocked(eventID string) bool {
	for _, p := range db.pairs {
		if p.Active && (p.EventAID == eventID || p.EventBID == eventID) {
			return true
		}
	}
	return false
}
