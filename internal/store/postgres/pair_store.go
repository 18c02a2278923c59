package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PairStore implements domain.PairStore. Reads hydrate both events.
type PairStore struct {
	pool *pgxpool.Pool
}

var _ domain.PairStore = (*PairStore)(nil)

// NewPairStore creates a PairStore.
func NewPairStore(pool *pgxpool.Pool) *PairStore {
	return &PairStore{pool: pool}
}

const pairSelect = `
	SELECT p.id, p.event_a_id, p.event_b_id, p.approved_by, p.approved_at, p.active, p.notes,
		a.id, a.venue, a.external_id, a.title, a.url, a.close_time, a.active, a.created_at, a.updated_at,
		b.id, b.venue, b.external_id, b.title, b.url, b.close_time, b.active, b.created_at, b.updated_at
	FROM verified_pairs p
	JOIN events a ON a.id = p.event_a_id
	JOIN events b ON b.id = p.event_b_id`

func scanPair(row pgx.Row) (domain.VerifiedPair, error) {
	var p domain.VerifiedPair
	var venueA, venueB string
	err := row.Scan(
		&p.ID, &p.EventAID, &p.EventBID, &p.ApprovedBy, &p.ApprovedAt, &p.Active, &p.Notes,
		&p.EventA.ID, &venueA, &p.EventA.ExternalID, &p.EventA.Title, &p.EventA.URL,
		&p.EventA.CloseTime, &p.EventA.Active, &p.EventA.CreatedAt, &p.EventA.UpdatedAt,
		&p.EventB.ID, &venueB, &p.EventB.ExternalID, &p.EventB.Title, &p.EventB.URL,
		&p.EventB.CloseTime, &p.EventB.Active, &p.EventB.CreatedAt, &p.EventB.UpdatedAt,
	)
	if err != nil {
		return domain.VerifiedPair{}, err
	}
	p.EventA.Venue = domain.Venue(venueA)
	p.EventB.Venue = domain.Venue(venueB)
	return p, nil
}

// Create inserts an active pair in one transaction. Partial unique indexes
// reject a second active pair on either event.
func (s *PairStore) Create(ctx context.Context, pair domain.VerifiedPair) (domain.VerifiedPair, error) {
	if pair.ID == "" {
		pair.ID = uuid.New().String()
	}
	if pair.ApprovedAt.IsZero() {
		pair.ApprovedAt = time.Now().UTC()
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var n int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM events WHERE id = $1 OR id = $2`, pair.EventAID, pair.EventBID,
		).Scan(&n); err != nil {
			return err
		}
		if n != 2 {
			return domain.ErrNotFound
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO verified_pairs (id, event_a_id, event_b_id, approved_by, approved_at, active, notes)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6)`,
			pair.ID, pair.EventAID, pair.EventBID, pair.ApprovedBy, pair.ApprovedAt, pair.Notes,
		)
		return err
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.VerifiedPair{}, err
	case isUniqueViolation(err):
		return domain.VerifiedPair{}, fmt.Errorf("postgres: create pair: %w", domain.ErrAlreadyExists)
	case err != nil:
		return domain.VerifiedPair{}, fmt.Errorf("postgres: create pair: %w", err)
	}
	return s.GetByID(ctx, pair.ID)
}

// FindActive returns the active pair linking the two events.
func (s *PairStore) FindActive(ctx context.Context, eventAID, eventBID string) (domain.VerifiedPair, error) {
	p, err := scanPair(s.pool.QueryRow(ctx,
		pairSelect+` WHERE p.event_a_id = $1 AND p.event_b_id = $2 AND p.active`, eventAID, eventBID))
	if err != nil {
		return domain.VerifiedPair{}, notFound(err, "find active pair %s/%s", eventAID, eventBID)
	}
	return p, nil
}

// GetByID returns one pair, active or not.
func (s *PairStore) GetByID(ctx context.Context, id string) (domain.VerifiedPair, error) {
	p, err := scanPair(s.pool.QueryRow(ctx, pairSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return domain.VerifiedPair{}, notFound(err, "get pair %s", id)
	}
	return p, nil
}

// Deactivate soft-deletes a pair.
func (s *PairStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE verified_pairs SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deactivate pair %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActive returns active pairs oldest first.
func (s *PairStore) ListActive(ctx context.Context) ([]domain.VerifiedPair, error) {
	rows, err := s.pool.Query(ctx, pairSelect+` WHERE p.active ORDER BY p.approved_at, p.id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active pairs: %w", err)
	}
	defer rows.Close()

	var out []domain.VerifiedPair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pair: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active pairs rows: %w", err)
	}
	return out, nil
}

// RejectionStore implements domain.RejectionStore.
type RejectionStore struct {
	pool *pgxpool.Pool
}

var _ domain.RejectionStore = (*RejectionStore)(nil)

// NewRejectionStore creates a RejectionStore.
func NewRejectionStore(pool *pgxpool.Pool) *RejectionStore {
	return &RejectionStore{pool: pool}
}

// Reject records a rejection. Rejecting the same candidate twice is a no-op.
func (s *RejectionStore) Reject(ctx context.Context, r domain.RejectedCandidate) error {
	if r.RejectedAt.IsZero() {
		r.RejectedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rejected_candidates (event_a_id, event_b_id, rejected_by, rejected_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_a_id, event_b_id) DO NOTHING`,
		r.EventAID, r.EventBID, r.RejectedBy, r.RejectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: reject candidate %s/%s: %w", r.EventAID, r.EventBID, err)
	}
	return nil
}

// ListRejected returns every rejection.
func (s *RejectionStore) ListRejected(ctx context.Context) ([]domain.RejectedCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_a_id, event_b_id, rejected_by, rejected_at FROM rejected_candidates ORDER BY rejected_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rejections: %w", err)
	}
	defer rows.Close()

	var out []domain.RejectedCandidate
	for rows.Next() {
		var r domain.RejectedCandidate
		if err := rows.Scan(&r.EventAID, &r.EventBID, &r.RejectedBy, &r.RejectedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan rejection: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
