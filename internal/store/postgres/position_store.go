package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PositionStore implements domain.PositionStore. One row per
// (venue, event_id, side).
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a PositionStore.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, venue, event_id, side, quantity, avg_price, realized_pnl, unrealized_pnl,
	opened_at, updated_at, closed_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var venue, side string
	err := row.Scan(
		&p.ID, &venue, &p.EventID, &side, &p.Quantity, &p.AvgPrice,
		&p.RealizedPnL, &p.UnrealizedPnL, &p.OpenedAt, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Venue = domain.Venue(venue)
	p.Side = domain.Outcome(side)
	return p, nil
}

// Get returns the position for one key.
func (s *PositionStore) Get(ctx context.Context, venue domain.Venue, eventID string, side domain.Outcome) (domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE venue = $1 AND event_id = $2 AND side = $3`,
		string(venue), eventID, string(side)))
	if err != nil {
		return domain.Position{}, notFound(err, "get position %s/%s/%s", venue, eventID, side)
	}
	return p, nil
}

// GetByID returns one position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx, `SELECT `+positionCols+` FROM positions WHERE id = $1`, id))
	if err != nil {
		return domain.Position{}, notFound(err, "get position %s", id)
	}
	return p, nil
}

// Upsert writes the position by key and returns the stored row.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) (domain.Position, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	out, err := scanPosition(s.pool.QueryRow(ctx, `
		INSERT INTO positions (`+positionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (venue, event_id, side) DO UPDATE SET
			quantity       = EXCLUDED.quantity,
			avg_price      = EXCLUDED.avg_price,
			realized_pnl   = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			updated_at     = EXCLUDED.updated_at,
			closed_at      = EXCLUDED.closed_at
		RETURNING `+positionCols,
		p.ID, string(p.Venue), p.EventID, string(p.Side), p.Quantity, p.AvgPrice,
		p.RealizedPnL, p.UnrealizedPnL, p.OpenedAt, p.UpdatedAt, p.ClosedAt,
	))
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: upsert position %s/%s/%s: %w", p.Venue, p.EventID, p.Side, err)
	}
	return out, nil
}

// List returns positions, optionally only those with quantity left.
func (s *PositionStore) List(ctx context.Context, openOnly bool) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions`
	if openOnly {
		query += ` WHERE quantity > 0`
	}
	query += ` ORDER BY opened_at, id`
	return s.list(ctx, query)
}

// ListByEvents returns every position on the given events.
func (s *PositionStore) ListByEvents(ctx context.Context, eventIDs []string) ([]domain.Position, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	return s.list(ctx,
		`SELECT `+positionCols+` FROM positions WHERE event_id = ANY($1) ORDER BY opened_at, id`, eventIDs)
}

func (s *PositionStore) list(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return out, nil
}
