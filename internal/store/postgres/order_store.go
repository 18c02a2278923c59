package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OrderStore implements domain.OrderStore.
type OrderStore struct {
	pool *pgxpool.Pool
}

var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates an OrderStore.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderCols = `id, pair_id, opportunity_id, venue, event_id, external_id, exchange_order_id,
	side, requested_size, filled_size, limit_price, avg_fill_price, status,
	created_at, submitted_at, filled_at, cancelled_at, retry_count, error`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var venue, side, status string
	err := row.Scan(
		&o.ID, &o.PairID, &o.OpportunityID, &venue, &o.EventID, &o.ExternalID, &o.ExchangeOrderID,
		&side, &o.RequestedSize, &o.FilledSize, &o.LimitPrice, &o.AvgFillPrice, &status,
		&o.CreatedAt, &o.SubmittedAt, &o.FilledAt, &o.CancelledAt, &o.RetryCount, &o.Error,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Venue = domain.Venue(venue)
	o.Side = domain.Outcome(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (`+orderCols+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, NOW())`,
		o.ID, o.PairID, o.OpportunityID, string(o.Venue), o.EventID, o.ExternalID, o.ExchangeOrderID,
		string(o.Side), o.RequestedSize, o.FilledSize, o.LimitPrice, o.AvgFillPrice, string(o.Status),
		o.CreatedAt, o.SubmittedAt, o.FilledAt, o.CancelledAt, o.RetryCount, o.Error,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Update overwrites the mutable columns of an order.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET
			exchange_order_id = $2,
			filled_size       = $3,
			avg_fill_price    = $4,
			status            = $5,
			submitted_at      = $6,
			filled_at         = $7,
			cancelled_at      = $8,
			retry_count       = $9,
			error             = $10,
			updated_at        = NOW()
		WHERE id = $1`,
		o.ID, o.ExchangeOrderID, o.FilledSize, o.AvgFillPrice, string(o.Status),
		o.SubmittedAt, o.FilledAt, o.CancelledAt, o.RetryCount, o.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, notFound(err, "get order %s", id)
	}
	return o, nil
}

// ListByOpportunity returns the legs of one execution in creation order.
func (s *OrderStore) ListByOpportunity(ctx context.Context, opportunityID string) ([]domain.Order, error) {
	return s.list(ctx, `SELECT `+orderCols+` FROM orders WHERE opportunity_id = $1 ORDER BY created_at, id`, opportunityID)
}

// ListBefore returns orders created before the cutoff, oldest first.
func (s *OrderStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	return s.list(ctx, `SELECT `+orderCols+` FROM orders WHERE created_at < $1 ORDER BY created_at`, before)
}

func (s *OrderStore) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return out, nil
}
