package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates an OpportunityStore.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, pair_id, detected_at, a_yes, a_no, b_yes, b_no, spread, kind,
	expected_profit, executed, execution_started_at, execution_completed_at, realized_pnl, notes`

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var o domain.ArbitrageOpportunity
	var kind string
	err := row.Scan(
		&o.ID, &o.PairID, &o.DetectedAt,
		&o.Prices.AYes, &o.Prices.ANo, &o.Prices.BYes, &o.Prices.BNo,
		&o.Spread, &kind, &o.ExpectedProfit, &o.Executed,
		&o.ExecutionStartedAt, &o.ExecutionCompletedAt, &o.RealizedPnL, &o.Notes,
	)
	if err != nil {
		return domain.ArbitrageOpportunity{}, err
	}
	o.Kind = domain.StrategyKind(kind)
	return o, nil
}

// Insert stores a new opportunity snapshot.
func (s *OpportunityStore) Insert(ctx context.Context, o domain.ArbitrageOpportunity) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO opportunities (`+opportunityCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		o.ID, o.PairID, o.DetectedAt,
		o.Prices.AYes, o.Prices.ANo, o.Prices.BYes, o.Prices.BNo,
		o.Spread, string(o.Kind), o.ExpectedProfit, o.Executed,
		o.ExecutionStartedAt, o.ExecutionCompletedAt, o.RealizedPnL, o.Notes,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: insert opportunity %s: %w", o.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", o.ID, err)
	}
	return nil
}

// MarkStarted stamps the execution start.
func (s *OpportunityStore) MarkStarted(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET execution_started_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("postgres: mark opportunity %s started: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkCompleted records the execution outcome.
func (s *OpportunityStore) MarkCompleted(ctx context.Context, id string, executed bool, at time.Time, realizedPnL *float64, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE opportunities
		SET executed = $2, execution_completed_at = $3, realized_pnl = $4, notes = $5
		WHERE id = $1`,
		id, executed, at, realizedPnL, notes,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark opportunity %s completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one opportunity.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	o, err := scanOpportunity(s.pool.QueryRow(ctx,
		`SELECT `+opportunityCols+` FROM opportunities WHERE id = $1`, id))
	if err != nil {
		return domain.ArbitrageOpportunity{}, notFound(err, "get opportunity %s", id)
	}
	return o, nil
}

// ListRecent returns the newest opportunities first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, `SELECT `+opportunityCols+` FROM opportunities ORDER BY detected_at DESC LIMIT $1`, limit)
}

// ListBefore returns opportunities detected before the cutoff, oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	return s.list(ctx, `SELECT `+opportunityCols+` FROM opportunities WHERE detected_at < $1 ORDER BY detected_at`, before)
}

func (s *OpportunityStore) list(ctx context.Context, query string, args ...any) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbitrageOpportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return out, nil
}
