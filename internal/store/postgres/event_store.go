package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// EventStore implements domain.EventStore.
type EventStore struct {
	pool *pgxpool.Pool
}

var _ domain.EventStore = (*EventStore)(nil)

// NewEventStore creates an EventStore.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventCols = `id, venue, external_id, title, url, close_time, active, created_at, updated_at`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	var venue string
	if err := row.Scan(
		&e.ID, &venue, &e.ExternalID, &e.Title, &e.URL,
		&e.CloseTime, &e.Active, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return domain.Event{}, err
	}
	e.Venue = domain.Venue(venue)
	return e, nil
}

// UpsertBatch inserts or refreshes events by (venue, external_id) in one
// round trip. Existing rows keep their id and created_at.
func (s *EventStore) UpsertBatch(ctx context.Context, events []domain.Event) ([]domain.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	const query = `
		INSERT INTO events (id, venue, external_id, title, url, close_time, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (venue, external_id) DO UPDATE SET
			title      = EXCLUDED.title,
			url        = EXCLUDED.url,
			close_time = EXCLUDED.close_time,
			active     = EXCLUDED.active,
			updated_at = NOW()
		RETURNING ` + eventCols

	batch := &pgx.Batch{}
	for _, e := range events {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		batch.Queue(query, id, string(e.Venue), e.ExternalID, e.Title, e.URL, e.CloseTime, e.Active)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	out := make([]domain.Event, 0, len(events))
	for i := range events {
		e, err := scanEvent(br.QueryRow())
		if err != nil {
			return nil, fmt.Errorf("postgres: upsert event batch item %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// GetByID returns one event.
func (s *EventStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventCols+` FROM events WHERE id = $1`, id))
	if err != nil {
		return domain.Event{}, notFound(err, "get event %s", id)
	}
	return e, nil
}

// GetByExternalID returns the event a venue knows by externalID.
func (s *EventStore) GetByExternalID(ctx context.Context, venue domain.Venue, externalID string) (domain.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventCols+` FROM events WHERE venue = $1 AND external_id = $2`,
		string(venue), externalID))
	if err != nil {
		return domain.Event{}, notFound(err, "get event %s/%s", venue, externalID)
	}
	return e, nil
}

// ListUnmatched returns active events of venue that no active pair
// references.
func (s *EventStore) ListUnmatched(ctx context.Context, venue domain.Venue) ([]domain.Event, error) {
	const query = `
		SELECT ` + eventCols + `
		FROM events e
		WHERE e.venue = $1
		  AND e.active
		  AND NOT EXISTS (
			SELECT 1 FROM verified_pairs p
			WHERE p.active AND (p.event_a_id = e.id OR p.event_b_id = e.id)
		  )
		ORDER BY e.created_at, e.id`

	rows, err := s.pool.Query(ctx, query, string(venue))
	if err != nil {
		return nil, fmt.Errorf("postgres: list unmatched %s: %w", venue, err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list unmatched rows: %w", err)
	}
	return out, nil
}
