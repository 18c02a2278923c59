package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

// PositionService is the only writer of positions. It folds fills into a
// weighted average cost basis and tracks realized and unrealized PnL.
type PositionService struct {
	positions domain.PositionStore
	events    domain.EventStore
	quotes    domain.QuoteCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	now       func() time.Time
	logger    *slog.Logger
}

// NewPositionService creates a PositionService. quotes may be nil, in which
// case RefreshMarks is a no-op.
func NewPositionService(
	stores domain.Stores,
	quotes domain.QuoteCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: stores.Positions,
		events:    stores.Events,
		quotes:    quotes,
		bus:       bus,
		audit:     stores.Audit,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// ApplyFill adds an order's filled quantity to its (venue, event, side)
// position. Orders that are not filled or partially filled are ignored.
func (s *PositionService) ApplyFill(ctx context.Context, order domain.Order) (domain.Position, error) {
	if order.FilledSize <= 0 {
		return domain.Position{}, nil
	}
	switch order.Status {
	case domain.OrderStatusFilled, domain.OrderStatusPartial:
	default:
		return domain.Position{}, nil
	}

	now := s.now()
	pos, err := s.positions.Get(ctx, order.Venue, order.EventID, order.Side)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		pos = domain.Position{
			Venue:    order.Venue,
			EventID:  order.EventID,
			Side:     order.Side,
			OpenedAt: now,
		}
	case err != nil:
		return domain.Position{}, fmt.Errorf("position_service: get position: %w", err)
	}

	price := order.FillPrice()
	qty := pos.Quantity + order.FilledSize
	pos.AvgPrice = (pos.Quantity*pos.AvgPrice + order.FilledSize*price) / qty
	pos.Quantity = qty
	pos.UpdatedAt = now
	if pos.ClosedAt != nil {
		pos.ClosedAt = nil
		pos.OpenedAt = now
	}

	pos, err = s.positions.Upsert(ctx, pos)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: upsert position: %w", err)
	}

	s.emit(ctx, "position_updated", map[string]any{
		"position_id": pos.ID,
		"order_id":    order.ID,
		"venue":       string(pos.Venue),
		"event_id":    pos.EventID,
		"side":        string(pos.Side),
		"filled":      order.FilledSize,
		"fill_price":  price,
		"quantity":    pos.Quantity,
		"avg_price":   pos.AvgPrice,
	})
	s.logger.InfoContext(ctx, "position_service: fill applied",
		slog.String("position_id", pos.ID),
		slog.String("venue", string(pos.Venue)),
		slog.Float64("quantity", pos.Quantity),
		slog.Float64("avg_price", pos.AvgPrice),
	)
	return pos, nil
}

// MarkToMarket sets unrealized PnL from a current price.
func (s *PositionService) MarkToMarket(ctx context.Context, pos domain.Position, price float64) (domain.Position, error) {
	pos.UnrealizedPnL = (price - pos.AvgPrice) * pos.Quantity
	pos.UpdatedAt = s.now()
	out, err := s.positions.Upsert(ctx, pos)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: mark position %q: %w", pos.ID, err)
	}
	return out, nil
}

// ClosePosition sells qty at price and realizes PnL. Closing more than is held
// returns ErrOverClose and leaves the position untouched.
func (s *PositionService) ClosePosition(ctx context.Context, pos domain.Position, price, qty float64) (domain.Position, error) {
	if qty <= 0 {
		return domain.Position{}, fmt.Errorf("position_service: close quantity must be positive, got %v", qty)
	}
	if qty > pos.Quantity+domain.QuantityEpsilon {
		s.logger.WarnContext(ctx, "position_service: close exceeds position",
			slog.String("position_id", pos.ID),
			slog.Float64("held", pos.Quantity),
			slog.Float64("requested", qty),
		)
		return pos, fmt.Errorf("position_service: close %v of %v: %w", qty, pos.Quantity, domain.ErrOverClose)
	}

	qty = min(qty, pos.Quantity)

	now := s.now()
	realized := (price - pos.AvgPrice) * qty
	pos.RealizedPnL += realized
	pos.Quantity -= qty
	pos.UpdatedAt = now
	if pos.Quantity <= domain.QuantityEpsilon {
		pos.Quantity = 0
		pos.UnrealizedPnL = 0
		pos.ClosedAt = &now
	} else {
		pos.UnrealizedPnL = (price - pos.AvgPrice) * pos.Quantity
	}

	out, err := s.positions.Upsert(ctx, pos)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: close position %q: %w", pos.ID, err)
	}

	s.emit(ctx, "position_closed", map[string]any{
		"position_id":  out.ID,
		"exit_price":   price,
		"quantity":     qty,
		"realized_pnl": realized,
		"remaining":    out.Quantity,
	})
	s.logger.InfoContext(ctx, "position_service: position closed",
		slog.String("position_id", out.ID),
		slog.Float64("exit_price", price),
		slog.Float64("realized_pnl", realized),
	)
	return out, nil
}

// TotalPnL sums realized and unrealized PnL over every position.
func (s *PositionService) TotalPnL(ctx context.Context) (domain.PnLSummary, error) {
	all, err := s.positions.List(ctx, false)
	if err != nil {
		return domain.PnLSummary{}, fmt.Errorf("position_service: list positions: %w", err)
	}
	var sum domain.PnLSummary
	for _, p := range all {
		sum.Realized += p.RealizedPnL
		sum.Unrealized += p.UnrealizedPnL
	}
	sum.Total = sum.Realized + sum.Unrealized
	metrics.RealizedPnL.Set(sum.Realized)
	return sum, nil
}

// ExposureByMarket returns the cost basis of open positions on the given
// events, split by venue.
func (s *PositionService) ExposureByMarket(ctx context.Context, eventIDs ...string) (domain.Exposure, error) {
	exp := domain.Exposure{ByVenue: make(map[domain.Venue]float64)}
	if len(eventIDs) == 0 {
		return exp, nil
	}
	positions, err := s.positions.ListByEvents(ctx, eventIDs)
	if err != nil {
		return domain.Exposure{}, fmt.Errorf("position_service: list positions by events: %w", err)
	}
	for _, p := range positions {
		if !p.Open() {
			continue
		}
		v := p.Quantity * p.AvgPrice
		exp.ByVenue[p.Venue] += v
		exp.Total += v
	}
	return exp, nil
}

// List returns positions, optionally only open ones.
func (s *PositionService) List(ctx context.Context, openOnly bool) ([]domain.Position, error) {
	positions, err := s.positions.List(ctx, openOnly)
	if err != nil {
		return nil, fmt.Errorf("position_service: list positions: %w", err)
	}
	return positions, nil
}

// RefreshMarks marks every open position to the latest cached quote. Positions
// without a cached quote keep their previous mark.
func (s *PositionService) RefreshMarks(ctx context.Context) (int, error) {
	if s.quotes == nil {
		return 0, nil
	}
	open, err := s.positions.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("position_service: list open positions: %w", err)
	}
	marked := 0
	for _, p := range open {
		ev, err := s.events.GetByID(ctx, p.EventID)
		if err != nil {
			continue
		}
		q, _, err := s.quotes.GetQuote(ctx, p.Venue, ev.ExternalID)
		if err != nil {
			continue
		}
		if _, err := s.MarkToMarket(ctx, p, q.Price(p.Side)); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

func (s *PositionService) emit(ctx context.Context, event string, detail map[string]any) {
	if s.bus != nil {
		payload := map[string]any{"event": event}
		for k, v := range detail {
			payload[k] = v
		}
		evt, _ := json.Marshal(payload)
		if pubErr := s.bus.Publish(ctx, domain.ChannelPositions, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "position_service: publish event failed",
				slog.String("error", pubErr.Error()),
			)
		}
	}
	if auditErr := s.audit.Log(ctx, event, detail); auditErr != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("event", event),
			slog.String("error", auditErr.Error()),
		)
	}
}
