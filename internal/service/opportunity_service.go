package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunityService persists detected opportunities and fans them out to
// downstream consumers.
type OpportunityService struct {
	opps   domain.OpportunityStore
	orders domain.OrderStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewOpportunityService creates an OpportunityService with all required
// dependencies.
func NewOpportunityService(
	stores domain.Stores,
	bus domain.SignalBus,
	logger *slog.Logger,
) *OpportunityService {
	return &OpportunityService{
		opps:   stores.Opportunities,
		orders: stores.Orders,
		bus:    bus,
		audit:  stores.Audit,
		logger: logger.With(slog.String("component", "opportunity_service")),
	}
}

// Record snapshots an actionable evaluation using the leg prices carried on
// the result itself.
func (s *OpportunityService) Record(ctx context.Context, res domain.EvaluationResult) (domain.ArbitrageOpportunity, error) {
	if !res.Actionable() {
		return domain.ArbitrageOpportunity{}, errors.New("opportunity_service: evaluation has no strategy")
	}
	strat := res.Strategy
	detectedAt := res.EvaluatedAt
	if detectedAt.IsZero() {
		return domain.ArbitrageOpportunity{}, errors.New("opportunity_service: evaluation has no timestamp")
	}

	opp := domain.ArbitrageOpportunity{
		ID:             uuid.New().String(),
		PairID:         res.Pair.ID,
		DetectedAt:     detectedAt,
		Prices:         res.Prices,
		Spread:         strat.Spread,
		Kind:           strat.Kind,
		ExpectedProfit: strat.ExpectedProfit,
	}
	if err := s.opps.Insert(ctx, opp); err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("opportunity_service: insert opportunity: %w", err)
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":           "opportunity_detected",
			"opportunity_id":  opp.ID,
			"pair_id":         opp.PairID,
			"kalshi_market":   res.Pair.EventA.ExternalID,
			"poly_market":     res.Pair.EventB.ExternalID,
			"kind":            opp.Kind,
			"spread":          opp.Spread,
			"expected_profit": opp.ExpectedProfit,
			"prices":          opp.Prices,
		})
		if pubErr := s.bus.Publish(ctx, domain.ChannelOpportunities, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "opportunity_service: publish event failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	if auditErr := s.audit.Log(ctx, "opportunity_recorded", map[string]any{
		"opportunity_id":  opp.ID,
		"pair_id":         opp.PairID,
		"kind":            string(opp.Kind),
		"spread":          opp.Spread,
		"expected_profit": opp.ExpectedProfit,
		"price_a":         strat.PriceA,
		"price_b":         strat.PriceB,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "opportunity_service: audit log failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "opportunity_service: opportunity recorded",
		slog.String("opportunity_id", opp.ID),
		slog.String("pair_id", opp.PairID),
		slog.Float64("spread", opp.Spread),
	)
	return opp, nil
}

// ListRecent returns the newest opportunities.
func (s *OpportunityService) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	opps, err := s.opps.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list recent: %w", err)
	}
	return opps, nil
}

// OpportunityDetail is an opportunity with its execution legs.
type OpportunityDetail struct {
	Opportunity domain.ArbitrageOpportunity `json:"opportunity"`
	Orders      []domain.Order              `json:"orders"`
}

// Get returns one opportunity and its legs.
func (s *OpportunityService) Get(ctx context.Context, id string) (OpportunityDetail, error) {
	opp, err := s.opps.GetByID(ctx, id)
	if err != nil {
		return OpportunityDetail{}, fmt.Errorf("opportunity_service: get %q: %w", id, err)
	}
	orders, err := s.orders.ListByOpportunity(ctx, id)
	if err != nil {
		return OpportunityDetail{}, fmt.Errorf("opportunity_service: list orders for %q: %w", id, err)
	}
	return OpportunityDetail{Opportunity: opp, Orders: orders}, nil
}
