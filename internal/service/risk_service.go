package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// RiskConfig holds the tunable parameters for pre-trade risk checks.
type RiskConfig struct {
	MaxTradeSize         float64
	MaxPositionPerMarket float64
}

// RiskService gates executions on per-market exposure limits.
type RiskService struct {
	positions *PositionService
	cfg       RiskConfig
	logger    *slog.Logger
}

// NewRiskService creates a RiskService over the position service.
func NewRiskService(positions *PositionService, cfg RiskConfig, logger *slog.Logger) *RiskService {
	return &RiskService{
		positions: positions,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "risk_service")),
	}
}

// PreTradeCheck returns nil when buying size contracts of each leg keeps the
// pair's cost basis on both venues within MaxPositionPerMarket. Failures wrap
// domain.ErrRiskLimit.
func (s *RiskService) PreTradeCheck(ctx context.Context, pair domain.VerifiedPair, strat domain.ArbitrageStrategy, size float64) error {
	if size <= 0 {
		return fmt.Errorf("risk_service: trade size must be positive: %w", domain.ErrRiskLimit)
	}
	if s.cfg.MaxTradeSize > 0 && size > s.cfg.MaxTradeSize {
		return fmt.Errorf("risk_service: size %.2f exceeds max trade size %.2f: %w", size, s.cfg.MaxTradeSize, domain.ErrRiskLimit)
	}
	if s.cfg.MaxPositionPerMarket <= 0 {
		return nil
	}

	exp, err := s.positions.ExposureByMarket(ctx, pair.EventAID, pair.EventBID)
	if err != nil {
		return fmt.Errorf("risk_service: exposure: %w", err)
	}

	legs := []struct {
		venue domain.Venue
		cost  float64
	}{
		{domain.VenueKalshi, size * strat.PriceA},
		{domain.VenuePolymarket, size * strat.PriceB},
	}
	for _, leg := range legs {
		after := exp.ByVenue[leg.venue] + leg.cost
		if after > s.cfg.MaxPositionPerMarket {
			s.logger.WarnContext(ctx, "risk_service: market position limit reached",
				slog.String("pair_id", pair.ID),
				slog.String("venue", string(leg.venue)),
				slog.Float64("current", exp.ByVenue[leg.venue]),
				slog.Float64("after", after),
				slog.Float64("max", s.cfg.MaxPositionPerMarket),
			)
			return fmt.Errorf("risk_service: %s exposure %.2f would exceed %.2f: %w",
				leg.venue, after, s.cfg.MaxPositionPerMarket, domain.ErrRiskLimit)
		}
	}
	return nil
}
