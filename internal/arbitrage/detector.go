package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

// Detector fetches quotes for verified pairs and returns an EvaluationResult
// per pair. It holds no per-pair state between calls.
type Detector struct {
	venueA        domain.VenueGateway
	venueB        domain.VenueGateway
	quotes        domain.QuoteCache
	feeRate       float64
	minSpread     float64
	tradeSize     float64
	maxConcurrent int
	now           func() time.Time
	logger        *slog.Logger
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	VenueA        domain.VenueGateway
	VenueB        domain.VenueGateway
	Quotes        domain.QuoteCache // optional
	FeeRate       float64
	MinSpread     float64
	TradeSize     float64
	MaxConcurrent int
	Now           func() time.Time
	Logger        *slog.Logger
}

// NewDetector creates a detector over the two venue gateways.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Detector{
		venueA:        cfg.VenueA,
		venueB:        cfg.VenueB,
		quotes:        cfg.Quotes,
		feeRate:       cfg.FeeRate,
		minSpread:     cfg.MinSpread,
		tradeSize:     cfg.TradeSize,
		maxConcurrent: cfg.MaxConcurrent,
		now:           cfg.Now,
		logger:        cfg.Logger.With(slog.String("component", "arb_detector")),
	}
}

// Evaluate fetches both venues' quotes concurrently and selects a strategy.
// Quote failures are logged and reported through the result's Err field with
// a nil strategy; they are never returned as errors.
func (d *Detector) Evaluate(ctx context.Context, pair domain.VerifiedPair) domain.EvaluationResult {
	metrics.PairsEvaluated.Inc()
	res := domain.EvaluationResult{Pair: pair}

	var qa, qb domain.Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := d.fetch(gctx, d.venueA, pair.EventA.ExternalID)
		qa = q
		return err
	})
	g.Go(func() error {
		q, err := d.fetch(gctx, d.venueB, pair.EventB.ExternalID)
		qb = q
		return err
	})
	err := g.Wait()
	res.EvaluatedAt = d.now()
	if err != nil {
		res.Err = err
		d.logger.WarnContext(ctx, "quote fetch failed",
			slog.String("pair_id", pair.ID),
			slog.String("error", err.Error()),
		)
		return res
	}

	res.Prices = domain.LegPrices{AYes: qa.Yes, ANo: qa.No, BYes: qb.Yes, BNo: qb.No}
	strat := SelectStrategy(res.Prices, d.feeRate, d.tradeSize)
	if strat == nil || strat.Spread < d.minSpread {
		return res
	}
	res.Strategy = strat

	metrics.Detections.WithLabelValues(string(strat.Kind)).Inc()
	metrics.DetectedSpread.Observe(strat.Spread)
	d.logger.InfoContext(ctx, "arbitrage detected",
		slog.String("pair_id", pair.ID),
		slog.String("kind", string(strat.Kind)),
		slog.Float64("spread", strat.Spread),
		slog.Float64("expected_profit", strat.ExpectedProfit),
	)
	return res
}

// Monitor evaluates every pair with bounded fan-out. The result slice is
// index-aligned with pairs; one pair's failure never affects another.
func (d *Detector) Monitor(ctx context.Context, pairs []domain.VerifiedPair) []domain.EvaluationResult {
	results := make([]domain.EvaluationResult, len(pairs))
	var g errgroup.Group
	g.SetLimit(d.maxConcurrent)
	for i, p := range pairs {
		g.Go(func() error {
			results[i] = d.Evaluate(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Opportunities filters Monitor output down to actionable results.
func Opportunities(results []domain.EvaluationResult) []domain.EvaluationResult {
	var out []domain.EvaluationResult
	for _, r := range results {
		if r.Actionable() {
			out = append(out, r)
		}
	}
	return out
}

func (d *Detector) fetch(ctx context.Context, gw domain.VenueGateway, externalID string) (domain.Quote, error) {
	if gw == nil {
		return domain.Quote{}, errors.New("arb detector: gateway not configured")
	}
	q, err := gw.GetQuote(ctx, externalID)
	if err != nil {
		metrics.EvaluationErrors.WithLabelValues(string(gw.Venue())).Inc()
		return domain.Quote{}, fmt.Errorf("%s quote %s: %w", gw.Venue(), externalID, err)
	}
	if d.quotes != nil {
		if cerr := d.quotes.SetQuote(ctx, gw.Venue(), externalID, q, d.now()); cerr != nil {
			d.logger.DebugContext(ctx, "quote cache write failed",
				slog.String("venue", string(gw.Venue())),
				slog.String("error", cerr.Error()),
			)
		}
	}
	return q, nil
}
