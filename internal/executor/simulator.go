package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

const (
	partialFillMin = 0.70
	partialFillMax = 0.95
)

// SimConfig configures the simulated engine.
type SimConfig struct {
	Stores                 domain.Stores
	Positions              FillRecorder
	Bus                    domain.SignalBus // optional
	FeeRate                float64
	SlippageMax            float64
	PartialFillProbability float64
	StartingBalance        float64
	ImbalanceThreshold     float64
	ImbalancePenaltyRate   float64
	// Rand drives slippage and partial fills. A nil Rand is seeded from the
	// clock.
	Rand   *rand.Rand
	Now    func() time.Time
	Logger *slog.Logger
}

// Stats summarises simulated trading since the last reset.
type Stats struct {
	StartingBalance  float64       `json:"starting_balance"`
	CurrentBalance   float64       `json:"current_balance"`
	TotalPnL         float64       `json:"total_pnl"`
	TotalTrades      int           `json:"total_trades"`
	SuccessfulTrades int           `json:"successful_trades"`
	FailedTrades     int           `json:"failed_trades"`
	WinRate          float64       `json:"win_rate"`
	AvgProfit        float64       `json:"avg_profit"` // TotalPnL per successful trade
	StartedAt        time.Time     `json:"started_at"`
	Runtime          time.Duration `json:"runtime"`
}

// SimulatedEngine models hedge execution locally with random slippage and
// partial fills against a paper balance. It never calls a venue.
type SimulatedEngine struct {
	orders    domain.OrderStore
	opps      domain.OpportunityStore
	positions FillRecorder
	bus       domain.SignalBus
	dedup     *Dedup
	cfg       SimConfig
	now       func() time.Time
	logger    *slog.Logger

	mu    sync.Mutex // guards rng and stats
	rng   *rand.Rand
	stats Stats
}

var _ Engine = (*SimulatedEngine)(nil)

// NewSimulatedEngine creates a simulated engine with a fresh balance.
func NewSimulatedEngine(cfg SimConfig) *SimulatedEngine {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.ImbalanceThreshold <= 0 {
		cfg.ImbalanceThreshold = 0.1
	}
	e := &SimulatedEngine{
		orders:    cfg.Stores.Orders,
		opps:      cfg.Stores.Opportunities,
		positions: cfg.Positions,
		bus:       cfg.Bus,
		dedup:     NewDedup(time.Hour),
		cfg:       cfg,
		now:       cfg.Now,
		rng:       cfg.Rand,
		logger:    cfg.Logger.With(slog.String("component", "sim_executor")),
	}
	e.ResetStats()
	return e
}

// Name returns the engine identifier.
func (e *SimulatedEngine) Name() string { return "simulated" }

// Stats returns a snapshot of the running statistics.
func (e *SimulatedEngine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Runtime = e.now().Sub(s.StartedAt)
	return s
}

// ResetStats restores the starting balance and clears all counters.
func (e *SimulatedEngine) ResetStats() {
	e.mu.Lock()
	e.stats = Stats{
		StartingBalance: e.cfg.StartingBalance,
		CurrentBalance:  e.cfg.StartingBalance,
		StartedAt:       e.now(),
	}
	e.mu.Unlock()
	metrics.SimBalance.Set(e.cfg.StartingBalance)
}

// Execute simulates both legs of the hedge.
func (e *SimulatedEngine) Execute(ctx context.Context, req Request) (Result, error) {
	log := e.logger.With(
		slog.String("opportunity_id", req.Opportunity.ID),
		slog.String("pair_id", req.Pair.ID),
		slog.String("kind", string(req.Strategy.Kind)),
	)
	if e.dedup.IsDuplicate(req.Opportunity.ID) {
		log.WarnContext(ctx, "sim executor: duplicate execution skipped")
		return Result{Status: StatusFailed, Reason: "duplicate execution request"}, nil
	}
	if err := e.opps.MarkStarted(ctx, req.Opportunity.ID, e.now()); err != nil {
		return Result{}, fmt.Errorf("sim executor: mark started: %w", err)
	}

	cost := req.Size * (req.Strategy.PriceA + req.Strategy.PriceB)
	e.mu.Lock()
	balance := e.stats.CurrentBalance
	e.mu.Unlock()
	if cost > balance {
		log.WarnContext(ctx, "sim executor: insufficient balance",
			slog.Float64("required", cost),
			slog.Float64("balance", balance),
		)
		e.record(false, 0)
		res := Result{
			Status: StatusFailed,
			Reason: fmt.Sprintf("%v: need %.2f, have %.2f", domain.ErrInsufficientBalance, cost, balance),
		}
		return e.finish(ctx, req, res, false)
	}

	legA := e.fill(req, req.Pair.EventA, domain.VenueKalshi, req.Strategy.SideA, req.Strategy.PriceA)
	legB := e.fill(req, req.Pair.EventB, domain.VenuePolymarket, req.Strategy.SideB, req.Strategy.PriceB)
	for _, o := range []*domain.Order{&legA, &legB} {
		if err := e.orders.Create(ctx, *o); err != nil {
			return Result{}, fmt.Errorf("sim executor: create order: %w", err)
		}
		if e.positions != nil {
			if _, err := e.positions.ApplyFill(ctx, *o); err != nil {
				log.ErrorContext(ctx, "sim executor: position update failed",
					slog.String("order_id", o.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		// A partial simulated fill never completes; its remainder is cancelled.
		if o.Status == domain.OrderStatusPartial {
			_ = o.Transition(domain.OrderStatusCancelled, e.now())
		}
		if err := e.orders.Update(ctx, *o); err != nil {
			return Result{}, fmt.Errorf("sim executor: update order: %w", err)
		}
	}

	pnl := hedgePnL(legA, legB, e.cfg.FeeRate)
	imbalance := math.Abs(legA.FilledSize - legB.FilledSize)
	metrics.FillImbalance.Observe(imbalance / req.Size)

	res := Result{
		Success: true,
		Status:  StatusSuccess,
		Reason:  fmt.Sprintf("simulated fills A %.2f @ %.4f, B %.2f @ %.4f", legA.FilledSize, legA.AvgFillPrice, legB.FilledSize, legB.AvgFillPrice),
		LegA:    &legA,
		LegB:    &legB,
	}
	if imbalance > e.cfg.ImbalanceThreshold*req.Size {
		penalty := imbalance * e.cfg.ImbalancePenaltyRate
		pnl -= penalty
		res.Success = false
		res.Status = StatusPartial
		res.Reason = fmt.Sprintf("fill imbalance %.2f exceeds %.0f%% of size, penalty %.2f",
			imbalance, e.cfg.ImbalanceThreshold*100, penalty)
		log.WarnContext(ctx, "sim executor: fill imbalance",
			slog.Float64("imbalance", imbalance),
			slog.Float64("penalty", penalty),
		)
	}
	res.RealizedPnL = pnl
	e.record(res.Success, pnl)

	log.InfoContext(ctx, "sim executor: trade simulated",
		slog.Bool("success", res.Success),
		slog.Float64("realized_pnl", pnl),
	)
	return e.finish(ctx, req, res, true)
}

// fill builds a leg order and applies a simulated fill to it.
func (e *SimulatedEngine) fill(req Request, ev domain.Event, venue domain.Venue, side domain.Outcome, price float64) domain.Order {
	now := e.now()
	o := newOrder(req, venue, ev, side, price, now)
	o.ExchangeOrderID = "sim-" + uuid.New().String()

	e.mu.Lock()
	slippage := e.rng.Float64() * e.cfg.SlippageMax
	qty := req.Size
	if e.rng.Float64() < e.cfg.PartialFillProbability {
		qty = req.Size * (partialFillMin + e.rng.Float64()*(partialFillMax-partialFillMin))
	}
	e.mu.Unlock()

	_ = o.Transition(domain.OrderStatusSubmitted, now)
	_ = o.ApplyFill(domain.OrderFill{
		FilledQty:    qty,
		TotalQty:     req.Size,
		AvgFillPrice: price * (1 + slippage),
	}, now)
	return o
}

func (e *SimulatedEngine) record(success bool, pnl float64) {
	e.mu.Lock()
	s := &e.stats
	s.TotalTrades++
	if success {
		s.SuccessfulTrades++
	} else {
		s.FailedTrades++
	}
	s.TotalPnL += pnl
	s.CurrentBalance += pnl
	s.WinRate = float64(s.SuccessfulTrades) / float64(s.TotalTrades)
	s.AvgProfit = 0
	if s.SuccessfulTrades > 0 {
		s.AvgProfit = s.TotalPnL / float64(s.SuccessfulTrades)
	}
	balance := s.CurrentBalance
	e.mu.Unlock()
	metrics.SimBalance.Set(balance)
}

func (e *SimulatedEngine) finish(ctx context.Context, req Request, res Result, executed bool) (Result, error) {
	var pnl *float64
	if executed {
		pnl = &res.RealizedPnL
	}
	if err := e.opps.MarkCompleted(ctx, req.Opportunity.ID, executed, e.now(), pnl, res.Reason); err != nil {
		return res, fmt.Errorf("sim executor: mark completed: %w", err)
	}
	metrics.Executions.WithLabelValues(e.Name(), string(res.Status)).Inc()
	publishResult(ctx, e.bus, e.Name(), req, res, e.logger)
	return res, nil
}
