package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

const manualUnwindNote = "manual unwind required"

// LiveConfig configures the live engine.
type LiveConfig struct {
	VenueA             domain.VenueGateway
	VenueB             domain.VenueGateway
	Stores             domain.Stores
	Positions          FillRecorder
	Bus                domain.SignalBus // optional
	FeeRate            float64
	SettleDelay        time.Duration
	PollInterval       time.Duration
	FillTimeout        time.Duration
	ImbalanceThreshold float64
	Now                func() time.Time
	Logger             *slog.Logger
}

// LiveEngine places both legs on the real venues, leg A first, and
// reconciles fills until both legs fill or the fill timeout expires.
type LiveEngine struct {
	venueA       domain.VenueGateway
	venueB       domain.VenueGateway
	orders       domain.OrderStore
	opps         domain.OpportunityStore
	audit        domain.AuditStore
	positions    FillRecorder
	bus          domain.SignalBus
	dedup        *Dedup
	feeRate      float64
	settleDelay  time.Duration
	pollInterval time.Duration
	fillTimeout  time.Duration
	imbalanceMax float64
	now          func() time.Time
	logger       *slog.Logger
}

var _ Engine = (*LiveEngine)(nil)

// NewLiveEngine creates a live engine.
func NewLiveEngine(cfg LiveConfig) *LiveEngine {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ImbalanceThreshold <= 0 {
		cfg.ImbalanceThreshold = 0.1
	}
	return &LiveEngine{
		venueA:       cfg.VenueA,
		venueB:       cfg.VenueB,
		orders:       cfg.Stores.Orders,
		opps:         cfg.Stores.Opportunities,
		audit:        cfg.Stores.Audit,
		positions:    cfg.Positions,
		bus:          cfg.Bus,
		dedup:        NewDedup(time.Hour),
		feeRate:      cfg.FeeRate,
		settleDelay:  cfg.SettleDelay,
		pollInterval: cfg.PollInterval,
		fillTimeout:  cfg.FillTimeout,
		imbalanceMax: cfg.ImbalanceThreshold,
		now:          cfg.Now,
		logger:       cfg.Logger.With(slog.String("component", "live_executor")),
	}
}

// Name returns the engine identifier.
func (e *LiveEngine) Name() string { return "live" }

// Execute runs one hedge. Leg B is only placed once leg A is accepted.
func (e *LiveEngine) Execute(ctx context.Context, req Request) (Result, error) {
	log := e.logger.With(
		slog.String("opportunity_id", req.Opportunity.ID),
		slog.String("pair_id", req.Pair.ID),
		slog.String("kind", string(req.Strategy.Kind)),
	)
	if e.dedup.IsDuplicate(req.Opportunity.ID) {
		log.WarnContext(ctx, "live executor: duplicate execution skipped")
		return Result{Status: StatusFailed, Reason: "duplicate execution request"}, nil
	}

	// 1. Mark started.
	if err := e.opps.MarkStarted(ctx, req.Opportunity.ID, e.now()); err != nil {
		return Result{}, fmt.Errorf("live executor: mark started: %w", err)
	}

	// 2. Leg A.
	legA := newLeg("A", e.venueA, req, req.Pair.EventA, req.Strategy.SideA, req.Strategy.PriceA, e.now())
	if err := e.orders.Create(ctx, legA.order); err != nil {
		return Result{}, fmt.Errorf("live executor: create leg A: %w", err)
	}
	if err := legA.place(ctx, e.now); err != nil {
		log.WarnContext(ctx, "live executor: leg A placement failed", slog.String("error", err.Error()))
		if serr := e.save(ctx, legA); serr != nil {
			return Result{}, serr
		}
		return e.finish(ctx, req, Result{
			Status: StatusFailed,
			Reason: "leg A placement failed: " + legA.order.Error,
			LegA:   &legA.order,
		})
	}
	if err := e.save(ctx, legA); err != nil {
		return Result{}, err
	}

	// 3. Let leg A settle, then check it once.
	_ = sleepCtx(ctx, e.settleDelay)
	e.pollAndSave(ctx, log, legA)

	// 4. Leg B.
	legB := newLeg("B", e.venueB, req, req.Pair.EventB, req.Strategy.SideB, req.Strategy.PriceB, e.now())
	if err := e.orders.Create(ctx, legB.order); err != nil {
		return Result{}, fmt.Errorf("live executor: create leg B: %w", err)
	}
	if err := legB.place(ctx, e.now); err != nil {
		log.ErrorContext(ctx, "live executor: leg B placement failed, unwinding leg A", slog.String("error", err.Error()))
		if serr := e.save(ctx, legB); serr != nil {
			return Result{}, serr
		}
		res, uerr := e.unwind(ctx, log, legA, legB.order.Error)
		if uerr != nil {
			return Result{}, uerr
		}
		res.LegB = &legB.order
		return e.finish(ctx, req, res)
	}
	if err := e.save(ctx, legB); err != nil {
		return Result{}, err
	}

	// 5. First look at leg B.
	e.pollAndSave(ctx, log, legB)

	// 6. Reconcile.
	res, err := e.reconcile(ctx, log, req, legA, legB)
	if err != nil {
		return Result{}, err
	}

	// 7. Complete.
	return e.finish(ctx, req, res)
}

// unwind cancels what is left of leg A after leg B could not be placed. Fills
// that already happened cannot be cancelled; they are flagged for a manual
// unwind and audited as unhedged exposure.
func (e *LiveEngine) unwind(ctx context.Context, log *slog.Logger, legA *leg, cause string) (Result, error) {
	bg := context.WithoutCancel(ctx)
	e.pollAndSave(bg, log, legA)
	e.recordFills(bg, log, legA)
	if err := legA.cancel(bg, e.now); err != nil {
		log.ErrorContext(ctx, "live executor: leg A cancel failed", slog.String("error", err.Error()))
	}

	res := Result{LegA: &legA.order}
	if filled := legA.order.FilledSize; filled > 0 {
		legA.order.Error = manualUnwindNote
		e.auditUnhedged(bg, log, legA.order, filled)
		res.Status = StatusPartial
		res.Reason = fmt.Sprintf("leg B placement failed (%s); leg A holds %.2f unhedged contracts, %s",
			cause, filled, manualUnwindNote)
	} else {
		res.Status = StatusFailed
		res.Reason = fmt.Sprintf("leg B placement failed (%s); leg A cancelled", cause)
	}
	if err := e.save(bg, legA); err != nil {
		return Result{}, err
	}
	return res, nil
}

// reconcile polls both legs until both fill or the deadline passes. On
// timeout both legs' remaining size is cancelled.
func (e *LiveEngine) reconcile(ctx context.Context, log *slog.Logger, req Request, legA, legB *leg) (Result, error) {
	deadline := e.now().Add(e.fillTimeout)
	for {
		if legA.filled() && legB.filled() {
			break
		}

		imbalance := 0.0
		if req.Size > 0 {
			imbalance = math.Abs(legA.order.FilledSize-legB.order.FilledSize) / req.Size
		}
		metrics.FillImbalance.Observe(imbalance)
		if imbalance > e.imbalanceMax {
			log.WarnContext(ctx, "live executor: leg fill imbalance",
				slog.Float64("leg_a_filled", legA.order.FilledSize),
				slog.Float64("leg_b_filled", legB.order.FilledSize),
				slog.Float64("imbalance", imbalance),
			)
		}

		if ctx.Err() != nil || !e.now().Before(deadline) {
			return e.timeout(ctx, log, legA, legB)
		}
		_ = sleepCtx(ctx, e.pollInterval)
		e.pollAndSave(ctx, log, legA)
		e.pollAndSave(ctx, log, legB)
	}

	e.recordFills(ctx, log, legA, legB)
	pnl := hedgePnL(legA.order, legB.order, e.feeRate)
	log.InfoContext(ctx, "live executor: both legs filled", slog.Float64("realized_pnl", pnl))
	return Result{
		Success:     true,
		Status:      StatusSuccess,
		Reason:      "both legs filled",
		LegA:        &legA.order,
		LegB:        &legB.order,
		RealizedPnL: pnl,
	}, nil
}

func (e *LiveEngine) timeout(ctx context.Context, log *slog.Logger, legA, legB *leg) (Result, error) {
	bg := context.WithoutCancel(ctx)
	e.recordFills(bg, log, legA, legB)
	for _, l := range []*leg{legA, legB} {
		if err := l.cancel(bg, e.now); err != nil {
			log.ErrorContext(bg, "live executor: cancel after timeout failed", slog.String("error", err.Error()))
		}
		if err := e.save(bg, l); err != nil {
			return Result{}, err
		}
	}

	a, b := legA.order.FilledSize, legB.order.FilledSize
	if a != b {
		unhedged := legA.order
		if b > a {
			unhedged = legB.order
		}
		e.auditUnhedged(bg, log, unhedged, math.Abs(a-b))
	}
	log.WarnContext(bg, "live executor: fill timeout, legs cancelled",
		slog.Float64("leg_a_filled", a),
		slog.Float64("leg_b_filled", b),
	)
	return Result{
		Status:      StatusFailed,
		Reason:      fmt.Sprintf("fill timeout after %s (leg A %.2f, leg B %.2f filled); remaining size cancelled", e.fillTimeout, a, b),
		LegA:        &legA.order,
		LegB:        &legB.order,
		RealizedPnL: hedgePnL(legA.order, legB.order, e.feeRate),
	}, nil
}

func (e *LiveEngine) pollAndSave(ctx context.Context, log *slog.Logger, l *leg) {
	if err := l.poll(ctx, e.now); err != nil {
		log.WarnContext(ctx, "live executor: poll failed", slog.String("error", err.Error()))
		return
	}
	if err := e.save(ctx, l); err != nil {
		log.WarnContext(ctx, "live executor: save after poll failed", slog.String("error", err.Error()))
	}
}

func (e *LiveEngine) save(ctx context.Context, l *leg) error {
	if err := e.orders.Update(ctx, l.order); err != nil {
		return fmt.Errorf("live executor: update leg %s: %w", l.name, err)
	}
	return nil
}

// recordFills forwards filled quantity to the position manager. Call it once
// per leg, before any cancel.
func (e *LiveEngine) recordFills(ctx context.Context, log *slog.Logger, legs ...*leg) {
	if e.positions == nil {
		return
	}
	for _, l := range legs {
		if _, err := e.positions.ApplyFill(ctx, l.order); err != nil {
			log.ErrorContext(ctx, "live executor: position update failed",
				slog.String("order_id", l.order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *LiveEngine) auditUnhedged(ctx context.Context, log *slog.Logger, o domain.Order, qty float64) {
	log.ErrorContext(ctx, "live executor: unhedged exposure",
		slog.String("order_id", o.ID),
		slog.String("venue", string(o.Venue)),
		slog.Float64("quantity", qty),
	)
	if err := e.audit.Log(ctx, "unhedged_exposure", map[string]any{
		"order_id":       o.ID,
		"opportunity_id": o.OpportunityID,
		"pair_id":        o.PairID,
		"venue":          string(o.Venue),
		"external_id":    o.ExternalID,
		"side":           string(o.Side),
		"quantity":       qty,
		"price":          o.FillPrice(),
	}); err != nil {
		log.WarnContext(ctx, "live executor: audit log failed", slog.String("error", err.Error()))
	}
}

func (e *LiveEngine) finish(ctx context.Context, req Request, res Result) (Result, error) {
	bg := context.WithoutCancel(ctx)
	var pnl *float64
	if res.LegA != nil && res.LegB != nil && res.LegA.FilledSize > 0 {
		pnl = &res.RealizedPnL
	}
	if err := e.opps.MarkCompleted(bg, req.Opportunity.ID, tradedAny(res), e.now(), pnl, res.Reason); err != nil {
		return res, fmt.Errorf("live executor: mark completed: %w", err)
	}
	metrics.Executions.WithLabelValues(e.Name(), string(res.Status)).Inc()
	publishResult(bg, e.bus, e.Name(), req, res, e.logger)
	return res, nil
}

// tradedAny reports whether either leg filled any quantity. Such an
// opportunity counts as executed even when the hedge is incomplete, so it is
// never retried on top of the exposure it already holds.
func tradedAny(res Result) bool {
	for _, o := range []*domain.Order{res.LegA, res.LegB} {
		if o != nil && o.FilledSize > 0 {
			return true
		}
	}
	return false
}
