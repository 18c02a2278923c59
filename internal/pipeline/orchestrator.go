// Package pipeline runs the long-lived loops of the service: the
// detect-and-execute orchestrator and the cold-storage archiver.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/metrics"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/service"
)

// OrchestratorConfig tunes the monitoring loop.
type OrchestratorConfig struct {
	// Execute enables the engine. When false opportunities are recorded and
	// alerted but never traded.
	Execute         bool
	TradeSize       float64
	MinSimilarity   int
	MatchWindow     time.Duration
	CatalogInterval time.Duration
	TickInterval    time.Duration
	Cooldown        time.Duration
	// CandidateTTL suppresses re-announcing the same candidate.
	CandidateTTL time.Duration
	LockKey      string
	LockTTL      time.Duration
}

// Orchestrator wires the catalog, matcher, detector, engine and position
// manager into one sequential loop.
type Orchestrator struct {
	catalog   *service.CatalogService
	matcher   *service.MatchService
	detector  *arbitrage.Detector
	opps      *service.OpportunityService
	risk      *service.RiskService
	positions *service.PositionService
	engine    executor.Engine
	sink      notify.Sink
	bus       domain.SignalBus
	locks     domain.LockManager
	announced *executor.Dedup
	cfg       OrchestratorConfig
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	logger    *slog.Logger

	lastCatalog time.Time
}

// OrchestratorDeps holds the collaborators of an Orchestrator. Engine may be
// nil when Execute is false; Bus, Locks and Positions are optional.
type OrchestratorDeps struct {
	Catalog       *service.CatalogService
	Matcher       *service.MatchService
	Detector      *arbitrage.Detector
	Opportunities *service.OpportunityService
	Risk          *service.RiskService
	Positions     *service.PositionService
	Engine        executor.Engine
	Sink          notify.Sink
	Bus           domain.SignalBus
	Locks         domain.LockManager
	Logger        *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) *Orchestrator {
	if cfg.LockKey == "" {
		cfg.LockKey = "crossarb:orchestrator"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.CandidateTTL <= 0 {
		cfg.CandidateTTL = 24 * time.Hour
	}
	if cfg.Execute && deps.Engine == nil {
		cfg.Execute = false
	}
	return &Orchestrator{
		catalog:   deps.Catalog,
		matcher:   deps.Matcher,
		detector:  deps.Detector,
		opps:      deps.Opportunities,
		risk:      deps.Risk,
		positions: deps.Positions,
		engine:    deps.Engine,
		sink:      deps.Sink,
		bus:       deps.Bus,
		locks:     deps.Locks,
		announced: executor.NewDedup(cfg.CandidateTTL),
		cfg:       cfg,
		now:       time.Now,
		sleep:     sleepCtx,
		logger:    deps.Logger.With(slog.String("component", "orchestrator")),
	}
}

// TickReport summarises one loop iteration.
type TickReport struct {
	// Skipped is set when another instance holds the loop lock.
	Skipped          bool
	CatalogRefreshed bool
	NewCandidates    int
	PairsEvaluated   int
	Opportunities    int
	Executions       int
}

// Run loops until ctx is cancelled. Iteration errors and panics are logged
// and the loop continues.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "orchestrator starting",
		slog.Bool("execute", o.cfg.Execute),
		slog.Duration("tick_interval", o.cfg.TickInterval),
		slog.Duration("catalog_interval", o.cfg.CatalogInterval),
	)

	for {
		report, err := o.safeTick(ctx)
		switch {
		case err != nil:
			metrics.LoopIterations.WithLabelValues("error").Inc()
			o.logger.ErrorContext(ctx, "iteration failed", slog.String("error", err.Error()))
		case report.Skipped:
			metrics.LoopIterations.WithLabelValues("skipped").Inc()
		default:
			metrics.LoopIterations.WithLabelValues("ok").Inc()
		}

		if err := o.sleep(ctx, o.cfg.TickInterval); err != nil {
			o.logger.Info("orchestrator stopped")
			return ctx.Err()
		}
	}
}

// safeTick runs Tick and turns a panic into an error.
func (o *Orchestrator) safeTick(ctx context.Context) (report TickReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "iteration panicked", slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("orchestrator: panic: %v", r)
		}
	}()
	return o.Tick(ctx)
}

// Tick runs one iteration: refresh the catalog when due, announce new match
// candidates, evaluate every active pair and act on each opportunity in turn.
func (o *Orchestrator) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport

	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, o.cfg.LockKey, o.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			o.logger.DebugContext(ctx, "loop lock held elsewhere, skipping")
			report.Skipped = true
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("orchestrator: acquire lock: %w", err)
		}
		defer unlock()
	}

	if o.catalogDue() {
		n, err := o.refreshCatalog(ctx)
		if err != nil {
			return report, err
		}
		report.CatalogRefreshed = true
		report.NewCandidates = n
	}

	pairs, err := o.matcher.ListActivePairs(ctx)
	if err != nil {
		return report, fmt.Errorf("orchestrator: list pairs: %w", err)
	}
	report.PairsEvaluated = len(pairs)
	if len(pairs) == 0 {
		o.refreshMarks(ctx)
		return report, nil
	}

	found := arbitrage.Opportunities(o.detector.Monitor(ctx, pairs))
	report.Opportunities = len(found)

	for _, res := range found {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		executed, err := o.handle(ctx, res)
		if err != nil {
			return report, err
		}
		if executed {
			report.Executions++
			if err := o.sleep(ctx, o.cfg.Cooldown); err != nil {
				return report, err
			}
		}
	}

	o.refreshMarks(ctx)
	return report, nil
}

func (o *Orchestrator) catalogDue() bool {
	if o.catalog == nil {
		return false
	}
	return o.lastCatalog.IsZero() || o.now().Sub(o.lastCatalog) >= o.cfg.CatalogInterval
}

// refreshCatalog upserts both venues' listings and posts candidates not yet
// announced. It returns the number of candidates posted.
func (o *Orchestrator) refreshCatalog(ctx context.Context) (int, error) {
	res, err := o.catalog.Refresh(ctx)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: catalog refresh: %w", err)
	}
	o.lastCatalog = o.now()
	for _, v := range res.Failed {
		o.logger.WarnContext(ctx, "venue listing failed", slog.String("venue", string(v)))
	}

	cands, err := o.matcher.FindCandidates(ctx, o.cfg.MinSimilarity, o.cfg.MatchWindow)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: find candidates: %w", err)
	}

	posted := 0
	for _, c := range cands {
		if o.announced.IsDuplicate(c.EventA.ID + "|" + c.EventB.ID) {
			continue
		}
		if err := o.sink.PostMatchCandidate(ctx, c); err != nil {
			o.logger.WarnContext(ctx, "post match candidate failed", slog.String("error", err.Error()))
		}
		o.publishCandidate(ctx, c)
		posted++
	}
	o.logger.InfoContext(ctx, "catalog refreshed",
		slog.Int("candidates", len(cands)),
		slog.Int("announced", posted),
	)
	return posted, nil
}

// handle records and alerts one opportunity, then risk-checks and executes
// it when trading is enabled. It reports whether an execution was attempted.
func (o *Orchestrator) handle(ctx context.Context, res domain.EvaluationResult) (bool, error) {
	strat := *res.Strategy
	pair := res.Pair
	log := o.logger.With(
		slog.String("pair_id", pair.ID),
		slog.String("kind", string(strat.Kind)),
	)

	opp, err := o.opps.Record(ctx, res)
	if err != nil {
		return false, fmt.Errorf("orchestrator: record opportunity: %w", err)
	}
	if err := o.sink.PostArbitrageAlert(ctx, pair.ID, strat.Kind, strat.Spread, strat.ExpectedProfit); err != nil {
		log.WarnContext(ctx, "post arbitrage alert failed", slog.String("error", err.Error()))
	}
	if !o.cfg.Execute {
		return false, nil
	}

	if o.risk != nil {
		if err := o.risk.PreTradeCheck(ctx, pair, strat, o.cfg.TradeSize); err != nil {
			if !errors.Is(err, domain.ErrRiskLimit) {
				return false, err
			}
			log.InfoContext(ctx, "execution blocked by risk limit", slog.String("reason", err.Error()))
			o.postUpdate(ctx, log, pair.ID, string(executor.StatusFailed), "Not executed, "+err.Error())
			return false, nil
		}
	}

	result, err := o.engine.Execute(ctx, executor.Request{
		Pair:        pair,
		Strategy:    strat,
		Opportunity: opp,
		Size:        o.cfg.TradeSize,
	})
	if err != nil {
		o.postUpdate(ctx, log, pair.ID, string(executor.StatusFailed), "Internal error: "+err.Error())
		return true, fmt.Errorf("orchestrator: execute %s: %w", opp.ID, err)
	}

	log.InfoContext(ctx, "execution finished",
		slog.String("engine", o.engine.Name()),
		slog.String("status", string(result.Status)),
		slog.Float64("realized_pnl", result.RealizedPnL),
	)
	o.postUpdate(ctx, log, pair.ID, string(result.Status), executionMessage(result))
	return true, nil
}

func (o *Orchestrator) postUpdate(ctx context.Context, log *slog.Logger, pairID, status, msg string) {
	if err := o.sink.PostExecutionUpdate(ctx, pairID, status, msg); err != nil {
		log.WarnContext(ctx, "post execution update failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) publishCandidate(ctx context.Context, c domain.MatchCandidate) {
	if o.bus == nil {
		return
	}
	evt, err := json.Marshal(map[string]any{
		"event":      "match_candidate",
		"event_a_id": c.EventA.ID,
		"event_b_id": c.EventB.ID,
		"title_a":    c.EventA.Title,
		"title_b":    c.EventB.Title,
		"similarity": c.Similarity,
	})
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, domain.ChannelCandidates, evt); err != nil {
		o.logger.WarnContext(ctx, "publish candidate failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) refreshMarks(ctx context.Context) {
	if o.positions == nil {
		return
	}
	if _, err := o.positions.RefreshMarks(ctx); err != nil {
		o.logger.WarnContext(ctx, "refresh marks failed", slog.String("error", err.Error()))
	}
}

// executionMessage renders a one-line summary of an execution result.
func executionMessage(r executor.Result) string {
	msg := fmt.Sprintf("Realized PnL: $%.2f", r.RealizedPnL)
	if r.LegA != nil {
		msg += fmt.Sprintf("\nLeg A: %.2f/%.2f filled (%s)", r.LegA.FilledSize, r.LegA.RequestedSize, r.LegA.Status)
	}
	if r.LegB != nil {
		msg += fmt.Sprintf("\nLeg B: %.2f/%.2f filled (%s)", r.LegB.FilledSize, r.LegB.RequestedSize, r.LegB.Status)
	}
	if r.Reason != "" {
		msg += "\nReason: " + r.Reason
	}
	return msg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
