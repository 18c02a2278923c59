package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	"github.com/alanyoungcy/crossarb/internal/cache/memory"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/service"
	"github.com/alanyoungcy/crossarb/internal/store/memstore"
	"github.com/alanyoungcy/crossarb/internal/venuetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type post struct {
	kind    string
	pairID  string
	status  string
	message string
}

// recordingSink captures every notification.
type recordingSink struct {
	mu    sync.Mutex
	posts []post
}

func (s *recordingSink) PostMatchCandidate(ctx context.Context, c domain.MatchCandidate) error {
	s.add(post{kind: "candidate", message: c.EventA.ExternalID + "|" + c.EventB.ExternalID})
	return nil
}

func (s *recordingSink) PostArbitrageAlert(ctx context.Context, pairID string, kind domain.StrategyKind, spread, expectedProfit float64) error {
	s.add(post{kind: "alert", pairID: pairID, message: string(kind)})
	return nil
}

func (s *recordingSink) PostExecutionUpdate(ctx context.Context, pairID, status, message string) error {
	s.add(post{kind: "execution", pairID: pairID, status: status, message: message})
	return nil
}

func (s *recordingSink) add(p post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, p)
}

func (s *recordingSink) byKind(kind string) []post {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []post
	for _, p := range s.posts {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

type harness struct {
	stores  domain.Stores
	gwA     *venuetest.Gateway
	gwB     *venuetest.Gateway
	sink    *recordingSink
	locks   *memory.LockManager
	matcher *service.MatchService
	engine  *executor.SimulatedEngine
	deps    OrchestratorDeps
}

func newHarness(maxTradeSize float64) harness {
	logger := discardLogger()
	stores := memstore.New().Stores()
	bus := memory.NewBus(0)
	quotes := memory.NewQuoteCache()
	gwA := venuetest.New(domain.VenueKalshi)
	gwB := venuetest.New(domain.VenuePolymarket)

	closeA := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	closeB := time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)
	gwA.SetMarkets(venuetest.Record{Event: domain.Event{
		Venue: domain.VenueKalshi, ExternalID: "KXBTC",
		Title: "Will Bitcoin be above $70,000 on Dec 31, 2025?", CloseTime: &closeA, Active: true,
	}})
	gwB.SetMarkets(venuetest.Record{Event: domain.Event{
		Venue: domain.VenuePolymarket, ExternalID: "btc-70k",
		Title: "Will Bitcoin trade above $70,000 on December 31, 2025?", CloseTime: &closeB, Active: true,
	}})

	positions := service.NewPositionService(stores, quotes, bus, logger)
	matcher := service.NewMatchService(stores, bus, service.MatchConfig{MinSimilarity: 75, TimeWindow: 24 * time.Hour}, logger)
	engine := executor.NewSimulatedEngine(executor.SimConfig{
		Stores:               stores,
		Positions:            positions,
		FeeRate:              0.03,
		StartingBalance:      10000,
		ImbalanceThreshold:   0.1,
		ImbalancePenaltyRate: 0.1,
		Rand:                 rand.New(rand.NewSource(1)),
		Logger:               logger,
	})
	sink := &recordingSink{}
	locks := memory.NewLockManager()

	return harness{
		stores:  stores,
		gwA:     gwA,
		gwB:     gwB,
		sink:    sink,
		locks:   locks,
		matcher: matcher,
		engine:  engine,
		deps: OrchestratorDeps{
			Catalog: service.NewCatalogService(stores.Events, bus, logger, gwA, gwB),
			Matcher: matcher,
			Detector: arbitrage.NewDetector(arbitrage.DetectorConfig{
				VenueA: gwA, VenueB: gwB, Quotes: quotes,
				FeeRate: 0.03, MinSpread: 0.01, TradeSize: 100, MaxConcurrent: 2,
				Logger: logger,
			}),
			Opportunities: service.NewOpportunityService(stores, bus, logger),
			Risk:          service.NewRiskService(positions, service.RiskConfig{MaxTradeSize: maxTradeSize}, logger),
			Positions:     positions,
			Engine:        engine,
			Sink:          sink,
			Locks:         locks,
			Logger:        logger,
		},
	}
}

func testConfig(execute bool) OrchestratorConfig {
	return OrchestratorConfig{
		Execute:         execute,
		TradeSize:       100,
		MinSimilarity:   75,
		MatchWindow:     24 * time.Hour,
		CatalogInterval: 5 * time.Minute,
		TickInterval:    time.Millisecond,
	}
}

// verifyAndQuote approves the bitcoin pair and quotes it at 0.55 YES on
// venue A and 0.40 NO on venue B.
func (h harness) verifyAndQuote(t *testing.T) domain.VerifiedPair {
	t.Helper()
	ctx := context.Background()
	a, err := h.stores.Events.GetByExternalID(ctx, domain.VenueKalshi, "KXBTC")
	require.NoError(t, err)
	b, err := h.stores.Events.GetByExternalID(ctx, domain.VenuePolymarket, "btc-70k")
	require.NoError(t, err)
	pair, err := h.matcher.VerifyPair(ctx, a.ID, b.ID, "ops", "")
	require.NoError(t, err)

	h.gwA.SetQuote("KXBTC", domain.Quote{Yes: 0.55, No: 0.47})
	h.gwB.SetQuote("btc-70k", domain.Quote{Yes: 0.62, No: 0.40})
	return pair
}

func TestTickAnnouncesCandidateOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1000)
	cfg := testConfig(false)
	cfg.CatalogInterval = 0
	o := NewOrchestrator(h.deps, cfg)

	report, err := o.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, report.CatalogRefreshed)
	assert.Equal(t, 1, report.NewCandidates)

	report, err = o.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, report.CatalogRefreshed)
	assert.Zero(t, report.NewCandidates)

	cands := h.sink.byKind("candidate")
	require.Len(t, cands, 1)
	assert.Equal(t, "KXBTC|btc-70k", cands[0].message)
}

func TestTickCatalogInterval(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1000)
	o := NewOrchestrator(h.deps, testConfig(false))
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	report, err := o.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, report.CatalogRefreshed)

	now = now.Add(time.Minute)
	report, err = o.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, report.CatalogRefreshed)

	now = now.Add(5 * time.Minute)
	report, err = o.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, report.CatalogRefreshed)
}

func TestTickExecutesOpportunity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1000)
	o := NewOrchestrator(h.deps, testConfig(true))

	_, err := o.Tick(ctx)
	require.NoError(t, err)
	pair := h.verifyAndQuote(t)

	report, err := o.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PairsEvaluated)
	assert.Equal(t, 1, report.Opportunities)
	assert.Equal(t, 1, report.Executions)

	alerts := h.sink.byKind("alert")
	require.Len(t, alerts, 1)
	assert.Equal(t, pair.ID, alerts[0].pairID)
	assert.Equal(t, string(domain.StrategyAYesBNo), alerts[0].message)

	updates := h.sink.byKind("execution")
	require.Len(t, updates, 1)
	assert.Equal(t, string(executor.StatusSuccess), updates[0].status)
	assert.Contains(t, updates[0].message, "Realized PnL")

	opps, err := h.stores.Opportunities.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.True(t, opps[0].Executed)
	assert.Equal(t, 1, h.engine.Stats().TotalTrades)
}

func TestTickMonitorModeNeverExecutes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1000)
	h.deps.Engine = nil
	o := NewOrchestrator(h.deps, testConfig(true))

	_, err := o.Tick(ctx)
	require.NoError(t, err)
	h.verifyAndQuote(t)

	report, err := o.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Opportunities)
	assert.Zero(t, report.Executions)
	assert.Len(t, h.sink.byKind("alert"), 1)
	assert.Empty(t, h.sink.byKind("execution"))
}

func TestTickRiskLimitSkipsExecution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(10)
	o := NewOrchestrator(h.deps, testConfig(true))

	_, err := o.Tick(ctx)
	require.NoError(t, err)
	h.verifyAndQuote(t)

	report, err := o.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Executions)

	updates := h.sink.byKind("execution")
	require.Len(t, updates, 1)
	assert.Equal(t, string(executor.StatusFailed), updates[0].status)
	assert.Contains(t, updates[0].message, "Not executed")
	assert.Zero(t, h.engine.Stats().TotalTrades)
}

type brokenEngine struct{}

func (brokenEngine) Name() string { return "broken" }

func (brokenEngine) Execute(ctx context.Context, req executor.Request) (executor.Result, error) {
	return executor.Result{}, errors.New("store unavailable")
}

func TestTickEngineErrorReportsFailedStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1000)
	h.deps.Engine = brokenEngine{}
	o := NewOrchestrator(h.deps, testConfig(true))

	_, err := o.Tick(ctx)
	require.NoError(t, err)
	h.verifyAndQuote(t)

	_, err = o.Tick(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")

	updates := h.sink.byKind("execution")
	require.Len(t, updates, 1)
	allowed := []string{string(executor.StatusSuccess), string(executor.StatusFailed), string(executor.StatusPartial)}
	assert.Contains(t, allowed, updates[0].status)
	assert.Equal(t, string(executor.StatusFailed), updates[0].status)
	assert.Contains(t, updates[0].message, "Internal error: store unavailable")
}

func TestTickSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1000)
	o := NewOrchestrator(h.deps, testConfig(false))

	unlock, err := h.locks.Acquire(ctx, "crossarb:orchestrator", time.Minute)
	require.NoError(t, err)

	report, err := o.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.False(t, report.CatalogRefreshed)

	unlock()
	report, err = o.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
}

func TestSafeTickRecoversPanic(t *testing.T) {
	h := newHarness(1000)
	h.deps.Catalog = nil
	h.deps.Matcher = nil
	o := NewOrchestrator(h.deps, testConfig(false))

	_, err := o.safeTick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(1000)
	o := NewOrchestrator(h.deps, testConfig(false))

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	o.sleep = func(ctx context.Context, d time.Duration) error {
		ticks++
		if ticks == 3 {
			cancel()
		}
		return ctx.Err()
	}

	err := o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, ticks)
}
