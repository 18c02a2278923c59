package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/pipeline"
	"github.com/alanyoungcy/crossarb/internal/server"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/server/ws"
	"github.com/alanyoungcy/crossarb/internal/service"
)

const (
	// candidateTTL keeps the loop from re-announcing a pending candidate on
	// every catalog refresh.
	candidateTTL    = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

// services are the domain services every mode shares.
type services struct {
	catalog   *service.CatalogService
	matcher   *service.MatchService
	opps      *service.OpportunityService
	positions *service.PositionService
	risk      *service.RiskService
	detector  *arbitrage.Detector
}

func (a *App) buildServices(deps *Dependencies) services {
	cfg := a.cfg
	positions := service.NewPositionService(deps.Stores, deps.Quotes, deps.Bus, a.logger)
	return services{
		catalog: service.NewCatalogService(deps.Stores.Events, deps.Bus, a.logger, deps.VenueA, deps.VenueB),
		matcher: service.NewMatchService(deps.Stores, deps.Bus, service.MatchConfig{
			MinSimilarity: cfg.Matching.MinSimilarity,
			TimeWindow:    cfg.Matching.TimeWindow.Duration,
		}, a.logger),
		opps:      service.NewOpportunityService(deps.Stores, deps.Bus, a.logger),
		positions: positions,
		risk: service.NewRiskService(positions, service.RiskConfig{
			MaxTradeSize:         cfg.Trading.MaxTradeSize,
			MaxPositionPerMarket: cfg.Trading.MaxPositionPerMarket,
		}, a.logger),
		detector: arbitrage.NewDetector(arbitrage.DetectorConfig{
			VenueA:        deps.VenueA,
			VenueB:        deps.VenueB,
			Quotes:        deps.Quotes,
			FeeRate:       cfg.Trading.FeeRate,
			MinSpread:     cfg.Trading.MinSpread,
			TradeSize:     cfg.Trading.MaxTradeSize,
			MaxConcurrent: cfg.Trading.MaxConcurrentPairs,
			Logger:        a.logger,
		}),
	}
}

// ArbitrageMode runs the full loop: matching, detection, execution, the
// operator API and the archiver.
func (a *App) ArbitrageMode(ctx context.Context, deps *Dependencies) error {
	return a.runLoop(ctx, deps, true)
}

// MonitorMode detects and alerts without ever placing an order.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	return a.runLoop(ctx, deps, false)
}

func (a *App) runLoop(ctx context.Context, deps *Dependencies, execute bool) error {
	a.logger.InfoContext(ctx, "starting loop", slog.Bool("execute", execute))

	svc := a.buildServices(deps)
	if err := a.importPairs(ctx, svc); err != nil {
		return err
	}

	var (
		engine executor.Engine
		sim    *executor.SimulatedEngine
	)
	if execute {
		engine, sim = a.buildEngine(deps, svc.positions)
	}

	g, ctx := errgroup.WithContext(ctx)

	orch := pipeline.NewOrchestrator(pipeline.OrchestratorDeps{
		Catalog:       svc.catalog,
		Matcher:       svc.matcher,
		Detector:      svc.detector,
		Opportunities: svc.opps,
		Risk:          svc.risk,
		Positions:     svc.positions,
		Engine:        engine,
		Sink:          deps.Notifier,
		Bus:           deps.Bus,
		Locks:         deps.Locks,
		Logger:        a.logger,
	}, pipeline.OrchestratorConfig{
		Execute:         execute,
		TradeSize:       a.cfg.Trading.MaxTradeSize,
		MinSimilarity:   a.cfg.Matching.MinSimilarity,
		MatchWindow:     a.cfg.Matching.TimeWindow.Duration,
		CatalogInterval: a.cfg.Matching.RefreshInterval.Duration,
		TickInterval:    a.cfg.Trading.PriceFetchInterval.Duration,
		Cooldown:        a.cfg.Trading.Cooldown.Duration,
		CandidateTTL:    candidateTTL,
	})
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if deps.Archiver != nil {
		archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.S3.ArchiveRetention.Duration, a.logger)
		g.Go(func() error {
			return archiver.RunCron(ctx, a.cfg.S3.ArchiveCron)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc, sim, execute)
	}

	return g.Wait()
}

// buildEngine returns the live engine, or the simulated engine together with
// its concrete handle for the stats endpoints.
func (a *App) buildEngine(deps *Dependencies, positions *service.PositionService) (executor.Engine, *executor.SimulatedEngine) {
	t := a.cfg.Trading
	if t.Live() {
		a.logger.Warn("LIVE TRADING ENABLED: real orders will be placed")
		return executor.NewLiveEngine(executor.LiveConfig{
			VenueA:             deps.VenueA,
			VenueB:             deps.VenueB,
			Stores:             deps.Stores,
			Positions:          positions,
			Bus:                deps.Bus,
			FeeRate:            t.FeeRate,
			SettleDelay:        t.SettleDelay.Duration,
			PollInterval:       t.PollInterval.Duration,
			FillTimeout:        t.OrderTimeout.Duration,
			ImbalanceThreshold: t.ImbalanceThreshold,
			Logger:             a.logger,
		}), nil
	}

	s := a.cfg.Simulation
	var rng *rand.Rand
	if s.Seed != 0 {
		rng = rand.New(rand.NewSource(s.Seed))
	}
	sim := executor.NewSimulatedEngine(executor.SimConfig{
		Stores:                 deps.Stores,
		Positions:              positions,
		Bus:                    deps.Bus,
		FeeRate:                t.FeeRate,
		SlippageMax:            s.SlippageMax,
		PartialFillProbability: s.PartialFillProbability,
		StartingBalance:        s.StartingBalance,
		ImbalanceThreshold:     t.ImbalanceThreshold,
		ImbalancePenaltyRate:   s.ImbalancePenaltyRate,
		Rand:                   rng,
		Logger:                 a.logger,
	})
	return sim, sim
}

// MatchMode refreshes the catalog once, announces the best candidates and
// returns them.
func (a *App) MatchMode(ctx context.Context, deps *Dependencies) ([]domain.MatchCandidate, error) {
	svc := a.buildServices(deps)

	res, err := svc.catalog.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: refresh catalog: %w", err)
	}
	if err := a.importPairsAfterRefresh(ctx, svc); err != nil {
		return nil, err
	}

	cands, err := svc.matcher.FindCandidates(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("app: find candidates: %w", err)
	}
	if limit := a.cfg.Matching.MaxCandidates; limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}

	a.logger.InfoContext(ctx, "match report",
		slog.Int("venue_a_events", res.Upserted[domain.VenueKalshi]),
		slog.Int("venue_b_events", res.Upserted[domain.VenuePolymarket]),
		slog.Int("skipped_records", res.Skipped),
		slog.Int("candidates", len(cands)),
	)
	for i, c := range cands {
		a.logger.InfoContext(ctx, "candidate",
			slog.Int("rank", i+1),
			slog.Int("similarity", c.Similarity),
			slog.String("event_a_id", c.EventA.ID),
			slog.String("event_a", c.EventA.Title),
			slog.String("event_b_id", c.EventB.ID),
			slog.String("event_b", c.EventB.Title),
		)
		if err := deps.Notifier.PostMatchCandidate(ctx, c); err != nil {
			a.logger.WarnContext(ctx, "failed to post candidate", slog.String("error", err.Error()))
		}
	}
	return cands, nil
}

// importPairs seeds verified pairs from matching.pairs_file. The catalog is
// refreshed first so the file's external ids resolve.
func (a *App) importPairs(ctx context.Context, svc services) error {
	if a.cfg.Matching.PairsFile == "" {
		return nil
	}
	if _, err := svc.catalog.Refresh(ctx); err != nil {
		return fmt.Errorf("app: refresh catalog before pair import: %w", err)
	}
	return a.importPairsAfterRefresh(ctx, svc)
}

func (a *App) importPairsAfterRefresh(ctx context.Context, svc services) error {
	path := a.cfg.Matching.PairsFile
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("app: open pairs file: %w", err)
	}
	defer f.Close()

	n, err := svc.matcher.ImportPairs(ctx, f, "pairs_file")
	if err != nil {
		return fmt.Errorf("app: import pairs: %w", err)
	}
	a.logger.InfoContext(ctx, "pairs imported", slog.String("path", path), slog.Int("pairs", n))
	return nil
}

// startHTTPServer runs the operator API and the WebSocket hub inside g and
// shuts the server down when ctx ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc services, sim *executor.SimulatedEngine, execute bool) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:        a.cfg.Mode,
		TradingMode: a.cfg.Trading.Mode,
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// A nil *SimulatedEngine must reach the handler as a nil interface.
	var simEngine handler.SimEngine
	if sim != nil {
		simEngine = sim
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(deps.Health, a.logger),
		Pairs:         handler.NewPairHandler(svc.matcher, a.logger),
		Positions:     handler.NewPositionHandler(svc.positions, a.logger),
		Opportunities: handler.NewOpportunityHandler(svc.opps, a.logger),
		Status:        handler.NewStatusHandler(a.cfg.Mode, a.cfg.Trading.Mode, execute, simEngine, a.logger),
		Archives:      handler.NewArchiveHandler(deps.Blobs, deps.Stores.Audit, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.Limiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
