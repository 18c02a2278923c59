// Package app wires the stores, caches, venue gateways and services together
// and runs the configured mode: arbitrage, monitor or match.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/config"
)

// App runs one mode against dependencies built from cfg.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	cleanup func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run blocks until the mode finishes or ctx is cancelled. Resources stay open
// until Close.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", mode),
		slog.String("trading_mode", a.cfg.Trading.Mode),
		slog.String("store", a.cfg.Store.Driver),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", a.cfg.S3.Enabled),
	)
	started := time.Now()
	defer func() {
		a.logger.InfoContext(ctx, "mode finished", slog.Duration("uptime", time.Since(started)))
	}()

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.mu.Lock()
	a.cleanup = cleanup
	a.mu.Unlock()

	switch mode {
	case "arbitrage":
		return a.ArbitrageMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	case "match":
		_, err := a.MatchMode(ctx, deps)
		return err
	}
	return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
}

// Close releases everything Run wired. Later calls do nothing.
func (a *App) Close() {
	a.mu.Lock()
	cleanup := a.cleanup
	a.cleanup = nil
	a.mu.Unlock()

	if cleanup != nil {
		a.logger.Info("releasing resources")
		cleanup()
	}
}
