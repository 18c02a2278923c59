// Package server exposes the operator API: pair approval and review,
// positions, opportunities, simulation controls, metrics and a WebSocket
// event feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/server/middleware"
	"github.com/alanyoungcy/crossarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	// RateLimit is requests per minute per client; 0 disables limiting.
	RateLimit int
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health        *handler.HealthHandler
	Pairs         *handler.PairHandler
	Positions     *handler.PositionHandler
	Opportunities *handler.OpportunityHandler
	Status        *handler.StatusHandler
	Archives      *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, auth
// and optional rate limiting. /health and /metrics skip authentication.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, h, hub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/pairs", h.Pairs.Approve)
	mux.HandleFunc("GET /api/pairs", h.Pairs.List)
	mux.HandleFunc("POST /api/pairs/{id}/pause", h.Pairs.Pause)
	mux.HandleFunc("GET /api/candidates", h.Pairs.Candidates)
	mux.HandleFunc("POST /api/candidates/reject", h.Pairs.Reject)

	mux.HandleFunc("GET /api/positions", h.Positions.List)
	mux.HandleFunc("GET /api/pnl", h.Positions.PnL)

	mux.HandleFunc("GET /api/opportunities", h.Opportunities.ListRecent)
	mux.HandleFunc("GET /api/opportunities/{id}", h.Opportunities.Get)

	mux.HandleFunc("GET /api/mode", h.Status.Mode)
	mux.HandleFunc("GET /api/sim/stats", h.Status.SimStats)
	mux.HandleFunc("POST /api/sim/reset", h.Status.ResetSim)

	if h.Archives != nil {
		mux.HandleFunc("GET /api/archives", h.Archives.List)
		mux.HandleFunc("GET /api/audit", h.Archives.Audit)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var out http.Handler = mux
	out = middleware.Auth(cfg.APIKey, "/health", "/metrics")(out)
	if limiter != nil && cfg.RateLimit > 0 {
		out = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(out)
	}
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
