package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/executor"
)

// SimEngine exposes the paper-trading statistics.
// executor.SimulatedEngine satisfies it.
type SimEngine interface {
	Stats() executor.Stats
	ResetStats()
}

// StatusHandler reports the run mode and the simulation statistics.
type StatusHandler struct {
	mode        string
	tradingMode string
	execute     bool
	startedAt   time.Time
	sim         SimEngine
	logger      *slog.Logger
}

// NewStatusHandler creates a StatusHandler. sim is nil when trading live.
func NewStatusHandler(mode, tradingMode string, execute bool, sim SimEngine, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:        mode,
		tradingMode: tradingMode,
		execute:     execute,
		startedAt:   time.Now().UTC(),
		sim:         sim,
		logger:      logHandler(logger, "status"),
	}
}

// Mode reports whether the service is trading live or simulated.
// GET /api/mode
func (h *StatusHandler) Mode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":              h.mode,
		"trading_mode":      h.tradingMode,
		"execution_enabled": h.execute,
		"started_at":        h.startedAt.Format(time.RFC3339),
		"uptime_seconds":    int64(time.Since(h.startedAt).Seconds()),
	})
}

type simStatsResponse struct {
	executor.Stats
	RuntimeSeconds float64 `json:"runtime_seconds"`
}

// SimStats returns the simulated engine's statistics.
// GET /api/sim/stats
func (h *StatusHandler) SimStats(w http.ResponseWriter, r *http.Request) {
	if h.sim == nil {
		writeError(w, http.StatusNotFound, "simulation is not active")
		return
	}
	st := h.sim.Stats()
	writeJSON(w, http.StatusOK, simStatsResponse{Stats: st, RuntimeSeconds: st.Runtime.Seconds()})
}

// ResetSim restores the starting balance and clears the counters.
// POST /api/sim/reset
func (h *StatusHandler) ResetSim(w http.ResponseWriter, r *http.Request) {
	if h.sim == nil {
		writeError(w, http.StatusNotFound, "simulation is not active")
		return
	}
	h.sim.ResetStats()
	h.logger.InfoContext(r.Context(), "simulation reset")
	st := h.sim.Stats()
	writeJSON(w, http.StatusOK, simStatsResponse{Stats: st, RuntimeSeconds: st.Runtime.Seconds()})
}
