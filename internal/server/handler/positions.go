package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PositionService is what the position handler reads.
// service.PositionService satisfies it.
type PositionService interface {
	List(ctx context.Context, openOnly bool) ([]domain.Position, error)
	TotalPnL(ctx context.Context) (domain.PnLSummary, error)
}

// PositionHandler serves positions and PnL.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logHandler(logger, "positions")}
}

// List returns open positions, or every position with ?all=true.
// GET /api/positions
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("all") != "true"
	positions, err := h.positions.List(r.Context(), openOnly)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// PnL returns realized and unrealized PnL across all positions.
// GET /api/pnl
func (h *PositionHandler) PnL(w http.ResponseWriter, r *http.Request) {
	sum, err := h.positions.TotalPnL(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to compute pnl", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
