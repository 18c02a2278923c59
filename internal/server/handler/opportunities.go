package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/service"
)

// OpportunityService reads recorded opportunities.
type OpportunityService interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)
	Get(ctx context.Context, id string) (service.OpportunityDetail, error)
}

// OpportunityHandler serves detected opportunities and their legs.
type OpportunityHandler struct {
	opps   OpportunityService
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(opps OpportunityService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{opps: opps, logger: logHandler(logger, "opportunities")}
}

// ListRecent returns the newest opportunities.
// GET /api/opportunities?limit=20
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opps, err := h.opps.ListRecent(r.Context(), queryInt(r, "limit", 20, 200))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list opportunities", err)
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// Get returns one opportunity with its orders.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.opps.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to get opportunity", err)
		return
	}
	if detail.Orders == nil {
		detail.Orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, detail)
}
