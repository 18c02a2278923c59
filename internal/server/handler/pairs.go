package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PairService is the registry surface the pair handler needs.
// service.MatchService satisfies it.
type PairService interface {
	FindCandidates(ctx context.Context, minSimilarity int, window time.Duration) ([]domain.MatchCandidate, error)
	VerifyPair(ctx context.Context, eventAID, eventBID, approvedBy, notes string) (domain.VerifiedPair, error)
	DeactivatePair(ctx context.Context, pairID string) error
	RejectCandidate(ctx context.Context, eventAID, eventBID, rejectedBy string) error
	ListActivePairs(ctx context.Context) ([]domain.VerifiedPair, error)
}

// PairHandler serves the approve / reject / list / pause commands.
type PairHandler struct {
	pairs  PairService
	logger *slog.Logger
}

// NewPairHandler creates a PairHandler.
func NewPairHandler(pairs PairService, logger *slog.Logger) *PairHandler {
	return &PairHandler{pairs: pairs, logger: logHandler(logger, "pairs")}
}

type approvePairRequest struct {
	EventAID   string `json:"event_a_id"`
	EventBID   string `json:"event_b_id"`
	ApprovedBy string `json:"approved_by"`
	Notes      string `json:"notes"`
}

// Approve verifies a pair. Approving an already active pair returns it
// unchanged.
// POST /api/pairs
func (h *PairHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approvePairRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EventAID == "" || req.EventBID == "" {
		writeError(w, http.StatusBadRequest, "event_a_id and event_b_id are required")
		return
	}
	if strings.TrimSpace(req.ApprovedBy) == "" {
		req.ApprovedBy = "api"
	}

	pair, err := h.pairs.VerifyPair(r.Context(), req.EventAID, req.EventBID, req.ApprovedBy, req.Notes)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to verify pair", err)
		return
	}
	h.logger.InfoContext(r.Context(), "pair approved",
		slog.String("pair_id", pair.ID),
		slog.String("approved_by", pair.ApprovedBy),
	)
	writeJSON(w, http.StatusCreated, pair)
}

// List returns every active pair with its events.
// GET /api/pairs
func (h *PairHandler) List(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.pairs.ListActivePairs(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list pairs", err)
		return
	}
	if pairs == nil {
		pairs = []domain.VerifiedPair{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": pairs})
}

// Pause deactivates a pair so it is no longer monitored.
// POST /api/pairs/{id}/pause
func (h *PairHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "pair id is required")
		return
	}
	if err := h.pairs.DeactivatePair(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, "failed to pause pair", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": false})
}

type candidateResponse struct {
	EventA       domain.Event `json:"event_a"`
	EventB       domain.Event `json:"event_b"`
	Similarity   int          `json:"similarity"`
	CloseTimeGap *float64     `json:"close_time_gap_seconds"`
}

// Candidates returns match candidates from the current catalog.
// GET /api/candidates?min_similarity=75&window=24h
func (h *PairHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	minSim := queryInt(r, "min_similarity", 0, 100)
	var window time.Duration
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration such as 12h")
			return
		}
		window = d
	}

	cands, err := h.pairs.FindCandidates(r.Context(), minSim, window)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to find candidates", err)
		return
	}
	out := make([]candidateResponse, 0, len(cands))
	for _, c := range cands {
		resp := candidateResponse{EventA: c.EventA, EventB: c.EventB, Similarity: c.Similarity}
		if c.CloseTimeGap != nil {
			secs := c.CloseTimeGap.Seconds()
			resp.CloseTimeGap = &secs
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": out})
}

type rejectCandidateRequest struct {
	EventAID   string `json:"event_a_id"`
	EventBID   string `json:"event_b_id"`
	RejectedBy string `json:"rejected_by"`
}

// Reject records that two events must not be offered as a candidate again.
// POST /api/candidates/reject
func (h *PairHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectCandidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EventAID == "" || req.EventBID == "" {
		writeError(w, http.StatusBadRequest, "event_a_id and event_b_id are required")
		return
	}
	if strings.TrimSpace(req.RejectedBy) == "" {
		req.RejectedBy = "api"
	}
	if err := h.pairs.RejectCandidate(r.Context(), req.EventAID, req.EventBID, req.RejectedBy); err != nil {
		writeServiceError(w, r, h.logger, "failed to reject candidate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}
