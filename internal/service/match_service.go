package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/matcher"
)

// MatchConfig holds the default candidate thresholds.
type MatchConfig struct {
	MinSimilarity int
	TimeWindow    time.Duration
}

// MatchService proposes cross-venue candidates and owns the verified pair
// registry.
type MatchService struct {
	events     domain.EventStore
	pairs      domain.PairStore
	rejections domain.RejectionStore
	bus        domain.SignalBus
	audit      domain.AuditStore
	cfg        MatchConfig
	logger     *slog.Logger
}

// NewMatchService creates a MatchService with all required dependencies.
func NewMatchService(
	stores domain.Stores,
	bus domain.SignalBus,
	cfg MatchConfig,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		events:     stores.Events,
		pairs:      stores.Pairs,
		rejections: stores.Rejections,
		bus:        bus,
		audit:      stores.Audit,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "match_service")),
	}
}

// FindCandidates scores unmatched active events of venue A against those of
// venue B. Zero arguments fall back to the configured thresholds.
func (s *MatchService) FindCandidates(ctx context.Context, minSimilarity int, window time.Duration) ([]domain.MatchCandidate, error) {
	if minSimilarity <= 0 {
		minSimilarity = s.cfg.MinSimilarity
	}
	if window <= 0 {
		window = s.cfg.TimeWindow
	}

	eventsA, err := s.events.ListUnmatched(ctx, domain.VenueKalshi)
	if err != nil {
		return nil, fmt.Errorf("match_service: list unmatched %s: %w", domain.VenueKalshi, err)
	}
	eventsB, err := s.events.ListUnmatched(ctx, domain.VenuePolymarket)
	if err != nil {
		return nil, fmt.Errorf("match_service: list unmatched %s: %w", domain.VenuePolymarket, err)
	}
	rejected, err := s.rejections.ListRejected(ctx)
	if err != nil {
		return nil, fmt.Errorf("match_service: list rejected: %w", err)
	}

	exclude := make(map[matcher.PairKey]struct{}, len(rejected))
	for _, r := range rejected {
		exclude[matcher.PairKey{EventAID: r.EventAID, EventBID: r.EventBID}] = struct{}{}
	}

	candidates := matcher.FindCandidates(eventsA, eventsB, matcher.Options{
		MinSimilarity: minSimilarity,
		TimeWindow:    window,
		Exclude:       exclude,
	})
	s.logger.InfoContext(ctx, "match_service: candidates found",
		slog.Int("venue_a_events", len(eventsA)),
		slog.Int("venue_b_events", len(eventsB)),
		slog.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// VerifyPair approves a candidate. Approving a pair that is already active
// returns the existing pair unchanged.
func (s *MatchService) VerifyPair(ctx context.Context, eventAID, eventBID, approvedBy, notes string) (domain.VerifiedPair, error) {
	if existing, err := s.pairs.FindActive(ctx, eventAID, eventBID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.VerifiedPair{}, fmt.Errorf("match_service: find pair: %w", err)
	}

	if err := s.checkVenue(ctx, eventAID, domain.VenueKalshi); err != nil {
		return domain.VerifiedPair{}, err
	}
	if err := s.checkVenue(ctx, eventBID, domain.VenuePolymarket); err != nil {
		return domain.VerifiedPair{}, err
	}

	pair, err := s.pairs.Create(ctx, domain.VerifiedPair{
		EventAID:   eventAID,
		EventBID:   eventBID,
		ApprovedBy: approvedBy,
		Notes:      notes,
	})
	if err != nil {
		return domain.VerifiedPair{}, fmt.Errorf("match_service: create pair: %w", err)
	}

	s.emit(ctx, "pair_verified", map[string]any{
		"pair_id":     pair.ID,
		"event_a_id":  eventAID,
		"event_b_id":  eventBID,
		"approved_by": approvedBy,
	})
	s.logger.InfoContext(ctx, "match_service: pair verified",
		slog.String("pair_id", pair.ID),
		slog.String("event_a", pair.EventA.ExternalID),
		slog.String("event_b", pair.EventB.ExternalID),
		slog.String("approved_by", approvedBy),
	)
	return pair, nil
}

func (s *MatchService) checkVenue(ctx context.Context, eventID string, want domain.Venue) error {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("match_service: get event %q: %w", eventID, err)
	}
	if ev.Venue != want {
		return fmt.Errorf("match_service: event %q is on %s, want %s: %w", eventID, ev.Venue, want, domain.ErrInvalidPair)
	}
	return nil
}

// DeactivatePair stops monitoring a pair. Unknown ids are logged and
// otherwise ignored.
func (s *MatchService) DeactivatePair(ctx context.Context, pairID string) error {
	err := s.pairs.Deactivate(ctx, pairID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "match_service: deactivate unknown pair",
			slog.String("pair_id", pairID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("match_service: deactivate pair %q: %w", pairID, err)
	}
	s.emit(ctx, "pair_deactivated", map[string]any{"pair_id": pairID})
	s.logger.InfoContext(ctx, "match_service: pair deactivated", slog.String("pair_id", pairID))
	return nil
}

// RejectCandidate records an operator rejection so the pair is not proposed
// again.
func (s *MatchService) RejectCandidate(ctx context.Context, eventAID, eventBID, rejectedBy string) error {
	if err := s.rejections.Reject(ctx, domain.RejectedCandidate{
		EventAID:   eventAID,
		EventBID:   eventBID,
		RejectedBy: rejectedBy,
	}); err != nil {
		return fmt.Errorf("match_service: reject candidate: %w", err)
	}
	s.emit(ctx, "candidate_rejected", map[string]any{
		"event_a_id":  eventAID,
		"event_b_id":  eventBID,
		"rejected_by": rejectedBy,
	})
	return nil
}

// ListActivePairs returns every active pair with its events.
func (s *MatchService) ListActivePairs(ctx context.Context) ([]domain.VerifiedPair, error) {
	pairs, err := s.pairs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("match_service: list active pairs: %w", err)
	}
	return pairs, nil
}

// pairSeed is one entry of the pairs YAML file.
type pairSeed struct {
	Kalshi     string `yaml:"kalshi"`
	Polymarket string `yaml:"polymarket"`
	Notes      string `yaml:"notes"`
}

type pairSeedFile struct {
	Pairs []pairSeed `yaml:"pairs"`
}

// ImportPairs verifies every pair listed in a YAML document of the form
//
//	pairs:
//	  - kalshi: KXBTC-25DEC31-T70000
//	    polymarket: will-bitcoin-be-above-70k-on-dec-31
//	    notes: optional
//
// Entries whose events are not in the catalog yet are skipped with a warning.
// It returns the number of pairs that are active after the import.
func (s *MatchService) ImportPairs(ctx context.Context, r io.Reader, approvedBy string) (int, error) {
	var file pairSeedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("match_service: decode pairs file: %w", err)
	}

	imported := 0
	for _, seed := range file.Pairs {
		a, errA := s.events.GetByExternalID(ctx, domain.VenueKalshi, seed.Kalshi)
		b, errB := s.events.GetByExternalID(ctx, domain.VenuePolymarket, seed.Polymarket)
		if err := errors.Join(errA, errB); err != nil {
			s.logger.WarnContext(ctx, "match_service: pair seed skipped",
				slog.String("kalshi", seed.Kalshi),
				slog.String("polymarket", seed.Polymarket),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, err := s.VerifyPair(ctx, a.ID, b.ID, approvedBy, seed.Notes); err != nil {
			s.logger.WarnContext(ctx, "match_service: pair seed rejected",
				slog.String("kalshi", seed.Kalshi),
				slog.String("polymarket", seed.Polymarket),
				slog.String("error", err.Error()),
			)
			continue
		}
		imported++
	}
	return imported, nil
}

func (s *MatchService) emit(ctx context.Context, event string, detail map[string]any) {
	if s.bus != nil {
		payload := map[string]any{"event": event}
		for k, v := range detail {
			payload[k] = v
		}
		evt, _ := json.Marshal(payload)
		if pubErr := s.bus.Publish(ctx, domain.ChannelPairs, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "match_service: publish event failed",
				slog.String("event", event),
				slog.String("error", pubErr.Error()),
			)
		}
	}
	if auditErr := s.audit.Log(ctx, event, detail); auditErr != nil {
		s.logger.WarnContext(ctx, "match_service: audit log failed",
			slog.String("event", event),
			slog.String("error", auditErr.Error()),
		)
	}
}
