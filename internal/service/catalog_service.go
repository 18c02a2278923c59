package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// CatalogResult summarizes one catalog refresh.
type CatalogResult struct {
	Upserted map[domain.Venue]int `json:"upserted"`
	Skipped  int                  `json:"skipped"`
	Failed   []domain.Venue       `json:"failed,omitempty"`
}

// CatalogService pulls market listings from every venue and upserts them as
// normalized events.
type CatalogService struct {
	gateways []domain.VenueGateway
	events   domain.EventStore
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewCatalogService creates a CatalogService over the given gateways.
func NewCatalogService(
	events domain.EventStore,
	bus domain.SignalBus,
	logger *slog.Logger,
	gateways ...domain.VenueGateway,
) *CatalogService {
	return &CatalogService{
		gateways: gateways,
		events:   events,
		bus:      bus,
		logger:   logger.With(slog.String("component", "catalog_service")),
	}
}

// Refresh fetches every venue concurrently. A venue that fails to list is
// logged and reported in Failed without blocking the others; records that do
// not convert are skipped. Only store failures are returned as errors.
func (s *CatalogService) Refresh(ctx context.Context) (CatalogResult, error) {
	res := CatalogResult{Upserted: make(map[domain.Venue]int)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, gw := range s.gateways {
		g.Go(func() error {
			venue := gw.Venue()
			records, err := gw.ListMarkets(gctx)
			if err != nil {
				s.logger.WarnContext(gctx, "catalog_service: list markets failed",
					slog.String("venue", string(venue)),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				res.Failed = append(res.Failed, venue)
				mu.Unlock()
				return nil
			}

			events, skipped := s.convert(gctx, venue, records)
			stored, err := s.events.UpsertBatch(gctx, events)
			if err != nil {
				return fmt.Errorf("catalog_service: upsert %s events: %w", venue, err)
			}

			mu.Lock()
			res.Upserted[venue] = len(stored)
			res.Skipped += skipped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	s.logger.InfoContext(ctx, "catalog_service: refresh complete",
		slog.Any("upserted", res.Upserted),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed_venues", len(res.Failed)),
	)
	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":    "catalog_refreshed",
			"upserted": res.Upserted,
			"skipped":  res.Skipped,
			"failed":   res.Failed,
		})
		if pubErr := s.bus.Publish(ctx, domain.ChannelCatalog, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "catalog_service: publish event failed",
				slog.String("error", pubErr.Error()),
			)
		}
	}
	return res, nil
}

func (s *CatalogService) convert(ctx context.Context, venue domain.Venue, records []domain.MarketRecord) ([]domain.Event, int) {
	events := make([]domain.Event, 0, len(records))
	skipped := 0
	for _, rec := range records {
		ev, err := rec.ToEvent()
		if err == nil && (ev.ExternalID == "" || ev.Title == "") {
			err = fmt.Errorf("%w: missing id or title", domain.ErrMalformedMarket)
		}
		if err != nil {
			skipped++
			s.logger.WarnContext(ctx, "catalog_service: skipping market record",
				slog.String("venue", string(venue)),
				slog.String("error", err.Error()),
			)
			continue
		}
		ev.Venue = venue
		events = append(events, ev)
	}
	return events, skipped
}
