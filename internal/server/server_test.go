package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/cache/memory"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/service"
	"github.com/alanyoungcy/crossarb/internal/store/memstore"
)

const apiKey = "test-key"

type apiFixture struct {
	srv    *httptest.Server
	stores domain.Stores
	events []domain.Event
	sim    *executor.SimulatedEngine
}

type fakeBlobs struct{}

func (fakeBlobs) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	return []domain.BlobInfo{{Path: prefix + "orders/2025/01/orders_before_20250101T000000Z.jsonl", Size: 42}}, nil
}

func (fakeBlobs) Exists(ctx context.Context, path string) (bool, error) { return true, nil }

func newAPI(t *testing.T, healthErr error) apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := memstore.New().Stores()
	bus := memory.NewBus(0)
	quotes := memory.NewQuoteCache()

	closeA := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	closeB := time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)
	events, err := stores.Events.UpsertBatch(context.Background(), []domain.Event{
		{Venue: domain.VenueKalshi, ExternalID: "KXBTC", Title: "Will Bitcoin be above $70,000 on Dec 31, 2025?", CloseTime: &closeA, Active: true},
		{Venue: domain.VenuePolymarket, ExternalID: "btc-70k", Title: "Will Bitcoin trade above $70,000 on December 31, 2025?", CloseTime: &closeB, Active: true},
	})
	require.NoError(t, err)

	matcher := service.NewMatchService(stores, bus, service.MatchConfig{MinSimilarity: 75, TimeWindow: 24 * time.Hour}, logger)
	positions := service.NewPositionService(stores, quotes, bus, logger)
	opps := service.NewOpportunityService(stores, bus, logger)
	sim := executor.NewSimulatedEngine(executor.SimConfig{Stores: stores, StartingBalance: 10000, Logger: logger})

	checks := map[string]handler.HealthCheck{
		"store": func(context.Context) error { return healthErr },
	}
	h := Handlers{
		Health:        handler.NewHealthHandler(checks, logger),
		Pairs:         handler.NewPairHandler(matcher, logger),
		Positions:     handler.NewPositionHandler(positions, logger),
		Opportunities: handler.NewOpportunityHandler(opps, logger),
		Status:        handler.NewStatusHandler("arbitrage", "simulation", true, sim, logger),
		Archives:      handler.NewArchiveHandler(fakeBlobs{}, stores.Audit, logger),
	}
	srv := httptest.NewServer(NewHandler(Config{APIKey: apiKey}, h, nil, nil, logger))
	t.Cleanup(srv.Close)
	return apiFixture{srv: srv, stores: stores, events: events, sim: sim}
}

func (f apiFixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", apiKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestPairLifecycle(t *testing.T) {
	f := newAPI(t, nil)
	a, b := f.events[0], f.events[1]

	code, body := f.do(t, http.MethodGet, "/api/candidates", nil)
	require.Equal(t, http.StatusOK, code)
	cands := body["candidates"].([]any)
	require.Len(t, cands, 1)
	first := cands[0].(map[string]any)
	assert.GreaterOrEqual(t, first["similarity"].(float64), 75.0)
	assert.Equal(t, 11*3600.0, first["close_time_gap_seconds"])

	code, body = f.do(t, http.MethodPost, "/api/pairs", map[string]string{
		"event_a_id": a.ID, "event_b_id": b.ID, "approved_by": "alice",
	})
	require.Equal(t, http.StatusCreated, code)
	pairID := body["id"].(string)
	assert.Equal(t, "alice", body["approved_by"])

	// Approving again is idempotent.
	code, body = f.do(t, http.MethodPost, "/api/pairs", map[string]string{
		"event_a_id": a.ID, "event_b_id": b.ID, "approved_by": "bob",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, pairID, body["id"])

	code, body = f.do(t, http.MethodGet, "/api/pairs", nil)
	require.Equal(t, http.StatusOK, code)
	pairs := body["pairs"].([]any)
	require.Len(t, pairs, 1)
	assert.Equal(t, "KXBTC", pairs[0].(map[string]any)["event_a"].(map[string]any)["external_id"])

	code, _ = f.do(t, http.MethodPost, "/api/pairs/"+pairID+"/pause", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = f.do(t, http.MethodGet, "/api/pairs", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["pairs"])
}

func TestApprovePairErrors(t *testing.T) {
	f := newAPI(t, nil)
	a, b := f.events[0], f.events[1]

	code, _ := f.do(t, http.MethodPost, "/api/pairs", map[string]string{"event_a_id": a.ID})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/pairs", map[string]string{"event_a_id": b.ID, "event_b_id": a.ID})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/pairs", map[string]string{"event_a_id": a.ID, "event_b_id": "missing"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/api/pairs", map[string]any{"event_a_id": a.ID, "event_b_id": b.ID, "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRejectCandidate(t *testing.T) {
	f := newAPI(t, nil)
	a, b := f.events[0], f.events[1]

	code, _ := f.do(t, http.MethodPost, "/api/candidates/reject", map[string]string{
		"event_a_id": a.ID, "event_b_id": b.ID, "rejected_by": "ops",
	})
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(t, http.MethodGet, "/api/candidates", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["candidates"])

	code, _ = f.do(t, http.MethodGet, "/api/candidates?window=soon", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReadEndpoints(t *testing.T) {
	f := newAPI(t, nil)
	ctx := context.Background()

	require.NoError(t, f.stores.Opportunities.Insert(ctx, domain.ArbitrageOpportunity{
		ID: "opp-1", PairID: "pair-1", DetectedAt: time.Now().UTC(), Spread: 0.0226, Kind: domain.StrategyAYesBNo,
	}))

	code, body := f.do(t, http.MethodGet, "/api/opportunities?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	opps := body["opportunities"].([]any)
	require.Len(t, opps, 1)
	assert.Equal(t, "a_yes_b_no", opps[0].(map[string]any)["kind"])

	code, body = f.do(t, http.MethodGet, "/api/opportunities/opp-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "opp-1", body["opportunity"].(map[string]any)["id"])
	assert.Empty(t, body["orders"])

	code, _ = f.do(t, http.MethodGet, "/api/opportunities/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodGet, "/api/positions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["positions"])

	code, body = f.do(t, http.MethodGet, "/api/pnl", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "total_pnl")

	code, body = f.do(t, http.MethodGet, "/api/mode", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "simulation", body["trading_mode"])
	assert.Equal(t, true, body["execution_enabled"])

	code, body = f.do(t, http.MethodGet, "/api/archives", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["objects"], 1)

	code, _ = f.do(t, http.MethodGet, "/api/archives?prefix=secrets/", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	require.NoError(t, f.stores.Audit.Log(ctx, "pair_verified", map[string]any{"pair_id": "p"}))
	code, body = f.do(t, http.MethodGet, "/api/audit?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["entries"])
}

func TestSimStatsAndReset(t *testing.T) {
	f := newAPI(t, nil)

	code, body := f.do(t, http.MethodGet, "/api/sim/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10000.0, body["current_balance"])
	assert.Contains(t, body, "runtime_seconds")

	code, body = f.do(t, http.MethodPost, "/api/sim/reset", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, body["total_trades"])
}

func TestAuthAndPublicRoutes(t *testing.T) {
	f := newAPI(t, nil)

	resp, err := http.Get(f.srv.URL + "/api/pairs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(data), "crossarb_"))
}

func TestHealthDegraded(t *testing.T) {
	f := newAPI(t, errors.New("connection refused"))

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]any)["store"])
}
