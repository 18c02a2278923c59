package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/cache/memory"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestEncodeFrame(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := encodeFrame(domain.ChannelExecutions, []byte(`{"event":"execution","success":true,"realized_pnl":2.15}`), at)
	require.NoError(t, err)

	st, err := DecodeFrame(data)
	require.NoError(t, err)
	m := st.AsMap()
	assert.Equal(t, domain.ChannelExecutions, m["channel"])
	assert.Equal(t, "2025-01-02T03:04:05Z", m["received_at"])
	payload := m["payload"].(map[string]any)
	assert.Equal(t, "execution", payload["event"])
	assert.Equal(t, true, payload["success"])
	assert.InDelta(t, 2.15, payload["realized_pnl"], 1e-9)

	data, err = encodeFrame(domain.ChannelCatalog, []byte("not json"), at)
	require.NoError(t, err)
	st, err = DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, "not json", st.AsMap()["raw"])
}

func TestHubRelaysBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewBus(0)
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "Monitor", TradingMode: "simulation"})
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	status, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, "status", status.AsMap()["channel"])
	assert.Equal(t, "monitor", status.AsMap()["payload"].(map[string]any)["mode"])

	// Subscriptions are attached asynchronously; publish until one lands.
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = bus.Publish(ctx, domain.ChannelOpportunities, []byte(`{"event":"opportunity_detected","pair_id":"p1"}`))
			}
		}
	}()

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelOpportunities, frame.AsMap()["channel"])
	assert.Equal(t, "p1", frame.AsMap()["payload"].(map[string]any)["pair_id"])
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelCatalog: true}}
	c.applySubscription(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelExecutions}})
	c.applySubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelCatalog}})

	assert.True(t, c.isSubscribed(domain.ChannelExecutions))
	assert.False(t, c.isSubscribed(domain.ChannelCatalog))
}
