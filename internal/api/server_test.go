package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/tradecore/internal/bus"
	"github.com/seenimoa/tradecore/internal/config"
	"github.com/seenimoa/tradecore/internal/engine"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
)

func newTestServer(t *testing.T) (*Server, *storage.Store, *infra.KV, *bus.Bus) {
	t.Helper()
	store, err := storage.New("")
	require.NoError(t, err)
	kv := infra.NewKV("api:")
	b := bus.New()
	eng := engine.New(config.Config{}, engine.Deps{Store: store, KV: kv, Bus: b}, nil)
	return NewServer(config.APIConfig{}, eng, store, kv, b, nil), store, kv, b
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET %s", path)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var body map[string]string
	getJSON(t, ts, "/healthz", &body)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, engine.StateStopped, body["engine"])
}

func TestStateEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var st engine.State
	getJSON(t, ts, "/api/state", &st)
	require.Equal(t, engine.StateStopped, st.State)
	require.Zero(t, st.Ticks)
}

func TestCardsEndpoint(t *testing.T) {
	srv, _, kv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var empty map[string]json.RawMessage
	getJSON(t, ts, "/api/cards", &empty)
	require.Empty(t, empty, "no cards before the first tick")

	require.NoError(t, kv.PutJSON(cardRiskKey, map[string]any{"risk_headroom_ok": true}, time.Minute))
	require.NoError(t, kv.PutJSON(cardDecisionKey, map[string]any{"emitted": 3}, time.Minute))

	var cards map[string]json.RawMessage
	getJSON(t, ts, "/api/cards", &cards)
	require.Contains(t, cards, "risk")
	require.Contains(t, cards, "decision")
	require.NotContains(t, cards, "sentiment")
}

func TestSignalsEndpoint(t *testing.T) {
	srv, store, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	store.AppendSignal(models.TradingSignal{Kind: "PCR", InstrumentKey: "NSE_INDEX|Nifty 50"})

	var sigs []models.TradingSignal
	getJSON(t, ts, "/api/signals", &sigs)
	require.Len(t, sigs, 1)
	require.Equal(t, "PCR", sigs[0].Kind)
}

func TestRiskEventsEndpoint(t *testing.T) {
	srv, store, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	store.AppendRiskEvent(models.RiskEvent{Type: "PASS", TS: time.Now()})
	store.AppendRiskEvent(models.RiskEvent{Type: "RATE_LIMIT", TS: time.Now().Add(-48 * time.Hour)})

	var events []models.RiskEvent
	getJSON(t, ts, "/api/risk/events", &events)
	require.Len(t, events, 1, "only events from the last 24h")
	require.Equal(t, "PASS", events[0].Type)
}

func TestWebSocketStreamsBusEvents(t *testing.T) {
	srv, _, _, b := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)
	go srv.bridgeBus(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the hub to register the client before publishing.
	deadline := time.Now().Add(time.Second)
	for srv.hub.ClientCount() == 0 {
		require.False(t, time.Now().After(deadline), "client never registered")
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, b.PublishJSON(models.TopicEngineState, "engine", map[string]string{"state": "RUNNING"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, models.TopicEngineState, msg.Type)
	require.Contains(t, string(msg.Data), "RUNNING")
}
