package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
)

const wallet = "0xAbC0000000000000000000000000000000000001"

func testHub(opts ...Option) *Hub {
	return NewHub(slog.New(slog.DiscardHandler), opts...)
}

func analysis(d decision.Decision, score int) *engine.AnalysisResult {
	return &engine.AnalysisResult{
		WalletAddress: wallet,
		Decision:      d,
		RiskScore:     score,
		Source:        decision.SourceRulesOnly,
	}
}

func analysisEvent(d decision.Decision, score int) *Event {
	return &Event{Type: EventAnalysis, Wallet: strings.ToLower(wallet), Data: analysis(d, score)}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true, MinRiskScore: 99}}

	assert.True(t, h.shouldSend(client, analysisEvent(decision.NoAction, 3)))
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventEnforcement, EventWalletMonitored},
	}}

	assert.True(t, h.shouldSend(client, &Event{Type: EventEnforcement}))
	assert.True(t, h.shouldSend(client, &Event{Type: EventWalletMonitored}))
	assert.False(t, h.shouldSend(client, &Event{Type: EventAnalysis}))
}

func TestShouldSend_WalletFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{Wallets: []string{wallet}}}

	other := &Event{Type: EventAnalysis, Wallet: "0x0000000000000000000000000000000000000002"}

	assert.True(t, h.shouldSend(client, analysisEvent(decision.Monitor, 30)), "match is case-insensitive")
	assert.False(t, h.shouldSend(client, other))
	assert.True(t, h.shouldSend(client, &Event{Type: EventAnalysis}), "events without a wallet pass")
}

func TestShouldSend_DecisionAndScoreFilters(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{
		Decisions:    []decision.Decision{decision.RequestSeverityAnalysis, decision.EnforceAction},
		MinRiskScore: 70,
	}}

	assert.True(t, h.shouldSend(client, analysisEvent(decision.EnforceAction, 90)))
	assert.False(t, h.shouldSend(client, analysisEvent(decision.RequestSeverityAnalysis, 65)), "below score floor")
	assert.False(t, h.shouldSend(client, analysisEvent(decision.Monitor, 75)), "decision not subscribed")

	monitored := &Event{Type: EventWalletMonitored, Data: map[string]any{"label": "treasury"}}
	assert.True(t, h.shouldSend(client, monitored), "analysis filters only apply to analysis payloads")
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	assert.True(t, h.shouldSend(client, analysisEvent(decision.NoAction, 0)))
}

func TestSubscription_Decode(t *testing.T) {
	var sub Subscription
	err := json.Unmarshal([]byte(`{"eventTypes":["enforcement"],"decisions":["ENFORCE_ACTION"],"minRiskScore":80}`), &sub)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventEnforcement}, sub.EventTypes)
	assert.Equal(t, []decision.Decision{decision.EnforceAction}, sub.Decisions)
	assert.Equal(t, 80, sub.MinRiskScore)

	err = json.Unmarshal([]byte(`{"decisions":["PANIC"]}`), &sub)
	assert.Error(t, err, "unknown decisions are rejected")
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func runHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
}

func register(t *testing.T, h *Hub, sub Subscription) *Client {
	t.Helper()
	client := &Client{hub: h, send: make(chan []byte, 256), sub: sub}
	h.register <- client
	return client
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var ev struct {
			Event
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &ev))
		return ev.Event
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
		return Event{}
	}
}

func TestHub_Stats_Initial(t *testing.T) {
	stats := testHub().Stats()
	assert.Equal(t, 0, stats["connectedClients"])
	assert.Equal(t, int64(0), stats["totalEvents"])
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	runHub(t, h)

	client := register(t, h, Subscription{AllEvents: true})
	assert.Eventually(t, func() bool { return h.Stats()["connectedClients"] == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), h.Stats()["peakClients"])

	h.unregister <- client
	assert.Eventually(t, func() bool { return h.Stats()["connectedClients"] == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), h.Stats()["peakClients"], "peak survives disconnect")
}

func TestHub_BroadcastAnalysis(t *testing.T) {
	h := testHub()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }
	runHub(t, h)

	client := register(t, h, Subscription{AllEvents: true})

	h.BroadcastAnalysis(analysis(decision.Monitor, 40))
	ev := receive(t, client)
	assert.Equal(t, EventAnalysis, ev.Type)
	assert.Equal(t, strings.ToLower(wallet), ev.Wallet)
	assert.True(t, fixed.Equal(ev.Timestamp))

	h.BroadcastAnalysis(analysis(decision.EnforceAction, 95))
	assert.Equal(t, EventEnforcement, receive(t, client).Type)

	h.BroadcastAnalysis(nil)
	assert.Eventually(t, func() bool { return h.Stats()["totalEvents"] == int64(2) }, time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastWatchlist(t *testing.T) {
	h := testHub()
	runHub(t, h)
	client := register(t, h, Subscription{AllEvents: true})

	h.BroadcastWatchlist(wallet, true, map[string]string{"label": "treasury"})
	assert.Equal(t, EventWalletMonitored, receive(t, client).Type)

	h.BroadcastWatchlist(wallet, false, nil)
	assert.Equal(t, EventWalletUnmonitored, receive(t, client).Type)
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	runHub(t, h)

	client := register(t, h, Subscription{EventTypes: []EventType{EventEnforcement}})

	h.BroadcastAnalysis(analysis(decision.NoAction, 5))
	time.Sleep(100 * time.Millisecond)
	select {
	case <-client.send:
		t.Error("client should not receive analysis events")
	default:
	}

	h.BroadcastAnalysis(analysis(decision.EnforceAction, 100))
	assert.Equal(t, EventEnforcement, receive(t, client).Type)
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	client := register(t, h, Subscription{AllEvents: true})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after context cancellation")
	}
	_, open := <-client.send
	assert.False(t, open, "client channels are closed on shutdown")

	rec := httptest.NewRecorder()
	h.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheckOrigin(t *testing.T) {
	h := testHub(WithAllowedOrigins([]string{"https://dashboard.example"}))

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://api.example/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, h.checkOrigin(req("")), "non-browser clients")
	assert.True(t, h.checkOrigin(req("http://api.example")), "same host")
	assert.True(t, h.checkOrigin(req("https://dashboard.example")))
	assert.False(t, h.checkOrigin(req("https://evil.example")))

	assert.True(t, testHub(WithAllowedOrigins([]string{"*"})).checkOrigin(req("https://evil.example")))
}

func TestHandleWebSocket_EndToEnd(t *testing.T) {
	h := testHub()
	runHub(t, h)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteJSON(Subscription{MinRiskScore: 50}))
	assert.Eventually(t, func() bool { return h.Stats()["connectedClients"] == 1 }, time.Second, 10*time.Millisecond)
	// Give the read pump time to apply the subscription.
	time.Sleep(50 * time.Millisecond)

	h.BroadcastAnalysis(analysis(decision.Monitor, 30))
	h.BroadcastAnalysis(analysis(decision.RequestSeverityAnalysis, 65))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type EventType             `json:"type"`
		Data engine.AnalysisResult `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventAnalysis, ev.Type)
	assert.Equal(t, 65, ev.Data.RiskScore)
	assert.Equal(t, decision.RequestSeverityAnalysis, ev.Data.Decision)
}

func TestWithMaxClients(t *testing.T) {
	h := testHub(WithMaxClients(1))
	runHub(t, h)
	register(t, h, Subscription{AllEvents: true})
	assert.Eventually(t, func() bool { return h.Stats()["connectedClients"] == 1 }, time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	h.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
