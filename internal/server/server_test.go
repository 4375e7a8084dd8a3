package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/audit"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/config"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/logging"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/reasoning"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testWallet = "0x1111111111111111111111111111111111111111"

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	d := engine.DefaultConfig()
	return &config.Config{
		Port:             "0",
		Env:              "development",
		LogLevel:         "error",
		LogFormat:        "text",
		MaxRequestBody:   1 << 20,
		Reasoner:         config.ReasonerStub,
		ReasoningEnabled: true,
		ReasoningTimeout: time.Second,
		MaxInFlight:      4,
		AmbiguousLow:     d.AmbiguousLow,
		AmbiguousHigh:    d.AmbiguousHigh,
	}
}

// newTestServer creates a server with in-memory stores and a stub reasoner
func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	s, err := New(testConfig(), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Hub().Run(ctx)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) engine.AnalysisResult {
	t.Helper()
	var res engine.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func benignInput() engine.Input {
	return engine.Input{
		Wallet: signals.WalletSignals{
			Address:               testWallet,
			AgeDays:               400,
			TransactionCount:      200,
			DaysSinceLastActivity: 1,
			Velocity:              &signals.TransactionVelocity{Last24h: 2, Last7d: 14, Last30d: 60},
			BalanceUSD:            signals.Float(5000),
			BalanceVolatility:     signals.Float(0.1),
			CounterpartyDiversity: signals.Int(40),
		},
		Protocol: signals.ProtocolHealthIndicators{
			CollateralizationRatio: signals.Float(2.0),
			UtilizationRate:        signals.Float(50),
			DefaultRate:            signals.Float(2),
			TotalValueLockedUSD:    1e9,
		},
		Market: signals.MarketVolatilityFlags{
			VolatilityIndex: signals.Float(30),
			Sentiment:       signals.SentimentNeutral,
			Congestion:      signals.CongestionMedium,
		},
		Metadata: signals.RequestMetadata{
			RequestedBy: "risk-desk",
			RequestType: signals.RequestPositionReview,
		},
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "stub", resp.Reasoner)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "reasoner", resp.Checks[0].Name)
	assert.True(t, resp.Checks[0].Optional)
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.healthy.Store(false)
	w = do(t, s, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "not ready before Run")

	s.ready.Store(true)
	w = do(t, s, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/analyze", benignInput())

	w := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "walletrisk_analyses_total")
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

func TestAnalyze_Benign(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/analyze", benignInput())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decodeResult(t, w)
	assert.Equal(t, decision.NoAction, res.Decision)
	assert.Equal(t, decision.SourceRulesOnly, res.Source)
	assert.Equal(t, testWallet, res.WalletAddress)
	assert.Equal(t, testNow.Unix(), res.Timestamp, "server clock stamps requests without a timestamp")

	requestID := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, requestID)
	assert.Equal(t, requestID, res.Details.RequestID)
	assert.Equal(t, "risk-desk", res.Details.RequestedBy)
}

func TestAnalyze_UpstreamRequestID(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/analyze", benignInput(), "X-Request-ID", "lb-1234")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lb-1234", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "lb-1234", decodeResult(t, w).Details.RequestID)
}

func TestAnalyze_BlacklistedCounterpartyEnforces(t *testing.T) {
	s := newTestServer(t)

	in := benignInput()
	in.Wallet.FlaggedCounterparties = []signals.FlaggedCounterparty{
		{Address: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", List: signals.ListBlacklist},
	}
	w := do(t, s, http.MethodPost, "/v1/analyze", in)
	require.Equal(t, http.StatusOK, w.Code)

	res := decodeResult(t, w)
	assert.Equal(t, decision.EnforceAction, res.Decision)
	assert.True(t, res.CriticalOverride)
	assert.GreaterOrEqual(t, res.RiskScore, 80)
}

func TestAnalyze_ValidationFailed(t *testing.T) {
	s := newTestServer(t)

	in := benignInput()
	in.Wallet.Address = "not-an-address"
	in.Wallet.AgeDays = -1
	w := do(t, s, http.MethodPost, "/v1/analyze", in)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error   string `json:"error"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_failed", resp.Error)

	fields := make([]string, len(resp.Details))
	for i, d := range resp.Details {
		fields[i] = d.Field
	}
	assert.Contains(t, fields, "wallet.address")
	assert.Contains(t, fields, "wallet.ageDays")
}

func TestAnalyze_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/analyze", `{"wallet":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestAnalyze_IdempotencyKeyReplays(t *testing.T) {
	s := newTestServer(t)

	first := do(t, s, http.MethodPost, "/v1/analyze", benignInput(), IdempotencyHeader, "retry-1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := do(t, s, http.MethodPost, "/v1/analyze", benignInput(), IdempotencyHeader, "retry-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	history := do(t, s, http.MethodGet, "/v1/wallets/"+testWallet+"/analyses", nil)
	require.Equal(t, http.StatusOK, history.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(history.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestAnalyze_IdempotencyKeyReusedForAnotherWallet(t *testing.T) {
	s := newTestServer(t)

	first := do(t, s, http.MethodPost, "/v1/analyze", benignInput(), IdempotencyHeader, "k1")
	require.Equal(t, http.StatusOK, first.Code)

	sanctioned := benignInput()
	sanctioned.Wallet.Address = "0x2222222222222222222222222222222222222222"
	sanctioned.Wallet.FlaggedCounterparties = []signals.FlaggedCounterparty{
		{Address: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", List: signals.ListSanctions},
	}
	w := do(t, s, http.MethodPost, "/v1/analyze", sanctioned, IdempotencyHeader, "k1")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
	assert.Contains(t, w.Body.String(), "idempotency_key_conflict")
	assert.NotContains(t, w.Body.String(), string(decision.NoAction))

	// A fresh key analyzes the sanctioned wallet normally.
	w = do(t, s, http.MethodPost, "/v1/analyze", sanctioned, IdempotencyHeader, "k2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, decision.EnforceAction, decodeResult(t, w).Decision)
}

func TestRecord_DuplicateKeyFromAnotherWallet(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	stored := &engine.AnalysisResult{
		WalletAddress: testWallet,
		Decision:      decision.NoAction,
		Details:       engine.Details{IdempotencyKey: "shared"},
	}
	require.NoError(t, s.audit.Record(ctx, audit.NewRecord(stored, testNow)))

	other := &engine.AnalysisResult{
		WalletAddress: "0x2222222222222222222222222222222222222222",
		Decision:      decision.EnforceAction,
		Details:       engine.Details{IdempotencyKey: "shared"},
	}
	rec, err := s.record(ctx, other)
	require.ErrorIs(t, err, errKeyConflict)
	assert.Equal(t, testWallet, rec.WalletAddress)

	same := *stored
	same.Decision = decision.Monitor
	rec, err = s.record(ctx, &same)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, decision.NoAction, rec.Result.Decision)
}

func TestAnalyze_ConcurrentRetriesShareOneResult(t *testing.T) {
	s := newTestServer(t)

	const n = 8
	responses := make([]*httptest.ResponseRecorder, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			responses[i] = do(t, s, http.MethodPost, "/v1/analyze", benignInput(), IdempotencyHeader, "burst-1")
		}()
	}
	wg.Wait()

	fresh := 0
	for _, w := range responses {
		require.Equal(t, http.StatusOK, w.Code)
		if w.Header().Get("Idempotent-Replayed") == "" {
			fresh++
		}
		assert.JSONEq(t, responses[0].Body.String(), w.Body.String())
	}
	assert.Equal(t, 1, fresh, "exactly one request runs the analysis")
}

func TestAnalyze_ReasonerFailureIsRulesOnly(t *testing.T) {
	stub := reasoning.NewStubReasoner(0, 80)
	stub.Err = reasoning.ErrBackendRejected
	s := newTestServer(t, WithReasoner(stub))

	in := benignInput()
	in.Wallet.Patterns.MixerInteraction = true
	in.Wallet.Patterns.NewWalletHighValue = true
	in.Wallet.FlaggedCounterparties = []signals.FlaggedCounterparty{
		{Address: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", List: signals.ListMixer},
	}
	w := do(t, s, http.MethodPost, "/v1/analyze", in)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, decision.SourceRulesOnly, decodeResult(t, w).Source)
}

// ---------------------------------------------------------------------------
// Dashboard adapter
// ---------------------------------------------------------------------------

func TestDashboardAnalyze(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{
		"walletAddress": testWallet,
		"portfolio": map[string]any{
			"totalValue":   12500.5,
			"walletAge":    730,
			"transactions": 420,
			"lastActivity": testNow.Add(-72 * time.Hour).Format(time.RFC3339),
		},
	}
	w := do(t, s, http.MethodPost, "/analyze", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	for _, key := range []string{"decision", "risk_score", "confidence", "timestamp", "reasoning", "source", "flags"} {
		assert.Contains(t, raw, key)
	}

	res := decodeResult(t, w)
	assert.Equal(t, "Frontend_User", res.Details.RequestedBy)
	assert.Equal(t, signals.RequestManualReview, res.Details.RequestType)
	assert.True(t, res.Decision.Valid())
}

func TestDashboardAnalyze_Validation(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/analyze", map[string]any{
		"walletAddress": "0x123",
		"portfolio":     map[string]any{"lastActivity": "yesterday"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")
	assert.Contains(t, w.Body.String(), "walletAddress")
	assert.Contains(t, w.Body.String(), "portfolio.lastActivity")
}

func TestDashboardAnalyze_PortfolioCountsOutOfRange(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name      string
		portfolio map[string]any
		field     string
	}{
		{"huge age", map[string]any{"walletAge": 1e19, "transactions": 10}, "portfolio.walletAge"},
		{"negative age", map[string]any{"walletAge": -5, "transactions": 10}, "portfolio.walletAge"},
		{"huge transactions", map[string]any{"walletAge": 30, "transactions": 1e19}, "portfolio.transactions"},
		{"negative transactions", map[string]any{"walletAge": 30, "transactions": -1}, "portfolio.transactions"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/analyze", map[string]any{
				"walletAddress": testWallet,
				"portfolio":     tc.portfolio,
			})
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp struct {
				Details []struct {
					Field string `json:"field"`
				} `json:"details"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Len(t, resp.Details, 1)
			assert.Equal(t, tc.field, resp.Details[0].Field)
		})
	}
}

func TestDaysSince(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"absent", ``, 0, false},
		{"null", `null`, 0, false},
		{"empty string", `""`, 0, false},
		{"rfc3339", `"2026-04-28T12:00:00Z"`, 3, false},
		{"date only", `"2026-04-21"`, 10, false},
		{"unix seconds", `1777377600`, 3, false},
		{"unix millis", `1777377600000`, 3, false},
		{"future clamps to zero", `"2027-01-01T00:00:00Z"`, 0, false},
		{"garbage string", `"last week"`, 0, true},
		{"negative", `-5`, 0, true},
		{"object", `{}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := daysSince(json.RawMessage(tt.raw), testNow)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ---------------------------------------------------------------------------
// History and monitored wallets
// ---------------------------------------------------------------------------

func TestWalletHistory(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/v1/wallets/not-an-address/analyses", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_address")

	w = do(t, s, http.MethodGet, "/v1/wallets/"+testWallet+"/analyses?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/v1/wallets/"+testWallet+"/analyses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"walletAddress":"`+testWallet+`","analyses":[],"count":0}`, w.Body.String())

	do(t, s, http.MethodPost, "/v1/analyze", benignInput())
	do(t, s, http.MethodPost, "/v1/analyze", benignInput())

	upper := "0x" + strings.ToUpper(strings.TrimPrefix(testWallet, "0x"))
	w = do(t, s, http.MethodGet, "/v1/wallets/"+upper+"/analyses?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Analyses []struct {
			WalletAddress string            `json:"walletAddress"`
			Decision      decision.Decision `json:"decision"`
		} `json:"analyses"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, testWallet, resp.Analyses[0].WalletAddress)
}

func TestWalletHistory_Cursor(t *testing.T) {
	s := newTestServer(t)
	for range 3 {
		require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/analyze", benignInput()).Code)
	}

	type page struct {
		Analyses []struct {
			ID string `json:"id"`
		} `json:"analyses"`
		Count      int    `json:"count"`
		NextCursor string `json:"nextCursor"`
	}
	get := func(query string) page {
		w := do(t, s, http.MethodGet, "/v1/wallets/"+testWallet+"/analyses"+query, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var p page
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
		return p
	}

	first := get("?limit=2")
	require.Equal(t, 2, first.Count)
	require.NotEmpty(t, first.NextCursor)

	second := get("?limit=2&cursor=" + first.NextCursor)
	require.Equal(t, 1, second.Count)
	assert.Empty(t, second.NextCursor)

	ids := map[string]bool{}
	for _, a := range append(first.Analyses, second.Analyses...) {
		ids[a.ID] = true
	}
	assert.Len(t, ids, 3, "pages do not overlap")

	all := get("?limit=3")
	assert.Equal(t, 3, all.Count)
	assert.Empty(t, all.NextCursor)

	w := do(t, s, http.MethodGet, "/v1/wallets/"+testWallet+"/analyses?cursor=garbage!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"cursor"`)
}

func TestMonitoredWallets(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/monitored", map[string]string{"address": "bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")

	w = do(t, s, http.MethodPost, "/v1/monitored", map[string]string{
		"address": testWallet, "label": "treasury", "addedBy": "ops",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, s, http.MethodPost, "/v1/monitored", map[string]string{"address": testWallet})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Analyses stamp the monitored entry.
	do(t, s, http.MethodPost, "/v1/analyze", benignInput())

	w = do(t, s, http.MethodGet, "/v1/monitored", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Wallets []struct {
			Address      string            `json:"address"`
			Label        string            `json:"label"`
			LastDecision decision.Decision `json:"lastDecision"`
			LastScore    *int              `json:"lastScore"`
		} `json:"wallets"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "treasury", list.Wallets[0].Label)
	assert.Equal(t, decision.NoAction, list.Wallets[0].LastDecision)
	assert.NotNil(t, list.Wallets[0].LastScore)

	w = do(t, s, http.MethodDelete, "/v1/monitored/"+testWallet, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodDelete, "/v1/monitored/"+testWallet, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPolicyEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/v1/policy", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Weights       map[string]float64 `json:"weights"`
		AmbiguousBand struct {
			Low  float64 `json:"low"`
			High float64 `json:"high"`
		} `json:"ambiguousBand"`
		Reasoning struct {
			Enabled bool   `json:"enabled"`
			Backend string `json:"backend"`
		} `json:"reasoning"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Weights)
	assert.Equal(t, 60.0, resp.AmbiguousBand.Low)
	assert.Equal(t, 80.0, resp.AmbiguousBand.High)
	assert.True(t, resp.Reasoning.Enabled)
	assert.Equal(t, "stub", resp.Reasoning.Backend)
}

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

func TestRulesOnlyServer(t *testing.T) {
	s := newTestServer(t, WithReasoner(nil))

	assert.Empty(t, s.engine.Backend())
	w := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Checks, "no reasoner check without a backend")
}

func TestNewReasoner(t *testing.T) {
	cfg := testConfig()

	cfg.Reasoner = config.ReasonerNone
	r, err := newReasoner(cfg)
	require.NoError(t, err)
	assert.Nil(t, r)

	cfg.Reasoner = config.ReasonerStub
	r, err = newReasoner(cfg)
	require.NoError(t, err)
	assert.Equal(t, "stub", reasoning.NameOf(r))

	cfg.Reasoner = config.ReasonerOpenAI
	cfg.LLMAPIKey = "sk-test"
	r, err = newReasoner(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", reasoning.NameOf(r))

	cfg.Reasoner = "claude"
	_, err = newReasoner(cfg)
	assert.Error(t, err)
}

func TestSecurityHeadersAndCORS(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodOptions, "/v1/analyze", nil, "Origin", "http://localhost:3000")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), IdempotencyHeader)

	w = do(t, s, http.MethodGet, "/", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/escrow", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMaskDSN(t *testing.T) {
	masked := maskDSN("postgres://risk:secret@db:5432/walletrisk")
	assert.NotContains(t, masked, "secret")
	assert.Contains(t, masked, "risk:")
	assert.Contains(t, masked, "@db:5432/walletrisk")
}
