package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for connecting to the wallet risk API.
type Config struct {
	APIURL      string        // Base URL, e.g. "http://localhost:8080"
	RequestedBy string        // Recorded on analyses and monitored wallets
	Timeout     time.Duration // Per-request timeout; zero means 30s
}

// RiskClient is a pure HTTP client for the wallet risk API.
type RiskClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewRiskClient creates a new client for the wallet risk API.
func NewRiskClient(cfg Config) *RiskClient {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RiskClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

func (e apiError) String() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Details))
	for i, d := range e.Details {
		parts[i] = d.Field + ": " + d.Message
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *RiskClient) doRequest(ctx context.Context, method, path string, query url.Values, body any, headers map[string]string) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if len(respBody) == 0 {
		return nil, nil
	}
	return json.RawMessage(respBody), nil
}

// Portfolio is the dashboard-shaped summary accepted by POST /analyze.
type Portfolio struct {
	TotalValue   float64 `json:"totalValue"`
	WalletAge    int     `json:"walletAge"`
	Transactions int     `json:"transactions"`
	LastActivity string  `json:"lastActivity,omitempty"`
}

// AnalyzePortfolio scores a wallet from portfolio numbers, letting the
// server fill neutral market and protocol context.
func (c *RiskClient) AnalyzePortfolio(ctx context.Context, address string, p Portfolio, idempotencyKey string) (json.RawMessage, error) {
	body := map[string]any{
		"walletAddress": address,
		"portfolio":     p,
	}
	return c.doRequest(ctx, http.MethodPost, "/analyze", nil, body, idempotency(idempotencyKey))
}

// AnalyzeSignals scores a full signal payload. The wallet address and
// requester are filled in when the payload omits them.
func (c *RiskClient) AnalyzeSignals(ctx context.Context, address string, payload map[string]any, idempotencyKey string) (json.RawMessage, error) {
	body := maps.Clone(payload)
	if body == nil {
		body = map[string]any{}
	}

	wallet, _ := body["wallet"].(map[string]any)
	wallet = maps.Clone(wallet)
	if wallet == nil {
		wallet = map[string]any{}
	}
	if _, ok := wallet["address"]; !ok {
		wallet["address"] = address
	}
	body["wallet"] = wallet

	meta, _ := body["metadata"].(map[string]any)
	meta = maps.Clone(meta)
	if meta == nil {
		meta = map[string]any{}
	}
	if _, ok := meta["requestedBy"]; !ok && c.cfg.RequestedBy != "" {
		meta["requestedBy"] = c.cfg.RequestedBy
	}
	body["metadata"] = meta

	return c.doRequest(ctx, http.MethodPost, "/v1/analyze", nil, body, idempotency(idempotencyKey))
}

// WalletHistory returns recorded analyses for a wallet, newest first.
func (c *RiskClient) WalletHistory(ctx context.Context, address string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/wallets/"+url.PathEscape(address)+"/analyses", q, nil, nil)
}

// ListMonitored returns the monitored-wallet list.
func (c *RiskClient) ListMonitored(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/monitored", nil, nil, nil)
}

// Monitor adds a wallet to the monitored list.
func (c *RiskClient) Monitor(ctx context.Context, address, label string) (json.RawMessage, error) {
	body := map[string]string{
		"address": address,
		"label":   label,
		"addedBy": c.cfg.RequestedBy,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/monitored", nil, body, nil)
}

// Unmonitor removes a wallet from the monitored list.
func (c *RiskClient) Unmonitor(ctx context.Context, address string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/v1/monitored/"+url.PathEscape(address), nil, nil, nil)
	return err
}

func idempotency(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Idempotency-Key": key}
}
