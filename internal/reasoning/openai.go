package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/logging"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/retry"
)

// Completer sends one chat exchange and returns the assistant's text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reasoning backend returned %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrBackendRejected) match 429 and 503 replies.
func (e *StatusError) Is(target error) bool {
	return target == ErrBackendRejected &&
		(e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable)
}

// OpenAIConfig configures an OpenAI-compatible chat-completions client.
type OpenAIConfig struct {
	BaseURL     string // e.g. "https://api.openai.com/v1"
	APIKey      string
	Model       string
	Temperature float64
	MaxAttempts int           // attempts for transient 5xx; 1 disables retry
	RetryDelay  time.Duration // base backoff
	HTTPClient  *http.Client
}

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAIClient implements Completer over HTTP with JSON response format.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIClient fills defaults. The caller's context bounds every call;
// the HTTP client carries no timeout of its own.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &OpenAIClient{cfg: cfg, httpClient: hc}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete posts to /chat/completions. Transient 5xx replies and transport
// errors are retried inside ctx's deadline; 4xx, 429 and 503 are not.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var content string
	policy := retry.Policy{
		Attempts:  c.cfg.MaxAttempts,
		BaseDelay: c.cfg.RetryDelay,
		MaxDelay:  2 * time.Second,
		Retryable: retryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logging.L(ctx).Warn("reasoning backend call failed, retrying",
				"model", c.cfg.Model, "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", err)
		},
	}
	err = policy.Do(ctx, func(ctx context.Context) error {
		out, err := c.post(ctx, payload)
		if err != nil {
			return err
		}
		content = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *OpenAIClient) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := truncate(strings.TrimSpace(string(body)), 256)
		return "", &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("%w: decode completion: %v", ErrMalformedResponse, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return cr.Choices[0].Message.Content, nil
}

// retryable keeps malformed replies and non-transient statuses from being
// sent again.
func retryable(err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return transient(se.StatusCode)
	}
	return true
}

// transient reports 5xx statuses worth retrying. 503 is a rejection.
func transient(code int) bool {
	return code >= 500 && code != http.StatusServiceUnavailable
}
