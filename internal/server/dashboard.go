package server

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/validation"
)

// dashboardRequest is what the web dashboard posts: an address plus the
// handful of portfolio numbers it can read from a block explorer.
type dashboardRequest struct {
	WalletAddress string             `json:"walletAddress"`
	Portfolio     dashboardPortfolio `json:"portfolio"`
}

type dashboardPortfolio struct {
	TotalValue   float64         `json:"totalValue"`
	WalletAge    float64         `json:"walletAge"` // days
	Transactions float64         `json:"transactions"`
	LastActivity json.RawMessage `json:"lastActivity,omitempty"` // unix seconds/ms or RFC 3339
}

// Neutral context used when the caller has no protocol or market data.
const (
	dashboardTVL             = 1_000_000_000
	dashboardUtilization     = 50.0
	dashboardDefaultRate     = 2.0
	dashboardVolatility      = 30.0
	dashboardOnChainScore    = 50.0
	dashboardRequestedBy     = "Frontend_User"
	dashboardMaxLastActivity = 128

	// Upper bounds keep the integer conversions exact.
	dashboardMaxWalletAge    = 100 * 365
	dashboardMaxTransactions = 1e9
)

// dashboardAnalyzeHandler fills a full signal payload from the dashboard
// shape and neutral defaults, then analyzes it like /v1/analyze.
func (s *Server) dashboardAnalyzeHandler(c *gin.Context) {
	var req dashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be {walletAddress, portfolio}",
		})
		return
	}

	in, errs := req.toInput(s.now())
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "Request validation failed",
			"details": errs,
		})
		return
	}
	in.Metadata.IdempotencyKey = c.GetHeader(IdempotencyHeader)
	s.analyze(c, in)
}

func (r dashboardRequest) toInput(now time.Time) (engine.Input, validation.ValidationErrors) {
	p := r.Portfolio
	errs := validation.Validate(
		validation.Required("walletAddress", r.WalletAddress),
		validation.ValidAddress("walletAddress", r.WalletAddress),
		finite("portfolio.totalValue", p.TotalValue),
		validation.InRange("portfolio.walletAge", p.WalletAge, 0, dashboardMaxWalletAge),
		validation.InRange("portfolio.transactions", p.Transactions, 0, dashboardMaxTransactions),
	)

	idle, err := daysSince(p.LastActivity, now)
	if err != nil {
		errs = append(errs, validation.ValidationError{Field: "portfolio.lastActivity", Message: err.Error()})
	}
	if len(errs) > 0 {
		return engine.Input{}, errs
	}

	total := p.TotalValue
	wallet := signals.WalletSignals{
		Address:               r.WalletAddress,
		AgeDays:               int(p.WalletAge),
		TransactionCount:      int(p.Transactions),
		DaysSinceLastActivity: idle,
		BalanceUSD:            &total,
		PortfolioUSD:          &total,
		Reputation: signals.Reputation{
			OnChainScore: signals.Float(dashboardOnChainScore),
		},
	}
	protocol := signals.ProtocolHealthIndicators{
		TotalValueLockedUSD: dashboardTVL,
		UtilizationRate:     signals.Float(dashboardUtilization),
		DefaultRate:         signals.Float(dashboardDefaultRate),
	}
	market := signals.MarketVolatilityFlags{
		VolatilityIndex: signals.Float(dashboardVolatility),
		Sentiment:       signals.SentimentNeutral,
		Congestion:      signals.CongestionMedium,
	}
	meta := signals.RequestMetadata{
		WalletAddress: r.WalletAddress,
		RequestedBy:   dashboardRequestedBy,
		RequestType:   signals.RequestManualReview,
	}
	return engine.Input{Wallet: wallet, Protocol: protocol, Market: market, Metadata: meta}, nil
}

func finite(field string, v float64) func() *validation.ValidationError {
	return func() *validation.ValidationError {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &validation.ValidationError{Field: field, Message: "must be a finite number"}
		}
		return nil
	}
}

type lastActivityError string

func (e lastActivityError) Error() string { return string(e) }

// daysSince converts the dashboard's lastActivity into whole idle days.
// Absent values mean "active now".
func daysSince(raw json.RawMessage, now time.Time) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if len(raw) > dashboardMaxLastActivity {
		return 0, lastActivityError("too long")
	}

	var at time.Time
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, lastActivityError("must be a timestamp")
		}
		if s == "" {
			return 0, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			if t, err = time.Parse(time.DateOnly, s); err != nil {
				return 0, lastActivityError("must be RFC 3339 or unix seconds")
			}
		}
		at = t
	} else {
		n, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || n < 0 || math.IsInf(n, 0) {
			return 0, lastActivityError("must be RFC 3339 or unix seconds")
		}
		if n > 1e12 { // milliseconds
			n /= 1000
		}
		at = time.Unix(int64(n), 0)
	}

	d := now.Sub(at)
	if d < 0 {
		return 0, nil
	}
	return int(d / (24 * time.Hour)), nil
}
