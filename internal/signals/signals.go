// Package signals defines the immutable input snapshots consumed by the
// risk engine: wallet behavior, protocol health, market conditions, and
// request metadata.
//
// Snapshots are plain values. The engine receives them by value and never
// writes to them, so a caller may reuse a snapshot across requests.
// Optional signals are pointers; nil means "not observed" and scores as
// neutral with an insufficient_data flag.
package signals

import (
	"strings"
	"time"
)

// CounterpartyList names the watch list a flagged counterparty appears on.
type CounterpartyList string

const (
	ListSanctions CounterpartyList = "sanctions"
	ListExploit   CounterpartyList = "exploit"
	ListBlacklist CounterpartyList = "blacklist"
	ListMixer     CounterpartyList = "mixer"
)

// TransactionVelocity counts transactions over rolling windows.
type TransactionVelocity struct {
	Last24h int `json:"last24h"`
	Last7d  int `json:"last7d"`
	Last30d int `json:"last30d"`
}

// DailyAverage30d is the mean daily transaction count over the 30-day window.
func (v TransactionVelocity) DailyAverage30d() float64 {
	return float64(v.Last30d) / 30.0
}

// SuspiciousPatterns are behavior flags computed upstream.
type SuspiciousPatterns struct {
	RapidDraining         bool `json:"rapidDraining"`
	UnusualActivity       bool `json:"unusualActivity"`
	NewWalletHighValue    bool `json:"newWalletHighValue"`
	MixerInteraction      bool `json:"mixerInteraction"`
	SanctionedInteraction bool `json:"sanctionedInteraction"`
}

// LendingPosition describes the wallet's borrow position, if any.
type LendingPosition struct {
	TotalBorrowedUSD   float64 `json:"totalBorrowedUsd"`
	TotalCollateralUSD float64 `json:"totalCollateralUsd"`
	HealthFactor       float64 `json:"healthFactor"` // < 1.0 is liquidatable
}

// FlaggedCounterparty is a counterparty found on a known list.
type FlaggedCounterparty struct {
	Address string           `json:"address"`
	List    CounterpartyList `json:"list"`
}

// Reputation holds identity and reputation attestations.
type Reputation struct {
	ENSName         string   `json:"ensName,omitempty"`
	GitcoinPassport bool     `json:"gitcoinPassport"`
	POAP            bool     `json:"poap"`
	OnChainScore    *float64 `json:"onChainScore,omitempty"` // 0-100
	CreditScore     *float64 `json:"creditScore,omitempty"`  // 0-1000
}

// WalletSignals is the behavioral snapshot of one wallet.
type WalletSignals struct {
	Address               string                `json:"address"`
	AgeDays               int                   `json:"ageDays"`
	TransactionCount      int                   `json:"transactionCount"`
	DaysSinceLastActivity int                   `json:"daysSinceLastActivity"`
	Velocity              *TransactionVelocity  `json:"velocity,omitempty"`
	BalanceUSD            *float64              `json:"balanceUsd,omitempty"`
	PortfolioUSD          *float64              `json:"portfolioUsd,omitempty"`
	BalanceVolatility     *float64              `json:"balanceVolatility,omitempty"` // coefficient of variation
	CounterpartyDiversity *int                  `json:"counterpartyDiversity,omitempty"`
	UniqueContracts       int                   `json:"uniqueContracts"`
	FlaggedCounterparties []FlaggedCounterparty `json:"flaggedCounterparties,omitempty"`
	Patterns              SuspiciousPatterns    `json:"patterns"`
	LiquidationCount      int                   `json:"liquidationCount"`
	Lending               *LendingPosition      `json:"lending,omitempty"`
	Reputation            Reputation            `json:"reputation"`
}

// OnList reports whether any flagged counterparty is on the given list.
func (w WalletSignals) OnList(list CounterpartyList) bool {
	for _, fc := range w.FlaggedCounterparties {
		if fc.List == list {
			return true
		}
	}
	return false
}

// ProtocolHealthIndicators describes the DeFi protocol the wallet uses.
type ProtocolHealthIndicators struct {
	Name                   string   `json:"name,omitempty"`
	CollateralizationRatio *float64 `json:"collateralizationRatio,omitempty"`
	UtilizationRate        *float64 `json:"utilizationRate,omitempty"` // 0-100
	DefaultRate            *float64 `json:"defaultRate,omitempty"`     // percent of loans
	LiquidationEvents24h   int      `json:"liquidationEvents24h"`
	OracleStale            bool     `json:"oracleStale"`
	OracleDeviation        float64  `json:"oracleDeviation"` // percent
	ExploitDetected        bool     `json:"exploitDetected"`
	PausedContracts        []string `json:"pausedContracts,omitempty"`
	TotalValueLockedUSD    float64  `json:"totalValueLockedUsd"`
}

// VolatilityBucket is a coarse realized-volatility regime.
type VolatilityBucket string

const (
	BucketLow     VolatilityBucket = "LOW"
	BucketMedium  VolatilityBucket = "MEDIUM"
	BucketHigh    VolatilityBucket = "HIGH"
	BucketExtreme VolatilityBucket = "EXTREME"
)

// Congestion is the network congestion level.
type Congestion string

const (
	CongestionLow     Congestion = "LOW"
	CongestionMedium  Congestion = "MEDIUM"
	CongestionHigh    Congestion = "HIGH"
	CongestionExtreme Congestion = "EXTREME"
)

// Sentiment is the market sentiment label.
type Sentiment string

const (
	SentimentExtremeFear  Sentiment = "EXTREME_FEAR"
	SentimentFear         Sentiment = "FEAR"
	SentimentNeutral      Sentiment = "NEUTRAL"
	SentimentGreed        Sentiment = "GREED"
	SentimentExtremeGreed Sentiment = "EXTREME_GREED"
)

// MarketVolatilityFlags describes market-wide conditions at analysis time.
type MarketVolatilityFlags struct {
	VolatilityIndex *float64         `json:"volatilityIndex,omitempty"` // 0-100
	Bucket          VolatilityBucket `json:"bucket,omitempty"`
	Sentiment       Sentiment        `json:"sentiment,omitempty"`
	PriceShock      bool             `json:"priceShock"`
	BlackSwan       bool             `json:"blackSwan"`
	LiquidityCrunch bool             `json:"liquidityCrunch"`
	RegulatoryNews  bool             `json:"regulatoryNews"`
	Congestion      Congestion       `json:"congestion,omitempty"`
}

// RequestType classifies why an analysis was requested.
type RequestType string

const (
	RequestNewLoan        RequestType = "NEW_LOAN"
	RequestPositionReview RequestType = "POSITION_REVIEW"
	RequestScheduledCheck RequestType = "SCHEDULED_CHECK"
	RequestManualReview   RequestType = "MANUAL_REVIEW"
)

// Urgency of the request.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// RequestMetadata identifies a request for the audit trail. It is never
// read by scoring.
type RequestMetadata struct {
	RequestID      string      `json:"requestId"`
	WalletAddress  string      `json:"walletAddress"`
	RequestedBy    string      `json:"requestedBy"`
	Timestamp      time.Time   `json:"timestamp"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
	RequestType    RequestType `json:"requestType,omitempty"`
	Urgency        Urgency     `json:"urgency,omitempty"`
}

// Snapshot bundles the three signal sets scored together.
type Snapshot struct {
	Wallet   WalletSignals            `json:"wallet"`
	Protocol ProtocolHealthIndicators `json:"protocol"`
	Market   MarketVolatilityFlags    `json:"market"`
}

// Float returns a pointer to v, for building optional fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for building optional fields.
func Int(v int) *int { return &v }

// ShortAddress renders an address as 0x1234…abcd for logs and prompts.
func ShortAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
