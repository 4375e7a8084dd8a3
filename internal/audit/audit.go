// Package audit keeps the trail of completed wallet analyses.
//
// Every AnalysisResult the service returns is recorded with its request
// identifiers. Records are append-only; the trail is read back per wallet
// and, for idempotent retries, by idempotency key.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/idgen"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/pagination"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/validation"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("audit: record not found")

// ErrDuplicateKey is returned when an idempotency key is reused.
var ErrDuplicateKey = errors.New("audit: idempotency key already recorded")

// Default and maximum page sizes for ListByWallet.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Record is one persisted analysis.
type Record struct {
	ID               string                 `json:"id"`
	RequestID        string                 `json:"requestId"`
	IdempotencyKey   string                 `json:"idempotencyKey,omitempty"`
	WalletAddress    string                 `json:"walletAddress"`
	Decision         decision.Decision      `json:"decision"`
	RiskScore        int                    `json:"riskScore"`
	Confidence       int                    `json:"confidence"`
	Source           decision.Source        `json:"source"`
	CriticalOverride bool                   `json:"criticalOverride"`
	Result           *engine.AnalysisResult `json:"result"`
	CreatedAt        time.Time              `json:"createdAt"`
}

// NewRecord builds a record from a result. Wallet addresses are stored
// lower-case so lookups are case-insensitive.
func NewRecord(res *engine.AnalysisResult, createdAt time.Time) *Record {
	return &Record{
		ID:               idgen.WithPrefix("wa_"),
		RequestID:        res.Details.RequestID,
		IdempotencyKey:   res.Details.IdempotencyKey,
		WalletAddress:    NormalizeAddress(res.WalletAddress),
		Decision:         res.Decision,
		RiskScore:        res.RiskScore,
		Confidence:       res.Confidence,
		Source:           res.Source,
		CriticalOverride: res.CriticalOverride,
		Result:           res,
		CreatedAt:        createdAt,
	}
}

// NormalizeAddress is the storage key form of an address.
func NormalizeAddress(addr string) string {
	return validation.SanitizeAddress(addr)
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// fetchLimit bounds a store query. One row past MaxLimit is allowed so
// callers fetching limit+1 can tell whether another page exists.
func fetchLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit+1)
}

// Key orders records for pagination.
func Key(r *Record) (time.Time, string) { return r.CreatedAt, r.ID }

// Store persists analysis records.
type Store interface {
	Record(ctx context.Context, rec *Record) error
	// ListByWallet returns records newest first. A non-nil cursor skips
	// everything up to and including the row it marks.
	ListByWallet(ctx context.Context, wallet string, limit int, after *pagination.Cursor) ([]*Record, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Record, error)
}
