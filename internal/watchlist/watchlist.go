// Package watchlist holds the caller-owned list of monitored wallets.
//
// Reads, appends and removals are explicit operations on a Store. The
// analysis path only touches the list to stamp the latest decision on a
// wallet that is already monitored.
package watchlist

import (
	"context"
	"errors"
	"time"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/audit"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/validation"
)

var (
	ErrAlreadyMonitored = errors.New("watchlist: wallet already monitored")
	ErrNotMonitored     = errors.New("watchlist: wallet not monitored")
	ErrInvalidAddress   = errors.New("watchlist: invalid wallet address")
)

// Wallet is one monitored wallet.
type Wallet struct {
	Address      string            `json:"address"`
	Label        string            `json:"label,omitempty"`
	AddedBy      string            `json:"addedBy,omitempty"`
	LastDecision decision.Decision `json:"lastDecision,omitempty"`
	LastScore    *int              `json:"lastScore,omitempty"`
	LastAnalyzed *time.Time        `json:"lastAnalyzed,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Store persists the monitored list.
type Store interface {
	Add(ctx context.Context, w *Wallet) error
	Remove(ctx context.Context, address string) error
	Get(ctx context.Context, address string) (*Wallet, error)
	List(ctx context.Context) ([]*Wallet, error)
	RecordAnalysis(ctx context.Context, address string, d decision.Decision, score int, at time.Time) error
}

// New validates the address and builds a Wallet keyed by its
// normalized form.
func New(address, label, addedBy string, now time.Time) (*Wallet, error) {
	if !validation.IsValidEthAddress(address) {
		return nil, ErrInvalidAddress
	}
	return &Wallet{
		Address:   audit.NormalizeAddress(address),
		Label:     validation.SanitizeString(label, 128),
		AddedBy:   validation.SanitizeString(addedBy, 256),
		CreatedAt: now,
	}, nil
}
