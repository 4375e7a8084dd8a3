package watchlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/audit"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
)

// MemoryStore is an in-memory Store for demo and test use.
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// NewMemoryStore creates an empty in-memory watchlist.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*Wallet)}
}

func (s *MemoryStore) Add(ctx context.Context, w *Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := audit.NormalizeAddress(w.Address)
	if _, ok := s.wallets[key]; ok {
		return ErrAlreadyMonitored
	}
	c := copyWallet(w)
	c.Address = key
	s.wallets[key] = c
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := audit.NormalizeAddress(address)
	if _, ok := s.wallets[key]; !ok {
		return ErrNotMonitored
	}
	delete(s.wallets, key)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, address string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[audit.NormalizeAddress(address)]
	if !ok {
		return nil, ErrNotMonitored
	}
	return copyWallet(w), nil
}

// List returns wallets in the order they were added.
func (s *MemoryStore) List(ctx context.Context) ([]*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, copyWallet(w))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Address < out[j].Address
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) RecordAnalysis(ctx context.Context, address string, d decision.Decision, score int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[audit.NormalizeAddress(address)]
	if !ok {
		return ErrNotMonitored
	}
	w.LastDecision = d
	w.LastScore = &score
	w.LastAnalyzed = &at
	return nil
}

func copyWallet(w *Wallet) *Wallet {
	c := *w
	if w.LastScore != nil {
		v := *w.LastScore
		c.LastScore = &v
	}
	if w.LastAnalyzed != nil {
		v := *w.LastAnalyzed
		c.LastAnalyzed = &v
	}
	return &c
}
