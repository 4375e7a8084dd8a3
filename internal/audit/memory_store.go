package audit

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/pagination"
)

// MemoryStore is an in-memory Store for demo and test use.
type MemoryStore struct {
	mu       sync.RWMutex
	byWallet map[string][]*Record // wallet → records, newest first
	byKey    map[string]*Record
}

// NewMemoryStore creates an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byWallet: make(map[string][]*Record),
		byKey:    make(map[string]*Record),
	}
}

func (s *MemoryStore) Record(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.IdempotencyKey != "" {
		if _, ok := s.byKey[rec.IdempotencyKey]; ok {
			return ErrDuplicateKey
		}
	}

	r := copyRecord(rec)
	r.WalletAddress = NormalizeAddress(r.WalletAddress)
	list := append(s.byWallet[r.WalletAddress], r)
	slices.SortStableFunc(list, newestFirst)
	s.byWallet[r.WalletAddress] = list
	if r.IdempotencyKey != "" {
		s.byKey[r.IdempotencyKey] = r
	}
	return nil
}

func (s *MemoryStore) ListByWallet(ctx context.Context, wallet string, limit int, after *pagination.Cursor) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = fetchLimit(limit)
	var result []*Record
	for _, r := range s.byWallet[NormalizeAddress(wallet)] {
		if len(result) == limit {
			break
		}
		if after.After(r.CreatedAt, r.ID) {
			result = append(result, copyRecord(r))
		}
	}
	return result, nil
}

func newestFirst(a, b *Record) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func (s *MemoryStore) FindByIdempotencyKey(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(r), nil
}

// copyRecord copies the record and the slices and maps of its result.
func copyRecord(rec *Record) *Record {
	r := *rec
	if rec.Result != nil {
		res := *rec.Result
		res.Flags = slices.Clone(rec.Result.Flags)
		res.Recommendations = slices.Clone(rec.Result.Recommendations)
		res.Details.RuleFlags = slices.Clone(rec.Result.Details.RuleFlags)
		res.Details.SubScores = maps.Clone(rec.Result.Details.SubScores)
		r.Result = &res
	}
	return &r
}
