package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/pagination"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/rules"
)

const wallet = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

var baseTime = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func result(score int, key string) *engine.AnalysisResult {
	return &engine.AnalysisResult{
		WalletAddress:   wallet,
		Decision:        decision.FromScore(float64(score), false),
		RiskScore:       score,
		Confidence:      90,
		Reasoning:       "Rule score test.",
		Timestamp:       baseTime.Unix(),
		Source:          decision.SourceRulesOnly,
		Flags:           []string{rules.CodeMatureWallet},
		Recommendations: []string{"Continue normal monitoring"},
		Details: engine.Details{
			RuleScore:        float64(score),
			FinalScore:       float64(score),
			SubScores:        map[rules.Category]float64{rules.CategoryHistory: 5},
			ReasoningOutcome: engine.OutcomeNotWarranted,
			RequestID:        fmt.Sprintf("req-%d", score),
			IdempotencyKey:   key,
		},
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord(result(42, "k1"), baseTime)

	assert.Contains(t, rec.ID, "wa_")
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", rec.WalletAddress)
	assert.Equal(t, decision.Monitor, rec.Decision)
	assert.Equal(t, 42, rec.RiskScore)
	assert.Equal(t, "req-42", rec.RequestID)
	assert.Equal(t, "k1", rec.IdempotencyKey)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}

// storeContract exercises behavior every Store must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	for i, score := range []int{10, 30, 65} {
		rec := NewRecord(result(score, ""), baseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Record(ctx, rec))
	}

	got, err := s.ListByWallet(ctx, "0xABCDEF0123456789ABCDEF0123456789ABCDEF01", 10, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 65, got[0].RiskScore, "most recent first")
	assert.Equal(t, 10, got[2].RiskScore)
	require.NotNil(t, got[0].Result)
	assert.Equal(t, decision.RequestSeverityAnalysis, got[0].Result.Decision)
	assert.Equal(t, []string{rules.CodeMatureWallet}, got[0].Result.Flags)

	limited, err := s.ListByWallet(ctx, wallet, 2, nil)
	require.NoError(t, err)
	require.Len(t, limited, 2)

	page, next := pagination.Trim(got, 2, Key)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	cursor, err := pagination.Decode(next)
	require.NoError(t, err)
	rest, err := s.ListByWallet(ctx, wallet, 10, cursor)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, 10, rest[0].RiskScore, "second page continues after the cursor")

	none, err := s.ListByWallet(ctx, "0x0000000000000000000000000000000000000000", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	keyed := NewRecord(result(88, "idem-1"), baseTime.Add(time.Hour))
	require.NoError(t, s.Record(ctx, keyed))

	found, err := s.FindByIdempotencyKey(ctx, "idem-1")
	require.NoError(t, err)
	assert.Equal(t, keyed.ID, found.ID)
	assert.Equal(t, 88, found.Result.RiskScore)

	dup := NewRecord(result(88, "idem-1"), baseTime.Add(2*time.Hour))
	assert.ErrorIs(t, s.Record(ctx, dup), ErrDuplicateKey)

	_, err = s.FindByIdempotencyKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Record(ctx, NewRecord(result(30, ""), baseTime)))

	first, err := s.ListByWallet(ctx, wallet, 1, nil)
	require.NoError(t, err)
	first[0].RiskScore = 99
	first[0].Result.Flags[0] = "tampered"
	first[0].Result.Details.SubScores[rules.CategoryHistory] = 100

	again, err := s.ListByWallet(ctx, wallet, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, again[0].RiskScore)
	assert.Equal(t, rules.CodeMatureWallet, again[0].Result.Flags[0])
	assert.InDelta(t, 5, again[0].Result.Details.SubScores[rules.CategoryHistory], 1e-9)
}

func TestMemoryStore_SameInstantPaging(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, score := range []int{10, 20, 30, 40} {
		require.NoError(t, s.Record(ctx, NewRecord(result(score, ""), baseTime)))
	}

	seen := map[string]bool{}
	var cursor *pagination.Cursor
	for range 4 {
		page, err := s.ListByWallet(ctx, wallet, 1, cursor)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		require.False(t, seen[page[0].ID], "record returned twice")
		seen[page[0].ID] = true
		cursor = &pagination.Cursor{CreatedAt: page[0].CreatedAt, ID: page[0].ID}
	}
	assert.Len(t, seen, 4)
}
