package signals

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "0x1234567890123456789012345678901234567890"

func validSnapshot() Snapshot {
	return Snapshot{
		Wallet: WalletSignals{
			Address:          testAddr,
			AgeDays:          400,
			TransactionCount: 120,
			Velocity:         &TransactionVelocity{Last24h: 2, Last7d: 10, Last30d: 45},
			BalanceUSD:       Float(2500),
		},
		Protocol: ProtocolHealthIndicators{
			UtilizationRate:     Float(60),
			TotalValueLockedUSD: 1e9,
		},
		Market: MarketVolatilityFlags{
			VolatilityIndex: Float(30),
			Sentiment:       SentimentNeutral,
			Congestion:      CongestionMedium,
		},
	}
}

func TestSnapshotValidate_Valid(t *testing.T) {
	require.NoError(t, validSnapshot().Validate())
}

func TestSnapshotValidate_OptionalFieldsAbsent(t *testing.T) {
	s := Snapshot{Wallet: WalletSignals{Address: testAddr}}
	assert.NoError(t, s.Validate())
}

func TestSnapshotValidate_CollectsEveryField(t *testing.T) {
	s := validSnapshot()
	s.Wallet.Address = "not-an-address"
	s.Wallet.AgeDays = -1
	s.Protocol.UtilizationRate = Float(140)
	s.Market.VolatilityIndex = Float(math.NaN())
	s.Market.Bucket = "SEVERE"

	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignals))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{
		"wallet.address",
		"wallet.ageDays",
		"protocol.utilizationRate",
		"market.volatilityIndex",
		"market.bucket",
	}, fields)
}

func TestSnapshotValidate_MissingAddress(t *testing.T) {
	s := validSnapshot()
	s.Wallet.Address = ""

	var verr *ValidationError
	require.ErrorAs(t, s.Validate(), &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "wallet.address", verr.Fields[0].Field)
	assert.Equal(t, "is required", verr.Fields[0].Message)
}

func TestSnapshotValidate_CounterpartyList(t *testing.T) {
	s := validSnapshot()
	s.Wallet.FlaggedCounterparties = []FlaggedCounterparty{
		{Address: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", List: ListBlacklist},
		{Address: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", List: "watch"},
	}

	var verr *ValidationError
	require.ErrorAs(t, s.Validate(), &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "wallet.flaggedCounterparties[1].list", verr.Fields[0].Field)
}

func TestSnapshotValidate_ReputationRanges(t *testing.T) {
	s := validSnapshot()
	s.Wallet.Reputation.OnChainScore = Float(101)
	s.Wallet.Reputation.CreditScore = Float(850)

	var verr *ValidationError
	require.ErrorAs(t, s.Validate(), &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "wallet.reputation.onChainScore", verr.Fields[0].Field)
}

func TestSnapshotValidate_LendingHealthFactor(t *testing.T) {
	s := validSnapshot()
	s.Wallet.Lending = &LendingPosition{TotalBorrowedUSD: 100, TotalCollateralUSD: 150, HealthFactor: math.Inf(1)}
	assert.Error(t, s.Validate())

	s.Wallet.Lending.HealthFactor = 1.4
	assert.NoError(t, s.Validate())
}

func TestSnapshotValidate_VelocityWindowsNest(t *testing.T) {
	tests := []struct {
		name string
		v    TransactionVelocity
		ok   bool
	}{
		{"nested", TransactionVelocity{Last24h: 2, Last7d: 10, Last30d: 45}, true},
		{"all equal", TransactionVelocity{Last24h: 7, Last7d: 7, Last30d: 7}, true},
		{"idle", TransactionVelocity{}, true},
		{"day exceeds month", TransactionVelocity{Last24h: 500, Last7d: 0, Last30d: 0}, false},
		{"week exceeds month", TransactionVelocity{Last24h: 1, Last7d: 40, Last30d: 30}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSnapshot()
			v := tt.v
			s.Wallet.Velocity = &v

			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, "wallet.velocity", verr.Fields[0].Field)
		})
	}
}

func TestRequestMetadataValidate(t *testing.T) {
	m := RequestMetadata{
		RequestID:     "req_1",
		WalletAddress: "0x1234567890123456789012345678901234567890",
		RequestType:   RequestNewLoan,
		Urgency:       UrgencyHigh,
	}
	assert.NoError(t, m.Validate(testAddr))

	// Case-insensitive match against the analyzed wallet.
	m.WalletAddress = "0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD"
	assert.NoError(t, m.Validate("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"))

	err := m.Validate(testAddr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	m.WalletAddress = ""
	m.Urgency = "ASAP"
	err = m.Validate(testAddr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata.urgency")
}

func TestOnList(t *testing.T) {
	w := WalletSignals{FlaggedCounterparties: []FlaggedCounterparty{{Address: testAddr, List: ListMixer}}}
	assert.True(t, w.OnList(ListMixer))
	assert.False(t, w.OnList(ListSanctions))
}

func TestDailyAverage30d(t *testing.T) {
	v := TransactionVelocity{Last30d: 60}
	assert.InDelta(t, 2.0, v.DailyAverage30d(), 1e-9)
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x1234…7890", ShortAddress(testAddr))
	assert.Equal(t, "0xabc", ShortAddress("0xabc"))
}
