package signals

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/validation"
)

// ErrInvalidSignals is wrapped by every ValidationError.
var ErrInvalidSignals = errors.New("signals: invalid input")

// ValidationError lists every offending field of a snapshot.
type ValidationError struct {
	Fields validation.ValidationErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidSignals, e.Fields.Error())
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSignals }

func wrap(errs validation.ValidationErrors) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

// Validate checks required fields and domain ranges. Absent optional
// signals are not errors.
func (s Snapshot) Validate() error {
	var errs validation.ValidationErrors
	errs = append(errs, s.Wallet.validate()...)
	errs = append(errs, s.Protocol.validate()...)
	errs = append(errs, s.Market.validate()...)
	return wrap(errs)
}

func (w WalletSignals) validate() validation.ValidationErrors {
	checks := []func() *validation.ValidationError{
		validation.Required("wallet.address", w.Address),
		validation.ValidAddress("wallet.address", w.Address),
		validation.NonNegative("wallet.ageDays", w.AgeDays),
		validation.NonNegative("wallet.transactionCount", w.TransactionCount),
		validation.NonNegative("wallet.daysSinceLastActivity", w.DaysSinceLastActivity),
		validation.NonNegative("wallet.uniqueContracts", w.UniqueContracts),
		validation.NonNegative("wallet.liquidationCount", w.LiquidationCount),
		validation.OptionalInRange("wallet.balanceUsd", w.BalanceUSD, 0, math.MaxFloat64),
		validation.OptionalInRange("wallet.portfolioUsd", w.PortfolioUSD, 0, math.MaxFloat64),
		validation.OptionalInRange("wallet.balanceVolatility", w.BalanceVolatility, 0, math.MaxFloat64),
		validation.OptionalInRange("wallet.reputation.onChainScore", w.Reputation.OnChainScore, 0, 100),
		validation.OptionalInRange("wallet.reputation.creditScore", w.Reputation.CreditScore, 0, 1000),
		validation.MaxLength("wallet.reputation.ensName", w.Reputation.ENSName, 255),
	}
	if w.Velocity != nil {
		checks = append(checks,
			validation.NonNegative("wallet.velocity.last24h", w.Velocity.Last24h),
			validation.NonNegative("wallet.velocity.last7d", w.Velocity.Last7d),
			validation.NonNegative("wallet.velocity.last30d", w.Velocity.Last30d),
			nestedWindows(w.Velocity),
		)
	}
	if w.CounterpartyDiversity != nil {
		checks = append(checks, validation.NonNegative("wallet.counterpartyDiversity", *w.CounterpartyDiversity))
	}
	if w.Lending != nil {
		checks = append(checks,
			validation.InRange("wallet.lending.totalBorrowedUsd", w.Lending.TotalBorrowedUSD, 0, math.MaxFloat64),
			validation.InRange("wallet.lending.totalCollateralUsd", w.Lending.TotalCollateralUSD, 0, math.MaxFloat64),
			validation.InRange("wallet.lending.healthFactor", w.Lending.HealthFactor, 0, math.MaxFloat64),
		)
	}
	for i, fc := range w.FlaggedCounterparties {
		field := fmt.Sprintf("wallet.flaggedCounterparties[%d]", i)
		checks = append(checks,
			validation.ValidAddress(field+".address", fc.Address),
			validation.Required(field+".list", string(fc.List)),
			validation.OneOf(field+".list", string(fc.List),
				string(ListSanctions), string(ListExploit), string(ListBlacklist), string(ListMixer)),
		)
	}
	return validation.Validate(checks...)
}

func (p ProtocolHealthIndicators) validate() validation.ValidationErrors {
	return validation.Validate(
		validation.OptionalInRange("protocol.collateralizationRatio", p.CollateralizationRatio, 0, math.MaxFloat64),
		validation.OptionalInRange("protocol.utilizationRate", p.UtilizationRate, 0, 100),
		validation.OptionalInRange("protocol.defaultRate", p.DefaultRate, 0, 100),
		validation.NonNegative("protocol.liquidationEvents24h", p.LiquidationEvents24h),
		validation.InRange("protocol.oracleDeviation", p.OracleDeviation, 0, math.MaxFloat64),
		validation.InRange("protocol.totalValueLockedUsd", p.TotalValueLockedUSD, 0, math.MaxFloat64),
	)
}

func (m MarketVolatilityFlags) validate() validation.ValidationErrors {
	return validation.Validate(
		validation.OptionalInRange("market.volatilityIndex", m.VolatilityIndex, 0, 100),
		validation.OneOf("market.bucket", string(m.Bucket),
			string(BucketLow), string(BucketMedium), string(BucketHigh), string(BucketExtreme)),
		validation.OneOf("market.congestion", string(m.Congestion),
			string(CongestionLow), string(CongestionMedium), string(CongestionHigh), string(CongestionExtreme)),
		validation.OneOf("market.sentiment", string(m.Sentiment),
			string(SentimentExtremeFear), string(SentimentFear), string(SentimentNeutral),
			string(SentimentGreed), string(SentimentExtremeGreed)),
	)
}

// Validate checks request metadata against the wallet being analyzed. An
// empty WalletAddress is allowed and filled by the caller.
func (m RequestMetadata) Validate(wallet string) error {
	checks := []func() *validation.ValidationError{
		validation.ValidAddress("metadata.walletAddress", m.WalletAddress),
		validation.MaxLength("metadata.requestId", m.RequestID, 128),
		validation.MaxLength("metadata.requestedBy", m.RequestedBy, 256),
		validation.MaxLength("metadata.idempotencyKey", m.IdempotencyKey, 256),
		validation.OneOf("metadata.requestType", string(m.RequestType),
			string(RequestNewLoan), string(RequestPositionReview),
			string(RequestScheduledCheck), string(RequestManualReview)),
		validation.OneOf("metadata.urgency", string(m.Urgency),
			string(UrgencyLow), string(UrgencyMedium), string(UrgencyHigh)),
		func() *validation.ValidationError {
			if m.WalletAddress != "" && !strings.EqualFold(m.WalletAddress, wallet) {
				return &validation.ValidationError{Field: "metadata.walletAddress", Message: "does not match wallet.address"}
			}
			return nil
		},
	}
	return wrap(validation.Validate(checks...))
}

// nestedWindows rejects counts where a shorter window exceeds a longer one.
// Each window contains the shorter ones.
func nestedWindows(v *TransactionVelocity) func() *validation.ValidationError {
	return func() *validation.ValidationError {
		if v.Last24h > v.Last7d || v.Last7d > v.Last30d {
			return &validation.ValidationError{
				Field:   "wallet.velocity",
				Message: "windows must nest: last24h <= last7d <= last30d",
			}
		}
		return nil
	}
}
