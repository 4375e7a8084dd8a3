package rules

import (
	"fmt"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
)

// CategoryFunc scores one category from the full snapshot.
type CategoryFunc func(s *signals.Snapshot) CategoryScore

func flag(c Category, code string, sev Severity, cause string) Flag {
	return Flag{Code: code, Category: c, Severity: sev, Weight: sev.Weight(), Cause: cause}
}

func mitigating(c Category, code string, sev Severity, cause string) Flag {
	return Flag{Code: code, Category: c, Severity: sev, Weight: -sev.Weight(), Cause: cause, Mitigating: true}
}

func missing(c Category, field string) Flag {
	f := flag(c, CodeInsufficientData, SeverityLow, field+" not provided")
	f.Field = field
	return f
}

// volatilityAbove70 reports the high-volatility regime used by the
// liquidation blocker. The bucket stands in when the index is absent.
func volatilityAbove70(m signals.MarketVolatilityFlags) bool {
	if m.VolatilityIndex != nil {
		return *m.VolatilityIndex > 70
	}
	return m.Bucket == signals.BucketHigh || m.Bucket == signals.BucketExtreme
}

// ScoreHistory: age, activity recency, liquidations, balance. A wallet with
// no transactions is maximally uncertain.
func ScoreHistory(s *signals.Snapshot) CategoryScore {
	const c = CategoryHistory
	w := s.Wallet
	var out CategoryScore

	if w.TransactionCount == 0 {
		out.add(100, flag(c, CodeNewWallet, SeverityLow, "no transaction history"))
		return out
	}

	switch {
	case w.AgeDays < 7:
		out.add(80, flag(c, CodeYoungWallet, SeverityMedium, fmt.Sprintf("wallet is %d days old", w.AgeDays)))
	case w.AgeDays < 30:
		out.add(60, flag(c, CodeYoungWallet, SeverityLow, fmt.Sprintf("wallet is %d days old", w.AgeDays)))
	case w.AgeDays < 90:
		out.Score += 35
	case w.AgeDays <= 365:
		out.Score += 20
	default:
		out.Score += 5
	}

	if w.DaysSinceLastActivity > 90 {
		out.add(20, flag(c, CodeDormant, SeverityLow, fmt.Sprintf("inactive for %d days", w.DaysSinceLastActivity)))
	}
	if w.LiquidationCount > 0 {
		pts := float64(w.LiquidationCount) * 10
		if pts > 30 {
			pts = 30
		}
		out.add(pts, flag(c, CodePriorLiquidations, SeverityMedium, fmt.Sprintf("%d prior liquidations", w.LiquidationCount)))
	}

	highValue := w.Patterns.NewWalletHighValue
	if w.BalanceUSD == nil {
		out.Flags = append(out.Flags, missing(c, "wallet.balanceUsd"))
	} else {
		bal := *w.BalanceUSD
		highValue = highValue || (w.AgeDays < 30 && bal > 50000)
		if bal < 100 {
			out.add(10, flag(c, CodeLowBalance, SeverityLow, fmt.Sprintf("balance $%.2f", bal)))
		}
	}
	if highValue {
		out.add(25, flag(c, CodeNewWalletHighValue, SeverityMedium, "new wallet holding high value"))
	}
	return out
}

// ScoreVelocity: 24h activity against the 30-day daily average, draining
// and unusual-activity patterns, balance volatility.
func ScoreVelocity(s *signals.Snapshot) CategoryScore {
	const c = CategoryVelocity
	w := s.Wallet
	var out CategoryScore

	if w.Velocity == nil {
		out.Flags = append(out.Flags, missing(c, "wallet.velocity"))
	} else {
		ratio := 1.0
		if avg := w.Velocity.DailyAverage30d(); w.AgeDays > 0 && avg > 0 {
			ratio = float64(w.Velocity.Last24h) / avg
		}
		cause := fmt.Sprintf("24h activity %.1fx the 30-day daily average", ratio)
		switch {
		case ratio > 5:
			out.add(60, flag(c, CodeVelocitySpike, SeverityHigh, cause))
		case ratio > 3:
			out.add(40, flag(c, CodeVelocitySpike, SeverityMedium, cause))
		case ratio > 2:
			out.add(25, flag(c, CodeVelocitySpike, SeverityLow, cause))
		}
	}

	if w.Patterns.RapidDraining {
		out.add(50, flag(c, CodeRapidDraining, SeverityHigh, "rapid balance draining detected"))
	}
	if w.Patterns.UnusualActivity {
		out.add(25, flag(c, CodeUnusualActivity, SeverityMedium, "unusual activity pattern"))
	}

	if w.BalanceVolatility == nil {
		out.Flags = append(out.Flags, missing(c, "wallet.balanceVolatility"))
	} else {
		v := *w.BalanceVolatility
		cause := fmt.Sprintf("balance volatility %.2f", v)
		switch {
		case v > 0.5:
			out.add(20, flag(c, CodeBalanceVolatility, SeverityMedium, cause))
		case v > 0.25:
			out.add(10, flag(c, CodeBalanceVolatility, SeverityLow, cause))
		}
	}
	return out
}

// ScoreProtocol: the wallet's lending position and the health of the
// protocol it uses. Paused contracts and a near-liquidation position under
// high volatility are critical.
func ScoreProtocol(s *signals.Snapshot) CategoryScore {
	const c = CategoryProtocol
	p := s.Protocol
	var out CategoryScore

	if l := s.Wallet.Lending; l != nil {
		hf := l.HealthFactor
		cause := fmt.Sprintf("health factor %.2f", hf)
		switch {
		case hf < 1.05:
			out.add(60, flag(c, CodeLiquidationRisk, SeverityHigh, cause))
			if volatilityAbove70(s.Market) {
				out.Flags = append(out.Flags, flag(c, CodeLiquidationUnderVol, SeverityCritical,
					"health factor below 1.05 during high market volatility"))
			}
		case hf < 1.1:
			out.add(50, flag(c, CodeLiquidationRisk, SeverityHigh, cause))
		case hf < 1.2:
			out.add(40, flag(c, CodeLiquidationRisk, SeverityMedium, cause))
		case hf < 1.5:
			out.add(25, flag(c, CodeLiquidationRisk, SeverityLow, cause))
		case hf < 2.0:
			out.Score += 10
		}
	}

	if p.ExploitDetected {
		out.add(50, flag(c, CodeProtocolExploit, SeverityHigh, "protocol exploit reported"))
	}
	if len(p.PausedContracts) > 0 {
		out.add(40, flag(c, CodeProtocolPaused, SeverityCritical,
			fmt.Sprintf("%d protocol contracts paused", len(p.PausedContracts))))
	}

	if p.DefaultRate == nil {
		out.Flags = append(out.Flags, missing(c, "protocol.defaultRate"))
	} else {
		dr := *p.DefaultRate
		cause := fmt.Sprintf("default rate %.1f%%", dr)
		switch {
		case dr > 10:
			out.add(25, flag(c, CodeDefaultRate, SeverityHigh, cause))
		case dr > 5:
			out.add(15, flag(c, CodeDefaultRate, SeverityMedium, cause))
		}
	}

	switch n := p.LiquidationEvents24h; {
	case n > 20:
		out.add(20, flag(c, CodeLiquidationWave, SeverityMedium, fmt.Sprintf("%d liquidations in 24h", n)))
	case n > 10:
		out.add(10, flag(c, CodeLiquidationWave, SeverityLow, fmt.Sprintf("%d liquidations in 24h", n)))
	}

	if p.OracleStale {
		out.add(25, flag(c, CodeOracleStale, SeverityMedium, "price oracle is stale"))
	}
	if p.OracleDeviation > 5 {
		out.add(15, flag(c, CodeOracleDeviation, SeverityMedium, fmt.Sprintf("oracle deviation %.1f%%", p.OracleDeviation)))
	}

	if p.UtilizationRate == nil {
		out.Flags = append(out.Flags, missing(c, "protocol.utilizationRate"))
	} else {
		u := *p.UtilizationRate
		switch {
		case u > 95:
			out.add(20, flag(c, CodeHighUtilization, SeverityMedium, fmt.Sprintf("utilization %.0f%%", u)))
		case u > 85:
			out.add(10, flag(c, CodeHighUtilization, SeverityLow, fmt.Sprintf("utilization %.0f%%", u)))
		}
	}

	if p.CollateralizationRatio == nil {
		out.Flags = append(out.Flags, missing(c, "protocol.collateralizationRatio"))
	} else {
		cr := *p.CollateralizationRatio
		switch {
		case cr < 1.1:
			out.add(25, flag(c, CodeLowCollateral, SeverityHigh, fmt.Sprintf("collateralization %.2f", cr)))
		case cr < 1.5:
			out.add(10, flag(c, CodeLowCollateral, SeverityLow, fmt.Sprintf("collateralization %.2f", cr)))
		}
	}
	return out
}

// ScoreMarket: volatility regime and market-wide events.
func ScoreMarket(s *signals.Snapshot) CategoryScore {
	const c = CategoryMarket
	m := s.Market
	var out CategoryScore

	if m.VolatilityIndex != nil {
		vi := *m.VolatilityIndex
		cause := fmt.Sprintf("volatility index %.0f", vi)
		switch {
		case vi > 80:
			out.add(40, flag(c, CodeMarketVolatility, SeverityHigh, cause))
		case vi > 70:
			out.add(30, flag(c, CodeMarketVolatility, SeverityMedium, cause))
		case vi > 50:
			out.add(15, flag(c, CodeMarketVolatility, SeverityLow, cause))
		}
	} else {
		cause := fmt.Sprintf("volatility regime %s", m.Bucket)
		switch m.Bucket {
		case signals.BucketExtreme:
			out.add(40, flag(c, CodeMarketVolatility, SeverityHigh, cause))
		case signals.BucketHigh:
			out.add(30, flag(c, CodeMarketVolatility, SeverityMedium, cause))
		case signals.BucketMedium:
			out.add(15, flag(c, CodeMarketVolatility, SeverityLow, cause))
		case signals.BucketLow:
		default:
			out.Flags = append(out.Flags, missing(c, "market.volatilityIndex"))
		}
	}

	if m.PriceShock {
		out.add(30, flag(c, CodePriceShock, SeverityHigh, "recent price shock"))
	}
	if m.BlackSwan {
		out.add(40, flag(c, CodeBlackSwan, SeverityHigh, "black swan event in progress"))
	}
	if m.LiquidityCrunch {
		out.add(25, flag(c, CodeLiquidityCrunch, SeverityMedium, "market liquidity crunch"))
	}
	if m.Congestion == signals.CongestionExtreme {
		out.add(10, flag(c, CodeNetworkCongestion, SeverityLow, "extreme network congestion"))
	}
	if m.RegulatoryNews {
		out.add(10, flag(c, CodeRegulatoryNews, SeverityLow, "regulatory news affecting the market"))
	}
	if m.Sentiment == signals.SentimentExtremeFear {
		out.add(10, flag(c, CodeExtremeFear, SeverityLow, "extreme fear sentiment"))
	}
	return out
}

// ScoreReputation starts from an unknown-identity baseline, adds
// counterparty list hits and subtracts positive attestations. Sanctions,
// exploit and blacklist hits are critical.
func ScoreReputation(s *signals.Snapshot) CategoryScore {
	const c = CategoryReputation
	w := s.Wallet
	r := w.Reputation
	out := CategoryScore{Score: 40}

	if w.OnList(signals.ListSanctions) || w.Patterns.SanctionedInteraction {
		out.add(60, flag(c, CodeSanctioned, SeverityCritical, "interaction with a sanctioned address"))
	}
	if w.OnList(signals.ListExploit) {
		out.add(50, flag(c, CodeExploitCounterparty, SeverityCritical, "counterparty linked to a confirmed exploit"))
	}
	if w.OnList(signals.ListBlacklist) {
		out.add(40, flag(c, CodeBlacklisted, SeverityCritical, "counterparty on a blacklist"))
	}
	if w.OnList(signals.ListMixer) || w.Patterns.MixerInteraction {
		out.add(35, flag(c, CodeMixer, SeverityHigh, "interaction with a mixer"))
	}

	if w.CounterpartyDiversity == nil {
		out.Flags = append(out.Flags, missing(c, "wallet.counterpartyDiversity"))
	} else if *w.CounterpartyDiversity < 3 && w.TransactionCount > 50 {
		out.add(10, flag(c, CodeLowDiversity, SeverityLow,
			fmt.Sprintf("%d counterparties across %d transactions", *w.CounterpartyDiversity, w.TransactionCount)))
	}

	if r.ENSName != "" {
		out.add(-10, mitigating(c, CodeENS, SeverityLow, "ENS name "+r.ENSName))
	}
	if r.GitcoinPassport {
		out.add(-15, mitigating(c, CodeGitcoinPassport, SeverityMedium, "Gitcoin Passport holder"))
	}
	if r.POAP {
		out.add(-5, mitigating(c, CodePOAP, SeverityLow, "POAP holder"))
	}
	if r.OnChainScore != nil && *r.OnChainScore > 70 {
		out.add(-10, mitigating(c, CodeOnChainReputation, SeverityLow,
			fmt.Sprintf("on-chain reputation %.0f", *r.OnChainScore)))
	}
	if r.CreditScore != nil && *r.CreditScore > 700 {
		out.add(-15, mitigating(c, CodeCreditScore, SeverityMedium,
			fmt.Sprintf("credit score %.0f", *r.CreditScore)))
	}
	if w.AgeDays > 365 {
		out.add(-10, mitigating(c, CodeMatureWallet, SeverityLow, fmt.Sprintf("wallet active for %d days", w.AgeDays)))
		if w.PortfolioUSD != nil && *w.PortfolioUSD > 100000 {
			out.add(-5, mitigating(c, CodeEstablishedHolder, SeverityLow, "established wallet with large portfolio"))
		}
	}
	return out
}
