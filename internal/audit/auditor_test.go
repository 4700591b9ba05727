package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEVMAddr = "0x1234567890abcdef1234567890abcdef12345678"
	testSolAddr = "So11111111111111111111111111111111111111112"
)

func newTestAuditor() (*Auditor, *StubTokenProvider, *StubRugcheck) {
	eth := NewStubTokenProvider()
	sol := NewStubRugcheck()
	return NewAuditor(DefaultAuditorConfig(), eth, sol), eth, sol
}

func checkByName(t *testing.T, r *Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found in report", name)
	return Check{}
}

func TestAudit_CleanEthereumToken(t *testing.T) {
	auditor, eth, _ := newTestAuditor()
	eth.Set(testEVMAddr, &TokenData{
		Exists:       true,
		IsHoneypot:   false,
		BuyTaxPct:    0,
		SellTaxPct:   0,
		LiquidityUSD: 150000,
	})

	report := auditor.Audit(context.Background(), testEVMAddr, "ethereum")
	require.NotNil(t, report)
	require.Len(t, report.Checks, 5)

	for _, c := range report.Checks {
		assert.True(t, c.Passed, "check %s should pass", c.Name)
	}
	assert.InDelta(t, 100.0, report.SafetyScore, 0.001)
	assert.Equal(t, TierSafe, report.RiskTier)
	assert.True(t, report.Safe)
	assert.False(t, report.Honeypot)
}

func TestAudit_CriticalFailureForcesUnsafe(t *testing.T) {
	// A honeypot with otherwise perfect numbers averages 80, which meets
	// the score threshold. The critical failure must still veto the trade.
	auditor, eth, _ := newTestAuditor()
	eth.Set(testEVMAddr, &TokenData{
		Exists:       true,
		IsHoneypot:   true,
		BuyTaxPct:    0,
		SellTaxPct:   0,
		LiquidityUSD: 150000,
	})

	report := auditor.Audit(context.Background(), testEVMAddr, "ethereum")
	require.NotNil(t, report)

	assert.InDelta(t, 80.0, report.SafetyScore, 0.001)
	assert.False(t, report.Safe)
	assert.True(t, report.Honeypot)

	hp := checkByName(t, report, "Honeypot Check")
	assert.False(t, hp.Passed)
	assert.Equal(t, SeverityCritical, hp.Severity)
	assert.Equal(t, "HONEYPOT DETECTED", hp.Detail)
	require.Len(t, report.CriticalFailures(), 1)
}

func TestAudit_TaxScoring(t *testing.T) {
	auditor, eth, _ := newTestAuditor()
	eth.Set(testEVMAddr, &TokenData{
		Exists:       true,
		BuyTaxPct:    8,
		SellTaxPct:   25,
		LiquidityUSD: 50000,
	})

	report := auditor.Audit(context.Background(), testEVMAddr, "ethereum")

	buy := checkByName(t, report, "Buy Tax")
	assert.True(t, buy.Passed)
	assert.InDelta(t, 60.0, buy.Score, 0.001) // 100 - 8*5
	assert.Equal(t, SeverityMedium, buy.Severity)
	assert.Equal(t, "Buy tax: 8.0%", buy.Detail)

	sell := checkByName(t, report, "Sell Tax")
	assert.False(t, sell.Passed)
	assert.InDelta(t, 0.0, sell.Score, 0.001) // 100 - min(125, 100)
	assert.Equal(t, SeverityHigh, sell.Severity)
}

func TestAudit_LiquidityScoring(t *testing.T) {
	auditor, eth, _ := newTestAuditor()
	eth.Set(testEVMAddr, &TokenData{
		Exists:       true,
		LiquidityUSD: 5000,
	})

	report := auditor.Audit(context.Background(), testEVMAddr, "ethereum")

	liq := checkByName(t, report, "Liquidity")
	assert.False(t, liq.Passed)
	assert.InDelta(t, 5.0, liq.Score, 0.001)
	assert.Equal(t, SeverityHigh, liq.Severity)
	assert.Equal(t, "Liquidity: $5000", liq.Detail)
}

func TestAudit_NonexistentContract(t *testing.T) {
	auditor, eth, _ := newTestAuditor()
	eth.Set(testEVMAddr, &TokenData{
		Exists:     false,
		IsHoneypot: true,
		BuyTaxPct:  100,
		SellTaxPct: 100,
	})

	report := auditor.Audit(context.Background(), testEVMAddr, "ethereum")
	require.Len(t, report.Checks, 5)

	exist := checkByName(t, report, "Contract Existence")
	assert.False(t, exist.Passed)
	assert.Equal(t, SeverityCritical, exist.Severity)

	assert.InDelta(t, 0.0, report.SafetyScore, 0.001)
	assert.Equal(t, TierCritical, report.RiskTier)
	assert.False(t, report.Safe)
}

func TestAudit_CacheHitReturnsSameReport(t *testing.T) {
	auditor, eth, _ := newTestAuditor()
	eth.Set(testEVMAddr, &TokenData{Exists: true, LiquidityUSD: 150000})

	first := auditor.Audit(context.Background(), testEVMAddr, "ethereum")
	second := auditor.Audit(context.Background(), testEVMAddr, "ethereum")

	require.Same(t, first, second)
	assert.Equal(t, int64(1), eth.Calls(), "cached audit must not touch the provider")

	stats := auditor.Stats()
	assert.Equal(t, int64(1), stats.Audits)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestAudit_CacheKeyIncludesChain(t *testing.T) {
	auditor, eth, sol := newTestAuditor()
	eth.Set(testEVMAddr, &TokenData{Exists: true, LiquidityUSD: 150000})

	auditor.Audit(context.Background(), testEVMAddr, "ethereum")
	auditor.Audit(context.Background(), testEVMAddr, "solana")

	assert.Equal(t, int64(1), eth.Calls())
	assert.Equal(t, int64(1), sol.Calls())
	assert.Equal(t, int64(0), auditor.Stats().CacheHits)
}

func TestAudit_ProviderErrorDegrades(t *testing.T) {
	auditor, eth, _ := newTestAuditor()
	eth.Fail(errors.New("connection timeout"))

	report := auditor.Audit(context.Background(), testEVMAddr, "ethereum")
	require.Len(t, report.Checks, 1)

	c := report.Checks[0]
	assert.False(t, c.Passed)
	assert.InDelta(t, 50.0, c.Score, 0.001)
	assert.Equal(t, SeverityMedium, c.Severity)
	assert.Contains(t, c.Detail, "API error")

	assert.InDelta(t, 50.0, report.SafetyScore, 0.001)
	assert.Equal(t, TierMedium, report.RiskTier)
	assert.False(t, report.Safe)
}

func TestAudit_SolanaCleanReport(t *testing.T) {
	auditor, _, sol := newTestAuditor()
	sol.Set(testSolAddr, &RugcheckResult{Score: 92})

	report := auditor.Audit(context.Background(), testSolAddr, "solana")
	require.Len(t, report.Checks, 1)

	c := report.Checks[0]
	assert.Equal(t, "RugCheck Analysis", c.Name)
	assert.True(t, c.Passed)
	assert.InDelta(t, 92.0, c.Score, 0.001)
	assert.Equal(t, SeverityLow, c.Severity)
	assert.Equal(t, "RugCheck score: 92, Risks: 0", c.Detail)

	assert.Equal(t, TierSafe, report.RiskTier)
	assert.True(t, report.Safe)
}

func TestAudit_SolanaRisksBecomeFailedChecks(t *testing.T) {
	auditor, _, sol := newTestAuditor()
	sol.Set(testSolAddr, &RugcheckResult{
		Score: 40,
		Risks: []RugcheckRisk{
			{Name: "Freeze Authority", Level: "critical", Description: "Mint can freeze holders"},
			{Name: "Top Holders", Level: "high", Description: "Top 10 hold 80%"},
			{Name: "Low Liquidity", Level: "unknown-level", Description: "Thin pool"},
		},
	})

	report := auditor.Audit(context.Background(), testSolAddr, "solana")
	require.Len(t, report.Checks, 4)

	summary := checkByName(t, report, "RugCheck Analysis")
	assert.False(t, summary.Passed)
	assert.Equal(t, SeverityHigh, summary.Severity)

	freeze := checkByName(t, report, "Freeze Authority")
	assert.Equal(t, SeverityCritical, freeze.Severity)
	assert.InDelta(t, 0.0, freeze.Score, 0.001)

	holders := checkByName(t, report, "Top Holders")
	assert.Equal(t, SeverityHigh, holders.Severity)

	// Unrecognized levels map to medium.
	thin := checkByName(t, report, "Low Liquidity")
	assert.Equal(t, SeverityMedium, thin.Severity)

	assert.False(t, report.Safe)
	assert.Equal(t, TierCritical, report.RiskTier)
	require.Len(t, report.FailedChecks(), 4)
}

func TestAudit_SolanaRisksWithDecentScoreStillFail(t *testing.T) {
	// A decent numeric score with any named risk fails the summary check.
	auditor, _, sol := newTestAuditor()
	sol.Set(testSolAddr, &RugcheckResult{
		Score: 75,
		Risks: []RugcheckRisk{{Name: "Mutable Metadata", Level: "low", Description: "Metadata can change"}},
	})

	report := auditor.Audit(context.Background(), testSolAddr, "solana")
	summary := checkByName(t, report, "RugCheck Analysis")
	assert.False(t, summary.Passed)
}

func TestAudit_UnsupportedChain(t *testing.T) {
	auditor, eth, sol := newTestAuditor()

	report := auditor.Audit(context.Background(), testEVMAddr, "tron")
	require.NotNil(t, report)

	assert.Empty(t, report.Checks)
	assert.InDelta(t, 0.0, report.SafetyScore, 0.001)
	assert.Equal(t, TierCritical, report.RiskTier)
	assert.False(t, report.Safe)
	assert.Equal(t, int64(0), eth.Calls())
	assert.Equal(t, int64(0), sol.Calls())
}

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score float64
		tier  RiskTier
	}{
		{100, TierSafe},
		{90, TierSafe},
		{89.9, TierLow},
		{70, TierLow},
		{69.9, TierMedium},
		{50, TierMedium},
		{49.9, TierHigh},
		{30, TierHigh},
		{29.9, TierCritical},
		{0, TierCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.tier, tierForScore(tc.score), "score %.1f", tc.score)
	}
}

func TestAudit_CacheExpires(t *testing.T) {
	cfg := DefaultAuditorConfig()
	cfg.CacheTTL = 20 * time.Millisecond
	eth := NewStubTokenProvider()
	eth.Set(testEVMAddr, &TokenData{Exists: true, LiquidityUSD: 150000})
	auditor := NewAuditor(cfg, eth, NewStubRugcheck())

	auditor.Audit(context.Background(), testEVMAddr, "ethereum")
	time.Sleep(40 * time.Millisecond)
	auditor.Audit(context.Background(), testEVMAddr, "ethereum")

	assert.Equal(t, int64(2), eth.Calls())
	assert.Equal(t, int64(2), auditor.Stats().Audits)
}
