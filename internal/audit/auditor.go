package audit

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Auditor — runs the per-chain security check suite for a contract address,
// aggregates an unweighted safety score and issues the safe/unsafe verdict.
// Reports are cached per (chain, address) so repeated signals for the same
// token inside the TTL cost zero provider calls.
// ---------------------------------------------------------------------------

const (
	chainEthereum = "ethereum"
	chainSolana   = "solana"
)

// AuditorConfig holds audit thresholds and cache settings.
type AuditorConfig struct {
	CacheTTL           time.Duration
	SafeScoreThreshold float64
	MinLiquidityUSD    float64
	MaxTaxPct          float64
	MaxHolderPct       float64
}

// DefaultAuditorConfig returns production thresholds.
func DefaultAuditorConfig() AuditorConfig {
	return AuditorConfig{
		CacheTTL:           5 * time.Minute,
		SafeScoreThreshold: 80,
		MinLiquidityUSD:    10000,
		MaxTaxPct:          10,
		MaxHolderPct:       50,
	}
}

// Auditor audits contract addresses ahead of any trade.
type Auditor struct {
	config AuditorConfig
	eth    TokenDataProvider
	sol    RugcheckProvider
	cache  *gocache.Cache

	audits    atomic.Int64
	cacheHits atomic.Int64
	unsafe    atomic.Int64
}

// NewAuditor builds an auditor over the given chain providers.
func NewAuditor(config AuditorConfig, eth TokenDataProvider, sol RugcheckProvider) *Auditor {
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	return &Auditor{
		config: config,
		eth:    eth,
		sol:    sol,
		cache:  gocache.New(config.CacheTTL, 2*config.CacheTTL),
	}
}

// Audit runs the full check suite for (address, chain). Every applicable
// check runs even after earlier failures so the report reflects the whole
// picture. Provider outages degrade to a single partial-credit check rather
// than an error. A cached report inside the TTL is returned unchanged.
func (a *Auditor) Audit(ctx context.Context, address, chain string) *Report {
	key := chain + ":" + address
	if cached, ok := a.cache.Get(key); ok {
		a.cacheHits.Add(1)
		log.Debug().Str("address", address).Str("chain", chain).Msg("audit: cache hit")
		return cached.(*Report)
	}

	a.audits.Add(1)
	report := &Report{
		Address:   address,
		Chain:     chain,
		Timestamp: time.Now().UTC(),
	}

	switch chain {
	case chainEthereum:
		a.runEthereumChecks(ctx, report)
	case chainSolana:
		a.runSolanaChecks(ctx, report)
	default:
		log.Warn().Str("chain", chain).Str("address", address).Msg("audit: unsupported chain")
	}

	a.finalize(report)
	a.cache.Set(key, report, gocache.DefaultExpiration)

	if !report.Safe {
		a.unsafe.Add(1)
	}
	log.Info().
		Str("address", address).
		Str("chain", chain).
		Float64("score", report.SafetyScore).
		Str("tier", string(report.RiskTier)).
		Bool("safe", report.Safe).
		Int("checks", len(report.Checks)).
		Msg("audit: report ready")

	return report
}

// runEthereumChecks evaluates the EVM suite from one token data fetch:
// contract existence, honeypot simulation, buy and sell tax, liquidity.
func (a *Auditor) runEthereumChecks(ctx context.Context, report *Report) {
	data, err := a.eth.TokenData(ctx, report.Address)
	if err != nil {
		log.Warn().Err(err).Str("address", report.Address).Msg("audit: token data fetch failed")
		report.Checks = append(report.Checks, Check{
			Name:     "Token Data",
			Passed:   false,
			Score:    50,
			Detail:   "API error: " + err.Error(),
			Severity: SeverityMedium,
		})
		return
	}

	report.Honeypot = data.IsHoneypot
	report.LiquidityUSD = data.LiquidityUSD
	report.BuyTaxPct = data.BuyTaxPct
	report.SellTaxPct = data.SellTaxPct
	report.TopHolderPct = data.TopHolderPct
	report.TokenName = data.Name
	report.TokenSymbol = data.Symbol

	existSeverity := SeverityInfo
	existDetail := "Contract exists"
	if !data.Exists {
		existSeverity = SeverityCritical
		existDetail = "No contract code at address"
	}
	report.Checks = append(report.Checks, Check{
		Name:     "Contract Existence",
		Passed:   data.Exists,
		Score:    boolScore(data.Exists),
		Detail:   existDetail,
		Severity: existSeverity,
	})

	hpSeverity := SeverityLow
	hpDetail := "Not a honeypot"
	if data.IsHoneypot {
		hpSeverity = SeverityCritical
		hpDetail = "HONEYPOT DETECTED"
	}
	report.Checks = append(report.Checks, Check{
		Name:     "Honeypot Check",
		Passed:   !data.IsHoneypot,
		Score:    boolScore(!data.IsHoneypot),
		Detail:   hpDetail,
		Severity: hpSeverity,
	})

	report.Checks = append(report.Checks, taxCheck("Buy Tax", "Buy tax", data.BuyTaxPct, a.config.MaxTaxPct))
	report.Checks = append(report.Checks, taxCheck("Sell Tax", "Sell tax", data.SellTaxPct, a.config.MaxTaxPct))

	liqSeverity := SeverityLow
	if data.LiquidityUSD < a.config.MinLiquidityUSD {
		liqSeverity = SeverityHigh
	}
	report.Checks = append(report.Checks, Check{
		Name:     "Liquidity",
		Passed:   data.LiquidityUSD >= a.config.MinLiquidityUSD,
		Score:    min(data.LiquidityUSD/1000, 100),
		Detail:   fmt.Sprintf("Liquidity: $%.0f", data.LiquidityUSD),
		Severity: liqSeverity,
	})
}

// runSolanaChecks evaluates a rugcheck report: one summary check plus one
// failed check per named risk.
func (a *Auditor) runSolanaChecks(ctx context.Context, report *Report) {
	result, err := a.sol.Report(ctx, report.Address)
	if err != nil {
		log.Warn().Err(err).Str("address", report.Address).Msg("audit: rugcheck fetch failed")
		report.Checks = append(report.Checks, Check{
			Name:     "RugCheck Analysis",
			Passed:   false,
			Score:    50,
			Detail:   "API error: " + err.Error(),
			Severity: SeverityMedium,
		})
		return
	}

	report.TokenName = result.Name
	report.TokenSymbol = result.Sym

	passed := result.Score >= 50 && len(result.Risks) == 0
	severity := SeverityLow
	if !passed {
		severity = SeverityHigh
	}
	report.Checks = append(report.Checks, Check{
		Name:     "RugCheck Analysis",
		Passed:   passed,
		Score:    result.Score,
		Detail:   fmt.Sprintf("RugCheck score: %.0f, Risks: %d", result.Score, len(result.Risks)),
		Severity: severity,
	})

	for _, risk := range result.Risks {
		report.Checks = append(report.Checks, Check{
			Name:     risk.Name,
			Passed:   false,
			Score:    0,
			Detail:   risk.Description,
			Severity: riskSeverity(risk.Level),
		})
	}
}

// finalize computes the aggregate score, risk tier and verdict. Safe
// requires the score threshold met, zero critical failures and no honeypot
// flag. An empty check list is unconditionally unsafe.
func (a *Auditor) finalize(report *Report) {
	if len(report.Checks) == 0 {
		report.SafetyScore = 0
		report.RiskTier = TierCritical
		report.Safe = false
		return
	}

	var total float64
	for _, c := range report.Checks {
		total += c.Score
	}
	report.SafetyScore = total / float64(len(report.Checks))
	report.RiskTier = tierForScore(report.SafetyScore)
	report.Safe = report.SafetyScore >= a.config.SafeScoreThreshold &&
		len(report.CriticalFailures()) == 0 &&
		!report.Honeypot
}

// taxCheck scores a transfer tax. Full marks at zero tax, zero marks at
// twenty percent and beyond.
func taxCheck(name, label string, taxPct, maxPct float64) Check {
	severity := SeverityMedium
	if taxPct > 20 {
		severity = SeverityHigh
	}
	return Check{
		Name:     name,
		Passed:   taxPct <= maxPct,
		Score:    100 - min(taxPct*5, 100),
		Detail:   fmt.Sprintf("%s: %.1f%%", label, taxPct),
		Severity: severity,
	}
}

// riskSeverity maps a rugcheck risk level onto a check severity.
func riskSeverity(level string) Severity {
	switch strings.ToLower(level) {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

func boolScore(ok bool) float64 {
	if ok {
		return 100
	}
	return 0
}

// AuditorStats is a point-in-time counter snapshot.
type AuditorStats struct {
	Audits    int64 `json:"audits"`
	CacheHits int64 `json:"cache_hits"`
	Unsafe    int64 `json:"unsafe"`
	Cached    int   `json:"cached"`
}

// Stats returns audit counters and the live cache size.
func (a *Auditor) Stats() AuditorStats {
	return AuditorStats{
		Audits:    a.audits.Load(),
		CacheHits: a.cacheHits.Load(),
		Unsafe:    a.unsafe.Load(),
		Cached:    a.cache.ItemCount(),
	}
}
