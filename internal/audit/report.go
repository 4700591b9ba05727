package audit

import "time"

// ---------------------------------------------------------------------------
// Contract Audit Report — ordered security checks, aggregate score, risk
// tier and the hard safe/unsafe verdict.
// ---------------------------------------------------------------------------

// Severity grades a single check's impact.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// RiskTier bands the aggregate score.
type RiskTier string

const (
	TierSafe     RiskTier = "SAFE"
	TierLow      RiskTier = "LOW"
	TierMedium   RiskTier = "MEDIUM"
	TierHigh     RiskTier = "HIGH"
	TierCritical RiskTier = "CRITICAL"
)

// Check is one security check result. Immutable; owned by its Report.
type Check struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Score    float64  `json:"score"` // 0–100
	Detail   string   `json:"detail"`
	Severity Severity `json:"severity"`
}

// Report is the full outcome of auditing one (chain, address) pair.
type Report struct {
	Address   string    `json:"address"`
	Chain     string    `json:"chain"`
	Timestamp time.Time `json:"timestamp"`

	Checks      []Check  `json:"checks"`
	SafetyScore float64  `json:"safety_score"` // unweighted mean of check scores
	RiskTier    RiskTier `json:"risk_tier"`
	Safe        bool     `json:"safe"`
	Honeypot    bool     `json:"honeypot"`

	// Economic facts surfaced by the providers.
	LiquidityUSD float64 `json:"liquidity_usd"`
	BuyTaxPct    float64 `json:"buy_tax_pct"`
	SellTaxPct   float64 `json:"sell_tax_pct"`
	TopHolderPct float64 `json:"top_holder_pct"`

	TokenName   string `json:"token_name,omitempty"`
	TokenSymbol string `json:"token_symbol,omitempty"`
}

// FailedChecks returns every check that did not pass.
func (r *Report) FailedChecks() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// CriticalFailures returns failed checks of CRITICAL severity. Any entry
// here forces Safe to false regardless of the aggregate score.
func (r *Report) CriticalFailures() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed && c.Severity == SeverityCritical {
			failed = append(failed, c)
		}
	}
	return failed
}

// tierForScore bands an aggregate score into a RiskTier.
func tierForScore(score float64) RiskTier {
	switch {
	case score >= 90:
		return TierSafe
	case score >= 70:
		return TierLow
	case score >= 50:
		return TierMedium
	case score >= 30:
		return TierHigh
	default:
		return TierCritical
	}
}
