package risk

import "fmt"

// ---------------------------------------------------------------------------
// Strategy tables. Static risk parameter sets selected at startup; the
// adaptive strategy starts from the balanced table and recomputes its base
// allocation per trade from streaks and loss-limit proximity.
// ---------------------------------------------------------------------------

// Strategy selects a risk parameter table.
type Strategy string

const (
	StrategyConservative Strategy = "conservative"
	StrategyBalanced     Strategy = "balanced"
	StrategyAggressive   Strategy = "aggressive"
	StrategyAdaptive     Strategy = "adaptive"
)

// Params is one strategy's risk parameter set. Percent fields are whole
// percents (15 means 15%).
type Params struct {
	BasePositionPct  float64
	MaxOpenPositions int
	StopLossPct      float64
	TakeProfitPct    float64
	MaxDailyLossPct  float64
	MaxDailyTrades   int
	MinTradeUSD      float64
	MaxTradeUSD      float64
}

var strategyTable = map[Strategy]Params{
	StrategyConservative: {
		BasePositionPct:  5,
		MaxOpenPositions: 5,
		StopLossPct:      2,
		TakeProfitPct:    5,
		MaxDailyLossPct:  5,
		MaxDailyTrades:   15,
		MinTradeUSD:      5,
		MaxTradeUSD:      5000,
	},
	StrategyBalanced: {
		BasePositionPct:  15,
		MaxOpenPositions: 4,
		StopLossPct:      2.5,
		TakeProfitPct:    4,
		MaxDailyLossPct:  8,
		MaxDailyTrades:   12,
		MinTradeUSD:      5,
		MaxTradeUSD:      10000,
	},
	StrategyAggressive: {
		BasePositionPct:  30,
		MaxOpenPositions: 3,
		StopLossPct:      3,
		TakeProfitPct:    2,
		MaxDailyLossPct:  10,
		MaxDailyTrades:   10,
		MinTradeUSD:      5,
		MaxTradeUSD:      20000,
	},
}

// ParamsFor returns the parameter table for a strategy. Adaptive uses the
// balanced table as its starting point.
func ParamsFor(s Strategy) (Params, error) {
	if s == StrategyAdaptive {
		return strategyTable[StrategyBalanced], nil
	}
	p, ok := strategyTable[s]
	if !ok {
		return Params{}, fmt.Errorf("unknown strategy: %s", s)
	}
	return p, nil
}

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s Strategy) bool {
	if s == StrategyAdaptive {
		return true
	}
	_, ok := strategyTable[s]
	return ok
}
