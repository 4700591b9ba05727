package sniper

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Exit evaluation. One decision per poll, in strict priority order: profit
// target, stop loss, trailing stop, max hold time. The first rule that
// fires wins; a position that trips several rules in the same poll closes
// for the highest-priority reason.
// ---------------------------------------------------------------------------

// ExitConfig holds the exit thresholds. Percent fields are whole percents;
// a zero disables that rule.
type ExitConfig struct {
	ProfitTargetPct float64       // close when unrealized P&L reaches this gain
	StopLossPct     float64       // close when unrealized P&L reaches this loss
	TrailingStopPct float64       // close when drawdown from peak reaches this
	MaxHold         time.Duration // close when the position age reaches this
}

// DefaultExitConfig returns the moonshot defaults: ride to +500%, cut at
// -50%, trail 20% off the peak, give up after a day.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		ProfitTargetPct: 500,
		StopLossPct:     50,
		TrailingStopPct: 20,
		MaxHold:         24 * time.Hour,
	}
}

// ExitDecision is the outcome of evaluating one position.
type ExitDecision struct {
	Exit   bool
	Reason CloseReason
	Detail string
}

// ExitEngine evaluates open positions against the exit rules.
type ExitEngine struct {
	config ExitConfig
}

// NewExitEngine creates an exit engine.
func NewExitEngine(config ExitConfig) *ExitEngine {
	return &ExitEngine{config: config}
}

// Evaluate checks a freshly marked position against the exit rules in
// priority order. The position's CurrentPrice, PeakPrice and PnLPct must be
// current; Evaluate itself is side-effect free.
func (x *ExitEngine) Evaluate(pos *Position, now time.Time) ExitDecision {
	if x.config.ProfitTargetPct > 0 && pos.PnLPct >= x.config.ProfitTargetPct {
		return ExitDecision{
			Exit:   true,
			Reason: ReasonProfitTarget,
			Detail: fmt.Sprintf("pnl %.2f%% >= target %.2f%%", pos.PnLPct, x.config.ProfitTargetPct),
		}
	}

	if x.config.StopLossPct > 0 && pos.PnLPct <= -x.config.StopLossPct {
		return ExitDecision{
			Exit:   true,
			Reason: ReasonStopLoss,
			Detail: fmt.Sprintf("pnl %.2f%% <= stop -%.2f%%", pos.PnLPct, x.config.StopLossPct),
		}
	}

	if x.config.TrailingStopPct > 0 && pos.PeakPrice.IsPositive() {
		drawdown := pos.PeakPrice.Sub(pos.CurrentPrice).
			Div(pos.PeakPrice).
			Mul(decimal.NewFromInt(100))
		if dd, _ := drawdown.Float64(); dd >= x.config.TrailingStopPct {
			return ExitDecision{
				Exit:   true,
				Reason: ReasonTrailingStop,
				Detail: fmt.Sprintf("drawdown %.2f%% from peak %s", dd, pos.PeakPrice),
			}
		}
	}

	if x.config.MaxHold > 0 && pos.HoldingFor(now) >= x.config.MaxHold {
		return ExitDecision{
			Exit:   true,
			Reason: ReasonTimeLimit,
			Detail: fmt.Sprintf("held %s >= limit %s", pos.HoldingFor(now).Round(time.Second), x.config.MaxHold),
		}
	}

	return ExitDecision{}
}
