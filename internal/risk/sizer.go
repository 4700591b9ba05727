package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Sizer — position sizing and trade discipline. Every buy passes through
// Approve, which applies the refusal gates in a fixed order and then sizes
// the allocation from the live balance. The adaptive strategy widens after
// win streaks, shrinks after losses and throttles as the daily loss limit
// approaches.
// ---------------------------------------------------------------------------

const (
	// maxLossStreak halts trading after this many consecutive losses.
	maxLossStreak = 5

	adaptiveBasePct  = 15.0
	adaptiveMinPct   = 5.0
	adaptiveMaxPct   = 30.0
	adaptiveWinCap   = 15.0 // max added percentage points on a win streak
	adaptiveLossCap  = 10.0 // max removed percentage points on a loss streak
	adaptiveWinStep  = 3.0
	adaptiveLossStep = 5.0
)

// Decision is the outcome of one Approve call. Reasons carries every gate
// that refused, not just the first.
type Decision struct {
	Allowed   bool            `json:"allowed"`
	SizeUSD   decimal.Decimal `json:"size_usd"`
	BasePct   float64         `json:"base_pct"`
	Reasons   []string        `json:"reasons,omitempty"`
	Timestamp int64           `json:"ts"`
}

// Sizer sizes positions and enforces trade discipline for one engine.
type Sizer struct {
	strategy Strategy
	params   Params

	mu              sync.RWMutex
	dayStartBalance float64
	dailyPnLUSD     float64
	tradesToday     int
	winStreak       int
	lossStreak      int

	wins    atomic.Int64
	losses  atomic.Int64
	allowed atomic.Int64
	denied  atomic.Int64
}

// NewSizer builds a sizer for the given strategy. startingBalanceUSD pins
// the reference balance for the daily loss limit until the next ResetDaily.
func NewSizer(strategy Strategy, startingBalanceUSD float64) (*Sizer, error) {
	params, err := ParamsFor(strategy)
	if err != nil {
		return nil, err
	}
	return NewSizerWithParams(strategy, params, startingBalanceUSD), nil
}

// NewSizerWithParams builds a sizer over an explicit parameter set, for
// configurations that override entries of the strategy table.
func NewSizerWithParams(strategy Strategy, params Params, startingBalanceUSD float64) *Sizer {
	log.Info().
		Str("strategy", string(strategy)).
		Float64("base_pct", params.BasePositionPct).
		Int("max_open", params.MaxOpenPositions).
		Msg("risk: sizer initialized")
	return &Sizer{
		strategy:        strategy,
		params:          params,
		dayStartBalance: startingBalanceUSD,
	}
}

// Approve evaluates the refusal gates in order and, if all pass, sizes the
// next position from the live balance: balance times base percent, clamped
// to the per-trade bounds, then scaled down ten percent per open position
// with a floor of half.
func (s *Sizer) Approve(balanceUSD float64, openPositions int) Decision {
	d := Decision{Allowed: true, Timestamp: time.Now().UnixMicro()}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if openPositions >= s.params.MaxOpenPositions {
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("MAX_POSITIONS:open=%d,limit=%d", openPositions, s.params.MaxOpenPositions))
	}
	if s.tradesToday >= s.params.MaxDailyTrades {
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("DAILY_TRADE_LIMIT:trades=%d,limit=%d", s.tradesToday, s.params.MaxDailyTrades))
	}
	lossLimit := s.dayStartBalance * s.params.MaxDailyLossPct / 100
	if lossLimit > 0 && s.dailyPnLUSD <= -lossLimit {
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("DAILY_LOSS_LIMIT:pnl=%.2f,limit=%.2f", s.dailyPnLUSD, lossLimit))
	}
	if s.lossStreak >= maxLossStreak {
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("LOSS_STREAK:streak=%d,limit=%d", s.lossStreak, maxLossStreak))
	}

	if len(d.Reasons) > 0 {
		d.Allowed = false
		s.denied.Add(1)
		log.Warn().Strs("reasons", d.Reasons).Msg("risk: trade refused")
		return d
	}

	pct := s.basePercentLocked()
	alloc := balanceUSD * pct / 100
	if alloc < s.params.MinTradeUSD {
		alloc = s.params.MinTradeUSD
	}
	if alloc > s.params.MaxTradeUSD {
		alloc = s.params.MaxTradeUSD
	}
	scale := 1 - 0.10*float64(openPositions)
	if scale < 0.5 {
		scale = 0.5
	}
	alloc *= scale

	d.BasePct = pct
	d.SizeUSD = decimal.NewFromFloat(alloc).Round(2)
	s.allowed.Add(1)

	log.Debug().
		Float64("base_pct", pct).
		Str("size_usd", d.SizeUSD.String()).
		Int("open", openPositions).
		Msg("risk: trade approved")

	return d
}

// basePercentLocked returns the allocation percent for the next trade.
// Static strategies read their table; adaptive recomputes from streaks and
// loss-limit proximity. Caller holds at least the read lock.
func (s *Sizer) basePercentLocked() float64 {
	if s.strategy != StrategyAdaptive {
		return s.params.BasePositionPct
	}

	pct := adaptiveBasePct
	if s.winStreak >= 3 {
		pct += min(adaptiveWinCap, float64(s.winStreak)*adaptiveWinStep)
	} else if s.lossStreak >= 2 {
		pct -= min(adaptiveLossCap, float64(s.lossStreak)*adaptiveLossStep)
	}

	if lossLimit := s.dayStartBalance * s.params.MaxDailyLossPct / 100; lossLimit > 0 && s.dailyPnLUSD < 0 {
		proximity := -s.dailyPnLUSD / lossLimit
		if proximity > 0.5 {
			pct *= 1 - proximity*0.3
		}
	}

	if pct < adaptiveMinPct {
		pct = adaptiveMinPct
	}
	if pct > adaptiveMaxPct {
		pct = adaptiveMaxPct
	}
	return pct
}

// RecordOpen counts an opened trade against the daily cap.
func (s *Sizer) RecordOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradesToday++
}

// RecordResult folds a closed trade into the streaks and daily P&L.
func (s *Sizer) RecordResult(win bool, pnlUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dailyPnLUSD += pnlUSD
	if win {
		s.winStreak++
		s.lossStreak = 0
		s.wins.Add(1)
	} else {
		s.lossStreak++
		s.winStreak = 0
		s.losses.Add(1)
	}

	log.Debug().
		Bool("win", win).
		Float64("pnl_usd", pnlUSD).
		Int("win_streak", s.winStreak).
		Int("loss_streak", s.lossStreak).
		Float64("daily_pnl", s.dailyPnLUSD).
		Msg("risk: result recorded")
}

// ResetDaily zeroes the daily counters and re-pins the loss-limit reference
// balance. Streaks survive the day boundary.
func (s *Sizer) ResetDaily(currentBalanceUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dailyPnLUSD = 0
	s.tradesToday = 0
	s.dayStartBalance = currentBalanceUSD

	log.Info().Float64("balance", currentBalanceUSD).Msg("risk: daily counters reset")
}

// Params returns the active strategy table.
func (s *Sizer) Params() Params { return s.params }

// Strategy returns the active strategy name.
func (s *Sizer) Strategy() Strategy { return s.strategy }

// SizerStats is a point-in-time snapshot of sizing state.
type SizerStats struct {
	Strategy    Strategy `json:"strategy"`
	BasePct     float64  `json:"base_pct"`
	DailyPnLUSD float64  `json:"daily_pnl_usd"`
	TradesToday int      `json:"trades_today"`
	WinStreak   int      `json:"win_streak"`
	LossStreak  int      `json:"loss_streak"`
	Wins        int64    `json:"wins"`
	Losses      int64    `json:"losses"`
	Allowed     int64    `json:"allowed"`
	Denied      int64    `json:"denied"`
}

// Stats returns the current sizing state.
func (s *Sizer) Stats() SizerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SizerStats{
		Strategy:    s.strategy,
		BasePct:     s.basePercentLocked(),
		DailyPnLUSD: s.dailyPnLUSD,
		TradesToday: s.tradesToday,
		WinStreak:   s.winStreak,
		LossStreak:  s.lossStreak,
		Wins:        s.wins.Load(),
		Losses:      s.losses.Load(),
		Allowed:     s.allowed.Load(),
		Denied:      s.denied.Load(),
	}
}
