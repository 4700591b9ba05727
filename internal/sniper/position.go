package sniper

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Position lifecycle. Every trade moves through a deterministic state
// machine; illegal transitions are errors, never silent corrections.
// ---------------------------------------------------------------------------

// PositionState is the lifecycle state of a trade.
type PositionState string

const (
	StatePending   PositionState = "PENDING"
	StateExecuting PositionState = "EXECUTING"
	StateOpen      PositionState = "OPEN"
	StateClosed    PositionState = "CLOSED"
	StateFailed    PositionState = "FAILED"
	StateCancelled PositionState = "CANCELLED"
)

// PositionEvent triggers a state transition.
type PositionEvent string

const (
	EventExecute PositionEvent = "EXECUTE"
	EventFill    PositionEvent = "FILL"
	EventClose   PositionEvent = "CLOSE"
	EventFail    PositionEvent = "FAIL"
	EventCancel  PositionEvent = "CANCEL"
)

// transition defines an allowed state machine edge.
type transition struct {
	from  PositionState
	event PositionEvent
}

// transitions is the authoritative transition table. Every valid
// (currentState, event) pair maps to exactly one target state.
var transitions = map[transition]PositionState{
	{StatePending, EventExecute}:  StateExecuting,
	{StatePending, EventCancel}:   StateCancelled,
	{StateExecuting, EventFill}:   StateOpen,
	{StateExecuting, EventFail}:   StateFailed,
	{StateOpen, EventClose}:       StateClosed,
	{StateOpen, EventFail}:        StateFailed,
	{StateOpen, EventCancel}:      StateCancelled,
}

// CloseReason states why a position left the book. Exactly one reason is
// recorded per close.
type CloseReason string

const (
	ReasonProfitTarget CloseReason = "PROFIT_TARGET"
	ReasonStopLoss     CloseReason = "STOP_LOSS"
	ReasonTrailingStop CloseReason = "TRAILING_STOP"
	ReasonTimeLimit    CloseReason = "TIME_LIMIT"
	ReasonManual       CloseReason = "MANUAL"
	ReasonEmergency    CloseReason = "EMERGENCY"
)

// Position tracks one trade from submission to close. Fields are mutated
// only while holding the owning engine's lock; callers outside the engine
// receive value copies.
type Position struct {
	ID           string          `json:"id"`
	Address      string          `json:"address"`
	Chain        string          `json:"chain"`
	Symbol       string          `json:"symbol,omitempty"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Tokens       decimal.Decimal `json:"tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	PeakPrice    decimal.Decimal `json:"peak_price"`
	PnLPct       float64         `json:"pnl_pct"`
	PnLUSD       decimal.Decimal `json:"pnl_usd"`
	HypeScore    float64         `json:"hype_score,omitempty"`
	SafetyScore  float64         `json:"safety_score,omitempty"`
	BuyTxRef     string          `json:"buy_tx_ref,omitempty"`
	SellTxRef    string          `json:"sell_tx_ref,omitempty"`
	State        PositionState   `json:"state"`
	CloseReason  CloseReason     `json:"close_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	OpenedAt     time.Time       `json:"opened_at,omitempty"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`

	// closing guards against concurrent sell attempts. Not a lifecycle
	// state; reset if the sell fails and the position stays open.
	closing bool
}

// transitionTo applies event to the position's state machine. Caller holds
// the engine lock.
func (p *Position) transitionTo(event PositionEvent) error {
	next, ok := transitions[transition{p.State, event}]
	if !ok {
		return fmt.Errorf("position %s: illegal transition %s on %s", p.ID, event, p.State)
	}
	p.State = next
	return nil
}

// markPrice folds a fresh quote into the position: current price, monotone
// peak and unrealized P&L percent.
func (p *Position) markPrice(price decimal.Decimal) {
	p.CurrentPrice = price
	if price.GreaterThan(p.PeakPrice) {
		p.PeakPrice = price
	}
	if p.EntryPrice.IsPositive() {
		pnl := price.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
		p.PnLPct, _ = pnl.Float64()
	}
}

// HoldingFor reports how long the position has been open.
func (p *Position) HoldingFor(now time.Time) time.Duration {
	if p.OpenedAt.IsZero() {
		return 0
	}
	return now.Sub(p.OpenedAt)
}
