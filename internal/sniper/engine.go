package sniper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/kestrel/internal/broker"
	"github.com/kestrel-trading/kestrel/internal/risk"
)

// ---------------------------------------------------------------------------
// Sniper Engine — buys audited tokens, monitors every open position on a
// fixed tick and closes on the first exit rule that fires. Owns the USD
// balance; sizing and trade discipline are delegated to the risk sizer.
// ---------------------------------------------------------------------------

// EngineConfig configures the trade engine.
type EngineConfig struct {
	// Paper balance the engine starts with.
	StartingBalanceUSD float64

	// Exit thresholds applied to every position.
	Exits ExitConfig

	// How often open positions are re-priced.
	MonitorInterval time.Duration

	// Pause after a poll error before the next tick is honored.
	ErrorBackoff time.Duration

	// How often held tokens are re-audited. 0 disables the re-check.
	SafetyRecheck time.Duration

	// Closed positions kept in memory.
	HistoryCap int

	// Dry run mode: surfaced in stats, execution is the broker's concern.
	DryRun bool
}

// DefaultEngineConfig returns paper trading defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StartingBalanceUSD: 1000,
		Exits:              DefaultExitConfig(),
		MonitorInterval:    5 * time.Second,
		ErrorBackoff:       10 * time.Second,
		SafetyRecheck:      60 * time.Second,
		HistoryCap:         500,
		DryRun:             true,
	}
}

// RefusedError reports a buy the risk gates turned down. No position state
// is created for a refused buy.
type RefusedError struct {
	Reasons []string
}

func (e *RefusedError) Error() string {
	return "trade refused: " + strings.Join(e.Reasons, "; ")
}

// SafetyFunc re-checks a held token. Returning false closes the position
// immediately with reason EMERGENCY.
type SafetyFunc func(ctx context.Context, chain, address string) (safe bool, detail string)

// BuyRequest asks the engine to open a position in a token.
type BuyRequest struct {
	Address     string
	Chain       string
	Symbol      string
	HypeScore   float64
	SafetyScore float64
}

// posRef identifies an open position in a lock-free snapshot.
type posRef struct {
	id      string
	chain   string
	address string
}

// Engine executes and monitors trades.
type Engine struct {
	config EngineConfig
	broker broker.Broker
	prices broker.PriceSource
	sizer  *risk.Sizer
	exits  *ExitEngine

	mu       sync.RWMutex
	balance  decimal.Decimal
	open     map[string]*Position
	history  []Position
	totalPnL decimal.Decimal
	pending  int // buys in flight, reserved against the position ceiling
	safety   SafetyFunc
	onOpen   func(Position)
	onClose  func(Position)

	running atomic.Bool
	trades  atomic.Int64
	wins    atomic.Int64
	losses  atomic.Int64
}

// NewEngine creates a trade engine over a broker, a price source and a risk
// sizer.
func NewEngine(config EngineConfig, b broker.Broker, prices broker.PriceSource, sizer *risk.Sizer) *Engine {
	log.Info().
		Float64("balance_usd", config.StartingBalanceUSD).
		Dur("monitor_interval", config.MonitorInterval).
		Bool("dry_run", config.DryRun).
		Str("venue", b.Name()).
		Msg("sniper: engine initialized")
	return &Engine{
		config:  config,
		broker:  b,
		prices:  prices,
		sizer:   sizer,
		exits:   NewExitEngine(config.Exits),
		balance: decimal.NewFromFloat(config.StartingBalanceUSD),
		open:    make(map[string]*Position),
	}
}

// SetSafetyCheck installs the held-token re-check. Set before Run.
func (e *Engine) SetSafetyCheck(fn SafetyFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.safety = fn
}

// SetOnOpen sets the callback invoked with a copy of each opened position.
func (e *Engine) SetOnOpen(fn func(Position)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onOpen = fn
}

// SetOnClose sets the callback invoked with a copy of each closed position.
func (e *Engine) SetOnClose(fn func(Position)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClose = fn
}

// Buy sizes and executes a buy. The risk gates run first; a refusal returns
// RefusedError and creates no position state. A broker failure records the
// position as FAILED in history.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (*Position, error) {
	e.mu.Lock()
	openCount := len(e.open) + e.pending
	balanceF, _ := e.balance.Float64()
	decision := e.sizer.Approve(balanceF, openCount)
	if !decision.Allowed {
		e.mu.Unlock()
		return nil, &RefusedError{Reasons: decision.Reasons}
	}
	if decision.SizeUSD.GreaterThan(e.balance) {
		e.mu.Unlock()
		return nil, fmt.Errorf("insufficient balance: need %s, have %s", decision.SizeUSD, e.balance)
	}
	e.pending++
	e.mu.Unlock()

	pos := &Position{
		ID:          uuid.New().String()[:12],
		Address:     req.Address,
		Chain:       req.Chain,
		Symbol:      req.Symbol,
		HypeScore:   req.HypeScore,
		SafetyScore: req.SafetyScore,
		State:       StatePending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := pos.transitionTo(EventExecute); err != nil {
		e.releasePending()
		return nil, err
	}

	log.Info().
		Str("pos_id", pos.ID).
		Str("address", req.Address).
		Str("chain", req.Chain).
		Str("size_usd", decision.SizeUSD.String()).
		Float64("base_pct", decision.BasePct).
		Msg("sniper: executing buy")

	fill, err := e.broker.Buy(ctx, broker.BuyOrder{
		OrderID: pos.ID,
		Chain:   req.Chain,
		Address: req.Address,
		USD:     decision.SizeUSD,
	})

	e.mu.Lock()
	e.pending--
	if err != nil {
		_ = pos.transitionTo(EventFail)
		now := time.Now().UTC()
		pos.ClosedAt = &now
		e.pushHistoryLocked(*pos)
		e.mu.Unlock()
		log.Error().Err(err).Str("pos_id", pos.ID).Str("address", req.Address).Msg("sniper: buy failed")
		return nil, fmt.Errorf("buy %s: %w", req.Address, err)
	}

	pos.EntryPrice = fill.Price
	pos.Tokens = fill.Tokens
	pos.CostUSD = fill.USD
	pos.CurrentPrice = fill.Price
	pos.PeakPrice = fill.Price
	pos.BuyTxRef = fill.TxRef
	pos.OpenedAt = fill.Filled
	if err := pos.transitionTo(EventFill); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.balance = e.balance.Sub(fill.USD)
	e.open[pos.ID] = pos
	snapshot := *pos
	cb := e.onOpen
	e.mu.Unlock()

	e.sizer.RecordOpen()
	e.trades.Add(1)
	if cb != nil {
		cb(snapshot)
	}

	log.Info().
		Str("pos_id", pos.ID).
		Str("address", pos.Address).
		Str("entry_price", pos.EntryPrice.String()).
		Str("tokens", pos.Tokens.String()).
		Str("tx_ref", pos.BuyTxRef).
		Msg("sniper: position opened")

	return &snapshot, nil
}

func (e *Engine) releasePending() {
	e.mu.Lock()
	e.pending--
	e.mu.Unlock()
}

// Close closes one open position with reason MANUAL. Unknown or already
// closed ids are errors.
func (e *Engine) Close(ctx context.Context, id string) (*Position, error) {
	return e.closePosition(ctx, id, ReasonManual)
}

// CloseAll closes every open position with the given reason and returns how
// many closed. Used on shutdown and by the kill switch with EMERGENCY.
func (e *Engine) CloseAll(ctx context.Context, reason CloseReason) int {
	targets := e.openRefs()
	closed := 0
	for _, t := range targets {
		if _, err := e.closePosition(ctx, t.id, reason); err != nil {
			log.Error().Err(err).Str("pos_id", t.id).Msg("sniper: close-all failed for position")
			continue
		}
		closed++
	}
	if closed > 0 {
		log.Warn().Int("closed", closed).Str("reason", string(reason)).Msg("sniper: closed all positions")
	}
	return closed
}

// closePosition liquidates one open position. The broker call happens
// outside the lock; a failed sell leaves the position open for the next
// poll to retry.
func (e *Engine) closePosition(ctx context.Context, id string, reason CloseReason) (*Position, error) {
	e.mu.Lock()
	pos, ok := e.open[id]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("position %s: not open", id)
	}
	if pos.closing {
		e.mu.Unlock()
		return nil, fmt.Errorf("position %s: close already in flight", id)
	}
	pos.closing = true
	order := broker.SellOrder{
		OrderID: uuid.New().String()[:12],
		Chain:   pos.Chain,
		Address: pos.Address,
		Tokens:  pos.Tokens,
	}
	e.mu.Unlock()

	log.Info().
		Str("pos_id", id).
		Str("address", order.Address).
		Str("reason", string(reason)).
		Msg("sniper: executing sell")

	fill, err := e.broker.Sell(ctx, order)

	e.mu.Lock()
	if err != nil {
		pos.closing = false
		e.mu.Unlock()
		log.Error().Err(err).Str("pos_id", id).Msg("sniper: sell failed, position stays open")
		return nil, fmt.Errorf("sell %s: %w", id, err)
	}

	now := time.Now().UTC()
	pos.SellTxRef = fill.TxRef
	pos.markPrice(fill.Price)
	pos.PnLUSD = fill.USD.Sub(pos.CostUSD)
	pos.CloseReason = reason
	pos.ClosedAt = &now
	if err := pos.transitionTo(EventClose); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.balance = e.balance.Add(fill.USD)
	e.totalPnL = e.totalPnL.Add(pos.PnLUSD)
	delete(e.open, id)
	e.pushHistoryLocked(*pos)

	win := pos.PnLUSD.GreaterThan(decimal.Zero)
	pnlF, _ := pos.PnLUSD.Float64()
	snapshot := *pos
	cb := e.onClose
	e.mu.Unlock()

	if win {
		e.wins.Add(1)
	} else {
		e.losses.Add(1)
	}
	e.sizer.RecordResult(win, pnlF)
	if cb != nil {
		cb(snapshot)
	}

	log.Info().
		Str("pos_id", id).
		Str("address", snapshot.Address).
		Str("reason", string(reason)).
		Float64("pnl_pct", snapshot.PnLPct).
		Str("pnl_usd", snapshot.PnLUSD.String()).
		Msg("sniper: position closed")

	return &snapshot, nil
}

// Poll re-prices every open position from a snapshot taken at tick start
// and closes the ones whose exit rules fire. Returns the first error seen;
// the remaining positions are still processed.
func (e *Engine) Poll(ctx context.Context) error {
	targets := e.openRefs()

	var firstErr error
	for _, t := range targets {
		price, err := e.prices.Price(ctx, t.chain, t.address)
		if err != nil {
			log.Warn().Err(err).Str("pos_id", t.id).Str("address", t.address).Msg("sniper: price fetch failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		e.mu.Lock()
		pos, ok := e.open[t.id]
		if !ok || pos.closing {
			e.mu.Unlock()
			continue
		}
		pos.markPrice(price)
		decision := e.exits.Evaluate(pos, time.Now().UTC())
		e.mu.Unlock()

		if !decision.Exit {
			continue
		}
		log.Info().
			Str("pos_id", t.id).
			Str("reason", string(decision.Reason)).
			Str("detail", decision.Detail).
			Msg("sniper: exit rule fired")
		if _, err := e.closePosition(ctx, t.id, decision.Reason); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run drives the monitor until ctx is cancelled. Poll errors log and back
// off, they never terminate the loop.
func (e *Engine) Run(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		log.Warn().Msg("sniper: monitor already running")
		return
	}
	defer e.running.Store(false)

	log.Info().
		Dur("interval", e.config.MonitorInterval).
		Dur("safety_recheck", e.config.SafetyRecheck).
		Msg("sniper: monitor started")

	ticker := time.NewTicker(e.config.MonitorInterval)
	defer ticker.Stop()

	e.mu.RLock()
	safety := e.safety
	e.mu.RUnlock()

	var safetyC <-chan time.Time
	if e.config.SafetyRecheck > 0 && safety != nil {
		st := time.NewTicker(e.config.SafetyRecheck)
		defer st.Stop()
		safetyC = st.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sniper: monitor stopped")
			return
		case <-ticker.C:
			if err := e.Poll(ctx); err != nil {
				log.Error().Err(err).
					Dur("backoff", e.config.ErrorBackoff).
					Msg("sniper: poll error, backing off")
				select {
				case <-time.After(e.config.ErrorBackoff):
				case <-ctx.Done():
					return
				}
			}
		case <-safetyC:
			e.recheckSafety(ctx, safety)
		}
	}
}

// recheckSafety re-audits every held token and emergency-exits any that
// flipped unsafe.
func (e *Engine) recheckSafety(ctx context.Context, fn SafetyFunc) {
	for _, t := range e.openRefs() {
		safe, detail := fn(ctx, t.chain, t.address)
		if safe {
			continue
		}
		log.Warn().
			Str("pos_id", t.id).
			Str("address", t.address).
			Str("detail", detail).
			Msg("sniper: held token flipped unsafe, emergency exit")
		if _, err := e.closePosition(ctx, t.id, ReasonEmergency); err != nil {
			log.Error().Err(err).Str("pos_id", t.id).Msg("sniper: emergency close failed")
		}
	}
}

func (e *Engine) openRefs() []posRef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	refs := make([]posRef, 0, len(e.open))
	for _, p := range e.open {
		refs = append(refs, posRef{id: p.ID, chain: p.Chain, address: p.Address})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].id < refs[j].id })
	return refs
}

func (e *Engine) pushHistoryLocked(pos Position) {
	if e.config.HistoryCap > 0 && len(e.history) >= e.config.HistoryCap {
		e.history = e.history[1:]
	}
	e.history = append(e.history, pos)
}

// BalanceUSD returns the current paper balance.
func (e *Engine) BalanceUSD() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balance
}

// OpenPositions returns copies of all open positions, oldest first.
func (e *Engine) OpenPositions() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Position, 0, len(e.open))
	for _, p := range e.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// History returns copies of closed, failed and cancelled positions, oldest
// first.
func (e *Engine) History() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Position, len(e.history))
	copy(out, e.history)
	return out
}

// Get returns a copy of a position by id, searching open positions first.
func (e *Engine) Get(id string) (Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if p, ok := e.open[id]; ok {
		return *p, true
	}
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].ID == id {
			return e.history[i], true
		}
	}
	return Position{}, false
}

// EngineStats is a point-in-time snapshot of trading results.
type EngineStats struct {
	BalanceUSD    float64 `json:"balance_usd"`
	OpenPositions int     `json:"open_positions"`
	TotalTrades   int64   `json:"total_trades"`
	Wins          int64   `json:"wins"`
	Losses        int64   `json:"losses"`
	WinRate       float64 `json:"win_rate"`
	TotalPnLUSD   float64 `json:"total_pnl_usd"`
	DryRun        bool    `json:"dry_run"`
}

// Stats returns trading counters and the live balance.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	balance, _ := e.balance.Float64()
	openCount := len(e.open)
	totalPnL, _ := e.totalPnL.Float64()
	e.mu.RUnlock()

	wins := e.wins.Load()
	losses := e.losses.Load()
	winRate := 0.0
	if wins+losses > 0 {
		winRate = float64(wins) / float64(wins+losses) * 100
	}

	return EngineStats{
		BalanceUSD:    balance,
		OpenPositions: openCount,
		TotalTrades:   e.trades.Load(),
		Wins:          wins,
		Losses:        losses,
		WinRate:       winRate,
		TotalPnLUSD:   totalPnL,
		DryRun:        e.config.DryRun,
	}
}
