package sniper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/kestrel/internal/broker"
	"github.com/kestrel-trading/kestrel/internal/risk"
)

const (
	testChain = "ethereum"
	testAddr  = "0x1234567890abcdef1234567890abcdef12345678"
)

// stubFeed serves pinned prices so exit behavior is deterministic.
type stubFeed struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
}

func newStubFeed() *stubFeed {
	return &stubFeed{prices: make(map[string]decimal.Decimal)}
}

func (s *stubFeed) set(chain, addr string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[chain+":"+addr] = decimal.NewFromFloat(price)
}

func (s *stubFeed) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubFeed) Price(_ context.Context, chain, addr string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return decimal.Zero, s.err
	}
	if p, ok := s.prices[chain+":"+addr]; ok {
		return p, nil
	}
	return decimal.Zero, fmt.Errorf("no price for %s", addr)
}

// failBroker rejects every order.
type failBroker struct{}

func (failBroker) Buy(context.Context, broker.BuyOrder) (*broker.Fill, error) {
	return nil, errors.New("venue rejected")
}

func (failBroker) Sell(context.Context, broker.SellOrder) (*broker.Fill, error) {
	return nil, errors.New("venue rejected")
}

func (failBroker) Name() string { return "fail" }

func newTestEngine(t *testing.T, strategy risk.Strategy) (*Engine, *broker.PaperBroker, *stubFeed) {
	t.Helper()
	cfg := DefaultEngineConfig()
	sizer, err := risk.NewSizer(strategy, cfg.StartingBalanceUSD)
	require.NoError(t, err)
	pb := broker.NewPaperBroker(1)
	feed := newStubFeed()
	return NewEngine(cfg, pb, feed, sizer), pb, feed
}

func buyAt(t *testing.T, e *Engine, pb *broker.PaperBroker, addr string, entry float64) *Position {
	t.Helper()
	pb.SetPrice(testChain, addr, decimal.NewFromFloat(entry))
	pos, err := e.Buy(context.Background(), BuyRequest{
		Address: addr, Chain: testChain, HypeScore: 85, SafetyScore: 92,
	})
	require.NoError(t, err)
	return pos
}

func TestEngine_BuyOpensPosition(t *testing.T) {
	e, pb, _ := newTestEngine(t, risk.StrategyBalanced)

	pos := buyAt(t, e, pb, testAddr, 100)

	assert.Equal(t, StateOpen, pos.State)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(100)))
	// 15% of $1000 at $100 per token.
	assert.True(t, pos.CostUSD.Equal(decimal.NewFromInt(150)), "got %s", pos.CostUSD)
	assert.True(t, pos.Tokens.Equal(decimal.NewFromFloat(1.5)), "got %s", pos.Tokens)
	assert.NotEmpty(t, pos.BuyTxRef)

	assert.True(t, e.BalanceUSD().Equal(decimal.NewFromInt(850)), "got %s", e.BalanceUSD())
	assert.Len(t, e.OpenPositions(), 1)
	assert.Equal(t, int64(1), e.Stats().TotalTrades)
}

func TestEngine_BuyBeyondMaxPositionsRejected(t *testing.T) {
	// Balanced caps at 4 open positions.
	e, pb, _ := newTestEngine(t, risk.StrategyBalanced)
	for i := 0; i < 4; i++ {
		buyAt(t, e, pb, fmt.Sprintf("0x%040d", i), 100)
	}
	balanceBefore := e.BalanceUSD()

	_, err := e.Buy(context.Background(), BuyRequest{Address: testAddr, Chain: testChain})

	var refused *RefusedError
	require.ErrorAs(t, err, &refused)
	assert.Contains(t, refused.Reasons[0], "MAX_POSITIONS")

	assert.Len(t, e.OpenPositions(), 4, "no position may be created for a refused buy")
	assert.Empty(t, e.History())
	assert.True(t, e.BalanceUSD().Equal(balanceBefore))
	assert.Equal(t, int64(4), e.Stats().TotalTrades)
}

func TestEngine_BuyFailureRecordsFailedPosition(t *testing.T) {
	cfg := DefaultEngineConfig()
	sizer, err := risk.NewSizer(risk.StrategyBalanced, cfg.StartingBalanceUSD)
	require.NoError(t, err)
	e := NewEngine(cfg, failBroker{}, newStubFeed(), sizer)

	_, err = e.Buy(context.Background(), BuyRequest{Address: testAddr, Chain: testChain})
	require.Error(t, err)

	assert.Empty(t, e.OpenPositions())
	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, StateFailed, history[0].State)
	assert.True(t, e.BalanceUSD().Equal(decimal.NewFromInt(1000)), "balance untouched on failed buy")
	assert.Equal(t, int64(0), e.Stats().TotalTrades)
}

func TestEngine_PnLFromCurrentPrice(t *testing.T) {
	e, pb, feed := newTestEngine(t, risk.StrategyBalanced)
	pos := buyAt(t, e, pb, testAddr, 100)

	feed.set(testChain, testAddr, 150)
	require.NoError(t, e.Poll(context.Background()))

	open := e.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, 50.0, open[0].PnLPct, "entry $100 current $150 must be exactly +50%")
	assert.Equal(t, pos.ID, open[0].ID)
}

func TestEngine_PollClosesOnProfitTarget(t *testing.T) {
	e, pb, feed := newTestEngine(t, risk.StrategyBalanced)
	pos := buyAt(t, e, pb, testAddr, 100)

	// +600% clears the +500% target.
	feed.set(testChain, testAddr, 700)
	pb.SetPrice(testChain, testAddr, decimal.NewFromInt(700))
	require.NoError(t, e.Poll(context.Background()))

	assert.Empty(t, e.OpenPositions())
	history := e.History()
	require.Len(t, history, 1)
	closed := history[0]
	assert.Equal(t, pos.ID, closed.ID)
	assert.Equal(t, StateClosed, closed.State)
	assert.Equal(t, ReasonProfitTarget, closed.CloseReason)
	require.NotNil(t, closed.ClosedAt)

	// 1.5 tokens sold at $700 returns $1050 on a $150 cost.
	assert.True(t, closed.PnLUSD.Equal(decimal.NewFromInt(900)), "got %s", closed.PnLUSD)
	assert.True(t, e.BalanceUSD().Equal(decimal.NewFromInt(1900)), "got %s", e.BalanceUSD())

	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Wins)
	assert.Equal(t, int64(0), stats.Losses)
	assert.InDelta(t, 900.0, stats.TotalPnLUSD, 0.001)
	assert.InDelta(t, 100.0, stats.WinRate, 0.001)
}

func TestEngine_PollClosesOnStopLoss(t *testing.T) {
	e, pb, feed := newTestEngine(t, risk.StrategyBalanced)
	buyAt(t, e, pb, testAddr, 100)

	feed.set(testChain, testAddr, 40)
	pb.SetPrice(testChain, testAddr, decimal.NewFromInt(40))
	require.NoError(t, e.Poll(context.Background()))

	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, ReasonStopLoss, history[0].CloseReason)
	assert.Equal(t, int64(1), e.Stats().Losses)
}

func TestEngine_TrailingStopAcrossPolls(t *testing.T) {
	e, pb, feed := newTestEngine(t, risk.StrategyBalanced)
	buyAt(t, e, pb, testAddr, 100)

	// Run up to $200: peak records, no exit (+100% is short of the target).
	feed.set(testChain, testAddr, 200)
	require.NoError(t, e.Poll(context.Background()))
	require.Len(t, e.OpenPositions(), 1)

	// Fade to $160: exactly 20% off the $200 peak.
	feed.set(testChain, testAddr, 160)
	pb.SetPrice(testChain, testAddr, decimal.NewFromInt(160))
	require.NoError(t, e.Poll(context.Background()))

	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, ReasonTrailingStop, history[0].CloseReason)
	assert.True(t, history[0].PeakPrice.Equal(decimal.NewFromInt(200)))
}

func TestEngine_ManualClose(t *testing.T) {
	e, pb, _ := newTestEngine(t, risk.StrategyBalanced)
	pos := buyAt(t, e, pb, testAddr, 100)

	closed, err := e.Close(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonManual, closed.CloseReason)
	assert.Empty(t, e.OpenPositions())

	// A second close of the same id is an error.
	_, err = e.Close(context.Background(), pos.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not open")
}

func TestEngine_CloseUnknownID(t *testing.T) {
	e, _, _ := newTestEngine(t, risk.StrategyBalanced)

	_, err := e.Close(context.Background(), "nope")
	require.Error(t, err)
}

func TestEngine_CloseAllEmergency(t *testing.T) {
	e, pb, _ := newTestEngine(t, risk.StrategyBalanced)
	buyAt(t, e, pb, testAddr, 100)
	buyAt(t, e, pb, "0x00000000000000000000000000000000000000aa", 100)

	closed := e.CloseAll(context.Background(), ReasonEmergency)
	assert.Equal(t, 2, closed)
	assert.Empty(t, e.OpenPositions())
	for _, p := range e.History() {
		assert.Equal(t, ReasonEmergency, p.CloseReason)
	}
}

func TestEngine_SafetyRecheckClosesUnsafeHolding(t *testing.T) {
	e, pb, _ := newTestEngine(t, risk.StrategyBalanced)
	pos := buyAt(t, e, pb, testAddr, 100)

	e.recheckSafety(context.Background(), func(_ context.Context, _, address string) (bool, string) {
		return address != testAddr, "HONEYPOT DETECTED"
	})

	assert.Empty(t, e.OpenPositions())
	got, ok := e.Get(pos.ID)
	require.True(t, ok)
	assert.Equal(t, ReasonEmergency, got.CloseReason)
}

func TestEngine_PollPriceErrorKeepsPosition(t *testing.T) {
	e, pb, feed := newTestEngine(t, risk.StrategyBalanced)
	buyAt(t, e, pb, testAddr, 100)

	feed.fail(errors.New("feed down"))
	err := e.Poll(context.Background())
	require.Error(t, err)
	assert.Len(t, e.OpenPositions(), 1, "position survives a price outage")
}

func TestEngine_HistoryCapBounded(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.HistoryCap = 2
	sizer, err := risk.NewSizer(risk.StrategyBalanced, cfg.StartingBalanceUSD)
	require.NoError(t, err)
	pb := broker.NewPaperBroker(1)
	e := NewEngine(cfg, pb, newStubFeed(), sizer)

	var ids []string
	for i := 0; i < 3; i++ {
		addr := fmt.Sprintf("0x%040d", i)
		pb.SetPrice(testChain, addr, decimal.NewFromInt(100))
		pos, err := e.Buy(context.Background(), BuyRequest{Address: addr, Chain: testChain})
		require.NoError(t, err)
		ids = append(ids, pos.ID)
		_, err = e.Close(context.Background(), pos.ID)
		require.NoError(t, err)
	}

	history := e.History()
	require.Len(t, history, 2)
	assert.Equal(t, ids[1], history[0].ID)
	assert.Equal(t, ids[2], history[1].ID)
}

func TestEngine_CallbacksReceiveCopies(t *testing.T) {
	e, pb, feed := newTestEngine(t, risk.StrategyBalanced)

	var opened, closedPos []Position
	e.SetOnOpen(func(p Position) { opened = append(opened, p) })
	e.SetOnClose(func(p Position) { closedPos = append(closedPos, p) })

	buyAt(t, e, pb, testAddr, 100)
	feed.set(testChain, testAddr, 700)
	pb.SetPrice(testChain, testAddr, decimal.NewFromInt(700))
	require.NoError(t, e.Poll(context.Background()))

	require.Len(t, opened, 1)
	assert.Equal(t, StateOpen, opened[0].State)
	require.Len(t, closedPos, 1)
	assert.Equal(t, ReasonProfitTarget, closedPos[0].CloseReason)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.MonitorInterval = 10 * time.Millisecond
	cfg.SafetyRecheck = 0
	sizer, err := risk.NewSizer(risk.StrategyBalanced, cfg.StartingBalanceUSD)
	require.NoError(t, err)
	e := NewEngine(cfg, broker.NewPaperBroker(1), newStubFeed(), sizer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on context cancel")
	}
}
