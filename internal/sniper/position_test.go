package sniper

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_LifecyclePath(t *testing.T) {
	p := &Position{ID: "pos-1", State: StatePending}

	require.NoError(t, p.transitionTo(EventExecute))
	assert.Equal(t, StateExecuting, p.State)

	require.NoError(t, p.transitionTo(EventFill))
	assert.Equal(t, StateOpen, p.State)

	require.NoError(t, p.transitionTo(EventClose))
	assert.Equal(t, StateClosed, p.State)
}

func TestPosition_FailurePaths(t *testing.T) {
	buyFail := &Position{ID: "pos-2", State: StateExecuting}
	require.NoError(t, buyFail.transitionTo(EventFail))
	assert.Equal(t, StateFailed, buyFail.State)

	cancelled := &Position{ID: "pos-3", State: StatePending}
	require.NoError(t, cancelled.transitionTo(EventCancel))
	assert.Equal(t, StateCancelled, cancelled.State)
}

func TestPosition_IllegalTransitions(t *testing.T) {
	cases := []struct {
		name  string
		state PositionState
		event PositionEvent
	}{
		{"close before fill", StatePending, EventClose},
		{"fill before execute", StatePending, EventFill},
		{"execute while open", StateOpen, EventExecute},
		{"close after close", StateClosed, EventClose},
		{"fill after failure", StateFailed, EventFill},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Position{ID: "pos-x", State: tc.state}
			err := p.transitionTo(tc.event)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "illegal transition")
			assert.Equal(t, tc.state, p.State, "state must not change on illegal transition")
		})
	}
}

func TestPosition_MarkPrice(t *testing.T) {
	p := &Position{
		ID:           "pos-4",
		State:        StateOpen,
		EntryPrice:   decimal.NewFromInt(100),
		CurrentPrice: decimal.NewFromInt(100),
		PeakPrice:    decimal.NewFromInt(100),
	}

	p.markPrice(decimal.NewFromInt(180))
	assert.True(t, p.PeakPrice.Equal(decimal.NewFromInt(180)))
	assert.InDelta(t, 80.0, p.PnLPct, 0.0001)

	// Peak is monotone: a lower print keeps the old peak.
	p.markPrice(decimal.NewFromInt(150))
	assert.True(t, p.PeakPrice.Equal(decimal.NewFromInt(180)))
	assert.InDelta(t, 50.0, p.PnLPct, 0.0001)
}
