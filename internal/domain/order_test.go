package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderID_StableAcrossRetries(t *testing.T) {
	key := PositionKey{MarketID: "0xabc", Outcome: "Yes"}
	a := OrderID("0xtrader", t0, key, DeltaOpened)
	b := OrderID("0xtrader", t0, key, DeltaOpened)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, OrderID("0xtrader", t0, key, DeltaClosed))
	assert.NotEqual(t, a, OrderID("0xother", t0, key, DeltaOpened))
	assert.NotEqual(t, a, OrderID("0xtrader", t0.Add(1), key, DeltaOpened))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" LIVE ")
	require.NoError(t, err)
	assert.Equal(t, ModeLive, m)

	_, err = ParseMode("demo")
	assert.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	fetchErr := fmt.Errorf("positions: %w", ErrRateLimited)
	assert.True(t, IsTransientFetch(fetchErr))
	assert.False(t, IsTransientSubmit(fetchErr))

	rej := fmt.Errorf("risk: %w", &RiskRejection{Reason: ReasonDailyLossLimitReached})
	assert.True(t, errors.Is(rej, ErrRiskRejected))
	reason, ok := RejectionReason(rej)
	require.True(t, ok)
	assert.Equal(t, ReasonDailyLossLimitReached, reason)

	sub := fmt.Errorf("clob: %w", &SubmitRejection{Message: "not enough balance"})
	assert.True(t, errors.Is(sub, ErrSubmitRejected))
	assert.Contains(t, sub.Error(), "not enough balance")
}

func TestReplicaPosition_ApplyFill(t *testing.T) {
	var p ReplicaPosition
	assert.Equal(t, 0.0, p.ApplyFill(10, 0.40, t0))
	assert.Equal(t, 0.0, p.ApplyFill(10, 0.60, t0))
	assert.InDelta(t, 20, p.Quantity, 1e-9)
	assert.InDelta(t, 0.50, p.AvgPrice, 1e-9)

	realized := p.ApplyFill(-5, 0.70, t0)
	assert.InDelta(t, 1.0, realized, 1e-9)
	assert.InDelta(t, 15, p.Quantity, 1e-9)
	assert.InDelta(t, 0.50, p.AvgPrice, 1e-9)

	realized = p.ApplyFill(-15, 0.30, t0)
	assert.InDelta(t, -3.0, realized, 1e-9)
	assert.False(t, p.IsOpen())
}

func TestReplicaPosition_UnrealizedPnL(t *testing.T) {
	p := ReplicaPosition{Quantity: 10, AvgPrice: 0.5, Mark: 0.3}
	assert.InDelta(t, -2.0, p.UnrealizedPnL(), 1e-9)
	assert.InDelta(t, 3.0, p.Notional(), 1e-9)
}

func TestCircuitBreaker_TripsAndCoolsDown(t *testing.T) {
	cb := CircuitBreaker{MaxFailures: 3, Cooldown: time.Minute}
	now := t0

	assert.True(t, cb.Allow(now))
	assert.False(t, cb.RecordFailure(now))
	cb.RecordSuccess()
	assert.False(t, cb.RecordFailure(now))
	assert.False(t, cb.RecordFailure(now))
	assert.True(t, cb.RecordFailure(now))

	assert.False(t, cb.Allow(now.Add(30*time.Second)))
	assert.True(t, cb.Allow(now.Add(time.Minute)))
	assert.Equal(t, 1, cb.Trips)
}
