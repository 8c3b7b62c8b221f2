package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/application/baseline"
	"github.com/alejandrodnm/polycopy/internal/application/engine"
	"github.com/alejandrodnm/polycopy/internal/application/engine/paper"
	"github.com/alejandrodnm/polycopy/internal/application/risk"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

func oneSlot() engine.Settings {
	s := fastSettings()
	s.Limits.MaxConcurrentPositions = 1
	return s
}

// openM1 siembra vacío y abre 10 shares de m1 a 0.5.
func openM1(t *testing.T, c *engine.Coordinator, src *fakeSource) {
	t.Helper()
	ctx := context.Background()
	src.set(alice)
	require.NoError(t, c.RunCycle(ctx, alice).Err)
	src.set(alice, p("m1", 100, 0.5))
	res := c.RunCycle(ctx, alice)
	require.NoError(t, res.Err)
	require.Equal(t, 1, res.Executed)
}

func TestRunCycle_WinningCloseFillsOnPaperAndFreesSlot(t *testing.T) {
	src := newFakeSource()
	gate := risk.New(risk.Config{Increment: 1})
	activity := &recorder{}
	c := engine.New(oneSlot(), engine.Deps{
		Source:    src,
		Sink:      paper.New(paper.Config{InitialCapital: 1000}),
		Baselines: baseline.NewMemoryStore(),
		Roster:    rosterOf(alice),
		Activity:  activity,
		Gate:      gate,
		Mode:      domain.ModePaper,
		Logger:    quiet,
	})
	ctx := context.Background()
	openM1(t, c, src)

	won := p("m1", 100, 0.5)
	won.CurPrice = 1
	src.set(alice, won)
	require.NoError(t, c.RunCycle(ctx, alice).Err)

	src.set(alice)
	res := c.RunCycle(ctx, alice)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Executed)
	assert.Zero(t, res.Rejected)
	assert.Equal(t, 0.0, gate.Held(key("m1")))
	assert.InDelta(t, 5, gate.Snapshot().RealizedToday, 1e-9)

	src.set(alice, p("m2", 100, 0.5))
	res = c.RunCycle(ctx, alice)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Executed)
	assert.Zero(t, activity.count(domain.OutcomeRejected, domain.ReasonMaxConcurrentPositionsReached))
}

func TestRunCycle_RejectedCloseOnSettledMarketSettlesAtPayout(t *testing.T) {
	h := newHarness(oneSlot(), alice)
	h.sink.failures = []error{nil, &domain.SubmitRejection{Message: "insufficient book liquidity"}}
	ctx := context.Background()
	openM1(t, h.engine, h.source)

	won := p("m1", 100, 0.5)
	won.CurPrice = 0.995
	h.source.set(alice, won)
	require.NoError(t, h.engine.RunCycle(ctx, alice).Err)

	h.source.set(alice)
	res := h.engine.RunCycle(ctx, alice)
	require.NoError(t, res.Err)
	assert.True(t, res.Committed)
	assert.Equal(t, 1, res.Resolved)
	assert.Zero(t, res.Rejected)

	assert.Equal(t, 0.0, h.gate.Held(key("m1")))
	st := h.gate.Snapshot()
	assert.Zero(t, st.OpenPositions)
	assert.InDelta(t, 5, st.RealizedToday, 1e-9)
	assert.Equal(t, 1, h.activity.count(domain.OutcomeResolved, domain.ReasonMarketResolved))
	assert.Equal(t, int64(1), h.engine.Stats().Resolved)

	h.source.set(alice, p("m2", 100, 0.5))
	res = h.engine.RunCycle(ctx, alice)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, 10.0, h.gate.Held(key("m2")))
}

func TestRunCycle_RedeemableLoserSettlesWithoutSink(t *testing.T) {
	h := newHarness(oneSlot(), alice)
	ctx := context.Background()
	openM1(t, h.engine, h.source)

	lost := p("m1", 100, 0.5)
	lost.CurPrice = 0
	lost.Redeemable = true
	h.source.set(alice, lost)
	require.NoError(t, h.engine.RunCycle(ctx, alice).Err)

	h.source.set(alice)
	res := h.engine.RunCycle(ctx, alice)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Resolved)

	assert.Len(t, h.sink.orders(), 1, "a resolved market is not sent to the venue")
	assert.Equal(t, 0.0, h.gate.Held(key("m1")))
	assert.InDelta(t, -5, h.gate.Snapshot().RealizedToday, 1e-9)
}

func TestRunCycle_RejectedCloseOnLiveMarketStaysOpen(t *testing.T) {
	h := newHarness(oneSlot(), alice)
	h.sink.failures = []error{nil, &domain.SubmitRejection{Message: "insufficient book liquidity"}}
	ctx := context.Background()
	openM1(t, h.engine, h.source)

	h.source.set(alice)
	res := h.engine.RunCycle(ctx, alice)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Rejected)
	assert.Zero(t, res.Resolved)
	assert.Equal(t, 10.0, h.gate.Held(key("m1")))
}
