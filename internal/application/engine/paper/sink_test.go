package paper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/application/engine/paper"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

func order(id string, side domain.Side, qty, price float64) domain.ReplicaOrder {
	return domain.ReplicaOrder{
		ID:       id,
		Key:      domain.PositionKey{MarketID: "0xm1", Outcome: "Yes"},
		Side:     side,
		Quantity: qty,
		Price:    price,
		Mode:     domain.ModePaper,
	}
}

func TestSubmit_FillsAtReferenceAndMovesBalance(t *testing.T) {
	s := paper.New(paper.Config{InitialCapital: 100})
	ctx := context.Background()

	fill, err := s.Submit(ctx, order("a", domain.SideBuy, 20, 0.5))
	require.NoError(t, err)
	assert.Equal(t, "a", fill.OrderID)
	assert.Equal(t, 20.0, fill.Quantity)
	assert.Equal(t, 0.5, fill.Price)
	assert.False(t, fill.FilledAt.IsZero())

	bal, _ := s.USDCBalance(ctx)
	assert.InDelta(t, 90, bal, 1e-9)

	_, err = s.Submit(ctx, order("b", domain.SideSell, 10, 0.6))
	require.NoError(t, err)
	bal, _ = s.USDCBalance(ctx)
	assert.InDelta(t, 96, bal, 1e-9)
}

func TestSubmit_IdempotentByID(t *testing.T) {
	s := paper.New(paper.Config{InitialCapital: 100})
	ctx := context.Background()

	first, err := s.Submit(ctx, order("a", domain.SideBuy, 20, 0.5))
	require.NoError(t, err)
	second, err := s.Submit(ctx, order("a", domain.SideBuy, 20, 0.5))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	bal, _ := s.USDCBalance(ctx)
	assert.InDelta(t, 90, bal, 1e-9, "second submit must not spend again")
}

func TestSubmit_Rejections(t *testing.T) {
	s := paper.New(paper.Config{InitialCapital: 5})
	ctx := context.Background()

	_, err := s.Submit(ctx, order("a", domain.SideBuy, 20, 0.5))
	assert.ErrorIs(t, err, domain.ErrSubmitRejected)

	_, err = s.Submit(ctx, order("b", domain.SideBuy, 1, 0))
	assert.ErrorIs(t, err, domain.ErrSubmitRejected)

	_, err = s.Submit(ctx, order("c", domain.SideBuy, 0, 0.5))
	assert.ErrorIs(t, err, domain.ErrSubmitRejected)
}

func TestSubmit_LimitBoundsPrice(t *testing.T) {
	s := paper.New(paper.Config{})
	o := order("a", domain.SideBuy, 10, 0.55)
	o.LimitPrice = 0.52
	fill, err := s.Submit(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, 0.52, fill.Price)

	o = order("b", domain.SideSell, 10, 0.40)
	o.LimitPrice = 0.45
	fill, err = s.Submit(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, 0.45, fill.Price)
}

func TestSubmit_FeeApplied(t *testing.T) {
	s := paper.New(paper.Config{InitialCapital: 100, FeeRate: 0.01})
	_, err := s.Submit(context.Background(), order("a", domain.SideBuy, 100, 0.5))
	require.NoError(t, err)
	bal, _ := s.USDCBalance(context.Background())
	assert.InDelta(t, 49.5, bal, 1e-9)
}

func TestSubmit_SettledPriceFills(t *testing.T) {
	s := paper.New(paper.Config{InitialCapital: 100})
	ctx := context.Background()

	fill, err := s.Submit(ctx, order("won", domain.SideSell, 10, 1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, fill.Price)
	bal, _ := s.USDCBalance(ctx)
	assert.InDelta(t, 110, bal, 1e-9)

	_, err = s.Submit(ctx, order("bad", domain.SideSell, 10, 1.01))
	assert.ErrorIs(t, err, domain.ErrSubmitRejected)
}
