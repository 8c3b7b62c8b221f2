package roster_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/application/roster"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

func addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

type memStore struct {
	traders []domain.Trader
	upserts []domain.Trader
}

func (m *memStore) ListTraders(_ context.Context, activeOnly bool) ([]domain.Trader, error) {
	var out []domain.Trader
	for _, t := range m.traders {
		if !activeOnly || t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) UpsertTrader(_ context.Context, t domain.Trader) error {
	m.upserts = append(m.upserts, t)
	return nil
}

func (m *memStore) RemoveTrader(context.Context, domain.TraderAddress) error { return nil }

func (m *memStore) SetTraderActive(context.Context, domain.TraderAddress, bool) error { return nil }

type fakeBoard struct {
	traders []domain.Trader
	err     error
	calls   int
}

func (f *fakeBoard) TopTraders(_ context.Context, limit int) ([]domain.Trader, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.traders) > limit {
		return f.traders[:limit], nil
	}
	return f.traders, nil
}

func TestTraders_ManualWins(t *testing.T) {
	store := &memStore{traders: []domain.Trader{{Address: domain.TraderAddress(addr(9)), Active: true}}}
	board := &fakeBoard{}
	r := roster.New(roster.Config{
		Manual:     []string{strings.ToUpper(addr(0xab)), " " + addr(2) + " ", addr(0xab), "not-an-address"},
		MaxTraders: 5,
	}, store, board, nil)

	got, err := r.Traders(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.TraderAddress(addr(0xab)), got[0].Address)
	assert.Equal(t, domain.TraderAddress(addr(2)), got[1].Address)
	assert.Equal(t, domain.SourceManual, got[0].Source)
	assert.True(t, got[0].Active)
	assert.Zero(t, board.calls)
}

func TestTraders_ManualCapped(t *testing.T) {
	r := roster.New(roster.Config{Manual: []string{addr(1), addr(2), addr(3)}, MaxTraders: 2}, nil, nil, nil)
	got, err := r.Traders(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTraders_StoredBeforeLeaderboard(t *testing.T) {
	store := &memStore{traders: []domain.Trader{
		{Address: domain.TraderAddress(addr(1)), Active: true},
		{Address: domain.TraderAddress(addr(2)), Active: false},
	}}
	board := &fakeBoard{traders: []domain.Trader{{Address: domain.TraderAddress(addr(3))}}}
	r := roster.New(roster.Config{MaxTraders: 5}, store, board, nil)

	got, err := r.Traders(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.TraderAddress(addr(1)), got[0].Address)
	assert.Zero(t, board.calls)
}

func TestTraders_LeaderboardPersistsAsAPI(t *testing.T) {
	store := &memStore{}
	board := &fakeBoard{traders: []domain.Trader{
		{Address: domain.TraderAddress(addr(1)), Label: "whale"},
		{Address: domain.TraderAddress(addr(1))},
		{Address: domain.TraderAddress(addr(2))},
		{Address: domain.TraderAddress(addr(3))},
	}}
	r := roster.New(roster.Config{MaxTraders: 2}, store, board, nil)

	got, err := r.Traders(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.Len(t, store.upserts, 2)
	for _, u := range store.upserts {
		assert.Equal(t, domain.SourceAPI, u.Source)
		assert.True(t, u.Active)
	}
	assert.Equal(t, "whale", store.upserts[0].Label)
}

func TestTraders_UnauthorizedIsSticky(t *testing.T) {
	board := &fakeBoard{err: fmt.Errorf("invalid api key: %w", domain.ErrUnauthorized)}
	r := roster.New(roster.Config{}, &memStore{}, board, nil)

	_, err := r.Traders(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = r.Traders(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 1, board.calls)
}

func TestTraders_TransientLeaderboardErrorRetriesNextTime(t *testing.T) {
	board := &fakeBoard{err: fmt.Errorf("x: %w", domain.ErrUnavailable)}
	r := roster.New(roster.Config{}, nil, board, nil)

	_, err := r.Traders(context.Background())
	require.ErrorIs(t, err, domain.ErrUnavailable)
	_, _ = r.Traders(context.Background())
	assert.Equal(t, 2, board.calls)
}

func TestTraders_NothingConfigured(t *testing.T) {
	r := roster.New(roster.Config{}, &memStore{}, nil, nil)
	got, err := r.Traders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
