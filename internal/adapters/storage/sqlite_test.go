package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var key = domain.PositionKey{MarketID: "0xabc", Outcome: "Yes"}

func TestBaselineStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	bs := newDB(t).Baselines()

	_, found, err := bs.Get(ctx, "0xtrader")
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	snap := domain.NewSnapshot("0xtrader", at, []domain.Position{
		{Key: key, TokenID: "111", Size: 120, AvgPrice: 0.42, CurPrice: 0.45, Title: "Will it rain?"},
		{Key: domain.PositionKey{MarketID: "0xdef", Outcome: "No"}, TokenID: "222", Size: 7, AvgPrice: 0.1, NegRisk: true},
	})
	require.NoError(t, bs.Commit(ctx, "0xtrader", snap))

	got, found, err := bs.Get(ctx, "0xtrader")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, at.Equal(got.CapturedAt()))
	assert.Equal(t, snap.Positions(), got.Positions())
	assert.Empty(t, domain.Diff(snap, got))

	// commit reemplaza
	next := domain.NewSnapshot("0xtrader", at.Add(time.Minute), nil)
	require.NoError(t, bs.Commit(ctx, "0xtrader", next))
	got, _, err = bs.Get(ctx, "0xtrader")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	require.NoError(t, bs.Delete(ctx, "0xtrader"))
	_, found, err = bs.Get(ctx, "0xtrader")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTraders_CRUD(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	require.NoError(t, db.UpsertTrader(ctx, domain.Trader{Address: "0xa", Label: "whale", Source: domain.SourceAPI, Active: true}))
	require.NoError(t, db.UpsertTrader(ctx, domain.Trader{Address: "0xb", Source: domain.SourceManual, Active: true}))

	// upsert sin label conserva el anterior
	require.NoError(t, db.UpsertTrader(ctx, domain.Trader{Address: "0xa", Source: domain.SourceAPI, Active: true}))

	all, err := db.ListTraders(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "whale", all[0].Label)

	require.NoError(t, db.SetTraderActive(ctx, "0xb", false))
	active, err := db.ListTraders(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.TraderAddress("0xa"), active[0].Address)

	assert.Error(t, db.SetTraderActive(ctx, "0xzzz", true))

	require.NoError(t, db.RemoveTrader(ctx, "0xa"))
	all, err = db.ListTraders(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestActivity_RecordAndQuery(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	order := domain.ReplicaOrder{ID: "o1", Key: key, Kind: domain.DeltaOpened, Side: domain.SideBuy, Quantity: 10, Price: 0.5}
	require.NoError(t, db.Record(ctx, domain.ActivityRecord{
		Trader: "0xa", Outcome: domain.OutcomeExecuted, Mode: domain.ModePaper, Order: &order,
		Fill: &domain.Fill{OrderID: "o1", Quantity: 10, Price: 0.5},
	}))
	require.NoError(t, db.Record(ctx, domain.ActivityRecord{
		Trader: "0xa", Outcome: domain.OutcomeSkipped, Reason: domain.ReasonRoundingToZero,
		Delta: &domain.PositionDelta{Key: key, Kind: domain.DeltaIncreased, OldQty: 10, NewQty: 12},
	}))

	rows, err := db.RecentActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var executed storage.ActivityRow
	for _, r := range rows {
		if r.Outcome == domain.OutcomeExecuted {
			executed = r
		}
	}
	assert.InDelta(t, 5.0, executed.SizeUSD, 1e-9)
	assert.Equal(t, key, executed.Key)

	counts, err := db.OutcomeCounts(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, counts["order_skipped:rounding_to_zero"])
	assert.Equal(t, 1, counts["order_executed"])
}

func TestActivity_WriteOnce(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	rec := domain.ActivityRecord{ID: "fixed", Outcome: domain.OutcomeEngineStart}
	require.NoError(t, db.Record(ctx, rec))
	assert.Error(t, db.Record(ctx, rec))
}

func TestJournal_FilledIsSticky(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	order := domain.ReplicaOrder{ID: "ord-1", Trader: "0xa", Key: key, Side: domain.SideBuy, Quantity: 10, Price: 0.5, Mode: domain.ModePaper}

	applied, err := db.Applied(ctx, "ord-1")
	require.NoError(t, err)
	assert.False(t, applied)

	now := time.Now()
	require.NoError(t, db.RecordOrder(ctx, domain.OrderRecord{
		Order: order, Status: domain.OrderFilled, Fill: domain.Fill{Quantity: 10, Price: 0.5}, Realized: 1.5, ResolvedAt: now,
	}))
	// un rechazo posterior con el mismo id no pisa el fill
	require.NoError(t, db.RecordOrder(ctx, domain.OrderRecord{Order: order, Status: domain.OrderRejected, Reason: domain.ReasonSinkRejected}))

	applied, err = db.Applied(ctx, "ord-1")
	require.NoError(t, err)
	assert.True(t, applied)

	recent, err := db.RecentOrders(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, domain.OrderFilled, recent[0].Status)

	realized, err := db.RealizedSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, realized, 1e-9)
}

func TestPositions_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	at := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	p := domain.ReplicaPosition{Key: key, TokenID: "111", Quantity: 10, AvgPrice: 0.4, Mark: 0.5, OpenedAt: at, UpdatedAt: at}
	require.NoError(t, db.SavePosition(ctx, p))

	got, err := db.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p, got[0])

	p.Quantity = 0
	require.NoError(t, db.SavePosition(ctx, p))
	got, err = db.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCircuitBreaker_SaveLoad(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	_, found, err := db.LoadCircuitBreaker(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	cb := domain.CircuitBreaker{
		ConsecutiveFailures: 1,
		MaxFailures:         3,
		Cooldown:            2 * time.Minute,
		CooldownUntil:       time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
		Trips:               2,
	}
	require.NoError(t, db.SaveCircuitBreaker(ctx, cb))
	cb.Trips = 3
	require.NoError(t, db.SaveCircuitBreaker(ctx, cb))

	got, found, err := db.LoadCircuitBreaker(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, cb, got)
}
