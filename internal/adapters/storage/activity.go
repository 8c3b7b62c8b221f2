package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Record implementa ports.ActivitySink. Write-once: un ID repetido falla.
func (s *SQLiteStorage) Record(ctx context.Context, rec domain.ActivityRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	var (
		marketID, posOutcome, kind string
		oldQty, newQty             float64
		orderID, side              string
		qty, price                 float64
	)
	if d := rec.Delta; d != nil {
		marketID, posOutcome = d.Key.MarketID, d.Key.Outcome
		kind = d.Kind.String()
		oldQty, newQty = d.OldQty, d.NewQty
	}
	if o := rec.Order; o != nil {
		marketID, posOutcome = o.Key.MarketID, o.Key.Outcome
		kind = o.Kind.String()
		orderID, side = o.ID, string(o.Side)
		qty, price = o.Quantity, o.Price
	}
	if f := rec.Fill; f != nil {
		qty, price = f.Quantity, f.Price
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log
			(id, ts, trader, outcome, reason, mode, market_id, pos_outcome, delta_kind,
			 old_qty, new_qty, order_id, side, quantity, price, size_usd, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, toNanos(rec.Timestamp), string(rec.Trader), string(rec.Outcome), string(rec.Reason),
		string(rec.Mode), marketID, posOutcome, kind, oldQty, newQty, orderID, side,
		qty, price, qty*price, rec.Details,
	)
	if err != nil {
		return fmt.Errorf("storage.Record: %w", err)
	}
	return nil
}

// ActivityRow es la vista plana para reportes.
type ActivityRow struct {
	Timestamp time.Time
	Trader    domain.TraderAddress
	Outcome   domain.Outcome
	Reason    domain.Reason
	Mode      domain.Mode
	Key       domain.PositionKey
	Kind      string
	Side      string
	Quantity  float64
	Price     float64
	SizeUSD   float64
	Details   string
}

// RecentActivity devuelve las últimas n filas, más reciente primero.
func (s *SQLiteStorage) RecentActivity(ctx context.Context, n int) ([]ActivityRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, trader, outcome, reason, mode, market_id, pos_outcome, delta_kind,
		       side, quantity, price, size_usd, details
		FROM activity_log
		ORDER BY ts DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentActivity: query: %w", err)
	}
	defer rows.Close()

	var out []ActivityRow
	for rows.Next() {
		var (
			r                             ActivityRow
			ts                            int64
			trader, outcome, reason, mode string
		)
		if err := rows.Scan(&ts, &trader, &outcome, &reason, &mode, &r.Key.MarketID, &r.Key.Outcome,
			&r.Kind, &r.Side, &r.Quantity, &r.Price, &r.SizeUSD, &r.Details); err != nil {
			return nil, fmt.Errorf("storage.RecentActivity: scan: %w", err)
		}
		r.Timestamp = fromNanos(ts)
		r.Trader = domain.TraderAddress(trader)
		r.Outcome = domain.Outcome(outcome)
		r.Reason = domain.Reason(reason)
		r.Mode = domain.Mode(mode)
		out = append(out, r)
	}
	return out, rows.Err()
}

// OutcomeCounts agrupa la actividad desde since por outcome y reason.
func (s *SQLiteStorage) OutcomeCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, reason, COUNT(*) FROM activity_log
		WHERE ts >= ?
		GROUP BY outcome, reason`, toNanos(since))
	if err != nil {
		return nil, fmt.Errorf("storage.OutcomeCounts: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var outcome, reason string
		var n int
		if err := rows.Scan(&outcome, &reason, &n); err != nil {
			return nil, fmt.Errorf("storage.OutcomeCounts: scan: %w", err)
		}
		label := outcome
		if reason != "" {
			label += ":" + reason
		}
		out[label] = n
	}
	return out, rows.Err()
}
