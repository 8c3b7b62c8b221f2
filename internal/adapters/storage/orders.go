package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// ─── Order journal ───────────────────────────────────────────────────────────

// Applied reports whether orderID was already filled.
func (s *SQLiteStorage) Applied(ctx context.Context, orderID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM replica_orders WHERE id = ? AND status = ?`,
		orderID, string(domain.OrderFilled),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.Applied: %w", err)
	}
	return n > 0, nil
}

// RecordOrder upserts a journal row. A FILLED row is never downgraded.
func (s *SQLiteStorage) RecordOrder(ctx context.Context, rec domain.OrderRecord) error {
	o := rec.Order
	resolved := rec.ResolvedAt
	if resolved.IsZero() {
		resolved = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replica_orders
			(id, trader, market_id, outcome, token_id, delta_kind, side, quantity, price,
			 limit_price, mode, status, reason, fill_qty, fill_price, external_id, realized, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status      = excluded.status,
			reason      = excluded.reason,
			quantity    = excluded.quantity,
			fill_qty    = excluded.fill_qty,
			fill_price  = excluded.fill_price,
			external_id = excluded.external_id,
			realized    = excluded.realized,
			resolved_at = excluded.resolved_at
		WHERE replica_orders.status != 'FILLED'`,
		o.ID, string(o.Trader), o.Key.MarketID, o.Key.Outcome, o.TokenID, o.Kind.String(),
		string(o.Side), o.Quantity, o.Price, o.LimitPrice, string(o.Mode),
		string(rec.Status), string(rec.Reason), rec.Fill.Quantity, rec.Fill.Price,
		rec.Fill.ExternalID, rec.Realized, toNanos(resolved),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordOrder: %w", err)
	}
	return nil
}

// RecentOrders devuelve las últimas n órdenes, más reciente primero.
func (s *SQLiteStorage) RecentOrders(ctx context.Context, n int) ([]domain.OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trader, market_id, outcome, token_id, side, quantity, price, limit_price,
		       mode, status, reason, fill_qty, fill_price, external_id, realized, resolved_at
		FROM replica_orders
		ORDER BY resolved_at DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentOrders: query: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderRecord
	for rows.Next() {
		var (
			rec                                domain.OrderRecord
			trader, side, mode, status, reason string
			resolved                           int64
		)
		if err := rows.Scan(&rec.Order.ID, &trader, &rec.Order.Key.MarketID, &rec.Order.Key.Outcome,
			&rec.Order.TokenID, &side, &rec.Order.Quantity, &rec.Order.Price, &rec.Order.LimitPrice,
			&mode, &status, &reason, &rec.Fill.Quantity, &rec.Fill.Price, &rec.Fill.ExternalID,
			&rec.Realized, &resolved); err != nil {
			return nil, fmt.Errorf("storage.RecentOrders: scan: %w", err)
		}
		rec.Order.Trader = domain.TraderAddress(trader)
		rec.Order.Side = domain.Side(side)
		rec.Order.Mode = domain.Mode(mode)
		rec.Status = domain.OrderStatus(status)
		rec.Reason = domain.Reason(reason)
		rec.ResolvedAt = fromNanos(resolved)
		rec.Fill.OrderID = rec.Order.ID
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RealizedSince suma el P&L realizado por fills desde t.
func (s *SQLiteStorage) RealizedSince(ctx context.Context, t time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(realized), 0) FROM replica_orders WHERE status = ? AND resolved_at >= ?`,
		string(domain.OrderFilled), toNanos(t),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("storage.RealizedSince: %w", err)
	}
	return total, nil
}

// ─── Replica positions ───────────────────────────────────────────────────────

// SavePosition upserts a replica position; closed positions are deleted.
func (s *SQLiteStorage) SavePosition(ctx context.Context, p domain.ReplicaPosition) error {
	if !p.IsOpen() {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM replica_positions WHERE market_id = ? AND outcome = ?`,
			p.Key.MarketID, p.Key.Outcome)
		if err != nil {
			return fmt.Errorf("storage.SavePosition: delete: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replica_positions
			(market_id, outcome, token_id, title, neg_risk, quantity, avg_price, mark, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id, outcome) DO UPDATE SET
			quantity   = excluded.quantity,
			avg_price  = excluded.avg_price,
			mark       = excluded.mark,
			opened_at  = excluded.opened_at,
			updated_at = excluded.updated_at`,
		p.Key.MarketID, p.Key.Outcome, p.TokenID, p.Title, boolInt(p.NegRisk),
		p.Quantity, p.AvgPrice, p.Mark, toNanos(p.OpenedAt), toNanos(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: upsert: %w", err)
	}
	return nil
}

// LoadPositions devuelve las posiciones abiertas de la réplica.
func (s *SQLiteStorage) LoadPositions(ctx context.Context) ([]domain.ReplicaPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, outcome, token_id, title, neg_risk, quantity, avg_price, mark, opened_at, updated_at
		FROM replica_positions
		ORDER BY market_id, outcome`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ReplicaPosition
	for rows.Next() {
		var (
			p               domain.ReplicaPosition
			negRisk         int
			opened, updated int64
		)
		if err := rows.Scan(&p.Key.MarketID, &p.Key.Outcome, &p.TokenID, &p.Title, &negRisk,
			&p.Quantity, &p.AvgPrice, &p.Mark, &opened, &updated); err != nil {
			return nil, fmt.Errorf("storage.LoadPositions: scan: %w", err)
		}
		p.NegRisk = negRisk == 1
		p.OpenedAt = fromNanos(opened)
		p.UpdatedAt = fromNanos(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}
