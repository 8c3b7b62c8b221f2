package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// ListTraders devuelve el roster ordenado por fecha de alta.
func (s *SQLiteStorage) ListTraders(ctx context.Context, activeOnly bool) ([]domain.Trader, error) {
	q := `SELECT address, label, source, active, added_at FROM traders`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY added_at, address`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("storage.ListTraders: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Trader
	for rows.Next() {
		var (
			t       domain.Trader
			addr    string
			source  string
			active  int
			addedAt int64
		)
		if err := rows.Scan(&addr, &t.Label, &source, &active, &addedAt); err != nil {
			return nil, fmt.Errorf("storage.ListTraders: scan: %w", err)
		}
		t.Address = domain.TraderAddress(addr)
		t.Source = domain.TraderSource(source)
		t.Active = active == 1
		t.AddedAt = fromNanos(addedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertTrader inserta el trader o actualiza label/source/active.
// added_at se conserva en conflicto.
func (s *SQLiteStorage) UpsertTrader(ctx context.Context, t domain.Trader) error {
	addedAt := t.AddedAt
	if addedAt.IsZero() {
		addedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO traders (address, label, source, active, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			label  = CASE WHEN excluded.label != '' THEN excluded.label ELSE traders.label END,
			source = excluded.source,
			active = excluded.active`,
		string(t.Address), t.Label, string(t.Source), boolInt(t.Active), toNanos(addedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertTrader: %w", err)
	}
	return nil
}

// RemoveTrader borra el trader del roster.
func (s *SQLiteStorage) RemoveTrader(ctx context.Context, addr domain.TraderAddress) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM traders WHERE address = ?`, string(addr)); err != nil {
		return fmt.Errorf("storage.RemoveTrader: %w", err)
	}
	return nil
}

// SetTraderActive activa o pausa un trader sin borrarlo.
func (s *SQLiteStorage) SetTraderActive(ctx context.Context, addr domain.TraderAddress, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE traders SET active = ? WHERE address = ?`, boolInt(active), string(addr))
	if err != nil {
		return fmt.Errorf("storage.SetTraderActive: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.SetTraderActive: trader %s not found", addr)
	}
	return nil
}
