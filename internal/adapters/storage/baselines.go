package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// BaselineStore adapta SQLiteStorage a ports.BaselineStore.
// Se usa cuando storage.persist_baselines está activo.
type BaselineStore struct {
	s *SQLiteStorage
}

// Baselines devuelve el store de baselines persistente.
func (s *SQLiteStorage) Baselines() *BaselineStore {
	return &BaselineStore{s: s}
}

func (b *BaselineStore) Get(ctx context.Context, trader domain.TraderAddress) (domain.PositionSnapshot, bool, error) {
	var payload string
	err := b.s.db.QueryRowContext(ctx, `SELECT payload FROM baselines WHERE trader = ?`, string(trader)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PositionSnapshot{}, false, nil
	}
	if err != nil {
		return domain.PositionSnapshot{}, false, fmt.Errorf("storage.BaselineStore.Get: %w", err)
	}

	var snap domain.PositionSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return domain.PositionSnapshot{}, false, fmt.Errorf("storage.BaselineStore.Get: decode %s: %w", trader, err)
	}
	return snap, true, nil
}

func (b *BaselineStore) Commit(ctx context.Context, trader domain.TraderAddress, snap domain.PositionSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage.BaselineStore.Commit: encode: %w", err)
	}
	_, err = b.s.db.ExecContext(ctx, `
		INSERT INTO baselines (trader, captured_at, payload) VALUES (?, ?, ?)
		ON CONFLICT(trader) DO UPDATE SET
			captured_at = excluded.captured_at,
			payload     = excluded.payload`,
		string(trader), toNanos(snap.CapturedAt()), string(payload),
	)
	if err != nil {
		return fmt.Errorf("storage.BaselineStore.Commit: %w", err)
	}
	return nil
}

func (b *BaselineStore) Delete(ctx context.Context, trader domain.TraderAddress) error {
	if _, err := b.s.db.ExecContext(ctx, `DELETE FROM baselines WHERE trader = ?`, string(trader)); err != nil {
		return fmt.Errorf("storage.BaselineStore.Delete: %w", err)
	}
	return nil
}
