package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// SaveCircuitBreaker persists the live sink's breaker state.
func (s *SQLiteStorage) SaveCircuitBreaker(ctx context.Context, cb domain.CircuitBreaker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO live_circuit_breaker
			(id, consecutive_failures, max_failures, cooldown_s, cooldown_until, trips)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			consecutive_failures = excluded.consecutive_failures,
			max_failures         = excluded.max_failures,
			cooldown_s           = excluded.cooldown_s,
			cooldown_until       = excluded.cooldown_until,
			trips                = excluded.trips`,
		cb.ConsecutiveFailures, cb.MaxFailures, int64(cb.Cooldown.Seconds()),
		toNanos(cb.CooldownUntil), cb.Trips,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCircuitBreaker: %w", err)
	}
	return nil
}

// LoadCircuitBreaker loads the persisted state. found=false on a fresh database.
func (s *SQLiteStorage) LoadCircuitBreaker(ctx context.Context) (cb domain.CircuitBreaker, found bool, err error) {
	var cooldownS, until int64
	err = s.db.QueryRowContext(ctx, `
		SELECT consecutive_failures, max_failures, cooldown_s, cooldown_until, trips
		FROM live_circuit_breaker WHERE id = 1`).Scan(
		&cb.ConsecutiveFailures, &cb.MaxFailures, &cooldownS, &until, &cb.Trips,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CircuitBreaker{}, false, nil
	}
	if err != nil {
		return domain.CircuitBreaker{}, false, fmt.Errorf("storage.LoadCircuitBreaker: %w", err)
	}
	cb.Cooldown = time.Duration(cooldownS) * time.Second
	cb.CooldownUntil = fromNanos(until)
	return cb, true, nil
}
