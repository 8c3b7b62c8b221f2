package storage

// sqlite.go: persistencia del copy trader.
//
// Tablas:
//   - `traders`: roster (manual o del leaderboard).
//   - `activity_log`: append-only, una fila por ActivityRecord.
//   - `baselines`: último snapshot procesado por trader, como JSON.
//   - `replica_orders`: diario de órdenes terminadas (idempotencia entre reinicios).
//   - `replica_positions`: posiciones de la réplica para restaurar el risk gate.
//   - `live_circuit_breaker`: fila única con el estado del breaker del sink live.
//
// Los timestamps se guardan como unix nanos (INTEGER) para no depender del
// formato de texto del driver.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS traders (
    address   TEXT PRIMARY KEY,
    label     TEXT    NOT NULL DEFAULT '',
    source    TEXT    NOT NULL DEFAULT 'manual',
    active    INTEGER NOT NULL DEFAULT 1,
    added_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_log (
    id          TEXT PRIMARY KEY,
    ts          INTEGER NOT NULL,
    trader      TEXT    NOT NULL DEFAULT '',
    outcome     TEXT    NOT NULL,
    reason      TEXT    NOT NULL DEFAULT '',
    mode        TEXT    NOT NULL DEFAULT '',
    market_id   TEXT    NOT NULL DEFAULT '',
    pos_outcome TEXT    NOT NULL DEFAULT '',
    delta_kind  TEXT    NOT NULL DEFAULT '',
    old_qty     REAL    NOT NULL DEFAULT 0,
    new_qty     REAL    NOT NULL DEFAULT 0,
    order_id    TEXT    NOT NULL DEFAULT '',
    side        TEXT    NOT NULL DEFAULT '',
    quantity    REAL    NOT NULL DEFAULT 0,
    price       REAL    NOT NULL DEFAULT 0,
    size_usd    REAL    NOT NULL DEFAULT 0,
    details     TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS baselines (
    trader      TEXT PRIMARY KEY,
    captured_at INTEGER NOT NULL,
    payload     TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS replica_orders (
    id          TEXT PRIMARY KEY,
    trader      TEXT    NOT NULL,
    market_id   TEXT    NOT NULL,
    outcome     TEXT    NOT NULL,
    token_id    TEXT    NOT NULL DEFAULT '',
    delta_kind  TEXT    NOT NULL,
    side        TEXT    NOT NULL,
    quantity    REAL    NOT NULL,
    price       REAL    NOT NULL,
    limit_price REAL    NOT NULL DEFAULT 0,
    mode        TEXT    NOT NULL,
    status      TEXT    NOT NULL,
    reason      TEXT    NOT NULL DEFAULT '',
    fill_qty    REAL    NOT NULL DEFAULT 0,
    fill_price  REAL    NOT NULL DEFAULT 0,
    external_id TEXT    NOT NULL DEFAULT '',
    realized    REAL    NOT NULL DEFAULT 0,
    resolved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS replica_positions (
    market_id  TEXT    NOT NULL,
    outcome    TEXT    NOT NULL,
    token_id   TEXT    NOT NULL DEFAULT '',
    title      TEXT    NOT NULL DEFAULT '',
    neg_risk   INTEGER NOT NULL DEFAULT 0,
    quantity   REAL    NOT NULL,
    avg_price  REAL    NOT NULL,
    mark       REAL    NOT NULL DEFAULT 0,
    opened_at  INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (market_id, outcome)
);

CREATE TABLE IF NOT EXISTS live_circuit_breaker (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    max_failures         INTEGER NOT NULL DEFAULT 0,
    cooldown_s           INTEGER NOT NULL DEFAULT 0,
    cooldown_until       INTEGER NOT NULL DEFAULT 0,
    trips                INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_activity_ts      ON activity_log(ts DESC);
CREATE INDEX IF NOT EXISTS idx_activity_trader  ON activity_log(trader);
CREATE INDEX IF NOT EXISTS idx_orders_resolved  ON replica_orders(resolved_at DESC);
`

// retentionActivity: el activity_log se poda al arrancar.
const retentionActivity = 90 * 24 * time.Hour

// SQLiteStorage implementa los stores de ports sobre SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y poda actividad antigua.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	s.migrate(context.Background())
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// migrate añade columnas que bases antiguas no tienen. Los errores se ignoran:
// fallan si la columna ya existe.
func (s *SQLiteStorage) migrate(ctx context.Context) {
	for _, stmt := range []string{
		"ALTER TABLE traders ADD COLUMN label TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE activity_log ADD COLUMN size_usd REAL NOT NULL DEFAULT 0",
	} {
		s.db.ExecContext(ctx, stmt)
	}
}

func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := s.now().Add(-retentionActivity)
	s.db.ExecContext(ctx, `DELETE FROM activity_log WHERE ts < ?`, toNanos(cutoff))
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
