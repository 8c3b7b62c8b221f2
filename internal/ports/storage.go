package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// BaselineStore guarda el último snapshot procesado por trader.
type BaselineStore interface {
	// Get devuelve el baseline; found=false si el trader no tiene (ciclo de seed).
	Get(ctx context.Context, trader domain.TraderAddress) (snap domain.PositionSnapshot, found bool, err error)

	// Commit reemplaza el baseline. Solo se llama al cerrar un ciclo completo.
	Commit(ctx context.Context, trader domain.TraderAddress, snap domain.PositionSnapshot) error

	// Delete elimina el baseline de un trader que salió del roster.
	Delete(ctx context.Context, trader domain.TraderAddress) error
}

// OrderJournal records every replica order that reached a terminal state.
type OrderJournal interface {
	// Applied reports whether an order with this ID was already filled.
	Applied(ctx context.Context, orderID string) (bool, error)

	RecordOrder(ctx context.Context, rec domain.OrderRecord) error

	// RecentOrders devuelve las últimas n órdenes, más reciente primero.
	RecentOrders(ctx context.Context, n int) ([]domain.OrderRecord, error)

	// RealizedSince suma el P&L realizado desde t (para restaurar el día).
	RealizedSince(ctx context.Context, t time.Time) (float64, error)
}

// PositionLedger persists replica positions so risk state survives a restart.
type PositionLedger interface {
	SavePosition(ctx context.Context, p domain.ReplicaPosition) error
	LoadPositions(ctx context.Context) ([]domain.ReplicaPosition, error)
}

// BreakerStore persiste el circuit breaker del sink live entre reinicios.
type BreakerStore interface {
	SaveCircuitBreaker(ctx context.Context, cb domain.CircuitBreaker) error
	LoadCircuitBreaker(ctx context.Context) (cb domain.CircuitBreaker, found bool, err error)
}
