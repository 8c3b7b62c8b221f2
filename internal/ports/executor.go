package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// ExecutionSink submits replica orders, simulated or on the CLOB.
type ExecutionSink interface {
	// Submit executes order and returns its fill. Errors wrap
	// domain.ErrSubmitRejected (terminal) or domain.ErrSubmitTransient (retry).
	// Submitting the same order ID twice must not execute twice.
	Submit(ctx context.Context, order domain.ReplicaOrder) (domain.Fill, error)
}

// BalanceChecker devuelve el saldo USDC.e disponible de la wallet controlada.
type BalanceChecker interface {
	USDCBalance(ctx context.Context) (float64, error)
}

// OrderPlacer places a signed fill-or-kill order on the venue.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)
}
