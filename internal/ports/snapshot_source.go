package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// SnapshotSource returns a trader's current open positions.
// Errors wrap domain.ErrUnavailable or domain.ErrRateLimited.
type SnapshotSource interface {
	FetchPositions(ctx context.Context, trader domain.TraderAddress) (domain.PositionSnapshot, error)
}
