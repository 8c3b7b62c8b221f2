package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// RosterProvider supplies the traders to poll.
type RosterProvider interface {
	Traders(ctx context.Context) ([]domain.Trader, error)
}

// LeaderboardSource ranks traders from an external API.
type LeaderboardSource interface {
	TopTraders(ctx context.Context, limit int) ([]domain.Trader, error)
}

// TraderStore persists the roster.
type TraderStore interface {
	ListTraders(ctx context.Context, activeOnly bool) ([]domain.Trader, error)
	UpsertTrader(ctx context.Context, t domain.Trader) error
	RemoveTrader(ctx context.Context, addr domain.TraderAddress) error
	SetTraderActive(ctx context.Context, addr domain.TraderAddress, active bool) error
}
