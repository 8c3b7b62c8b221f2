// Package roster resolves which traders the engine polls.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const defaultMaxTraders = 10

// Config es la parte del config que afecta al roster.
type Config struct {
	Manual     []string
	MaxTraders int
}

// Resolver implements ports.RosterProvider.
//
// Precedence: the manual list from config, then the active rows of the
// traders table, then the leaderboard API. Leaderboard results are persisted
// with source "api", so later resolutions read them from storage.
type Resolver struct {
	cfg   Config
	store ports.TraderStore
	board ports.LeaderboardSource
	log   *slog.Logger
	now   func() time.Time

	mu          sync.Mutex
	boardDenied error
}

// New creates a Resolver. store and board may be nil.
func New(cfg Config, store ports.TraderStore, board ports.LeaderboardSource, logger *slog.Logger) *Resolver {
	if cfg.MaxTraders <= 0 {
		cfg.MaxTraders = defaultMaxTraders
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg, store: store, board: board, log: logger, now: time.Now}
}

// Traders returns the deduplicated roster, capped at MaxTraders. An empty
// result with a nil error means nothing is configured.
func (r *Resolver) Traders(ctx context.Context) ([]domain.Trader, error) {
	if len(r.cfg.Manual) > 0 {
		traders := r.manual()
		r.log.Debug("roster: manual", "traders", len(traders))
		return traders, nil
	}

	if r.store != nil {
		stored, err := r.store.ListTraders(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("roster.Traders: list: %w", err)
		}
		if len(stored) > 0 {
			return r.cap(stored), nil
		}
	}

	if r.board == nil {
		return nil, nil
	}
	return r.fromLeaderboard(ctx)
}

func (r *Resolver) manual() []domain.Trader {
	now := r.now().UTC()
	out := make([]domain.Trader, 0, len(r.cfg.Manual))
	for _, raw := range r.cfg.Manual {
		addr := domain.NormalizeAddress(raw)
		if !addr.Valid() {
			r.log.Warn("roster: ignoring invalid address", "address", raw)
			continue
		}
		out = append(out, domain.Trader{
			Address: addr,
			Source:  domain.SourceManual,
			Active:  true,
			AddedAt: now,
		})
	}
	return r.cap(out)
}

// fromLeaderboard pide el top al API. Un 401 es definitivo: se recuerda y no
// se vuelve a llamar al API en este proceso.
func (r *Resolver) fromLeaderboard(ctx context.Context) ([]domain.Trader, error) {
	r.mu.Lock()
	denied := r.boardDenied
	r.mu.Unlock()
	if denied != nil {
		return nil, denied
	}

	top, err := r.board.TopTraders(ctx, r.cfg.MaxTraders)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			err = fmt.Errorf("roster.Traders: leaderboard: %w", err)
			r.mu.Lock()
			r.boardDenied = err
			r.mu.Unlock()
			return nil, err
		}
		return nil, fmt.Errorf("roster.Traders: leaderboard: %w", err)
	}

	traders := r.cap(top)
	if r.store != nil {
		for _, t := range traders {
			t.Source = domain.SourceAPI
			t.Active = true
			if err := r.store.UpsertTrader(ctx, t); err != nil {
				r.log.Warn("roster: persist trader failed", "trader", t.Address, "err", err)
			}
		}
	}
	r.log.Info("roster: fetched from leaderboard", "traders", len(traders))
	return traders, nil
}

// cap normaliza, deduplica y recorta a MaxTraders conservando el orden.
func (r *Resolver) cap(in []domain.Trader) []domain.Trader {
	seen := make(map[domain.TraderAddress]bool, len(in))
	out := make([]domain.Trader, 0, min(len(in), r.cfg.MaxTraders))
	for _, t := range in {
		t.Address = domain.NormalizeAddress(string(t.Address))
		if t.Address == "" || seen[t.Address] {
			continue
		}
		seen[t.Address] = true
		out = append(out, t)
		if len(out) == r.cfg.MaxTraders {
			break
		}
	}
	return out
}
