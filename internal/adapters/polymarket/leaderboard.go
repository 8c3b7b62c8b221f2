package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const defaultLeaderboardURL = "https://polycopycatbot.com/api/traders"

// LeaderboardClient implements ports.LeaderboardSource against the ranked
// traders API. Requests carry "Authorization: Bearer <key>".
type LeaderboardClient struct {
	*Client
	url    string
	apiKey string
}

// NewLeaderboardClient crea el cliente. url vacío usa el endpoint público.
// Por defecto 3 intentos con backoff 2s*2^n.
func NewLeaderboardClient(url, apiKey string, opts Options) *LeaderboardClient {
	if url == "" {
		url = defaultLeaderboardURL
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 2 * time.Second
	}
	if opts.MaxRetries <= 0 && !opts.NoRetry {
		opts.MaxRetries = 2
	}
	return &LeaderboardClient{Client: NewClient(opts), url: url, apiKey: apiKey}
}

// TopTraders returns up to limit ranked traders, normalized and deduplicated.
// A rejected key (401/403) returns domain.ErrUnauthorized so callers stop
// asking instead of retrying.
func (lc *LeaderboardClient) TopTraders(ctx context.Context, limit int) ([]domain.Trader, error) {
	if lc.apiKey == "" {
		return nil, nil
	}

	var raw []leaderboardEntry
	err := lc.doWithRetry(ctx, lc.dataLimiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, lc.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+lc.apiKey)
		return req, nil
	}, &raw)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, fmt.Errorf("polymarket.TopTraders: invalid api key: %w", err)
		}
		return nil, fmt.Errorf("polymarket.TopTraders: %w", err)
	}

	traders := mapLeaderboard(raw)
	seen := make(map[domain.TraderAddress]bool, len(traders))
	out := traders[:0]
	for _, t := range traders {
		if seen[t.Address] {
			continue
		}
		seen[t.Address] = true
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
