package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/adapters/polymarket"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

func newLeaderboard(srv *httptest.Server, key string) *polymarket.LeaderboardClient {
	return polymarket.NewLeaderboardClient(srv.URL+"/api/traders", key, polymarket.Options{
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
	})
}

func TestTopTraders_SendsBearerAndTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/traders", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		w.Write([]byte(`[
			{"address":"0xAAAA000000000000000000000000000000000001","name":"whale","rank":1},
			{"address":"0xaaaa000000000000000000000000000000000001","name":"dup","rank":2},
			{"address":"","name":"nobody"},
			{"address":"0xbbbb000000000000000000000000000000000002","username":"shark","rank":3},
			{"address":"0xcccc000000000000000000000000000000000003","rank":4}
		]`))
	}))
	defer srv.Close()

	traders, err := newLeaderboard(srv, "secret-key").TopTraders(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, traders, 2)

	assert.Equal(t, domain.TraderAddress("0xaaaa000000000000000000000000000000000001"), traders[0].Address)
	assert.Equal(t, "whale", traders[0].Label)
	assert.Equal(t, domain.SourceAPI, traders[0].Source)
	assert.True(t, traders[0].Active)
	assert.Equal(t, "shark", traders[1].Label)
}

func TestTopTraders_UnauthorizedStops(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newLeaderboard(srv, "bad").TopTraders(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load(), "401 must not be retried")
}

func TestTopTraders_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"address":"0xaaaa000000000000000000000000000000000001"}]`))
	}))
	defer srv.Close()

	traders, err := newLeaderboard(srv, "k").TopTraders(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, traders, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTopTraders_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newLeaderboard(srv, "k").TopTraders(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTopTraders_NoKeyNoCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	traders, err := newLeaderboard(srv, "").TopTraders(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, traders)
	assert.Equal(t, int32(0), calls.Load())
}
