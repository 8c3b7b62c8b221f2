package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const (
	defaultCLOBBase = "https://clob.polymarket.com"
	defaultDataBase = "https://data-api.polymarket.com"

	// Rate limits al 60% de los límites documentados.
	// Data API /positions: 200/10s → 120/10s → 12/s
	dataRatePerSec = 12
	// CLOB general: 9000/10s → 5400/10s → 540/s
	generalRatePerSec = 540

	defaultMaxRetries = 3
	baseRetryWait     = 500 * time.Millisecond
)

// Options configures a Client. Zero values pick production defaults.
type Options struct {
	CLOBBase string
	DataBase string
	// MaxRetries is the number of retries on 429/5xx/network errors. The
	// engine retries fetches itself, so the positions source sets NoRetry.
	MaxRetries int
	// NoRetry forces MaxRetries to zero (0 alone means the default).
	NoRetry   bool
	RetryWait time.Duration
	Timeout   time.Duration
}

// Client es el HTTP client de Polymarket con rate limiting y retries.
type Client struct {
	http        *http.Client
	clobBase    string
	dataBase    string
	clobLimiter *rate.Limiter
	dataLimiter *rate.Limiter
	maxRetries  int
	retryWait   time.Duration
}

// NewClient crea un Client. Base URLs vacíos usan producción.
func NewClient(opts Options) *Client {
	if opts.CLOBBase == "" {
		opts.CLOBBase = defaultCLOBBase
	}
	if opts.DataBase == "" {
		opts.DataBase = defaultDataBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = baseRetryWait
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	if opts.NoRetry {
		retries = 0
	}
	return &Client{
		http:        &http.Client{Timeout: opts.Timeout},
		clobBase:    opts.CLOBBase,
		dataBase:    opts.DataBase,
		clobLimiter: rate.NewLimiter(generalRatePerSec, 50),
		dataLimiter: rate.NewLimiter(dataRatePerSec, 5),
		maxRetries:  retries,
		retryWait:   opts.RetryWait,
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Is maps HTTP status classes to the domain sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case domain.ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	case domain.ErrUnavailable:
		return e.Code >= 500
	case domain.ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// post hace un POST JSON con rate limiting y retries.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// doWithRetry ejecuta la request con backoff exponencial. newReq se llama en
// cada intento para regenerar body y headers. El error final conserva la
// clase (ErrRateLimited, ErrUnavailable, ErrUnauthorized).
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, newReq func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return errors.Join(lastErr, err)
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := newReq()
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("rate limited by API", "url", req.URL.Path, "attempt", attempt+1)
			lastErr = &StatusError{Code: resp.StatusCode, Body: truncate(body)}
			continue
		case resp.StatusCode >= 500:
			lastErr = &StatusError{Code: resp.StatusCode, Body: truncate(body)}
			continue
		case resp.StatusCode >= 400:
			return &StatusError{Code: resp.StatusCode, Body: truncate(body)}
		}

		if readErr != nil {
			lastErr = fmt.Errorf("%w: read body: %w", domain.ErrUnavailable, readErr)
			continue
		}
		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	if c.maxRetries > 0 {
		return fmt.Errorf("exhausted %d retries: %w", c.maxRetries, lastErr)
	}
	return lastErr
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
