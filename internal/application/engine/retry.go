package engine

import (
	"context"
	"time"
)

// retry runs fn up to 1+retries times while retryable(err) holds, with
// exponential backoff from base. A done ctx stops the retries (the last
// error is returned), never an attempt already running.
func retry(ctx context.Context, retries int, base time.Duration, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if attempt == retries {
			break
		}
		wait := base << attempt
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return err
		}
	}
	return err
}
