package domain

import "time"

// CircuitBreaker pauses live submissions after consecutive venue failures.
// Not safe for concurrent use; the owner serializes access.
type CircuitBreaker struct {
	ConsecutiveFailures int
	MaxFailures         int
	Cooldown            time.Duration
	CooldownUntil       time.Time
	Trips               int
}

// Allow reports whether a submission may go out at now.
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	return !now.Before(cb.CooldownUntil)
}

// RecordFailure counts a transient failure and may start a cooldown.
// Returns true when this failure tripped the breaker.
func (cb *CircuitBreaker) RecordFailure(now time.Time) bool {
	cb.ConsecutiveFailures++
	if cb.MaxFailures > 0 && cb.ConsecutiveFailures >= cb.MaxFailures {
		cb.CooldownUntil = now.Add(cb.Cooldown)
		cb.ConsecutiveFailures = 0
		cb.Trips++
		return true
	}
	return false
}

// RecordSuccess resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.ConsecutiveFailures = 0
}
