package domain

import (
	"errors"
	"fmt"
)

// Sentinels. Adapters wrap them with %w; callers classify with errors.Is.
var (
	// Fetch side: transient, retried with backoff.
	ErrUnavailable = errors.New("snapshot source unavailable")
	ErrRateLimited = errors.New("rate limited")

	// Submit side.
	ErrSubmitTransient = errors.New("transient submit failure")
	ErrSubmitRejected  = errors.New("order rejected by sink")

	ErrRiskRejected  = errors.New("rejected by risk gate")
	ErrConfigInvalid = errors.New("invalid configuration")
	ErrUnauthorized  = errors.New("unauthorized")
)

// Reason is the precise code recorded next to every skip, rejection and failure.
type Reason string

const (
	ReasonNone                          Reason = ""
	ReasonRoundingToZero                Reason = "rounding_to_zero"
	ReasonNoReplicaPosition             Reason = "no_replica_position"
	ReasonMaxPositionReached            Reason = "max_position_reached"
	ReasonDailyLossLimitReached         Reason = "daily_loss_limit_reached"
	ReasonMaxConcurrentPositionsReached Reason = "max_concurrent_positions_reached"
	ReasonSinkRejected                  Reason = "sink_rejected"
	ReasonSubmitFailed                  Reason = "submit_failed"
	ReasonFetchFailed                   Reason = "fetch_failed"
	ReasonDuplicate                     Reason = "duplicate"
	ReasonShutdown                      Reason = "shutdown"
	ReasonMarketResolved                Reason = "market_resolved"
)

// RiskRejection is returned by the risk gate. errors.Is(err, ErrRiskRejected) holds.
type RiskRejection struct {
	Reason Reason
}

func (e *RiskRejection) Error() string {
	return fmt.Sprintf("%s: %s", ErrRiskRejected, e.Reason)
}

func (e *RiskRejection) Is(target error) bool { return target == ErrRiskRejected }

// SubmitRejection carries the sink's reason for a terminal rejection.
type SubmitRejection struct {
	Message string
}

func (e *SubmitRejection) Error() string {
	return fmt.Sprintf("%s: %s", ErrSubmitRejected, e.Message)
}

func (e *SubmitRejection) Is(target error) bool { return target == ErrSubmitRejected }

// IsTransientFetch reports whether a snapshot fetch may succeed on retry.
func IsTransientFetch(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}

// IsTransientSubmit reports whether a submit may succeed on retry.
func IsTransientSubmit(err error) bool {
	return errors.Is(err, ErrSubmitTransient)
}

// RejectionReason extracts the risk reason from err, if any.
func RejectionReason(err error) (Reason, bool) {
	var rr *RiskRejection
	if errors.As(err, &rr) {
		return rr.Reason, true
	}
	return ReasonNone, false
}
