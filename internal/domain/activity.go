package domain

import "time"

// Outcome labels what an ActivityRecord reports.
type Outcome string

const (
	OutcomeEngineStart    Outcome = "engine_start"
	OutcomeEngineStop     Outcome = "engine_stop"
	OutcomeBaselineSeeded Outcome = "baseline_seeded"
	OutcomeDeltaObserved  Outcome = "delta_observed"
	OutcomeExecuted       Outcome = "order_executed"
	OutcomeSkipped        Outcome = "order_skipped"
	OutcomeRejected       Outcome = "order_rejected"
	OutcomeFailed         Outcome = "order_failed"
	OutcomeDuplicate      Outcome = "order_duplicate"
	OutcomeResolved       Outcome = "position_resolved"
	OutcomeFetchFailed    Outcome = "fetch_failed"
	OutcomeCycleAborted   Outcome = "cycle_aborted"
	OutcomeTraderAdded    Outcome = "trader_added"
	OutcomeTraderRemoved  Outcome = "trader_removed"
)

// ActivityRecord is one append-only log entry. Delta, Order and Fill are set
// when the record is about them.
type ActivityRecord struct {
	ID        string
	Timestamp time.Time
	Trader    TraderAddress
	Outcome   Outcome
	Reason    Reason
	Mode      Mode
	Delta     *PositionDelta
	Order     *ReplicaOrder
	Fill      *Fill
	Details   string
}
