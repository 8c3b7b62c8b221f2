package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/application/risk"
	"github.com/alejandrodnm/polycopy/internal/application/sizing"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

// CycleResult summarizes one trader cycle.
type CycleResult struct {
	Trader     domain.TraderAddress
	Seeded     bool
	Committed  bool
	Positions  int
	Deltas     int
	Executed   int
	Skipped    int
	Rejected   int
	Duplicates int
	Resolved   int
	Duration   time.Duration
	Err        error
}

// errAbort marks a delta whose outcome is not terminal: the cycle stops and
// the baseline stays where it was.
var errAbort = errors.New("cycle aborted")

// RunCycle runs snapshot → diff → size → risk → execute → commit for one
// trader as one unit. The baseline advances only if every delta reached a
// terminal outcome; otherwise the same deltas are recomputed next time.
//
// Cancelling ctx lets the cycle drain: the current step finishes on a
// detached context, pending retries are abandoned and the cycle aborts
// before the next delta.
func (c *Coordinator) RunCycle(ctx context.Context, trader domain.TraderAddress) (res CycleResult) {
	start := c.now()
	settings := *c.settings.Load()
	work := context.WithoutCancel(ctx)
	log := c.log.With("trader", trader.Short())

	res.Trader = trader
	defer func() {
		res.Duration = c.now().Sub(start)
		c.stats.cycles.Add(1)
		if res.Err != nil {
			c.stats.failed.Add(1)
		}
	}()

	snap, err := c.fetch(ctx, work, trader, settings)
	if err != nil {
		c.record(work, domain.ActivityRecord{
			Trader: trader, Outcome: domain.OutcomeFetchFailed, Reason: domain.ReasonFetchFailed, Details: err.Error(),
		})
		res.Err = fmt.Errorf("engine.RunCycle: fetch: %w", err)
		return res
	}
	res.Positions = snap.Len()

	base, found, err := c.baselines.Get(work, trader)
	if err != nil {
		res.Err = fmt.Errorf("engine.RunCycle: baseline get: %w", err)
		return res
	}
	if !found {
		// Primer contacto: sembrar sin operar.
		if err := c.baselines.Commit(work, trader, snap); err != nil {
			res.Err = fmt.Errorf("engine.RunCycle: seed baseline: %w", err)
			return res
		}
		c.stats.seeded.Add(1)
		res.Seeded, res.Committed = true, true
		c.record(work, domain.ActivityRecord{
			Trader: trader, Outcome: domain.OutcomeBaselineSeeded,
			Details: fmt.Sprintf("positions=%d exposure=%.2f", snap.Len(), snap.Exposure()),
		})
		return res
	}

	for _, p := range snap.Positions() {
		c.gate.Mark(p.Key, p.MarkPrice())
	}

	deltas := domain.Diff(base, snap)
	res.Deltas = len(deltas)
	exposure := snap.Exposure()

	for i := range deltas {
		d := deltas[i]
		if ctx.Err() != nil {
			res.Err = c.abort(work, trader, domain.ReasonShutdown, fmt.Errorf("engine.RunCycle: %w", ctx.Err()))
			return res
		}
		c.record(work, domain.ActivityRecord{Trader: trader, Outcome: domain.OutcomeDeltaObserved, Delta: &d})

		outcome, err := c.applyDelta(ctx, work, log, trader, base.CapturedAt(), d, exposure, settings)
		switch outcome {
		case domain.OutcomeExecuted:
			res.Executed++
		case domain.OutcomeSkipped:
			res.Skipped++
		case domain.OutcomeRejected:
			res.Rejected++
		case domain.OutcomeDuplicate:
			res.Duplicates++
		case domain.OutcomeResolved:
			res.Resolved++
		}
		if err != nil {
			reason := domain.ReasonSubmitFailed
			if ctx.Err() != nil {
				reason = domain.ReasonShutdown
			}
			res.Err = c.abort(work, trader, reason, fmt.Errorf("engine.RunCycle: %s %s: %w", d.Key, d.Kind, err))
			return res
		}
	}

	if err := c.baselines.Commit(work, trader, snap); err != nil {
		res.Err = fmt.Errorf("engine.RunCycle: commit baseline: %w", err)
		return res
	}
	res.Committed = true
	return res
}

// applyDelta takes one delta to a terminal outcome. A non-nil error means the
// outcome is not terminal and the cycle must abort.
func (c *Coordinator) applyDelta(
	ctx, work context.Context,
	log *slog.Logger,
	trader domain.TraderAddress,
	version time.Time,
	d domain.PositionDelta,
	exposure float64,
	settings Settings,
) (domain.Outcome, error) {
	order, reason := sizing.Size(d, c.gate.Held(d.Key), exposure, settings.Sizing)
	if reason != domain.ReasonNone {
		c.stats.skipped.Add(1)
		c.record(work, domain.ActivityRecord{Trader: trader, Outcome: domain.OutcomeSkipped, Reason: reason, Delta: &d})
		log.Debug("delta skipped", "key", d.Key, "kind", d.Kind, "reason", reason)
		return domain.OutcomeSkipped, nil
	}
	order.ID = domain.OrderID(trader, version, d.Key, d.Kind)
	order.Trader = trader
	order.Mode = c.mode
	order.CreatedAt = c.now()

	applied, err := c.journal.Applied(work, order.ID)
	if err != nil {
		return "", fmt.Errorf("journal: %w", err)
	}
	if applied {
		c.stats.duplicates.Add(1)
		c.record(work, domain.ActivityRecord{Trader: trader, Outcome: domain.OutcomeDuplicate, Reason: domain.ReasonDuplicate, Order: &order})
		return domain.OutcomeDuplicate, nil
	}

	// El recorte del gate usa el mismo incremento que el sizing de este ciclo.
	limits := settings.Limits
	if limits.Increment <= 0 {
		limits.Increment = settings.Sizing.Increment
	}
	res, dec, err := c.gate.Propose(ctx, order, limits)
	if err != nil {
		reason, ok := domain.RejectionReason(err)
		if !ok {
			return "", fmt.Errorf("risk: %w", err)
		}
		outcome := domain.OutcomeRejected
		if reason == domain.ReasonMaxPositionReached || reason == domain.ReasonNoReplicaPosition {
			outcome = domain.OutcomeSkipped
			c.stats.skipped.Add(1)
		} else {
			c.stats.rejected.Add(1)
		}
		c.record(work, domain.ActivityRecord{Trader: trader, Outcome: outcome, Reason: reason, Order: &order})
		log.Info("order blocked by risk", "key", d.Key, "kind", d.Kind, "qty", order.Quantity, "reason", reason)
		return outcome, nil
	}
	order = res.Order()
	if dec.Shrunk {
		log.Info("order shrunk", "key", d.Key, "from", dec.OriginalQty, "to", order.Quantity)
	}

	// Un mercado ya resuelto no tiene book: la réplica se liquida al payout.
	if order.ReduceOnly && d.Position.Redeemable {
		payout, _ := d.Position.Resolution()
		return c.settleResolved(work, log, res, order, payout, "redeemable"), nil
	}

	fill, err := c.submit(ctx, work, order, settings)
	if err != nil {
		if payout, ok := d.Position.Resolution(); ok && order.ReduceOnly && errors.Is(err, domain.ErrSubmitRejected) {
			return c.settleResolved(work, log, res, order, payout, err.Error()), nil
		}
		res.Release()
		if errors.Is(err, domain.ErrSubmitRejected) {
			c.stats.rejected.Add(1)
			c.journalOrder(work, log, domain.OrderRecord{
				Order: order, Status: domain.OrderRejected, Reason: domain.ReasonSinkRejected, ResolvedAt: c.now(),
			})
			c.record(work, domain.ActivityRecord{
				Trader: trader, Outcome: domain.OutcomeRejected, Reason: domain.ReasonSinkRejected, Order: &order, Details: err.Error(),
			})
			log.Warn("order rejected by sink", "key", d.Key, "err", err)
			return domain.OutcomeRejected, nil
		}
		c.record(work, domain.ActivityRecord{
			Trader: trader, Outcome: domain.OutcomeFailed, Reason: domain.ReasonSubmitFailed, Order: &order, Details: err.Error(),
		})
		return domain.OutcomeFailed, fmt.Errorf("submit: %w", err)
	}

	pos, realized := res.Commit(fill)
	c.stats.executed.Add(1)
	c.journalOrder(work, log, domain.OrderRecord{
		Order: order, Status: domain.OrderFilled, Fill: fill, Realized: realized, ResolvedAt: fill.FilledAt,
	})
	if c.ledger != nil && fill.Quantity > 0 {
		if err := c.ledger.SavePosition(work, pos); err != nil {
			log.Warn("ledger save failed", "key", d.Key, "err", err)
		}
	}
	c.record(work, domain.ActivityRecord{Trader: trader, Outcome: domain.OutcomeExecuted, Order: &order, Fill: &fill})
	log.Info("order executed",
		"key", d.Key,
		"kind", d.Kind,
		"side", order.Side,
		"qty", fill.Quantity,
		"price", fill.Price,
		"title", truncateStr(order.Title, 40),
	)
	return domain.OutcomeExecuted, nil
}

// settleResolved closes a reduction the venue can no longer execute because
// its market has resolved. The replica settles at payout in the gate, the
// journal and the ledger, so the position and its slot do not linger.
func (c *Coordinator) settleResolved(
	ctx context.Context,
	log *slog.Logger,
	res *risk.Reservation,
	order domain.ReplicaOrder,
	payout float64,
	details string,
) domain.Outcome {
	fill := domain.Fill{
		OrderID:    order.ID,
		ExternalID: "resolved",
		Quantity:   order.Quantity,
		Price:      payout,
		FilledAt:   c.now().UTC(),
	}
	pos, realized := res.Resolve(fill)
	c.stats.resolved.Add(1)
	c.journalOrder(ctx, log, domain.OrderRecord{
		Order: order, Status: domain.OrderFilled, Reason: domain.ReasonMarketResolved,
		Fill: fill, Realized: realized, ResolvedAt: fill.FilledAt,
	})
	if c.ledger != nil {
		if err := c.ledger.SavePosition(ctx, pos); err != nil {
			log.Warn("ledger save failed", "key", order.Key, "err", err)
		}
	}
	c.record(ctx, domain.ActivityRecord{
		Trader: order.Trader, Outcome: domain.OutcomeResolved, Reason: domain.ReasonMarketResolved,
		Order: &order, Fill: &fill, Details: details,
	})
	log.Info("position settled at resolution",
		"key", order.Key,
		"qty", fill.Quantity,
		"payout", payout,
		"realized", realized,
		"title", truncateStr(order.Title, 40),
	)
	return domain.OutcomeResolved
}

// fetch calls the snapshot source with bounded retries on transient errors.
func (c *Coordinator) fetch(ctx, work context.Context, trader domain.TraderAddress, s Settings) (domain.PositionSnapshot, error) {
	var snap domain.PositionSnapshot
	err := retry(ctx, s.FetchRetries, s.RetryBackoff, domain.IsTransientFetch, func() error {
		var err error
		snap, err = c.source.FetchPositions(work, trader)
		return err
	})
	return snap, err
}

// submit calls the sink with bounded retries on transient errors. The order
// ID is the same on every attempt.
func (c *Coordinator) submit(ctx, work context.Context, order domain.ReplicaOrder, s Settings) (domain.Fill, error) {
	var fill domain.Fill
	err := retry(ctx, s.SubmitRetries, s.RetryBackoff, domain.IsTransientSubmit, func() error {
		var err error
		fill, err = c.sink.Submit(work, order)
		return err
	})
	if err == nil && fill.FilledAt.IsZero() {
		fill.FilledAt = c.now()
	}
	return fill, err
}

func (c *Coordinator) abort(ctx context.Context, trader domain.TraderAddress, reason domain.Reason, err error) error {
	c.record(ctx, domain.ActivityRecord{Trader: trader, Outcome: domain.OutcomeCycleAborted, Reason: reason, Details: err.Error()})
	return fmt.Errorf("%w: %w", errAbort, err)
}

func (c *Coordinator) journalOrder(ctx context.Context, log *slog.Logger, rec domain.OrderRecord) {
	if err := c.journal.RecordOrder(ctx, rec); err != nil {
		log.Warn("journal write failed", "order", rec.Order.ID, "err", err)
	}
}

// record stamps and emits an activity record. Sink errors are logged only.
func (c *Coordinator) record(ctx context.Context, rec domain.ActivityRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now()
	}
	if rec.Mode == "" {
		rec.Mode = c.mode
	}
	if err := c.activity.Record(ctx, rec); err != nil {
		c.log.Warn("activity record failed", "outcome", rec.Outcome, "err", err)
	}
}
