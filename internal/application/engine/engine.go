// Package engine runs the per-trader replication cycles: fetch a snapshot,
// diff it against the baseline, size, gate and execute the resulting orders,
// and only then advance the baseline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polycopy/internal/application/risk"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

// Deps are the collaborators of a Coordinator. Journal and Ledger are
// optional: without a journal an in-memory one is used, without a ledger
// replica positions are not persisted.
type Deps struct {
	Source    ports.SnapshotSource
	Sink      ports.ExecutionSink
	Baselines ports.BaselineStore
	Roster    ports.RosterProvider
	Activity  ports.ActivitySink
	Journal   ports.OrderJournal
	Ledger    ports.PositionLedger
	Gate      *risk.Gate
	Mode      domain.Mode
	Logger    *slog.Logger
	Now       func() time.Time
}

// Coordinator drives one polling loop per trader.
type Coordinator struct {
	source    ports.SnapshotSource
	sink      ports.ExecutionSink
	baselines ports.BaselineStore
	roster    ports.RosterProvider
	activity  ports.ActivitySink
	journal   ports.OrderJournal
	ledger    ports.PositionLedger
	gate      *risk.Gate
	mode      domain.Mode
	log       *slog.Logger
	now       func() time.Time

	settings atomic.Pointer[Settings]
	stats    counters

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	traders map[domain.TraderAddress]*traderLoop
	running bool
}

type traderLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New crea un Coordinator. Source, Sink, Baselines, Roster y Gate son obligatorios.
func New(settings Settings, deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Journal == nil {
		deps.Journal = newMemoryJournal()
	}
	if deps.Activity == nil {
		deps.Activity = discardActivity{}
	}
	if deps.Mode == "" {
		deps.Mode = domain.ModePaper
	}
	c := &Coordinator{
		source:    deps.Source,
		sink:      deps.Sink,
		baselines: deps.Baselines,
		roster:    deps.Roster,
		activity:  deps.Activity,
		journal:   deps.Journal,
		ledger:    deps.Ledger,
		gate:      deps.Gate,
		mode:      deps.Mode,
		log:       deps.Logger,
		now:       deps.Now,
		traders:   make(map[domain.TraderAddress]*traderLoop),
	}
	c.UpdateSettings(settings)
	return c
}

// UpdateSettings swaps the settings used by cycles that start from now on.
// Cycles already running keep the copy they loaded.
func (c *Coordinator) UpdateSettings(s Settings) {
	s = s.withDefaults()
	c.settings.Store(&s)
}

// Settings returns the current settings.
func (c *Coordinator) Settings() Settings {
	return *c.settings.Load()
}

// Start resolves the roster and launches one loop per trader, plus the
// roster refresh loop. It returns once the loops are running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("engine.Start: already running")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	traders, err := c.roster.Traders(ctx)
	if err != nil {
		c.cancel()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("engine.Start: roster: %w", err)
	}

	c.record(ctx, domain.ActivityRecord{
		Outcome: domain.OutcomeEngineStart,
		Details: fmt.Sprintf("traders=%d", len(traders)),
	})
	c.log.Info("engine started", "traders", len(traders), "mode", c.mode, "interval", c.Settings().PollInterval)

	c.syncRoster(traders)

	c.wg.Add(1)
	go c.rosterLoop()
	return nil
}

// Stop cancels every loop and waits for in-flight cycles to drain, or for
// ctx to expire.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		c.record(context.WithoutCancel(ctx), domain.ActivityRecord{Outcome: domain.OutcomeEngineStop})
		c.log.Info("engine stopped", "cycles", c.stats.cycles.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine.Stop: drain: %w", ctx.Err())
	}
}

// RunOnce runs a single cycle for every trader in the roster, concurrently,
// and returns one result per trader. Per-trader failures are reported in the
// results, not as an error.
func (c *Coordinator) RunOnce(ctx context.Context) ([]CycleResult, error) {
	traders, err := c.roster.Traders(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: roster: %w", err)
	}

	results := make([]CycleResult, len(traders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Settings().MaxParallel)
	for i, t := range traders {
		g.Go(func() error {
			results[i] = c.poll(gctx, t.Address)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("engine.RunOnce: %w", err)
	}
	return results, nil
}

// Traders lists the traders with a running loop.
func (c *Coordinator) Traders() []domain.TraderAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.TraderAddress, 0, len(c.traders))
	for a := range c.traders {
		out = append(out, a)
	}
	return out
}

// Stats returns cumulative counters.
func (c *Coordinator) Stats() Stats {
	return c.stats.snapshot()
}

// rosterLoop re-resolves the roster periodically.
func (c *Coordinator) rosterLoop() {
	defer c.wg.Done()
	interval := c.Settings().RosterRefresh
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			traders, err := c.roster.Traders(c.ctx)
			if err != nil {
				c.log.Warn("roster refresh failed", "err", err)
				continue
			}
			c.syncRoster(traders)
			if next := c.Settings().RosterRefresh; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// syncRoster starts loops for new traders and stops removed ones. A removed
// trader's baseline is deleted once its loop has exited, unless the trader
// was added back in the meantime.
func (c *Coordinator) syncRoster(traders []domain.Trader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return
	}

	want := make(map[domain.TraderAddress]struct{}, len(traders))
	var added []domain.TraderAddress
	for _, t := range traders {
		if _, dup := want[t.Address]; dup {
			continue
		}
		want[t.Address] = struct{}{}
		if _, ok := c.traders[t.Address]; !ok {
			added = append(added, t.Address)
		}
	}

	for addr, loop := range c.traders {
		if _, ok := want[addr]; ok {
			continue
		}
		delete(c.traders, addr)
		loop.cancel()
		c.wg.Add(1)
		go c.retire(addr, loop)
	}

	interval := c.Settings().PollInterval
	for i, addr := range added {
		// Escalonar los arranques para no pedir a todos a la vez.
		offset := time.Duration(0)
		if len(added) > 1 {
			offset = interval * time.Duration(i) / time.Duration(len(added))
		}
		ctx, cancel := context.WithCancel(c.ctx)
		loop := &traderLoop{cancel: cancel, done: make(chan struct{})}
		c.traders[addr] = loop
		c.wg.Add(1)
		go c.run(ctx, addr, offset, loop.done)
		c.record(c.ctx, domain.ActivityRecord{Trader: addr, Outcome: domain.OutcomeTraderAdded})
	}
	if len(added) > 0 {
		c.log.Info("roster updated", "added", len(added), "total", len(c.traders))
	}
}

func (c *Coordinator) retire(addr domain.TraderAddress, loop *traderLoop) {
	defer c.wg.Done()
	<-loop.done
	ctx := context.WithoutCancel(c.ctx)

	// Bajo c.mu: un re-alta no puede arrancar su loop entre la comprobación y
	// el borrado.
	c.mu.Lock()
	_, back := c.traders[addr]
	if !back {
		if err := c.baselines.Delete(ctx, addr); err != nil {
			c.log.Warn("baseline delete failed", "trader", addr.Short(), "err", err)
		}
	}
	c.mu.Unlock()
	if back {
		c.log.Info("trader re-added before retirement, baseline kept", "trader", addr.Short())
	}
	c.record(ctx, domain.ActivityRecord{Trader: addr, Outcome: domain.OutcomeTraderRemoved})
	c.log.Info("trader removed", "trader", addr.Short())
}

// run is one trader's loop: poll after offset, then on every tick.
func (c *Coordinator) run(ctx context.Context, trader domain.TraderAddress, offset time.Duration, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	if offset > 0 {
		select {
		case <-time.After(offset):
		case <-ctx.Done():
			return
		}
	}
	c.poll(ctx, trader)

	interval := c.Settings().PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx, trader)
			if next := c.Settings().PollInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// poll runs a cycle and logs its result. Failures stay with this trader.
func (c *Coordinator) poll(ctx context.Context, trader domain.TraderAddress) CycleResult {
	res := c.RunCycle(ctx, trader)
	log := c.log.With("trader", trader.Short(), "took", res.Duration.Round(time.Millisecond))
	switch {
	case res.Err != nil:
		log.Warn("cycle failed", "err", res.Err, "deltas", res.Deltas, "executed", res.Executed)
	case res.Seeded:
		log.Info("baseline seeded", "positions", res.Positions)
	case res.Deltas > 0:
		log.Info("cycle done",
			"deltas", res.Deltas,
			"executed", res.Executed,
			"skipped", res.Skipped,
			"rejected", res.Rejected,
			"duplicates", res.Duplicates,
			"resolved", res.Resolved,
		)
	default:
		log.Debug("no changes", "positions", res.Positions)
	}
	return res
}

// Stats are cumulative engine counters.
type Stats struct {
	Cycles       int64
	FailedCycles int64
	Seeded       int64
	Executed     int64
	Skipped      int64
	Rejected     int64
	Duplicates   int64
	Resolved     int64
}

type counters struct {
	cycles, failed, seeded                  atomic.Int64
	executed, skipped, rejected, duplicates atomic.Int64
	resolved                                atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Cycles:       c.cycles.Load(),
		FailedCycles: c.failed.Load(),
		Seeded:       c.seeded.Load(),
		Executed:     c.executed.Load(),
		Skipped:      c.skipped.Load(),
		Rejected:     c.rejected.Load(),
		Duplicates:   c.duplicates.Load(),
		Resolved:     c.resolved.Load(),
	}
}

type discardActivity struct{}

func (discardActivity) Record(context.Context, domain.ActivityRecord) error { return nil }

// truncateStr trunca un string a maxLen caracteres añadiendo "..." si es necesario.
func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
