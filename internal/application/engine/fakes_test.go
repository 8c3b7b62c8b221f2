package engine_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/application/baseline"
	"github.com/alejandrodnm/polycopy/internal/application/engine"
	"github.com/alejandrodnm/polycopy/internal/application/risk"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSource devuelve, por trader, el último snapshot configurado o un error.
type fakeSource struct {
	mu    sync.Mutex
	books map[domain.TraderAddress][]domain.Position
	errs  map[domain.TraderAddress]error
	calls map[domain.TraderAddress]int
	hook  func(trader domain.TraderAddress)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		books: make(map[domain.TraderAddress][]domain.Position),
		errs:  make(map[domain.TraderAddress]error),
		calls: make(map[domain.TraderAddress]int),
	}
}

func (f *fakeSource) set(trader domain.TraderAddress, ps ...domain.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[trader] = ps
}

func (f *fakeSource) fail(trader domain.TraderAddress, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[trader] = err
}

func (f *fakeSource) callCount(trader domain.TraderAddress) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[trader]
}

func (f *fakeSource) FetchPositions(_ context.Context, trader domain.TraderAddress) (domain.PositionSnapshot, error) {
	f.mu.Lock()
	f.calls[trader]++
	err := f.errs[trader]
	ps := f.books[trader]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(trader)
	}
	if err != nil {
		return domain.PositionSnapshot{}, err
	}
	return domain.NewSnapshot(trader, time.Now(), ps), nil
}

// fakeSink llena al precio de referencia. failures[i] es el error del intento i.
type fakeSink struct {
	mu        sync.Mutex
	failures  []error
	attempts  int
	submitted []domain.ReplicaOrder
	executed  map[string]int
	block     chan struct{} // si no es nil, Submit espera a que se cierre
	entered   chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{executed: make(map[string]int)}
}

func (f *fakeSink) Submit(_ context.Context, o domain.ReplicaOrder) (domain.Fill, error) {
	f.mu.Lock()
	i := f.attempts
	f.attempts++
	block, entered := f.block, f.entered
	var err error
	if i < len(f.failures) {
		err = f.failures[i]
	}
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return domain.Fill{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, o)
	f.executed[o.ID]++
	return domain.Fill{OrderID: o.ID, Quantity: o.Quantity, Price: o.Price, FilledAt: time.Now()}, nil
}

func (f *fakeSink) orders() []domain.ReplicaOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReplicaOrder(nil), f.submitted...)
}

type staticRoster struct {
	mu      sync.Mutex
	traders []domain.Trader
}

func rosterOf(addrs ...domain.TraderAddress) *staticRoster {
	r := &staticRoster{}
	r.setAddrs(addrs...)
	return r
}

func (r *staticRoster) setAddrs(addrs ...domain.TraderAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traders = nil
	for _, a := range addrs {
		r.traders = append(r.traders, domain.Trader{Address: a, Source: domain.SourceManual, Active: true})
	}
}

func (r *staticRoster) Traders(context.Context) ([]domain.Trader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Trader(nil), r.traders...), nil
}

type recorder struct {
	mu   sync.Mutex
	recs []domain.ActivityRecord
}

func (r *recorder) Record(_ context.Context, rec domain.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *recorder) count(outcome domain.Outcome, reason domain.Reason) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.recs {
		if rec.Outcome == outcome && (reason == "" || rec.Reason == reason) {
			n++
		}
	}
	return n
}

type harness struct {
	source    *fakeSource
	sink      *fakeSink
	baselines *baseline.MemoryStore
	roster    *staticRoster
	activity  *recorder
	gate      *risk.Gate
	engine    *engine.Coordinator
}

func fastSettings() engine.Settings {
	s := engine.DefaultSettings()
	s.PollInterval = 20 * time.Millisecond
	s.RetryBackoff = time.Millisecond
	s.RosterRefresh = 20 * time.Millisecond
	s.Limits = domain.RiskLimits{MaxPositionUSD: 1000, MaxConcurrentPositions: 10, DailyLossLimitUSD: 1000}
	return s
}

func newHarness(settings engine.Settings, traders ...domain.TraderAddress) *harness {
	h := &harness{
		source:    newFakeSource(),
		sink:      newFakeSink(),
		baselines: baseline.NewMemoryStore(),
		roster:    rosterOf(traders...),
		activity:  &recorder{},
		gate:      risk.New(risk.Config{Increment: settings.Sizing.Increment}),
	}
	h.engine = engine.New(settings, engine.Deps{
		Source:    h.source,
		Sink:      h.sink,
		Baselines: h.baselines,
		Roster:    h.roster,
		Activity:  h.activity,
		Gate:      h.gate,
		Mode:      domain.ModePaper,
		Logger:    quiet,
	})
	return h
}

func p(market string, size, price float64) domain.Position {
	return domain.Position{
		Key:      domain.PositionKey{MarketID: market, Outcome: "Yes"},
		TokenID:  fmt.Sprintf("tok-%s", market),
		Size:     size,
		AvgPrice: price,
		CurPrice: price,
	}
}

func key(market string) domain.PositionKey {
	return domain.PositionKey{MarketID: market, Outcome: "Yes"}
}
