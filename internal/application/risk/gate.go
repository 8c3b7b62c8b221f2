// Package risk holds the account-wide risk gate every replica order passes
// before it reaches an execution sink.
package risk

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/application/sizing"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Config fija el reloj, el corte de día y el incremento por defecto para
// recortes (RiskLimits.Increment lo sustituye por llamada).
type Config struct {
	Location  *time.Location // corte del día: time.UTC o time.Local
	Increment float64
	Now       func() time.Time
}

// Gate serializes evaluate-and-reserve for all traders behind one mutex.
// The mutex is never held while a sink call runs or while waiting on a busy key.
type Gate struct {
	mu sync.Mutex

	positions     map[domain.PositionKey]*domain.ReplicaPosition
	reservedOpens map[domain.PositionKey]struct{}
	inflight      map[domain.PositionKey]chan struct{}

	realizedToday        float64
	unrealizedAtDayStart float64
	dayStart             time.Time

	loc       *time.Location
	increment float64
	now       func() time.Time
}

// New crea un gate vacío.
func New(cfg Config) *Gate {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Increment <= 0 {
		cfg.Increment = 1
	}
	g := &Gate{
		positions:     make(map[domain.PositionKey]*domain.ReplicaPosition),
		reservedOpens: make(map[domain.PositionKey]struct{}),
		inflight:      make(map[domain.PositionKey]chan struct{}),
		loc:           cfg.Location,
		increment:     cfg.Increment,
		now:           cfg.Now,
	}
	g.dayStart = g.startOfDay(g.now())
	return g
}

// Decision describes what the gate did to the proposed order.
type Decision struct {
	Order       domain.ReplicaOrder
	Shrunk      bool
	OriginalQty float64
}

// Propose evaluates order against limits and, if approved, reserves its key
// (and a position slot when it opens a new key). While another order for the
// same key is in flight Propose waits for it to resolve or for ctx to end.
//
// Rejections wrap domain.ErrRiskRejected; the reservation must be settled with
// Commit or Release.
func (g *Gate) Propose(ctx context.Context, order domain.ReplicaOrder, limits domain.RiskLimits) (*Reservation, Decision, error) {
	for {
		g.mu.Lock()
		busy, ok := g.inflight[order.Key]
		if !ok {
			break
		}
		g.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, Decision{}, ctx.Err()
		}
	}
	defer g.mu.Unlock()

	g.rollDay()
	dec, opensKey, err := g.evaluate(order, limits)
	if err != nil {
		return nil, Decision{}, err
	}

	done := make(chan struct{})
	g.inflight[order.Key] = done
	if opensKey {
		g.reservedOpens[order.Key] = struct{}{}
	}
	return &Reservation{gate: g, order: dec.Order, opensKey: opensKey, done: done}, dec, nil
}

// evaluate runs under g.mu.
func (g *Gate) evaluate(order domain.ReplicaOrder, limits domain.RiskLimits) (Decision, bool, error) {
	dec := Decision{Order: order, OriginalQty: order.Quantity}

	var held float64
	if p, ok := g.positions[order.Key]; ok {
		held = p.Quantity
	}
	heldOpen := math.Abs(held) >= domain.DustQty
	reduces := heldOpen && (held > 0) != (order.SignedQty() > 0)

	// 1. Cerrar o reducir nunca se bloquea.
	if order.ReduceOnly {
		if !reduces {
			return Decision{}, false, &domain.RiskRejection{Reason: domain.ReasonNoReplicaPosition}
		}
		if order.Quantity > math.Abs(held) {
			dec.Order.Quantity = math.Abs(held)
			dec.Shrunk = true
		}
		return dec, false, nil
	}

	// 2. Pérdida diaria.
	if limits.DailyLossLimitUSD > 0 && g.dailyLoss() >= limits.DailyLossLimitUSD {
		return Decision{}, false, &domain.RiskRejection{Reason: domain.ReasonDailyLossLimitReached}
	}

	// 3. Slots de posición.
	opensKey := !heldOpen
	if opensKey && limits.MaxConcurrentPositions > 0 && g.slotsInUse() >= limits.MaxConcurrentPositions {
		return Decision{}, false, &domain.RiskRejection{Reason: domain.ReasonMaxConcurrentPositionsReached}
	}

	// 4. Tamaño máximo: recortar, no rechazar.
	if limits.MaxPositionUSD > 0 && order.Price > 0 && !reduces {
		resulting := (math.Abs(held) + order.Quantity) * order.Price
		if resulting > limits.MaxPositionUSD {
			room := decimal.NewFromFloat(limits.MaxPositionUSD).
				Div(decimal.NewFromFloat(order.Price)).
				Sub(decimal.NewFromFloat(math.Abs(held)))
			increment := limits.Increment
			if increment <= 0 {
				increment = g.increment
			}
			qty := sizing.FloorTo(room, increment)
			if qty <= 0 {
				return Decision{}, false, &domain.RiskRejection{Reason: domain.ReasonMaxPositionReached}
			}
			dec.Order.Quantity = qty
			dec.Shrunk = true
		}
	}
	return dec, opensKey, nil
}

// Mark updates the mark price of a held key.
func (g *Gate) Mark(key domain.PositionKey, price float64) {
	if price <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.positions[key]; ok {
		p.Mark = price
	}
}

// Held returns the replica's signed quantity on key.
func (g *Gate) Held(key domain.PositionKey) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.positions[key]; ok {
		return p.Quantity
	}
	return 0
}

// Restore loads persisted positions and today's realized P&L at startup.
// Unrealized P&L is anchored at the restored marks.
func (g *Gate) Restore(positions []domain.ReplicaPosition, realizedToday float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions = make(map[domain.PositionKey]*domain.ReplicaPosition, len(positions))
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		cp := p
		g.positions[p.Key] = &cp
	}
	g.dayStart = g.startOfDay(g.now())
	g.realizedToday = realizedToday
	g.unrealizedAtDayStart = g.unrealized()
}

// State is a read-only view for reports and logs.
type State struct {
	Positions       []domain.ReplicaPosition
	OpenPositions   int
	ReservedSlots   int
	InFlight        int
	RealizedToday   float64
	UnrealizedToday float64
	DailyLoss       float64
	DayStart        time.Time
}

// Snapshot copies the current state.
func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDay()

	st := State{
		OpenPositions:   len(g.positions),
		ReservedSlots:   len(g.reservedOpens),
		InFlight:        len(g.inflight),
		RealizedToday:   g.realizedToday,
		UnrealizedToday: g.unrealized() - g.unrealizedAtDayStart,
		DailyLoss:       g.dailyLoss(),
		DayStart:        g.dayStart,
	}
	for _, p := range g.positions {
		st.Positions = append(st.Positions, *p)
	}
	sort.Slice(st.Positions, func(i, j int) bool { return st.Positions[i].Key.Less(st.Positions[j].Key) })
	return st
}

func (g *Gate) slotsInUse() int {
	return len(g.positions) + len(g.reservedOpens)
}

func (g *Gate) unrealized() float64 {
	var total float64
	for _, p := range g.positions {
		total += p.UnrealizedPnL()
	}
	return total
}

// dailyLoss is positive when the day is losing money.
func (g *Gate) dailyLoss() float64 {
	return -(g.realizedToday + g.unrealized() - g.unrealizedAtDayStart)
}

func (g *Gate) rollDay() {
	start := g.startOfDay(g.now())
	if start.Equal(g.dayStart) {
		return
	}
	g.dayStart = start
	g.realizedToday = 0
	g.unrealizedAtDayStart = g.unrealized()
}

func (g *Gate) startOfDay(t time.Time) time.Time {
	t = t.In(g.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, g.loc)
}
