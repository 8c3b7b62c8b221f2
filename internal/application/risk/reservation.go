package risk

import (
	"math"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Reservation holds a key (and possibly a slot) between approval and the
// sink's answer. Exactly one of Commit or Release takes effect.
type Reservation struct {
	gate     *Gate
	order    domain.ReplicaOrder
	opensKey bool
	done     chan struct{}
	settled  bool
}

// Order is the approved, possibly shrunk, order.
func (r *Reservation) Order() domain.ReplicaOrder { return r.order }

// Commit applies fill to the open positions and frees the key. It returns
// the resulting position and the P&L realized by the fill. A fill with zero
// quantity behaves like Release.
func (r *Reservation) Commit(fill domain.Fill) (domain.ReplicaPosition, float64) {
	price := fill.Price
	if price <= 0 {
		price = r.order.Price
	}
	return r.apply(fill, price)
}

// Resolve settles the reserved reduction at a resolved market's payout
// without going through a venue. Unlike Commit a zero price is kept: a losing
// outcome pays nothing.
func (r *Reservation) Resolve(fill domain.Fill) (domain.ReplicaPosition, float64) {
	return r.apply(fill, math.Max(fill.Price, 0))
}

func (r *Reservation) apply(fill domain.Fill, price float64) (domain.ReplicaPosition, float64) {
	g := r.gate
	g.mu.Lock()
	defer g.mu.Unlock()
	if r.settled {
		return domain.ReplicaPosition{}, 0
	}
	r.release()

	if fill.Quantity <= 0 {
		return domain.ReplicaPosition{}, 0
	}
	signed := math.Abs(fill.Quantity)
	if r.order.Side == domain.SideSell {
		signed = -signed
	}

	g.rollDay()
	p, ok := g.positions[r.order.Key]
	if !ok {
		p = &domain.ReplicaPosition{
			Key:     r.order.Key,
			TokenID: r.order.TokenID,
			Title:   r.order.Title,
			NegRisk: r.order.NegRisk,
		}
		g.positions[r.order.Key] = p
	}
	realized := p.ApplyFill(signed, price, fill.FilledAt)
	g.realizedToday += realized

	out := *p
	if !p.IsOpen() {
		delete(g.positions, r.order.Key)
	}
	return out, realized
}

// Release rolls the reservation back: no position change, key and slot freed.
func (r *Reservation) Release() {
	g := r.gate
	g.mu.Lock()
	defer g.mu.Unlock()
	if r.settled {
		return
	}
	r.release()
}

// release runs under gate.mu.
func (r *Reservation) release() {
	r.settled = true
	g := r.gate
	if r.opensKey {
		delete(g.reservedOpens, r.order.Key)
	}
	delete(g.inflight, r.order.Key)
	close(r.done)
}
