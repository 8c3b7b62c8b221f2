package domain

import (
	"math"
	"time"
)

// RiskLimits son los límites de cuenta evaluados por el risk gate.
type RiskLimits struct {
	MaxPositionUSD         float64
	MaxConcurrentPositions int
	DailyLossLimitUSD      float64
	Increment              float64 // paso de los recortes; 0 usa el del gate
}

// ReplicaPosition is what the controlled wallet holds on one key.
// Quantity is signed like Position.Size.
type ReplicaPosition struct {
	Key       PositionKey
	TokenID   string
	Title     string
	NegRisk   bool
	Quantity  float64
	AvgPrice  float64
	Mark      float64
	OpenedAt  time.Time
	UpdatedAt time.Time
}

// IsOpen is false once the position has been closed down to dust.
func (p ReplicaPosition) IsOpen() bool {
	return math.Abs(p.Quantity) >= DustQty
}

// MarkPrice prefers the latest mark.
func (p ReplicaPosition) MarkPrice() float64 {
	if p.Mark > 0 {
		return p.Mark
	}
	return p.AvgPrice
}

// Notional is |quantity × mark|.
func (p ReplicaPosition) Notional() float64 {
	return math.Abs(p.Quantity * p.MarkPrice())
}

// UnrealizedPnL at the current mark.
func (p ReplicaPosition) UnrealizedPnL() float64 {
	return (p.MarkPrice() - p.AvgPrice) * p.Quantity
}

// ApplyFill folds a signed fill into the position and returns the realized P&L.
// Adding to the position moves the average price; reducing realizes P&L.
// A fill larger than the position flips it, with the rest opened at price.
func (p *ReplicaPosition) ApplyFill(signedQty, price float64, at time.Time) float64 {
	if signedQty == 0 {
		return 0
	}
	if p.OpenedAt.IsZero() || !p.IsOpen() {
		p.OpenedAt = at
	}
	p.UpdatedAt = at
	p.Mark = price

	if p.Quantity == 0 || sameSign(p.Quantity, signedQty) {
		total := p.Quantity + signedQty
		p.AvgPrice = (p.AvgPrice*math.Abs(p.Quantity) + price*math.Abs(signedQty)) / math.Abs(total)
		p.Quantity = total
		return 0
	}

	closing := math.Min(math.Abs(signedQty), math.Abs(p.Quantity))
	var realized float64
	if p.Quantity > 0 {
		realized = (price - p.AvgPrice) * closing
	} else {
		realized = (p.AvgPrice - price) * closing
	}

	remaining := p.Quantity + signedQty
	switch {
	case math.Abs(remaining) < DustQty:
		p.Quantity = 0
	case !sameSign(remaining, p.Quantity):
		p.Quantity = remaining
		p.AvgPrice = price
		p.OpenedAt = at
	default:
		p.Quantity = remaining
	}
	return realized
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
