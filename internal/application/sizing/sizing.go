// Package sizing turns a trader-side delta into a replica order quantity.
package sizing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const (
	minLimitPrice = 0.01
	maxLimitPrice = 0.99
)

// Config holds the sizing knobs.
type Config struct {
	CapitalRatio float64 // capital réplica / capital trader
	Increment    float64 // tamaño mínimo negociable (shares)
	MaxSlippage  float64 // 0 = orden a mercado
}

// DefaultConfig: 1/10 del trader, acciones enteras, a mercado.
func DefaultConfig() Config {
	return Config{CapitalRatio: 0.1, Increment: 1}
}

// Size maps a delta to a replica order. held is the replica's current signed
// quantity on the delta's key. A non-empty reason means no order; that is an
// informational skip, never an error. traderExposure is context only: the
// quantity is proportional to the delta, not to the trader's book.
//
// The returned order has no ID, trader or mode yet; the caller stamps those.
func Size(d domain.PositionDelta, held, traderExposure float64, cfg Config) (domain.ReplicaOrder, domain.Reason) {
	order := domain.ReplicaOrder{
		Key:     d.Key,
		TokenID: d.Position.TokenID,
		NegRisk: d.Position.NegRisk,
		Title:   d.Position.Title,
		Kind:    d.Kind,
		Price:   d.Position.MarkPrice(),
	}

	switch d.Kind {
	case domain.DeltaClosed:
		// Cerrar lo que la réplica tiene de verdad, no el tamaño escalado del trader.
		if math.Abs(held) < domain.DustQty {
			return domain.ReplicaOrder{}, domain.ReasonNoReplicaPosition
		}
		order.Quantity = round6(math.Abs(held))
		order.Side = sideFor(-held)
		order.ReduceOnly = true

	case domain.DeltaDecreased:
		if math.Abs(held) < domain.DustQty || !sameSign(held, d.OldQty) {
			return domain.ReplicaOrder{}, domain.ReasonNoReplicaPosition
		}
		qty := Scale(math.Abs(d.Change()), cfg.CapitalRatio, cfg.Increment)
		if qty <= 0 {
			return domain.ReplicaOrder{}, domain.ReasonRoundingToZero
		}
		order.Quantity = math.Min(qty, round6(math.Abs(held)))
		order.Side = sideFor(d.Change())
		order.ReduceOnly = true

	default:
		qty := Scale(math.Abs(d.Change()), cfg.CapitalRatio, cfg.Increment)
		if qty <= 0 {
			return domain.ReplicaOrder{}, domain.ReasonRoundingToZero
		}
		order.Quantity = qty
		order.Side = sideFor(d.Change())
	}

	order.LimitPrice = LimitPrice(order.Side, order.Price, cfg.MaxSlippage)
	return order, domain.ReasonNone
}

// Scale multiplies qty by ratio and floors the result to increment.
func Scale(qty, ratio, increment float64) float64 {
	return FloorTo(decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(ratio)), increment)
}

// FloorTo rounds v down to a multiple of increment. Non-positive increments
// fall back to 0.01.
func FloorTo(v decimal.Decimal, increment float64) float64 {
	inc := decimal.NewFromFloat(increment)
	if !inc.IsPositive() {
		inc = decimal.New(1, -2)
	}
	if !v.IsPositive() {
		return 0
	}
	f, _ := v.Div(inc).Floor().Mul(inc).Float64()
	return f
}

// LimitPrice applies slippage around price, clamped to the CLOB's price band.
func LimitPrice(side domain.Side, price, slippage float64) float64 {
	if slippage <= 0 || price <= 0 {
		return 0
	}
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(slippage)
	var lim float64
	if side == domain.SideBuy {
		lim, _ = p.Mul(decimal.NewFromInt(1).Add(s)).Round(4).Float64()
		return math.Min(lim, maxLimitPrice)
	}
	lim, _ = p.Mul(decimal.NewFromInt(1).Sub(s)).Round(4).Float64()
	return math.Max(lim, minLimitPrice)
}

func sideFor(change float64) domain.Side {
	if change < 0 {
		return domain.SideSell
	}
	return domain.SideBuy
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func round6(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(6).Float64()
	return f
}
