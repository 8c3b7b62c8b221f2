// Package paper simulates order execution against a virtual USDC balance.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const defaultCapital = 1000

// Config holds paper trading settings.
type Config struct {
	InitialCapital float64
	FeeRate        float64 // sobre el notional, 0 en Polymarket hoy
}

// Sink implements ports.ExecutionSink with immediate simulated fills at the
// order's reference price (or its limit, when the limit is worse).
type Sink struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	balance float64
	fills   map[string]domain.Fill
}

// New creates a paper sink with cfg.InitialCapital of virtual USDC.
func New(cfg Config) *Sink {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = defaultCapital
	}
	return &Sink{
		cfg:     cfg,
		now:     time.Now,
		balance: cfg.InitialCapital,
		fills:   make(map[string]domain.Fill),
	}
}

// Submit fills order in full. A repeated ID returns the first fill.
func (s *Sink) Submit(_ context.Context, order domain.ReplicaOrder) (domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.fills[order.ID]; ok {
		return f, nil
	}

	price := fillPrice(order)
	if price <= 0 || price > 1 {
		return domain.Fill{}, &domain.SubmitRejection{Message: fmt.Sprintf("no valid price (%.4f)", price)}
	}
	if order.Quantity <= 0 {
		return domain.Fill{}, &domain.SubmitRejection{Message: "zero quantity"}
	}

	notional := order.Quantity * price
	fee := notional * s.cfg.FeeRate
	switch order.Side {
	case domain.SideBuy:
		if notional+fee > s.balance {
			return domain.Fill{}, &domain.SubmitRejection{
				Message: fmt.Sprintf("insufficient paper balance: have $%.2f, need $%.2f", s.balance, notional+fee),
			}
		}
		s.balance -= notional + fee
	case domain.SideSell:
		s.balance += notional - fee
	}

	fill := domain.Fill{
		OrderID:    order.ID,
		ExternalID: "paper-" + uuid.NewString(),
		Quantity:   order.Quantity,
		Price:      price,
		FilledAt:   s.now().UTC(),
	}
	s.fills[order.ID] = fill

	slog.Info("paper: simulated fill",
		"key", order.Key,
		"side", order.Side,
		"qty", fmt.Sprintf("%.2f", fill.Quantity),
		"price", fmt.Sprintf("%.4f", price),
		"balance", fmt.Sprintf("$%.2f", s.balance),
	)
	return fill, nil
}

// USDCBalance implements ports.BalanceChecker with the virtual balance.
func (s *Sink) USDCBalance(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

// fillPrice is the reference price, bounded by the limit: a buy never pays
// more than its limit, a sell never receives less.
func fillPrice(o domain.ReplicaOrder) float64 {
	p := o.Price
	if o.LimitPrice <= 0 {
		return p
	}
	if o.Side == domain.SideBuy && p > o.LimitPrice {
		return o.LimitPrice
	}
	if o.Side == domain.SideSell && p < o.LimitPrice {
		return o.LimitPrice
	}
	return p
}
