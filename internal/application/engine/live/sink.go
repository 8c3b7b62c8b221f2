// Package live submits replica orders to the Polymarket CLOB.
package live

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const (
	circuitBreakerFailures = 3
	circuitBreakerCooldown = 2 * time.Minute
	// Órdenes por debajo de esto el CLOB las rechaza.
	minOrderUSDC = 1.0
)

// MarketPricer quotes the worst price that fills qty right now.
type MarketPricer interface {
	MarketPrice(ctx context.Context, tokenID string, side domain.Side, qty float64) (float64, bool, error)
}

// Config holds live sink settings.
type Config struct {
	MinOrderUSDC    float64
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Sink implements ports.ExecutionSink over an OrderPlacer.
//
// Every order is fill-or-kill with a salt derived from the order ID, so a
// resubmitted order carries the same hash. Fills are cached by ID and a
// repeated Submit returns the cached fill without touching the venue.
type Sink struct {
	placer  ports.OrderPlacer
	pricer  MarketPricer
	balance ports.BalanceChecker
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	fills    map[string]domain.Fill
	breaker  domain.CircuitBreaker
	breakers ports.BreakerStore
}

// New creates a live sink. pricer and balance may be nil: without a pricer,
// market orders are signed at the reference price; without a balance
// checker, buys are not pre-checked.
func New(placer ports.OrderPlacer, pricer MarketPricer, balance ports.BalanceChecker, cfg Config) *Sink {
	if cfg.MinOrderUSDC <= 0 {
		cfg.MinOrderUSDC = minOrderUSDC
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = circuitBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = circuitBreakerCooldown
	}
	return &Sink{
		placer:  placer,
		pricer:  pricer,
		balance: balance,
		cfg:     cfg,
		now:     time.Now,
		fills:   make(map[string]domain.Fill),
		breaker: domain.CircuitBreaker{
			MaxFailures: cfg.BreakerFailures,
			Cooldown:    cfg.BreakerCooldown,
		},
	}
}

// Submit places order on the CLOB.
func (s *Sink) Submit(ctx context.Context, order domain.ReplicaOrder) (domain.Fill, error) {
	s.mu.Lock()
	if f, ok := s.fills[order.ID]; ok {
		s.mu.Unlock()
		slog.Info("live: order already filled, returning cached fill", "order", order.ID)
		return f, nil
	}
	if !s.breaker.Allow(s.now()) {
		until := s.breaker.CooldownUntil
		s.mu.Unlock()
		return domain.Fill{}, fmt.Errorf("live.Submit: circuit open until %s: %w", until.Format(time.TimeOnly), domain.ErrSubmitTransient)
	}
	s.mu.Unlock()

	price, err := s.price(ctx, order)
	if err != nil {
		return domain.Fill{}, s.classify(ctx, err)
	}
	if order.Side == domain.SideBuy && !order.ReduceOnly {
		cost := order.Quantity * price
		if cost < s.cfg.MinOrderUSDC {
			return domain.Fill{}, &domain.SubmitRejection{Message: fmt.Sprintf("order $%.2f below CLOB minimum $%.2f", cost, s.cfg.MinOrderUSDC)}
		}
		if err := s.checkBalance(ctx, cost); err != nil {
			return domain.Fill{}, err
		}
	}

	req := domain.PlaceOrderRequest{
		TokenID:  order.TokenID,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    price,
		NegRisk:  order.NegRisk,
		Salt:     saltFromID(order.ID),
	}
	slog.Info("live: PLACING ORDER",
		"key", order.Key,
		"side", order.Side,
		"qty", fmt.Sprintf("%.2f", order.Quantity),
		"price", fmt.Sprintf("%.4f", price),
		"reduceOnly", order.ReduceOnly,
	)

	placed, err := s.placer.PlaceOrder(ctx, req)
	if err != nil {
		return domain.Fill{}, s.classify(ctx, err)
	}
	if placed.FilledQty <= 0 {
		s.recordSuccess(ctx)
		return domain.Fill{}, &domain.SubmitRejection{Message: fmt.Sprintf("FOK not filled (status %q)", placed.Status)}
	}

	fill := domain.Fill{
		OrderID:    order.ID,
		ExternalID: placed.CLOBOrderID,
		Quantity:   placed.FilledQty,
		Price:      placed.AvgPrice,
		FilledAt:   s.now().UTC(),
	}
	if fill.Price <= 0 {
		fill.Price = price
	}

	s.mu.Lock()
	s.fills[order.ID] = fill
	s.mu.Unlock()
	s.recordSuccess(ctx)
	return fill, nil
}

// price picks the signed price: the limit if set, else the book.
func (s *Sink) price(ctx context.Context, order domain.ReplicaOrder) (float64, error) {
	if order.LimitPrice > 0 {
		return order.LimitPrice, nil
	}
	if s.pricer == nil {
		if order.Price <= 0 {
			return 0, &domain.SubmitRejection{Message: "no reference price"}
		}
		return order.Price, nil
	}
	p, ok, err := s.pricer.MarketPrice(ctx, order.TokenID, order.Side, order.Quantity)
	if err != nil {
		return 0, fmt.Errorf("quote: %w", err)
	}
	if !ok || p <= 0 {
		return 0, &domain.SubmitRejection{Message: "insufficient book liquidity"}
	}
	return p, nil
}

func (s *Sink) checkBalance(ctx context.Context, cost float64) error {
	if s.balance == nil {
		return nil
	}
	bal, err := s.balance.USDCBalance(ctx)
	if err != nil {
		// Sin saldo no sabemos nada: que lo decida el CLOB.
		slog.Warn("live: balance check failed", "err", err)
		return nil
	}
	if bal < cost {
		return &domain.SubmitRejection{Message: fmt.Sprintf("insufficient USDC: have $%.2f, need $%.2f", bal, cost)}
	}
	return nil
}

// classify maps venue errors to the sink contract. Rate limits, 5xx,
// network problems and timeouts are transient; anything the venue actually
// refused is terminal.
func (s *Sink) classify(ctx context.Context, err error) error {
	var rej *domain.SubmitRejection
	if errors.As(err, &rej) {
		return err
	}
	transient := errors.Is(err, domain.ErrUnavailable) ||
		errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrSubmitTransient)
	if !transient {
		s.recordSuccess(ctx)
		return &domain.SubmitRejection{Message: err.Error()}
	}

	s.mu.Lock()
	tripped := s.breaker.RecordFailure(s.now())
	cb := s.breaker
	s.mu.Unlock()
	if tripped {
		slog.Warn("live: circuit breaker tripped", "cooldown", s.cfg.BreakerCooldown, "trips", cb.Trips)
	}
	s.persist(ctx, cb)
	return fmt.Errorf("live.Submit: %w: %w", domain.ErrSubmitTransient, err)
}

func (s *Sink) recordSuccess(ctx context.Context) {
	s.mu.Lock()
	changed := s.breaker.ConsecutiveFailures > 0
	s.breaker.RecordSuccess()
	cb := s.breaker
	s.mu.Unlock()
	if changed {
		s.persist(ctx, cb)
	}
}

// RestoreBreaker loads the breaker state saved by a previous run and keeps
// store for later updates. A cooldown still running at restart is honored.
// MaxFailures and Cooldown always come from this sink's Config.
func (s *Sink) RestoreBreaker(ctx context.Context, store ports.BreakerStore) error {
	saved, found, err := store.LoadCircuitBreaker(ctx)
	if err != nil {
		return fmt.Errorf("live.RestoreBreaker: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers = store
	if found {
		s.breaker.ConsecutiveFailures = saved.ConsecutiveFailures
		s.breaker.CooldownUntil = saved.CooldownUntil
		s.breaker.Trips = saved.Trips
	}
	return nil
}

// Breaker returns a copy of the breaker state.
func (s *Sink) Breaker() domain.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breaker
}

func (s *Sink) persist(ctx context.Context, cb domain.CircuitBreaker) {
	s.mu.Lock()
	store := s.breakers
	s.mu.Unlock()
	if store == nil {
		return
	}
	if err := store.SaveCircuitBreaker(context.WithoutCancel(ctx), cb); err != nil {
		slog.Warn("live: persist circuit breaker failed", "err", err)
	}
}

// saltFromID derives a positive salt below 2^53 from a UUID order ID.
func saltFromID(id string) int64 {
	u, err := uuid.Parse(id)
	if err != nil {
		u = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
	}
	return int64(binary.BigEndian.Uint64(u[:8]) & (1<<53 - 1))
}
