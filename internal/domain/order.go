package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Side of a replica order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Mode selects where replica orders go.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// ParseMode acepta "paper" o "live" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePaper:
		return ModePaper, nil
	case ModeLive:
		return ModeLive, nil
	default:
		return "", fmt.Errorf("domain.ParseMode: unknown mode %q", s)
	}
}

// orderNamespace scopes the name-based UUIDs used as replica order ids.
var orderNamespace = uuid.MustParse("8f3c1a52-6f0e-4b8e-9d59-2b7a4c1e0d11")

// OrderID derives a stable id for the order answering one delta against one
// baseline version. Recomputing the same delta yields the same id.
func OrderID(trader TraderAddress, baselineVersion time.Time, key PositionKey, kind DeltaKind) string {
	name := fmt.Sprintf("%s|%d|%s|%s", trader, baselineVersion.UnixNano(), key, kind)
	return uuid.NewSHA1(orderNamespace, []byte(name)).String()
}

// ReplicaOrder is the order proposed for the controlled wallet.
// LimitPrice 0 means market.
type ReplicaOrder struct {
	ID         string
	Trader     TraderAddress
	Key        PositionKey
	TokenID    string
	NegRisk    bool
	Title      string
	Kind       DeltaKind
	Side       Side
	Quantity   float64 // shares, always positive
	Price      float64 // reference mark
	LimitPrice float64
	Mode       Mode
	ReduceOnly bool
	CreatedAt  time.Time
}

// SignedQty is +Quantity for buys and -Quantity for sells.
func (o ReplicaOrder) SignedQty() float64 {
	if o.Side == SideSell {
		return -o.Quantity
	}
	return o.Quantity
}

// Notional is quantity × reference price.
func (o ReplicaOrder) Notional() float64 {
	return o.Quantity * o.Price
}

// Fill is the sink's acknowledgement of an executed order.
type Fill struct {
	OrderID    string
	ExternalID string // CLOB order hash en live, "paper-<uuid>" en paper
	Quantity   float64
	Price      float64
	FilledAt   time.Time
}

// OrderStatus is the terminal state stored in the order journal.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
	OrderSkipped  OrderStatus = "SKIPPED"
)

// OrderRecord is one journal row: an order that reached a terminal state.
type OrderRecord struct {
	Order      ReplicaOrder
	Status     OrderStatus
	Reason     Reason
	Fill       Fill
	Realized   float64 // P&L realizado por el fill
	ResolvedAt time.Time
}

// PlaceOrderRequest is the venue-level order sent to the CLOB.
// Salt makes the signed order hash a function of the replica order ID.
type PlaceOrderRequest struct {
	TokenID  string
	Side     Side
	Quantity float64 // shares
	Price    float64 // worst acceptable price
	NegRisk  bool
	Salt     int64
}

// PlacedOrder is the CLOB's answer to a PlaceOrderRequest.
type PlacedOrder struct {
	CLOBOrderID string
	Status      string
	FilledQty   float64 // shares
	AvgPrice    float64
}
