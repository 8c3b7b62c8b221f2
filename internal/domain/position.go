package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// DustQty es el tamaño mínimo que consideramos una posición real.
// Por debajo de esto el Data API devuelve restos de redondeo.
const DustQty = 0.01

// Precios a partir de los cuales un outcome se trata como resuelto.
const (
	ResolvedHigh = 0.99
	ResolvedLow  = 0.01
)

// TraderAddress identifies a monitored wallet. Always lower-case hex.
type TraderAddress string

// NormalizeAddress limpia espacios y pasa a minúsculas.
func NormalizeAddress(s string) TraderAddress {
	return TraderAddress(strings.ToLower(strings.TrimSpace(s)))
}

func (a TraderAddress) String() string { return string(a) }

// Valid reports whether a is a 0x-prefixed 20-byte hex address.
func (a TraderAddress) Valid() bool {
	s := string(a)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// Short devuelve 0x1234…abcd para logs y tablas.
func (a TraderAddress) Short() string {
	s := string(a)
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}

// PositionKey identifies one tradable line: a market (condition id) and an outcome.
type PositionKey struct {
	MarketID string
	Outcome  string
}

func (k PositionKey) String() string {
	return k.MarketID + "/" + k.Outcome
}

// Less orders keys by market, then outcome.
func (k PositionKey) Less(o PositionKey) bool {
	if k.MarketID != o.MarketID {
		return k.MarketID < o.MarketID
	}
	return k.Outcome < o.Outcome
}

// ParsePositionKey is the inverse of PositionKey.String.
func ParsePositionKey(s string) (PositionKey, error) {
	market, outcome, ok := strings.Cut(s, "/")
	if !ok || market == "" || outcome == "" {
		return PositionKey{}, fmt.Errorf("domain.ParsePositionKey: malformed key %q", s)
	}
	return PositionKey{MarketID: market, Outcome: outcome}, nil
}

// Position is one line of a trader's book. Size is signed: negative means short.
type Position struct {
	Key      PositionKey `json:"key"`
	TokenID  string      `json:"token_id"`
	Size     float64     `json:"size"`
	AvgPrice float64     `json:"avg_price"`
	CurPrice float64     `json:"cur_price"`
	Title    string      `json:"title,omitempty"`
	NegRisk  bool        `json:"neg_risk,omitempty"`

	// Redeemable: el mercado ya resolvió y la línea solo se cobra on-chain.
	Redeemable bool `json:"redeemable,omitempty"`
}

// Resolution reports whether the line's market is settled, or trades at a
// settled price, and the payout per share it settles at (1 or 0).
func (p Position) Resolution() (payout float64, ok bool) {
	switch {
	case p.Redeemable && p.CurPrice >= 0.5, p.CurPrice >= ResolvedHigh:
		return 1, true
	case p.Redeemable, p.CurPrice > 0 && p.CurPrice <= ResolvedLow:
		return 0, true
	}
	return 0, false
}

// MarkPrice prefers the current price and falls back to the entry price.
func (p Position) MarkPrice() float64 {
	if p.CurPrice > 0 {
		return p.CurPrice
	}
	return p.AvgPrice
}

// Notional is |size × mark| in USDC.
func (p Position) Notional() float64 {
	return math.Abs(p.Size * p.MarkPrice())
}

// PositionSnapshot is a trader's book at one instant. Immutable once built:
// every accessor hands out copies.
type PositionSnapshot struct {
	trader     TraderAddress
	capturedAt time.Time
	positions  map[PositionKey]Position
}

// NewSnapshot copies positions into a new snapshot, dropping dust lines.
// If a key appears twice the later entry wins.
func NewSnapshot(trader TraderAddress, capturedAt time.Time, positions []Position) PositionSnapshot {
	m := make(map[PositionKey]Position, len(positions))
	for _, p := range positions {
		if math.Abs(p.Size) < DustQty {
			continue
		}
		m[p.Key] = p
	}
	return PositionSnapshot{trader: trader, capturedAt: capturedAt.UTC(), positions: m}
}

func (s PositionSnapshot) Trader() TraderAddress { return s.trader }
func (s PositionSnapshot) CapturedAt() time.Time { return s.capturedAt }
func (s PositionSnapshot) Len() int              { return len(s.positions) }

// IsZero reports whether s was never captured.
func (s PositionSnapshot) IsZero() bool {
	return s.trader == "" && s.capturedAt.IsZero() && s.positions == nil
}

// Get returns the position for key, if held.
func (s PositionSnapshot) Get(key PositionKey) (Position, bool) {
	p, ok := s.positions[key]
	return p, ok
}

// Keys returns the held keys in deterministic order.
func (s PositionSnapshot) Keys() []PositionKey {
	keys := make([]PositionKey, 0, len(s.positions))
	for k := range s.positions {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Positions returns a sorted copy of the lines.
func (s PositionSnapshot) Positions() []Position {
	out := make([]Position, 0, len(s.positions))
	for _, k := range s.Keys() {
		out = append(out, s.positions[k])
	}
	return out
}

// Exposure is the total notional of the book.
func (s PositionSnapshot) Exposure() float64 {
	var total float64
	for _, p := range s.positions {
		total += p.Notional()
	}
	return total
}

type snapshotJSON struct {
	Trader     TraderAddress `json:"trader"`
	CapturedAt time.Time     `json:"captured_at"`
	Positions  []Position    `json:"positions"`
}

// MarshalJSON lets the storage layer persist a snapshot as a single blob.
func (s PositionSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Trader:     s.trader,
		CapturedAt: s.capturedAt,
		Positions:  s.Positions(),
	})
}

func (s *PositionSnapshot) UnmarshalJSON(b []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = NewSnapshot(raw.Trader, raw.CapturedAt, raw.Positions)
	return nil
}

func sortKeys(keys []PositionKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
