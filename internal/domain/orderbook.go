package domain

import (
	"sort"
	"strconv"
)

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64 // shares
}

// NewOrderBook builds a book from unsorted levels, dropping empty ones, and
// sorts each side best price first.
func NewOrderBook(tokenID string, bids, asks []BookEntry) OrderBook {
	ob := OrderBook{TokenID: tokenID, Bids: clean(bids), Asks: clean(asks)}
	sort.Slice(ob.Bids, func(i, j int) bool { return ob.Bids[i].Price > ob.Bids[j].Price })
	sort.Slice(ob.Asks, func(i, j int) bool { return ob.Asks[i].Price < ob.Asks[j].Price })
	return ob
}

func clean(levels []BookEntry) []BookEntry {
	out := make([]BookEntry, 0, len(levels))
	for _, l := range levels {
		if l.Price > 0 && l.Size > 0 {
			out = append(out, l)
		}
	}
	return out
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// SweepPrice is the worst level a taker order of qty shares reaches: asks for
// a BUY, bids for a SELL. ok is false when the side cannot fill qty; price is
// then the last level seen (0 on an empty side).
func (ob OrderBook) SweepPrice(side Side, qty float64) (price float64, ok bool) {
	levels := ob.Asks
	if side == SideSell {
		levels = ob.Bids
	}
	remaining := qty
	for _, l := range levels {
		price = l.Price
		remaining -= l.Size
		if remaining <= 1e-9 {
			return price, true
		}
	}
	return price, false
}

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
