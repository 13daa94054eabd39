// Package symbol implements the per-instrument record the matcher keys
// off of: its two price tables and the atomic best-bid/best-ask ticks
// that track the inside of the book (spec §4.6).
package symbol

import (
	"sync/atomic"

	"github.com/abdoElHodaky/lobcore/pkg/lob/pricetable"
)

// Sentinel tick values meaning "no resting liquidity on this side"
// (spec §3 Symbol).
const (
	NoBid uint64 = 0
	NoAsk uint64 = ^uint64(0)
)

// Side identifies which side of the book an order rests on.
type Side uint8

const (
	Buy Side = iota
	Sell
)

// Symbol is one tradable instrument's order book state.
type Symbol struct {
	ID   uint16
	Name string

	Buy  *pricetable.Table
	Sell *pricetable.Table

	bestBidTicks atomic.Uint64
	bestAskTicks atomic.Uint64

	// Supplemented read-only activity counters (not in the distilled
	// spec; carried over from the original implementation's per-symbol
	// stats block) — surfaced via book.Book.SymbolStats.
	ordersAccepted  atomic.Uint64
	ordersCancelled atomic.Uint64
	ordersFilled    atomic.Uint64
}

// New creates a Symbol with empty buy/sell tables of numBuckets slots
// each and both sides initialized to "no liquidity".
func New(id uint16, name string, numBuckets int) *Symbol {
	s := &Symbol{
		ID:   id,
		Name: name,
		Buy:  pricetable.New(numBuckets),
		Sell: pricetable.New(numBuckets),
	}
	s.bestBidTicks.Store(NoBid)
	s.bestAskTicks.Store(NoAsk)
	return s
}

func (s *Symbol) BestBid() uint64 { return s.bestBidTicks.Load() }
func (s *Symbol) BestAsk() uint64 { return s.bestAskTicks.Load() }

func (s *Symbol) TableFor(side Side) *pricetable.Table {
	if side == Buy {
		return s.Buy
	}
	return s.Sell
}

// UpdateBestBid spins a CAS loop raising best_bid_ticks to tick unless the
// current value is already at least as good (spec §4.7
// update_best_prices, BUY branch).
func (s *Symbol) UpdateBestBid(tick uint64) {
	for {
		cur := s.bestBidTicks.Load()
		if tick <= cur {
			return
		}
		if s.bestBidTicks.CompareAndSwap(cur, tick) {
			return
		}
	}
}

// UpdateBestAsk spins a CAS loop lowering best_ask_ticks to tick unless
// the current value is already at least as good (SELL branch).
func (s *Symbol) UpdateBestAsk(tick uint64) {
	for {
		cur := s.bestAskTicks.Load()
		if tick >= cur {
			return
		}
		if s.bestAskTicks.CompareAndSwap(cur, tick) {
			return
		}
	}
}

// CompareAndSwapBestBid/Ask back the backtrack_top bounded search.
func (s *Symbol) CompareAndSwapBestBid(old, new uint64) bool {
	return s.bestBidTicks.CompareAndSwap(old, new)
}

func (s *Symbol) CompareAndSwapBestAsk(old, new uint64) bool {
	return s.bestAskTicks.CompareAndSwap(old, new)
}

func (s *Symbol) RecordAccepted()  { s.ordersAccepted.Add(1) }
func (s *Symbol) RecordCancelled() { s.ordersCancelled.Add(1) }
func (s *Symbol) RecordFilled()    { s.ordersFilled.Add(1) }

// Stats is a point-in-time snapshot of the supplemented counters.
type Stats struct {
	OrdersAccepted  uint64
	OrdersCancelled uint64
	OrdersFilled    uint64
	BestBidTicks    uint64
	BestAskTicks    uint64
}

func (s *Symbol) Stats() Stats {
	return Stats{
		OrdersAccepted:  s.ordersAccepted.Load(),
		OrdersCancelled: s.ordersCancelled.Load(),
		OrdersFilled:    s.ordersFilled.Load(),
		BestBidTicks:    s.bestBidTicks.Load(),
		BestAskTicks:    s.bestAskTicks.Load(),
	}
}
