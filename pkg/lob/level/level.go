// Package level implements the price-level queue that sits behind every
// occupied tick in a symbol's price table (spec §4.6): a FIFO of resting
// orders at that exact price plus an atomic count used to decide when the
// level has gone empty and the matcher should probe past it.
package level

import (
	"sync/atomic"

	"github.com/abdoElHodaky/lobcore/pkg/lob/deque"
)

// PriceLevel wraps one price tick's resting-order queue. Installed once
// into a pricetable.Table and never reclaimed for the engine's lifetime
// (spec §4.5/§4.6 — "price levels are never removed from the table, only
// emptied").
type PriceLevel struct {
	Ticks     int64
	Queue     *deque.Deque
	numOrders atomic.Int64
}

// New creates an empty price level for the given tick.
func New(ticks int64) *PriceLevel {
	return &PriceLevel{
		Ticks: ticks,
		Queue: deque.New(),
	}
}

// NumOrders returns the level's resting-order count. Read without
// synchronization against the queue itself, so it is a hint. The
// matcher's decision to backtrack past a level reads this count (via
// Empty), not the queue.
func (l *PriceLevel) NumOrders() int64 {
	return l.numOrders.Load()
}

// Inc/Dec are called by the worker when an order rests (PushRight) and
// when one leaves the level (a fully-filled PopLeft, or RemoveNode). A
// partial fill pops the maker and PushLefts it back without touching the
// count.
func (l *PriceLevel) Inc() int64 {
	return l.numOrders.Add(1)
}

func (l *PriceLevel) Dec() int64 {
	return l.numOrders.Add(-1)
}

// Empty reports whether the level currently looks empty. Racy by
// construction, same caveat as deque.Deque.Empty.
func (l *PriceLevel) Empty() bool {
	return l.numOrders.Load() <= 0
}
