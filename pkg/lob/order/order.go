// Package order defines the Order record that flows from a client's
// submit call, through a price level's deque, to a worker's match loop,
// and finally back to its owning arena (spec §3 Order, §4.7).
package order

import (
	"sync/atomic"
	"unsafe"

	"github.com/abdoElHodaky/lobcore/pkg/lob/arena"
)

// Side identifies which side of the book an order trades on.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// State is the order's lifecycle stage (spec §6 Open Questions decision:
// ADD/CANCEL are modeled as a four-state machine rather than two
// separate message types, since a resting order can only ever move
// forward through them).
type State int32

const (
	StateAdd State = iota
	StateResting
	StateCancelled
	StateFilled
)

// Op is the operation a ring dispatch requests. Kept separate from State:
// State tracks lifecycle (can this order still be cancelled?), Op tells
// the worker which branch of its pull loop to run for this publish (spec
// §4.7 "match order.type { ADD => insert, CANCEL => cancel }").
type Op int32

const (
	OpInsert Op = iota
	OpCancel
)

// Order is allocated from a client-side arena.Arena[Order] (see
// pkg/lob/book.submitter) and referenced by pointer everywhere else —
// its deque Node points back at it via Node.Value, and it never moves in
// memory for its lifetime.
type Order struct {
	ID         uint64
	UserID     uint32
	SymbolID   uint16
	Side       Side
	PriceTicks uint64

	// Quantity is the remaining unfilled size; workers decrement it with
	// CAS as trades execute, down to (and never below) zero.
	Quantity atomic.Int64

	State atomic.Int32
	Op    atomic.Int32

	// Node points at the deque.Node currently holding this order while
	// it rests, or nil before it is first linked / after it is removed.
	// Declared unsafe.Pointer rather than *deque.Node to avoid an
	// order<->deque import cycle; pkg/lob/worker does the cast.
	Node unsafe.Pointer

	// Arena/Slot identify the client arena this order was allocated
	// from, so the worker that ultimately retires it can return the
	// slot — always via FreeRemote, since a worker is never the owner
	// of a client's order arena.
	Arena *arena.Arena[Order]
	Slot  int32
}

// RemainingQuantity reads the order's outstanding size.
func (o *Order) RemainingQuantity() int64 {
	return o.Quantity.Load()
}

// Fill reduces the order's remaining quantity by amount via CAS,
// retrying internally when a concurrent update wins the race. It fails
// (false, with the current remaining quantity) only when less than amount
// remains.
func (o *Order) Fill(amount int64) (remaining int64, ok bool) {
	for {
		cur := o.Quantity.Load()
		if cur < amount {
			return cur, false
		}
		next := cur - amount
		if o.Quantity.CompareAndSwap(cur, next) {
			return next, true
		}
	}
}

// EncodeID packs a symbol id and a per-submitter sequence number into an
// order id: high 16 bits symbol, low 48 bits sequence (spec §3 Order id
// scheme). Each submitter counts its own sequence, so ids are unique only
// within one submitter, not across submitters.
func EncodeID(symbolID uint16, localSeq uint64) uint64 {
	return uint64(symbolID)<<48 | (localSeq & 0x0000FFFFFFFFFFFF)
}

// DecodeID splits an order id back into its symbol id and sequence.
func DecodeID(id uint64) (symbolID uint16, localSeq uint64) {
	return uint16(id >> 48), id & 0x0000FFFFFFFFFFFF
}
