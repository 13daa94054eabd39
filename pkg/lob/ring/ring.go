// Package ring implements the MPMC bounded publish ring that hands
// orders from client submitters to matching workers (spec §4.6): a
// fixed power-of-two capacity ring with independent publish/work
// sequence counters and a pending counter that backs is_idle.
package ring

import (
	"runtime"
	"sync/atomic"

	"github.com/abdoElHodaky/lobcore/pkg/lob/order"
)

// Ring is safe for any number of concurrent publishers and pullers.
type Ring struct {
	mask       uint64
	slots      []atomic.Pointer[order.Order]
	publishSeq atomic.Uint64
	workSeq    atomic.Uint64
	pending    atomic.Int64
}

// New creates a Ring whose capacity is the next power of two >= capacity.
func New(capacity int) *Ring {
	c := nextPowerOfTwo(capacity)
	return &Ring{
		mask:  uint64(c - 1),
		slots: make([]atomic.Pointer[order.Order], c),
	}
}

// Publish claims the next sequence slot and stores o into it, spin-yielding
// while the ring is full (backpressure, not an error per spec §7.5).
func (r *Ring) Publish(o *order.Order) {
	r.pending.Add(1)
	s := r.publishSeq.Add(1) - 1
	for s-r.workSeq.Load() >= uint64(len(r.slots)) {
		runtime.Gosched()
	}
	idx := s & r.mask
	for !r.slots[idx].CompareAndSwap(nil, o) {
		runtime.Gosched()
	}
}

// Pull claims the next work sequence and returns its order, or (nil,
// false) if no order has been published yet. It briefly spins if the
// claimed slot's producer hasn't finished writing.
func (r *Ring) Pull() (*order.Order, bool) {
	for {
		s := r.workSeq.Load()
		p := r.publishSeq.Load()
		if s >= p {
			return nil, false
		}
		if r.workSeq.CompareAndSwap(s, s+1) {
			idx := s & r.mask
			var o *order.Order
			for {
				o = r.slots[idx].Load()
				if o != nil {
					break
				}
				runtime.Gosched()
			}
			r.slots[idx].Store(nil)
			return o, true
		}
	}
}

// OrderProcessed is called by a worker once it has fully dispatched a
// pulled order (inserted, matched, cancelled, or returned to its arena).
func (r *Ring) OrderProcessed() {
	r.pending.Add(-1)
}

// Pending returns the current in-flight order count.
func (r *Ring) Pending() int64 {
	return r.pending.Load()
}

// IsIdle reports pending == 0; per spec §5, a benign race barrier to use
// only after producer quiescence, not a linearizable snapshot.
func (r *Ring) IsIdle() bool {
	return r.pending.Load() == 0
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
