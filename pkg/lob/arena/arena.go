// Package arena implements the per-worker bump-then-return memory arena
// described in spec §4.1: a fixed-size pool of N slots local to one owner
// goroutine, plus a bounded MPSC channel (remotefree.go) that lets any
// other goroutine return a slot without contending with the owner.
//
// Go has no portable notion of "the calling thread", so where the spec's
// MemoryArena dispatches deallocate() on caller identity, this package
// exposes the two paths explicitly: Free is for the goroutine that created
// the Arena (wait-free, no atomics), FreeRemote is for everyone else
// (lock-free, bounded, may report failure under backpressure).
package arena

// slot is one arena cell: a value plus an intrusive free-list link.
type slot[T any] struct {
	value T
	next  int32
}

// Arena is a fixed-capacity pool of T, owned by exactly one goroutine.
type Arena[T any] struct {
	slots    []slot[T]
	freeHead int32 // -1 == empty
	remote   *remoteFree
}

const freeListEnd = -1

// New creates an Arena with capacity slots, each pre-linked into a LIFO
// free list so the first N allocations reuse cache-hot memory in
// allocation order.
func New[T any](capacity int) *Arena[T] {
	if capacity <= 0 {
		capacity = 1
	}
	slots := make([]slot[T], capacity)
	for i := range slots {
		if i == capacity-1 {
			slots[i].next = freeListEnd
		} else {
			slots[i].next = int32(i + 1)
		}
	}
	return &Arena[T]{
		slots:    slots,
		freeHead: 0,
		remote:   newRemoteFree(capacity),
	}
}

// Allocate returns a pointer into the arena's backing storage plus its
// slot index, draining the remote-free channel first if the local
// free list is empty. Owner-goroutine only; wait-free on the fast path.
func (a *Arena[T]) Allocate() (*T, int32, bool) {
	if a.freeHead == freeListEnd {
		a.DrainRemoteFree()
		if a.freeHead == freeListEnd {
			return nil, freeListEnd, false
		}
	}
	idx := a.freeHead
	s := &a.slots[idx]
	a.freeHead = s.next
	var zero T
	s.value = zero
	return &s.value, idx, true
}

// Free returns slot to the local LIFO free list. Owner-goroutine only.
func (a *Arena[T]) Free(slotIdx int32) {
	a.slots[slotIdx].next = a.freeHead
	a.freeHead = slotIdx
}

// FreeRemote returns slot from any goroutine other than the owner. It
// reports false if the remote-free ring is momentarily full; the caller
// is expected to yield and retry (spec §4.2/§7.5 — backpressure, not an
// error).
func (a *Arena[T]) FreeRemote(slotIdx int32) bool {
	return a.remote.push(slotIdx)
}

// DrainRemoteFree moves every pending remote return onto the local free
// list. Owner-goroutine only. Returns the number of slots drained.
func (a *Arena[T]) DrainRemoteFree() int {
	n := 0
	for {
		idx, ok := a.remote.pop()
		if !ok {
			break
		}
		a.Free(idx)
		n++
	}
	return n
}

// At returns a pointer to the slot's value without any ownership checks;
// callers use it to dereference a slot index recovered from a node/order
// back-reference.
func (a *Arena[T]) At(slotIdx int32) *T {
	return &a.slots[slotIdx].value
}

// Cap returns the arena's fixed capacity.
func (a *Arena[T]) Cap() int {
	return len(a.slots)
}

// RemoteDepth reports how many slots are currently queued in the
// remote-free channel, for metrics.Registry.SetRemoteFreeDepth.
func (a *Arena[T]) RemoteDepth() int {
	return a.remote.depth()
}
