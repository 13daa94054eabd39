package arena

import "sync/atomic"

// remoteFree is a bounded MPSC ring carrying slot indices from any
// goroutine back to an Arena's single owner (spec §4.2). Capacity is
// rounded up to the next power of two so index-to-cell mapping is a mask,
// not a modulo.
//
// Producers claim a position with head.Add(1), then CAS that cell from
// empty (-1) to the slot index. A failed CAS means the consumer hasn't
// drained an earlier lap yet — the ring is momentarily full and push
// reports false; the caller is expected to retry with a fresh push (spec
// §7.5 treats this as backpressure, not an error).
type remoteFree struct {
	mask uint64
	cell []atomic.Int32
	head atomic.Uint64
	tail atomic.Uint64
}

const emptyCell = -1

func newRemoteFree(minCapacity int) *remoteFree {
	cap := nextPowerOfTwo(minCapacity)
	rf := &remoteFree{
		mask: uint64(cap - 1),
		cell: make([]atomic.Int32, cap),
	}
	for i := range rf.cell {
		rf.cell[i].Store(emptyCell)
	}
	return rf
}

func (r *remoteFree) push(slotIdx int32) bool {
	pos := r.head.Add(1) - 1
	c := &r.cell[pos&r.mask]
	return c.CompareAndSwap(emptyCell, slotIdx)
}

func (r *remoteFree) pop() (int32, bool) {
	pos := r.tail.Load()
	c := &r.cell[pos&r.mask]
	v := c.Load()
	if v == emptyCell {
		return 0, false
	}
	if !c.CompareAndSwap(v, emptyCell) {
		return 0, false
	}
	r.tail.Add(1)
	return v, true
}

// depth is an approximation (head-tail), safe for metrics only.
func (r *remoteFree) depth() int {
	h := r.head.Load()
	t := r.tail.Load()
	if h < t {
		return 0
	}
	return int(h - t)
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
