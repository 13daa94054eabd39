package hazard

import "unsafe"

type retired struct {
	ptr     unsafe.Pointer
	deleter func(unsafe.Pointer)
}

// RetireList is a thread-local batch of logically-deleted nodes awaiting
// reclamation. Retire appends and, once the batch reaches threshold,
// scans the whole registry and frees whatever nothing protects anymore —
// the rest stay pending for the next round (spec §4.3).
type RetireList struct {
	handle    *Handle
	pending   []retired
	threshold int
}

// NewRetireList creates a retire list scanning against handle's registry,
// batching threshold retirements before each scan.
func NewRetireList(handle *Handle, threshold int) *RetireList {
	if threshold <= 0 {
		threshold = 1
	}
	return &RetireList{handle: handle, threshold: threshold}
}

// Retire queues ptr for reclamation via deleter once no row protects it.
func (l *RetireList) Retire(ptr unsafe.Pointer, deleter func(unsafe.Pointer)) {
	l.pending = append(l.pending, retired{ptr: ptr, deleter: deleter})
	if len(l.pending) >= l.threshold {
		l.Scan()
	}
}

// Scan frees every pending node not currently protected by any hazard
// row, keeping the rest queued.
func (l *RetireList) Scan() {
	remaining := l.pending[:0]
	reg := l.handle.reg
	for _, r := range l.pending {
		if reg.IsHazard(r.ptr) {
			remaining = append(remaining, r)
		} else {
			r.deleter(r.ptr)
		}
	}
	l.pending = remaining
}

// Pending reports how many nodes are currently queued, for diagnostics.
func (l *RetireList) Pending() int {
	return len(l.pending)
}

// Drain forces every pending node through Scan repeatedly until nothing
// more can be reclaimed; used at worker shutdown.
func (l *RetireList) Drain() {
	for {
		before := len(l.pending)
		l.Scan()
		if len(l.pending) == before || len(l.pending) == 0 {
			return
		}
	}
}
