// Package deque implements the lock-free doubly-linked FIFO used as the
// order queue at each price level, following Sundell & Tsigas (OPODIS'04)
// as described in spec §4.4.
//
// Go gives no safe way to steal a pointer's low bit for a deletion mark —
// the garbage collector only recognizes a word as a live reference when it
// looks like an ordinary pointer, so any bit-tagging trick that survives a
// GC safepoint is unsound. This package instead pairs every prev/next
// pointer with its mark inside a small immutable markedPtr, itself swapped
// with a single atomic.Pointer CAS; that is the adaptation spec §9
// anticipates for targets without raw pointer tagging ("an atomic-wide
// cell holding the pair").
package deque

import (
	"sync/atomic"
	"unsafe"

	"github.com/abdoElHodaky/lobcore/pkg/lob/arena"
	"github.com/abdoElHodaky/lobcore/pkg/lob/hazard"
)

type markedPtr struct {
	node *Node
	mark bool
}

func newMarked(n *Node, mark bool) *markedPtr {
	return &markedPtr{node: n, mark: mark}
}

// Node is one deque element. Value is opaque to this package (an *Order
// in practice); OwnerWorker/Slot identify the arena slot backing it, used
// by the caller's Delete callback to route reclamation to the right
// worker's node arena.
type Node struct {
	prev atomic.Pointer[markedPtr]
	next atomic.Pointer[markedPtr]

	Value       unsafe.Pointer
	OwnerWorker int32
	Slot        int32
}

// Deque is a lock-free FIFO with two permanent sentinels. Sentinels are
// never pooled or retired.
type Deque struct {
	head *Node
	tail *Node
}

// New returns an empty deque.
func New() *Deque {
	head := &Node{OwnerWorker: -1, Slot: -1}
	tail := &Node{OwnerWorker: -1, Slot: -1}
	head.next.Store(newMarked(tail, false))
	head.prev.Store(newMarked(nil, false))
	tail.prev.Store(newMarked(head, false))
	tail.next.Store(newMarked(nil, false))
	return &Deque{head: head, tail: tail}
}

// Ctx bundles everything one deque operation needs from its caller: the
// calling worker's hazard handle and retire list, the node arena new
// nodes are allocated from, and the worker's own id so retired nodes can
// be tagged with their birth arena.
type Ctx struct {
	Hazard    *hazard.Handle
	Retire    *hazard.RetireList
	NodeArena *arena.Arena[Node]
	WorkerID  int32

	// Delete reclaims a node once the retire list proves it safe; the
	// caller routes this to NodeArena.Free (if n.OwnerWorker == WorkerID)
	// or to the owning worker's NodeArena.FreeRemote otherwise.
	Delete func(n *Node)
}

func guard(c *Ctx, n *Node) int {
	if n == nil {
		return -1
	}
	return c.Hazard.Protect(unsafe.Pointer(n))
}

func unguard(c *Ctx, cell int) {
	c.Hazard.Unprotect(cell)
}

// Empty reports whether the deque currently holds no live nodes. Racy by
// construction under concurrent mutation — same caveat as spec's is_idle.
func (d *Deque) Empty() bool {
	return d.head.next.Load().node == d.tail
}

// PushRight appends value as the new tail-most node (spec §4.4
// push_right), used when a fresh order rests at the back of its price
// level's queue.
func (d *Deque) PushRight(c *Ctx, value unsafe.Pointer) *Node {
	n, slot, ok := c.NodeArena.Allocate()
	if !ok {
		return nil
	}
	n.Value = value
	n.OwnerWorker = c.WorkerID
	n.Slot = slot

	for {
		prevMarked := d.tail.prev.Load()
		prev := prevMarked.node
		cell := guard(c, prev)
		if d.tail.prev.Load() != prevMarked {
			unguard(c, cell)
			continue
		}

		oldNext := prev.next.Load()
		if oldNext.node != d.tail || oldNext.mark {
			unguard(c, cell)
			prev = d.helpInsert(c, prev, d.tail)
			continue
		}

		n.next.Store(newMarked(d.tail, false))
		n.prev.Store(newMarked(prev, false))

		if prev.next.CompareAndSwap(oldNext, newMarked(n, false)) {
			unguard(c, cell)
			d.pushRightCommon(n)
			return n
		}
		unguard(c, cell)
	}
}

func (d *Deque) pushRightCommon(n *Node) {
	for {
		tailPrev := d.tail.prev.Load()
		myPrev := n.prev.Load()
		if myPrev.node == nil || n.next.Load().node != d.tail {
			return
		}
		if tailPrev.node != myPrev.node {
			return
		}
		if d.tail.prev.CompareAndSwap(tailPrev, newMarked(n, false)) {
			return
		}
	}
}

// PushLeft inserts value as the new head-most node (spec §4.4
// push_left), used to re-insert a partially-filled maker at the front of
// its queue so it keeps price-time priority over later arrivals.
func (d *Deque) PushLeft(c *Ctx, value unsafe.Pointer) *Node {
	n, slot, ok := c.NodeArena.Allocate()
	if !ok {
		return nil
	}
	n.Value = value
	n.OwnerWorker = c.WorkerID
	n.Slot = slot

	for {
		nextMarked := d.head.next.Load()
		next := nextMarked.node
		cell := guard(c, next)
		if d.head.next.Load() != nextMarked {
			unguard(c, cell)
			continue
		}

		n.prev.Store(newMarked(d.head, false))
		n.next.Store(newMarked(next, false))

		if d.head.next.CompareAndSwap(nextMarked, newMarked(n, false)) {
			unguard(c, cell)
			d.pushLeftCommon(n, next)
			return n
		}
		unguard(c, cell)
	}
}

func (d *Deque) pushLeftCommon(n, next *Node) {
	for {
		cur := next.prev.Load()
		if cur.mark || cur.node != d.head {
			return
		}
		if next.prev.CompareAndSwap(cur, newMarked(n, false)) {
			return
		}
	}
}

// PopLeft removes and returns the oldest (front-most) value, or nil if
// the deque is empty (spec §4.4 pop_left) — the matcher's normal taker
// path walks resting orders in time priority via repeated PopLeft.
func (d *Deque) PopLeft(c *Ctx) unsafe.Pointer {
	for {
		nextMarked := d.head.next.Load()
		next := nextMarked.node
		if next == d.tail {
			return nil
		}
		cell := guard(c, next)
		if d.head.next.Load() != nextMarked {
			unguard(c, cell)
			continue
		}

		nextNext := next.next.Load()
		if nextNext.mark {
			d.helpDelete(c, next)
			unguard(c, cell)
			continue
		}

		if next.next.CompareAndSwap(nextNext, newMarked(nextNext.node, true)) {
			value := next.Value
			d.helpDelete(c, next)
			d.removeCrossReference(next)
			unguard(c, cell)
			d.retire(c, next)
			return value
		}
		unguard(c, cell)
	}
}

// PopRight removes and returns the newest (back-most) value, or nil if
// empty — the mirror of PopLeft. The matching worker does not call it;
// cancels go through RemoveNode.
func (d *Deque) PopRight(c *Ctx) unsafe.Pointer {
	for {
		prevMarked := d.tail.prev.Load()
		prev := prevMarked.node
		if prev == d.head {
			return nil
		}
		cell := guard(c, prev)
		if d.tail.prev.Load() != prevMarked {
			unguard(c, cell)
			continue
		}

		curNext := prev.next.Load()
		if curNext.mark {
			d.helpDelete(c, prev)
			unguard(c, cell)
			continue
		}

		if prev.next.CompareAndSwap(curNext, newMarked(curNext.node, true)) {
			value := prev.Value
			d.helpDelete(c, prev)
			d.helpInsert(c, prev.prev.Load().node, d.tail)
			d.removeCrossReference(prev)
			unguard(c, cell)
			d.retire(c, prev)
			return value
		}
		unguard(c, cell)
	}
}

// RemoveNode logically deletes an arbitrary live node n (spec §4.4
// remove_node), used by cancel_order to pull an order out of the middle
// of its price level's queue. Returns n's value, or nil if n was already
// removed by a concurrent pop/cancel.
func (d *Deque) RemoveNode(c *Ctx, n *Node) unsafe.Pointer {
	for {
		cur := n.next.Load()
		if cur.mark {
			return nil
		}
		if n.next.CompareAndSwap(cur, newMarked(cur.node, true)) {
			value := n.Value
			d.helpDelete(c, n)
			d.removeCrossReference(n)
			d.retire(c, n)
			return value
		}
	}
}

// helpDelete finishes unlinking a node whose next pointer is already
// marked: it marks prev too, then splices prev.next past n (spec §4.4
// help_delete). Idempotent — safe to call from multiple racing
// goroutines.
func (d *Deque) helpDelete(c *Ctx, n *Node) {
	for {
		cur := n.prev.Load()
		if cur.mark {
			break
		}
		if n.prev.CompareAndSwap(cur, newMarked(cur.node, true)) {
			break
		}
	}

	last := n.prev.Load().node
	next := n.next.Load().node

	for last != next && last != nil && next != nil {
		nextNext := next.next.Load()
		if nextNext.mark {
			next = nextNext.node
			continue
		}
		lastNext := last.next.Load()
		if lastNext.mark {
			last = last.prev.Load().node
			continue
		}
		if lastNext.node != n {
			last = d.helpInsert(c, last, n)
			continue
		}
		if last.next.CompareAndSwap(lastNext, newMarked(next, false)) {
			break
		}
	}
}

// helpInsert walks forward from prev until it finds the node whose
// unmarked next is n, then fixes n.prev to point at it (spec §4.4
// help_insert). Used by push_right/help_delete to repair stale
// back-pointers left behind by a concurrent mutation.
func (d *Deque) helpInsert(c *Ctx, prev, n *Node) *Node {
	last := prev
	for {
		if last == nil {
			return prev
		}
		lastNext := last.next.Load()
		if lastNext.mark {
			p := last.prev.Load().node
			if p == nil {
				return last
			}
			last = p
			continue
		}
		if lastNext.node != n {
			if lastNext.node == d.tail {
				return last
			}
			last = lastNext.node
			continue
		}
		cur := n.prev.Load()
		if !cur.mark && cur.node == last {
			return last
		}
		if n.prev.CompareAndSwap(cur, newMarked(last, false)) {
			if !last.next.Load().mark {
				return last
			}
		}
	}
}

// removeCrossReference breaks the prev/next links a deleted node would
// otherwise keep pointing at its former (also possibly deleted)
// neighbours, so hazard pointers stop finding a path to it (spec §4.4).
// Best-effort and bounded: a stuck chain just means the node survives an
// extra retire cycle, never corruption.
func (d *Deque) removeCrossReference(n *Node) {
	for i := 0; i < 64; i++ {
		progressed := false

		prev := n.prev.Load()
		if prev.node != nil && prev.node != d.head {
			if prev.node.next.Load().mark {
				n.prev.Store(newMarked(prev.node.prev.Load().node, true))
				progressed = true
			}
		}
		next := n.next.Load()
		if next.node != nil && next.node != d.tail {
			if next.node.prev.Load().mark {
				n.next.Store(newMarked(next.node.next.Load().node, true))
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (d *Deque) retire(c *Ctx, n *Node) {
	c.Retire.Retire(unsafe.Pointer(n), func(ptr unsafe.Pointer) {
		c.Delete((*Node)(ptr))
	})
}
