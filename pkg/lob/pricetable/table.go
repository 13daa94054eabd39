// Package pricetable implements the open-addressed, linear-probe price
// table that maps a tick price to its PriceLevel (spec §4.5). Slots are
// install-once: once a tick's bucket is claimed it is never cleared, so
// lookups after a successful install never race against removal.
package pricetable

import (
	"sync/atomic"

	"github.com/abdoElHodaky/lobcore/pkg/lob/level"
)

const emptyKey = int64(-1) << 63 // math.MinInt64; no valid tick price reaches it.

type bucket struct {
	key   atomic.Int64
	level atomic.Pointer[level.PriceLevel]
}

// Table is a fixed-capacity, power-of-two-sized open-addressed map from
// tick price to *level.PriceLevel.
type Table struct {
	buckets []bucket
	mask    uint64
}

// New creates a Table with numBuckets slots. numBuckets must be a power
// of two (config.EngineConfig.Validate enforces this).
func New(numBuckets int) *Table {
	buckets := make([]bucket, numBuckets)
	for i := range buckets {
		buckets[i].key.Store(emptyKey)
	}
	return &Table{buckets: buckets, mask: uint64(numBuckets - 1)}
}

// fibonacciHash spreads tick values across buckets; ticks arrive in tight
// price-sorted clusters, so a plain modulo would pack them into runs.
func (t *Table) fibonacciHash(ticks int64) uint64 {
	const multiplier = 0x9E3779B97F4A7C15
	return (uint64(ticks) * multiplier) >> 1 & t.mask
}

// Lookup returns the installed level for ticks, or (nil, false) if no
// order has ever rested at that price.
func (t *Table) Lookup(ticks int64) (*level.PriceLevel, bool) {
	idx := t.fibonacciHash(ticks)
	n := uint64(len(t.buckets))
	for probe := uint64(0); probe < n; probe++ {
		b := &t.buckets[(idx+probe)&t.mask]
		k := b.key.Load()
		if k == emptyKey {
			return nil, false
		}
		if k == ticks {
			return t.waitForLevel(b), true
		}
	}
	return nil, false
}

// waitForLevel spins the short window between a bucket's key being
// claimed and its level pointer being published (Install below).
func (t *Table) waitForLevel(b *bucket) *level.PriceLevel {
	for {
		if lvl := b.level.Load(); lvl != nil {
			return lvl
		}
	}
}

// Install tries to claim ticks's bucket for lvl. It returns the level
// actually bound to ticks (lvl if this call won, the existing one
// otherwise) and whether this call was the winner. A false/nil result
// with no existing level means the table is full (spec's resource
// exhaustion path — callers treat this like ErrTooManySymbols for price
// levels and reject the order).
func (t *Table) Install(ticks int64, lvl *level.PriceLevel) (*level.PriceLevel, bool) {
	idx := t.fibonacciHash(ticks)
	n := uint64(len(t.buckets))
	for probe := uint64(0); probe < n; probe++ {
		b := &t.buckets[(idx+probe)&t.mask]
		k := b.key.Load()
		if k == ticks {
			return t.waitForLevel(b), false
		}
		if k == emptyKey {
			if b.key.CompareAndSwap(emptyKey, ticks) {
				b.level.Store(lvl)
				return lvl, true
			}
			k = b.key.Load()
			if k == ticks {
				return t.waitForLevel(b), false
			}
			// another ticks value won this bucket's race; keep probing.
			continue
		}
	}
	return nil, false
}

// IsActive reports whether ticks currently has an installed level.
func (t *Table) IsActive(ticks int64) bool {
	_, ok := t.Lookup(ticks)
	return ok
}

// Cap returns the table's fixed bucket count.
func (t *Table) Cap() int {
	return len(t.buckets)
}
