package hazard

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExhaustsRows(t *testing.T) {
	reg := NewRegistry(2, 4)

	h1, ok := reg.Acquire()
	require.True(t, ok)
	h2, ok := reg.Acquire()
	require.True(t, ok)

	_, ok = reg.Acquire()
	assert.False(t, ok, "acquiring a third row must fail once both rows are claimed")

	h1.Release()
	h3, ok := reg.Acquire()
	assert.True(t, ok, "releasing a row must make it claimable again")
	_ = h2
	_ = h3
}

func TestProtectIsHazard(t *testing.T) {
	reg := NewRegistry(1, 4)
	h, ok := reg.Acquire()
	require.True(t, ok)

	var x int
	ptr := unsafe.Pointer(&x)

	assert.False(t, reg.IsHazard(ptr))
	cell := h.Protect(ptr)
	assert.True(t, reg.IsHazard(ptr))
	h.Unprotect(cell)
	assert.False(t, reg.IsHazard(ptr))
}

func TestRetireListDefersProtectedNode(t *testing.T) {
	reg := NewRegistry(2, 4)
	owner, ok := reg.Acquire()
	require.True(t, ok)
	reader, ok := reg.Acquire()
	require.True(t, ok)

	rl := NewRetireList(owner, 1)

	var x int
	ptr := unsafe.Pointer(&x)
	cell := reader.Protect(ptr)

	freed := false
	rl.Retire(ptr, func(unsafe.Pointer) { freed = true })
	assert.False(t, freed, "a node still protected by another row must not be reclaimed")

	reader.Unprotect(cell)
	rl.Scan()
	assert.True(t, freed, "once unprotected, the next scan must reclaim the node")
}

func TestIsHazardConcurrentReaders(t *testing.T) {
	reg := NewRegistry(8, 4)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, ok := reg.Acquire()
			if !ok {
				return
			}
			defer h.Release()
			var x int
			cell := h.Protect(unsafe.Pointer(&x))
			assert.True(t, reg.IsHazard(unsafe.Pointer(&x)))
			h.Unprotect(cell)
		}()
	}
	wg.Wait()
}
