package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocateFreeReuse(t *testing.T) {
	a := New[int](4)

	p1, s1, ok := a.Allocate()
	require.True(t, ok)
	*p1 = 42

	p2, s2, ok := a.Allocate()
	require.True(t, ok)
	assert.NotEqual(t, s1, s2)
	*p2 = 7

	a.Free(s1)
	p3, s3, ok := a.Allocate()
	require.True(t, ok)
	assert.Equal(t, s1, s3, "LIFO free list should hand back the most recently freed slot")
	assert.Equal(t, 0, *p3, "reused slot value is reset to zero")
}

func TestArenaExhaustion(t *testing.T) {
	a := New[int](2)

	_, _, ok := a.Allocate()
	require.True(t, ok)
	_, _, ok = a.Allocate()
	require.True(t, ok)

	_, _, ok = a.Allocate()
	assert.False(t, ok, "allocate must fail once capacity is exhausted and nothing is pending remote-free")
}

func TestArenaRemoteFreeDrainedOnAllocate(t *testing.T) {
	a := New[int](2)

	_, s1, ok := a.Allocate()
	require.True(t, ok)
	_, _, ok = a.Allocate()
	require.True(t, ok)

	require.True(t, a.FreeRemote(s1))

	_, _, ok = a.Allocate()
	require.True(t, ok, "allocate should drain the remote-free channel when the local free list is empty")
}

func TestArenaConcurrentRemoteFree(t *testing.T) {
	const capacity = 256
	a := New[int](capacity)

	slots := make([]int32, 0, capacity)
	for {
		_, s, ok := a.Allocate()
		if !ok {
			break
		}
		slots = append(slots, s)
	}
	require.Len(t, slots, capacity)

	var wg sync.WaitGroup
	for _, s := range slots {
		wg.Add(1)
		go func(slot int32) {
			defer wg.Done()
			for !a.FreeRemote(slot) {
			}
		}(s)
	}
	wg.Wait()

	drained := a.DrainRemoteFree()
	assert.Equal(t, capacity, drained)
}
