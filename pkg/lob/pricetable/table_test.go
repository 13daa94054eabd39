package pricetable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/lobcore/pkg/lob/level"
)

func TestInstallThenLookup(t *testing.T) {
	tbl := New(16)

	lvl := level.New(10050)
	got, won := tbl.Install(10050, lvl)
	require.True(t, won)
	assert.Same(t, lvl, got)

	found, ok := tbl.Lookup(10050)
	require.True(t, ok)
	assert.Same(t, lvl, found)

	assert.False(t, tbl.IsActive(99999))
}

func TestInstallRaceSecondCallerLoses(t *testing.T) {
	tbl := New(16)

	l1 := level.New(500)
	l2 := level.New(500)

	got1, won1 := tbl.Install(500, l1)
	got2, won2 := tbl.Install(500, l2)

	assert.True(t, won1)
	assert.False(t, won2)
	assert.Same(t, l1, got1)
	assert.Same(t, l1, got2, "the losing caller must be handed back the winning level")
}

func TestConcurrentInstallSameTickOnlyOneWinner(t *testing.T) {
	tbl := New(64)
	const n = 32
	results := make([]*level.PriceLevel, n)
	wins := make([]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lvl := level.New(777)
			results[i], wins[i] = tbl.Install(777, lvl)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < n; i++ {
		if wins[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i], "every caller must observe the same winning level")
	}
}

func TestDistinctTicksDoNotCollideLogically(t *testing.T) {
	tbl := New(16)
	levels := make(map[int64]*level.PriceLevel)
	for _, ticks := range []int64{100, 200, 300, 400, 500} {
		lvl := level.New(ticks)
		got, won := tbl.Install(ticks, lvl)
		require.True(t, won)
		levels[ticks] = got
	}
	for ticks, want := range levels {
		got, ok := tbl.Lookup(ticks)
		require.True(t, ok)
		assert.Same(t, want, got)
	}
}
