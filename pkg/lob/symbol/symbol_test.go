package symbol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSymbolSentinels(t *testing.T) {
	s := New(1, "TEST", 16)
	assert.Equal(t, NoBid, s.BestBid())
	assert.Equal(t, NoAsk, s.BestAsk())
}

func TestUpdateBestBidOnlyImproves(t *testing.T) {
	s := New(1, "TEST", 16)
	s.UpdateBestBid(15000)
	assert.Equal(t, uint64(15000), s.BestBid())

	s.UpdateBestBid(14000) // worse price, must not move the best
	assert.Equal(t, uint64(15000), s.BestBid())

	s.UpdateBestBid(15500)
	assert.Equal(t, uint64(15500), s.BestBid())
}

func TestUpdateBestAskOnlyImproves(t *testing.T) {
	s := New(1, "TEST", 16)
	s.UpdateBestAsk(15000)
	assert.Equal(t, uint64(15000), s.BestAsk())

	s.UpdateBestAsk(15500) // worse price for a seller, must not move
	assert.Equal(t, uint64(15000), s.BestAsk())

	s.UpdateBestAsk(14800)
	assert.Equal(t, uint64(14800), s.BestAsk())
}

func TestConcurrentUpdateBestBidConvergesToMax(t *testing.T) {
	s := New(1, "TEST", 16)
	var wg sync.WaitGroup
	for i := uint64(1); i <= 100; i++ {
		wg.Add(1)
		go func(tick uint64) {
			defer wg.Done()
			s.UpdateBestBid(tick)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, uint64(100), s.BestBid())
}

func TestStatsCounters(t *testing.T) {
	s := New(1, "TEST", 16)
	s.RecordAccepted()
	s.RecordAccepted()
	s.RecordCancelled()
	s.RecordFilled()

	st := s.Stats()
	assert.Equal(t, uint64(2), st.OrdersAccepted)
	assert.Equal(t, uint64(1), st.OrdersCancelled)
	assert.Equal(t, uint64(1), st.OrdersFilled)
}
