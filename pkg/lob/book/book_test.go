package book

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/lobcore/pkg/config"
	"github.com/abdoElHodaky/lobcore/pkg/lob/order"
	"github.com/abdoElHodaky/lobcore/pkg/lob/worker"
	"github.com/abdoElHodaky/lobcore/pkg/logging"
	"github.com/abdoElHodaky/lobcore/pkg/metrics"
)

func testConfig() *config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.NumWorkers = 2
	cfg.MaxSymbols = 8
	cfg.MaxOrders = 4096
	cfg.RingSize = 1024
	cfg.NumBuckets = 256
	cfg.MaxHazardThreads = 8
	return cfg
}

func newTestBook(t *testing.T, trades worker.TradeSink) *Book {
	t.Helper()
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
	return New(cfg, logging.NewNop(), metrics.New(false), trades)
}

func waitIdle(t *testing.T, b *Book) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, b.WaitIdle(ctx, time.Millisecond))
}

func TestRegisterSymbolIsIdempotent(t *testing.T) {
	b := newTestBook(t, nil)
	id1, err := b.RegisterSymbol("AAPL")
	require.NoError(t, err)
	id2, err := b.RegisterSymbol("AAPL")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := b.RegisterSymbol("MSFT")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestRegisterSymbolRejectsPastCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSymbols = 1
	b := New(cfg, logging.NewNop(), metrics.New(false), nil)

	_, err := b.RegisterSymbol("AAPL")
	require.NoError(t, err)

	_, err = b.RegisterSymbol("MSFT")
	require.Error(t, err)
}

func TestSubmitOrderRejectsUnknownSymbol(t *testing.T) {
	b := newTestBook(t, nil)
	_, _, ok := b.SubmitOrder(1, 99, order.Buy, 100, 150.00)
	assert.False(t, ok)
}

func TestSubmitOrderRejectsInvalidQuantityAndPrice(t *testing.T) {
	b := newTestBook(t, nil)
	id, err := b.RegisterSymbol("AAPL")
	require.NoError(t, err)

	_, _, ok := b.SubmitOrder(1, id, order.Buy, 0, 150.00)
	assert.False(t, ok)

	_, _, ok = b.SubmitOrder(1, id, order.Buy, 100, 0)
	assert.False(t, ok)
}

func TestSubmitOrderMatchesAcrossWorkers(t *testing.T) {
	var mu sync.Mutex
	var trades []worker.TradeReport
	b := newTestBook(t, func(tr worker.TradeReport) {
		mu.Lock()
		defer mu.Unlock()
		trades = append(trades, tr)
	})
	id, err := b.RegisterSymbol("AAPL")
	require.NoError(t, err)

	b.Start()
	defer b.Shutdown()

	_, buyRef, ok := b.SubmitOrder(1, id, order.Buy, 100, 150.00)
	require.True(t, ok)

	_, _, ok = b.SubmitOrder(2, id, order.Sell, 100, 150.00)
	require.True(t, ok)

	waitIdle(t, b)

	assert.Equal(t, int64(0), buyRef.RemainingQuantity())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, trades, 1)
	assert.Equal(t, int64(100), trades[0].Quantity)
	assert.NotEmpty(t, trades[0].ID)
}

func TestCancelOrderRoundTrip(t *testing.T) {
	b := newTestBook(t, nil)
	id, err := b.RegisterSymbol("AAPL")
	require.NoError(t, err)

	b.Start()
	defer b.Shutdown()

	_, ref, ok := b.SubmitOrder(1, id, order.Buy, 100, 150.00)
	require.True(t, ok)
	waitIdle(t, b)
	require.Equal(t, order.StateResting, order.State(ref.State.Load()))

	assert.True(t, b.CancelOrder(ref))
	waitIdle(t, b)
	assert.Equal(t, order.StateCancelled, order.State(ref.State.Load()))

	stats, ok := b.SymbolStats(id)
	require.True(t, ok)
	assert.EqualValues(t, 1, stats.OrdersAccepted)
	assert.EqualValues(t, 1, stats.OrdersCancelled)
}

func TestCancelOrderRejectsNonResting(t *testing.T) {
	b := newTestBook(t, nil)
	id, err := b.RegisterSymbol("AAPL")
	require.NoError(t, err)

	b.Start()
	defer b.Shutdown()

	_, buyRef, ok := b.SubmitOrder(1, id, order.Buy, 100, 150.00)
	require.True(t, ok)
	_, _, ok = b.SubmitOrder(2, id, order.Sell, 100, 150.00)
	require.True(t, ok)
	waitIdle(t, b)

	require.Equal(t, order.StateFilled, order.State(buyRef.State.Load()))
	assert.False(t, b.CancelOrder(buyRef))
}

func TestSymbolStatsUnknownSymbol(t *testing.T) {
	b := newTestBook(t, nil)
	_, ok := b.SymbolStats(123)
	assert.False(t, ok)
}

func TestWaitIdleTimesOutWhileBacklogged(t *testing.T) {
	b := newTestBook(t, nil)
	id, err := b.RegisterSymbol("AAPL")
	require.NoError(t, err)
	// Workers are never started, so the ring never drains.
	_, _, ok := b.SubmitOrder(1, id, order.Buy, 100, 150.00)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, b.WaitIdle(ctx, time.Millisecond))
}
