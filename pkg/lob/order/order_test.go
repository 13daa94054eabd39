package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeID(t *testing.T) {
	id := EncodeID(7, 123456)
	sym, seq := DecodeID(id)
	assert.Equal(t, uint16(7), sym)
	assert.Equal(t, uint64(123456), seq)
}

func TestPriceTicksRoundTrip(t *testing.T) {
	ticks := PriceToTicks(150.00, 100)
	assert.Equal(t, uint64(15000), ticks)
	assert.InDelta(t, 150.00, TicksToPrice(ticks, 100), 1e-9)

	ticks = PriceToTicks(149.995, 100)
	assert.Equal(t, uint64(15000), ticks, "round-half-to-even/away ties at the cent boundary")
}

func TestFillCASDecrementsAndRejectsOverfill(t *testing.T) {
	o := &Order{}
	o.Quantity.Store(100)

	remaining, ok := o.Fill(40)
	assert.True(t, ok)
	assert.Equal(t, int64(60), remaining)

	_, ok = o.Fill(1000)
	assert.False(t, ok, "filling more than the remaining quantity must fail")

	remaining, ok = o.Fill(60)
	assert.True(t, ok)
	assert.Equal(t, int64(0), remaining)
}
