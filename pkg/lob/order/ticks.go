package order

import "math"

// PriceToTicks converts a decimal price into the integer tick
// representation the matcher operates on (spec §3: ticks =
// round(price*precision)). precision is typically 100 (cent-level).
func PriceToTicks(price float64, precision int64) uint64 {
	return uint64(math.Round(price * float64(precision)))
}

// TicksToPrice is PriceToTicks's inverse, used when reporting fills back
// to a caller.
func TicksToPrice(ticks uint64, precision int64) float64 {
	return float64(ticks) / float64(precision)
}
