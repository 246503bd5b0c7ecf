package smc

import (
	"sort"
	"time"
)

// Candle is a single closed OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Body returns the absolute body size.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns high-low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// BodyRatio returns body / range, 0 for a zero-range candle.
func (c Candle) BodyRatio() float64 {
	r := c.Range()
	if r <= 0 {
		return 0
	}
	return c.Body() / r
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// UpperWick returns the distance from the body top to the high.
func (c Candle) UpperWick() float64 {
	top := c.Open
	if c.Close > top {
		top = c.Close
	}
	return c.High - top
}

// LowerWick returns the distance from the body bottom to the low.
func (c Candle) LowerWick() float64 {
	bottom := c.Open
	if c.Close < bottom {
		bottom = c.Close
	}
	return bottom - c.Low
}

// SortFrame orders candles oldest-first and drops duplicate timestamps,
// keeping the last occurrence. The engine only ever sees frames in this shape.
func SortFrame(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	out := sorted[:0]
	for _, c := range sorted {
		if len(out) > 0 && out[len(out)-1].Time.Equal(c.Time) {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// AvgVolume returns the mean volume of the last n candles before index i
// (exclusive). Returns 0 when there is no history.
func AvgVolume(candles []Candle, i, n int) float64 {
	start := i - n
	if start < 0 {
		start = 0
	}
	if start >= i {
		return 0
	}
	var sum float64
	for j := start; j < i; j++ {
		sum += candles[j].Volume
	}
	return sum / float64(i-start)
}
