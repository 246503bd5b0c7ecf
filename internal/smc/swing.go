package smc

import "sort"

type SwingKind string

const (
	SwingHigh SwingKind = "HIGH"
	SwingLow  SwingKind = "LOW"
)

type Fractal string

const (
	FractalMajor    Fractal = "MAJOR"
	FractalInternal Fractal = "INTERNAL"
)

// Swing is a local extremum in a frame. Swings are recomputed per frame and
// never persisted.
type Swing struct {
	Index   int
	Price   float64
	Kind    SwingKind
	Fractal Fractal
}

// DetectSwings finds swing highs and lows with the given lookback. A MAJOR
// swing strictly dominates lookback candles on each side. When majors are
// scarce (< 2 per side) 3-bar INTERNAL fractals fill in, skipping candidates
// within 2 candles of an accepted major. Both slices are chronological.
func DetectSwings(candles []Candle, lookback int) (highs, lows []Swing) {
	if lookback < 1 || len(candles) < 2*lookback+1 {
		return nil, nil
	}

	for i := lookback; i < len(candles)-lookback; i++ {
		if isLocalHigh(candles, i, lookback) {
			highs = append(highs, Swing{Index: i, Price: candles[i].High, Kind: SwingHigh, Fractal: FractalMajor})
		}
		if isLocalLow(candles, i, lookback) {
			lows = append(lows, Swing{Index: i, Price: candles[i].Low, Kind: SwingLow, Fractal: FractalMajor})
		}
	}

	if len(highs) < 2 {
		highs = appendInternals(candles, highs, SwingHigh)
	}
	if len(lows) < 2 {
		lows = appendInternals(candles, lows, SwingLow)
	}
	return highs, lows
}

func isLocalHigh(candles []Candle, i, lookback int) bool {
	for d := 1; d <= lookback; d++ {
		if candles[i].High <= candles[i-d].High || candles[i].High <= candles[i+d].High {
			return false
		}
	}
	return true
}

func isLocalLow(candles []Candle, i, lookback int) bool {
	for d := 1; d <= lookback; d++ {
		if candles[i].Low >= candles[i-d].Low || candles[i].Low >= candles[i+d].Low {
			return false
		}
	}
	return true
}

func appendInternals(candles []Candle, majors []Swing, kind SwingKind) []Swing {
	out := majors
	for i := 1; i < len(candles)-1; i++ {
		var ok bool
		var price float64
		if kind == SwingHigh {
			ok = candles[i].High > candles[i-1].High && candles[i].High > candles[i+1].High
			price = candles[i].High
		} else {
			ok = candles[i].Low < candles[i-1].Low && candles[i].Low < candles[i+1].Low
			price = candles[i].Low
		}
		if !ok || nearMajor(majors, i) {
			continue
		}
		out = append(out, Swing{Index: i, Price: price, Kind: kind, Fractal: FractalInternal})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

func nearMajor(majors []Swing, i int) bool {
	for _, m := range majors {
		if i >= m.Index-2 && i <= m.Index+2 {
			return true
		}
	}
	return false
}
