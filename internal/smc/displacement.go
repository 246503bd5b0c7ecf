package smc

import "math"

// Displacement is a run of 1–3 consecutive strong same-direction candles
// whose aggregate move clears an ATR multiple.
type Displacement struct {
	StartIndex int
	EndIndex   int
	Direction  Bias
	MovePct    float64
	Extreme    float64 // run low for bullish, run high for bearish
	Candles    int
}

// DisplacementConfig carries the thresholds a qualifying run must clear.
type DisplacementConfig struct {
	MinBodyRatio  float64
	MinSizePct    float64
	ATRMultiplier float64
	MaxBack       int // run must end within the last MaxBack candles
}

// FindDisplacement returns the most recent qualifying displacement, or nil.
// Any single candle whose range exceeds 3×ATR poisons every run containing
// it: news candles never count as displacement.
func FindDisplacement(candles []Candle, atr float64, cfg DisplacementConfig) *Displacement {
	if len(candles) < 2 || atr <= 0 {
		return nil
	}
	earliest := len(candles) - cfg.MaxBack
	if earliest < 1 {
		earliest = 1
	}
	for end := len(candles) - 1; end >= earliest; end-- {
		for n := 1; n <= 3; n++ {
			start := end - n + 1
			if start < 1 {
				break
			}
			if d := qualifyRun(candles, start, end, atr, cfg); d != nil {
				return d
			}
		}
	}
	return nil
}

func qualifyRun(candles []Candle, start, end int, atr float64, cfg DisplacementConfig) *Displacement {
	bullish := candles[start].Bullish()
	extreme := candles[start].Low
	if !bullish {
		extreme = candles[start].High
	}
	for i := start; i <= end; i++ {
		c := candles[i]
		if c.Bullish() != bullish || c.BodyRatio() < cfg.MinBodyRatio {
			return nil
		}
		if c.Range() > 3*atr {
			return nil // volatile candle, not displacement
		}
		if bullish && c.Low < extreme {
			extreme = c.Low
		}
		if !bullish && c.High > extreme {
			extreme = c.High
		}
	}
	move := math.Abs(candles[end].Close - candles[start].Open)
	if move < atr*cfg.ATRMultiplier {
		return nil
	}
	ref := candles[start].Open
	if ref <= 0 || move/ref < cfg.MinSizePct {
		return nil
	}
	if avg := AvgVolume(candles, start, 20); avg > 0 && candles[start].Volume < 0.8*avg {
		return nil
	}
	dir := BiasLong
	if !bullish {
		dir = BiasShort
	}
	return &Displacement{
		StartIndex: start,
		EndIndex:   end,
		Direction:  dir,
		MovePct:    move / ref,
		Extreme:    extreme,
		Candles:    end - start + 1,
	}
}
