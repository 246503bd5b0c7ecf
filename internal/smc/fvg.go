package smc

type FVGState string

const (
	FVGFresh   FVGState = "FRESH"
	FVGPartial FVGState = "PARTIAL"
	FVGFull    FVGState = "FULL"
)

// FVG is a fair-value gap: a three-candle window where the outer wicks do not
// overlap. Fill state progresses FRESH → PARTIAL → FULL; fully filled gaps
// are not returned.
type FVG struct {
	Index   int // middle candle
	High    float64
	Low     float64
	CE      float64
	Kind    Bias
	Age     int
	State   FVGState
	SizePct float64
}

// FindFVGs returns unfilled fair-value gaps within the age window, oldest
// first. Gap size is measured against the middle candle's close.
func FindFVGs(candles []Candle, minSizePct float64, maxAge int) []FVG {
	if len(candles) < 3 {
		return nil
	}
	var gaps []FVG
	start := len(candles) - 1 - maxAge
	if start < 1 {
		start = 1
	}
	for i := start; i < len(candles)-1; i++ {
		ref := candles[i].Close
		if ref <= 0 {
			continue
		}
		if gap := candles[i+1].Low - candles[i-1].High; gap > 0 && gap/ref >= minSizePct {
			f := FVG{
				Index:   i,
				High:    candles[i+1].Low,
				Low:     candles[i-1].High,
				Kind:    BiasLong,
				Age:     len(candles) - 1 - i,
				State:   FVGFresh,
				SizePct: gap / ref,
			}
			f.CE = (f.High + f.Low) / 2
			fillBullish(&f, candles)
			if f.State != FVGFull {
				gaps = append(gaps, f)
			}
		}
		if gap := candles[i-1].Low - candles[i+1].High; gap > 0 && gap/ref >= minSizePct {
			f := FVG{
				Index:   i,
				High:    candles[i-1].Low,
				Low:     candles[i+1].High,
				Kind:    BiasShort,
				Age:     len(candles) - 1 - i,
				State:   FVGFresh,
				SizePct: gap / ref,
			}
			f.CE = (f.High + f.Low) / 2
			fillBearish(&f, candles)
			if f.State != FVGFull {
				gaps = append(gaps, f)
			}
		}
	}
	return gaps
}

func fillBullish(f *FVG, candles []Candle) {
	for j := f.Index + 2; j < len(candles); j++ {
		if candles[j].Low <= f.Low {
			f.State = FVGFull
			return
		}
		if candles[j].Low < f.High {
			f.State = FVGPartial
		}
	}
}

func fillBearish(f *FVG, candles []Candle) {
	for j := f.Index + 2; j < len(candles); j++ {
		if candles[j].High >= f.High {
			f.State = FVGFull
			return
		}
		if candles[j].High > f.Low {
			f.State = FVGPartial
		}
	}
}
