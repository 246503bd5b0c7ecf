package smc

import "sort"

type Bias string

const (
	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasNeutral Bias = "NEUTRAL"
)

type Quality string

const (
	QualityStrong  Quality = "STRONG"
	QualityWeak    Quality = "WEAK"
	QualityNeutral Quality = "NEUTRAL"
)

// Structure is the directional read of a frame, derived from the last ≤8
// swings. A CHoCH (first break against the trend) degrades quality to WEAK
// but never flips the bias on its own.
type Structure struct {
	Bias          Bias
	Quality       Quality
	CHoCH         bool
	LastBOSPrice  float64
	LastSwingHigh float64
	LastSwingLow  float64
}

// AnalyzeStructure classifies the trend from swing highs and lows by counting
// HH/HL/LH/LL transitions over the most recent swings. A break only counts
// toward the trend when it clears the prior swing by minDisplacement; a
// marginal poke past the level is noise and counts neither way.
func AnalyzeStructure(highs, lows []Swing, minDisplacement float64) Structure {
	st := Structure{Bias: BiasNeutral, Quality: QualityNeutral}
	if len(highs) > 0 {
		st.LastSwingHigh = highs[len(highs)-1].Price
	}
	if len(lows) > 0 {
		st.LastSwingLow = lows[len(lows)-1].Price
	}
	if len(highs) < 2 || len(lows) < 2 {
		return st
	}

	merged := make([]Swing, 0, len(highs)+len(lows))
	merged = append(merged, highs...)
	merged = append(merged, lows...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Index < merged[j].Index })
	if len(merged) > 8 {
		merged = merged[len(merged)-8:]
	}

	var hh, hl, lh, ll int
	var prevHigh, prevLow float64
	var lastBullBreak, lastBearBreak float64
	var lowSeq, highSeq []float64

	for _, s := range merged {
		switch s.Kind {
		case SwingHigh:
			if prevHigh > 0 {
				if s.Price > prevHigh*(1+minDisplacement) {
					hh++
					lastBullBreak = s.Price
				} else if s.Price <= prevHigh {
					lh++
					lastBearBreak = s.Price
				}
			}
			prevHigh = s.Price
			highSeq = append(highSeq, s.Price)
		case SwingLow:
			if prevLow > 0 {
				if s.Price > prevLow {
					hl++
				} else if s.Price < prevLow*(1-minDisplacement) {
					ll++
				}
			}
			prevLow = s.Price
			lowSeq = append(lowSeq, s.Price)
		}
	}

	bull := hh + hl
	bear := ll + lh
	switch {
	case bull >= 2 && bull > bear:
		st.Bias = BiasLong
		st.LastBOSPrice = lastBullBreak
		if bull >= 3 {
			st.Quality = QualityStrong
		} else {
			st.Quality = QualityWeak
		}
	case bear >= 2 && bear > bull:
		st.Bias = BiasShort
		st.LastBOSPrice = lastBearBreak
		if bear >= 3 {
			st.Quality = QualityStrong
		} else {
			st.Quality = QualityWeak
		}
	default:
		return st
	}

	// CHoCH: the most recent counter-trend break inside the window, held to
	// the same displacement bar as a with-trend break.
	if st.Bias == BiasLong && len(lowSeq) >= 2 && lowSeq[len(lowSeq)-1] < lowSeq[len(lowSeq)-2]*(1-minDisplacement) {
		st.CHoCH = true
		st.Quality = QualityWeak
	}
	if st.Bias == BiasShort && len(highSeq) >= 2 && highSeq[len(highSeq)-1] > highSeq[len(highSeq)-2]*(1+minDisplacement) {
		st.CHoCH = true
		st.Quality = QualityWeak
	}
	return st
}
