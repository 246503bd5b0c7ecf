package smc

// MSS is a micro structure shift: a close across the latest 3-bar micro
// swing formed after an anchor candle, used as trigger confirmation.
type MSS struct {
	Index int // candle whose close broke the micro level
	Level float64
}

// FindMSS locates the latest micro swing in the bias direction after anchor
// and reports the first close across it within the last maxBack candles.
// For LONG the micro level is a 3-bar swing high broken to the upside.
func FindMSS(candles []Candle, dir Bias, anchor, maxBack int) *MSS {
	if anchor < 0 || len(candles) < 3 {
		return nil
	}

	level := -1.0
	levelIdx := -1
	for i := anchor + 1; i < len(candles)-1; i++ {
		if i < 1 {
			continue
		}
		if dir == BiasLong {
			if candles[i].High > candles[i-1].High && candles[i].High > candles[i+1].High {
				level = candles[i].High
				levelIdx = i
			}
		} else {
			if candles[i].Low < candles[i-1].Low && candles[i].Low < candles[i+1].Low {
				level = candles[i].Low
				levelIdx = i
			}
		}
	}
	if levelIdx < 0 {
		return nil
	}

	earliest := len(candles) - maxBack
	if earliest <= levelIdx {
		earliest = levelIdx + 1
	}
	for i := earliest; i < len(candles); i++ {
		if dir == BiasLong && candles[i].Close > level {
			return &MSS{Index: i, Level: level}
		}
		if dir == BiasShort && candles[i].Close < level {
			return &MSS{Index: i, Level: level}
		}
	}
	return nil
}
