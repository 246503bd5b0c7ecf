package smc

// Sweep is a stop hunt: a wick through a known swing level with the close
// back on the original side.
type Sweep struct {
	Index         int
	Level         float64
	Direction     Bias    // side the sweep favours (lows swept → LONG)
	WickExtreme   float64 // deepest point of the sweeping wick
	WickBodyRatio float64
}

// FindRecentSweep scans the last maxBack candles for a sweep matching the
// bias: for LONG, a candle whose low pierced a swing-low level but closed
// back above it with a convincing rejection wick. When several candidates
// exist the freshest, cleanest one wins.
func FindRecentSweep(candles []Candle, highs, lows []Swing, dir Bias, maxBack int) *Sweep {
	if len(candles) == 0 {
		return nil
	}
	levels := lows
	if dir == BiasShort {
		levels = highs
	}
	earliest := len(candles) - maxBack
	if earliest < 0 {
		earliest = 0
	}

	var best *Sweep
	var bestScore float64
	for _, lvl := range levels {
		for i := len(candles) - 1; i >= earliest && i > lvl.Index; i-- {
			c := candles[i]
			body := c.Body()
			if body <= 0 {
				continue
			}
			var hit bool
			var wick, extreme float64
			if dir == BiasLong {
				hit = c.Low < lvl.Price && c.Close > lvl.Price
				wick = c.LowerWick()
				extreme = c.Low
			} else {
				hit = c.High > lvl.Price && c.Close < lvl.Price
				wick = c.UpperWick()
				extreme = c.High
			}
			if !hit {
				continue
			}
			ratio := wick / body
			if ratio <= 0.5 {
				continue
			}
			// freshness dominates, rejection quality breaks ties
			freshness := 1 - float64(len(candles)-1-i)/float64(maxBack)
			quality := ratio
			if quality > 3 {
				quality = 3
			}
			score := freshness*0.6 + quality/3*0.4
			if best == nil || score > bestScore {
				best = &Sweep{Index: i, Level: lvl.Price, Direction: dir, WickExtreme: extreme, WickBodyRatio: ratio}
				bestScore = score
			}
		}
	}
	return best
}
