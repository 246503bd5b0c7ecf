package smc

// OrderBlock is the last counter-trend candle before a displacement that
// closed beyond its extreme.
type OrderBlock struct {
	Index     int
	High      float64
	Low       float64
	CE        float64 // midpoint, the usual entry reference
	Kind      Bias    // direction of the displacement that confirmed it
	Age       int     // candles since formation
	Mitigated bool
	Strength  float64 // body ratio of the origin candle
}

// FindOrderBlocks returns unmitigated order blocks within the age window,
// oldest first. A bullish OB is a bearish candle whose successor is a strong
// bullish candle closing above the OB high; mirror for bearish. An OB is
// mitigated once a later candle CLOSES beyond its far edge; a wick through
// the block is a sweep of it, not a mitigation.
func FindOrderBlocks(candles []Candle, bodyRatioMin float64, maxAge int) []OrderBlock {
	if len(candles) < 3 {
		return nil
	}
	var obs []OrderBlock
	start := len(candles) - 1 - maxAge
	if start < 0 {
		start = 0
	}
	for i := start; i < len(candles)-1; i++ {
		c := candles[i]
		next := candles[i+1]
		if c.BodyRatio() < bodyRatioMin || next.BodyRatio() < 0.5 {
			continue
		}
		var kind Bias
		switch {
		case c.Bearish() && next.Bullish() && next.Close > c.High:
			kind = BiasLong
		case c.Bullish() && next.Bearish() && next.Close < c.Low:
			kind = BiasShort
		default:
			continue
		}
		ob := OrderBlock{
			Index:    i,
			High:     c.High,
			Low:      c.Low,
			CE:       (c.High + c.Low) / 2,
			Kind:     kind,
			Age:      len(candles) - 1 - i,
			Strength: c.BodyRatio(),
		}
		for j := i + 2; j < len(candles); j++ {
			if kind == BiasLong && candles[j].Close < ob.Low {
				ob.Mitigated = true
				break
			}
			if kind == BiasShort && candles[j].Close > ob.High {
				ob.Mitigated = true
				break
			}
		}
		if !ob.Mitigated {
			obs = append(obs, ob)
		}
	}
	return obs
}
