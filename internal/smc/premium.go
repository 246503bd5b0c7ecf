package smc

type PDZone string

const (
	ZoneDeepDiscount PDZone = "DEEP_DISCOUNT"
	ZoneDiscount     PDZone = "DISCOUNT"
	ZoneNeutral      PDZone = "NEUTRAL"
	ZonePremium      PDZone = "PREMIUM"
	ZoneDeepPremium  PDZone = "DEEP_PREMIUM"
)

// DealingRange is the [last swing low, last swing high] interval against
// which premium/discount and the OTE retracement band are measured.
type DealingRange struct {
	High        float64
	Low         float64
	PositionPct float64 // 0 at the low, 100 at the high
	Zone        PDZone
	OTELow      float64
	OTEHigh     float64
}

// ComputeDealingRange locates price within the current dealing range and
// derives the 0.618–0.786 OTE band for the given direction. Returns false
// when no valid range exists.
func ComputeDealingRange(highs, lows []Swing, price float64, dir Bias) (DealingRange, bool) {
	if len(highs) == 0 || len(lows) == 0 {
		return DealingRange{}, false
	}
	dr := DealingRange{
		High: highs[len(highs)-1].Price,
		Low:  lows[len(lows)-1].Price,
	}
	span := dr.High - dr.Low
	if span <= 0 {
		return DealingRange{}, false
	}
	dr.PositionPct = (price - dr.Low) / span * 100

	switch {
	case dr.PositionPct <= 30:
		dr.Zone = ZoneDeepDiscount
	case dr.PositionPct < 50:
		dr.Zone = ZoneDiscount
	case dr.PositionPct == 50:
		dr.Zone = ZoneNeutral
	case dr.PositionPct < 70:
		dr.Zone = ZonePremium
	default:
		dr.Zone = ZoneDeepPremium
	}

	// OTE is a retracement of the dealing range: longs buy the 61.8–78.6%
	// pullback from the high, shorts sell the mirror from the low.
	if dir == BiasShort {
		dr.OTELow = dr.Low + 0.618*span
		dr.OTEHigh = dr.Low + 0.786*span
	} else {
		dr.OTELow = dr.High - 0.786*span
		dr.OTEHigh = dr.High - 0.618*span
	}
	return dr, true
}

// InOTE reports whether a price sits inside the OTE band.
func (dr DealingRange) InOTE(price float64) bool {
	return price >= dr.OTELow && price <= dr.OTEHigh
}
