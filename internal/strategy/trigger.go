package strategy

import (
	"math"

	"github.com/smclabs/ictbot/internal/params"
	"github.com/smclabs/ictbot/internal/smc"
)

// checkTrigger runs layer 3 against one POI: sweep-rejection first, then
// MSS, then displacement. Entry is the current price (MARKET entry); every
// candidate re-clamps its SL and must clear min RR against the POI's TP.
// Returns nil when nothing fires.
func (e *Engine) checkTrigger(frame []smc.Candle, poi *POI, nar *Narrative, price float64, p params.Snapshot, proximity float64, timeframe string) *Signal {
	if len(frame) < atrPeriod+2 {
		return nil
	}
	if !nearZone(price, poi.ZoneHigh, poi.ZoneLow, proximity) {
		return nil
	}
	atr := smc.ATR(frame, atrPeriod)
	if atr <= 0 {
		return nil
	}
	// volatility gate: a news candle invalidates the whole read
	if frame[len(frame)-1].Range() > 3*atr {
		return nil
	}

	highs, lows := smc.DetectSwings(frame, p.SwingLookback)
	bias := poi.Bias

	build := func(sl float64, triggerType string, component string) *Signal {
		sl = e.clampSL(price, sl, bias)
		rr := riskReward(price, sl, poi.TP)
		if rr < p.MinRRRatio {
			return nil
		}
		return &Signal{
			Direction:   bias,
			Entry:       price,
			SL:          sl,
			TP:          poi.TP,
			RR:          rr,
			TriggerType: triggerType,
			Quality:     gradeQuality(nar, poi),
			Components:  []string{component, ComponentHTFBias, ComponentPOIZone},
			Timeframe:   timeframe,
			EntryMode:   "MARKET",
			ATR:         atr,
		}
	}

	// 1. sweep rejection: stops were hunted and price snapped back
	if sweep := smc.FindRecentSweep(frame, highs, lows, bias, sweepMaxBack); sweep != nil {
		sl := sweep.WickExtreme * 0.998
		if bias == smc.BiasShort {
			sl = sweep.WickExtreme * 1.002
		}
		if sig := build(sl, TriggerSweepRejection, ComponentSweep); sig != nil {
			return sig
		}
	}

	// 2. micro structure shift off the zone
	if mss := smc.FindMSS(frame, bias, zoneAnchor(frame, poi), triggerMaxBack); mss != nil {
		if sig := build(poi.SL, TriggerMSS, ComponentMSS); sig != nil {
			return sig
		}
	}

	// 3. displacement away from the zone
	dcfg := smc.DisplacementConfig{
		MinBodyRatio:  p.DisplacementMinBodyRatio,
		MinSizePct:    p.DisplacementMinSizePct,
		ATRMultiplier: p.DisplacementATRMultiplier,
		MaxBack:       triggerMaxBack,
	}
	if d := smc.FindDisplacement(frame, atr, dcfg); d != nil && d.Direction == bias {
		sl := d.Extreme * 0.998
		if bias == smc.BiasShort {
			sl = d.Extreme * 1.002
		}
		if sig := build(sl, TriggerDisplacement, ComponentDisplacement); sig != nil {
			return sig
		}
	}

	return nil
}

// nearZone reports whether price is inside the zone or within the proximity
// fraction of either edge.
func nearZone(price, zoneHigh, zoneLow, proximity float64) bool {
	if price <= 0 {
		return false
	}
	if price >= zoneLow && price <= zoneHigh {
		return true
	}
	dist := math.Min(math.Abs(price-zoneHigh), math.Abs(price-zoneLow))
	return dist/price <= proximity
}

// zoneAnchor returns the index of the most recent candle that traded into
// the POI zone, the point an MSS must form after.
func zoneAnchor(frame []smc.Candle, poi *POI) int {
	for i := len(frame) - 1; i >= 0; i-- {
		if frame[i].Low <= poi.ZoneHigh && frame[i].High >= poi.ZoneLow {
			return i
		}
	}
	if len(frame) > 10 {
		return len(frame) - 10
	}
	return 0
}

// gradeQuality folds narrative strength and POI confluence into a grade.
func gradeQuality(nar *Narrative, poi *POI) string {
	strong := nar.Quality == smc.QualityStrong
	confluent := poi.ConfluenceCount >= 2
	switch {
	case strong && confluent && poi.InOTE:
		return "A+"
	case strong && confluent:
		return "A"
	case strong || confluent:
		return "B"
	default:
		return "C"
	}
}
