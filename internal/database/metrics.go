package database

import (
	"strings"
	"time"
)

// PerformanceSummary is the aggregate view of recent terminal trades.
type PerformanceSummary struct {
	Total      int
	Wins       int
	Losses     int
	Cancelled  int
	WinRate    float64 // wins / (wins+losses), 0..1
	AvgWinPct  float64
	AvgLossPct float64 // positive magnitude
	TotalPnl   float64
}

// ComponentStats is the per-trigger-component win/loss rollup the optimiser
// uses for blame attribution.
type ComponentStats struct {
	Total   int
	Wins    int
	WinRate float64
}

// GetPerformanceSummary aggregates the last `limit` terminal signals.
func (d *Database) GetPerformanceSummary(limit int) (*PerformanceSummary, error) {
	signals, err := d.GetCompletedSignals(limit)
	if err != nil {
		return nil, err
	}
	s := &PerformanceSummary{}
	var winSum, lossSum float64
	for _, sig := range signals {
		s.Total++
		s.TotalPnl += sig.PnlPct
		switch sig.Status {
		case StatusWon:
			s.Wins++
			winSum += sig.PnlPct
		case StatusLost:
			s.Losses++
			lossSum += -sig.PnlPct
		case StatusCancelled:
			s.Cancelled++
		}
	}
	if s.Wins > 0 {
		s.AvgWinPct = winSum / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLossPct = lossSum / float64(s.Losses)
	}
	if decided := s.Wins + s.Losses; decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided)
	}
	return s, nil
}

// GetComponentPerformance rolls up win rates per trigger component tag over
// the last `limit` terminal signals. Cancelled trades are excluded: they say
// nothing about detection quality.
func (d *Database) GetComponentPerformance(limit int) (map[string]ComponentStats, error) {
	signals, err := d.GetCompletedSignals(limit)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ComponentStats)
	for _, sig := range signals {
		if sig.Status == StatusCancelled || sig.Components == "" {
			continue
		}
		for _, tag := range strings.Split(sig.Components, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			st := out[tag]
			st.Total++
			if sig.Status == StatusWon {
				st.Wins++
			}
			out[tag] = st
		}
	}
	for tag, st := range out {
		if st.Total > 0 {
			st.WinRate = float64(st.Wins) / float64(st.Total)
			out[tag] = st
		}
	}
	return out, nil
}

// GetHTFBiasAccuracy returns win rate split by higher-timeframe bias.
func (d *Database) GetHTFBiasAccuracy(limit int) (map[string]ComponentStats, error) {
	signals, err := d.GetCompletedSignals(limit)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ComponentStats)
	for _, sig := range signals {
		if sig.Status == StatusCancelled || sig.HTFBias == "" {
			continue
		}
		st := out[sig.HTFBias]
		st.Total++
		if sig.Status == StatusWon {
			st.Wins++
		}
		out[sig.HTFBias] = st
	}
	for bias, st := range out {
		if st.Total > 0 {
			st.WinRate = float64(st.Wins) / float64(st.Total)
			out[bias] = st
		}
	}
	return out, nil
}

// LossRecord summarizes one losing trade for the optimiser's quick-loss and
// large-loss ratios.
type LossRecord struct {
	Symbol   string
	PnlPct   float64
	Duration time.Duration
}

// GetLossAnalysis returns the last `limit` LOST signals with durations.
func (d *Database) GetLossAnalysis(limit int) ([]LossRecord, error) {
	var signals []Signal
	err := d.db.Where("status = ?", StatusLost).Order("close_time DESC").Limit(limit).Find(&signals).Error
	if err != nil {
		return nil, err
	}
	out := make([]LossRecord, 0, len(signals))
	for _, sig := range signals {
		rec := LossRecord{Symbol: sig.Symbol, PnlPct: sig.PnlPct}
		if sig.CloseTime != nil {
			rec.Duration = sig.CloseTime.Sub(sig.EntryTime)
		}
		out = append(out, rec)
	}
	return out, nil
}
