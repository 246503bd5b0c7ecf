package optimizer

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smclabs/ictbot/internal/database"
	"github.com/smclabs/ictbot/internal/params"
	"github.com/smclabs/ictbot/internal/strategy"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SELF-OPTIMISER - target-driven tuning with blame attribution and rollback
// ═══════════════════════════════════════════════════════════════════════════════

const (
	targetWinRatePts   = 60.0
	minTradesToRun     = 20
	tradePoolSize      = 200
	learningRate       = 0.05
	maxChangePct       = 0.15
	noiseFloorPct      = 0.01
	maxChangesPerCycle = 4
	maxPerGroup        = 2
	rollbackWRDropPts  = 3.0
	rollbackMinTrades  = 2
	quickLossWindow    = 30 * time.Minute

	quickLossThreshold = 0.5
	largeLossThreshold = 0.4
	riskBlameWeight    = 20.0
)

// Run outcomes.
const (
	OutcomeSkipped   = "SKIPPED"
	OutcomeRollback  = "ROLLBACK"
	OutcomeEmergency = "EMERGENCY"
	OutcomeOptimized = "OPTIMIZED"
	OutcomeNoChange  = "NO_CHANGE"
)

// Change is one applied parameter adjustment.
type Change struct {
	Param  string
	Old    float64
	New    float64
	Reason string
}

// Result summarizes one optimiser cycle.
type Result struct {
	Outcome string
	Changes []Change
}

// paramChange is the persisted rollback-target form of a change.
type paramChange struct {
	Param string  `json:"param"`
	Old   float64 `json:"old"`
	New   float64 `json:"new"`
}

// tradePool is the realized performance sample one cycle works from.
type tradePool struct {
	total          int64
	wrPts          float64
	wins           int
	losses         int
	realizedRR     float64
	quickLossRatio float64
	largeLossRatio float64
}

// Optimizer observes the realized WON/LOST population and proposes bounded
// adjustments to detection thresholds, rolling back runs that regress.
type Optimizer struct {
	db    *database.Database
	store *params.Store
}

func New(db *database.Database, store *params.Store) *Optimizer {
	return &Optimizer{db: db, store: store}
}

// componentParams maps each trigger component tag to the parameters that
// shape it, the optimiser's blame-attribution table.
var componentParams = map[string][]string{
	strategy.ComponentSweep:        {params.LiquidityEqualTolerance, params.SwingLookback, params.DisplacementMinBodyRatio},
	strategy.ComponentMSS:          {params.BOSMinDisplacement, params.OBBodyRatioMin, params.SwingLookback},
	strategy.ComponentDisplacement: {params.DisplacementMinBodyRatio, params.DisplacementATRMultiplier, params.DisplacementMinSizePct},
	strategy.ComponentHTFBias:      {params.BOSMinDisplacement, params.SwingLookback},
	strategy.ComponentPOIZone:      {params.POIMaxDistancePct, params.OBMaxAgeCandles, params.FVGMaxAgeCandles, params.FVGMinSizePct},
}

var riskParams = []string{params.DefaultSLPct, params.MinRRRatio}

// Run executes one optimisation cycle.
func (o *Optimizer) Run() (*Result, error) {
	pool, err := o.buildPool()
	if err != nil {
		return nil, err
	}
	if pool.total < minTradesToRun {
		log.Info().Int64("trades", pool.total).Msg("📊 Optimiser skipped, not enough trades")
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	// the measured WR closes the book on the previous run's log entries
	if err := o.db.BackfillOptimizationWR(pool.wrPts); err != nil {
		log.Warn().Err(err).Msg("⚠️ Optimisation log backfill failed")
	}

	if res, err := o.checkRollback(pool); err != nil || res != nil {
		return res, err
	}

	if pool.wins == 0 && pool.losses >= 3 {
		return o.emergency(pool)
	}

	steers := o.riskSteer(pool)
	priorities, err := o.scoreParams(pool, steers)
	if err != nil {
		return nil, err
	}
	proposals := o.propose(pool, priorities, steers)
	selected := selectProposals(proposals)
	if len(selected) == 0 {
		log.Info().Float64("wr", pool.wrPts).Msg("📊 Optimiser found nothing to change")
		return &Result{Outcome: OutcomeNoChange}, nil
	}
	return o.commit(pool, selected, OutcomeOptimized)
}

func (o *Optimizer) buildPool() (*tradePool, error) {
	total, err := o.db.GetCompletedSignalCount()
	if err != nil {
		return nil, fmt.Errorf("trade count: %w", err)
	}
	summary, err := o.db.GetPerformanceSummary(tradePoolSize)
	if err != nil {
		return nil, fmt.Errorf("performance summary: %w", err)
	}
	pool := &tradePool{
		total:  total,
		wrPts:  summary.WinRate * 100,
		wins:   summary.Wins,
		losses: summary.Losses,
	}
	if summary.AvgLossPct > 0 {
		pool.realizedRR = summary.AvgWinPct / summary.AvgLossPct
	}
	losses, err := o.db.GetLossAnalysis(tradePoolSize)
	if err != nil {
		return nil, fmt.Errorf("loss analysis: %w", err)
	}
	if len(losses) > 0 {
		quick, large := 0, 0
		for _, l := range losses {
			if l.Duration > 0 && l.Duration < quickLossWindow {
				quick++
			}
			if l.PnlPct < -2.0 {
				large++
			}
		}
		pool.quickLossRatio = float64(quick) / float64(len(losses))
		pool.largeLossRatio = float64(large) / float64(len(losses))
	}
	return pool, nil
}

// checkRollback reverts the previous run's changes when the win rate has
// regressed materially since they were applied. Returns nil when no rollback
// fires.
func (o *Optimizer) checkRollback(pool *tradePool) (*Result, error) {
	state, err := o.db.GetOptimizerState()
	if err != nil {
		return nil, fmt.Errorf("optimizer state: %w", err)
	}
	if state == nil || state.LastRunChanges == "" {
		return nil, nil
	}
	newTrades := pool.total - int64(state.LastRunTrades)
	drop := state.LastRunWR - pool.wrPts
	if drop < rollbackWRDropPts || newTrades < rollbackMinTrades {
		return nil, nil
	}

	var changes []paramChange
	if err := json.Unmarshal([]byte(state.LastRunChanges), &changes); err != nil {
		return nil, fmt.Errorf("parse rollback target: %w", err)
	}

	runID := time.Now().Unix()
	result := &Result{Outcome: OutcomeRollback}
	for _, ch := range changes {
		applied, err := o.store.Set(ch.Param, ch.Old)
		if err != nil {
			log.Error().Err(err).Str("param", ch.Param).Msg("⚠️ Rollback write failed")
			continue
		}
		reason := fmt.Sprintf("ROLLBACK: WR %.1f → %.1f after previous run", state.LastRunWR, pool.wrPts)
		o.logChange(runID, ch.Param, ch.New, applied, reason, pool)
		result.Changes = append(result.Changes, Change{Param: ch.Param, Old: ch.New, New: applied, Reason: reason})
	}
	if err := o.db.ClearOptimizerState(); err != nil {
		return nil, fmt.Errorf("clear rollback state: %w", err)
	}
	log.Warn().
		Float64("wr_before", state.LastRunWR).
		Float64("wr_now", pool.wrPts).
		Int("reverted", len(result.Changes)).
		Msg("⏪ Optimiser rolled back previous run")
	return result, nil
}

// emergency tightens the loosest filters hard when the recent sample is all
// losses.
func (o *Optimizer) emergency(pool *tradePool) (*Result, error) {
	tighten := []struct {
		name   string
		factor float64
	}{
		{params.DisplacementMinBodyRatio, 1.08},
		{params.FVGMinSizePct, 1.10},
		{params.DefaultSLPct, 1.06},
	}
	var changes []Change
	for _, tg := range tighten {
		cur := o.store.Get(tg.name)
		applied, err := o.store.Set(tg.name, cur*tg.factor)
		if err != nil {
			log.Error().Err(err).Str("param", tg.name).Msg("⚠️ Emergency write failed")
			continue
		}
		if applied == cur {
			continue
		}
		reason := fmt.Sprintf("EMERGENCY: 0 wins over %d losses", pool.losses)
		changes = append(changes, Change{Param: tg.name, Old: cur, New: applied, Reason: reason})
	}
	log.Warn().Int("losses", pool.losses).Int("changes", len(changes)).Msg("🚨 Optimiser emergency tightening")
	return o.persistRun(pool, changes, OutcomeEmergency)
}

// steer is a loss-profile override for one RISK-group parameter: a fixed
// direction and a priority bonus with its own reason.
type steer struct {
	dir   float64
	score float64
	why   string
}

// riskSteer reads the pool's realized loss profile the way the original risk
// pass does: losses that die inside the quick-loss window are stop hunts and
// want a wider default stop, oversized losses want a tighter one, and a
// realized RR below the configured floor argues for raising the floor.
func (o *Optimizer) riskSteer(pool *tradePool) map[string]steer {
	out := make(map[string]steer)
	switch {
	case pool.quickLossRatio >= quickLossThreshold:
		out[params.DefaultSLPct] = steer{
			dir:   +1,
			score: riskBlameWeight * pool.quickLossRatio,
			why:   fmt.Sprintf("widen stop: %.0f%% of losses die inside %s", pool.quickLossRatio*100, quickLossWindow),
		}
	case pool.largeLossRatio >= largeLossThreshold:
		out[params.DefaultSLPct] = steer{
			dir:   -1,
			score: riskBlameWeight * pool.largeLossRatio,
			why:   fmt.Sprintf("tighten stop: %.0f%% of losses exceed 2%%", pool.largeLossRatio*100),
		}
	}
	if floor := o.store.Get(params.MinRRRatio); pool.realizedRR > 0 && pool.realizedRR < floor {
		out[params.MinRRRatio] = steer{
			dir:   +1,
			score: riskBlameWeight * (floor - pool.realizedRR) / floor,
			why:   fmt.Sprintf("realized RR %.2f below the %.2f floor", pool.realizedRR, floor),
		}
	}
	return out
}

// scoreParams attributes blame: every component below target adds its gap to
// the priority of each parameter shaping it; risk parameters carry a baseline
// score from the overall gap plus any loss-profile steering bonus.
func (o *Optimizer) scoreParams(pool *tradePool, steers map[string]steer) (map[string]float64, error) {
	comps, err := o.db.GetComponentPerformance(tradePoolSize)
	if err != nil {
		return nil, fmt.Errorf("component performance: %w", err)
	}
	scores := make(map[string]float64)
	for tag, names := range componentParams {
		st, ok := comps[tag]
		if !ok || st.Total == 0 {
			continue
		}
		gap := targetWinRatePts - st.WinRate*100
		if gap <= 0 {
			continue
		}
		for _, name := range names {
			scores[name] += gap
		}
	}
	if overallGap := targetWinRatePts - pool.wrPts; overallGap > 0 {
		for _, name := range riskParams {
			scores[name] += 0.5 * overallGap
		}
	}
	for name, st := range steers {
		scores[name] += st.score
	}
	return scores, nil
}

type proposal struct {
	def    *params.Definition
	score  float64
	old    float64
	next   float64
	reason string
}

// propose turns priority scores into bounded step proposals. A steered risk
// parameter keeps its loss-profile direction regardless of the gap sign.
func (o *Optimizer) propose(pool *tradePool, scores map[string]float64, steers map[string]steer) []proposal {
	gap := targetWinRatePts - pool.wrPts
	intensity := intensityFor(gap)

	var out []proposal
	for name, score := range scores {
		def := params.Lookup(name)
		if def == nil || score <= 0 {
			continue
		}
		cur := o.store.Get(name)
		if cur == 0 {
			continue
		}
		dir := def.TightenSign
		if gap <= 0 {
			dir = -def.TightenSign // above target: trade selectivity for frequency
		}
		var why string
		if st, ok := steers[name]; ok {
			dir = st.dir
			why = st.why
		}
		delta := cur * learningRate * intensity * dir
		if math.Abs(delta) > maxChangePct*cur {
			delta = math.Copysign(maxChangePct*cur, delta)
		}
		next := params.Clamp(def, cur+delta)
		if math.Abs(next-cur)/cur < noiseFloorPct {
			continue
		}
		if why == "" {
			verb := "tighten"
			if dir*def.TightenSign < 0 {
				verb = "loosen"
			}
			why = fmt.Sprintf("%s %s", verb, name)
		}
		out = append(out, proposal{
			def:    def,
			score:  score,
			old:    cur,
			next:   next,
			reason: fmt.Sprintf("%s: WR %.1f vs target %.0f, priority %.1f", why, pool.wrPts, targetWinRatePts, score),
		})
	}
	return out
}

func intensityFor(gapPts float64) float64 {
	switch {
	case gapPts <= 0:
		return 0.5
	case gapPts <= 5:
		return 1.0
	case gapPts <= 10:
		return 1.5
	default:
		return 2.0
	}
}

// selectProposals keeps the highest-priority proposals, bounded per cycle and
// per group.
func selectProposals(proposals []proposal) []proposal {
	sort.SliceStable(proposals, func(i, j int) bool {
		if proposals[i].score != proposals[j].score {
			return proposals[i].score > proposals[j].score
		}
		return proposals[i].def.Name < proposals[j].def.Name
	})
	perGroup := make(map[string]int)
	var out []proposal
	for _, p := range proposals {
		if len(out) >= maxChangesPerCycle {
			break
		}
		if perGroup[p.def.Group] >= maxPerGroup {
			continue
		}
		perGroup[p.def.Group]++
		out = append(out, p)
	}
	return out
}

func (o *Optimizer) commit(pool *tradePool, selected []proposal, outcome string) (*Result, error) {
	var changes []Change
	for _, p := range selected {
		applied, err := o.store.Set(p.def.Name, p.next)
		if err != nil {
			log.Error().Err(err).Str("param", p.def.Name).Msg("⚠️ Parameter write failed")
			continue
		}
		if applied == p.old {
			continue
		}
		changes = append(changes, Change{Param: p.def.Name, Old: p.old, New: applied, Reason: p.reason})
	}
	return o.persistRun(pool, changes, outcome)
}

// persistRun logs every applied change and stashes the run as next cycle's
// rollback target.
func (o *Optimizer) persistRun(pool *tradePool, changes []Change, outcome string) (*Result, error) {
	if len(changes) == 0 {
		return &Result{Outcome: OutcomeNoChange}, nil
	}
	runID := time.Now().Unix()
	stash := make([]paramChange, 0, len(changes))
	for _, ch := range changes {
		o.logChange(runID, ch.Param, ch.Old, ch.New, ch.Reason, pool)
		stash = append(stash, paramChange{Param: ch.Param, Old: ch.Old, New: ch.New})
		log.Info().
			Str("param", ch.Param).
			Float64("old", ch.Old).
			Float64("new", ch.New).
			Str("reason", ch.Reason).
			Msg("🔧 Parameter adjusted")
	}
	blob, err := json.Marshal(stash)
	if err != nil {
		return nil, fmt.Errorf("marshal rollback target: %w", err)
	}
	if err := o.db.SaveOptimizerState(&database.OptimizerState{
		LastRunWR:      pool.wrPts,
		LastRunTrades:  int(pool.total),
		LastRunChanges: string(blob),
	}); err != nil {
		return nil, fmt.Errorf("save optimizer state: %w", err)
	}
	return &Result{Outcome: outcome, Changes: changes}, nil
}

func (o *Optimizer) logChange(runID int64, param string, oldVal, newVal float64, reason string, pool *tradePool) {
	if err := o.db.AddOptimizationLog(&database.OptimizationLog{
		RunID:          runID,
		ParamName:      param,
		OldValue:       oldVal,
		NewValue:       newVal,
		Reason:         reason,
		WRBefore:       pool.wrPts,
		TradesAnalyzed: int(pool.total),
	}); err != nil {
		log.Error().Err(err).Str("param", param).Msg("⚠️ Failed to append optimization log")
	}
}
