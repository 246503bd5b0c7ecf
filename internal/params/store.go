package params

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/smclabs/ictbot/internal/database"
)

// Store holds the current tunable parameter values: DB-backed, cached in
// memory. Single writer (the optimiser); everyone else reads snapshots.
type Store struct {
	mu     sync.RWMutex
	db     *database.Database
	values map[string]float64
}

// Snapshot is an immutable copy of all tunables, taken once per scheduler
// iteration so a mid-scan parameter change never splits one analysis.
type Snapshot struct {
	SwingLookback             int
	BOSMinDisplacement        float64
	OBBodyRatioMin            float64
	OBMaxAgeCandles           int
	FVGMinSizePct             float64
	FVGMaxAgeCandles          int
	LiquidityEqualTolerance   float64
	DisplacementMinBodyRatio  float64
	DisplacementMinSizePct    float64
	DisplacementATRMultiplier float64
	POIMaxDistancePct         float64
	MinRRRatio                float64
	DefaultSLPct              float64
}

// NewStore loads all registered parameters from the database, falling back
// to defaults for anything never written.
func NewStore(db *database.Database) (*Store, error) {
	s := &Store{db: db, values: make(map[string]float64, len(Registry))}
	for _, def := range Registry {
		v, err := db.GetBotParam(def.Name, def.Default)
		if err != nil {
			return nil, fmt.Errorf("load param %s: %w", def.Name, err)
		}
		s.values[def.Name] = v
	}
	return s, nil
}

// Get returns the current value of a parameter.
func (s *Store) Get(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[name]; ok {
		return v
	}
	if def := Lookup(name); def != nil {
		return def.Default
	}
	return 0
}

// GetInt returns an integer-typed parameter.
func (s *Store) GetInt(name string) int {
	return int(math.Round(s.Get(name)))
}

// Set clamps value to the parameter's bounds, coerces integer-typed params,
// rounds, persists and caches. Returns the value actually applied.
func (s *Store) Set(name string, value float64) (float64, error) {
	def := Lookup(name)
	if def == nil {
		return 0, fmt.Errorf("unknown parameter %q", name)
	}
	applied := Clamp(def, value)
	if err := s.db.SaveBotParam(name, applied, def.Default); err != nil {
		return 0, fmt.Errorf("save param %s: %w", name, err)
	}
	s.mu.Lock()
	s.values[name] = applied
	s.mu.Unlock()
	return applied, nil
}

// Clamp applies bounds, integer coercion and magnitude-aware rounding.
func Clamp(def *Definition, value float64) float64 {
	if value < def.Min {
		value = def.Min
	}
	if value > def.Max {
		value = def.Max
	}
	if def.Integer {
		return math.Round(value)
	}
	return roundByMagnitude(value)
}

func roundByMagnitude(v float64) float64 {
	abs := math.Abs(v)
	switch {
	case abs < 0.01:
		return round(v, 6)
	case abs < 1:
		return round(v, 5)
	default:
		return round(v, 4)
	}
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// EnforceBounds resets any stored value outside its bounds back to the
// default. Returns the names that were reset. Run once at startup so a bad
// optimiser run can never wedge the engine permanently.
func (s *Store) EnforceBounds() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reset []string
	for _, def := range Registry {
		v := s.values[def.Name]
		if v < def.Min || v > def.Max {
			log.Warn().
				Str("param", def.Name).
				Float64("stored", v).
				Float64("default", def.Default).
				Msg("⚠️ Parameter out of bounds, resetting to default")
			if err := s.db.SaveBotParam(def.Name, def.Default, def.Default); err != nil {
				return reset, fmt.Errorf("reset param %s: %w", def.Name, err)
			}
			s.values[def.Name] = def.Default
			reset = append(reset, def.Name)
		}
	}
	return reset, nil
}

// Snapshot copies all current values into a typed snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	get := func(name string) float64 { return s.values[name] }
	return Snapshot{
		SwingLookback:             int(math.Round(get(SwingLookback))),
		BOSMinDisplacement:        get(BOSMinDisplacement),
		OBBodyRatioMin:            get(OBBodyRatioMin),
		OBMaxAgeCandles:           int(math.Round(get(OBMaxAgeCandles))),
		FVGMinSizePct:             get(FVGMinSizePct),
		FVGMaxAgeCandles:          int(math.Round(get(FVGMaxAgeCandles))),
		LiquidityEqualTolerance:   get(LiquidityEqualTolerance),
		DisplacementMinBodyRatio:  get(DisplacementMinBodyRatio),
		DisplacementMinSizePct:    get(DisplacementMinSizePct),
		DisplacementATRMultiplier: get(DisplacementATRMultiplier),
		POIMaxDistancePct:         get(POIMaxDistancePct),
		MinRRRatio:                get(MinRRRatio),
		DefaultSLPct:              get(DefaultSLPct),
	}
}

// DefaultSnapshot returns a snapshot of registry defaults, used by tests and
// by components that run before the store exists.
func DefaultSnapshot() Snapshot {
	values := make(map[string]float64, len(Registry))
	for _, def := range Registry {
		values[def.Name] = def.Default
	}
	s := &Store{values: values}
	return s.Snapshot()
}
