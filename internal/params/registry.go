package params

// Definition describes one tunable parameter: default, hard bounds, typing
// and the detection group it belongs to. TightenSign says which way the value
// moves when the optimiser wants the detector to be MORE selective: +1 raises
// it, -1 lowers it.
type Definition struct {
	Name        string
	Default     float64
	Min         float64
	Max         float64
	Integer     bool
	Group       string
	TightenSign float64
	Desc        string
}

// Parameter names.
const (
	SwingLookback             = "swing_lookback"
	BOSMinDisplacement        = "bos_min_displacement"
	OBBodyRatioMin            = "ob_body_ratio_min"
	OBMaxAgeCandles           = "ob_max_age_candles"
	FVGMinSizePct             = "fvg_min_size_pct"
	FVGMaxAgeCandles          = "fvg_max_age_candles"
	LiquidityEqualTolerance   = "liquidity_equal_tolerance"
	DisplacementMinBodyRatio  = "displacement_min_body_ratio"
	DisplacementMinSizePct    = "displacement_min_size_pct"
	DisplacementATRMultiplier = "displacement_atr_multiplier"
	POIMaxDistancePct         = "poi_max_distance_pct"
	MinRRRatio                = "min_rr_ratio"
	DefaultSLPct              = "default_sl_pct"
)

// Parameter groups.
const (
	GroupStructure    = "structure"
	GroupOrderBlock   = "orderblock"
	GroupFVG          = "fvg"
	GroupLiquidity    = "liquidity"
	GroupDisplacement = "displacement"
	GroupPOI          = "poi"
	GroupRisk         = "risk"
)

// Registry is the full set of optimiser-tunable parameters.
var Registry = []Definition{
	{SwingLookback, 5, 3, 8, true, GroupStructure, +1, "candles each side a major swing must dominate"},
	{BOSMinDisplacement, 0.003, 0.001, 0.006, false, GroupStructure, +1, "min break size to count as BOS"},
	{OBBodyRatioMin, 0.40, 0.25, 0.65, false, GroupOrderBlock, +1, "min body ratio of an OB origin candle"},
	{OBMaxAgeCandles, 30, 15, 50, true, GroupOrderBlock, -1, "max age of a usable OB"},
	{FVGMinSizePct, 0.001, 0.0003, 0.004, false, GroupFVG, +1, "min gap size vs price"},
	{FVGMaxAgeCandles, 20, 10, 40, true, GroupFVG, -1, "max age of a usable FVG"},
	{LiquidityEqualTolerance, 0.001, 0.0003, 0.003, false, GroupLiquidity, -1, "equal-high/low clustering tolerance"},
	{DisplacementMinBodyRatio, 0.55, 0.40, 0.75, false, GroupDisplacement, +1, "min body ratio of displacement candles"},
	{DisplacementMinSizePct, 0.006, 0.002, 0.010, false, GroupDisplacement, +1, "min aggregate displacement move"},
	{DisplacementATRMultiplier, 1.5, 1.0, 2.5, false, GroupDisplacement, +1, "displacement size vs ATR"},
	{POIMaxDistancePct, 0.010, 0.005, 0.020, false, GroupPOI, -1, "max distance from price to a tradable POI"},
	{MinRRRatio, 2.0, 1.2, 3.0, false, GroupRisk, +1, "min risk:reward to fire"},
	{DefaultSLPct, 0.020, 0.008, 0.025, false, GroupRisk, +1, "fallback stop distance"},
}

// Lookup returns the definition for a name, or nil.
func Lookup(name string) *Definition {
	for i := range Registry {
		if Registry[i].Name == name {
			return &Registry[i]
		}
	}
	return nil
}
