package strategy

import "github.com/smclabs/ictbot/internal/smc"

// Action discriminates the engine's one-of emission.
type Action string

const (
	ActionNone   Action = "NONE"
	ActionWatch  Action = "WATCH"
	ActionSignal Action = "SIGNAL"
)

// Trigger types.
const (
	TriggerSweepRejection = "SWEEP_REJECTION"
	TriggerMSS            = "MSS"
	TriggerDisplacement   = "DISPLACEMENT"
)

// Component tags attached to signals, the optimiser's blame-attribution keys.
const (
	ComponentSweep        = "SWEEP_REJECTION"
	ComponentMSS          = "MSS"
	ComponentDisplacement = "DISPLACEMENT"
	ComponentHTFBias      = "HTF_BIAS"
	ComponentPOIZone      = "POI_ZONE"
)

// Decision is the engine's output: exactly one of None, Watch or Signal.
type Decision struct {
	Action Action
	Reason string
	Signal *Signal
	Watch  *Watch
}

// Narrative is the higher-timeframe directional read (layer 1).
type Narrative struct {
	Bias      smc.Bias    `json:"bias"`
	Quality   smc.Quality `json:"quality"`
	CHoCH     bool        `json:"choch"`
	Timeframe string      `json:"timeframe"` // "4h", or "1h" on fallback
}

// POI is a candidate entry region (layer 2): confluent OB/FVG zones plus any
// liquidity resting inside them.
type POI struct {
	Bias            smc.Bias   `json:"bias"`
	Entry           float64    `json:"entry"`
	SL              float64    `json:"sl"`
	TP              float64    `json:"tp"`
	RR              float64    `json:"rr"`
	ZoneHigh        float64    `json:"zone_high"`
	ZoneLow         float64    `json:"zone_low"`
	ConfluenceCount int        `json:"confluence_count"`
	Sources         []string   `json:"sources"`
	InCorrectZone   bool       `json:"in_correct_zone"`
	InOTE           bool       `json:"in_ote"`
	DistancePct     float64    `json:"distance_pct"`
	Obstacles       []Obstacle `json:"obstacles,omitempty"`
	HasObstacle     bool       `json:"has_obstacle"`
	PDZone          smc.PDZone `json:"pd_zone"`
}

// Obstacle is something between entry and TP that price tends to react to.
type Obstacle struct {
	Price float64 `json:"price"`
	Kind  string  `json:"kind"` // "OB", "FVG", "ROUND"
}

// Signal is a fired trigger: an immediate MARKET entry instruction.
type Signal struct {
	Symbol      string
	Direction   smc.Bias
	Entry       float64
	SL          float64
	TP          float64
	RR          float64
	TriggerType string
	Quality     string // A+, A, B, C, SNIPER
	Components  []string
	Timeframe   string
	EntryMode   string // always MARKET
	ATR         float64
	Narrative   *Narrative
	POI         *POI
}

// Watch is a formed setup without a trigger yet.
type Watch struct {
	Symbol    string
	Direction smc.Bias
	Entry     float64
	SL        float64
	TP        float64
	RR        float64
	Reason    string
	Narrative *Narrative
	POI       *POI
}

func none(reason string) Decision {
	return Decision{Action: ActionNone, Reason: reason}
}
