package strategy

import (
	"encoding/json"
	"fmt"
)

const contextVersion = 1

// StoredContext is the narrative + POI a watchlist entry was created with,
// serialized into the entry so re-checks never recompute layer 1/2.
type StoredContext struct {
	Version   int       `json:"version"`
	Narrative Narrative `json:"narrative"`
	POI       POI       `json:"poi"`
}

// EncodeContext serializes a watch context for persistence.
func EncodeContext(nar *Narrative, poi *POI) (string, error) {
	if nar == nil || poi == nil {
		return "", fmt.Errorf("context requires narrative and poi")
	}
	b, err := json.Marshal(StoredContext{Version: contextVersion, Narrative: *nar, POI: *poi})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeContext parses a stored context blob. Unknown versions are rejected
// so schema changes expire old entries instead of misreading them.
func DecodeContext(blob string) (*StoredContext, error) {
	if blob == "" {
		return nil, fmt.Errorf("empty context")
	}
	var ctx StoredContext
	if err := json.Unmarshal([]byte(blob), &ctx); err != nil {
		return nil, fmt.Errorf("parse context: %w", err)
	}
	if ctx.Version != contextVersion {
		return nil, fmt.Errorf("unsupported context version %d", ctx.Version)
	}
	if ctx.POI.ZoneHigh <= ctx.POI.ZoneLow {
		return nil, fmt.Errorf("context has a degenerate zone")
	}
	return &ctx, nil
}
