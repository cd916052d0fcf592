package indicator

import (
	"encoding/json"
	"fmt"
	"log"

	"breakout-systemv1/internal/model"
)

// Snapshottable is implemented by indicators that support state serialization.
type Snapshottable interface {
	Indicator
	Snapshot() IndicatorSnapshot
	RestoreFromSnapshot(snap IndicatorSnapshot) error
}

// IndicatorSnapshot holds the serialized state of a single indicator
// instance. Name carries the full parameterization and is the identity used
// when matching snapshots against live configs.
type IndicatorSnapshot struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "EXTREMA", "EMAREGIME", "MOMENTUM", "RENKO"
	Initialized bool   `json:"initialized"`

	// Extrema fields (prices in cents)
	Highs  []int64         `json:"highs,omitempty"`
	Lows   []int64         `json:"lows,omitempty"`
	Next   int             `json:"next,omitempty"`
	Levels *model.LevelSet `json:"levels,omitempty"`

	// EMA regime fields
	Count   int     `json:"count,omitempty"`
	Sum     float64 `json:"sum,omitempty"`
	Current float64 `json:"current,omitempty"`
	Regime  int     `json:"regime,omitempty"`

	// Momentum fields
	Prices   []float64 `json:"prices,omitempty"`
	Volumes  []float64 `json:"volumes,omitempty"`
	Size     int       `json:"size,omitempty"`
	Value    float64   `json:"value,omitempty"`
	HasValue bool      `json:"has_value,omitempty"`

	// Renko fields
	PrevClose  float64   `json:"prev_close,omitempty"`
	HasPrev    bool      `json:"has_prev,omitempty"`
	TRWindow   []float64 `json:"tr_window,omitempty"`
	TRCount    int       `json:"tr_count,omitempty"`
	ATR        float64   `json:"atr,omitempty"`
	HasATR     bool      `json:"has_atr,omitempty"`
	Box        float64   `json:"box,omitempty"`
	HasBox     bool      `json:"has_box,omitempty"`
	BeginPrice float64   `json:"begin_price,omitempty"`
	HasBegin   bool      `json:"has_begin,omitempty"`
	Trend      int       `json:"trend,omitempty"`
	BrickOpen  float64   `json:"brick_open,omitempty"`
	BrickClose float64   `json:"brick_close,omitempty"`
	HasBrick   bool      `json:"has_brick,omitempty"`
}

// InstrumentSnapshot holds indicator snapshots for a single instrument
// within a TF.
type InstrumentSnapshot struct {
	Symbol     string              `json:"symbol"`
	Venue      string              `json:"venue"`
	TF         int                 `json:"tf"`
	Indicators []IndicatorSnapshot `json:"indicators"`
}

// EngineSnapshot holds the full state of the indicator engine.
type EngineSnapshot struct {
	StreamID    string               `json:"stream_id"` // Redis Stream ID at checkpoint time
	Instruments []InstrumentSnapshot `json:"instruments"`
	Version     int                  `json:"version"` // schema version for forward compat
}

// MarshalJSON serializes the engine snapshot to JSON.
func (es *EngineSnapshot) MarshalJSON() ([]byte, error) {
	type Alias EngineSnapshot
	return json.Marshal((*Alias)(es))
}

// UnmarshalJSON deserializes the engine snapshot from JSON.
func (es *EngineSnapshot) UnmarshalJSON(data []byte) error {
	type Alias EngineSnapshot
	return json.Unmarshal(data, (*Alias)(es))
}

// SnapshotEngine captures the full state of an indicator Engine.
func SnapshotEngine(e *Engine, streamID string) (*EngineSnapshot, error) {
	snap := &EngineSnapshot{
		StreamID: streamID,
		Version:  1,
	}

	for tfIdx, cfg := range e.configs {
		for key, ii := range e.state[tfIdx] {
			is := InstrumentSnapshot{
				TF:         cfg.TF,
				Indicators: make([]IndicatorSnapshot, 0, len(ii.indicators)),
			}
			// Key format from Bar.Key() is "venue:symbol"
			is.Symbol = key
			for i := range key {
				if key[i] == ':' {
					is.Venue = key[:i]
					is.Symbol = key[i+1:]
					break
				}
			}

			for _, ind := range ii.indicators {
				si, ok := ind.(Snapshottable)
				if !ok {
					return nil, fmt.Errorf("indicator %s does not implement Snapshottable", ind.Name())
				}
				is.Indicators = append(is.Indicators, si.Snapshot())
			}
			snap.Instruments = append(snap.Instruments, is)
		}
	}

	return snap, nil
}

// RestoreEngine rebuilds an indicator Engine from a snapshot.
// It is tolerant of config changes — indicators are matched by Name (which
// bakes in all parameters) rather than by index. Matching indicators get
// their state restored; new indicators start fresh (cold). Removed
// indicators are silently skipped.
func RestoreEngine(configs []TFIndicatorConfig, snap *EngineSnapshot) (*Engine, error) {
	e := NewEngine(configs)

	for _, is := range snap.Instruments {
		tfIdx := e.tfIndex(is.TF)
		if tfIdx == -1 {
			continue // TF no longer configured — skip
		}

		ii := e.createInstrumentIndicators(tfIdx)

		snapLookup := make(map[string]IndicatorSnapshot, len(is.Indicators))
		for _, indSnap := range is.Indicators {
			snapLookup[indSnap.Name] = indSnap
		}

		restored, cold := 0, 0
		for _, ind := range ii.indicators {
			indSnap, found := snapLookup[ind.Name()]
			if !found {
				cold++
				continue // new indicator — stays fresh/zero
			}

			si, ok := ind.(Snapshottable)
			if !ok {
				cold++
				continue
			}
			if err := si.RestoreFromSnapshot(indSnap); err != nil {
				// Non-fatal: leave cold
				cold++
				continue
			}
			restored++
		}

		if cold > 0 {
			log.Printf("[restorer] TF=%d instrument=%s:%s: restored %d, cold-started %d indicators",
				is.TF, is.Venue, is.Symbol, restored, cold)
		}

		key := is.Symbol
		if is.Venue != "" {
			key = is.Venue + ":" + is.Symbol
		}
		e.state[tfIdx][key] = ii
	}

	return e, nil
}
