package indicator

import (
	"fmt"

	"breakout-systemv1/internal/model"
)

// ExtremaConfig holds the four lookback lengths (in bars) for the rolling
// high/low tracker. All four must be >= 1. A lookback of 1 means "the
// previous bar's high/low exactly".
type ExtremaConfig struct {
	EntryHighLookback int `json:"entry_high_lookback"`
	EntryLowLookback  int `json:"entry_low_lookback"`
	ExitHighLookback  int `json:"exit_high_lookback"`
	ExitLowLookback   int `json:"exit_low_lookback"`
}

// Extrema tracks rolling max-high / min-low levels over up to four
// independently sized lookback windows, all strictly excluding the bar
// currently being ingested. Levels for the current bar are computed from
// buffer state BEFORE that bar is inserted, so entry_high after bar N is the
// max high of the lookback bars ending at bar N-1.
//
// Uses two fixed-capacity circular buffers sized max(all lookbacks) with a
// shared write cursor. O(max_lookback) per bar, zero allocations.
type Extrema struct {
	cfg         ExtremaConfig
	maxLookback int

	highs []int64 // cents
	lows  []int64
	next  int // write cursor

	initialized bool
	levels      model.LevelSet
	hasLevels   bool
}

// NewExtrema creates a rolling extrema tracker. Any lookback <= 0 is a
// configuration error.
func NewExtrema(cfg ExtremaConfig) (*Extrema, error) {
	for _, lb := range []struct {
		name string
		v    int
	}{
		{"entry_high_lookback", cfg.EntryHighLookback},
		{"entry_low_lookback", cfg.EntryLowLookback},
		{"exit_high_lookback", cfg.ExitHighLookback},
		{"exit_low_lookback", cfg.ExitLowLookback},
	} {
		if lb.v <= 0 {
			return nil, fmt.Errorf("indicator: extrema %s must be >= 1, got %d", lb.name, lb.v)
		}
	}

	maxLB := cfg.EntryHighLookback
	for _, v := range []int{cfg.EntryLowLookback, cfg.ExitHighLookback, cfg.ExitLowLookback} {
		if v > maxLB {
			maxLB = v
		}
	}

	return &Extrema{
		cfg:         cfg,
		maxLookback: maxLB,
		highs:       make([]int64, maxLB),
		lows:        make([]int64, maxLB),
	}, nil
}

func (x *Extrema) Name() string {
	return "HHLL_" + model.Itoa(x.cfg.EntryHighLookback) +
		"_" + model.Itoa(x.cfg.EntryLowLookback) +
		"_" + model.Itoa(x.cfg.ExitHighLookback) +
		"_" + model.Itoa(x.cfg.ExitLowLookback)
}

func (x *Extrema) HandleBar(bar model.Bar) {
	// Levels for this bar come from the buffers as they stood before this
	// bar — compute first, insert after.
	if x.initialized {
		x.levels = model.LevelSet{
			EntryHigh: x.maxLast(x.cfg.EntryHighLookback),
			EntryLow:  x.minLast(x.cfg.EntryLowLookback),
			ExitHigh:  x.maxLast(x.cfg.ExitHighLookback),
			ExitLow:   x.minLast(x.cfg.ExitLowLookback),
		}
		x.hasLevels = true
	}

	x.highs[x.next] = bar.High
	x.lows[x.next] = bar.Low

	// Initialized once the largest window has filled — on exactly the
	// max_lookback-th bar, not before.
	if !x.initialized && x.next == x.maxLookback-1 {
		x.initialized = true
	}
	x.next = (x.next + 1) % x.maxLookback
}

// HandleTick reports that this indicator only accepts bars.
func (x *Extrema) HandleTick(model.Tick) error { return ErrTickUnsupported }

func (x *Extrema) Initialized() bool { return x.initialized }

// Levels returns the current level set. ok is false until one full bar after
// initialization: the first initialized bar seeds the buffers but produces no
// levels yet.
func (x *Extrema) Levels() (model.LevelSet, bool) {
	return x.levels, x.hasLevels
}

func (x *Extrema) Reset() {
	for i := range x.highs {
		x.highs[i] = 0
		x.lows[i] = 0
	}
	x.next = 0
	x.initialized = false
	x.levels = model.LevelSet{}
	x.hasLevels = false
}

// Snapshot serializes the tracker state for checkpoint persistence.
func (x *Extrema) Snapshot() IndicatorSnapshot {
	highs := make([]int64, len(x.highs))
	lows := make([]int64, len(x.lows))
	copy(highs, x.highs)
	copy(lows, x.lows)
	snap := IndicatorSnapshot{
		Name:        x.Name(),
		Type:        KindExtrema.String(),
		Highs:       highs,
		Lows:        lows,
		Next:        x.next,
		Initialized: x.initialized,
	}
	if x.hasLevels {
		lv := x.levels
		snap.Levels = &lv
	}
	return snap
}

// RestoreFromSnapshot restores tracker state from a checkpoint.
func (x *Extrema) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if len(snap.Highs) != x.maxLookback || len(snap.Lows) != x.maxLookback {
		return fmt.Errorf("indicator: extrema snapshot buffer size %d/%d, want %d",
			len(snap.Highs), len(snap.Lows), x.maxLookback)
	}
	copy(x.highs, snap.Highs)
	copy(x.lows, snap.Lows)
	x.next = snap.Next
	x.initialized = snap.Initialized
	if snap.Levels != nil {
		x.levels = *snap.Levels
		x.hasLevels = true
	} else {
		x.levels = model.LevelSet{}
		x.hasLevels = false
	}
	return nil
}

// maxLast scans the n most recently inserted highs, newest first.
func (x *Extrema) maxLast(n int) int64 {
	idx := (x.next - 1 + x.maxLookback) % x.maxLookback
	best := x.highs[idx]
	for i := 1; i < n; i++ {
		idx = (idx - 1 + x.maxLookback) % x.maxLookback
		if x.highs[idx] > best {
			best = x.highs[idx]
		}
	}
	return best
}

// minLast scans the n most recently inserted lows, newest first.
func (x *Extrema) minLast(n int) int64 {
	idx := (x.next - 1 + x.maxLookback) % x.maxLookback
	best := x.lows[idx]
	for i := 1; i < n; i++ {
		idx = (idx - 1 + x.maxLookback) % x.maxLookback
		if x.lows[idx] < best {
			best = x.lows[idx]
		}
	}
	return best
}
