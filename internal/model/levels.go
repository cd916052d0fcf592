package model

// LevelSet holds the four breakout price levels computed by the rolling
// extrema tracker. All levels are in cents and are derived strictly from
// bars preceding the one currently being processed.
type LevelSet struct {
	EntryHigh int64 `json:"entry_high"` // max high over the entry-high lookback
	EntryLow  int64 `json:"entry_low"`  // min low over the entry-low lookback
	ExitHigh  int64 `json:"exit_high"`  // max high over the exit-high lookback
	ExitLow   int64 `json:"exit_low"`   // min low over the exit-low lookback
}

// Regime is a coarse directional classification derived from a smoothed average.
type Regime int

const (
	Bearish Regime = -1
	Bullish Regime = 1
)

func (r Regime) String() string {
	if r == Bullish {
		return "BULLISH"
	}
	return "BEARISH"
}
