package indicator

import (
	"fmt"

	"breakout-systemv1/internal/model"
)

// EMAMode selects what an EMARegime instance emits as its signal.
type EMAMode int

const (
	// ModeRegime emits a discrete ±1 regime flag: +1 when close > EMA.
	ModeRegime EMAMode = iota
	// ModeDeviation emits a continuous mean-reversion signal:
	// -(close-ema)/ema * amplification, positive when price is below the
	// average.
	ModeDeviation
)

// EMARegimeConfig configures an EMA regime/deviation signal.
// Period must be > 1. Amplification is only used in ModeDeviation;
// zero means the default of 100.
type EMARegimeConfig struct {
	Period        int     `json:"period"`
	Mode          EMAMode `json:"mode"`
	Amplification float64 `json:"amplification,omitempty"`
}

const defaultEMAAmplification = 100.0

// EMARegime maintains a single exponential moving average seeded by a simple
// average of the first Period closes, then updated with k = 2/(Period+1).
// O(1) per bar — no window storage.
type EMARegime struct {
	cfg        EMARegimeConfig
	multiplier float64
	amp        float64

	current float64 // dollars
	count   int
	sum     float64

	regime    model.Regime
	signal    float64
	hasSignal bool
}

// NewEMARegime creates an EMA regime signal. Period <= 1 is a configuration
// error.
func NewEMARegime(cfg EMARegimeConfig) (*EMARegime, error) {
	if cfg.Period <= 1 {
		return nil, fmt.Errorf("indicator: ema period must be >= 2, got %d", cfg.Period)
	}
	if cfg.Mode != ModeRegime && cfg.Mode != ModeDeviation {
		return nil, fmt.Errorf("indicator: invalid ema mode %d", cfg.Mode)
	}
	amp := cfg.Amplification
	if amp == 0 {
		amp = defaultEMAAmplification
	}
	return &EMARegime{
		cfg:        cfg,
		multiplier: 2.0 / float64(cfg.Period+1),
		amp:        amp,
	}, nil
}

func (e *EMARegime) Name() string {
	if e.cfg.Mode == ModeDeviation {
		return "EMADEV_" + model.Itoa(e.cfg.Period)
	}
	return "EMAREG_" + model.Itoa(e.cfg.Period)
}

func (e *EMARegime) HandleBar(bar model.Bar) {
	price := model.Dollars(bar.Close)
	e.count++

	if e.count <= e.cfg.Period {
		// Accumulate for the initial SMA seed
		e.sum += price
		if e.count < e.cfg.Period {
			return
		}
		e.current = e.sum / float64(e.cfg.Period)
	} else {
		e.current = price*e.multiplier + e.current*(1-e.multiplier)
	}

	// Regime and signal update on the same bar that completes the seed —
	// no extra lag beyond the warm-up period.
	if price > e.current {
		e.regime = model.Bullish
	} else {
		e.regime = model.Bearish
	}

	switch e.cfg.Mode {
	case ModeDeviation:
		if e.current == 0 {
			// Degenerate average: neutral signal, not an error
			e.signal = 0
		} else {
			e.signal = -(price - e.current) / e.current * e.amp
		}
	default:
		e.signal = float64(e.regime)
	}
	e.hasSignal = true
}

// HandleTick reports that this indicator only accepts bars.
func (e *EMARegime) HandleTick(model.Tick) error { return ErrTickUnsupported }

func (e *EMARegime) Initialized() bool { return e.count >= e.cfg.Period }

// Average returns the current EMA value in dollars. Zero until initialized.
func (e *EMARegime) Average() float64 { return e.current }

// Regime returns the discrete bullish/bearish flag.
func (e *EMARegime) Regime() (model.Regime, bool) {
	return e.regime, e.hasSignal
}

// Signal returns ±1 in regime mode, or the amplified deviation in deviation
// mode.
func (e *EMARegime) Signal() (float64, bool) {
	return e.signal, e.hasSignal
}

// Snapshot serializes the EMA state for checkpoint persistence.
func (e *EMARegime) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Name:        e.Name(),
		Type:        KindEMARegime.String(),
		Current:     e.current,
		Count:       e.count,
		Sum:         e.sum,
		Regime:      int(e.regime),
		Value:       e.signal,
		HasValue:    e.hasSignal,
		Initialized: e.Initialized(),
	}
}

// RestoreFromSnapshot restores EMA state from a checkpoint.
func (e *EMARegime) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	e.current = snap.Current
	e.count = snap.Count
	e.sum = snap.Sum
	e.regime = model.Regime(snap.Regime)
	e.signal = snap.Value
	e.hasSignal = snap.HasValue
	return nil
}

func (e *EMARegime) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
	e.regime = 0
	e.signal = 0
	e.hasSignal = false
}
