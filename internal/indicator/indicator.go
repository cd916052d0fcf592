// Package indicator provides streaming technical indicators over bar data.
//
// All indicators implement the Indicator interface: they consume bars one at
// a time, maintain fixed-capacity internal state (no full-history recompute),
// and expose a strict initialization lifecycle. Levels and signals are always
// computed from bars strictly before the one being ingested — an indicator
// never looks ahead into the current bar's own contribution.
package indicator

import (
	"errors"
	"fmt"

	"breakout-systemv1/internal/model"
)

// ErrTickUnsupported is returned by HandleTick on bar-only indicators.
// The call is rejected without touching indicator state.
var ErrTickUnsupported = errors.New("indicator: tick updates not supported")

// Indicator is the interface for all streaming bar indicators.
type Indicator interface {
	// Name returns the indicator name with its parameters baked in
	// (e.g., "HHLL_1_1_8_1", "EMAREG_50"). Names are stable across runs
	// and used as stream keys and snapshot identities.
	Name() string

	// HandleBar feeds one finalized bar and advances internal state.
	// Bars must arrive in strictly increasing timestamp order.
	HandleBar(bar model.Bar)

	// HandleTick rejects tick-level input on bar-only indicators.
	HandleTick(tick model.Tick) error

	// Initialized reports whether the minimum required history has been
	// consumed. Transitions false→true exactly once; only Reset reverts it.
	Initialized() bool

	// Reset clears all buffers and initialization state without changing
	// configuration. Used for re-runs and tests, never mid-stream.
	Reset()
}

// SignalSource is implemented by indicators that emit a signed scalar signal:
// positive = bullish/long bias, negative = bearish/short bias. The boolean is
// false until the indicator has produced its first value — for some indicators
// this lags Initialized() by one bar.
type SignalSource interface {
	Indicator
	Signal() (float64, bool)
}

// Kind identifies a supported indicator variant.
type Kind int

const (
	KindExtrema Kind = iota // rolling high/low breakout levels
	KindEMARegime
	KindMomentum
	KindRenko
)

func (k Kind) String() string {
	switch k {
	case KindExtrema:
		return "EXTREMA"
	case KindEMARegime:
		return "EMAREGIME"
	case KindMomentum:
		return "MOMENTUM"
	case KindRenko:
		return "RENKO"
	default:
		return "UNKNOWN"
	}
}

// Config is a tagged variant over the supported indicator kinds. Kind selects
// which payload is read; the other payloads are ignored.
type Config struct {
	Kind      Kind            `json:"kind"`
	Extrema   ExtremaConfig   `json:"extrema,omitempty"`
	EMARegime EMARegimeConfig `json:"ema_regime,omitempty"`
	Momentum  MomentumConfig  `json:"momentum,omitempty"`
	Renko     RenkoConfig     `json:"renko,omitempty"`
}

// New constructs the indicator described by cfg. Configuration errors
// (non-positive lookbacks/periods, invalid enum values) fail fast here.
func New(cfg Config) (Indicator, error) {
	switch cfg.Kind {
	case KindExtrema:
		return NewExtrema(cfg.Extrema)
	case KindEMARegime:
		return NewEMARegime(cfg.EMARegime)
	case KindMomentum:
		return NewMomentum(cfg.Momentum)
	case KindRenko:
		return NewRenko(cfg.Renko)
	default:
		return nil, fmt.Errorf("indicator: unknown kind %d", cfg.Kind)
	}
}
