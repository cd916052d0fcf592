package indicator

import (
	"fmt"
	"math"

	"breakout-systemv1/internal/model"
)

// RenkoMethod selects how the brick size is derived.
type RenkoMethod int

const (
	// MethodATR derives the brick size from a Wilder-smoothed ATR,
	// re-quantized whenever a brick closes (adaptive sizing).
	MethodATR RenkoMethod = iota
	// MethodFixed uses the configured brick size directly.
	MethodFixed
)

// RenkoSource selects the reference price fed to the brick engine.
type RenkoSource int

const (
	// SourceHighLow uses the bar high while trending up and the bar low
	// while trending down. Asymmetric on purpose: each direction reacts to
	// its own extreme, matching conventional brick-chart semantics.
	SourceHighLow RenkoSource = iota
	// SourceClose always uses the bar close.
	SourceClose
)

// RenkoConfig configures the brick trend detector. ATRPeriod must be >= 1,
// BrickSize > 0 (dollars, used in fixed mode), Reversal >= 1. TickSize is
// optional (dollars); zero disables quantization.
type RenkoConfig struct {
	Method    RenkoMethod `json:"method"`
	ATRPeriod int         `json:"atr_period"`
	BrickSize float64     `json:"brick_size"`
	Source    RenkoSource `json:"source"`
	Reversal  int         `json:"reversal"`
	TickSize  float64     `json:"tick_size,omitempty"`
}

// Renko converts price action into fixed- or ATR-sized bricks and reports the
// current brick column direction as a discrete trend: +1 up, -1 down.
//
// Five pieces of state interact per bar (box, begin price, trend, brick
// open/close), updated in a strict order: establish trend, then continuation,
// then reversal. Swapping continuation and reversal changes flip timing, so
// the order is load-bearing.
type Renko struct {
	cfg RenkoConfig

	// ATR state (Wilder smoothing, SMA-seeded)
	prevClose float64
	hasPrev   bool
	trWindow  []float64
	trCount   int
	atr       float64
	hasATR    bool

	// Brick state (all prices in dollars)
	box        float64
	hasBox     bool
	beginPrice float64
	hasBegin   bool
	trend      int // 0 unknown, +1 up, -1 down
	brickOpen  float64
	brickClose float64
	hasBrick   bool

	initialized bool
}

// NewRenko creates a brick trend detector. Invalid enum values and
// non-positive periods/sizes are configuration errors.
func NewRenko(cfg RenkoConfig) (*Renko, error) {
	if cfg.Method != MethodATR && cfg.Method != MethodFixed {
		return nil, fmt.Errorf("indicator: invalid renko method %d", cfg.Method)
	}
	if cfg.Source != SourceClose && cfg.Source != SourceHighLow {
		return nil, fmt.Errorf("indicator: invalid renko source %d", cfg.Source)
	}
	if cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("indicator: renko atr period must be >= 1, got %d", cfg.ATRPeriod)
	}
	if cfg.BrickSize <= 0 {
		return nil, fmt.Errorf("indicator: renko brick size must be > 0, got %g", cfg.BrickSize)
	}
	if cfg.Reversal <= 0 {
		return nil, fmt.Errorf("indicator: renko reversal must be >= 1, got %d", cfg.Reversal)
	}
	if cfg.TickSize < 0 {
		return nil, fmt.Errorf("indicator: renko tick size must be >= 0, got %g", cfg.TickSize)
	}
	return &Renko{
		cfg:      cfg,
		trWindow: make([]float64, cfg.ATRPeriod),
	}, nil
}

func (r *Renko) Name() string {
	if r.cfg.Method == MethodATR {
		return "RENKO_ATR_" + model.Itoa(r.cfg.ATRPeriod) + "_" + model.Itoa(r.cfg.Reversal)
	}
	// Fixed brick sizes are encoded in cents to keep names integer-only.
	return "RENKO_FIXED_" + model.Itoa(int(r.cfg.BrickSize*100)) + "_" + model.Itoa(r.cfg.Reversal)
}

func (r *Renko) HandleBar(bar model.Bar) {
	high := model.Dollars(bar.High)
	low := model.Dollars(bar.Low)
	close := model.Dollars(bar.Close)
	open := model.Dollars(bar.Open)

	r.updateATR(high, low, close)

	if !r.hasBox {
		if r.cfg.Method == MethodATR {
			if !r.hasATR {
				return // box size not determinable yet
			}
			r.box = r.quantize(r.atr)
		} else {
			r.box = r.cfg.BrickSize
			if ts := r.cfg.TickSize; ts > 0 && r.box < ts {
				r.box = ts
			}
		}
		r.hasBox = true
	}

	box := r.box
	if box <= 0 {
		return
	}

	// First bar with a usable box anchors the column start at the open,
	// quantized down to a box multiple.
	if !r.hasBegin {
		r.beginPrice = math.Floor(open/box) * box
		r.hasBegin = true
	}

	// Reference price per source: close only, or the directional extreme.
	price := close
	if r.cfg.Source == SourceHighLow {
		if r.trend == 1 {
			price = high
		} else {
			price = low
		}
	}

	begin := r.beginPrice
	prevBrickClose := r.brickClose
	hadBrick := r.hasBrick

	if r.trend == 0 {
		// Establish the initial trend once price is reversal bricks away
		// from the anchor.
		if box*float64(r.cfg.Reversal) <= math.Abs(begin-price) {
			num := math.Floor(math.Abs(begin-price) / box)
			if begin > price {
				r.brickOpen = begin
				r.brickClose = begin - num*box
				r.hasBrick = true
				r.trend = -1
			} else if begin < price {
				r.brickOpen = begin
				r.brickClose = begin + num*box
				r.hasBrick = true
				r.trend = 1
			}
		}
	}

	switch r.trend {
	case -1:
		// Continuation first, reversal only if no continuation printed.
		if begin > price && box <= math.Abs(begin-price) {
			num := math.Floor(math.Abs(begin-price) / box)
			r.brickClose = begin - num*box
			r.hasBrick = true
			r.beginPrice = r.brickClose
		} else {
			rev := close
			if r.cfg.Source == SourceHighLow {
				rev = high
			}
			if begin < rev && box*float64(r.cfg.Reversal) <= math.Abs(begin-rev) {
				num := math.Floor(math.Abs(begin-rev) / box)
				r.brickOpen = begin + box
				r.brickClose = begin + num*box
				r.hasBrick = true
				r.trend = 1
				r.beginPrice = r.brickClose
			}
		}
	case 1:
		if begin < price && box <= math.Abs(begin-price) {
			num := math.Floor(math.Abs(begin-price) / box)
			r.brickClose = begin + num*box
			r.hasBrick = true
			r.beginPrice = r.brickClose
		} else {
			rev := close
			if r.cfg.Source == SourceHighLow {
				rev = low
			}
			if begin > rev && box*float64(r.cfg.Reversal) <= math.Abs(begin-rev) {
				num := math.Floor(math.Abs(begin-rev) / box)
				r.brickOpen = begin - box
				r.brickClose = begin - num*box
				r.hasBrick = true
				r.trend = -1
				r.beginPrice = r.brickClose
			}
		}
	}

	// Adaptive sizing: re-derive the box from the current ATR whenever a
	// brick closed at a new level.
	if r.cfg.Method == MethodATR && r.hasBrick && hadBrick &&
		r.brickClose != prevBrickClose && r.hasATR {
		r.box = r.quantize(r.atr)
	}

	if r.trend != 0 && !r.initialized {
		r.initialized = true
	}
}

// HandleTick reports that this indicator only accepts bars.
func (r *Renko) HandleTick(model.Tick) error { return ErrTickUnsupported }

func (r *Renko) Initialized() bool { return r.initialized }

// Trend returns the current column direction: +1 up, -1 down. ok is false
// until the first trend is established.
func (r *Renko) Trend() (int, bool) {
	if r.trend == 0 {
		return 0, false
	}
	return r.trend, true
}

// Box returns the current brick size in dollars. ok is false while the box
// is still undetermined (ATR not yet seeded).
func (r *Renko) Box() (float64, bool) {
	return r.box, r.hasBox
}

// Signal returns the trend as a signed scalar (±1).
func (r *Renko) Signal() (float64, bool) {
	t, ok := r.Trend()
	return float64(t), ok
}

// Snapshot serializes the brick and ATR state for checkpoint persistence.
func (r *Renko) Snapshot() IndicatorSnapshot {
	trWindow := make([]float64, len(r.trWindow))
	copy(trWindow, r.trWindow)
	return IndicatorSnapshot{
		Name:        r.Name(),
		Type:        KindRenko.String(),
		PrevClose:   r.prevClose,
		HasPrev:     r.hasPrev,
		TRWindow:    trWindow,
		TRCount:     r.trCount,
		ATR:         r.atr,
		HasATR:      r.hasATR,
		Box:         r.box,
		HasBox:      r.hasBox,
		BeginPrice:  r.beginPrice,
		HasBegin:    r.hasBegin,
		Trend:       r.trend,
		BrickOpen:   r.brickOpen,
		BrickClose:  r.brickClose,
		HasBrick:    r.hasBrick,
		Initialized: r.initialized,
	}
}

// RestoreFromSnapshot restores brick and ATR state from a checkpoint.
func (r *Renko) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if len(snap.TRWindow) != r.cfg.ATRPeriod {
		return fmt.Errorf("indicator: renko snapshot tr window size %d, want %d",
			len(snap.TRWindow), r.cfg.ATRPeriod)
	}
	copy(r.trWindow, snap.TRWindow)
	r.prevClose = snap.PrevClose
	r.hasPrev = snap.HasPrev
	r.trCount = snap.TRCount
	r.atr = snap.ATR
	r.hasATR = snap.HasATR
	r.box = snap.Box
	r.hasBox = snap.HasBox
	r.beginPrice = snap.BeginPrice
	r.hasBegin = snap.HasBegin
	r.trend = snap.Trend
	r.brickOpen = snap.BrickOpen
	r.brickClose = snap.BrickClose
	r.hasBrick = snap.HasBrick
	r.initialized = snap.Initialized
	return nil
}

func (r *Renko) Reset() {
	r.prevClose = 0
	r.hasPrev = false
	for i := range r.trWindow {
		r.trWindow[i] = 0
	}
	r.trCount = 0
	r.atr = 0
	r.hasATR = false

	r.box = 0
	r.hasBox = false
	r.beginPrice = 0
	r.hasBegin = false
	r.trend = 0
	r.brickOpen = 0
	r.brickClose = 0
	r.hasBrick = false

	r.initialized = false
}

// updateATR maintains a Wilder-smoothed ATR seeded by a simple average of the
// first atr_period true ranges.
func (r *Renko) updateATR(high, low, close float64) {
	var tr float64
	if !r.hasPrev {
		tr = math.Abs(high - low)
	} else {
		tr = high - low
		if d := math.Abs(high - r.prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(low - r.prevClose); d > tr {
			tr = d
		}
	}

	if !r.hasATR {
		r.trWindow[r.trCount%r.cfg.ATRPeriod] = tr
		r.trCount++
		if r.trCount >= r.cfg.ATRPeriod {
			sum := 0.0
			for _, v := range r.trWindow {
				sum += v
			}
			r.atr = sum / float64(r.cfg.ATRPeriod)
			r.hasATR = true
		}
	} else {
		r.atr = (r.atr*float64(r.cfg.ATRPeriod-1) + tr) / float64(r.cfg.ATRPeriod)
	}

	r.prevClose = close
	r.hasPrev = true
}

// quantize rounds a candidate box size to the nearest tick multiple, floored
// at one tick. Without a tick size it only guards against a zero box.
func (r *Renko) quantize(v float64) float64 {
	if ts := r.cfg.TickSize; ts > 0 {
		q := math.Round(v/ts) * ts
		if q < ts {
			q = ts
		}
		return q
	}
	if v < 1e-12 {
		return 1e-12
	}
	return v
}
