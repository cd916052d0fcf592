package indicator

import (
	"fmt"

	"breakout-systemv1/internal/model"
)

// MomentumConfig configures the volume-weighted momentum signal with
// mean-reversion override. ReversionWindow must be >= 2. Thresholds and
// amplifiers of zero take the defaults below.
type MomentumConfig struct {
	ReversionWindow       int     `json:"reversion_window"`
	MomentumPeakThreshold float64 `json:"momentum_peak_threshold,omitempty"`
	OverboughtThreshold   float64 `json:"overbought_threshold,omitempty"` // basis points
	EntryAmplifier        float64 `json:"entry_amplifier,omitempty"`
	ExitAmplifier         float64 `json:"exit_amplifier,omitempty"`
}

// Defaults matching the tuned strategy parameters.
const (
	defaultMomentumPeakThreshold = 1.0
	defaultOverboughtThreshold   = 2.5 // bps
	defaultEntryAmplifier        = 2.0
	defaultExitAmplifier         = 1.5
)

// Momentum history requirements: the momentum estimator compares two 5-bar
// VWAP windows (10 bars), and the volume factor averages the last 20 volumes.
const (
	momentumBars  = 10
	volFactorBars = 20
	volRecentBars = 3
)

// Momentum combines a volume-weighted short-vs-medium drift estimator
// (entries) with a mean-reversion override (exits). When price deviates
// sharply from its recent mean the reversion signal wins outright — exit
// pressure must never wait on trend re-confirmation.
//
// History is a pair of fixed-capacity circular buffers over (price, volume),
// capacity max(20, reversion_window), oldest evicted on overflow.
type Momentum struct {
	cfg        MomentumConfig
	overbought float64 // decimal threshold (bps / 10000)
	entryAmp   float64
	exitAmp    float64

	capacity int
	prices   []float64 // dollars
	volumes  []float64
	next     int
	size     int

	initialized bool
	value       float64
	hasValue    bool
}

// NewMomentum creates a momentum + mean-reversion signal. A reversion window
// below 2 is a configuration error.
func NewMomentum(cfg MomentumConfig) (*Momentum, error) {
	if cfg.ReversionWindow <= 1 {
		return nil, fmt.Errorf("indicator: reversion window must be >= 2, got %d", cfg.ReversionWindow)
	}
	if cfg.MomentumPeakThreshold == 0 {
		cfg.MomentumPeakThreshold = defaultMomentumPeakThreshold
	}
	if cfg.OverboughtThreshold == 0 {
		cfg.OverboughtThreshold = defaultOverboughtThreshold
	}
	if cfg.EntryAmplifier == 0 {
		cfg.EntryAmplifier = defaultEntryAmplifier
	}
	if cfg.ExitAmplifier == 0 {
		cfg.ExitAmplifier = defaultExitAmplifier
	}

	capacity := volFactorBars
	if cfg.ReversionWindow > capacity {
		capacity = cfg.ReversionWindow
	}

	return &Momentum{
		cfg:        cfg,
		overbought: cfg.OverboughtThreshold / 10000.0,
		entryAmp:   cfg.EntryAmplifier,
		exitAmp:    cfg.ExitAmplifier,
		capacity:   capacity,
		prices:     make([]float64, capacity),
		volumes:    make([]float64, capacity),
	}, nil
}

func (m *Momentum) Name() string {
	return "MOMREV_" + model.Itoa(m.cfg.ReversionWindow)
}

func (m *Momentum) HandleBar(bar model.Bar) {
	m.append(model.Dollars(bar.Close), float64(bar.Volume))

	if !m.initialized && m.size >= m.required() {
		m.initialized = true
	}
	if !m.initialized {
		return
	}

	// Mean reversion takes priority: an overextended price generates
	// exit/profit-taking pressure that overrides any momentum entry.
	if rev := m.meanReversion(); rev != 0 {
		m.value = rev * m.exitAmp
		m.hasValue = true
		return
	}

	m.value = m.momentum() * m.entryAmp
	m.hasValue = true
}

// HandleTick reports that this indicator only accepts bars.
func (m *Momentum) HandleTick(model.Tick) error { return ErrTickUnsupported }

func (m *Momentum) Initialized() bool { return m.initialized }

// Signal returns the current signal value: positive = bullish bias,
// negative = bearish bias.
func (m *Momentum) Signal() (float64, bool) {
	return m.value, m.hasValue
}

func (m *Momentum) Reset() {
	for i := range m.prices {
		m.prices[i] = 0
		m.volumes[i] = 0
	}
	m.next = 0
	m.size = 0
	m.initialized = false
	m.value = 0
	m.hasValue = false
}

// Snapshot serializes the momentum history for checkpoint persistence.
func (m *Momentum) Snapshot() IndicatorSnapshot {
	prices := make([]float64, len(m.prices))
	volumes := make([]float64, len(m.volumes))
	copy(prices, m.prices)
	copy(volumes, m.volumes)
	return IndicatorSnapshot{
		Name:        m.Name(),
		Type:        KindMomentum.String(),
		Prices:      prices,
		Volumes:     volumes,
		Next:        m.next,
		Size:        m.size,
		Value:       m.value,
		HasValue:    m.hasValue,
		Initialized: m.initialized,
	}
}

// RestoreFromSnapshot restores momentum history from a checkpoint.
func (m *Momentum) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if len(snap.Prices) != m.capacity || len(snap.Volumes) != m.capacity {
		return fmt.Errorf("indicator: momentum snapshot buffer size %d/%d, want %d",
			len(snap.Prices), len(snap.Volumes), m.capacity)
	}
	copy(m.prices, snap.Prices)
	copy(m.volumes, snap.Volumes)
	m.next = snap.Next
	m.size = snap.Size
	m.value = snap.Value
	m.hasValue = snap.HasValue
	m.initialized = snap.Initialized
	return nil
}

func (m *Momentum) required() int {
	r := volFactorBars // >= momentumBars
	if m.cfg.ReversionWindow > r {
		r = m.cfg.ReversionWindow
	}
	return r
}

func (m *Momentum) append(price, volume float64) {
	m.prices[m.next] = price
	m.volumes[m.next] = volume
	m.next = (m.next + 1) % m.capacity
	if m.size < m.capacity {
		m.size++
	}
}

// at returns the value `back` bars behind the most recent observation
// (back=0 is the latest).
func (m *Momentum) at(buf []float64, back int) float64 {
	return buf[(m.next-1-back+2*m.capacity)%m.capacity]
}

// meanReversion computes the deviation of the latest price from the mean of
// the reversion window excluding it. Beyond the overbought threshold the
// signal is a fixed ±2.0 against the deviation; smaller but notable
// deviations (>10bps) produce a proportional counter-signal.
func (m *Momentum) meanReversion() float64 {
	n := m.cfg.ReversionWindow
	if m.size < n {
		return 0
	}

	sum := 0.0
	for back := 1; back < n; back++ {
		sum += m.at(m.prices, back)
	}
	mean := sum / float64(n-1)
	if mean == 0 {
		return 0
	}

	deviation := (m.at(m.prices, 0) - mean) / mean

	if deviation > m.overbought {
		return -2.0 // strong sell
	}
	if deviation < -m.overbought {
		return 2.0 // strong buy
	}
	if deviation > 0.001 || deviation < -0.001 {
		return -deviation * 10.0
	}
	return 0
}

// momentum computes the relative change of the recent 5-bar VWAP vs the
// older 5-bar VWAP, amplified by a capped volume factor (last 3 bars vs
// last 20 bars average volume).
func (m *Momentum) momentum() float64 {
	if m.size < momentumBars {
		return 0
	}

	vwapRecent := m.vwap(0, 5)
	vwapOlder := m.vwap(5, 5)
	if vwapOlder == 0 {
		return 0
	}
	momentum := (vwapRecent - vwapOlder) / vwapOlder

	// Volume factor: recent burst relative to the 20-bar baseline, floor 1
	baseN := volFactorBars
	if m.size < baseN {
		baseN = m.size
	}
	base := 0.0
	for back := 0; back < baseN; back++ {
		base += m.at(m.volumes, back)
	}
	base /= float64(baseN)

	recentN := volRecentBars
	if m.size < recentN {
		recentN = m.size
	}
	recent := 0.0
	for back := 0; back < recentN; back++ {
		recent += m.at(m.volumes, back)
	}
	recent /= float64(recentN)

	if base < 1.0 {
		base = 1.0
	}
	volFactor := recent / base
	if volFactor > 5.0 {
		volFactor = 5.0
	}

	return momentum * 1500.0 * volFactor
}

// vwap computes the volume-weighted average price over count bars starting
// `offset` bars back, falling back to a plain mean when the window has no
// volume.
func (m *Momentum) vwap(offset, count int) float64 {
	sumPV, sumV, sumP := 0.0, 0.0, 0.0
	for i := 0; i < count; i++ {
		p := m.at(m.prices, offset+i)
		v := m.at(m.volumes, offset+i)
		sumPV += p * v
		sumV += v
		sumP += p
	}
	if sumV > 0 {
		return sumPV / sumV
	}
	return sumP / float64(count)
}
