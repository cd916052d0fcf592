package indicator

import (
	"math"
	"testing"

	"breakout-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

// hlBar builds a daily bar with explicit high/low (cents).
func hlBar(high, low int64) model.Bar {
	return model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 86400,
		Open: low + (high-low)/2, High: high, Low: low, Close: low + (high-low)/2,
		Volume: 1000,
	}
}

// cvBar builds a bar from close (cents) and volume.
func cvBar(close, volume int64) model.Bar {
	return model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 3600,
		Open: close, High: close + 50, Low: close - 50, Close: close,
		Volume: volume,
	}
}

// ohlcBar builds a bar with full OHLC in cents.
func ohlcBar(open, high, low, close int64) model.Bar {
	return model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 86400,
		Open: open, High: high, Low: low, Close: close,
		Volume: 1000,
	}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// Extrema Correctness
// ────────────────────────────────────────────────────────────

func TestExtrema_AllLookbacksOne(t *testing.T) {
	// Lookbacks all 1 → levels are exactly the previous bar's high/low.
	// Highs/lows in dollars: (10,8), (12,9), (11,7)
	// After bar 1: initialized (max_lookback=1), no levels yet.
	// After bar 2: entry_high=10, entry_low=8 (from bar 1 only).
	// After bar 3: entry_high=12, entry_low=9 (from bar 2 only).
	x, err := NewExtrema(ExtremaConfig{1, 1, 1, 1})
	if err != nil {
		t.Fatalf("NewExtrema: %v", err)
	}

	x.HandleBar(hlBar(1000, 800))
	if !x.Initialized() {
		t.Fatal("bar 1: expected initialized")
	}
	if _, ok := x.Levels(); ok {
		t.Fatal("bar 1: expected no levels yet (one-bar lag)")
	}

	x.HandleBar(hlBar(1200, 900))
	levels, ok := x.Levels()
	if !ok {
		t.Fatal("bar 2: expected levels")
	}
	if levels.EntryHigh != 1000 || levels.EntryLow != 800 {
		t.Errorf("bar 2: entry levels = %d/%d, want 1000/800", levels.EntryHigh, levels.EntryLow)
	}

	x.HandleBar(hlBar(1100, 700))
	levels, _ = x.Levels()
	if levels.EntryHigh != 1200 || levels.EntryLow != 900 {
		t.Errorf("bar 3: entry levels = %d/%d, want 1200/900", levels.EntryHigh, levels.EntryLow)
	}
}

func TestExtrema_ExcludesCurrentBar(t *testing.T) {
	// Lookbacks all 2. Bars (high, low):
	//   (10,9), (11,8), (12,7), (13,6)
	// After bar 3: window = bars 1..2 → high=11, low=8
	// After bar 4: window = bars 2..3 → high=12, low=7
	// The current bar's own extremes never appear in its levels.
	x, err := NewExtrema(ExtremaConfig{2, 2, 2, 2})
	if err != nil {
		t.Fatalf("NewExtrema: %v", err)
	}

	x.HandleBar(hlBar(1000, 900))
	x.HandleBar(hlBar(1100, 800))
	x.HandleBar(hlBar(1200, 700))
	levels, ok := x.Levels()
	if !ok {
		t.Fatal("bar 3: expected levels")
	}
	if levels.EntryHigh != 1100 || levels.EntryLow != 800 {
		t.Errorf("bar 3: levels = %d/%d, want 1100/800", levels.EntryHigh, levels.EntryLow)
	}

	x.HandleBar(hlBar(1300, 600))
	levels, _ = x.Levels()
	if levels.EntryHigh != 1200 || levels.EntryLow != 700 {
		t.Errorf("bar 4: levels = %d/%d, want 1200/700", levels.EntryHigh, levels.EntryLow)
	}
}

func TestExtrema_MixedLookbacks(t *testing.T) {
	// Entry lookbacks 1, exit lookbacks 3 → max_lookback=3.
	// Bars (high, low): (10,9), (12,8), (11,7), (13,6)
	// Initialized on bar 3; first levels on bar 4:
	//   entry_high = bar 3 high = 11, entry_low = bar 3 low = 7
	//   exit_high  = max(10,12,11) = 12, exit_low = min(9,8,7) = 7
	x, err := NewExtrema(ExtremaConfig{
		EntryHighLookback: 1, EntryLowLookback: 1,
		ExitHighLookback: 3, ExitLowLookback: 3,
	})
	if err != nil {
		t.Fatalf("NewExtrema: %v", err)
	}

	bars := []model.Bar{
		hlBar(1000, 900), hlBar(1200, 800), hlBar(1100, 700),
	}
	for i, b := range bars {
		x.HandleBar(b)
		wantInit := i == 2
		if x.Initialized() != wantInit {
			t.Errorf("bar %d: initialized=%v, want %v", i+1, x.Initialized(), wantInit)
		}
	}
	if _, ok := x.Levels(); ok {
		t.Fatal("bar 3: expected no levels on the initializing bar")
	}

	x.HandleBar(hlBar(1300, 600))
	levels, ok := x.Levels()
	if !ok {
		t.Fatal("bar 4: expected levels")
	}
	if levels.EntryHigh != 1100 || levels.EntryLow != 700 {
		t.Errorf("bar 4: entry = %d/%d, want 1100/700", levels.EntryHigh, levels.EntryLow)
	}
	if levels.ExitHigh != 1200 || levels.ExitLow != 700 {
		t.Errorf("bar 4: exit = %d/%d, want 1200/700", levels.ExitHigh, levels.ExitLow)
	}
}

func TestExtrema_InitializedOnExactBar(t *testing.T) {
	x, err := NewExtrema(ExtremaConfig{3, 2, 5, 1})
	if err != nil {
		t.Fatalf("NewExtrema: %v", err)
	}
	for i := 1; i <= 8; i++ {
		x.HandleBar(hlBar(int64(1000+i), int64(900-i)))
		wantInit := i >= 5 // max lookback
		if x.Initialized() != wantInit {
			t.Errorf("bar %d: initialized=%v, want %v", i, x.Initialized(), wantInit)
		}
	}
}

func TestExtrema_ConfigErrors(t *testing.T) {
	bad := []ExtremaConfig{
		{0, 1, 1, 1}, {1, -1, 1, 1}, {1, 1, 0, 1}, {1, 1, 1, 0},
	}
	for i, cfg := range bad {
		if _, err := NewExtrema(cfg); err == nil {
			t.Errorf("config %d: expected error for %+v", i, cfg)
		}
	}
}

// ────────────────────────────────────────────────────────────
// EMA Regime Correctness
// ────────────────────────────────────────────────────────────

func TestEMARegime_SeedAndRecurrence(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Closes (dollars): 100, 102, 104, 103, 105
	//
	// Bar 3: SMA seed = (100+102+104)/3 = 102.0 → close 104 > 102 → bullish
	// Bar 4: EMA = 103*0.5 + 102.0*0.5 = 102.5  → close 103 > 102.5 → bullish
	// Bar 5: EMA = 105*0.5 + 102.5*0.5 = 103.75 → bullish
	e, err := NewEMARegime(EMARegimeConfig{Period: 3})
	if err != nil {
		t.Fatalf("NewEMARegime: %v", err)
	}

	closes := []int64{10000, 10200, 10400, 10300, 10500}
	wantEMA := []float64{0, 0, 102.0, 102.5, 103.75}
	wantInit := []bool{false, false, true, true, true}

	for i, c := range closes {
		e.HandleBar(cvBar(c, 1000))
		if e.Initialized() != wantInit[i] {
			t.Errorf("bar %d: initialized=%v, want %v", i+1, e.Initialized(), wantInit[i])
		}
		if wantInit[i] {
			assertClose(t, "EMA value", e.Average(), wantEMA[i], 0.0001)
			regime, ok := e.Regime()
			if !ok || regime != model.Bullish {
				t.Errorf("bar %d: regime=%v ok=%v, want bullish", i+1, regime, ok)
			}
			sig, _ := e.Signal()
			assertClose(t, "regime signal", sig, 1.0, 0.0001)
		}
	}
}

func TestEMARegime_ConstantSeriesConverges(t *testing.T) {
	// Constant closes → EMA equals the constant; close == ema is bearish
	// (regime requires strictly above).
	e, _ := NewEMARegime(EMARegimeConfig{Period: 5})
	for i := 0; i < 30; i++ {
		e.HandleBar(cvBar(25000, 1000))
	}
	assertClose(t, "constant EMA", e.Average(), 250.0, 1e-9)
	regime, ok := e.Regime()
	if !ok || regime != model.Bearish {
		t.Errorf("regime=%v ok=%v, want bearish on flat series", regime, ok)
	}
}

func TestEMADeviation_Signal(t *testing.T) {
	// Period 2, default amplification 100. Closes: 100, 102, 100.
	// Bar 2: seed EMA = 101, close above → signal = -(102-101)/101*100 ≈ -0.9901
	// Bar 3: EMA = 100*(2/3) + 101*(1/3) = 100.3333
	//        signal = -(100-100.3333)/100.3333*100 ≈ +0.3322 (below avg → long)
	e, err := NewEMARegime(EMARegimeConfig{Period: 2, Mode: ModeDeviation})
	if err != nil {
		t.Fatalf("NewEMARegime: %v", err)
	}

	e.HandleBar(cvBar(10000, 1000))
	if _, ok := e.Signal(); ok {
		t.Fatal("bar 1: expected no signal before seed")
	}

	e.HandleBar(cvBar(10200, 1000))
	sig, ok := e.Signal()
	if !ok {
		t.Fatal("bar 2: expected signal")
	}
	assertClose(t, "deviation bar 2", sig, -(102.0-101.0)/101.0*100.0, 1e-9)
	if sig >= 0 {
		t.Error("price above average must produce a negative (short) signal")
	}

	e.HandleBar(cvBar(10000, 1000))
	sig, _ = e.Signal()
	if sig <= 0 {
		t.Error("price below average must produce a positive (long) signal")
	}
}

func TestEMADeviation_ZeroAverageNeutral(t *testing.T) {
	// A degenerate all-zero series keeps the EMA at zero; the deviation
	// signal must be neutral, not a division error.
	e, _ := NewEMARegime(EMARegimeConfig{Period: 2, Mode: ModeDeviation})
	for i := 0; i < 5; i++ {
		e.HandleBar(cvBar(0, 1000))
	}
	sig, ok := e.Signal()
	if !ok {
		t.Fatal("expected a (neutral) signal")
	}
	if sig != 0 {
		t.Errorf("signal=%v, want 0 on zero average", sig)
	}
}

func TestEMARegime_ConfigErrors(t *testing.T) {
	if _, err := NewEMARegime(EMARegimeConfig{Period: 1}); err == nil {
		t.Error("expected error for period 1")
	}
	if _, err := NewEMARegime(EMARegimeConfig{Period: 0}); err == nil {
		t.Error("expected error for period 0")
	}
}

// ────────────────────────────────────────────────────────────
// Momentum Mean-Reversion Correctness
// ────────────────────────────────────────────────────────────

func TestMomentum_StrongReversionPriority(t *testing.T) {
	// 19 flat bars at $100, then a spike to $101.
	// Deviation = (101-100)/100 = 1% >> 2.5bps threshold → strong sell:
	// value = -2.0 * exit_amplifier(1.5) = -3.0, regardless of volume.
	for _, spikeVol := range []int64{1000, 1_000_000} {
		m, err := NewMomentum(MomentumConfig{ReversionWindow: 15})
		if err != nil {
			t.Fatalf("NewMomentum: %v", err)
		}
		for i := 0; i < 19; i++ {
			m.HandleBar(cvBar(10000, 1000))
		}
		if m.Initialized() {
			t.Fatal("expected uninitialized at 19 bars")
		}
		m.HandleBar(cvBar(10100, spikeVol))
		if !m.Initialized() {
			t.Fatal("expected initialized at 20 bars")
		}
		sig, ok := m.Signal()
		if !ok {
			t.Fatal("expected signal")
		}
		assertClose(t, "strong sell", sig, -3.0, 1e-9)
	}
}

func TestMomentum_StrongBuyOnDump(t *testing.T) {
	m, _ := NewMomentum(MomentumConfig{ReversionWindow: 15})
	for i := 0; i < 19; i++ {
		m.HandleBar(cvBar(10000, 1000))
	}
	m.HandleBar(cvBar(9900, 1000)) // -1% vs mean
	sig, _ := m.Signal()
	assertClose(t, "strong buy", sig, 3.0, 1e-9)
}

func TestMomentum_ModerateReversion(t *testing.T) {
	// Raise the strong threshold to 100bps so a 0.5% move lands in the
	// moderate band: value = -deviation*10 * exit_amplifier
	//             = -0.005*10*1.5 = -0.075
	m, err := NewMomentum(MomentumConfig{ReversionWindow: 15, OverboughtThreshold: 100})
	if err != nil {
		t.Fatalf("NewMomentum: %v", err)
	}
	for i := 0; i < 19; i++ {
		m.HandleBar(cvBar(10000, 1000))
	}
	m.HandleBar(cvBar(10050, 1000))
	sig, _ := m.Signal()
	assertClose(t, "moderate reversion", sig, -0.075, 1e-9)
}

func TestMomentum_VWAPFallbackEntry(t *testing.T) {
	// Reversion window 2 with two equal trailing closes → zero deviation,
	// so the momentum path drives the value.
	// 15 bars at $100 then 5 bars at $102, equal volume:
	//   vwap_recent = 102, vwap_older = 100 → momentum = 0.02
	//   volume factor = 1 → value = 0.02*1500*1 * entry_amplifier(2) = 60
	m, err := NewMomentum(MomentumConfig{ReversionWindow: 2})
	if err != nil {
		t.Fatalf("NewMomentum: %v", err)
	}
	for i := 0; i < 15; i++ {
		m.HandleBar(cvBar(10000, 1000))
	}
	for i := 0; i < 5; i++ {
		m.HandleBar(cvBar(10200, 1000))
	}
	sig, ok := m.Signal()
	if !ok {
		t.Fatal("expected signal")
	}
	assertClose(t, "momentum entry", sig, 60.0, 1e-6)
}

func TestMomentum_VolumeFactorCapped(t *testing.T) {
	// Same price path as the fallback test, but the last 3 bars carry a
	// massive volume burst: factor = 100000 / ((17*100+3*100000)/20) ≈ 6.63,
	// capped at 5 → value = 0.02*1500*5*2 = 300.
	m, _ := NewMomentum(MomentumConfig{ReversionWindow: 2})
	for i := 0; i < 15; i++ {
		m.HandleBar(cvBar(10000, 100))
	}
	for i := 0; i < 5; i++ {
		vol := int64(100)
		if i >= 2 {
			vol = 100_000
		}
		m.HandleBar(cvBar(10200, vol))
	}
	sig, _ := m.Signal()
	assertClose(t, "capped volume factor", sig, 300.0, 1e-6)
}

func TestMomentum_ZeroVolumeWindows(t *testing.T) {
	// All-zero volumes: VWAPs fall back to plain means, and the volume
	// factor collapses to 0 → neutral momentum value, not an error.
	m, _ := NewMomentum(MomentumConfig{ReversionWindow: 2})
	for i := 0; i < 15; i++ {
		m.HandleBar(cvBar(10000, 0))
	}
	for i := 0; i < 5; i++ {
		m.HandleBar(cvBar(10200, 0))
	}
	sig, ok := m.Signal()
	if !ok {
		t.Fatal("expected signal")
	}
	if sig != 0 {
		t.Errorf("signal=%v, want 0 with zero volume", sig)
	}
}

func TestMomentum_InitializedTiming(t *testing.T) {
	// required = max(20, 10, reversion_window)
	cases := []struct {
		window int
		want   int
	}{
		{15, 20},
		{2, 20},
		{25, 25},
	}
	for _, tc := range cases {
		m, _ := NewMomentum(MomentumConfig{ReversionWindow: tc.window})
		for i := 1; i <= tc.want+3; i++ {
			m.HandleBar(cvBar(10000, 1000))
			if m.Initialized() != (i >= tc.want) {
				t.Errorf("window=%d bar=%d: initialized=%v, want %v",
					tc.window, i, m.Initialized(), i >= tc.want)
			}
		}
	}
}

func TestMomentum_ConfigErrors(t *testing.T) {
	if _, err := NewMomentum(MomentumConfig{ReversionWindow: 1}); err == nil {
		t.Error("expected error for window 1")
	}
	if _, err := NewMomentum(MomentumConfig{ReversionWindow: 0}); err == nil {
		t.Error("expected error for window 0")
	}
}

// ────────────────────────────────────────────────────────────
// Renko Trend Correctness
// ────────────────────────────────────────────────────────────

func TestRenkoFixed_EstablishContinueReverse(t *testing.T) {
	// Fixed $1 bricks, reversal 2, close source.
	// First open $100.40 → begin = floor(100.40/1)*1 = 100.
	//
	// close 100.50: |100-100.5| = 0.5 < 2 → no trend yet
	// close 102.30: 2.3 >= 2 → up column, brick close 102, begin 102
	// close 102.50: +0.5 < 1 box → no new brick
	// close 100.20: -1.8 against trend < 2 boxes → still up
	// close  99.90: -2.1 >= 2 boxes → flip down, brick close 100
	r, err := NewRenko(RenkoConfig{
		Method: MethodFixed, ATRPeriod: 14, BrickSize: 1.0,
		Source: SourceClose, Reversal: 2,
	})
	if err != nil {
		t.Fatalf("NewRenko: %v", err)
	}

	r.HandleBar(ohlcBar(10040, 10060, 10020, 10050))
	if r.Initialized() {
		t.Fatal("bar 1: no trend should be established yet")
	}
	if _, ok := r.Trend(); ok {
		t.Fatal("bar 1: expected unset trend")
	}

	r.HandleBar(ohlcBar(10100, 10240, 10090, 10230))
	if !r.Initialized() {
		t.Fatal("bar 2: expected initialized on first trend")
	}
	trend, ok := r.Trend()
	if !ok || trend != 1 {
		t.Fatalf("bar 2: trend=%d ok=%v, want +1", trend, ok)
	}

	r.HandleBar(ohlcBar(10230, 10260, 10220, 10250))
	if trend, _ := r.Trend(); trend != 1 {
		t.Errorf("bar 3: trend=%d, want +1 (no brick printed)", trend)
	}

	r.HandleBar(ohlcBar(10240, 10250, 10010, 10020))
	if trend, _ := r.Trend(); trend != 1 {
		t.Errorf("bar 4: trend=%d, want +1 (1.8 boxes is below the reversal)", trend)
	}

	r.HandleBar(ohlcBar(10010, 10020, 9980, 9990))
	if trend, _ := r.Trend(); trend != -1 {
		t.Errorf("bar 5: trend=%d, want -1 after 2.1-box adverse move", trend)
	}
	sig, ok := r.Signal()
	if !ok || sig != -1.0 {
		t.Errorf("bar 5: signal=%v ok=%v, want -1", sig, ok)
	}
}

func TestRenko_ValueAlwaysUnitAfterInit(t *testing.T) {
	r, _ := NewRenko(RenkoConfig{
		Method: MethodFixed, ATRPeriod: 14, BrickSize: 0.5,
		Source: SourceClose, Reversal: 2,
	})
	closes := []int64{10000, 10120, 10260, 10080, 9900, 9950, 10300, 10310}
	for _, c := range closes {
		r.HandleBar(ohlcBar(c, c+30, c-30, c))
		if sig, ok := r.Signal(); ok {
			if sig != 1.0 && sig != -1.0 {
				t.Fatalf("signal=%v, want ±1 once established", sig)
			}
		}
	}
	if !r.Initialized() {
		t.Fatal("expected a trend over this path")
	}
}

func TestRenkoATR_AdaptiveBox(t *testing.T) {
	// ATR(2) seeded by SMA of the first two true ranges, quantized to a
	// $0.25 tick. Bricks re-derive the box after each close change.
	//
	// bar 1: o=100  h=101   l=99    c=100   → TR=2, ATR pending, no box
	// bar 2: o=101  h=102   l=100   c=101   → TR=2, ATR=2 → box=2.00, begin=100
	// bar 3: o=104  h=104.5 l=103   c=104.2 → TR=3.5, ATR=2.75
	//         |100-104.2| = 4.2 ≥ box → up column, brick close 104
	//         (first brick: box unchanged at 2.00)
	// bar 4: o=106  h=107   l=105.5 c=106.5 → TR=2.8, ATR=2.775
	//         continuation brick to 106 → box requantized: 2.775→2.75
	r, err := NewRenko(RenkoConfig{
		Method: MethodATR, ATRPeriod: 2, BrickSize: 1.0,
		Source: SourceClose, Reversal: 1, TickSize: 0.25,
	})
	if err != nil {
		t.Fatalf("NewRenko: %v", err)
	}

	r.HandleBar(ohlcBar(10000, 10100, 9900, 10000))
	if _, ok := r.Box(); ok {
		t.Fatal("bar 1: box must be undetermined before ATR seeds")
	}

	r.HandleBar(ohlcBar(10100, 10200, 10000, 10100))
	box, ok := r.Box()
	if !ok {
		t.Fatal("bar 2: expected box")
	}
	assertClose(t, "seeded box", box, 2.0, 1e-9)
	if r.Initialized() {
		t.Fatal("bar 2: no trend expected yet")
	}

	r.HandleBar(ohlcBar(10400, 10450, 10300, 10420))
	trend, ok := r.Trend()
	if !ok || trend != 1 {
		t.Fatalf("bar 3: trend=%d ok=%v, want +1", trend, ok)
	}
	box, _ = r.Box()
	assertClose(t, "box after first brick", box, 2.0, 1e-9)

	r.HandleBar(ohlcBar(10600, 10700, 10550, 10650))
	box, _ = r.Box()
	assertClose(t, "requantized box", box, 2.75, 1e-9)
}

func TestRenko_HighLowSourceAsymmetry(t *testing.T) {
	// hl source reads the high while trending up and the low while
	// trending down, so it advances and flips on the directional extreme
	// where a close source sees nothing.
	hl, _ := NewRenko(RenkoConfig{
		Method: MethodFixed, ATRPeriod: 14, BrickSize: 1.0,
		Source: SourceHighLow, Reversal: 2,
	})
	cl, _ := NewRenko(RenkoConfig{
		Method: MethodFixed, ATRPeriod: 14, BrickSize: 1.0,
		Source: SourceClose, Reversal: 2,
	})

	bars := []model.Bar{
		ohlcBar(10000, 10080, 9950, 10020),
		ohlcBar(10200, 10300, 10200, 10250), // low 102 → hl establishes up
		ohlcBar(10260, 10340, 10250, 10260), // high 103.4 → hl prints a brick
		ohlcBar(10150, 10190, 10120, 10150),
		ohlcBar(10100, 10130, 10090, 10100), // low 100.9 → hl flips down
	}
	for _, b := range bars {
		hl.HandleBar(b)
		cl.HandleBar(b)
	}

	hlTrend, ok := hl.Trend()
	if !ok || hlTrend != -1 {
		t.Errorf("hl source: trend=%d ok=%v, want -1", hlTrend, ok)
	}
	clTrend, ok := cl.Trend()
	if !ok || clTrend != 1 {
		t.Errorf("close source: trend=%d ok=%v, want +1 (closes never crossed)", clTrend, ok)
	}
}

func TestRenko_ConfigErrors(t *testing.T) {
	base := RenkoConfig{Method: MethodATR, ATRPeriod: 14, BrickSize: 1.0, Source: SourceClose, Reversal: 2}

	bad := base
	bad.ATRPeriod = 0
	if _, err := NewRenko(bad); err == nil {
		t.Error("expected error for atr period 0")
	}
	bad = base
	bad.BrickSize = 0
	if _, err := NewRenko(bad); err == nil {
		t.Error("expected error for brick size 0")
	}
	bad = base
	bad.Reversal = 0
	if _, err := NewRenko(bad); err == nil {
		t.Error("expected error for reversal 0")
	}
	bad = base
	bad.Method = RenkoMethod(9)
	if _, err := NewRenko(bad); err == nil {
		t.Error("expected error for bad method")
	}
	bad = base
	bad.Source = RenkoSource(9)
	if _, err := NewRenko(bad); err == nil {
		t.Error("expected error for bad source")
	}
}

// ────────────────────────────────────────────────────────────
// Shared lifecycle properties
// ────────────────────────────────────────────────────────────

func TestHandleTick_RejectedWithoutStateChange(t *testing.T) {
	configs := []Config{
		{Kind: KindExtrema, Extrema: ExtremaConfig{1, 1, 1, 1}},
		{Kind: KindEMARegime, EMARegime: EMARegimeConfig{Period: 3}},
		{Kind: KindMomentum, Momentum: MomentumConfig{ReversionWindow: 5}},
		{Kind: KindRenko, Renko: RenkoConfig{Method: MethodFixed, ATRPeriod: 14, BrickSize: 1.0, Source: SourceClose, Reversal: 2}},
	}
	tick := model.Tick{Symbol: "VOO", Venue: "NYSE", Price: 10000, Qty: 10}

	for _, cfg := range configs {
		ind, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: %v", cfg.Kind, err)
		}
		for i := 0; i < 25; i++ {
			ind.HandleBar(cvBar(int64(10000+i*20), 1000))
		}
		before := ind.Initialized()

		if err := ind.HandleTick(tick); err != ErrTickUnsupported {
			t.Errorf("%s: HandleTick err=%v, want ErrTickUnsupported", ind.Name(), err)
		}
		if ind.Initialized() != before {
			t.Errorf("%s: tick rejection must not touch state", ind.Name())
		}
	}
}

func TestReset_ReproducesFreshRun(t *testing.T) {
	// reset() + re-feed must be bit-identical to a fresh instance.
	configs := []Config{
		{Kind: KindExtrema, Extrema: ExtremaConfig{2, 2, 3, 1}},
		{Kind: KindEMARegime, EMARegime: EMARegimeConfig{Period: 4, Mode: ModeDeviation}},
		{Kind: KindMomentum, Momentum: MomentumConfig{ReversionWindow: 5}},
		{Kind: KindRenko, Renko: RenkoConfig{Method: MethodATR, ATRPeriod: 3, BrickSize: 1.0, Source: SourceHighLow, Reversal: 2, TickSize: 0.05}},
	}

	bars := make([]model.Bar, 0, 40)
	px := int64(10000)
	for i := 0; i < 40; i++ {
		// Deterministic zig-zag path with drift
		if i%7 < 4 {
			px += int64(35 + i%5*10)
		} else {
			px -= int64(50 + i%3*15)
		}
		bars = append(bars, ohlcBar(px, px+60, px-60, px))
	}

	for _, cfg := range configs {
		fresh, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: %v", cfg.Kind, err)
		}
		reused, _ := New(cfg)

		// Dirty the reused instance, then reset
		for _, b := range bars[:17] {
			reused.HandleBar(b)
		}
		reused.Reset()
		if reused.Initialized() {
			t.Fatalf("%s: initialized must clear on reset", reused.Name())
		}

		for i, b := range bars {
			fresh.HandleBar(b)
			reused.HandleBar(b)
			if fresh.Initialized() != reused.Initialized() {
				t.Fatalf("%s bar %d: initialized diverged", fresh.Name(), i)
			}
			f, fok := signalOf(fresh)
			r, rok := signalOf(reused)
			if fok != rok || f != r {
				t.Fatalf("%s bar %d: output diverged: %v/%v vs %v/%v",
					fresh.Name(), i, f, fok, r, rok)
			}
		}
	}
}

// signalOf extracts a comparable scalar from any indicator kind.
func signalOf(ind Indicator) (float64, bool) {
	switch v := ind.(type) {
	case *Extrema:
		levels, ok := v.Levels()
		return float64(levels.EntryHigh + levels.EntryLow + levels.ExitHigh + levels.ExitLow), ok
	case SignalSource:
		return v.Signal()
	default:
		return 0, false
	}
}
