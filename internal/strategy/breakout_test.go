package strategy

import (
	"testing"

	"breakout-systemv1/internal/indicator"
	"breakout-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func testConfig() BreakoutConfig {
	return BreakoutConfig{
		Primary:    "VOO",
		Hedge:      "SH",
		Venue:      "NYSE",
		LevelTF:    86400,
		DecisionTF: 3600,
		Levels:     indicator.ExtremaConfig{EntryHighLookback: 1, EntryLowLookback: 1, ExitHighLookback: 1, ExitLowLookback: 1},
		Signal:     indicator.Config{Kind: indicator.KindEMARegime, EMARegime: indicator.EMARegimeConfig{Period: 2}},
	}
}

func daily(high, low int64) model.Bar {
	return model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 86400,
		Open: low, High: high, Low: low, Close: high, Volume: 10000,
	}
}

func hourly(high, low, close int64) model.Bar {
	return model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 3600,
		Open: close, High: high, Low: low, Close: close, Volume: 1000,
	}
}

func hedgeBar(close int64) model.Bar {
	return model.Bar{
		Symbol: "SH", Venue: "NYSE", TF: 3600,
		Open: close, High: close + 10, Low: close - 10, Close: close, Volume: 1000,
	}
}

func flat(balance int64) model.PortfolioSnapshot {
	return model.PortfolioSnapshot{Balance: balance}
}

// warmBullish feeds enough bars for levels (entry/exit high=100.00,
// low=90.00 from day 1) and a bullish EMA(2) signal, without ever
// crossing a level during warm-up.
func warmBullish(t *testing.T, b *Breakout) {
	t.Helper()
	if sig := b.OnBar(daily(10000, 9000), flat(0)); sig != nil {
		t.Fatalf("warmup daily 1 emitted %+v", sig)
	}
	if sig := b.OnBar(daily(10050, 9100), flat(0)); sig != nil {
		t.Fatalf("warmup daily 2 emitted %+v", sig)
	}
	// EMA(2) seed of 98, 99 → close 99 > 98.5: bullish
	for _, c := range []int64{9800, 9900} {
		if sig := b.OnBar(hourly(c+50, c-50, c), flat(0)); sig != nil {
			t.Fatalf("warmup hourly emitted %+v", sig)
		}
	}
}

// warmBearish is warmBullish with a declining hourly series.
func warmBearish(t *testing.T, b *Breakout) {
	t.Helper()
	b.OnBar(daily(10000, 9000), flat(0))
	b.OnBar(daily(10050, 9100), flat(0))
	for _, c := range []int64{9800, 9700} {
		if sig := b.OnBar(hourly(c+50, c-50, c), flat(0)); sig != nil {
			t.Fatalf("warmup hourly emitted %+v", sig)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Entries
// ────────────────────────────────────────────────────────────

func TestBreakout_EnterLongSized(t *testing.T) {
	// Flat, bullish regime, bar.high 105.00 > entry_high 100.00, balance
	// $1,000,000 → exactly one BUY sized floor(balance*0.95/close).
	b, err := NewBreakout(testConfig())
	if err != nil {
		t.Fatalf("NewBreakout: %v", err)
	}
	warmBullish(t, b)

	sig := b.OnBar(hourly(10500, 10100, 10300), flat(100_000_000))
	if sig == nil {
		t.Fatal("expected an entry signal")
	}
	if sig.Action != ActionBuy || sig.Symbol != "VOO" {
		t.Fatalf("signal = %+v, want BUY VOO", sig)
	}
	// floor(100_000_000 * 0.95 / 10300) = 9223
	if sig.Qty != 9223 {
		t.Errorf("qty = %d, want 9223", sig.Qty)
	}
	if sig.Price != 0 {
		t.Errorf("price = %d, want 0 (market order)", sig.Price)
	}
}

func TestBreakout_EntryNeedsBreakoutAndSignal(t *testing.T) {
	// Bullish signal alone (no level crossed) must not enter.
	b, _ := NewBreakout(testConfig())
	warmBullish(t, b)
	if sig := b.OnBar(hourly(9950, 9200, 9900), flat(100_000_000)); sig != nil {
		t.Errorf("no breakout: expected nil, got %+v", sig)
	}

	// Upside breakout with a bearish signal must not enter either.
	b2, _ := NewBreakout(testConfig())
	warmBearish(t, b2)
	if sig := b2.OnBar(hourly(10500, 9200, 9300), flat(100_000_000)); sig != nil {
		t.Errorf("bearish + high breakout: expected nil, got %+v", sig)
	}
}

func TestBreakout_EntryRequiresBothFlat(t *testing.T) {
	b, _ := NewBreakout(testConfig())
	warmBullish(t, b)

	pf := model.PortfolioSnapshot{NetHedge: 10, Balance: 100_000_000}
	// Hedge bar.high stays below exit_high so the hedge exit does not fire
	if sig := b.OnBar(hourly(9990, 9500, 9900), pf); sig != nil {
		t.Errorf("hedge position open: expected nil, got %+v", sig)
	}
}

func TestBreakout_HedgeEntrySizedByHedgePrice(t *testing.T) {
	// Bearish regime + downside breakout → long the inverse instrument,
	// sized by the hedge's own last close, not the primary's.
	b, _ := NewBreakout(testConfig())
	warmBearish(t, b)
	b.OnBar(hedgeBar(2000), flat(0)) // hedge last close $20.00

	sig := b.OnBar(hourly(9500, 8900, 9000), flat(1_000_000))
	if sig == nil {
		t.Fatal("expected hedge entry")
	}
	if sig.Action != ActionBuy || sig.Symbol != "SH" {
		t.Fatalf("signal = %+v, want BUY SH", sig)
	}
	// floor(1_000_000 * 0.95 / 2000) = 475
	if sig.Qty != 475 {
		t.Errorf("qty = %d, want 475", sig.Qty)
	}
}

func TestBreakout_HedgeEntryWithoutHedgePriceSuppressed(t *testing.T) {
	b, _ := NewBreakout(testConfig())
	warmBearish(t, b)
	if sig := b.OnBar(hourly(9500, 8900, 9000), flat(1_000_000)); sig != nil {
		t.Errorf("no hedge price yet: expected nil, got %+v", sig)
	}
}

func TestBreakout_ZeroQtySuppressed(t *testing.T) {
	b, _ := NewBreakout(testConfig())
	warmBullish(t, b)
	// Balance $50 < close $103 → floor() = 0 → no order
	if sig := b.OnBar(hourly(10500, 10100, 10300), flat(5000)); sig != nil {
		t.Errorf("zero size: expected nil, got %+v", sig)
	}
}

// ────────────────────────────────────────────────────────────
// Exits
// ────────────────────────────────────────────────────────────

func TestBreakout_ExitPrimaryOnLowBreach(t *testing.T) {
	b, _ := NewBreakout(testConfig())
	warmBullish(t, b)

	pf := model.PortfolioSnapshot{NetPrimary: 500, Balance: 1_000_000}
	// bar.low 89.00 < exit_low 90.00 — and the bar also breaks the entry
	// high, but the exit must win the priority ladder.
	sig := b.OnBar(hourly(10500, 8900, 10200), pf)
	if sig == nil {
		t.Fatal("expected exit signal")
	}
	if sig.Action != ActionExit || sig.Symbol != "VOO" || sig.Qty != 500 {
		t.Errorf("signal = %+v, want EXIT VOO qty=500", sig)
	}
}

func TestBreakout_ExitIgnoresSignalDirection(t *testing.T) {
	// Exits never wait on signal re-confirmation: a bullish regime must
	// not block the primary exit.
	b, _ := NewBreakout(testConfig())
	warmBullish(t, b)

	pf := model.PortfolioSnapshot{NetPrimary: 100, Balance: 1_000_000}
	sig := b.OnBar(hourly(9990, 8900, 9900), pf)
	if sig == nil || sig.Action != ActionExit || sig.Symbol != "VOO" {
		t.Fatalf("signal = %+v, want EXIT VOO", sig)
	}
}

func TestBreakout_ExitHedgeOnHighBreach(t *testing.T) {
	b, _ := NewBreakout(testConfig())
	warmBearish(t, b)

	pf := model.PortfolioSnapshot{NetHedge: 300, Balance: 1_000_000}
	// bar.high 101.00 > exit_high 100.00, low stays above exit_low
	sig := b.OnBar(hourly(10100, 9500, 9600), pf)
	if sig == nil {
		t.Fatal("expected hedge exit")
	}
	if sig.Action != ActionExit || sig.Symbol != "SH" || sig.Qty != 300 {
		t.Errorf("signal = %+v, want EXIT SH qty=300", sig)
	}
}

func TestBreakout_PrimaryExitTakesPriority(t *testing.T) {
	// Both exits triggered on one bar → only the primary exit fires
	// (at most one action per bar).
	b, _ := NewBreakout(testConfig())
	warmBullish(t, b)

	pf := model.PortfolioSnapshot{NetPrimary: 100, NetHedge: 200, Balance: 1_000_000}
	sig := b.OnBar(hourly(10100, 8900, 9600), pf)
	if sig == nil || sig.Symbol != "VOO" {
		t.Fatalf("signal = %+v, want primary exit first", sig)
	}
}

// ────────────────────────────────────────────────────────────
// Lifecycle & config
// ────────────────────────────────────────────────────────────

func TestBreakout_NoDecisionBeforeWarmup(t *testing.T) {
	b, _ := NewBreakout(testConfig())
	// Only one daily bar: levels not available yet
	b.OnBar(daily(10000, 9000), flat(0))
	pf := model.PortfolioSnapshot{NetPrimary: 500, Balance: 100_000_000}
	if sig := b.OnBar(hourly(12000, 1000, 11000), pf); sig != nil {
		t.Errorf("uninitialized indicators: expected nil, got %+v", sig)
	}
}

func TestBreakout_IgnoresOtherInstrumentsAndTFs(t *testing.T) {
	b, _ := NewBreakout(testConfig())
	warmBullish(t, b)

	other := model.Bar{Symbol: "SPY", Venue: "NYSE", TF: 3600, High: 99999, Low: 1, Close: 50000}
	if sig := b.OnBar(other, flat(100_000_000)); sig != nil {
		t.Errorf("foreign symbol: expected nil, got %+v", sig)
	}
	minute := hourly(10500, 10100, 10300)
	minute.TF = 60
	if sig := b.OnBar(minute, flat(100_000_000)); sig != nil {
		t.Errorf("unconfigured TF: expected nil, got %+v", sig)
	}
}

func TestBreakout_ConfigErrors(t *testing.T) {
	bad := testConfig()
	bad.Hedge = bad.Primary
	if _, err := NewBreakout(bad); err == nil {
		t.Error("expected error for primary == hedge")
	}

	bad = testConfig()
	bad.Fraction = 1.5
	if _, err := NewBreakout(bad); err == nil {
		t.Error("expected error for fraction > 1")
	}

	bad = testConfig()
	bad.Levels.ExitLowLookback = 0
	if _, err := NewBreakout(bad); err == nil {
		t.Error("expected error for zero lookback")
	}

	bad = testConfig()
	bad.Signal = indicator.Config{Kind: indicator.KindExtrema, Extrema: indicator.ExtremaConfig{EntryHighLookback: 1, EntryLowLookback: 1, ExitHighLookback: 1, ExitLowLookback: 1}}
	if _, err := NewBreakout(bad); err == nil {
		t.Error("expected error for non-signal indicator kind")
	}
}

func TestEngine_RoutesBarsAndCollectsSignals(t *testing.T) {
	b, _ := NewBreakout(testConfig())

	pf := model.PortfolioSnapshot{Balance: 100_000_000}
	engine := NewEngine(16, func(model.Bar) model.PortfolioSnapshot { return pf })
	engine.Register(b)

	for _, bar := range []model.Bar{daily(10000, 9000), daily(10050, 9100)} {
		if sigs := engine.Process(bar); len(sigs) != 0 {
			t.Fatalf("warmup emitted %v", sigs)
		}
	}
	for _, c := range []int64{9800, 9900} {
		engine.Process(hourly(c+50, c-50, c))
	}

	sigs := engine.Process(hourly(10500, 10100, 10300))
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].Action != ActionBuy || sigs[0].Symbol != "VOO" {
		t.Errorf("signal = %+v, want BUY VOO", sigs[0])
	}
}
