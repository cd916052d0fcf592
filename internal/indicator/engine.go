package indicator

import (
	"context"

	"breakout-systemv1/internal/model"
)

// TFIndicatorConfig groups indicator configs for a specific timeframe.
type TFIndicatorConfig struct {
	TF         int // timeframe in seconds
	Indicators []Config
}

// instrumentIndicators holds live indicator instances for one instrument
// within a TF.
type instrumentIndicators struct {
	indicators []Indicator
	configs    []Config
}

// Engine computes multiple indicators across multiple TFs for multiple
// instruments. Designed for single-goroutine usage — no locks needed.
type Engine struct {
	configs []TFIndicatorConfig

	// state[tfIdx][instrumentKey] → *instrumentIndicators
	state []map[string]*instrumentIndicators
}

// NewEngine creates an indicator engine with the given per-TF indicator
// configs. Configuration errors surface lazily from New on the first bar of
// an instrument; use ValidateConfigs at startup to fail fast instead.
func NewEngine(configs []TFIndicatorConfig) *Engine {
	state := make([]map[string]*instrumentIndicators, len(configs))
	for i := range state {
		state[i] = make(map[string]*instrumentIndicators, 8)
	}
	return &Engine{
		configs: configs,
		state:   state,
	}
}

// Process takes a finalized bar and updates all indicators for that TF +
// instrument. Returns indicator results; extrema trackers contribute one
// result per level. Not-ready indicators are included with Ready=false.
func (e *Engine) Process(bar model.Bar) []model.IndicatorResult {
	tfIdx := e.tfIndex(bar.TF)
	if tfIdx == -1 {
		return nil // TF not configured for indicators
	}

	key := bar.Key()
	ii, exists := e.state[tfIdx][key]
	if !exists {
		// First bar for this instrument + TF — create indicator instances
		ii = e.createInstrumentIndicators(tfIdx)
		e.state[tfIdx][key] = ii
	}

	results := make([]model.IndicatorResult, 0, len(ii.indicators))
	for _, ind := range ii.indicators {
		ind.HandleBar(bar)
		results = appendResults(results, ind, bar)
	}
	return results
}

// Indicators returns the live instances for one instrument + TF, or nil if
// that instrument has not been seen on that TF. The slice order matches the
// config order.
func (e *Engine) Indicators(tf int, key string) []Indicator {
	tfIdx := e.tfIndex(tf)
	if tfIdx == -1 {
		return nil
	}
	ii, exists := e.state[tfIdx][key]
	if !exists {
		return nil
	}
	return ii.indicators
}

// Run consumes bars and emits indicator results. Blocks until ctx done.
func (e *Engine) Run(ctx context.Context, barCh <-chan model.Bar, resultCh chan<- model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			if bar.Forming {
				continue // only finalized bars feed indicators
			}
			results := e.Process(bar)
			for _, r := range results {
				select {
				case resultCh <- r:
				default:
					// drop if channel full
				}
			}
		}
	}
}

func (e *Engine) tfIndex(tf int) int {
	for i, cfg := range e.configs {
		if cfg.TF == tf {
			return i
		}
	}
	return -1
}

// createInstrumentIndicators creates fresh indicator instances for a TF
// config. Invalid configs are skipped rather than panicking mid-stream;
// ValidateConfigs at startup catches them first.
func (e *Engine) createInstrumentIndicators(tfIdx int) *instrumentIndicators {
	cfg := e.configs[tfIdx]
	inds := make([]Indicator, 0, len(cfg.Indicators))
	kept := make([]Config, 0, len(cfg.Indicators))
	for _, ic := range cfg.Indicators {
		ind, err := New(ic)
		if err != nil {
			continue
		}
		inds = append(inds, ind)
		kept = append(kept, ic)
	}
	return &instrumentIndicators{
		indicators: inds,
		configs:    kept,
	}
}

// appendResults converts one indicator's current output into stream results.
// Signal sources emit a single scalar; extrema trackers emit their four
// levels as separate named results (values in dollars).
func appendResults(results []model.IndicatorResult, ind Indicator, bar model.Bar) []model.IndicatorResult {
	switch v := ind.(type) {
	case *Extrema:
		levels, ok := v.Levels()
		base := model.IndicatorResult{
			Symbol: bar.Symbol,
			Venue:  bar.Venue,
			TF:     bar.TF,
			TS:     bar.TS,
			Ready:  ok,
		}
		for _, lv := range []struct {
			suffix string
			cents  int64
		}{
			{".entry_high", levels.EntryHigh},
			{".entry_low", levels.EntryLow},
			{".exit_high", levels.ExitHigh},
			{".exit_low", levels.ExitLow},
		} {
			r := base
			r.Name = v.Name() + lv.suffix
			r.Value = model.Dollars(lv.cents)
			results = append(results, r)
		}
		return results
	case SignalSource:
		val, ok := v.Signal()
		return append(results, model.IndicatorResult{
			Name:   v.Name(),
			Symbol: bar.Symbol,
			Venue:  bar.Venue,
			TF:     bar.TF,
			Value:  val,
			TS:     bar.TS,
			Ready:  ok,
		})
	default:
		return results
	}
}
