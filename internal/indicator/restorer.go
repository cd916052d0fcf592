package indicator

import (
	"log"

	"breakout-systemv1/internal/model"
)

// HistoryReader is the interface needed for backfill reads.
type HistoryReader interface {
	ReadAllBars(tf int, afterTS int64) ([]model.Bar, error)
}

// Restorer orchestrates indicator engine state restoration on signal-engine
// startup. It follows a priority chain: Redis snapshot → SQLite backfill →
// cold start.
type Restorer struct {
	configs []TFIndicatorConfig
}

// NewRestorer creates a new Restorer for the given indicator configs.
func NewRestorer(configs []TFIndicatorConfig) *Restorer {
	return &Restorer{configs: configs}
}

// RestoreFromSnap attempts to restore an engine from a snapshot.
// If snapshot is nil, returns a fresh engine (cold start).
func (r *Restorer) RestoreFromSnap(snap *EngineSnapshot) (*Engine, error) {
	if snap == nil {
		log.Println("[restorer] no snapshot found — cold starting indicator engine")
		return NewEngine(r.configs), nil
	}

	log.Printf("[restorer] restoring from snapshot (version=%d, streamID=%s, instruments=%d)",
		snap.Version, snap.StreamID, len(snap.Instruments))

	engine, err := RestoreEngine(r.configs, snap)
	if err != nil {
		log.Printf("[restorer] WARNING: snapshot restore failed: %v — falling back to cold start", err)
		return NewEngine(r.configs), nil
	}

	log.Printf("[restorer] ✅ restored indicator engine from snapshot")
	return engine, nil
}

// ReplayBars feeds a slice of bars into the engine to catch up from the
// snapshot to current state. Returns the number of bars replayed.
func (r *Restorer) ReplayBars(engine *Engine, bars []model.Bar) int {
	count := 0
	for _, bar := range bars {
		if bar.Forming {
			continue
		}
		engine.Process(bar)
		count++
	}
	log.Printf("[restorer] replayed %d bars to catch up", count)
	return count
}

// BackfillFromHistory reads historical bars and feeds them into the engine
// to warm up cold indicators. Called after engine creation/restore and
// before starting the live stream consumer.
//
// It reads enough bars per TF to satisfy the largest warm-up requirement of
// the configured indicators. If onResults is non-nil, it is called with the
// indicator results for each bar, letting the caller populate Redis history.
func (r *Restorer) BackfillFromHistory(engine *Engine, reader HistoryReader, onResults func([]model.IndicatorResult)) int {
	if reader == nil {
		return 0
	}

	total := 0
	for _, cfg := range r.configs {
		need := 0
		for _, ic := range cfg.Indicators {
			if w := warmupBars(ic); w > need {
				need = w
			}
		}
		if need == 0 {
			continue
		}

		bars, err := reader.ReadAllBars(cfg.TF, 0)
		if err != nil {
			log.Printf("[restorer] WARNING: failed to read TF=%d bars from SQLite: %v", cfg.TF, err)
			continue
		}

		// Only the most recent bars matter for warm-up
		if len(bars) > need {
			bars = bars[len(bars)-need:]
		}

		fed := 0
		for _, bar := range bars {
			bar.Forming = false
			results := engine.Process(bar)
			if onResults != nil && len(results) > 0 {
				onResults(results)
			}
			fed++
		}
		total += fed
		if fed > 0 {
			log.Printf("[restorer] backfilled %d bars from SQLite for TF=%d", fed, cfg.TF)
		}
	}

	if total > 0 {
		log.Printf("[restorer] ✅ backfilled %d total bars from SQLite", total)
	}
	return total
}

// renkoWarmupBars is a heuristic: trend establishment depends on price
// action, so backfill generously past the ATR seed.
const renkoWarmupBars = 200

// warmupBars returns how many bars an indicator needs before it can
// produce a value (plus the one-bar lag where applicable).
func warmupBars(cfg Config) int {
	switch cfg.Kind {
	case KindExtrema:
		maxLB := cfg.Extrema.EntryHighLookback
		for _, v := range []int{cfg.Extrema.EntryLowLookback, cfg.Extrema.ExitHighLookback, cfg.Extrema.ExitLowLookback} {
			if v > maxLB {
				maxLB = v
			}
		}
		return maxLB + 1
	case KindEMARegime:
		// Two full periods lets the EMA settle past its SMA seed
		return cfg.EMARegime.Period * 2
	case KindMomentum:
		if cfg.Momentum.ReversionWindow > 20 {
			return cfg.Momentum.ReversionWindow
		}
		return 20
	case KindRenko:
		w := cfg.Renko.ATRPeriod + renkoWarmupBars
		return w
	default:
		return 0
	}
}
