package indicator

import (
	"fmt"
	"log"
)

// ReloadConfigs updates the indicator engine with new configurations.
// It preserves state for indicators that already exist and only creates
// new instances for genuinely new indicators. This prevents losing
// accumulated warmup history when adding an indicator mid-run.
// Returns the number of preserved and new indicator instances.
func (e *Engine) ReloadConfigs(newConfigs []TFIndicatorConfig) (preserved, created int) {
	// Build lookup of old configs + state by TF
	oldCfgByTF := make(map[int]TFIndicatorConfig)
	oldStateByTF := make(map[int]map[string]*instrumentIndicators)
	for i, cfg := range e.configs {
		oldCfgByTF[cfg.TF] = cfg
		oldStateByTF[cfg.TF] = e.state[i]
	}

	newState := make([]map[string]*instrumentIndicators, len(newConfigs))
	for i, newCfg := range newConfigs {
		oldCfg, tfExists := oldCfgByTF[newCfg.TF]
		oldTFState := oldStateByTF[newCfg.TF]

		if !tfExists || oldTFState == nil {
			// Brand-new TF — cold-start
			newState[i] = make(map[string]*instrumentIndicators, 8)
			created++
			log.Printf("[reload] TF=%d: new timeframe, cold-starting", newCfg.TF)
			continue
		}

		// TF exists — check if indicators are identical (fast path)
		if indicatorSetsEqual(oldCfg.Indicators, newCfg.Indicators) {
			newState[i] = oldTFState
			preserved += len(oldTFState)
			log.Printf("[reload] TF=%d: unchanged, preserved %d instrument states", newCfg.TF, len(oldTFState))
			continue
		}

		// Indicator set changed — migrate per-instrument state
		migrated := make(map[string]*instrumentIndicators, len(oldTFState))
		for key, oldII := range oldTFState {
			migrated[key] = migrateInstrumentIndicators(oldII, newCfg.Indicators)
			preserved++
		}
		newState[i] = migrated
		created++ // mark that new indicators need backfill
		log.Printf("[reload] TF=%d: migrated %d instrument states (added new indicators)", newCfg.TF, len(migrated))
	}

	e.configs = newConfigs
	e.state = newState

	log.Printf("[reload] ✅ config reloaded: %d configs, %d preserved, %d new",
		len(newConfigs), preserved, created)

	return preserved, created
}

// migrateInstrumentIndicators creates a new instrumentIndicators for the new
// config, preserving instances from the old set that match by Name (which
// bakes in kind + all parameters).
func migrateInstrumentIndicators(oldII *instrumentIndicators, newConfigs []Config) *instrumentIndicators {
	oldByName := make(map[string]Indicator, len(oldII.indicators))
	for _, ind := range oldII.indicators {
		oldByName[ind.Name()] = ind
	}

	newInds := make([]Indicator, 0, len(newConfigs))
	kept := make([]Config, 0, len(newConfigs))
	for _, cfg := range newConfigs {
		fresh, err := New(cfg)
		if err != nil {
			continue
		}
		if existing, ok := oldByName[fresh.Name()]; ok {
			newInds = append(newInds, existing) // preserve accumulated state
		} else {
			newInds = append(newInds, fresh)
		}
		kept = append(kept, cfg)
	}

	return &instrumentIndicators{
		indicators: newInds,
		configs:    kept,
	}
}

// indicatorSetsEqual checks if two config slices describe the exact same set
// of indicators (order-independent), compared by constructed Name.
func indicatorSetsEqual(a, b []Config) bool {
	if len(a) != len(b) {
		return false
	}
	setA := make(map[string]bool, len(a))
	for _, cfg := range a {
		ind, err := New(cfg)
		if err != nil {
			return false
		}
		setA[ind.Name()] = true
	}
	for _, cfg := range b {
		ind, err := New(cfg)
		if err != nil {
			return false
		}
		if !setA[ind.Name()] {
			return false
		}
	}
	return true
}

// ValidateConfigs checks a set of TFIndicatorConfigs for errors before any
// bars flow. Fail fast: invalid lookbacks/periods/enums are fatal at startup.
func ValidateConfigs(configs []TFIndicatorConfig) error {
	seen := make(map[int]bool)
	for _, cfg := range configs {
		if cfg.TF <= 0 {
			return fmt.Errorf("invalid TF=%d: must be positive", cfg.TF)
		}
		if seen[cfg.TF] {
			return fmt.Errorf("duplicate TF=%d", cfg.TF)
		}
		seen[cfg.TF] = true

		for _, ic := range cfg.Indicators {
			if _, err := New(ic); err != nil {
				return fmt.Errorf("TF=%d: %w", cfg.TF, err)
			}
		}
	}
	return nil
}
