// Package tfbuilder provides an incremental timeframe resampler.
// It consumes finalized 1-minute base bars and maintains "forming" TF bar
// states that are updated in O(1) per bar per TF. When a TF bucket
// closes (i.e., a base bar arrives in a new bucket), the previous TF bar
// is finalized and emitted.
package tfbuilder

import (
	"context"
	"log"
	"time"

	"breakout-systemv1/internal/model"
)

// tfState holds the forming bar state for one (instrument, TF) pair.
type tfState struct {
	bucket  int64 // bucket start = ts - ts%tf (Unix seconds)
	bar     model.Bar
	started bool
}

// Builder resamples 1m base bars into multiple dynamic timeframes.
// Designed to run in a single goroutine (single consumer).
type Builder struct {
	tfs []int // enabled TF durations in seconds

	// Per-TF per-instrument state.
	// Key structure: states[tfIdx][instrumentKey] → *tfState
	states []map[string]*tfState

	// Staleness validation: reject base bars older than the forming
	// bucket by more than this. Default: 2 minutes. Set to 0 to disable.
	StaleTolerance time.Duration

	// Metrics hooks
	OnTFBar    func(b model.Bar) // called on finalized TF bar (optional)
	OnStaleBar func()            // called when a stale base bar is rejected (optional)
}

// New creates a TF builder with the given timeframes (in seconds).
func New(tfs []int) *Builder {
	states := make([]map[string]*tfState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*tfState, 8) // preallocate for a handful of instruments
	}
	return &Builder{
		tfs:            tfs,
		states:         states,
		StaleTolerance: 2 * time.Minute, // default: reject base bars > 2m stale
	}
}

// UpdateTFs dynamically updates the enabled timeframes.
// Existing forming bars for removed TFs are finalized and emitted.
func (b *Builder) UpdateTFs(newTFs []int, outCh chan<- model.Bar) {
	// Build set of new TFs
	newSet := make(map[int]bool, len(newTFs))
	for _, tf := range newTFs {
		newSet[tf] = true
	}

	// Finalize forming bars for TFs being removed
	for i, tf := range b.tfs {
		if !newSet[tf] {
			for _, st := range b.states[i] {
				if st.started {
					st.bar.Forming = false
					emit(outCh, st.bar)
				}
			}
		}
	}

	// Rebuild states: keep existing states for TFs that persist, add new ones
	oldStates := make(map[int]map[string]*tfState, len(b.tfs))
	for i, tf := range b.tfs {
		oldStates[tf] = b.states[i]
	}

	b.tfs = newTFs
	b.states = make([]map[string]*tfState, len(newTFs))
	for i, tf := range newTFs {
		if old, ok := oldStates[tf]; ok {
			b.states[i] = old
		} else {
			b.states[i] = make(map[string]*tfState, 8)
		}
	}
}

// Run consumes base bars from barCh, resamples them into TF bars,
// and sends both forming snapshots and finalized TF bars to outCh.
// Blocks until ctx is cancelled.
func (b *Builder) Run(ctx context.Context, barCh <-chan model.Bar, outCh chan<- model.Bar) {
	for {
		select {
		case <-ctx.Done():
			b.flushAll(outCh)
			return
		case bar, ok := <-barCh:
			if !ok {
				b.flushAll(outCh)
				return
			}
			b.process(bar, outCh)
		}
	}
}

// Process handles a single base bar against all enabled TFs.
// This is the hot path — O(1) per TF.
func (b *Builder) process(bar model.Bar, outCh chan<- model.Bar) {
	ts := bar.TS.Unix()
	key := bar.Key()

	for i, tf := range b.tfs {
		tf64 := int64(tf)
		bucket := ts - (ts % tf64) // align to TF boundary

		st, exists := b.states[i][key]

		// Staleness check: reject base bars whose bucket is behind the
		// current forming bucket by more than StaleTolerance.
		// This prevents late/out-of-order bars from corrupting
		// an already-advancing bucket.
		if b.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Second
			if lag > b.StaleTolerance {
				if b.OnStaleBar != nil {
					b.OnStaleBar()
				}
				continue // skip this TF for the stale bar
			}
		}

		if exists && bucket > st.bucket {
			// New bucket — finalize the forming bar
			st.bar.Forming = false
			emit(outCh, st.bar)
			if b.OnTFBar != nil {
				b.OnTFBar(st.bar)
			}
			exists = false
		}

		if !exists {
			// Start a new forming bar for this bucket
			newState := &tfState{
				bucket:  bucket,
				started: true,
				bar: model.Bar{
					Symbol:  bar.Symbol,
					Venue:   bar.Venue,
					TF:      tf,
					TS:      time.Unix(bucket, 0).UTC(),
					Open:    bar.Open,
					High:    bar.High,
					Low:     bar.Low,
					Close:   bar.Close,
					Volume:  bar.Volume,
					Count:   1,
					Forming: true,
				},
			}
			b.states[i][key] = newState
			// Emit immediately so live-preview pipeline sees the first base bar.
			snap := newState.bar
			emit(outCh, snap)
			continue
		}

		// Same bucket — merge OHLCV (O(1))
		fb := &st.bar
		if bar.High > fb.High {
			fb.High = bar.High
		}
		if bar.Low < fb.Low {
			fb.Low = bar.Low
		}
		fb.Close = bar.Close
		fb.Volume += bar.Volume
		fb.Count++

		// Emit a forming snapshot so the live-preview pipeline can peek at
		// the in-progress bar every minute.  We copy the struct to avoid
		// a race if the caller holds onto the value after the next bar.
		snap := *fb // shallow copy is safe (no pointer fields)
		emit(outCh, snap)
	}
}

// flushAll finalizes and emits all forming bars.
func (b *Builder) flushAll(outCh chan<- model.Bar) {
	for i := range b.tfs {
		for key, st := range b.states[i] {
			if st.started {
				st.bar.Forming = false
				emit(outCh, st.bar)
			}
			delete(b.states[i], key)
		}
	}
}

// emit sends a TF bar to the output channel. Non-blocking to avoid deadlocks.
func emit(outCh chan<- model.Bar, bar model.Bar) {
	select {
	case outCh <- bar:
	default:
		log.Printf("[tfbuilder] outCh full, dropping TF bar %s tf=%d ts=%v", bar.Key(), bar.TF, bar.TS)
	}
}

// TFs returns the current list of enabled timeframes.
func (b *Builder) TFs() []int {
	return b.tfs
}

// Run1 processes a single base bar against all TFs (hot path).
// This avoids channel overhead when called inline from the pipeline.
func (b *Builder) Run1(bar model.Bar, outCh chan<- model.Bar) {
	b.process(bar, outCh)
}
