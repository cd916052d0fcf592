package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"breakout-systemv1/internal/model"
)

// baseTF is the aggregation period in seconds. All higher timeframes are
// resampled from these base bars by tfbuilder.
const baseTF = 60

// barState holds the in-progress bar for one instrument in the current minute bucket.
type barState struct {
	bucket int64 // Unix second of the bucket start (minute-aligned)
	bar    model.Bar
}

// Aggregator builds 1-minute OHLCV bars from a stream of ticks.
// It runs in a single goroutine and emits finalized bars when the minute rolls over.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*barState // key = "venue:symbol"

	flushInterval time.Duration

	// Metrics hooks (optional, set externally)
	OnDroppedTick func()
}

// New creates a new Aggregator.
func New() *Aggregator {
	return &Aggregator{
		states:        make(map[string]*barState),
		flushInterval: 250 * time.Millisecond, // check frequency for bucket rollover
	}
}

// Run consumes ticks from tickCh in a single goroutine, aggregates into 1m bars,
// and sends finalized bars to barCh. Blocks until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, barCh chan<- model.Bar) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Flush any remaining open bars before exit
			a.flushAll(barCh)
			return

		case tick, ok := <-tickCh:
			if !ok {
				a.flushAll(barCh)
				return
			}
			a.processTick(tick, barCh)

		case <-ticker.C:
			// Periodic flush: emit any bars whose bucket is in the past
			a.flushOld(barCh)
		}
	}
}

// processTick incorporates a single tick into the bar state.
func (a *Aggregator) processTick(tick model.Tick, barCh chan<- model.Bar) {
	bucket := tick.TickTS.Unix() / baseTF * baseTF
	key := tick.Venue + ":" + tick.Symbol

	a.mu.Lock()
	defer a.mu.Unlock()

	state, exists := a.states[key]

	if exists && bucket < state.bucket {
		// Late tick — belongs to an older bucket, drop it
		dropped := a.OnDroppedTick
		a.mu.Unlock()
		if dropped != nil {
			dropped()
		}
		a.mu.Lock()
		return
	}

	if exists && bucket > state.bucket {
		// New bucket — finalize the old bar first
		a.emit(state, barCh)
		delete(a.states, key)
		exists = false
	}

	if !exists {
		// Start a new bar for this bucket
		a.states[key] = &barState{
			bucket: bucket,
			bar: model.Bar{
				Symbol: tick.Symbol,
				Venue:  tick.Venue,
				TF:     baseTF,
				TS:     time.Unix(bucket, 0).UTC(),
				Open:   tick.Price,
				High:   tick.Price,
				Low:    tick.Price,
				Close:  tick.Price,
				Volume: tick.Qty,
				Count:  1,
			},
		}
		return
	}

	// Same bucket — update OHLC
	b := &state.bar
	if tick.Price > b.High {
		b.High = tick.Price
	}
	if tick.Price < b.Low {
		b.Low = tick.Price
	}
	b.Close = tick.Price
	b.Volume += tick.Qty
	b.Count++
}

// flushOld emits bars for any bucket whose minute has fully elapsed.
func (a *Aggregator) flushOld(barCh chan<- model.Bar) {
	now := time.Now().Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	for key, state := range a.states {
		if state.bucket+baseTF <= now {
			a.emit(state, barCh)
			delete(a.states, key)
		}
	}
}

// flushAll emits all open bars regardless of bucket.
func (a *Aggregator) flushAll(barCh chan<- model.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, state := range a.states {
		a.emit(state, barCh)
		delete(a.states, key)
	}
}

// emit sends a finalized bar to barCh. Non-blocking to avoid deadlocks.
func (a *Aggregator) emit(state *barState, barCh chan<- model.Bar) {
	select {
	case barCh <- state.bar:
	default:
		log.Printf("[agg] barCh full, dropping bar %s ts=%v", state.bar.Key(), state.bar.TS)
	}
}
