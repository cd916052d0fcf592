package agg

import (
	"context"
	"testing"
	"time"

	"breakout-systemv1/internal/model"
)

func TestAggregator_BasicBar(t *testing.T) {
	agg := New()
	tickCh := make(chan model.Tick, 100)
	barCh := make(chan model.Bar, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, barCh)
		close(done)
	}()

	now := time.Now().UTC().Truncate(time.Minute)

	// Send 3 ticks in the same minute
	tickCh <- model.Tick{Symbol: "VOO", Venue: "NYSE", Price: 50000, Qty: 10, TickTS: now}
	tickCh <- model.Tick{Symbol: "VOO", Venue: "NYSE", Price: 50500, Qty: 20, TickTS: now.Add(20 * time.Second)}
	tickCh <- model.Tick{Symbol: "VOO", Venue: "NYSE", Price: 49800, Qty: 5, TickTS: now.Add(45 * time.Second)}

	// Send a tick in the next minute to trigger flush of previous bucket
	tickCh <- model.Tick{Symbol: "VOO", Venue: "NYSE", Price: 50100, Qty: 15, TickTS: now.Add(1 * time.Minute)}

	// Allow time for processing
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done // wait for goroutine to finish

	// Collect bars (safe now since goroutine exited)
	var bars []model.Bar
	for {
		select {
		case b := <-barCh:
			bars = append(bars, b)
		default:
			goto collected
		}
	}
collected:

	if len(bars) < 1 {
		t.Fatalf("expected at least 1 bar, got %d", len(bars))
	}

	b := bars[0]
	if b.TF != 60 {
		t.Errorf("expected tf=60, got %d", b.TF)
	}
	if !b.TS.Equal(now) {
		t.Errorf("expected ts=%v, got %v", now, b.TS)
	}
	if b.Open != 50000 {
		t.Errorf("expected open=50000, got %d", b.Open)
	}
	if b.High != 50500 {
		t.Errorf("expected high=50500, got %d", b.High)
	}
	if b.Low != 49800 {
		t.Errorf("expected low=49800, got %d", b.Low)
	}
	if b.Close != 49800 {
		t.Errorf("expected close=49800, got %d", b.Close)
	}
	if b.Count != 3 {
		t.Errorf("expected count=3, got %d", b.Count)
	}
	if b.Volume != 35 {
		t.Errorf("expected volume=35, got %d", b.Volume)
	}
	if b.Forming {
		t.Errorf("expected finalized bar, got forming")
	}
}

func TestAggregator_MultipleInstruments(t *testing.T) {
	agg := New()
	tickCh := make(chan model.Tick, 100)
	barCh := make(chan model.Bar, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, barCh)
		close(done)
	}()

	now := time.Now().UTC().Truncate(time.Minute)

	// Two different symbols in the same minute
	tickCh <- model.Tick{Symbol: "VOO", Venue: "NYSE", Price: 50000, Qty: 10, TickTS: now}
	tickCh <- model.Tick{Symbol: "SH", Venue: "NYSE", Price: 1400, Qty: 5, TickTS: now}

	// Next minute triggers flush
	tickCh <- model.Tick{Symbol: "VOO", Venue: "NYSE", Price: 50100, Qty: 1, TickTS: now.Add(time.Minute)}
	tickCh <- model.Tick{Symbol: "SH", Venue: "NYSE", Price: 1401, Qty: 1, TickTS: now.Add(time.Minute)}

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	count := 0
	for {
		select {
		case <-barCh:
			count++
		default:
			goto done2
		}
	}
done2:
	// Should have at least 2 bars (one per symbol for the first minute) + 2 from flush
	if count < 2 {
		t.Errorf("expected at least 2 bars, got %d", count)
	}
}

func TestAggregator_LateTick(t *testing.T) {
	agg := New()
	dropped := 0
	dropCh := make(chan struct{}, 10)
	agg.OnDroppedTick = func() {
		dropCh <- struct{}{}
	}

	tickCh := make(chan model.Tick, 100)
	barCh := make(chan model.Bar, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, barCh)
		close(done)
	}()

	now := time.Now().UTC().Truncate(time.Minute)

	// Current minute tick
	tickCh <- model.Tick{Symbol: "VOO", Venue: "NYSE", Price: 50000, Qty: 10, TickTS: now}
	// Late tick (1 minute old)
	tickCh <- model.Tick{Symbol: "VOO", Venue: "NYSE", Price: 49000, Qty: 5, TickTS: now.Add(-1 * time.Minute)}

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	// Count drops from channel
	close(dropCh)
	for range dropCh {
		dropped++
	}

	if dropped != 1 {
		t.Errorf("expected 1 dropped tick, got %d", dropped)
	}
}
