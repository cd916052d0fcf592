package tfbuilder

import (
	"testing"
	"time"

	"breakout-systemv1/internal/model"
)

func TestBuilder_StaleBar_Rejected(t *testing.T) {
	b := New([]int{3600})
	// Default StaleTolerance = 2m
	outCh := make(chan model.Bar, 5000)

	now := time.Now().UTC()
	currentBucket := now.Unix() - (now.Unix() % 3600)

	staleCount := 0
	b.OnStaleBar = func() { staleCount++ }

	// First, send a base bar at the current bucket to establish state
	b.process(model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 60,
		TS:   time.Unix(currentBucket+300, 0).UTC(),
		Open: 100, High: 110, Low: 90, Close: 105, Volume: 1,
	}, outCh)

	// Advance the bucket to the next one to establish the "current" forming state
	b.process(model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 60,
		TS:   time.Unix(currentBucket+3660, 0).UTC(),
		Open: 200, High: 210, Low: 190, Close: 205, Volume: 1,
	}, outCh)

	// Drain
	for len(outCh) > 0 {
		<-outCh
	}

	// Now the forming bucket is at currentBucket+3600.
	// Send a base bar from the PREVIOUS bucket (1h behind = lag > 2m tolerance).
	b.process(model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 60,
		TS:   time.Unix(currentBucket+600, 0).UTC(),
		Open: 50, High: 60, Low: 40, Close: 55, Volume: 1,
	}, outCh)

	if staleCount != 1 {
		t.Errorf("expected 1 stale bar rejection, got %d", staleCount)
	}

	// Verify no output from the stale bar
	for len(outCh) > 0 {
		bar := <-outCh
		if bar.Open == 50 {
			t.Fatalf("stale bar should not have been processed: %+v", bar)
		}
	}
}

func TestBuilder_StaleBar_WithinTolerance_Accepted(t *testing.T) {
	b := New([]int{3600})
	outCh := make(chan model.Bar, 100)

	now := time.Now().UTC()
	bucket := now.Unix() - (now.Unix() % 3600)

	staleCount := 0
	b.OnStaleBar = func() { staleCount++ }

	// Send base bar in the current bucket — always accepted (first bar)
	b.process(model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 60,
		TS:   time.Unix(bucket+60, 0).UTC(),
		Open: 100, High: 110, Low: 90, Close: 105, Volume: 1,
	}, outCh)

	if staleCount != 0 {
		t.Errorf("expected 0 stale callbacks, got %d", staleCount)
	}
	if len(outCh) == 0 {
		t.Error("expected forming bar output")
	}
}

func TestBuilder_StaleTolerance_Disabled(t *testing.T) {
	b := New([]int{3600})
	b.StaleTolerance = 0 // disable
	outCh := make(chan model.Bar, 5000)

	staleCount := 0
	b.OnStaleBar = func() { staleCount++ }

	// Establish state at a recent bucket
	now := time.Now().UTC()
	bucket := now.Unix() - (now.Unix() % 3600)
	b.process(model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 60,
		TS:   time.Unix(bucket+3660, 0).UTC(), // next bucket
		Open: 200, High: 210, Low: 190, Close: 205, Volume: 1,
	}, outCh)
	b.process(model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 60,
		TS:   time.Unix(bucket+7260, 0).UTC(), // bucket+7200
		Open: 300, High: 310, Low: 290, Close: 305, Volume: 1,
	}, outCh)

	// Now send an old base bar — should NOT be rejected since tolerance is disabled
	b.process(model.Bar{
		Symbol: "VOO", Venue: "NYSE", TF: 60,
		TS:   time.Unix(bucket+60, 0).UTC(), // original bucket, way behind
		Open: 50, High: 60, Low: 40, Close: 55, Volume: 1,
	}, outCh)

	if staleCount != 0 {
		t.Errorf("expected 0 stale callbacks with tolerance disabled, got %d", staleCount)
	}
}
