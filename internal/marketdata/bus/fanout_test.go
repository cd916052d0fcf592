package bus

import (
	"context"
	"testing"
	"time"

	"breakout-systemv1/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Bar, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)

	bar := model.Bar{
		Symbol: "VOO",
		Venue:  "NYSE",
		TF:     60,
		Open:   100,
		High:   110,
		Low:    90,
		Close:  105,
	}

	input <- bar
	time.Sleep(50 * time.Millisecond)

	select {
	case b := <-out1:
		if b.Symbol != "VOO" {
			t.Errorf("out1: expected symbol VOO, got %s", b.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for bar")
	}

	select {
	case b := <-out2:
		if b.Symbol != "VOO" {
			t.Errorf("out2: expected symbol VOO, got %s", b.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for bar")
	}

	cancel()
}

func TestFanOut_DropOnFull(t *testing.T) {
	fo := New(1)
	slow := fo.Subscribe()
	_ = slow // never drained

	drops := make(chan int, 10)
	fo.OnDrop = func(idx int) { drops <- idx }

	input := make(chan model.Bar, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	// First bar fills the buffer, second is dropped.
	input <- model.Bar{Symbol: "VOO", Venue: "NYSE"}
	input <- model.Bar{Symbol: "VOO", Venue: "NYSE"}

	select {
	case idx := <-drops:
		if idx != 0 {
			t.Errorf("expected drop for subscriber 0, got %d", idx)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for drop callback")
	}
}
