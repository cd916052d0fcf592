package redis

import (
	"errors"
	"testing"
	"time"
)

var errProbe = errors.New("probe failed")

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(3, 100*time.Millisecond)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_TripsAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errProbe }); err != errProbe {
			t.Fatalf("call %d: expected errProbe, got %v", i, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected open after 3 failures, got %v", cb.CurrentState())
	}

	// Open circuit rejects without running the fn
	ran := false
	err := cb.Execute(func() error { ran = true; return nil })
	if err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if ran {
		t.Error("fn should not run while the circuit is open")
	}
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errProbe })
	}
	if cb.CurrentState() != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(60 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", cb.CurrentState())
	}
	if cb.Failures() != 0 {
		t.Errorf("expected failure count reset, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errProbe })
	}

	time.Sleep(60 * time.Millisecond)
	cb.Execute(func() error { return errProbe })

	if cb.CurrentState() != StateOpen {
		t.Errorf("expected open after failed probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, 100*time.Millisecond)

	cb.Execute(func() error { return errProbe })
	cb.Execute(func() error { return errProbe })
	cb.Execute(func() error { return nil })

	// Two more failures must not trip since the counter was reset.
	cb.Execute(func() error { return errProbe })
	cb.Execute(func() error { return errProbe })

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker(1, 50*time.Millisecond)
	cb.OnStateChange = func(from, to State) {
		transitions = append(transitions, to)
	}

	cb.Execute(func() error { return errProbe })
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("expected [open], got %v", transitions)
	}

	time.Sleep(60 * time.Millisecond)
	cb.Execute(func() error { return nil })

	if len(transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d: %v", len(transitions), transitions)
	}
	if transitions[1] != StateHalfOpen || transitions[2] != StateClosed {
		t.Errorf("expected [open, half-open, closed], got %v", transitions)
	}
}
