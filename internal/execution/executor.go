// Package execution translates strategy signals into orders.
//
// Two executors share the Executor interface: a live executor submitting
// market orders through the venue API, and a paper executor simulating
// fills with configurable slippage. Both journal fills to SQLite.
package execution

import (
	"context"
	"log"
	"time"

	"breakout-systemv1/internal/model"
	"breakout-systemv1/internal/strategy"
)

// OrderResult represents the outcome of an order placement.
type OrderResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"` // PLACED, FILLED, REJECTED, ERROR
	Message string `json:"message"`
	Signal  strategy.Signal
}

// Executor consumes strategy signals and places orders.
type Executor interface {
	// Run blocks until ctx is cancelled or signalCh is closed.
	Run(ctx context.Context, signalCh <-chan strategy.Signal)

	// Results returns the channel of order outcomes.
	Results() <-chan OrderResult
}

// sideFor maps a signal action to the order side. EXIT closes a long, so
// it sells.
func sideFor(action strategy.Action) string {
	if action == strategy.ActionBuy {
		return "BUY"
	}
	return "SELL"
}

// LiveExecutor submits market orders through the venue API.
// Fill confirmation arrives asynchronously via the portfolio sync, so the
// result only records placement.
type LiveExecutor struct {
	submitter model.OrderSubmitter
	journal   *Journal // optional
	resultCh  chan OrderResult

	// OnPlaced, if set, is called after each successful placement.
	OnPlaced func(sig strategy.Signal, orderID string)
	// OnError, if set, is called when a placement fails.
	OnError func(sig strategy.Signal, err error)
}

// NewLiveExecutor creates an executor backed by the venue API.
// journal may be nil to skip local journaling.
func NewLiveExecutor(submitter model.OrderSubmitter, journal *Journal, resultBufferSize int) *LiveExecutor {
	return &LiveExecutor{
		submitter: submitter,
		journal:   journal,
		resultCh:  make(chan OrderResult, resultBufferSize),
	}
}

// Results returns the channel of order results.
func (e *LiveExecutor) Results() <-chan OrderResult {
	return e.resultCh
}

// Run consumes signals and places market orders at the venue.
func (e *LiveExecutor) Run(ctx context.Context, signalCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			e.execute(ctx, sig)
		}
	}
}

func (e *LiveExecutor) execute(ctx context.Context, sig strategy.Signal) {
	side := sideFor(sig.Action)
	log.Printf("[executor] %s %s %s:%s qty=%d (%s)",
		sig.Action, side, sig.Venue, sig.Symbol, sig.Qty, sig.Reason)

	submitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	orderID, err := e.submitter.SubmitMarketOrder(submitCtx, sig.Venue, sig.Symbol, side, sig.Qty)
	cancel()
	if err != nil {
		log.Printf("[executor] order failed for %s:%s: %v", sig.Venue, sig.Symbol, err)
		if e.OnError != nil {
			e.OnError(sig, err)
		}
		e.emit(OrderResult{Status: "ERROR", Message: err.Error(), Signal: sig})
		return
	}

	if e.journal != nil {
		e.journal.RecordFill(Fill{
			OrderID:   orderID,
			Signal:    sig,
			FillPrice: sig.Price, // market orders journal 0; venue sync has the real fill
			FillQty:   sig.Qty,
			FilledAt:  time.Now(),
		})
	}
	if e.OnPlaced != nil {
		e.OnPlaced(sig, orderID)
	}
	e.emit(OrderResult{OrderID: orderID, Status: "PLACED", Signal: sig})
}

func (e *LiveExecutor) emit(res OrderResult) {
	select {
	case e.resultCh <- res:
	default:
		log.Printf("[executor] result channel full, dropping result for order %s", res.OrderID)
	}
}
