package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"breakout-systemv1/internal/model"
	"breakout-systemv1/internal/strategy"
)

// Fill represents a (simulated or journaled) order fill.
type Fill struct {
	OrderID   string          `json:"order_id"`
	Signal    strategy.Signal `json:"signal"`
	FillPrice int64           `json:"fill_price"` // cents
	FillQty   int64           `json:"fill_qty"`
	FilledAt  time.Time       `json:"filled_at"`
	Slippage  int64           `json:"slippage"` // cents
}

// PaperExecutor simulates order execution without venue calls.
// Market orders fill at the last seen close for the instrument, adjusted by
// slippage; limit-priced signals fill at their price plus slippage.
type PaperExecutor struct {
	mu        sync.RWMutex
	fills     []Fill
	lastPrice map[string]int64 // "venue:symbol" -> last close in cents
	resultCh  chan OrderResult
	orderSeq  int64

	journal     *Journal // optional
	slippageBps int64    // basis points (5 = 0.05%)

	// OnFill, if set, is called synchronously for every simulated fill.
	// The backtest wires this to the portfolio book so fills settle before
	// the next bar's decision.
	OnFill func(Fill)
}

// NewPaperExecutor creates a paper trading executor.
func NewPaperExecutor(resultBufferSize int, slippageBps int64, journal *Journal) *PaperExecutor {
	return &PaperExecutor{
		fills:       make([]Fill, 0, 1000),
		lastPrice:   make(map[string]int64),
		resultCh:    make(chan OrderResult, resultBufferSize),
		slippageBps: slippageBps,
		journal:     journal,
	}
}

// Results returns the channel of order results.
func (p *PaperExecutor) Results() <-chan OrderResult {
	return p.resultCh
}

// UpdatePrice records the latest close so market orders have a reference.
func (p *PaperExecutor) UpdatePrice(bar model.Bar) {
	p.mu.Lock()
	p.lastPrice[bar.Key()] = bar.Close
	p.mu.Unlock()
}

// Fills returns a snapshot of all simulated fills.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Run consumes strategy signals and simulates execution.
func (p *PaperExecutor) Run(ctx context.Context, signalCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			p.Execute(sig)
		}
	}
}

// Execute simulates one order synchronously. Exposed for the backtest,
// which executes inline rather than through a channel.
func (p *PaperExecutor) Execute(sig strategy.Signal) {
	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)

	fillPrice := sig.Price
	if fillPrice == 0 {
		fillPrice = p.lastPrice[sig.Venue+":"+sig.Symbol]
	}
	if fillPrice <= 0 {
		p.mu.Unlock()
		log.Printf("[paper] no reference price for %s:%s, rejecting order", sig.Venue, sig.Symbol)
		p.emit(OrderResult{OrderID: orderID, Status: "REJECTED", Message: "no reference price", Signal: sig})
		return
	}

	slippage := int64(0)
	if p.slippageBps > 0 {
		slippage = fillPrice * p.slippageBps / 10000
		if sig.Action == strategy.ActionBuy {
			fillPrice += slippage // buys fill worse (higher)
		} else {
			fillPrice -= slippage // sells fill worse (lower)
		}
	}

	fill := Fill{
		OrderID:   orderID,
		Signal:    sig,
		FillPrice: fillPrice,
		FillQty:   sig.Qty,
		FilledAt:  time.Now(),
		Slippage:  slippage,
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[paper] %s %s %s:%s qty=%d price=%d (slip=%d) order=%s reason=%s",
		sig.Action, sig.StrategyName, sig.Venue, sig.Symbol,
		sig.Qty, fillPrice, slippage, orderID, sig.Reason)

	if p.journal != nil {
		p.journal.RecordFill(fill)
	}
	if p.OnFill != nil {
		p.OnFill(fill)
	}

	p.emit(OrderResult{
		OrderID: orderID,
		Status:  "FILLED",
		Message: fmt.Sprintf("paper filled at %d", fillPrice),
		Signal:  sig,
	})
}

func (p *PaperExecutor) emit(res OrderResult) {
	select {
	case p.resultCh <- res:
	default:
	}
}
