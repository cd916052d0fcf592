// Package strategy provides the strategy engine for running trading strategies.
//
// A Strategy receives finalized bars plus a portfolio snapshot and emits
// trading signals (BUY/EXIT). The Engine manages strategy lifecycle:
// registration, bar routing, and signal collection.
package strategy

import (
	"context"

	"breakout-systemv1/internal/model"
)

// Signal represents a trading signal emitted by a strategy.
type Signal struct {
	StrategyName string `json:"strategy_name"`
	Action       Action `json:"action"` // BUY, SELL, EXIT
	Symbol       string `json:"symbol"`
	Venue        string `json:"venue"`
	Qty          int64  `json:"qty"`
	Price        int64  `json:"price"` // 0 = market order
	Reason       string `json:"reason"`
}

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionExit Action = "EXIT"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnBar is called for each finalized bar, together with a consistent
	// pre-bar portfolio snapshot (all prior fills settled, nothing from
	// this bar). Return a Signal to act, or nil to skip.
	OnBar(bar model.Bar, pf model.PortfolioSnapshot) *Signal
}

// SnapshotFunc supplies the pre-bar portfolio snapshot for a given bar.
type SnapshotFunc func(bar model.Bar) model.PortfolioSnapshot

// Engine manages registered strategies and routes bars to them.
// Single-goroutine: one bar is processed to completion before the next.
type Engine struct {
	strategies []Strategy
	snapshot   SnapshotFunc
	signalCh   chan Signal
}

// NewEngine creates a new strategy engine. snapshot is called once per bar
// and the same snapshot is handed to every strategy.
func NewEngine(signalBufferSize int, snapshot SnapshotFunc) *Engine {
	return &Engine{
		snapshot: snapshot,
		signalCh: make(chan Signal, signalBufferSize),
	}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Signals returns the channel of signals emitted by strategies.
func (e *Engine) Signals() <-chan Signal {
	return e.signalCh
}

// Process routes one finalized bar to all strategies and returns any signals.
func (e *Engine) Process(bar model.Bar) []Signal {
	pf := e.snapshot(bar)
	var out []Signal
	for _, s := range e.strategies {
		if sig := s.OnBar(bar, pf); sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}

// Warmer is implemented by strategies that can ingest historical bars
// for indicator warm-up without emitting signals.
type Warmer interface {
	Warmup(bar model.Bar)
}

// Warmup feeds one historical bar to every strategy that supports it.
// No snapshots are taken and no signals are produced.
func (e *Engine) Warmup(bar model.Bar) {
	for _, s := range e.strategies {
		if w, ok := s.(Warmer); ok {
			w.Warmup(bar)
		}
	}
}

// Run consumes bars and routes them to all registered strategies.
// Blocks until ctx is cancelled or barCh is closed.
func (e *Engine) Run(ctx context.Context, barCh <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			if bar.Forming {
				continue
			}
			for _, sig := range e.Process(bar) {
				select {
				case e.signalCh <- sig:
				default:
					// signal channel full, drop
				}
			}
		}
	}
}
