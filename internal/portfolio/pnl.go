package portfolio

import (
	"sync"
)

// PnLTracker tracks realized P&L from a stream of fills, independent of the
// live position book, for reporting and backtest summaries.
type PnLTracker struct {
	mu    sync.RWMutex
	fills []Fill

	realizedPnL int64 // cents

	// Per-instrument cost basis
	costBasis map[string]costEntry
}

type costEntry struct {
	Qty      int64
	AvgPrice int64 // cents
}

// NewPnLTracker creates an empty tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		fills:     make([]Fill, 0, 500),
		costBasis: make(map[string]costEntry),
	}
}

// RecordFill records a fill and returns the realized P&L it produced (cents).
func (p *PnLTracker) RecordFill(f Fill) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fills = append(p.fills, f)
	key := f.Venue + ":" + f.Symbol
	entry := p.costBasis[key]

	var realized int64

	if f.Side == "BUY" {
		if entry.Qty == 0 {
			entry.Qty = f.Qty
			entry.AvgPrice = f.Price
		} else {
			// Weighted average entry price
			totalCost := entry.AvgPrice*entry.Qty + f.Price*f.Qty
			entry.Qty += f.Qty
			if entry.Qty > 0 {
				entry.AvgPrice = totalCost / entry.Qty
			}
		}
	} else {
		sellQty := f.Qty
		if sellQty > entry.Qty {
			sellQty = entry.Qty
		}
		realized = (f.Price - entry.AvgPrice) * sellQty
		entry.Qty -= sellQty
		if entry.Qty <= 0 {
			entry.Qty = 0
			entry.AvgPrice = 0
		}
		p.realizedPnL += realized
	}

	p.costBasis[key] = entry
	return realized
}

// RealizedPnL returns total realized P&L in cents.
func (p *PnLTracker) RealizedPnL() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// UnrealizedPnL computes unrealized P&L from current prices.
// currentPrices maps "venue:symbol" to the latest price in cents.
func (p *PnLTracker) UnrealizedPnL(currentPrices map[string]int64) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var unrealized int64
	for key, entry := range p.costBasis {
		if entry.Qty <= 0 {
			continue
		}
		if price, ok := currentPrices[key]; ok {
			unrealized += (price - entry.AvgPrice) * entry.Qty
		}
	}
	return unrealized
}

// Fills returns a snapshot of all recorded fills.
func (p *PnLTracker) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Summary is an aggregate P&L report.
type Summary struct {
	RealizedPnL   int64 `json:"realized_pnl"`
	UnrealizedPnL int64 `json:"unrealized_pnl"`
	TotalPnL      int64 `json:"total_pnl"`
	TotalFills    int   `json:"total_fills"`
	OpenPositions int   `json:"open_positions"`
}

// GetSummary returns the current P&L summary.
func (p *PnLTracker) GetSummary(currentPrices map[string]int64) Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	unrealized := int64(0)
	openPositions := 0
	for key, entry := range p.costBasis {
		if entry.Qty <= 0 {
			continue
		}
		openPositions++
		if price, ok := currentPrices[key]; ok {
			unrealized += (price - entry.AvgPrice) * entry.Qty
		}
	}

	return Summary{
		RealizedPnL:   p.realizedPnL,
		UnrealizedPnL: unrealized,
		TotalPnL:      p.realizedPnL + unrealized,
		TotalFills:    len(p.fills),
		OpenPositions: openPositions,
	}
}
