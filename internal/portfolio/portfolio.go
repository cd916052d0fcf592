// Package portfolio tracks positions, balance, and P&L for the breakout
// strategy's two-instrument book.
//
// Fills are applied as they arrive and settle into the book immediately, so
// the snapshot taken before each decision bar reflects every prior fill and
// none from the bar under evaluation.
package portfolio

import (
	"sync"

	"breakout-systemv1/internal/model"
)

// Fill is a completed execution applied to the book.
type Fill struct {
	Symbol  string `json:"symbol"`
	Venue   string `json:"venue"`
	Side    string `json:"side"` // BUY or SELL
	Qty     int64  `json:"qty"`
	Price   int64  `json:"price"` // cents
	OrderID string `json:"order_id"`
}

// Book tracks open positions and free balance for one account.
// Implements model.PortfolioView.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*model.Position // key = "venue:symbol"
	balance   int64                      // free cash in cents

	pnl *PnLTracker
}

// NewBook creates a Book with the given starting balance in cents.
func NewBook(initialBalance int64) *Book {
	return &Book{
		positions: make(map[string]*model.Position),
		balance:   initialBalance,
		pnl:       NewPnLTracker(),
	}
}

// ApplyFill settles a fill into the book: position and average price are
// updated and cash moves by qty*price.
func (b *Book) ApplyFill(f Fill) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := f.Venue + ":" + f.Symbol
	pos, ok := b.positions[key]
	if !ok {
		pos = &model.Position{Symbol: f.Symbol, Venue: f.Venue}
		b.positions[key] = pos
	}

	notional := f.Qty * f.Price
	if f.Side == "BUY" {
		if pos.Qty >= 0 {
			// Extending a long: weighted average entry
			totalCost := pos.AvgPrice*pos.Qty + notional
			pos.Qty += f.Qty
			if pos.Qty > 0 {
				pos.AvgPrice = totalCost / pos.Qty
			}
		} else {
			// Covering a short
			pos.RealizedPnL += (pos.AvgPrice - f.Price) * min64(f.Qty, -pos.Qty)
			pos.Qty += f.Qty
			if pos.Qty == 0 {
				pos.AvgPrice = 0
			}
		}
		b.balance -= notional
	} else {
		if pos.Qty > 0 {
			pos.RealizedPnL += (f.Price - pos.AvgPrice) * min64(f.Qty, pos.Qty)
		}
		pos.Qty -= f.Qty
		if pos.Qty == 0 {
			pos.AvgPrice = 0
		} else if pos.Qty < 0 {
			// Any resulting short opens at the fill price, including a
			// long flipped through zero.
			pos.AvgPrice = f.Price
		}
		b.balance += notional
	}
	pos.LastPrice = f.Price

	b.pnl.RecordFill(f)
}

// UpdatePrice marks a position to the latest bar close.
func (b *Book) UpdatePrice(bar model.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos, ok := b.positions[bar.Key()]; ok {
		pos.LastPrice = bar.Close
	}
}

// NetPosition returns the signed net quantity for an instrument.
func (b *Book) NetPosition(venue, symbol string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if pos, ok := b.positions[venue+":"+symbol]; ok {
		return pos.Qty
	}
	return 0
}

// AccountBalance returns the free cash balance in cents.
func (b *Book) AccountBalance() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balance
}

// Snapshot builds the pre-bar view handed to the decision engine.
func (b *Book) Snapshot(venue, primarySymbol, hedgeSymbol string) model.PortfolioSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := model.PortfolioSnapshot{Balance: b.balance}
	if pos, ok := b.positions[venue+":"+primarySymbol]; ok {
		snap.NetPrimary = pos.Qty
	}
	if pos, ok := b.positions[venue+":"+hedgeSymbol]; ok {
		snap.NetHedge = pos.Qty
	}
	return snap
}

// SyncFromVenue replaces the book's positions and balance with the venue's
// authoritative view. Used in live mode where fills happen at the venue.
func (b *Book) SyncFromVenue(positions []model.Position, balance int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.positions = make(map[string]*model.Position, len(positions))
	for i := range positions {
		p := positions[i]
		b.positions[p.Key()] = &p
	}
	b.balance = balance
}

// Positions returns a copy of all open positions.
func (b *Book) Positions() []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]model.Position, 0, len(b.positions))
	for _, p := range b.positions {
		result = append(result, *p)
	}
	return result
}

// TotalUnrealizedPnL returns the unrealized P&L across all positions in cents.
func (b *Book) TotalUnrealizedPnL() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for _, p := range b.positions {
		total += p.UnrealizedPnL()
	}
	return total
}

// PnL returns the book's P&L tracker.
func (b *Book) PnL() *PnLTracker {
	return b.pnl
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
