package portfolio

import (
	"log"
	"sync"
)

// RiskLimits defines configurable risk management thresholds.
type RiskLimits struct {
	MaxPositionSize  int64   `json:"max_position_size"`  // max qty per instrument
	MaxDailyLoss     int64   `json:"max_daily_loss"`     // cents
	MaxOpenPositions int     `json:"max_open_positions"` // concurrent positions
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`   // 0-100
}

// DefaultRiskLimits returns conservative defaults for a two-leg book.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:  10000,
		MaxDailyLoss:     200000, // $2,000
		MaxOpenPositions: 2,      // primary + hedge
		MaxDrawdownPct:   10.0,
	}
}

// RiskManager validates orders against risk limits and tracks equity.
type RiskManager struct {
	mu     sync.RWMutex
	limits RiskLimits
	book   *Book

	dailyPnL   int64
	equity     int64
	peakEquity int64
}

// NewRiskManager creates a RiskManager over the given book and starting equity.
func NewRiskManager(limits RiskLimits, book *Book, initialEquity int64) *RiskManager {
	return &RiskManager{
		limits:     limits,
		book:       book,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// CanTrade checks whether a new order would violate any risk limit.
// Returns true if allowed, otherwise false with a reason.
func (rm *RiskManager) CanTrade(venue, symbol string, qty int64) (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	positions := rm.book.Positions()

	// Max open positions: only counts new instruments
	isNew := true
	for _, pos := range positions {
		if pos.Venue == venue && pos.Symbol == symbol && pos.Qty != 0 {
			isNew = false
			break
		}
	}
	if isNew {
		open := 0
		for _, pos := range positions {
			if pos.Qty != 0 {
				open++
			}
		}
		if open >= rm.limits.MaxOpenPositions {
			return false, "max open positions reached"
		}
	}

	if qty > rm.limits.MaxPositionSize || qty < -rm.limits.MaxPositionSize {
		return false, "position size exceeds limit"
	}

	if rm.dailyPnL < -rm.limits.MaxDailyLoss {
		return false, "max daily loss reached"
	}

	if rm.peakEquity > 0 {
		drawdown := float64(rm.peakEquity-rm.equity) / float64(rm.peakEquity) * 100
		if drawdown > rm.limits.MaxDrawdownPct {
			return false, "max drawdown exceeded"
		}
	}

	return true, ""
}

// RecordPnL updates daily P&L and equity tracking.
func (rm *RiskManager) RecordPnL(pnl int64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.dailyPnL += pnl
	rm.equity += pnl
	if rm.equity > rm.peakEquity {
		rm.peakEquity = rm.equity
	}

	log.Printf("[risk] daily P&L: %d, equity: %d, peak: %d", rm.dailyPnL, rm.equity, rm.peakEquity)
}

// ResetDaily resets the daily P&L counter (call at market open).
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.dailyPnL = 0
}

// Status returns the current risk status for the health endpoint.
func (rm *RiskManager) Status() map[string]interface{} {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	drawdown := 0.0
	if rm.peakEquity > 0 {
		drawdown = float64(rm.peakEquity-rm.equity) / float64(rm.peakEquity) * 100
	}

	return map[string]interface{}{
		"daily_pnl":    rm.dailyPnL,
		"equity":       rm.equity,
		"peak_equity":  rm.peakEquity,
		"drawdown_pct": drawdown,
		"limits":       rm.limits,
	}
}
