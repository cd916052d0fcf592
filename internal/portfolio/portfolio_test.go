package portfolio

import (
	"testing"

	"breakout-systemv1/internal/model"
)

func TestBook_BuyFillMovesCashAndPosition(t *testing.T) {
	b := NewBook(1000000) // $10,000.00

	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "BUY", Qty: 10, Price: 50000})

	if got := b.NetPosition("NYSE", "VOO"); got != 10 {
		t.Errorf("net position = %d, want 10", got)
	}
	// 10 * $500.00 = $5,000.00 spent
	if got := b.AccountBalance(); got != 500000 {
		t.Errorf("balance = %d, want 500000", got)
	}
}

func TestBook_SellRealizesPnL(t *testing.T) {
	b := NewBook(1000000)

	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "BUY", Qty: 10, Price: 50000})
	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "SELL", Qty: 10, Price: 51000})

	if got := b.NetPosition("NYSE", "VOO"); got != 0 {
		t.Errorf("net position = %d, want 0 (flat)", got)
	}
	// Started with $10,000, gained 10 * $10.00
	if got := b.AccountBalance(); got != 1010000 {
		t.Errorf("balance = %d, want 1010000", got)
	}
	if got := b.PnL().RealizedPnL(); got != 10000 {
		t.Errorf("realized pnl = %d, want 10000", got)
	}
}

func TestBook_SellThroughZeroOpensShortAtFillPrice(t *testing.T) {
	b := NewBook(1000000)

	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "BUY", Qty: 10, Price: 50000})
	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "SELL", Qty: 15, Price: 51000})

	if got := b.NetPosition("NYSE", "VOO"); got != -5 {
		t.Errorf("net position = %d, want -5", got)
	}
	// Only the 10 long shares realize: 10 * $10.00
	if got := b.PnL().RealizedPnL(); got != 10000 {
		t.Errorf("realized pnl = %d, want 10000", got)
	}
	positions := b.Positions()
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	// The short remainder enters at the fill price, not the old long average
	if positions[0].AvgPrice != 51000 {
		t.Errorf("avg price = %d, want 51000", positions[0].AvgPrice)
	}
}

func TestBook_WeightedAverageEntry(t *testing.T) {
	b := NewBook(10000000)

	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "BUY", Qty: 10, Price: 50000})
	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "BUY", Qty: 10, Price: 52000})

	positions := b.Positions()
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	// (10*50000 + 10*52000) / 20 = 51000
	if positions[0].AvgPrice != 51000 {
		t.Errorf("avg price = %d, want 51000", positions[0].AvgPrice)
	}
	if positions[0].Qty != 20 {
		t.Errorf("qty = %d, want 20", positions[0].Qty)
	}
}

func TestBook_SnapshotReflectsPriorFillsOnly(t *testing.T) {
	b := NewBook(1000000)

	snap := b.Snapshot("NYSE", "VOO", "SH")
	if snap.NetPrimary != 0 || snap.NetHedge != 0 || snap.Balance != 1000000 {
		t.Errorf("fresh snapshot = %+v, want flat with full balance", snap)
	}

	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "BUY", Qty: 5, Price: 40000})
	b.ApplyFill(Fill{Symbol: "SH", Venue: "NYSE", Side: "BUY", Qty: 3, Price: 1500})

	snap = b.Snapshot("NYSE", "VOO", "SH")
	if snap.NetPrimary != 5 {
		t.Errorf("net primary = %d, want 5", snap.NetPrimary)
	}
	if snap.NetHedge != 3 {
		t.Errorf("net hedge = %d, want 3", snap.NetHedge)
	}
	// 1000000 - 5*40000 - 3*1500 = 795500
	if snap.Balance != 795500 {
		t.Errorf("balance = %d, want 795500", snap.Balance)
	}
}

func TestBook_UnrealizedPnLFromBarClose(t *testing.T) {
	b := NewBook(1000000)
	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "BUY", Qty: 10, Price: 50000})

	b.UpdatePrice(model.Bar{Symbol: "VOO", Venue: "NYSE", Close: 50500})

	// (50500 - 50000) * 10 = 5000
	if got := b.TotalUnrealizedPnL(); got != 5000 {
		t.Errorf("unrealized pnl = %d, want 5000", got)
	}
}

func TestRiskManager_PositionSizeLimit(t *testing.T) {
	b := NewBook(1000000)
	limits := DefaultRiskLimits()
	limits.MaxPositionSize = 100
	rm := NewRiskManager(limits, b, 1000000)

	if ok, _ := rm.CanTrade("NYSE", "VOO", 100); !ok {
		t.Error("qty at limit should be allowed")
	}
	ok, reason := rm.CanTrade("NYSE", "VOO", 101)
	if ok {
		t.Error("qty above limit should be rejected")
	}
	if reason != "position size exceeds limit" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestRiskManager_DailyLossHalts(t *testing.T) {
	b := NewBook(1000000)
	limits := DefaultRiskLimits()
	limits.MaxDailyLoss = 50000
	rm := NewRiskManager(limits, b, 1000000)

	rm.RecordPnL(-60000)

	if ok, reason := rm.CanTrade("NYSE", "VOO", 1); ok {
		t.Error("trading should halt after max daily loss")
	} else if reason != "max daily loss reached" {
		t.Errorf("unexpected reason: %q", reason)
	}

	// A new day resets the halt (drawdown still within 10% default)
	rm.ResetDaily()
	if ok, reason := rm.CanTrade("NYSE", "VOO", 1); !ok {
		t.Errorf("trading should resume after daily reset, got %q", reason)
	}
}

func TestRiskManager_MaxOpenPositions(t *testing.T) {
	b := NewBook(10000000)
	limits := DefaultRiskLimits()
	limits.MaxOpenPositions = 2
	rm := NewRiskManager(limits, b, 10000000)

	b.ApplyFill(Fill{Symbol: "VOO", Venue: "NYSE", Side: "BUY", Qty: 1, Price: 50000})
	b.ApplyFill(Fill{Symbol: "SH", Venue: "NYSE", Side: "BUY", Qty: 1, Price: 1500})

	// Adding to an existing instrument is fine
	if ok, _ := rm.CanTrade("NYSE", "VOO", 1); !ok {
		t.Error("adding to existing position should be allowed")
	}
	// A third instrument is not
	if ok, reason := rm.CanTrade("NYSE", "SPY", 1); ok {
		t.Error("third instrument should be rejected")
	} else if reason != "max open positions reached" {
		t.Errorf("unexpected reason: %q", reason)
	}
}
