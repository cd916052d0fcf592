package model

// Position represents a tracked trading position.
type Position struct {
	Symbol      string `json:"symbol"`
	Venue       string `json:"venue"`
	Qty         int64  `json:"qty"`          // positive = long, negative = short
	AvgPrice    int64  `json:"avg_price"`    // cents
	LastPrice   int64  `json:"last_price"`   // latest market price in cents
	RealizedPnL int64  `json:"realized_pnl"` // cents
}

// UnrealizedPnL computes unrealized profit/loss in cents.
func (p *Position) UnrealizedPnL() int64 {
	return (p.LastPrice - p.AvgPrice) * p.Qty
}

// Key returns a unique key for this position: "venue:symbol".
func (p *Position) Key() string {
	return p.Venue + ":" + p.Symbol
}

// PortfolioSnapshot is an immutable pre-bar view of account state handed to
// the decision engine. It reflects all fills from prior bars and none from
// the bar currently being evaluated.
type PortfolioSnapshot struct {
	NetPrimary int64 `json:"net_primary"` // signed net position, primary instrument
	NetHedge   int64 `json:"net_hedge"`   // signed net position, hedge instrument
	Balance    int64 `json:"balance"`     // free account balance in cents
}
