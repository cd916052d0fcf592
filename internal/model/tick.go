package model

import "time"

// Tick represents a single market data tick from the venue WebSocket.
// Price is stored as int64 in cents to avoid float drift.
type Tick struct {
	Symbol string    `json:"symbol"`
	Venue  string    `json:"venue"`
	Price  int64     `json:"price"`   // cents (last trade price)
	Qty    int64     `json:"qty"`     // last traded quantity
	TickTS time.Time `json:"tick_ts"` // UTC timestamp
}

// Instrument identifies a tradable instrument at a venue.
type Instrument struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// Key returns "venue:symbol".
func (i Instrument) Key() string {
	return i.Venue + ":" + i.Symbol
}
