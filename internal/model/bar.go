package model

import (
	"encoding/json"
	"time"
)

// Bar represents an OHLCV bar for a single instrument and timeframe.
// TF is the bar period in seconds (60 = 1 minute, 3600 = 1 hour, 86400 = 1 day).
// All prices are in cents (int64) to avoid floating-point drift.
type Bar struct {
	Symbol  string    `json:"symbol"`
	Venue   string    `json:"venue"`
	TF      int       `json:"tf"`      // bar period in seconds
	TS      time.Time `json:"ts"`      // bucket start time (UTC, TF-aligned)
	Open    int64     `json:"open"`    // cents
	High    int64     `json:"high"`    // cents
	Low     int64     `json:"low"`     // cents
	Close   int64     `json:"close"`   // cents
	Volume  int64     `json:"volume"`  // cumulative quantity
	Count   int       `json:"count"`   // number of base bars/ticks merged
	Forming bool      `json:"forming"` // true if bucket is still open
}

// Key returns a unique key for this bar's instrument: "venue:symbol".
func (b *Bar) Key() string {
	return b.Venue + ":" + b.Symbol
}

// StreamKey returns the Redis stream key: "bar:{TF}s:{venue}:{symbol}".
func (b *Bar) StreamKey() string {
	return "bar:" + Itoa(b.TF) + "s:" + b.Venue + ":" + b.Symbol
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	j, _ := json.Marshal(b)
	return j
}

// IndicatorResult holds a computed indicator value for a specific symbol + TF.
type IndicatorResult struct {
	Name   string    `json:"name"` // e.g. "HHLL_1_1_8_1.entry_high", "EMAREG_50"
	Symbol string    `json:"symbol"`
	Venue  string    `json:"venue"`
	TF     int       `json:"tf"` // timeframe in seconds
	Value  float64   `json:"value"`
	TS     time.Time `json:"ts"`    // bar timestamp that produced this value
	Ready  bool      `json:"ready"` // true when the indicator has produced a value
}

// StreamKey returns the Redis stream key: "ind:{name}:{TF}s:{venue}:{symbol}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.Name + ":" + Itoa(r.TF) + "s:" + r.Venue + ":" + r.Symbol
}

// PubSubChannel returns the Redis pubsub channel for real-time subscribers.
func (r *IndicatorResult) PubSubChannel() string {
	return "pub:ind:" + r.Name + ":" + Itoa(r.TF) + "s:" + r.Venue + ":" + r.Symbol
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	j, _ := json.Marshal(r)
	return j
}
