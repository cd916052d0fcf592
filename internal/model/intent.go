package model

import (
	"encoding/json"
	"time"
)

// OrderIntent is the journaled form of a strategy decision: what the
// strategy wants done, before any executor touches it. Price 0 means
// market order.
type OrderIntent struct {
	Strategy string    `json:"strategy"`
	Action   string    `json:"action"` // BUY, SELL, EXIT
	Symbol   string    `json:"symbol"`
	Venue    string    `json:"venue"`
	Qty      int64     `json:"qty"`
	Price    int64     `json:"price"` // cents, 0 = market
	Reason   string    `json:"reason"`
	TS       time.Time `json:"ts"` // bar timestamp that produced this intent
}

// StreamKey returns the Redis stream key: "sig:{strategy}".
func (o *OrderIntent) StreamKey() string {
	return "sig:" + o.Strategy
}

// PubSubChannel returns the Redis pubsub channel for real-time subscribers.
func (o *OrderIntent) PubSubChannel() string {
	return "pub:sig:" + o.Strategy
}

// JSON returns the JSON-encoded intent.
func (o *OrderIntent) JSON() []byte {
	j, _ := json.Marshal(o)
	return j
}
