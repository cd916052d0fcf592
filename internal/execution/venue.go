package execution

import (
	"context"

	"breakout-systemv1/pkg/venueconnect"
)

// VenueSubmitter adapts the venue REST client to model.OrderSubmitter.
type VenueSubmitter struct {
	client *venueconnect.Client
}

// NewVenueSubmitter wraps a logged-in venue client.
func NewVenueSubmitter(client *venueconnect.Client) *VenueSubmitter {
	return &VenueSubmitter{client: client}
}

// SubmitMarketOrder places a market order and returns the venue order ID.
func (v *VenueSubmitter) SubmitMarketOrder(ctx context.Context, venue, symbol, side string, qty int64) (string, error) {
	return v.client.PlaceMarketOrder(ctx, venueconnect.OrderRequest{
		Venue:  venue,
		Symbol: symbol,
		Side:   side,
		Qty:    qty,
	})
}
