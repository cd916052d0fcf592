// Package ws bridges the venue streaming feed into the pipeline: quotes from
// the venueconnect StreamClient are normalized into model.Tick and pushed into
// the tick channel.
package ws

import (
	"context"
	"fmt"
	"log"

	"breakout-systemv1/internal/model"
	"breakout-systemv1/pkg/venueconnect"
)

// IngestConfig holds configuration for the WS ingest.
type IngestConfig struct {
	APIKey    string
	ClientID  string
	FeedToken string

	// Venue stamped onto ticks when the binary feed omits it.
	Venue string

	// Instruments to subscribe on connect.
	Instruments []venueconnect.Instrument
}

// Ingest connects to the venue WebSocket and pushes normalized ticks into tickCh.
type Ingest struct {
	cfg    IngestConfig
	stream *venueconnect.StreamClient

	// Optional metrics hooks
	OnReconnect func()
}

// New creates a new Ingest instance.
func New(cfg IngestConfig) (*Ingest, error) {
	stream, err := venueconnect.NewStreamClient(venueconnect.StreamConfig{
		APIKey:    cfg.APIKey,
		ClientID:  cfg.ClientID,
		FeedToken: cfg.FeedToken,
	})
	if err != nil {
		return nil, fmt.Errorf("ws ingest: create stream client: %w", err)
	}
	return &Ingest{cfg: cfg, stream: stream}, nil
}

// Start connects to the WebSocket and begins streaming ticks into tickCh.
// Blocks until ctx is cancelled.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	doneCh := make(chan struct{})

	ing.stream.OnOpen = func() {
		log.Printf("[ws] connected, subscribing %d instruments", len(ing.cfg.Instruments))
		if err := ing.stream.Subscribe(ing.cfg.Instruments); err != nil {
			log.Printf("[ws] subscribe error: %v", err)
		} else {
			log.Println("[ws] subscription sent successfully")
		}
	}

	ing.stream.OnQuote = func(q venueconnect.Quote) {
		venue := q.Venue
		if venue == "" {
			venue = ing.cfg.Venue
		}
		tick := model.Tick{
			Symbol: q.Symbol,
			Venue:  venue,
			Price:  q.Price,
			Qty:    q.Qty,
			TickTS: q.TS,
		}

		select {
		case tickCh <- tick:
		default:
			log.Println("[ws] tickCh full, dropping tick")
		}
	}

	ing.stream.OnClose = func() {
		log.Println("[ws] connection closed")
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}
	}

	ing.stream.OnError = func(msg string) {
		log.Printf("[ws] error: %s", msg)
	}

	if err := ing.stream.Connect(); err != nil {
		return fmt.Errorf("ws ingest: connect: %w", err)
	}

	// Block until context is done
	go func() {
		<-ctx.Done()
		ing.stream.Close()
		close(doneCh)
	}()

	<-doneCh
	return nil
}
