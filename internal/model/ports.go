package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple business logic from concrete storage implementations
// (Redis, SQLite). Each implementation satisfies one or more of these interfaces.

// BarWriter writes finalized bars.
type BarWriter interface {
	// Run reads bars from barCh and writes them.
	// Blocks until ctx is cancelled or barCh is closed.
	Run(ctx context.Context, barCh <-chan Bar)

	// Close releases underlying resources.
	Close() error
}

// BarReader reads historical bars for backfill and replay.
type BarReader interface {
	// ReadBars reads bars for a specific instrument and TF, ordered by time.
	ReadBars(venue, symbol string, tf int, afterTS int64) ([]Bar, error)

	// ReadAllBars reads all bars for a given timeframe, ordered by time.
	ReadAllBars(tf int, afterTS int64) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// StreamConsumer consumes finalized bars from a stream (e.g. Redis Streams).
type StreamConsumer interface {
	// EnsureConsumerGroup creates consumer groups on streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// ConsumeBars reads bars via consumer groups.
	// Blocks until ctx is cancelled.
	ConsumeBars(ctx context.Context, streams []string, out chan<- Bar) error

	// Close releases underlying resources.
	Close() error
}

// SnapshotStore reads and writes indicator engine snapshots as raw JSON.
// Using []byte avoids a model→indicator→model import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}

// OrderSubmitter places market orders at the venue. Fire-and-forget from the
// core's perspective: fills surface through the portfolio on a later bar.
type OrderSubmitter interface {
	SubmitMarketOrder(ctx context.Context, venue, symbol, side string, qty int64) (string, error)
}

// PortfolioView exposes the account reads the decision engine needs.
// Implementations must return state as of the end of the previous bar.
type PortfolioView interface {
	NetPosition(venue, symbol string) int64
	AccountBalance() int64
}

// BarFeed subscribes to a stream of finalized bars for one instrument/TF.
type BarFeed interface {
	Subscribe(ctx context.Context, venue, symbol string, tf int) (<-chan Bar, error)
}

// Clock abstracts time for session gating and tests.
type Clock interface {
	Now() time.Time
}
