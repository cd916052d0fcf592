package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"breakout-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: ~1 week of 1m bars + buffer
	streamBaseMaxLen = 11000
	defaultLatestTTL = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes bars, indicator results, and strategy signals to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads finalized bars from barCh and writes them to Redis.
// Forming bars are skipped; use RunFormingBars for those.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			if bar.Forming {
				continue
			}
			w.writeBar(ctx, bar)
		}
	}
}

// RunFormingBars publishes forming bars via PubSub ONLY (no XADD).
// Used for live dashboard previews of in-progress buckets.
// OPTIMIZED: uses string concat instead of fmt.Sprintf.
func (w *Writer) RunFormingBars(ctx context.Context, ch <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-ch:
			if !ok {
				return
			}
			jsonBytes := bar.JSON()
			jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
			pubsubCh := "pub:bar:" + model.Itoa(bar.TF) + "s:" + bar.Venue + ":" + bar.Symbol
			w.client.Publish(ctx, pubsubCh, jsonData)
		}
	}
}

// RunIndicators reads indicator results and writes them to Redis Streams.
// Blocks until ctx is cancelled or channel is closed.
func (w *Writer) RunIndicators(ctx context.Context, indCh <-chan model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case ind, ok := <-indCh:
			if !ok {
				return
			}
			w.writeIndicator(ctx, ind)
		}
	}
}

// WriteIndicatorBatch writes multiple indicator results in a single Redis pipeline.
// This batches XADD + SET + PUBLISH for all results into one network roundtrip.
// Optimized: uses pre-built channel names, []byte→string zero-copy, no fmt.Sprintf.
func (w *Writer) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) {
	if len(results) == 0 {
		return
	}

	pipe := w.client.Pipeline()
	for i := range results {
		ind := &results[i]
		if !ind.Ready {
			continue
		}

		jsonBytes := ind.JSON()
		// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
		jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

		streamKey := ind.StreamKey()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: streamMaxLen(ind.TF),
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		latestKey := "ind:" + ind.Name + ":" + model.Itoa(ind.TF) + "s:latest:" + ind.Venue + ":" + ind.Symbol
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
		pipe.Publish(ctx, ind.PubSubChannel(), jsonData)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] indicator batch pipeline error (%d results): %v", len(results), err)
	}
}

// PublishIntent journals an order intent to its stream and notifies
// real-time subscribers.
func (w *Writer) PublishIntent(ctx context.Context, intent *model.OrderIntent) error {
	jsonBytes := intent.JSON()
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: intent.StreamKey(),
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, intent.PubSubChannel(), jsonData)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis publish intent %s: %w", intent.Strategy, err)
	}
	return nil
}

// LoadTFRegistry reads the tf:enabled set from Redis.
// Returns empty slice if key doesn't exist.
func (w *Writer) LoadTFRegistry(ctx context.Context) ([]int, error) {
	members, err := w.client.SMembers(ctx, "tf:enabled").Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis SMEMBERS tf:enabled: %w", err)
	}

	tfs := make([]int, 0, len(members))
	for _, m := range members {
		n := 0
		for _, c := range m {
			if c >= '0' && c <= '9' {
				n = n*10 + int(c-'0')
			}
		}
		if n > 0 {
			tfs = append(tfs, n)
		}
	}
	return tfs, nil
}

// streamMaxLen returns a proportional MAXLEN for a TF stream:
// roughly a week of bars, floored at 200 entries.
func streamMaxLen(tf int) int64 {
	if tf <= 0 {
		return streamBaseMaxLen
	}
	maxLen := int64(604800/tf) + 100
	if maxLen < 200 {
		maxLen = 200
	}
	return maxLen
}

// writeBar performs pipelined writes for a finalized bar.
func (w *Writer) writeBar(ctx context.Context, bar model.Bar) {
	streamKey := bar.StreamKey()
	latestKey := "bar:" + model.Itoa(bar.TF) + "s:latest:" + bar.Venue + ":" + bar.Symbol
	pubsubCh := "pub:bar:" + model.Itoa(bar.TF) + "s:" + bar.Venue + ":" + bar.Symbol
	jsonData := string(bar.JSON())

	pipe := w.client.Pipeline()

	// XADD to stream with auto-trimming
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen(bar.TF),
		Approx: true,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})

	// SET latest bar with TTL
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)

	// PUBLISH to pubsub channel
	pipe.Publish(ctx, pubsubCh, jsonData)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] pipeline error for %s: %v", bar.Key(), err)
	}
}

// writeIndicator publishes an indicator result to its Redis Stream.
func (w *Writer) writeIndicator(ctx context.Context, ind model.IndicatorResult) {
	if !ind.Ready {
		return // skip not-ready results
	}

	jsonBytes := ind.JSON()
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

	pipe := w.client.Pipeline()

	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: ind.StreamKey(),
		MaxLen: streamMaxLen(ind.TF),
		Approx: true,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})

	latestKey := "ind:" + ind.Name + ":" + model.Itoa(ind.TF) + "s:latest:" + ind.Venue + ":" + ind.Symbol
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)

	pipe.Publish(ctx, ind.PubSubChannel(), jsonData)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] indicator pipeline error for %s: %v", ind.Name, err)
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
