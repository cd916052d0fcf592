package sigengine

import (
	"context"
	"fmt"
	"log"
	"time"

	"breakout-systemv1/internal/execution"
	"breakout-systemv1/internal/logger"
	"breakout-systemv1/internal/model"
	"breakout-systemv1/internal/notification"
	"breakout-systemv1/internal/strategy"
)

// startConsumer starts the Redis stream XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go func() {
		if err := svc.redisReader.ConsumeBars(ctx, svc.streams, svc.barCh); err != nil {
			log.Printf("[sigengine] consumer error: %v", err)
		}
	}()
}

// startPELReclaimer starts periodic reclamation of stale PEL messages.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go svc.redisReader.StartPELReclaimer(ctx, svc.streams,
		time.Duration(svc.cfg.PELIntervalS)*time.Second,
		svc.cfg.PELMinIdleMs, svc.barCh,
		func(count int) {
			svc.prom.PELMessagesReclaimed.Add(float64(count))
			log.Printf("[sigengine] reclaimed %d stale PEL messages", count)
		})
	log.Printf("[sigengine] PEL reclaimer started (interval=%ds, minIdle=%dms)",
		svc.cfg.PELIntervalS, svc.cfg.PELMinIdleMs)
}

// processLoop consumes finalized bars and drives the full decision path:
// indicators for observability, then the strategy, then execution.
func (svc *Service) processLoop(ctx context.Context) {
	const (
		latencyKey        = "metrics:sigengine:indicator_compute_ms"
		latencyTTL        = 30 * time.Second
		latencyPublishMin = 2 * time.Second
		latencyAlpha      = 0.2
	)
	var (
		latencyEwmaMs      float64
		lastLatencyPublish time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-svc.barCh:
			if !ok {
				return
			}
			if bar.Forming {
				continue
			}

			start := time.Now()
			results := svc.indEngine.Process(bar)
			elapsed := time.Since(start)
			svc.prom.IndicatorComputeDur.Observe(elapsed.Seconds())
			if len(results) > 0 {
				svc.prom.IndicatorsTotal.Add(float64(len(results)))
				svc.redisWriter.WriteIndicatorBatch(ctx, results)
			}

			svc.handleBar(ctx, bar)

			// Track EWMA compute latency and publish periodically.
			latencyMs := float64(elapsed.Microseconds()) / 1000.0
			if latencyEwmaMs == 0 {
				latencyEwmaMs = latencyMs
			} else {
				latencyEwmaMs = latencyEwmaMs*(1.0-latencyAlpha) + latencyMs*latencyAlpha
			}
			if time.Since(lastLatencyPublish) >= latencyPublishMin {
				cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
				if cctx.Err() == nil {
					_ = svc.redisWriter.Client().Set(
						cctx, latencyKey,
						fmt.Sprintf("%.3f", latencyEwmaMs),
						latencyTTL,
					).Err()
				}
				cancel()
				lastLatencyPublish = time.Now()
			}
		}
	}
}

// handleBar runs one finalized bar through the strategy and executes any
// resulting signals. The strategy snapshot is taken before this bar's fills,
// so a fill settles before the NEXT decision, never the current one.
func (svc *Service) handleBar(ctx context.Context, bar model.Bar) {
	if svc.paper != nil {
		svc.paper.UpdatePrice(bar)
	}

	signals := svc.stratEngine.Process(bar)
	for _, sig := range signals {
		svc.prom.SignalsTotal.WithLabelValues(sig.StrategyName, string(sig.Action)).Inc()

		if ok, reason := svc.risk.CanTrade(sig.Venue, sig.Symbol, sig.Qty); !ok {
			log.Printf("[sigengine] risk check blocked %s %s %s qty=%d: %s",
				sig.Action, sig.Venue, sig.Symbol, sig.Qty, reason)
			continue
		}

		intent := intentFrom(sig)
		trace := logger.GenerateTraceID(sig.Symbol, intent.TS)
		if err := svc.buffered.WriteIntent(intent); err != nil {
			log.Printf("[sigengine] trace=%s intent publish error: %v (buffered=%d)",
				trace, err, svc.buffered.PendingCount())
		} else {
			log.Printf("[sigengine] trace=%s intent published: %s %s qty=%d", trace, sig.Action, sig.Symbol, sig.Qty)
		}
		svc.notify(notification.IntentAlert(intent))

		svc.execute(ctx, sig)
	}

	svc.book.UpdatePrice(bar)
}

// execute routes one signal to the configured executor. Paper fills settle
// synchronously; live orders go through the executor goroutine.
func (svc *Service) execute(ctx context.Context, sig strategy.Signal) {
	if svc.paper != nil {
		svc.paper.Execute(sig)
		return
	}
	select {
	case svc.execCh <- sig:
	case <-ctx.Done():
	}
}

// intentFrom converts an in-process signal to its journaled wire form.
func intentFrom(sig strategy.Signal) *model.OrderIntent {
	return &model.OrderIntent{
		Strategy: sig.StrategyName,
		Action:   string(sig.Action),
		Symbol:   sig.Symbol,
		Venue:    sig.Venue,
		Qty:      sig.Qty,
		Price:    sig.Price,
		Reason:   sig.Reason,
		TS:       time.Now().UTC(),
	}
}

// drainResults logs executor outcomes so result channels never back up.
func (svc *Service) drainResults(ctx context.Context) {
	var results <-chan execution.OrderResult
	if svc.paper != nil {
		results = svc.paper.Results()
	} else {
		results = svc.live.Results()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			log.Printf("[sigengine] order %s: %s %s %s qty=%d (%s)",
				res.Status, res.Signal.Action, res.Signal.Venue,
				res.Signal.Symbol, res.Signal.Qty, res.Message)
		}
	}
}
