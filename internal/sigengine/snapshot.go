package sigengine

import (
	"context"
	"log"
	"strconv"
	"time"

	"breakout-systemv1/internal/indicator"
)

// snapshotLoop periodically checkpoints engine state to Redis and SQLite.
func (svc *Service) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(svc.cfg.SnapshotIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := indicator.SnapshotEngine(svc.indEngine, svc.lastStreamID())
			if err != nil {
				log.Printf("[sigengine] snapshot error: %v", err)
				continue
			}
			data, err := snap.MarshalJSON()
			if err != nil {
				log.Printf("[sigengine] snapshot encode error: %v", err)
				continue
			}

			if err := svc.redisReader.SaveSnapshotJSON(data); err != nil {
				log.Printf("[sigengine] redis snapshot write error: %v", err)
			}
			if svc.sqlWriter != nil {
				if err := svc.sqlWriter.SaveSnapshotJSON(data); err != nil {
					log.Printf("[sigengine] sqlite snapshot write error: %v", err)
				}
			}

			log.Printf("[sigengine] checkpoint saved (%d instruments)", len(snap.Instruments))
		}
	}
}

// lastStreamID returns a time-based stream ID marker for snapshots. Replay
// after restart starts from this position.
func (svc *Service) lastStreamID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-0"
}
