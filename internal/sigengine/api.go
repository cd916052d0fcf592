package sigengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"breakout-systemv1/internal/indicator"
	"breakout-systemv1/internal/model"
)

// startHTTP launches the HTTP server for /reload and /healthz endpoints.
func (svc *Service) startHTTP(ctx context.Context) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/reload", svc.handleReload)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "ok")
		})
		mux.HandleFunc("/positions", svc.handlePositions)
		log.Printf("[sigengine] HTTP server on %s (/reload, /healthz, /positions)", svc.cfg.HTTPAddr)
		if err := http.ListenAndServe(svc.cfg.HTTPAddr, mux); err != nil {
			log.Printf("[sigengine] HTTP server error: %v", err)
		}
	}()
}

// handleReload handles POST /reload for live indicator config updates.
// The body is a JSON array of per-TF indicator configs.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var newConfigs []indicator.TFIndicatorConfig
	if err := json.NewDecoder(r.Body).Decode(&newConfigs); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := indicator.ValidateConfigs(newConfigs); err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}
	preserved, created := svc.indEngine.ReloadConfigs(newConfigs)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"preserved": preserved,
		"created":   created,
	})
}

// handlePositions reports the current book state.
func (svc *Service) handlePositions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"positions": svc.book.Positions(),
		"balance":   svc.book.AccountBalance(),
		"pnl":       svc.book.PnL().GetSummary(svc.lastPrices()),
		"risk":      svc.risk.Status(),
	})
}

// lastPrices collects current close prices per instrument key for
// unrealized P&L reporting.
func (svc *Service) lastPrices() map[string]int64 {
	prices := make(map[string]int64)
	for _, p := range svc.book.Positions() {
		if p.LastPrice > 0 {
			prices[p.Key()] = p.LastPrice
		}
	}
	return prices
}

// startConfigSubscriber listens on Redis PubSub for dynamic indicator
// config updates. The payload format matches the /reload body.
func (svc *Service) startConfigSubscriber(ctx context.Context) {
	go func() {
		pubsub := svc.redisReader.SubscribeChannel(ctx, "config:indicators")
		if pubsub == nil {
			log.Println("[sigengine] WARNING: could not subscribe to config:indicators")
			return
		}
		defer pubsub.Close()
		log.Println("[sigengine] subscribed to config:indicators for dynamic reload")

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				log.Printf("[sigengine] received config update: %s", msg.Payload)
				svc.reloadFromPayload(ctx, msg.Payload)
			}
		}
	}()
}

// reloadFromPayload applies a pubsub config update and backfills any newly
// created indicators from the Redis bar streams.
func (svc *Service) reloadFromPayload(ctx context.Context, payload string) {
	var newConfigs []indicator.TFIndicatorConfig
	if err := json.Unmarshal([]byte(payload), &newConfigs); err != nil {
		log.Printf("[sigengine] config update decode error: %v", err)
		return
	}
	if err := indicator.ValidateConfigs(newConfigs); err != nil {
		log.Printf("[sigengine] invalid config: %v", err)
		return
	}
	preserved, created := svc.indEngine.ReloadConfigs(newConfigs)
	log.Printf("[sigengine] reloaded: preserved=%d, created=%d", preserved, created)

	if created == 0 || svc.sqlReader == nil {
		return
	}
	restorer := indicator.NewRestorer(newConfigs)
	backfilled := restorer.BackfillFromHistory(svc.indEngine, svc.sqlReader, func(results []model.IndicatorResult) {
		svc.redisWriter.WriteIndicatorBatch(ctx, results)
	})
	log.Printf("[sigengine] reload backfill: processed %d bars for new indicators", backfilled)
}
