package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"breakout-systemv1/config"
	"breakout-systemv1/internal/marketdata/agg"
	"breakout-systemv1/internal/marketdata/bus"
	"breakout-systemv1/internal/marketdata/closedetector"
	"breakout-systemv1/internal/marketdata/tfbuilder"
	"breakout-systemv1/internal/marketdata/ws"
	"breakout-systemv1/internal/marketdata/wssim"
	"breakout-systemv1/internal/markethours"
	"breakout-systemv1/internal/metrics"
	"breakout-systemv1/internal/model"
	"breakout-systemv1/internal/ringbuf"
	redisstore "breakout-systemv1/internal/store/redis"
	sqlitestore "breakout-systemv1/internal/store/sqlite"
	"breakout-systemv1/pkg/venueconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[mdengine] starting...")

	// ---- Staging mode check ----
	stagingMode := strings.EqualFold(os.Getenv("STAGING_MODE"), "true")
	if stagingMode {
		log.Println("[mdengine] *** STAGING MODE — using tickserver WS instead of the venue feed ***")
	}

	// ---- Load config from env ----
	var cfg *config.Config
	if stagingMode {
		cfg = config.LoadStaging()
	} else {
		cfg = config.Load() // requires venue credential env vars
	}

	enabledTFs := cfg.ParseTFs()
	log.Printf("[mdengine] enabled TFs: %v seconds", enabledTFs)
	instruments := cfg.Instruments()
	log.Printf("[mdengine] instruments: %v", instruments)

	// ---- Pipeline channels ----
	// Ticks land in a lock-free SPSC ring between the WS reader and the
	// aggregator so a slow consumer never blocks the socket read loop.
	tickRing := ringbuf.New(16384)
	tickCh := make(chan model.Tick, 10000)
	baseBarCh := make(chan model.Bar, 5000) // finalized 1m bars from the aggregator
	tfBarCh := make(chan model.Bar, 5000)   // resampled TF bars (forming + final)

	// Channels for async store writes (off the compute path)
	redisTFBarCh := make(chan model.Bar, 5000)
	sqliteTFBarCh := make(chan model.Bar, 5000)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledTFs(enabledTFs)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown context ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite writer (off hot path) ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[mdengine] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)
	log.Println("[mdengine] sqlite writer ready")

	// ---- Redis writer ----
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[mdengine] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
		log.Println("[mdengine] redis writer ready")
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Fan-out for base 1m bars (SQLite + Redis + TF builder) ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	sqliteBarCh := fanout.Subscribe()
	var redisBarCh <-chan model.Bar
	if redisWriter != nil {
		redisBarCh = fanout.Subscribe()
	}
	tfBuilderIn := fanout.Subscribe()

	go fanout.Run(ctx, baseBarCh)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := fanout.ChannelStats()
				for i, s := range stats {
					if s.Cap > 0 {
						pct := float64(s.Len) / float64(s.Cap) * 100
						prom.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(i)).Set(pct)
					}
				}
			}
		}
	}()

	go sqlWriter.Run(ctx, sqliteBarCh)
	if redisWriter != nil && redisBarCh != nil {
		go redisWriter.Run(ctx, redisBarCh)
	}

	// ---- TF builder (HOT PATH) ----
	tfBuilder := tfbuilder.New(enabledTFs)
	tfBuilder.OnTFBar = func(b model.Bar) {
		prom.TFBarsTotal.WithLabelValues(strconv.Itoa(b.TF)).Inc()
	}
	tfBuilder.OnStaleBar = func() {
		prom.StaleBarsRejected.Inc()
	}
	health.SetTFBuilderOK(true)
	log.Printf("[mdengine] TF builder started with TFs=%v (stale tolerance=%v)", enabledTFs, tfBuilder.StaleTolerance)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-tfBuilderIn:
				if !ok {
					return
				}
				start := time.Now()
				tfBuilder.Run1(b, tfBarCh)
				prom.TFBuildDur.Observe(time.Since(start).Seconds())
			}
		}
	}()

	// ---- Fan out TF bars to Redis + SQLite (OFF hot path) ----
	redisFormingCh := make(chan model.Bar, 5000)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-tfBarCh:
				if !ok {
					return
				}
				if b.Forming {
					select {
					case redisFormingCh <- b:
					default:
					}
					continue
				}
				select {
				case redisTFBarCh <- b:
				default:
				}
				select {
				case sqliteTFBarCh <- b:
				default:
				}
			}
		}
	}()

	if redisWriter != nil {
		go redisWriter.Run(ctx, redisTFBarCh)
		go redisWriter.RunFormingBars(ctx, redisFormingCh)
	}
	go sqlWriter.Run(ctx, sqliteTFBarCh)

	// ---- Aggregator (1m OHLC builder) ----
	aggregator := agg.New()
	aggregator.OnDroppedTick = func() {
		prom.DroppedTicks.Inc()
	}
	go aggregator.Run(ctx, tickCh, baseBarCh)

	// Ring drain: pump ticks from the SPSC ring into the aggregator channel.
	go func() {
		var lastOverflow uint64
		idle := time.NewTicker(time.Millisecond)
		defer idle.Stop()
		for {
			if tick, ok := tickRing.Pop(); ok {
				select {
				case tickCh <- tick:
				case <-ctx.Done():
					return
				}
				continue
			}
			if of := tickRing.Overflow(); of > lastOverflow {
				prom.RingBufOverflow.Add(float64(of - lastOverflow))
				lastOverflow = of
			}
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
		}
	}()
	log.Println("[mdengine] pipeline ready (24/7)")

	// ═══════════════════════════════════════════════════════════════
	// WS Lifecycle: STAGING vs PRODUCTION
	// ═══════════════════════════════════════════════════════════════
	if stagingMode {
		// ---- STAGING: connect to tickserver via wssim ----
		simWSURL := getEnv("SIM_WS_URL", "ws://localhost:9001/ws")
		log.Printf("[mdengine] staging tick source: %s", simWSURL)

		ingest, err := wssim.New(wssim.Config{
			URL:               simWSURL,
			ReconnectDelay:    2 * time.Second,
			MaxReconnectDelay: 30 * time.Second,
		})
		if err != nil {
			log.Fatalf("[mdengine] wssim init failed: %v", err)
		}
		ingest.OnReconnect = func() {
			prom.WSReconnects.Inc()
		}
		health.SetWSConnected(true)

		simTickCh := make(chan model.Tick, 10000)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case tick, ok := <-simTickCh:
					if !ok {
						return
					}
					health.SetLastTickTime(time.Now())
					prom.TicksTotal.Inc()
					tickRing.Push(tick)
				}
			}
		}()
		go func() {
			if err := ingest.Start(ctx, simTickCh); err != nil {
				log.Printf("[mdengine] wssim error: %v", err)
				health.SetWSConnected(false)
			}
		}()

		log.Println("[mdengine] ╔════════════════════════════════════════════════════════════════╗")
		log.Println("[mdengine] ║  Market Data Engine — STAGING MODE                             ║")
		log.Println("[mdengine] ║                                                                ║")
		log.Println("[mdengine] ║  [TickServer WS] → [1m Agg] → [TF Builder] → [Redis/SQLite]    ║")
		log.Printf("[mdengine] ║  TFs: %-56v ║", enabledTFs)
		log.Printf("[mdengine] ║  Source: %-53s ║", simWSURL)
		log.Println("[mdengine] ║  No venue credentials required                                 ║")
		log.Println("[mdengine] ╚════════════════════════════════════════════════════════════════╝")
	} else {
		// ---- PRODUCTION: venue WS with market hours gating ----
		go runVenueFeed(ctx, cfg, instruments, tickRing, prom, health)

		log.Println("[mdengine] ╔═══════════════════════════════════════════════════════════════╗")
		log.Println("[mdengine] ║  Market Data Engine — Production Mode                         ║")
		log.Println("[mdengine] ║                                                               ║")
		log.Println("[mdengine] ║  Pipeline (24/7): [Agg] → [TF Builder] → [Redis/SQLite]       ║")
		log.Println("[mdengine] ║  WS Feed (market hours): 9:30 AM – 4:00 PM ET, Mon–Fri        ║")
		log.Printf("[mdengine] ║  TFs: %v                              ║", enabledTFs)
		log.Println("[mdengine] ║  Fresh login + tokens at each market open                     ║")
		log.Println("[mdengine] ╚═══════════════════════════════════════════════════════════════╝")
		log.Printf("[mdengine] %s", markethours.StatusString(time.Now()))
	}

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[mdengine] shutdown signal received, cleaning up...")
	cancel()

	// Give goroutines time to flush buffers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}

	log.Println("[mdengine] shutdown complete.")
}

// runVenueFeed runs the production WS session loop: wait for market open,
// log in fresh, stream until the closing price is captured (or the close
// deadline), then loop back for the next session.
func runVenueFeed(ctx context.Context, cfg *config.Config, instruments []model.Instrument,
	tickRing *ringbuf.Ring, prom *metrics.Metrics, health *metrics.HealthStatus) {
	for {
		// --- Wait for market open ---
		now := time.Now()
		if !markethours.IsMarketOpen(now) {
			next := markethours.NextOpen(now)
			wait := next.Sub(now)
			log.Printf("[mdengine] market closed. %s", markethours.StatusString(now))
			log.Printf("[mdengine] sleeping %v until next open %s",
				wait.Truncate(time.Second), next.In(markethours.ET).Format("Mon 15:04"))
			health.SetWSConnected(false)
			prom.MarketState.Set(0)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		prom.MarketState.Set(1)
		prom.SessionTransitions.WithLabelValues("open").Inc()

		// --- Fresh login (new TOTP + session) ---
		log.Println("[mdengine] market open — establishing fresh session...")
		client := venueconnect.NewClient(venueconnect.Config{APIKey: cfg.VenueAPIKey})
		loginCtx, loginCancel := context.WithTimeout(ctx, 15*time.Second)
		sess, err := client.LoginWithTOTPSecret(loginCtx, cfg.VenueClientID, cfg.VenuePassword, cfg.VenueTOTPSecret)
		loginCancel()
		if err != nil {
			log.Printf("[mdengine] login failed: %v, retrying in 30s", err)
			time.Sleep(30 * time.Second)
			continue
		}
		if sess.FeedToken == "" {
			log.Printf("[mdengine] empty feed token from session, retrying in 30s")
			time.Sleep(30 * time.Second)
			continue
		}
		log.Printf("[mdengine] session ready for client %s", cfg.VenueClientID)

		// --- Connect WS, disconnect once the closing price is captured ---
		closeTime := markethours.TodayClose(time.Now())
		detector := closedetector.New(closeTime)
		wsCtx, wsCancel := context.WithDeadline(ctx, closeTime.Add(detector.MaxGrace))

		wsInstruments := make([]venueconnect.Instrument, 0, len(instruments))
		for _, inst := range instruments {
			wsInstruments = append(wsInstruments, venueconnect.Instrument{
				Venue:  inst.Venue,
				Symbol: inst.Symbol,
			})
		}
		ingest, err := ws.New(ws.IngestConfig{
			APIKey:      cfg.VenueAPIKey,
			ClientID:    cfg.VenueClientID,
			FeedToken:   sess.FeedToken,
			Venue:       cfg.Venue,
			Instruments: wsInstruments,
		})
		if err != nil {
			log.Printf("[mdengine] ws init failed: %v, retrying in 30s", err)
			wsCancel()
			time.Sleep(30 * time.Second)
			continue
		}
		ingest.OnReconnect = func() {
			prom.WSReconnects.Inc()
		}

		health.SetWSConnected(true)
		log.Printf("[mdengine] WS connected — session close at %s",
			closeTime.In(markethours.ET).Format("15:04:05"))

		// Tap the tick stream: forward everything, and after the close watch
		// the primary instrument until its price stabilizes.
		rawTickCh := make(chan model.Tick, 10000)
		go func() {
			for {
				select {
				case <-wsCtx.Done():
					return
				case tick, ok := <-rawTickCh:
					if !ok {
						return
					}
					health.SetLastTickTime(time.Now())
					prom.TicksTotal.Inc()
					tickRing.Push(tick)
					if tick.Symbol == cfg.PrimarySymbol && detector.Observe(tick.Price, time.Now()) {
						log.Printf("[mdengine] closing price captured: %.2f — disconnecting",
							model.Dollars(detector.ClosingPrice()))
						wsCancel()
					}
				}
			}
		}()

		// Blocks until the closing price is captured, the grace deadline
		// passes, or the parent ctx is cancelled.
		if err := ingest.Start(wsCtx, rawTickCh); err != nil {
			log.Printf("[mdengine] ws session ended: %v", err)
		}
		wsCancel()
		health.SetWSConnected(false)
		prom.MarketState.Set(0)
		prom.SessionTransitions.WithLabelValues("close").Inc()
		log.Println("[mdengine] WS disconnected — market close")

		if ctx.Err() != nil {
			return
		}
		// Loop back to wait for the next market open.
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
