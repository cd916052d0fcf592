// Package sigengine is the signal engine service: it consumes finalized bars
// from Redis streams, runs the indicator engine for observability, runs the
// breakout strategy for decisions, and routes resulting orders to a paper or
// live executor. State is checkpointed to Redis and SQLite so restarts
// resume without recomputing history from scratch.
package sigengine

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"breakout-systemv1/internal/execution"
	"breakout-systemv1/internal/indicator"
	"breakout-systemv1/internal/metrics"
	"breakout-systemv1/internal/model"
	"breakout-systemv1/internal/notification"
	"breakout-systemv1/internal/portfolio"
	redisstore "breakout-systemv1/internal/store/redis"
	sqlitestore "breakout-systemv1/internal/store/sqlite"
	"breakout-systemv1/internal/strategy"
	"breakout-systemv1/pkg/venueconnect"
)

// Service is the top-level orchestrator for the signal engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg Config

	indEngine   *indicator.Engine
	stratEngine *strategy.Engine
	book        *portfolio.Book
	risk        *portfolio.RiskManager
	journal     *execution.Journal
	notifier    notification.Notifier

	paper *execution.PaperExecutor // paper mode
	live  *execution.LiveExecutor  // live mode
	venue *venueconnect.Client     // live mode only

	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	buffered    *redisstore.BufferedWriter
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer
	prom        *metrics.Metrics
	health      *metrics.HealthStatus

	streams []string
	barCh   chan model.Bar
	execCh  chan strategy.Signal // live mode order queue
}

// New creates a new Service from the given Config. It connects to Redis and
// SQLite, opens the trade journal, and builds the strategy and execution
// stack for the configured mode.
func New(cfg Config) (*Service, error) {
	svc := &Service{
		cfg:    cfg,
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(),
		barCh:  make(chan model.Bar, 5000),
	}

	// ---- Connect to Redis ----
	var err error
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
		SnapshotKey:   cfg.SnapshotKey,
	})
	if err != nil {
		return nil, err
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}

	// ---- Open SQLite ----
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[sigengine] WARNING: sqlite reader init failed: %v (continuing without SQLite backfill)", err)
	}

	os.MkdirAll("data", 0o755)
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[sigengine] WARNING: sqlite writer init failed: %v", err)
	}

	svc.journal, err = execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Printf("[sigengine] WARNING: trade journal init failed: %v (fills will not be journaled)", err)
	}

	// ---- Notifications ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookToken))
	}
	svc.notifier = notification.NewMulti(backends...)

	// ---- Portfolio + strategy ----
	svc.book = portfolio.NewBook(cfg.InitialBalance)
	svc.risk = portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), svc.book, cfg.InitialBalance)

	svc.stratEngine = strategy.NewEngine(256, func(bar model.Bar) model.PortfolioSnapshot {
		return svc.book.Snapshot(cfg.Venue, cfg.PrimarySymbol, cfg.HedgeSymbol)
	})
	breakout, err := strategy.NewBreakout(cfg.Strategy)
	if err != nil {
		svc.close()
		return nil, err
	}
	svc.stratEngine.Register(breakout)

	// ---- Execution ----
	if err := svc.buildExecutor(); err != nil {
		svc.close()
		return nil, err
	}

	return svc, nil
}

// buildExecutor wires the paper or live execution path.
func (svc *Service) buildExecutor() error {
	cfg := svc.cfg
	switch cfg.Mode {
	case "live":
		svc.venue = venueconnect.NewClient(venueconnect.Config{APIKey: cfg.VenueAPIKey})
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := svc.venue.LoginWithTOTPSecret(ctx, cfg.VenueClientID, cfg.VenuePassword, cfg.VenueTOTPSecret); err != nil {
			return fmt.Errorf("sigengine: venue login: %w", err)
		}
		log.Printf("[sigengine] venue session established for client %s", cfg.VenueClientID)

		svc.live = execution.NewLiveExecutor(execution.NewVenueSubmitter(svc.venue), svc.journal, 256)
		svc.live.OnPlaced = func(sig strategy.Signal, orderID string) {
			svc.prom.OrdersSubmitted.WithLabelValues(sig.Venue, string(sig.Action)).Inc()
		}
		svc.live.OnError = func(sig strategy.Signal, err error) {
			svc.prom.OrderErrors.Inc()
			svc.notify(notification.FaultAlert("executor", err))
		}
		svc.execCh = make(chan strategy.Signal, 64)
	case "paper":
		svc.paper = execution.NewPaperExecutor(256, cfg.SlippageBps, svc.journal)
		svc.paper.OnFill = func(f execution.Fill) {
			svc.book.ApplyFill(portfolio.Fill{
				Symbol:  f.Signal.Symbol,
				Venue:   f.Signal.Venue,
				Side:    string(sideOf(f.Signal.Action)),
				Qty:     f.FillQty,
				Price:   f.FillPrice,
				OrderID: f.OrderID,
			})
			svc.prom.OrdersSubmitted.WithLabelValues(f.Signal.Venue, string(sideOf(f.Signal.Action))).Inc()
		}
		svc.restoreBookFromJournal()
	default:
		return fmt.Errorf("sigengine: unknown execution mode %q", cfg.Mode)
	}
	return nil
}

// sideOf maps a strategy action to an order side. EXIT closes a long, so it
// sells.
func sideOf(a strategy.Action) strategy.Action {
	if a == strategy.ActionBuy {
		return strategy.ActionBuy
	}
	return strategy.ActionSell
}

// restoreBookFromJournal replays journaled paper fills into the book so a
// restarted paper session keeps its positions and balance.
func (svc *Service) restoreBookFromJournal() {
	if svc.journal == nil {
		return
	}
	trades, err := svc.journal.GetTrades(10000)
	if err != nil {
		log.Printf("[sigengine] journal replay error: %v", err)
		return
	}
	// GetTrades returns newest first; apply oldest first.
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		side := "SELL"
		if t.Action == string(strategy.ActionBuy) {
			side = "BUY"
		}
		svc.book.ApplyFill(portfolio.Fill{
			Symbol:  t.Symbol,
			Venue:   t.Venue,
			Side:    side,
			Qty:     t.Qty,
			Price:   t.Price,
			OrderID: t.OrderID,
		})
	}
	if len(trades) > 0 {
		log.Printf("[sigengine] restored paper book from %d journaled fills (balance %.2f)",
			len(trades), model.Dollars(svc.book.AccountBalance()))
	}
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Println("[sigengine] starting signal engine service...")

	// ---- Buffered intent writes behind a circuit breaker ----
	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		log.Printf("[sigengine] redis circuit breaker: %v -> %v", from, to)
	}
	svc.buffered = redisstore.NewBufferedWriter(ctx, svc.redisWriter, cb, 10000)
	svc.buffered.OnBuffer = func() {
		svc.prom.RedisBufferedWrites.Inc()
	}

	// ---- Restore indicator engine from snapshot ----
	if err := svc.restoreEngine(ctx); err != nil {
		return err
	}

	// ---- Build streams ----
	svc.streams = svc.buildStreams()
	log.Printf("[sigengine] consuming from %d streams: %v", len(svc.streams), svc.streams)

	// ---- Warm the strategy from SQLite history ----
	svc.warmStrategy()

	// ---- Replay delta from snapshot ----
	svc.replayDelta(ctx)

	// ---- Ensure consumer groups ----
	if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
		log.Printf("[sigengine] WARNING: consumer group setup: %v", err)
	}

	// ---- Recover pending messages ----
	if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.barCh); err != nil {
		log.Printf("[sigengine] pending recovery error: %v", err)
	}

	// ---- Start subsystems ----
	svc.startPELReclaimer(ctx)
	go svc.processLoop(ctx)
	go svc.drainResults(ctx)
	svc.startConsumer(ctx)
	go svc.snapshotLoop(ctx)
	svc.startHTTP(ctx)
	svc.startConfigSubscriber(ctx)
	svc.startMetrics(ctx)
	if svc.venue != nil {
		go svc.live.Run(ctx, svc.execCh)
		go svc.portfolioSyncLoop(ctx)
	}

	// ---- Startup banner ----
	log.Println("[sigengine] ╔════════════════════════════════════════════════════════╗")
	log.Println("[sigengine] ║  Signal Engine Active                                  ║")
	log.Println("[sigengine] ║                                                        ║")
	log.Println("[sigengine] ║  [Redis Streams] → [Indicators] → [Strategy] → [Exec]  ║")
	log.Printf("[sigengine] ║  Mode: %-6s  Snapshot every %ds                      ║", cfg.Mode, cfg.SnapshotIntervalS)
	log.Printf("[sigengine] ║  %s / %s @ %s   TFs: %v            ║", cfg.PrimarySymbol, cfg.HedgeSymbol, cfg.Venue, cfg.EnabledTFs)
	log.Println("[sigengine] ╚════════════════════════════════════════════════════════╝")
	log.Println("[sigengine] all systems running. Press Ctrl+C to stop.")

	<-ctx.Done()

	svc.shutdown()
	return nil
}

// shutdown saves the final snapshot and closes connections.
func (svc *Service) shutdown() {
	log.Println("[sigengine] shutdown signal received, saving final snapshot...")

	snap, err := indicator.SnapshotEngine(svc.indEngine, svc.lastStreamID())
	if err == nil {
		if data, merr := snap.MarshalJSON(); merr == nil {
			if svc.redisReader != nil {
				svc.redisReader.SaveSnapshotJSON(data)
			}
			if svc.sqlWriter != nil {
				svc.sqlWriter.SaveSnapshotJSON(data)
			}
			log.Println("[sigengine] final snapshot saved")
		}
	}

	svc.close()
	log.Println("[sigengine] shutdown complete.")
}

func (svc *Service) close() {
	if svc.journal != nil {
		svc.journal.Close()
	}
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	if svc.redisWriter != nil {
		svc.redisWriter.Close()
	}
	if svc.redisReader != nil {
		svc.redisReader.Close()
	}
}

// restoreEngine restores the indicator engine following the priority chain:
// Redis snapshot, then SQLite snapshot, then cold start; cold indicators are
// warmed by replaying SQLite bar history.
func (svc *Service) restoreEngine(ctx context.Context) error {
	restorer := indicator.NewRestorer(svc.cfg.IndicatorConfigs)

	snap := svc.readSnapshot()
	var err error
	svc.indEngine, err = restorer.RestoreFromSnap(snap)
	if err != nil {
		return err
	}

	if svc.sqlReader != nil {
		backfilled := restorer.BackfillFromHistory(svc.indEngine, svc.sqlReader, func(results []model.IndicatorResult) {
			svc.redisWriter.WriteIndicatorBatch(ctx, results)
		})
		if backfilled > 0 {
			log.Printf("[sigengine] warmed indicators with %d historical bars (results written to Redis)", backfilled)
		}
	}
	return nil
}

// readSnapshot loads the latest engine snapshot, Redis first then SQLite.
// Returns nil when neither store has one.
func (svc *Service) readSnapshot() *indicator.EngineSnapshot {
	decode := func(data []byte, src string) *indicator.EngineSnapshot {
		if len(data) == 0 {
			return nil
		}
		var snap indicator.EngineSnapshot
		if err := snap.UnmarshalJSON(data); err != nil {
			log.Printf("[sigengine] %s snapshot decode error: %v", src, err)
			return nil
		}
		return &snap
	}

	data, err := svc.redisReader.ReadLatestSnapshotJSON()
	if err != nil {
		log.Printf("[sigengine] redis snapshot read error: %v", err)
	}
	if snap := decode(data, "redis"); snap != nil {
		return snap
	}

	if svc.sqlReader != nil {
		data, err = svc.sqlReader.ReadLatestSnapshotJSON()
		if err != nil {
			log.Printf("[sigengine] sqlite snapshot read error: %v", err)
		}
		if snap := decode(data, "sqlite"); snap != nil {
			return snap
		}
	}
	return nil
}

// buildStreams constructs the bar stream names for the configured
// instruments across all enabled TFs.
func (svc *Service) buildStreams() []string {
	symbols := []string{svc.cfg.PrimarySymbol, svc.cfg.HedgeSymbol}
	var streams []string
	for _, tf := range svc.cfg.EnabledTFs {
		for _, sym := range symbols {
			streams = append(streams, "bar:"+model.Itoa(tf)+"s:"+svc.cfg.Venue+":"+sym)
		}
	}
	return streams
}

// warmStrategy replays SQLite history through the strategy's indicators.
// The strategy holds its own level tracker and signal source, so it warms
// from bar history rather than from the indicator engine snapshot.
func (svc *Service) warmStrategy() {
	if svc.sqlReader == nil {
		return
	}
	count := 0
	for _, tf := range []int{svc.cfg.LevelTF, svc.cfg.DecisionTF} {
		bars, err := svc.sqlReader.ReadAllBars(tf, 0)
		if err != nil {
			log.Printf("[sigengine] strategy warmup read error (tf=%d): %v", tf, err)
			continue
		}
		for _, bar := range bars {
			svc.stratEngine.Warmup(bar)
			count++
		}
	}
	if count > 0 {
		log.Printf("[sigengine] strategy warmed with %d historical bars", count)
	}
}

// replayDelta replays bars written since the snapshot so indicator state
// catches up before live consumption starts.
func (svc *Service) replayDelta(ctx context.Context) {
	snap := svc.readSnapshot()
	if snap == nil || snap.StreamID == "" {
		return
	}

	log.Printf("[sigengine] replaying delta from stream ID: %s", snap.StreamID)
	replayCh := make(chan model.Bar, 5000)
	go func() {
		for _, stream := range svc.streams {
			if _, err := svc.redisReader.ReplayFromID(ctx, stream, snap.StreamID, replayCh); err != nil {
				log.Printf("[sigengine] replay error on %s: %v", stream, err)
			}
		}
		close(replayCh)
	}()

	deltaCount := 0
	for bar := range replayCh {
		if bar.Forming {
			continue
		}
		if results := svc.indEngine.Process(bar); len(results) > 0 {
			svc.redisWriter.WriteIndicatorBatch(ctx, results)
		}
		svc.stratEngine.Warmup(bar)
		deltaCount++
	}
	log.Printf("[sigengine] replayed %d delta bars", deltaCount)
}

// portfolioSyncLoop periodically reconciles the in-memory book against the
// venue's account state. Live fills settle here.
func (svc *Service) portfolioSyncLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			vpos, err := svc.venue.Positions(sctx)
			if err != nil {
				cancel()
				log.Printf("[sigengine] venue position sync error: %v", err)
				continue
			}
			funds, err := svc.venue.AvailableFunds(sctx)
			cancel()
			if err != nil {
				log.Printf("[sigengine] venue funds sync error: %v", err)
				continue
			}

			positions := make([]model.Position, 0, len(vpos))
			for _, p := range vpos {
				positions = append(positions, model.Position{
					Symbol:   p.Symbol,
					Venue:    p.Venue,
					Qty:      p.NetQty,
					AvgPrice: p.AvgPrice,
				})
			}
			svc.book.SyncFromVenue(positions, funds.AvailableCash)
		}
	}
}

// startMetrics exposes Prometheus metrics and the liveness endpoint.
func (svc *Service) startMetrics(ctx context.Context) {
	srv := metrics.NewServer(svc.cfg.MetricsAddr, svc.health)
	srv.Start()
	// No websocket in this service; mark the slot healthy so /healthz
	// reflects only Redis, SQLite and strategy state.
	svc.health.SetWSConnected(true)
	svc.health.SetStrategyOK(true)
	svc.health.SetEnabledTFs(svc.cfg.EnabledTFs)
	var sqlDB *sql.DB
	if svc.sqlWriter != nil {
		sqlDB = svc.sqlWriter.DB()
	}
	svc.health.StartLivenessChecker(ctx, svc.redisReader.Client(), sqlDB, 15*time.Second)
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(stopCtx)
	}()
}

func (svc *Service) notify(alert notification.Alert) {
	nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.notifier.Send(nctx, alert); err != nil {
		log.Printf("[sigengine] notification error: %v", err)
	}
}
