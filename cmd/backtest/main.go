// cmd/backtest replays historical bars from SQLite through the breakout
// strategy and a paper executor to evaluate performance without live data.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/bars.db --from=0 --signal=emaregime
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"breakout-systemv1/internal/execution"
	"breakout-systemv1/internal/indicator"
	"breakout-systemv1/internal/marketdata/replay"
	"breakout-systemv1/internal/model"
	"breakout-systemv1/internal/portfolio"
	sqlitestore "breakout-systemv1/internal/store/sqlite"
	"breakout-systemv1/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	dbPath := flag.String("db", "data/bars.db", "Path to SQLite database")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime)")
	venue := flag.String("venue", "NYSE", "Venue code")
	primary := flag.String("primary", "VOO", "Primary instrument symbol")
	hedge := flag.String("hedge", "SH", "Inverse-hedge instrument symbol")
	levelTF := flag.Int("level-tf", 86400, "TF (seconds) feeding the breakout levels")
	decisionTF := flag.Int("decision-tf", 3600, "TF (seconds) triggering decisions")
	signalSrc := flag.String("signal", "emaregime", "Signal source: emaregime, momentum, renko")
	emaPeriod := flag.Int("ema-period", 50, "EMA period for the emaregime signal")
	fraction := flag.Float64("fraction", 0.95, "Fraction of balance deployed per entry")
	balance := flag.Int64("balance", 10_000_000, "Starting balance in cents")
	slippageBps := flag.Int64("slippage-bps", 5, "Simulated slippage in basis points")
	verbose := flag.Bool("v", false, "Log every signal and fill")
	flag.Parse()

	// Open SQLite
	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	// Portfolio book + paper executor (fills settle synchronously)
	book := portfolio.NewBook(*balance)
	paper := execution.NewPaperExecutor(4096, *slippageBps, nil)

	fills := 0
	paper.OnFill = func(f execution.Fill) {
		fills++
		book.ApplyFill(portfolio.Fill{
			Symbol:  f.Signal.Symbol,
			Venue:   f.Signal.Venue,
			Side:    sideFor(f.Signal.Action),
			Qty:     f.FillQty,
			Price:   f.FillPrice,
			OrderID: f.OrderID,
		})
		if *verbose {
			log.Printf("[backtest] FILL %s %s qty=%d @ %.2f (%s)",
				f.Signal.Action, f.Signal.Symbol, f.FillQty, model.Dollars(f.FillPrice), f.Signal.Reason)
		}
	}

	// Strategy engine with pre-bar snapshots
	engine := strategy.NewEngine(256, func(bar model.Bar) model.PortfolioSnapshot {
		return book.Snapshot(*venue, *primary, *hedge)
	})
	breakout, err := strategy.NewBreakout(strategy.BreakoutConfig{
		Primary:    *primary,
		Hedge:      *hedge,
		Venue:      *venue,
		LevelTF:    *levelTF,
		DecisionTF: *decisionTF,
		Fraction:   *fraction,
		Levels: indicator.ExtremaConfig{
			EntryHighLookback: 1,
			EntryLowLookback:  1,
			ExitHighLookback:  8,
			ExitLowLookback:   1,
		},
		Signal: signalConfig(*signalSrc, *emaPeriod),
	})
	if err != nil {
		log.Fatalf("[backtest] strategy init failed: %v", err)
	}
	engine.Register(breakout)

	// Setup context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Drain executor results so the channel never backs up.
	go func() {
		for range paper.Results() {
		}
	}()

	// Replay both TFs in timestamp order
	tfs := []int{*levelTF}
	if *decisionTF != *levelTF {
		tfs = append(tfs, *decisionTF)
	}
	replayer := replay.New(reader)
	barCh := make(chan model.Bar, 10000)

	go func() {
		if err := replayer.Run(ctx, tfs, *fromTS, *speed, barCh); err != nil {
			log.Printf("[backtest] replay error: %v", err)
		}
		close(barCh)
	}()

	// Drive the decision loop: fills settle before the NEXT bar's snapshot.
	processed := 0
	signals := 0
	for bar := range barCh {
		if bar.Forming {
			continue
		}
		paper.UpdatePrice(bar)
		for _, sig := range engine.Process(bar) {
			signals++
			if *verbose {
				log.Printf("[backtest] SIGNAL %s %s qty=%d: %s", sig.Action, sig.Symbol, sig.Qty, sig.Reason)
			}
			paper.Execute(sig)
		}
		book.UpdatePrice(bar)
		processed++
	}

	printSummary(book, *balance, processed, signals, fills, tfs)
}

// sideFor maps a strategy action to a book fill side. EXIT closes a long.
func sideFor(a strategy.Action) string {
	if a == strategy.ActionBuy {
		return "BUY"
	}
	return "SELL"
}

// signalConfig builds the signal-source indicator config from flags.
func signalConfig(src string, emaPeriod int) indicator.Config {
	switch strings.ToLower(src) {
	case "momentum":
		return indicator.Config{
			Kind:     indicator.KindMomentum,
			Momentum: indicator.MomentumConfig{ReversionWindow: 20},
		}
	case "renko":
		return indicator.Config{
			Kind: indicator.KindRenko,
			Renko: indicator.RenkoConfig{
				Method:    indicator.MethodATR,
				ATRPeriod: 14,
				Reversal:  2,
				Source:    indicator.SourceHighLow,
			},
		}
	default:
		return indicator.Config{
			Kind:      indicator.KindEMARegime,
			EMARegime: indicator.EMARegimeConfig{Period: emaPeriod, Mode: indicator.ModeRegime},
		}
	}
}

func printSummary(book *portfolio.Book, startBalance int64, processed, signals, fills int, tfs []int) {
	equity := book.AccountBalance()
	open := 0
	for _, p := range book.Positions() {
		if p.Qty != 0 {
			open++
			if p.LastPrice > 0 {
				equity += p.Qty * p.LastPrice
			} else {
				equity += p.Qty * p.AvgPrice
			}
		}
	}
	netPnL := equity - startBalance
	retPct := 0.0
	if startBalance > 0 {
		retPct = float64(netPnL) / float64(startBalance) * 100
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║           BACKTEST COMPLETE              ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Bars processed:   %-21d ║\n", processed)
	fmt.Printf("║  TFs:              %-21s ║\n", tfsString(tfs))
	fmt.Printf("║  Signals:          %-21d ║\n", signals)
	fmt.Printf("║  Fills:            %-21d ║\n", fills)
	fmt.Printf("║  Open positions:   %-21d ║\n", open)
	fmt.Printf("║  Final balance:    $%-20.2f ║\n", model.Dollars(book.AccountBalance()))
	fmt.Printf("║  Final equity:     $%-20.2f ║\n", model.Dollars(equity))
	fmt.Printf("║  Net P&L:          $%-11.2f (%+.2f%%) ║\n", model.Dollars(netPnL), retPct)
	fmt.Println("╚══════════════════════════════════════════╝")
}

func tfsString(tfs []int) string {
	parts := make([]string, len(tfs))
	for i, tf := range tfs {
		parts[i] = strconv.Itoa(tf)
	}
	return strings.Join(parts, ",")
}
