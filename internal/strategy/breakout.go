package strategy

import (
	"fmt"
	"log"
	"math"

	"breakout-systemv1/internal/indicator"
	"breakout-systemv1/internal/model"
)

// BreakoutConfig configures the two-instrument breakout strategy.
//
// Primary is the instrument traded long on upside breakouts; Hedge is the
// inverse instrument entered long to express a short view. Daily bars feed
// the level tracker; decision-TF bars feed the signal source and trigger
// decision evaluation.
type BreakoutConfig struct {
	Primary string
	Hedge   string
	Venue   string

	LevelTF    int // TF (seconds) of bars feeding the extrema tracker
	DecisionTF int // TF of bars feeding the signal source + decisions

	// Fraction of account balance deployed per entry (0 < f <= 1).
	// Zero means the default of 0.95.
	Fraction float64

	Levels indicator.ExtremaConfig
	Signal indicator.Config // any signal-emitting kind (not extrema)
}

const defaultFraction = 0.95

// Breakout trades breakouts of rolling high/low levels, gated by a
// directional signal, on a primary / inverse-hedge instrument pair.
//
// Decision logic runs once per primary decision-TF bar, in fixed priority
// order, at most one action per bar:
//  1. exit primary long when bar.low breaches the exit-low level
//  2. exit hedge long when bar.high breaches the exit-high level
//  3. enter (only with both positions flat): long primary on an upside
//     breakout with a bullish signal, long hedge on a downside breakout
//     with a bearish signal
//
// Exits are evaluated unconditionally — they never wait on signal
// re-confirmation. Entries need level breakout AND signal agreement.
type Breakout struct {
	cfg      BreakoutConfig
	fraction float64

	levels *indicator.Extrema
	signal indicator.SignalSource

	// Last seen hedge close (cents) for hedge sizing; the core only
	// evaluates decisions on primary bars.
	lastHedgeClose int64
}

// NewBreakout creates the breakout strategy. Indicator configuration errors
// and an out-of-range fraction fail fast here.
func NewBreakout(cfg BreakoutConfig) (*Breakout, error) {
	if cfg.Primary == "" || cfg.Hedge == "" {
		return nil, fmt.Errorf("strategy: primary and hedge symbols required")
	}
	if cfg.Primary == cfg.Hedge {
		return nil, fmt.Errorf("strategy: primary and hedge must differ, both %q", cfg.Primary)
	}
	if cfg.LevelTF <= 0 || cfg.DecisionTF <= 0 {
		return nil, fmt.Errorf("strategy: level TF %d and decision TF %d must be positive", cfg.LevelTF, cfg.DecisionTF)
	}
	if cfg.Fraction < 0 || cfg.Fraction > 1 {
		return nil, fmt.Errorf("strategy: fraction %g out of range (0, 1]", cfg.Fraction)
	}
	fraction := cfg.Fraction
	if fraction == 0 {
		fraction = defaultFraction
	}

	levels, err := indicator.NewExtrema(cfg.Levels)
	if err != nil {
		return nil, err
	}
	ind, err := indicator.New(cfg.Signal)
	if err != nil {
		return nil, err
	}
	signal, ok := ind.(indicator.SignalSource)
	if !ok {
		return nil, fmt.Errorf("strategy: %s is not a signal source", ind.Name())
	}

	return &Breakout{
		cfg:      cfg,
		fraction: fraction,
		levels:   levels,
		signal:   signal,
	}, nil
}

func (b *Breakout) Name() string { return "BreakoutV2" }

// LevelTracker exposes the extrema tracker for snapshot/metrics wiring.
func (b *Breakout) LevelTracker() *indicator.Extrema { return b.levels }

// SignalSource exposes the signal indicator for snapshot/metrics wiring.
func (b *Breakout) SignalSource() indicator.SignalSource { return b.signal }

func (b *Breakout) OnBar(bar model.Bar, pf model.PortfolioSnapshot) *Signal {
	if bar.Venue != b.cfg.Venue {
		return nil
	}

	if bar.Symbol == b.cfg.Hedge {
		b.lastHedgeClose = bar.Close
		return nil
	}
	if bar.Symbol != b.cfg.Primary {
		return nil
	}

	if bar.TF == b.cfg.LevelTF {
		b.levels.HandleBar(bar)
		return nil
	}
	if bar.TF != b.cfg.DecisionTF {
		return nil
	}

	b.signal.HandleBar(bar)
	return b.decide(bar, pf)
}

// Warmup routes a historical bar to the strategy's indicators without
// evaluating the decision ladder. Used when replaying history on startup.
func (b *Breakout) Warmup(bar model.Bar) {
	if bar.Venue != b.cfg.Venue {
		return
	}
	switch {
	case bar.Symbol == b.cfg.Hedge:
		b.lastHedgeClose = bar.Close
	case bar.Symbol == b.cfg.Primary && bar.TF == b.cfg.LevelTF:
		b.levels.HandleBar(bar)
	case bar.Symbol == b.cfg.Primary && bar.TF == b.cfg.DecisionTF:
		b.signal.HandleBar(bar)
	}
}

// decide evaluates the priority ladder for one decision bar. Returning nil
// means no action: indicator warm-up, no breakout, or zero computed size.
func (b *Breakout) decide(bar model.Bar, pf model.PortfolioSnapshot) *Signal {
	levels, ok := b.levels.Levels()
	if !ok {
		return nil
	}
	sig, ok := b.signal.Signal()
	if !ok {
		return nil
	}

	// 1. Exit primary long — unconditional on signal direction
	if pf.NetPrimary > 0 && bar.Low < levels.ExitLow {
		return &Signal{
			StrategyName: b.Name(),
			Action:       ActionExit,
			Symbol:       b.cfg.Primary,
			Venue:        b.cfg.Venue,
			Qty:          pf.NetPrimary,
			Reason: fmt.Sprintf("low %s breached exit low %s",
				fmtCents(bar.Low), fmtCents(levels.ExitLow)),
		}
	}

	// 2. Exit hedge long
	if pf.NetHedge > 0 && bar.High > levels.ExitHigh {
		return &Signal{
			StrategyName: b.Name(),
			Action:       ActionExit,
			Symbol:       b.cfg.Hedge,
			Venue:        b.cfg.Venue,
			Qty:          pf.NetHedge,
			Reason: fmt.Sprintf("high %s breached exit high %s",
				fmtCents(bar.High), fmtCents(levels.ExitHigh)),
		}
	}

	// 3. Entries — only when both positions are flat
	if pf.NetPrimary != 0 || pf.NetHedge != 0 {
		return nil
	}

	if sig > 0 && bar.High > levels.EntryHigh {
		qty := sizeOrder(pf.Balance, b.fraction, bar.Close)
		if qty <= 0 {
			log.Printf("[strategy] %s: long breakout suppressed, zero size (balance=%d close=%d)",
				b.Name(), pf.Balance, bar.Close)
			return nil
		}
		return &Signal{
			StrategyName: b.Name(),
			Action:       ActionBuy,
			Symbol:       b.cfg.Primary,
			Venue:        b.cfg.Venue,
			Qty:          qty,
			Reason: fmt.Sprintf("high %s broke entry high %s, signal %.4f",
				fmtCents(bar.High), fmtCents(levels.EntryHigh), sig),
		}
	}

	if sig < 0 && bar.Low < levels.EntryLow {
		if b.lastHedgeClose <= 0 {
			return nil // no hedge price seen yet
		}
		qty := sizeOrder(pf.Balance, b.fraction, b.lastHedgeClose)
		if qty <= 0 {
			log.Printf("[strategy] %s: hedge breakout suppressed, zero size (balance=%d px=%d)",
				b.Name(), pf.Balance, b.lastHedgeClose)
			return nil
		}
		return &Signal{
			StrategyName: b.Name(),
			Action:       ActionBuy,
			Symbol:       b.cfg.Hedge,
			Venue:        b.cfg.Venue,
			Qty:          qty,
			Reason: fmt.Sprintf("low %s broke entry low %s, signal %.4f",
				fmtCents(bar.Low), fmtCents(levels.EntryLow), sig),
		}
	}

	return nil
}

// sizeOrder computes floor(balance * fraction / price), all prices in cents.
func sizeOrder(balance int64, fraction float64, price int64) int64 {
	if price <= 0 || balance <= 0 {
		return 0
	}
	return int64(math.Floor(float64(balance) * fraction / float64(price)))
}

func fmtCents(c int64) string {
	return fmt.Sprintf("%.2f", model.Dollars(c))
}
