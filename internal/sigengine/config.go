package sigengine

import (
	"log"
	"os"
	"strconv"
	"strings"

	"breakout-systemv1/internal/indicator"
	"breakout-systemv1/internal/strategy"
)

// Config holds all env-parsed configuration for the signal engine service.
type Config struct {
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	JournalPath   string
	ConsumerGroup string
	ConsumerName  string

	Venue         string
	PrimarySymbol string
	HedgeSymbol   string

	EnabledTFs []int
	LevelTF    int // TF feeding the breakout level tracker
	DecisionTF int // TF triggering strategy decisions

	SnapshotIntervalS int
	SnapshotKey       string
	HTTPAddr          string
	MetricsAddr       string
	PELIntervalS      int
	PELMinIdleMs      int64

	// Execution
	Mode           string // "paper" or "live"
	SlippageBps    int64
	InitialBalance int64 // cents, paper mode starting cash

	// Notifications
	WebhookURL   string
	WebhookToken string

	// Venue credentials (live mode only)
	VenueAPIKey     string
	VenueClientID   string
	VenuePassword   string
	VenueTOTPSecret string

	IndicatorConfigs []indicator.TFIndicatorConfig
	Strategy         strategy.BreakoutConfig
}

// LoadConfig reads all environment variables and returns a Config.
func LoadConfig() Config {
	enabledTFs := parseTFs(getEnv("ENABLED_TFS", "3600,86400"))
	levelTF := getEnvInt("LEVEL_TF", 86400)
	decisionTF := getEnvInt("DECISION_TF", 3600)

	levels := indicator.ExtremaConfig{
		EntryHighLookback: getEnvInt("ENTRY_HIGH_LOOKBACK", 1),
		EntryLowLookback:  getEnvInt("ENTRY_LOW_LOOKBACK", 1),
		ExitHighLookback:  getEnvInt("EXIT_HIGH_LOOKBACK", 8),
		ExitLowLookback:   getEnvInt("EXIT_LOW_LOOKBACK", 1),
	}
	signal := parseSignalSource(getEnv("SIGNAL_SOURCE", "emaregime"))

	cfg := Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "sigengine"),
		ConsumerName:  getEnv("CONSUMER_NAME", "worker-1"),

		Venue:         getEnv("VENUE", "NYSE"),
		PrimarySymbol: getEnv("PRIMARY_SYMBOL", "VOO"),
		HedgeSymbol:   getEnv("HEDGE_SYMBOL", "SH"),

		EnabledTFs: enabledTFs,
		LevelTF:    levelTF,
		DecisionTF: decisionTF,

		SnapshotIntervalS: getEnvInt("SNAPSHOT_INTERVAL_SEC", 30),
		SnapshotKey:       getEnv("SNAPSHOT_KEY", "snap:sigengine"),
		HTTPAddr:          getEnv("SIGENGINE_HTTP_ADDR", ":9095"),
		MetricsAddr:       getEnv("SIGENGINE_METRICS_ADDR", ":9091"),
		PELIntervalS:      getEnvInt("PEL_RECLAIM_INTERVAL_SEC", 30),
		PELMinIdleMs:      int64(getEnvInt("PEL_MIN_IDLE_MS", 60000)),

		Mode:           getEnv("EXECUTION_MODE", "paper"),
		SlippageBps:    int64(getEnvInt("SLIPPAGE_BPS", 5)),
		InitialBalance: int64(getEnvInt("INITIAL_BALANCE_CENTS", 10000000)), // $100,000

		WebhookURL:   getEnv("WEBHOOK_URL", ""),
		WebhookToken: getEnv("WEBHOOK_TOKEN", ""),

		VenueAPIKey:     getEnv("VENUE_API_KEY", ""),
		VenueClientID:   getEnv("VENUE_CLIENT_ID", ""),
		VenuePassword:   getEnv("VENUE_PASSWORD", ""),
		VenueTOTPSecret: getEnv("VENUE_TOTP_SECRET", ""),
	}

	fraction := getEnvFloat("ALLOC_FRACTION", 0.95)
	cfg.Strategy = strategy.BreakoutConfig{
		Primary:    cfg.PrimarySymbol,
		Hedge:      cfg.HedgeSymbol,
		Venue:      cfg.Venue,
		LevelTF:    levelTF,
		DecisionTF: decisionTF,
		Fraction:   fraction,
		Levels:     levels,
		Signal:     signal,
	}

	cfg.IndicatorConfigs = BuildIndicatorConfigs(enabledTFs, levelTF, decisionTF, levels, signal)
	return cfg
}

// BuildIndicatorConfigs assembles the observability engine's per-TF configs:
// the level tracker on the level TF, the signal source on the decision TF.
func BuildIndicatorConfigs(tfs []int, levelTF, decisionTF int, levels indicator.ExtremaConfig, signal indicator.Config) []indicator.TFIndicatorConfig {
	configs := make([]indicator.TFIndicatorConfig, 0, len(tfs))
	for _, tf := range tfs {
		var inds []indicator.Config
		if tf == levelTF {
			inds = append(inds, indicator.Config{Kind: indicator.KindExtrema, Extrema: levels})
		}
		if tf == decisionTF {
			inds = append(inds, signal)
		}
		if len(inds) == 0 {
			continue
		}
		configs = append(configs, indicator.TFIndicatorConfig{TF: tf, Indicators: inds})
	}
	return configs
}

// parseSignalSource maps a SIGNAL_SOURCE value to an indicator config with
// env-tunable parameters. Unknown values fall back to the EMA regime.
func parseSignalSource(s string) indicator.Config {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "momentum":
		return indicator.Config{
			Kind: indicator.KindMomentum,
			Momentum: indicator.MomentumConfig{
				ReversionWindow: getEnvInt("MOMENTUM_REVERSION_WINDOW", 20),
			},
		}
	case "renko":
		return indicator.Config{
			Kind: indicator.KindRenko,
			Renko: indicator.RenkoConfig{
				Method:    indicator.MethodATR,
				ATRPeriod: getEnvInt("RENKO_ATR_PERIOD", 14),
				Reversal:  getEnvInt("RENKO_REVERSAL", 2),
				Source:    indicator.SourceHighLow,
			},
		}
	case "emaregime", "":
		fallthrough
	default:
		if s != "emaregime" && s != "" {
			log.Printf("[sigengine] unknown SIGNAL_SOURCE %q, using emaregime", s)
		}
		return indicator.Config{
			Kind: indicator.KindEMARegime,
			EMARegime: indicator.EMARegimeConfig{
				Period: getEnvInt("EMA_PERIOD", 50),
				Mode:   indicator.ModeRegime,
			},
		}
	}
}

func parseTFs(s string) []int {
	parts := strings.Split(s, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
