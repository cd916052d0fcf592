package sigengine

import (
	"testing"

	"breakout-systemv1/internal/indicator"
)

func TestBuildIndicatorConfigs(t *testing.T) {
	levels := indicator.ExtremaConfig{
		EntryHighLookback: 1,
		EntryLowLookback:  1,
		ExitHighLookback:  8,
		ExitLowLookback:   1,
	}
	signal := indicator.Config{
		Kind:      indicator.KindEMARegime,
		EMARegime: indicator.EMARegimeConfig{Period: 50, Mode: indicator.ModeRegime},
	}

	configs := BuildIndicatorConfigs([]int{3600, 86400}, 86400, 3600, levels, signal)

	if len(configs) != 2 {
		t.Fatalf("expected 2 TF configs, got %d", len(configs))
	}
	for _, cfg := range configs {
		switch cfg.TF {
		case 3600:
			if len(cfg.Indicators) != 1 || cfg.Indicators[0].Kind != indicator.KindEMARegime {
				t.Errorf("decision TF should carry the signal source, got %+v", cfg.Indicators)
			}
		case 86400:
			if len(cfg.Indicators) != 1 || cfg.Indicators[0].Kind != indicator.KindExtrema {
				t.Errorf("level TF should carry the extrema tracker, got %+v", cfg.Indicators)
			}
		default:
			t.Errorf("unexpected TF %d", cfg.TF)
		}
	}

	if err := indicator.ValidateConfigs(configs); err != nil {
		t.Fatalf("built configs should validate: %v", err)
	}
}

func TestBuildIndicatorConfigs_SharedTF(t *testing.T) {
	levels := indicator.ExtremaConfig{EntryHighLookback: 1, EntryLowLookback: 1, ExitHighLookback: 8, ExitLowLookback: 1}
	signal := indicator.Config{
		Kind:      indicator.KindEMARegime,
		EMARegime: indicator.EMARegimeConfig{Period: 50, Mode: indicator.ModeRegime},
	}

	// Level and decision on the same TF: one config entry with both.
	configs := BuildIndicatorConfigs([]int{3600}, 3600, 3600, levels, signal)
	if len(configs) != 1 {
		t.Fatalf("expected 1 TF config, got %d", len(configs))
	}
	if len(configs[0].Indicators) != 2 {
		t.Fatalf("expected extrema + signal on shared TF, got %d indicators", len(configs[0].Indicators))
	}
}

func TestParseSignalSource(t *testing.T) {
	if got := parseSignalSource("momentum"); got.Kind != indicator.KindMomentum {
		t.Errorf("momentum: got kind %v", got.Kind)
	}
	if got := parseSignalSource("renko"); got.Kind != indicator.KindRenko {
		t.Errorf("renko: got kind %v", got.Kind)
	}
	if got := parseSignalSource("emaregime"); got.Kind != indicator.KindEMARegime {
		t.Errorf("emaregime: got kind %v", got.Kind)
	}
	// Unknown values fall back to the EMA regime.
	if got := parseSignalSource("bogus"); got.Kind != indicator.KindEMARegime {
		t.Errorf("fallback: got kind %v", got.Kind)
	}
}

func TestParseTFs(t *testing.T) {
	got := parseTFs("3600, 86400,,abc,-5")
	if len(got) != 2 || got[0] != 3600 || got[1] != 86400 {
		t.Errorf("parseTFs: got %v", got)
	}
}
