package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Asset != "SOL" {
		t.Errorf("expected default asset SOL, got %q", cfg.Asset)
	}
	if cfg.BucketWidth != 5*time.Minute {
		t.Errorf("expected default bucket width 5m, got %v", cfg.BucketWidth)
	}
	if cfg.StructureWindow != 42 || cfg.SmoothingWindow != 24 {
		t.Errorf("unexpected default windows: %d/%d", cfg.StructureWindow, cfg.SmoothingWindow)
	}
	if cfg.StopLossPct != 0.15 || cfg.TakeProfitPct != 0.30 {
		t.Errorf("unexpected default SL/TP: %v/%v", cfg.StopLossPct, cfg.TakeProfitPct)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRADE_ASSET", "ETH")
	t.Setenv("BUCKET_WIDTH", "1m")
	t.Setenv("ENTRY_OFFSET_PCT", "0.002")
	t.Setenv("TRAILING_STRATEGY", "structure")

	cfg := Load()
	if cfg.Asset != "ETH" {
		t.Errorf("expected ETH, got %q", cfg.Asset)
	}
	if cfg.BucketWidth != time.Minute {
		t.Errorf("expected 1m bucket, got %v", cfg.BucketWidth)
	}
	if cfg.EntryOffsetPct != 0.002 {
		t.Errorf("expected entry offset 0.002, got %v", cfg.EntryOffsetPct)
	}
	if cfg.TrailingStrategy != "structure" {
		t.Errorf("expected structure trailing, got %q", cfg.TrailingStrategy)
	}
}

func TestConfig_RiskMapping(t *testing.T) {
	t.Setenv("TRAILING_STRATEGY", "percent")
	cfg := Load()
	rc := cfg.Risk()
	if rc.StopLossPct != cfg.StopLossPct || rc.TakeProfitPct != cfg.TakeProfitPct {
		t.Error("risk config does not mirror loaded thresholds")
	}
}

func TestConfig_IndicatorMapping(t *testing.T) {
	cfg := Load()
	ic := cfg.Indicator()
	if ic.StructureWindow != cfg.StructureWindow || ic.EntryOffsetPct != cfg.EntryOffsetPct {
		t.Error("indicator config does not mirror loaded windows")
	}
	if ic.WarmupLen() != cfg.StructureWindow+cfg.SmoothingWindow {
		t.Errorf("unexpected warm-up length %d", ic.WarmupLen())
	}
}
