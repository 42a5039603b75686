package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.TickMs != 2000 {
		t.Errorf("engine.tick_ms = %d, want 2000", cfg.Engine.TickMs)
	}
	if cfg.Engine.MaxExecPerTick != 3 {
		t.Errorf("engine.max_exec_per_tick = %d, want 3", cfg.Engine.MaxExecPerTick)
	}
	if cfg.Engine.TickInterval() != 2*time.Second {
		t.Errorf("tick interval = %v, want 2s", cfg.Engine.TickInterval())
	}
	if cfg.Signals.RefreshMs != 15000 {
		t.Errorf("signals.refresh_ms = %d, want 15000", cfg.Signals.RefreshMs)
	}
	if cfg.Sentiment.RefreshMs != 60000 {
		t.Errorf("sentiment.refresh_ms = %d, want 60000", cfg.Sentiment.RefreshMs)
	}
	if cfg.App.Timezone != "Asia/Kolkata" {
		t.Errorf("app.timezone = %s, want Asia/Kolkata", cfg.App.Timezone)
	}
	if !cfg.Risk.Enabled {
		t.Error("risk should be enabled by default")
	}
	if cfg.Upstox.Refresh.Cron != "03:20" {
		t.Errorf("upstox.refresh.cron = %s, want 03:20", cfg.Upstox.Refresh.Cron)
	}
	if cfg.Decision.Deadband != 0.15 {
		t.Errorf("decision.deadband = %v, want 0.15", cfg.Decision.Deadband)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
engine:
  tick_ms: 500
risk:
  enabled: false
  lots_cap: 4
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Engine.TickMs != 500 {
		t.Errorf("engine.tick_ms = %d, want 500", cfg.Engine.TickMs)
	}
	if cfg.Risk.Enabled {
		t.Error("risk.enabled should be false from file")
	}
	if cfg.Risk.LotsCap != 4 {
		t.Errorf("risk.lots_cap = %d, want 4", cfg.Risk.LotsCap)
	}
	// Untouched keys keep defaults.
	if cfg.Engine.MaxExecPerTick != 3 {
		t.Errorf("engine.max_exec_per_tick = %d, want default 3", cfg.Engine.MaxExecPerTick)
	}
}

func TestCheckAPIKeys(t *testing.T) {
	cfg := &Config{}
	cfg.Upstox.APIKey = "upx-key-from-config-value"

	var found bool
	for _, s := range CheckAPIKeys(cfg) {
		if s.Name != "Upstox API Key" {
			continue
		}
		found = true
		if !s.IsSet {
			t.Error("IsSet: want true")
		}
		if s.Source != KeySourceConfig {
			t.Errorf("Source: got %q, want %q", s.Source, KeySourceConfig)
		}
		if s.Masked != "upx...lue" {
			t.Errorf("Masked: got %q, want %q", s.Masked, "upx...lue")
		}
	}
	if !found {
		t.Error("Upstox API Key status not found")
	}

	for _, s := range CheckAPIKeys(&Config{}) {
		if s.IsSet || s.Source != KeySourceNone || s.Masked != "" {
			t.Errorf("empty config: %+v, want unset/none", s)
		}
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("short"); got != "***" {
		t.Errorf("maskKey(short) = %q, want ***", got)
	}
	if got := maskKey("abcdefghijkl"); got != "abc...jkl" {
		t.Errorf("maskKey = %q, want abc...jkl", got)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TRADECORE_UPSTOX_ACCESS_TOKEN", "env-token")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstox.AccessToken != "env-token" {
		t.Errorf("access token = %q, want env-token", cfg.Upstox.AccessToken)
	}
}
