package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
app:
  env: prod
server:
  http_addr: ":9090"
  admin_api_key: secret
trading:
  session_duration: 10m
  min_trades_per_session: 3
economy:
  initial_cash: 5000
  goods:
    - { id: good-rice, name: Rice, unit: kg, reference_price: 100 }
  initial_inventory:
    good-rice: 45
roster:
  models:
    - { id: m1, name: Model One, provider: anthropic, api_key_env_var: ANTHROPIC_API_KEY }
  agents:
    - { id: a1, name: Agent One, model_id: m1 }
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML), false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Env != "prod" {
		t.Fatalf("env = %q, want prod", cfg.App.Env)
	}
	if cfg.Server.HTTPAddr != ":9090" || cfg.Server.AdminAPIKey != "secret" {
		t.Fatalf("server config not applied: %+v", cfg.Server)
	}
	if cfg.Trading.SessionDuration != 10*time.Minute {
		t.Fatalf("session duration = %s, want 10m", cfg.Trading.SessionDuration)
	}
	if cfg.Trading.MinTradesPerSession != 3 {
		t.Fatalf("min trades = %d, want 3", cfg.Trading.MinTradesPerSession)
	}

	// Untouched keys keep their defaults.
	if cfg.Trading.RoundInterval != 30*time.Second {
		t.Fatalf("round interval default = %s, want 30s", cfg.Trading.RoundInterval)
	}
	if cfg.Trading.BonusRate != 0.05 {
		t.Fatalf("bonus rate default = %v, want 0.05", cfg.Trading.BonusRate)
	}
	if cfg.Decision.CallSpacing != 12*time.Second {
		t.Fatalf("call spacing default = %s, want 12s", cfg.Decision.CallSpacing)
	}
	if cfg.DB.Driver != "postgres" {
		t.Fatalf("db driver default = %q, want postgres", cfg.DB.Driver)
	}

	if len(cfg.Economy.Goods) != 1 || cfg.Economy.Goods[0].ID != "good-rice" {
		t.Fatalf("goods not parsed: %+v", cfg.Economy.Goods)
	}
	if cfg.Economy.InitialInventory["good-rice"] != 45 {
		t.Fatalf("initial inventory not parsed: %+v", cfg.Economy.InitialInventory)
	}
	if len(cfg.Roster.Agents) != 1 || cfg.Roster.Agents[0].ModelID != "m1" {
		t.Fatalf("roster not parsed: %+v", cfg.Roster.Agents)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
