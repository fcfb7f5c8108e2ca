package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"spotarb/internal/domain/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[exchange.binance]
enabled = true
api_key = "k"
api_secret = "s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Scan.MinProfitPct != 1.2 {
		t.Errorf("min_profit_pct default: got %v", cfg.Scan.MinProfitPct)
	}
	if cfg.Scan.QuoteCurrency != "USDT" {
		t.Errorf("quote_currency default: got %q", cfg.Scan.QuoteCurrency)
	}
	if cfg.Scan.VolumeMode != "min" {
		t.Errorf("volume_mode default: got %q", cfg.Scan.VolumeMode)
	}
	if cfg.Exchange.Binance.TakerFee != 0.001 {
		t.Errorf("taker_fee default: got %v", cfg.Exchange.Binance.TakerFee)
	}
	if cfg.Exchange.Binance.HTTPURL == "" {
		t.Error("http_url default missing")
	}
	if len(cfg.Trade.AmountPresets) != 3 {
		t.Errorf("amount_presets default: got %v", cfg.Trade.AmountPresets)
	}
}

func TestLoadResolvesCredentialsFromEnv(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "env-key")
	t.Setenv("BYBIT_API_SECRET", "env-secret")

	path := writeConfig(t, `
[exchange.bybit]
enabled = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Exchange.Bybit.APIKey != "env-key" || cfg.Exchange.Bybit.APISecret != "env-secret" {
		t.Errorf("env credentials not resolved: %+v", cfg.Exchange.Bybit)
	}
	if !cfg.Exchange.Bybit.Configured() {
		t.Error("exchange with env credentials must report configured")
	}
}

func TestEnabledExchangesKeepConfigOrder(t *testing.T) {
	path := writeConfig(t, `
[exchange.binance]
enabled = true
[exchange.mexc]
enabled = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got := cfg.EnabledExchanges()
	if len(got) != 2 || got[0].Name != "binance" || got[1].Name != "mexc" {
		t.Fatalf("order mismatch: %v", got)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"no exchanges": ``,
		"bad volume mode": `
[scan]
volume_mode = "median"
[exchange.binance]
enabled = true
`,
		"redis without addr": `
[exchange.binance]
enabled = true
[storage.redis]
enabled = true
`,
		"postgres without dsn": `
[exchange.binance]
enabled = true
[storage.postgres]
enabled = true
`,
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		if err == nil {
			t.Errorf("%s: expected validation error", name)
			continue
		}
		if !errors.Is(err, model.ErrConfiguration) {
			t.Errorf("%s: want ErrConfiguration, got %v", name, err)
		}
	}
}
