package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"spotarb/internal/domain/model"
)

type ScanConfig struct {
	MinProfitPct          float64 `toml:"min_profit_pct"`
	MinVolume1hUSD        float64 `toml:"min_volume_1h_usd"`
	TopNPerExchange       int     `toml:"top_n_per_exchange"`
	TopKResults           int     `toml:"top_k_results"`
	IntervalSeconds       int     `toml:"interval_seconds"`
	QuoteCurrency         string  `toml:"quote_currency"`
	VolumeMode            string  `toml:"volume_mode"` // "min" (default) or "avg"
	Concurrency           int     `toml:"concurrency"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	SignalCacheTTLSeconds int     `toml:"signal_cache_ttl_seconds"` // 0 = drop-if-absent baseline
}

type TradeConfig struct {
	Enabled       bool      `toml:"enabled"`
	AmountPresets []float64 `toml:"amount_presets"` // quote-currency sizes offered to the requester
}

type ExchangeConfig struct {
	Enabled   bool    `toml:"enabled"`
	TakerFee  float64 `toml:"taker_fee"` // fraction, e.g. 0.001
	APIKey    string  `toml:"api_key"`   // falls back to <NAME>_API_KEY env
	APISecret string  `toml:"api_secret"`
	HTTPURL   string  `toml:"http_url"`
	WsURL     string  `toml:"ws_url"` // optional book-ticker stream endpoint
}

// Configured reports whether credentials are present. An enabled exchange
// without credentials is registered as unconfigured, not treated as an error.
func (e ExchangeConfig) Configured() bool {
	return e.APIKey != "" && e.APISecret != ""
}

type SQLiteConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	Prefix     string `toml:"prefix"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

type PostgresConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

type Config struct {
	Scan  ScanConfig  `toml:"scan"`
	Trade TradeConfig `toml:"trade"`

	Exchange struct {
		Binance ExchangeConfig `toml:"binance"`
		Bybit   ExchangeConfig `toml:"bybit"`
		Mexc    ExchangeConfig `toml:"mexc"`
	} `toml:"exchange"`

	Storage struct {
		SQLite   SQLiteConfig   `toml:"sqlite"`
		Redis    RedisConfig    `toml:"redis"`
		Postgres PostgresConfig `toml:"postgres"`
	} `toml:"storage"`
}

// NamedExchange pairs an exchange config with its registry name. Order is the
// declaration order above and determines downstream tie-breaks.
type NamedExchange struct {
	Name string
	Cfg  ExchangeConfig
}

func Load(path string) (*Config, error) {
	// .env is optional; real deployments export the keys directly
	_ = godotenv.Load()

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	resolveCredentials(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnabledExchanges returns the enabled exchanges in configuration order.
func (c *Config) EnabledExchanges() []NamedExchange {
	all := []NamedExchange{
		{Name: "binance", Cfg: c.Exchange.Binance},
		{Name: "bybit", Cfg: c.Exchange.Bybit},
		{Name: "mexc", Cfg: c.Exchange.Mexc},
	}
	out := make([]NamedExchange, 0, len(all))
	for _, e := range all {
		if e.Cfg.Enabled {
			out = append(out, e)
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.Scan.MinProfitPct <= 0 {
		cfg.Scan.MinProfitPct = 1.2
	}
	if cfg.Scan.MinVolume1hUSD <= 0 {
		cfg.Scan.MinVolume1hUSD = 500_000
	}
	if cfg.Scan.TopNPerExchange <= 0 {
		cfg.Scan.TopNPerExchange = 100
	}
	if cfg.Scan.TopKResults <= 0 {
		cfg.Scan.TopKResults = 10
	}
	if cfg.Scan.IntervalSeconds <= 0 {
		cfg.Scan.IntervalSeconds = 120
	}
	if strings.TrimSpace(cfg.Scan.QuoteCurrency) == "" {
		cfg.Scan.QuoteCurrency = "USDT"
	}
	if cfg.Scan.VolumeMode == "" {
		cfg.Scan.VolumeMode = "min"
	}
	if cfg.Scan.Concurrency <= 0 {
		cfg.Scan.Concurrency = 16
	}
	if cfg.Scan.RequestTimeoutSeconds <= 0 {
		cfg.Scan.RequestTimeoutSeconds = 15
	}
	if len(cfg.Trade.AmountPresets) == 0 {
		cfg.Trade.AmountPresets = []float64{25, 50, 100}
	}

	applyExchangeDefaults(&cfg.Exchange.Binance, "https://api.binance.com")
	applyExchangeDefaults(&cfg.Exchange.Bybit, "https://api.bybit.com")
	applyExchangeDefaults(&cfg.Exchange.Mexc, "https://api.mexc.com")

	if cfg.Storage.SQLite.Enabled && strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		cfg.Storage.SQLite.Path = "data/spotarb.db"
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Prefix) == "" {
		cfg.Storage.Redis.Prefix = "spotarb"
	}
}

func applyExchangeDefaults(e *ExchangeConfig, httpURL string) {
	if e.TakerFee <= 0 {
		e.TakerFee = 0.001
	}
	if strings.TrimSpace(e.HTTPURL) == "" {
		e.HTTPURL = httpURL
	}
}

// resolveCredentials fills keys missing from the TOML from the environment
// (BINANCE_API_KEY, BINANCE_API_SECRET, ...).
func resolveCredentials(cfg *Config) {
	fill := func(name string, e *ExchangeConfig) {
		prefix := strings.ToUpper(name)
		if e.APIKey == "" {
			e.APIKey = os.Getenv(prefix + "_API_KEY")
		}
		if e.APISecret == "" {
			e.APISecret = os.Getenv(prefix + "_API_SECRET")
		}
	}
	fill("binance", &cfg.Exchange.Binance)
	fill("bybit", &cfg.Exchange.Bybit)
	fill("mexc", &cfg.Exchange.Mexc)
}

func validate(cfg *Config) error {
	if len(cfg.EnabledExchanges()) == 0 {
		return fmt.Errorf("%w: no exchanges enabled", model.ErrConfiguration)
	}
	switch cfg.Scan.VolumeMode {
	case "min", "avg":
	default:
		return fmt.Errorf("%w: scan.volume_mode must be min or avg, got %q", model.ErrConfiguration, cfg.Scan.VolumeMode)
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return fmt.Errorf("%w: storage.redis.addr is empty but redis enabled", model.ErrConfiguration)
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return fmt.Errorf("%w: storage.postgres.dsn is empty but postgres enabled", model.ErrConfiguration)
	}
	return nil
}
