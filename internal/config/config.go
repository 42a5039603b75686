// Package config handles configuration loading for the trading engine.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete engine configuration.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"    yaml:"engine"`
	Signals   SignalsConfig   `mapstructure:"signals"   yaml:"signals"`
	Candles1m Candles1mConfig `mapstructure:"candles1m" yaml:"candles1m"`
	Sentiment SentimentConfig `mapstructure:"sentiment" yaml:"sentiment"`
	Social    SocialConfig    `mapstructure:"social"    yaml:"social"`
	Risk      RiskConfig      `mapstructure:"risk"      yaml:"risk"`
	Upstox    UpstoxConfig    `mapstructure:"upstox"    yaml:"upstox"`
	Chain     ChainConfig     `mapstructure:"chain"     yaml:"chain"`
	Decision  DecisionConfig  `mapstructure:"decision"  yaml:"decision"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Store     StoreConfig     `mapstructure:"store"     yaml:"store"`
	App       AppConfig       `mapstructure:"app"       yaml:"app"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// EngineConfig drives the scheduler loop.
type EngineConfig struct {
	TickMs         int    `mapstructure:"tick_ms"           yaml:"tick_ms"`
	MaxExecPerTick int    `mapstructure:"max_exec_per_tick" yaml:"max_exec_per_tick"`
	ScanLimit      int    `mapstructure:"scan_limit"        yaml:"scan_limit"`
	InstrumentKey  string `mapstructure:"instrument_key"    yaml:"instrument_key"`
}

// TickInterval returns the engine cadence.
func (e EngineConfig) TickInterval() time.Duration {
	return time.Duration(e.TickMs) * time.Millisecond
}

// SignalsConfig drives the signals broadcast worker.
type SignalsConfig struct {
	RefreshMs          int     `mapstructure:"refresh_ms"            yaml:"refresh_ms"`
	VolSpikeAtrJumpPct float64 `mapstructure:"vol_spike_atr_jump_pct" yaml:"vol_spike_atr_jump_pct"`
}

// Interval returns the broadcast cadence.
func (s SignalsConfig) Interval() time.Duration {
	return time.Duration(s.RefreshMs) * time.Millisecond
}

// Candles1mConfig drives the one-minute candle ingestion worker.
type Candles1mConfig struct {
	RefreshMs int `mapstructure:"refresh_ms" yaml:"refresh_ms"`
}

// Interval returns the ingestion cadence.
func (c Candles1mConfig) Interval() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

// SentimentConfig drives the sentiment refresh worker.
type SentimentConfig struct {
	RefreshMs       int `mapstructure:"refresh_ms"       yaml:"refresh_ms"`
	WindowMinutes   int `mapstructure:"window_minutes"   yaml:"window_minutes"`
	HalfLifeMinutes int `mapstructure:"half_life_minutes" yaml:"half_life_minutes"`
}

// Interval returns the refresh cadence.
func (s SentimentConfig) Interval() time.Duration {
	return time.Duration(s.RefreshMs) * time.Millisecond
}

// SocialConfig holds the social sentiment provider settings.
type SocialConfig struct {
	APIEnabled bool     `mapstructure:"api_enabled" yaml:"api_enabled"`
	APIKey     string   `mapstructure:"api_key"     yaml:"api_key"`
	Keywords   []string `mapstructure:"keywords"    yaml:"keywords"`
}

// RiskConfig holds the risk engine limits.
type RiskConfig struct {
	Enabled         bool    `mapstructure:"enabled"            yaml:"enabled"`
	MaxDailyLoss    float64 `mapstructure:"max_daily_loss"     yaml:"max_daily_loss"`
	LotsCap         int     `mapstructure:"lots_cap"           yaml:"lots_cap"`
	OrdersPerMinCap int     `mapstructure:"orders_per_min_cap" yaml:"orders_per_min_cap"`
	PerOrderRiskPct float64 `mapstructure:"per_order_risk_pct" yaml:"per_order_risk_pct"`
	LotSize         int     `mapstructure:"lot_size"           yaml:"lot_size"`
	MaxSpreadPct    float64 `mapstructure:"max_spread_pct"     yaml:"max_spread_pct"`
	// KillSwitchOpenNew starts the engine with new-open intents blocked;
	// exits still pass the gate.
	KillSwitchOpenNew bool `mapstructure:"kill_switch_open_new" yaml:"kill_switch_open_new"`
}

// UpstoxConfig holds broker gateway settings.
type UpstoxConfig struct {
	BaseURL     string        `mapstructure:"base_url"   yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key"    yaml:"api_key"`
	APISecret   string        `mapstructure:"api_secret" yaml:"api_secret"`
	AccessToken string        `mapstructure:"access_token" yaml:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"    yaml:"timeout"`
	Refresh     RefreshConfig `mapstructure:"refresh"    yaml:"refresh"`
}

// RefreshConfig drives the token refresh job.
type RefreshConfig struct {
	Enabled   bool   `mapstructure:"enabled"    yaml:"enabled"`
	OnStartup bool   `mapstructure:"on_startup" yaml:"on_startup"`
	Cron      string `mapstructure:"cron"       yaml:"cron"` // daily "HH:MM" in app timezone
}

// ChainConfig holds option chain analytics settings.
type ChainConfig struct {
	Underlying    string  `mapstructure:"underlying"      yaml:"underlying"`
	CacheTTLSec   int     `mapstructure:"cache_ttl_sec"   yaml:"cache_ttl_sec"`
	RetentionDays int     `mapstructure:"retention_days"  yaml:"retention_days"`
	TopOiCount    int     `mapstructure:"top_oi_count"    yaml:"top_oi_count"`
	PCR           PCRConfig `mapstructure:"pcr"           yaml:"pcr"`
}

// PCRConfig holds the PCR signal template thresholds.
type PCRConfig struct {
	OiBullishMax     float64 `mapstructure:"oi_bullish_max"     yaml:"oi_bullish_max"`
	OiBearishMin     float64 `mapstructure:"oi_bearish_min"     yaml:"oi_bearish_min"`
	VolumeBullishMax float64 `mapstructure:"volume_bullish_max" yaml:"volume_bullish_max"`
	VolumeBearishMin float64 `mapstructure:"volume_bearish_min" yaml:"volume_bearish_min"`
}

// DecisionConfig holds decision-service parameters.
type DecisionConfig struct {
	AdviceTTLMin               int     `mapstructure:"advice_ttl_min"                 yaml:"advice_ttl_min"`
	Deadband                   float64 `mapstructure:"deadband"                       yaml:"deadband"`
	Qty                        int     `mapstructure:"qty"                            yaml:"qty"`
	MinAccuracyForBoost        float64 `mapstructure:"min_accuracy_for_boost"         yaml:"min_accuracy_for_boost"`
	WeightSentiment            float64 `mapstructure:"weight_sentiment"               yaml:"weight_sentiment"`
	WeightRegime               float64 `mapstructure:"weight_regime"                  yaml:"weight_regime"`
	WeightMomentum             float64 `mapstructure:"weight_momentum"                yaml:"weight_momentum"`
	ExpiryWeekdayMultipliers   map[string]float64 `mapstructure:"expiry_weekday_multipliers" yaml:"expiry_weekday_multipliers"`
}

// AdviceTTL returns the advice expiry window.
func (d DecisionConfig) AdviceTTL() time.Duration {
	return time.Duration(d.AdviceTTLMin) * time.Minute
}

// APIConfig holds the ops HTTP server settings.
type APIConfig struct {
	Enabled     bool     `mapstructure:"enabled"      yaml:"enabled"`
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// StoreConfig holds snapshot persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
	Paper    bool   `mapstructure:"paper"    yaml:"paper"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.tradecore/config.yaml (home directory)
//  3. /etc/tradecore/config.yaml (system)
//
// Environment variables override config file values.
// Format: TRADECORE_<SECTION>_<KEY>, e.g. TRADECORE_ENGINE_TICK_MS.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".tradecore"))
	v.AddConfigPath("/etc/tradecore")

	v.SetEnvPrefix("TRADECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — use defaults + env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.tick_ms", 2000)
	v.SetDefault("engine.max_exec_per_tick", 3)
	v.SetDefault("engine.scan_limit", 20)
	v.SetDefault("engine.instrument_key", "NSE_INDEX|Nifty 50")

	// Worker cadences
	v.SetDefault("signals.refresh_ms", 15000)
	v.SetDefault("signals.vol_spike_atr_jump_pct", 50.0)
	v.SetDefault("candles1m.refresh_ms", 15000)
	v.SetDefault("sentiment.refresh_ms", 60000)
	v.SetDefault("sentiment.window_minutes", 60)
	v.SetDefault("sentiment.half_life_minutes", 20)

	// Social sentiment provider
	v.SetDefault("social.api_enabled", false)
	v.SetDefault("social.keywords", []string{"nifty", "sensex", "nse"})

	// Risk defaults (safety-first)
	v.SetDefault("risk.enabled", true)
	v.SetDefault("risk.max_daily_loss", 25000.0)
	v.SetDefault("risk.lots_cap", 10)
	v.SetDefault("risk.orders_per_min_cap", 10)
	v.SetDefault("risk.per_order_risk_pct", 25.0)
	v.SetDefault("risk.lot_size", 75)
	v.SetDefault("risk.max_spread_pct", 1.0)
	v.SetDefault("risk.kill_switch_open_new", false)

	// Broker defaults
	v.SetDefault("upstox.base_url", "https://api.upstox.com/v2")
	v.SetDefault("upstox.timeout", 10*time.Second)
	v.SetDefault("upstox.refresh.enabled", true)
	v.SetDefault("upstox.refresh.on_startup", false)
	v.SetDefault("upstox.refresh.cron", "03:20")

	// Chain analytics defaults
	v.SetDefault("chain.underlying", "NSE_INDEX|Nifty 50")
	v.SetDefault("chain.cache_ttl_sec", 30)
	v.SetDefault("chain.retention_days", 7)
	v.SetDefault("chain.top_oi_count", 5)
	v.SetDefault("chain.pcr.oi_bullish_max", 0.80)
	v.SetDefault("chain.pcr.oi_bearish_min", 1.20)
	v.SetDefault("chain.pcr.volume_bullish_max", 0.75)
	v.SetDefault("chain.pcr.volume_bearish_min", 1.25)

	// Decision defaults
	v.SetDefault("decision.advice_ttl_min", 10)
	v.SetDefault("decision.deadband", 0.15)
	v.SetDefault("decision.qty", 75)
	v.SetDefault("decision.min_accuracy_for_boost", 0.55)
	v.SetDefault("decision.weight_sentiment", 0.4)
	v.SetDefault("decision.weight_regime", 0.35)
	v.SetDefault("decision.weight_momentum", 0.25)
	// Hour/weekday multipliers near expiry, kept as tunables.
	v.SetDefault("decision.expiry_weekday_multipliers", map[string]float64{
		"tuesday": 1.25, "monday": 1.10,
	})

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8086)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Store defaults
	v.SetDefault("store.path", "")

	// App defaults
	v.SetDefault("app.timezone", "Asia/Kolkata")
	v.SetDefault("app.paper", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("TRADECORE_UPSTOX_API_KEY"); key != "" {
		cfg.Upstox.APIKey = key
	}
	if key := os.Getenv("TRADECORE_UPSTOX_API_SECRET"); key != "" {
		cfg.Upstox.APISecret = key
	}
	if key := os.Getenv("TRADECORE_UPSTOX_ACCESS_TOKEN"); key != "" {
		cfg.Upstox.AccessToken = key
	}
	if key := os.Getenv("TRADECORE_SOCIAL_API_KEY"); key != "" {
		cfg.Social.APIKey = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
