package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"backpack-mm/internal/core"
)

const (
	EnvAPIKey    = "API_KEY"
	EnvAPISecret = "API_SECRET"
	EnvSymbol    = "MM_SYMBOL"
)

type Config struct {
	Symbol        string              `yaml:"symbol"`
	Exchange      ExchangeConfig      `yaml:"exchange"`
	Quote         QuoteConfig         `yaml:"quote"`
	Runtime       RuntimeConfig       `yaml:"runtime"`
	Log           LogConfig           `yaml:"log"`
	State         StateConfig         `yaml:"state"`
	FailureAlerts FailureAlertsConfig `yaml:"failure_alerts"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ExchangeConfig struct {
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	RestBaseURL    string `yaml:"rest_base_url"`
	WindowMs       int64  `yaml:"window_ms"`
	HTTPTimeoutSec int64  `yaml:"http_timeout_sec"`
	CallTimeoutSec int64  `yaml:"call_timeout_sec"`
}

type QuoteConfig struct {
	BidSpread    Decimal `yaml:"bid_spread"`
	AskSpread    Decimal `yaml:"ask_spread"`
	PositionSize Decimal `yaml:"position_size"`
}

type RuntimeConfig struct {
	RefreshIntervalSec int64  `yaml:"refresh_interval_sec"`
	RulesRefresh       string `yaml:"rules_refresh"`
	CancelOnShutdown   bool   `yaml:"cancel_on_shutdown"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type StateConfig struct {
	Dir          string `yaml:"dir"`
	LockTakeover *bool  `yaml:"lock_takeover"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

type FailureAlertsConfig struct {
	Enabled           bool `yaml:"enabled"`
	MaxPriceFailures  int  `yaml:"max_price_failures"`
	MaxCancelFailures int  `yaml:"max_cancel_failures"`
	MaxPlaceFailures  int  `yaml:"max_place_failures"`
}

type ObservabilityConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

// Load reads the YAML file at path, applies environment overrides and validates the result.
// An empty envFile skips .env loading; a missing .env file is not an error.
func Load(path, envFile string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", core.ErrConfig, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: load %s: %v", core.ErrConfig, envFile, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a single YAML document, rejecting unknown fields.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", core.ErrConfig, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("%w: config must contain a single YAML document", core.ErrConfig)
		}
		return Config{}, fmt.Errorf("%w: %v", core.ErrConfig, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKey); ok && strings.TrimSpace(v) != "" {
		c.Exchange.APIKey = v
	}
	if v, ok := lookup(EnvAPISecret); ok && strings.TrimSpace(v) != "" {
		c.Exchange.APISecret = v
	}
	if v, ok := lookup(EnvSymbol); ok && strings.TrimSpace(v) != "" {
		c.Symbol = v
	}
}

func (c *Config) normalize() {
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.Exchange.APIKey = strings.TrimSpace(c.Exchange.APIKey)
	c.Exchange.APISecret = strings.TrimSpace(c.Exchange.APISecret)
	c.Exchange.RestBaseURL = strings.TrimSpace(c.Exchange.RestBaseURL)
	c.Runtime.RulesRefresh = strings.TrimSpace(c.Runtime.RulesRefresh)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.File = strings.TrimSpace(c.Log.File)
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.Exchange.RestBaseURL == "" {
		c.Exchange.RestBaseURL = "https://api.backpack.exchange"
	}
	if c.Exchange.WindowMs == 0 {
		c.Exchange.WindowMs = 5000
	}
	if c.Exchange.HTTPTimeoutSec == 0 {
		c.Exchange.HTTPTimeoutSec = 5
	}
	if c.Exchange.CallTimeoutSec == 0 {
		c.Exchange.CallTimeoutSec = 5
	}
	if c.Runtime.RefreshIntervalSec == 0 {
		c.Runtime.RefreshIntervalSec = 30
	}
	if c.Runtime.RulesRefresh == "" {
		c.Runtime.RulesRefresh = "@every 1h"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		c.Log.File = "market_maker.log"
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.LockTakeover == nil {
		enabled := true
		c.State.LockTakeover = &enabled
	}
	if c.State.LockStaleSec == 0 {
		c.State.LockStaleSec = 600
	}
	if c.FailureAlerts.MaxPriceFailures == 0 {
		c.FailureAlerts.MaxPriceFailures = 5
	}
	if c.FailureAlerts.MaxCancelFailures == 0 {
		c.FailureAlerts.MaxCancelFailures = 5
	}
	if c.FailureAlerts.MaxPlaceFailures == 0 {
		c.FailureAlerts.MaxPlaceFailures = 5
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
}

func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfig, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !isValidSymbol(c.Symbol) {
		return fmt.Errorf("symbol must match [A-Z0-9_], length 3..32")
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return fmt.Errorf("exchange api_key/api_secret are required (or %s/%s)", EnvAPIKey, EnvAPISecret)
	}
	if err := validateURL(c.Exchange.RestBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("exchange rest_base_url %v", err)
	}
	if c.Exchange.WindowMs < 1 || c.Exchange.WindowMs > 60000 {
		return fmt.Errorf("exchange window_ms must be between 1 and 60000")
	}
	if c.Exchange.HTTPTimeoutSec < 1 || c.Exchange.HTTPTimeoutSec > 120 {
		return fmt.Errorf("exchange http_timeout_sec must be between 1 and 120")
	}
	if c.Exchange.CallTimeoutSec < 1 || c.Exchange.CallTimeoutSec > 120 {
		return fmt.Errorf("exchange call_timeout_sec must be between 1 and 120")
	}
	if !c.Quote.BidSpread.Set {
		return fmt.Errorf("quote bid_spread is required")
	}
	if !c.Quote.AskSpread.Set {
		return fmt.Errorf("quote ask_spread is required")
	}
	if c.Quote.BidSpread.Sign() < 0 {
		return fmt.Errorf("quote bid_spread must be >= 0")
	}
	if c.Quote.BidSpread.Cmp(decimal.NewFromInt(1)) >= 0 {
		return fmt.Errorf("quote bid_spread must be < 1")
	}
	if c.Quote.AskSpread.Sign() < 0 {
		return fmt.Errorf("quote ask_spread must be >= 0")
	}
	if c.Quote.PositionSize.Sign() <= 0 {
		return fmt.Errorf("quote position_size must be > 0")
	}
	if c.Runtime.RefreshIntervalSec < 1 || c.Runtime.RefreshIntervalSec > 86400 {
		return fmt.Errorf("runtime refresh_interval_sec must be between 1 and 86400")
	}
	if _, err := cron.ParseStandard(c.Runtime.RulesRefresh); err != nil {
		return fmt.Errorf("runtime rules_refresh %q is not a valid schedule: %v", c.Runtime.RulesRefresh, err)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn, or error")
	}
	if c.State.LockStaleSec < 0 || c.State.LockStaleSec > 86400 {
		return fmt.Errorf("state.lock_stale_sec must be between 0 and 86400")
	}
	if c.FailureAlerts.Enabled {
		if c.FailureAlerts.MaxPriceFailures < 1 {
			return fmt.Errorf("failure_alerts.max_price_failures must be >= 1")
		}
		if c.FailureAlerts.MaxCancelFailures < 1 {
			return fmt.Errorf("failure_alerts.max_cancel_failures must be >= 1")
		}
		if c.FailureAlerts.MaxPlaceFailures < 1 {
			return fmt.Errorf("failure_alerts.max_place_failures must be >= 1")
		}
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	return nil
}

func isValidSymbol(v string) bool {
	if len(v) < 3 || len(v) > 32 {
		return false
	}
	for _, r := range v {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
