package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"backpack-mm/internal/core"
)

const minimalConfig = `
symbol: sol_usdc

exchange:
  api_key: "key"
  api_secret: "c2VjcmV0"

quote:
  bid_spread: "0.0005"
  ask_spread: "0.0005"
  position_size: "0.1"
`

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, minimalConfig)

	cfg, err := Load(cfgPath, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Symbol != "SOL_USDC" {
		t.Fatalf("symbol = %q, want SOL_USDC", cfg.Symbol)
	}
	if cfg.Exchange.RestBaseURL != "https://api.backpack.exchange" {
		t.Fatalf("exchange.rest_base_url = %q, want default", cfg.Exchange.RestBaseURL)
	}
	if cfg.Exchange.WindowMs != 5000 {
		t.Fatalf("exchange.window_ms = %d, want 5000", cfg.Exchange.WindowMs)
	}
	if cfg.Exchange.CallTimeoutSec != 5 {
		t.Fatalf("exchange.call_timeout_sec = %d, want 5", cfg.Exchange.CallTimeoutSec)
	}
	if cfg.Runtime.RefreshIntervalSec != 30 {
		t.Fatalf("runtime.refresh_interval_sec = %d, want 30", cfg.Runtime.RefreshIntervalSec)
	}
	if cfg.Runtime.RulesRefresh != "@every 1h" {
		t.Fatalf("runtime.rules_refresh = %q, want @every 1h", cfg.Runtime.RulesRefresh)
	}
	if cfg.Log.File != "market_maker.log" {
		t.Fatalf("log.file = %q, want market_maker.log", cfg.Log.File)
	}
	if cfg.State.LockTakeover == nil || !*cfg.State.LockTakeover {
		t.Fatalf("state.lock_takeover = %v, want true", cfg.State.LockTakeover)
	}
	if !cfg.Quote.PositionSize.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("quote.position_size = %s, want 0.1", cfg.Quote.PositionSize.String())
	}
}

func TestLoadAcceptsBareDecimalScalars(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, `
symbol: SOL_USDC
exchange:
  api_key: "key"
  api_secret: "c2VjcmV0"
quote:
  bid_spread: 0.001
  ask_spread: 0.002
  position_size: 30000.0
`)

	cfg, err := Load(cfgPath, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Quote.AskSpread.Equal(decimal.RequireFromString("0.002")) {
		t.Fatalf("quote.ask_spread = %s, want 0.002", cfg.Quote.AskSpread.String())
	}
	if !cfg.Quote.PositionSize.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("quote.position_size = %s, want 30000", cfg.Quote.PositionSize.String())
	}
}

func TestLoadRejectsNegativeSpread(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, strings.Replace(minimalConfig, `bid_spread: "0.0005"`, `bid_spread: "-0.001"`, 1))

	_, err := Load(cfgPath, "")
	if err == nil {
		t.Fatalf("Load() error = nil, want error")
	}
	if !errors.Is(err, core.ErrConfig) {
		t.Fatalf("Load() error = %v, want ErrConfig", err)
	}
	if !strings.Contains(err.Error(), "quote bid_spread must be >= 0") {
		t.Fatalf("Load() error = %q, want bid_spread validation", err.Error())
	}
}

func TestLoadRejectsMissingSpreads(t *testing.T) {
	cases := []struct {
		name string
		drop string
		want string
	}{
		{name: "bid", drop: "  bid_spread: \"0.0005\"\n", want: "quote bid_spread is required"},
		{name: "ask", drop: "  ask_spread: \"0.0005\"\n", want: "quote ask_spread is required"},
		{name: "both", drop: "  bid_spread: \"0.0005\"\n  ask_spread: \"0.0005\"\n", want: "quote bid_spread is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			content := strings.Replace(minimalConfig, tc.drop, "", 1)
			if content == minimalConfig {
				t.Fatalf("fixture does not contain %q", tc.drop)
			}
			_, err := Load(writeTempConfig(t, content), "")
			if !errors.Is(err, core.ErrConfig) {
				t.Fatalf("Load() error = %v, want ErrConfig", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %q, want %q", err.Error(), tc.want)
			}
		})
	}
}

func TestLoadRejectsBlankSpread(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, strings.Replace(minimalConfig, `ask_spread: "0.0005"`, `ask_spread: ""`, 1))

	_, err := Load(cfgPath, "")
	if err == nil || !strings.Contains(err.Error(), "quote ask_spread is required") {
		t.Fatalf("Load() error = %v, want ask_spread required", err)
	}
}

func TestLoadAcceptsExplicitZeroSpread(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, strings.Replace(minimalConfig, `bid_spread: "0.0005"`, `bid_spread: "0"`, 1))

	cfg, err := Load(cfgPath, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Quote.BidSpread.Set || !cfg.Quote.BidSpread.IsZero() {
		t.Fatalf("bid_spread = %+v, want explicit zero", cfg.Quote.BidSpread)
	}
}

func TestLoadRejectsBidSpreadOfOne(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, strings.Replace(minimalConfig, `bid_spread: "0.0005"`, `bid_spread: "1"`, 1))

	_, err := Load(cfgPath, "")
	if err == nil || !strings.Contains(err.Error(), "quote bid_spread must be < 1") {
		t.Fatalf("Load() error = %v, want bid_spread upper bound", err)
	}
}

func TestLoadRejectsZeroPositionSize(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, strings.Replace(minimalConfig, `position_size: "0.1"`, `position_size: "0"`, 1))

	_, err := Load(cfgPath, "")
	if err == nil || !strings.Contains(err.Error(), "quote position_size must be > 0") {
		t.Fatalf("Load() error = %v, want position_size validation", err)
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, `
symbol: SOL_USDC
quote:
  position_size: "1"
`)

	_, err := Load(cfgPath, "")
	if err == nil {
		t.Fatalf("Load() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "api_key/api_secret are required") {
		t.Fatalf("Load() error = %q, want credentials validation", err.Error())
	}
}

func TestLoadReadsCredentialsFromEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("API_KEY=env-key\nAPI_SECRET=env-secret\nMM_SYMBOL=btc_usdc\n"), 0o600); err != nil {
		t.Fatalf("write env file failed: %v", err)
	}
	cfgPath := writeTempConfig(t, `
symbol: SOL_USDC
quote:
  position_size: "1"
`)

	cfg, err := Load(cfgPath, envPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" || cfg.Exchange.APISecret != "env-secret" {
		t.Fatalf("credentials = %q/%q, want env-key/env-secret", cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	}
	if cfg.Symbol != "BTC_USDC" {
		t.Fatalf("symbol = %q, want BTC_USDC from env", cfg.Symbol)
	}
}

func TestLoadMissingEnvFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, minimalConfig)

	if _, err := Load(cfgPath, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("Load() error = %v, want nil for missing .env", err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, "from-env")
	cfgPath := writeTempConfig(t, minimalConfig)

	cfg, err := Load(cfgPath, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Exchange.APIKey != "from-env" {
		t.Fatalf("exchange.api_key = %q, want from-env", cfg.Exchange.APIKey)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, minimalConfig+`
grid:
  levels: 20
`)

	_, err := Load(cfgPath, "")
	if err == nil {
		t.Fatalf("Load() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "field grid not found") {
		t.Fatalf("Load() error = %q, want unknown field message", err.Error())
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, minimalConfig+"\n---\nsymbol: BTC_USDC\n")

	_, err := Load(cfgPath, "")
	if err == nil || !strings.Contains(err.Error(), "single YAML document") {
		t.Fatalf("Load() error = %v, want single document error", err)
	}
}

func TestLoadRejectsInvalidSymbol(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, strings.Replace(minimalConfig, "symbol: sol_usdc", "symbol: SOL-USDC", 1))

	_, err := Load(cfgPath, "")
	if err == nil || !strings.Contains(err.Error(), "symbol must match") {
		t.Fatalf("Load() error = %v, want symbol validation", err)
	}
}

func TestLoadRejectsInvalidRulesRefresh(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, minimalConfig+`
runtime:
  rules_refresh: "every hour"
`)

	_, err := Load(cfgPath, "")
	if err == nil || !strings.Contains(err.Error(), "runtime rules_refresh") {
		t.Fatalf("Load() error = %v, want rules_refresh validation", err)
	}
}

func TestLoadRejectsInvalidRestBaseURL(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, minimalConfig)
	cfg, err := Load(cfgPath, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Exchange.RestBaseURL = "ftp://api.backpack.exchange"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "scheme must be http or https") {
		t.Fatalf("Validate() error = %v, want scheme validation", err)
	}
}

func TestLoadTelegramRequiresTokenWhenEnabled(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, minimalConfig+`
observability:
  telegram:
    enabled: true
    chat_id: "42"
`)

	_, err := Load(cfgPath, "")
	if err == nil || !strings.Contains(err.Error(), "bot_token is required") {
		t.Fatalf("Load() error = %v, want bot_token validation", err)
	}
}

func TestLoadTelegramDisabledIgnoresInvalidAPIBaseURL(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, minimalConfig+`
observability:
  telegram:
    enabled: false
    api_base_url: "://bad-url"
`)

	if _, err := Load(cfgPath, ""); err != nil {
		t.Fatalf("Load() error = %v, want nil when telegram disabled", err)
	}
}

func TestLoadStateLockTakeoverCanDisableExplicitly(t *testing.T) {
	clearEnv(t)
	cfgPath := writeTempConfig(t, minimalConfig+`
state:
  lock_takeover: false
`)

	cfg, err := Load(cfgPath, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.State.LockTakeover == nil || *cfg.State.LockTakeover {
		t.Fatalf("state.lock_takeover = %v, want false", cfg.State.LockTakeover)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write temp config failed: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIKey, EnvAPISecret, EnvSymbol} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, "key")
	t.Setenv(EnvAPISecret, "c2VjcmV0")

	cfg, err := Load("../../config/config.example.yaml", "")
	if err != nil {
		t.Fatalf("Load(example) error = %v", err)
	}
	if cfg.Symbol != "SOL_USDC" || cfg.Exchange.APIKey != "key" {
		t.Fatalf("example config = %+v", cfg)
	}
}
