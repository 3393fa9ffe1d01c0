package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/strategy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TradingMode controls whether the process is allowed to place live orders.
type TradingMode string

const (
	ModeDryRun TradingMode = "dry_run"
	ModeLive   TradingMode = "live"
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true,
	"error": true, "fatal": true, "panic": true, "disabled": true,
}

// ValidationError aggregates every configuration problem found in one pass
// so operators can fix everything at once instead of one env var at a time.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %d validation error(s):\n  - %s", len(e.Errors), strings.Join(e.Errors, "\n  - "))
}

// ReloadChange describes one field's before/after state during a hot reload.
type ReloadChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
	Applied  bool        `json:"applied"`
}

// ReloadResult summarizes a Reload call.
type ReloadResult struct {
	Changes         []ReloadChange `json:"changes"`
	RequiresRestart bool           `json:"requires_restart"`
	RestartReasons  []string       `json:"restart_reasons,omitempty"`
}

// Config is the process-wide configuration: server settings, the master
// key vault seed, exchange credentials, and the per-tenant EngineConfig
// defaults returned by EngineDefaults.
type Config struct {
	mu sync.RWMutex

	// Server
	ServerPort     int
	ServerHost     string
	APIKey         string
	AllowedOrigins []string
	TradingMode    TradingMode
	DatabasePath   string
	LogLevel       string

	// KeyVault master key (base64 of 32 bytes, decoded in main.go and passed to vault.New)
	VaultMasterKey string

	// Binance credentials, used only when a tenant has no stored
	// per-tenant integration record
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool

	// Default strategy name, validated against the strategy registry. The
	// create-engine request requires its own strategy, so it is not applied there
	DefaultStrategy string

	// Per-tenant EngineConfig defaults, returned by EngineDefaults. The
	// create-engine request carries a full EngineConfig and these values are
	// not merged into it
	DefaultQuoteSize       float64
	DefaultAdversePct      float64
	DefaultCancelMs        int64
	DefaultMaxPos          float64
	DefaultMinSpreadPct    float64
	DefaultMaxTradesPerDay int

	// Shutdown
	ShutdownTimeout time.Duration

	EnvFile string
}

// Load reads configuration from environment variables and an optional .env
// file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:     getEnvInt("PORT", 8099),
		ServerHost:     getEnv("HOST", "0.0.0.0"),
		APIKey:         os.Getenv("API_KEY"),
		TradingMode:    TradingMode(getEnv("TRADING_MODE", "dry_run")),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/quantforge.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080")),

		VaultMasterKey: os.Getenv("VAULT_MASTER_KEY"),

		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "true") == "true",

		DefaultStrategy: getEnv("DEFAULT_STRATEGY", "market_making"),

		DefaultQuoteSize:       getEnvFloat("DEFAULT_QUOTE_SIZE", 0.01),
		DefaultAdversePct:      getEnvFloat("DEFAULT_ADVERSE_PCT", 0.002),
		DefaultCancelMs:        getEnvInt64("DEFAULT_CANCEL_MS", 5000),
		DefaultMaxPos:          getEnvFloat("DEFAULT_MAX_POS", 1.0),
		DefaultMinSpreadPct:    getEnvFloat("DEFAULT_MIN_SPREAD_PCT", 0.0005),
		DefaultMaxTradesPerDay: getEnvInt("DEFAULT_MAX_TRADES_PER_DAY", 500),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		EnvFile:         ".env",
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every field, aggregating all problems into one
// ValidationError so a misconfigured deploy fails loudly and completely.
func (c *Config) Validate() error {
	var errs []string

	if c.TradingMode != ModeDryRun && c.TradingMode != ModeLive {
		errs = append(errs, fmt.Sprintf("invalid TRADING_MODE %q: must be 'dry_run' or 'live'", c.TradingMode))
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Sprintf("invalid PORT %d: must be between 1 and 65535", c.ServerPort))
	}
	if c.DatabasePath == "" {
		errs = append(errs, "DATABASE_PATH is empty")
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	if _, err := strategy.New(c.DefaultStrategy); err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_STRATEGY %q: available strategies are %v", c.DefaultStrategy, strategy.Available()))
	}

	defaults := models.EngineConfig{
		Symbol: "placeholder", QuoteSize: c.DefaultQuoteSize, AdversePct: c.DefaultAdversePct,
		CancelMs: c.DefaultCancelMs, MaxPos: c.DefaultMaxPos, MinSpreadPct: c.DefaultMinSpreadPct,
		MaxTradesPerDay: c.DefaultMaxTradesPerDay,
	}
	for _, e := range defaults.Validate() {
		errs = append(errs, "default engine config: "+e)
	}

	if c.IsLive() {
		if c.APIKey == "" {
			errs = append(errs, "live mode requires API_KEY for control-plane authentication")
		}
		if c.VaultMasterKey == "" {
			errs = append(errs, "live mode requires VAULT_MASTER_KEY to decrypt stored exchange credentials")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// IsDryRun reports whether the process may only place paper orders.
func (c *Config) IsDryRun() bool { return c.TradingMode == ModeDryRun }

// IsLive reports whether the process is allowed to place live exchange orders.
func (c *Config) IsLive() bool { return c.TradingMode == ModeLive }

// EngineDefaults builds an EngineConfig for symbol using the configured
// per-tenant defaults, for callers that create an engine without supplying
// every tuning knob explicitly.
func (c *Config) EngineDefaults(symbol string) models.EngineConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return models.EngineConfig{
		Symbol: symbol, QuoteSize: c.DefaultQuoteSize, AdversePct: c.DefaultAdversePct,
		CancelMs: c.DefaultCancelMs, MaxPos: c.DefaultMaxPos, MinSpreadPct: c.DefaultMinSpreadPct,
		MaxTradesPerDay: c.DefaultMaxTradesPerDay, Enabled: true,
	}
}

// Reload re-reads environment/.env, applying hot-reloadable fields to the
// live config and reporting structural fields (server port, trading mode,
// database path) that were detected but not applied.
func (c *Config) Reload() (*ReloadResult, error) {
	envFile := c.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Overload(envFile)

	newCfg := &Config{
		ServerPort:             getEnvInt("PORT", 8099),
		ServerHost:             getEnv("HOST", "0.0.0.0"),
		APIKey:                 os.Getenv("API_KEY"),
		TradingMode:            TradingMode(getEnv("TRADING_MODE", "dry_run")),
		DatabasePath:           getEnv("DATABASE_PATH", "./data/quantforge.db"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:         parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080")),
		VaultMasterKey:         os.Getenv("VAULT_MASTER_KEY"),
		BinanceAPIKey:          os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:       os.Getenv("BINANCE_API_SECRET"),
		BinanceTestnet:         getEnv("BINANCE_TESTNET", "true") == "true",
		DefaultStrategy:        getEnv("DEFAULT_STRATEGY", "market_making"),
		DefaultQuoteSize:       getEnvFloat("DEFAULT_QUOTE_SIZE", 0.01),
		DefaultAdversePct:      getEnvFloat("DEFAULT_ADVERSE_PCT", 0.002),
		DefaultCancelMs:        getEnvInt64("DEFAULT_CANCEL_MS", 5000),
		DefaultMaxPos:          getEnvFloat("DEFAULT_MAX_POS", 1.0),
		DefaultMinSpreadPct:    getEnvFloat("DEFAULT_MIN_SPREAD_PCT", 0.0005),
		DefaultMaxTradesPerDay: getEnvInt("DEFAULT_MAX_TRADES_PER_DAY", 500),
		ShutdownTimeout:        getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		EnvFile:                envFile,
	}

	if err := newCfg.Validate(); err != nil {
		return nil, fmt.Errorf("reloaded config validation failed: %w", err)
	}

	result := &ReloadResult{Changes: make([]ReloadChange, 0)}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.detectRestartChange(result, "ServerPort", c.ServerPort, newCfg.ServerPort)
	c.detectRestartChange(result, "ServerHost", c.ServerHost, newCfg.ServerHost)
	c.detectRestartChange(result, "TradingMode", string(c.TradingMode), string(newCfg.TradingMode))
	c.detectRestartChange(result, "DatabasePath", c.DatabasePath, newCfg.DatabasePath)

	if c.LogLevel != newCfg.LogLevel {
		result.Changes = append(result.Changes, ReloadChange{Field: "LogLevel", OldValue: c.LogLevel, NewValue: newCfg.LogLevel, Applied: true})
		c.LogLevel = newCfg.LogLevel
		if lvl, err := zerolog.ParseLevel(newCfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}
	if !stringSlicesEqual(c.AllowedOrigins, newCfg.AllowedOrigins) {
		result.Changes = append(result.Changes, ReloadChange{Field: "AllowedOrigins", OldValue: c.AllowedOrigins, NewValue: newCfg.AllowedOrigins, Applied: true})
		c.AllowedOrigins = newCfg.AllowedOrigins
	}
	if c.ShutdownTimeout != newCfg.ShutdownTimeout {
		result.Changes = append(result.Changes, ReloadChange{Field: "ShutdownTimeout", OldValue: c.ShutdownTimeout.String(), NewValue: newCfg.ShutdownTimeout.String(), Applied: true})
		c.ShutdownTimeout = newCfg.ShutdownTimeout
	}
	if c.DefaultStrategy != newCfg.DefaultStrategy {
		result.Changes = append(result.Changes, ReloadChange{Field: "DefaultStrategy", OldValue: c.DefaultStrategy, NewValue: newCfg.DefaultStrategy, Applied: true})
		c.DefaultStrategy = newCfg.DefaultStrategy
	}
	if c.DefaultQuoteSize != newCfg.DefaultQuoteSize || c.DefaultAdversePct != newCfg.DefaultAdversePct ||
		c.DefaultCancelMs != newCfg.DefaultCancelMs || c.DefaultMaxPos != newCfg.DefaultMaxPos ||
		c.DefaultMinSpreadPct != newCfg.DefaultMinSpreadPct || c.DefaultMaxTradesPerDay != newCfg.DefaultMaxTradesPerDay {
		result.Changes = append(result.Changes, ReloadChange{Field: "EngineDefaults", OldValue: "prior", NewValue: "updated", Applied: true})
		c.DefaultQuoteSize = newCfg.DefaultQuoteSize
		c.DefaultAdversePct = newCfg.DefaultAdversePct
		c.DefaultCancelMs = newCfg.DefaultCancelMs
		c.DefaultMaxPos = newCfg.DefaultMaxPos
		c.DefaultMinSpreadPct = newCfg.DefaultMinSpreadPct
		c.DefaultMaxTradesPerDay = newCfg.DefaultMaxTradesPerDay
	}

	// Credentials (redacted in output)
	if c.BinanceAPIKey != newCfg.BinanceAPIKey || c.BinanceAPISecret != newCfg.BinanceAPISecret {
		result.Changes = append(result.Changes, ReloadChange{Field: "BinanceCredentials", OldValue: "[redacted]", NewValue: "[redacted]", Applied: true})
		c.BinanceAPIKey = newCfg.BinanceAPIKey
		c.BinanceAPISecret = newCfg.BinanceAPISecret
	}

	log.Info().Int("total_changes", len(result.Changes)).Bool("requires_restart", result.RequiresRestart).
		Msg("config: reloaded")

	return result, nil
}

func (c *Config) detectRestartChange(result *ReloadResult, field string, oldVal, newVal interface{}) {
	if fmt.Sprintf("%v", oldVal) != fmt.Sprintf("%v", newVal) {
		result.Changes = append(result.Changes, ReloadChange{Field: field, OldValue: oldVal, NewValue: newVal, Applied: false})
		result.RequiresRestart = true
		result.RestartReasons = append(result.RestartReasons, field+" changed")
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GenerateAPIKey generates a random 32-byte (64 hex char) control-plane key.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RotateAPIKey generates a new API key, applies it, and persists it to the
// .env file so a restart keeps the same key.
func (c *Config) RotateAPIKey() (string, error) {
	newKey, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.APIKey = newKey
	envFile := c.EnvFile
	c.mu.Unlock()
	if envFile == "" {
		envFile = ".env"
	}

	content, err := os.ReadFile(envFile)
	if err != nil {
		if os.IsNotExist(err) {
			return newKey, os.WriteFile(envFile, []byte("API_KEY="+newKey+"\n"), 0644)
		}
		return "", err
	}

	lines := strings.Split(string(content), "\n")
	found := false
	for i, line := range lines {
		if strings.HasPrefix(line, "API_KEY=") {
			lines[i] = "API_KEY=" + newKey
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, "API_KEY="+newKey)
	}

	if err := os.WriteFile(envFile, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return "", fmt.Errorf("config: write .env: %w", err)
	}
	return newKey, nil
}
