package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single origin", input: "http://localhost:3000", expected: []string{"http://localhost:3000"}},
		{name: "multiple origins", input: "a,b,c", expected: []string{"a", "b", "c"}},
		{name: "entries with spaces", input: "a , b , c", expected: []string{"a", "b", "c"}},
		{name: "empty string", input: "", expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseList(tc.input))
		})
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "HOST", "API_KEY", "TRADING_MODE", "DATABASE_PATH", "LOG_LEVEL",
		"ALLOWED_ORIGINS", "VAULT_MASTER_KEY", "BINANCE_API_KEY", "BINANCE_API_SECRET",
		"BINANCE_TESTNET", "DEFAULT_STRATEGY", "DEFAULT_QUOTE_SIZE", "DEFAULT_ADVERSE_PCT",
		"DEFAULT_CANCEL_MS", "DEFAULT_MAX_POS", "DEFAULT_MIN_SPREAD_PCT",
		"DEFAULT_MAX_TRADES_PER_DAY", "SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8099, cfg.ServerPort)
	assert.Equal(t, ModeDryRun, cfg.TradingMode)
	assert.Equal(t, "market_making", cfg.DefaultStrategy)
	assert.True(t, cfg.BinanceTestnet)
	assert.True(t, cfg.IsDryRun())
}

func TestLoad_InvalidTradingModeFails(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TRADING_MODE", "sideways")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRADING_MODE")
}

func TestLoad_LiveModeRequiresCredentials(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TRADING_MODE", "live")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")
	assert.Contains(t, err.Error(), "VAULT_MASTER_KEY")
}

func TestLoad_UnknownDefaultStrategyFails(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DEFAULT_STRATEGY", "does-not-exist")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_STRATEGY")
}

func TestConfig_EngineDefaults_UsesConfiguredValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DEFAULT_QUOTE_SIZE", "0.05")
	t.Setenv("DEFAULT_MAX_TRADES_PER_DAY", "10")

	cfg, err := Load()
	require.NoError(t, err)

	ec := cfg.EngineDefaults("BTC/USDT")
	assert.Equal(t, "BTC/USDT", ec.Symbol)
	assert.Equal(t, 0.05, ec.QuoteSize)
	assert.Equal(t, 10, ec.MaxTradesPerDay)
	assert.True(t, ec.Enabled)
}

func TestConfig_Reload_DetectsRestartRequiredFields(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	t.Setenv("PORT", "9100")
	result, err := cfg.Reload()
	require.NoError(t, err)

	assert.True(t, result.RequiresRestart)
	assert.Equal(t, 8099, cfg.ServerPort, "restart-only fields must not be applied live")
}

func TestConfig_Reload_AppliesHotReloadableFields(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	t.Setenv("LOG_LEVEL", "debug")
	result, err := cfg.Reload()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	found := false
	for _, c := range result.Changes {
		if c.Field == "LogLevel" {
			found = true
			assert.True(t, c.Applied)
		}
	}
	assert.True(t, found)
}

func TestGenerateAPIKey_ReturnsDistinctKeys(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
