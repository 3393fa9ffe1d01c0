package store

import (
	"testing"
	"time"

	"github.com/quantforge/hft/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db)
}

func TestSaveIntegration_UpsertOnConflict(t *testing.T) {
	s := newTestStore(t)

	rec := models.IntegrationRecord{
		Tenant: "alice", Provider: "binance", Enabled: true,
		EncryptedAPIKey: "enc-key-1", EncryptedSecret: "enc-secret-1",
	}
	require.NoError(t, s.SaveIntegration(rec))

	rec.EncryptedAPIKey = "enc-key-2"
	require.NoError(t, s.SaveIntegration(rec))

	got, err := s.GetEnabledIntegrations("alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "enc-key-2", got[0].EncryptedAPIKey)
}

func TestGetEnabledIntegrations_ExcludesDisabled(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveIntegration(models.IntegrationRecord{Tenant: "alice", Provider: "binance", Enabled: true}))
	require.NoError(t, s.SaveIntegration(models.IntegrationRecord{Tenant: "alice", Provider: "sentiment_feed", Enabled: false}))

	got, err := s.GetEnabledIntegrations("alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "binance", got[0].Provider)
}

func TestSaveEngineStatus_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	cfg := models.EngineConfig{Symbol: "BTC/USDT", QuoteSize: 0.01, MaxPos: 1, Enabled: true}
	status := models.EngineStatus{
		Active: true, EngineType: models.EngineTypeHFT, Symbol: "BTC/USDT", Config: cfg, UpdatedAt: time.Now(),
	}
	require.NoError(t, s.SaveEngineStatus("alice", status))

	got, err := s.GetEngineStatus("alice", models.EngineTypeHFT, "BTC/USDT")
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Equal(t, 0.01, got.Config.QuoteSize)
}

func TestSaveExecutionLog_AndRetrieve(t *testing.T) {
	s := newTestStore(t)

	order := models.Order{
		ID: "o-1", Symbol: "BTC/USDT", Side: models.OrderSideBuy, Status: models.OrderStatusFilled,
		Quantity: decimal.NewFromFloat(0.01), Price: decimal.NewFromInt(50000),
	}
	require.NoError(t, s.SaveExecutionLog("alice", order, "quote_refresh"))

	logs, err := s.GetHFTExecutionLogs("alice", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "o-1", logs[0].OrderID)
	require.Equal(t, "quote_refresh", logs[0].Reason)
}

func TestSaveResearchLog_AndRetrieve(t *testing.T) {
	s := newTestStore(t)

	result := models.ResearchResult{Symbol: "BTC/USDT", Signal: models.SignalBuy, Accuracy: 0.8, RecommendedAction: "buy"}
	require.NoError(t, s.SaveResearchLog("alice", result))

	logs, err := s.GetResearchLogs("alice", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "buy", logs[0].RecommendedAction)
}

func TestLogActivity_DoesNotError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.LogActivity("alice", "engine_started", "BTC/USDT"))
}

func TestGetEngineStatus_UnknownReturnsError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetEngineStatus("alice", models.EngineTypeHFT, "BTC/USDT")
	require.Error(t, err)
}
