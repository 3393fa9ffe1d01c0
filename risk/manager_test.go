package risk

import (
	"testing"
	"time"

	"github.com/quantforge/hft/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := &Manager{
		states: make(map[string]*models.UserRiskState),
		limits: make(map[string]models.RiskLimits),
	}
	return m
}

func TestCanTrade_AllowsFreshTenant(t *testing.T) {
	m := newTestManager(t)
	d := m.CanTrade("alice", 0.001, 100.0, 0.002, 10000)
	assert.True(t, d.Allowed)
}

func TestCanTrade_DeniesDuringPauseWindow(t *testing.T) {
	m := newTestManager(t)
	m.SetLimits("alice", models.RiskLimits{
		DailyLossCap:           1_000_000,
		MaxDrawdown:            1,
		MaxConsecutiveFailures: 3,
		PauseWindow:            15 * time.Minute,
	})

	for i := 0; i < 3; i++ {
		m.RecordTradeResult("alice", -10, 10000, false)
	}

	d := m.CanTrade("alice", 0.001, 100, 0.002, 10000)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonPausedByRisk, d.Reason)
}

func TestCanTrade_AllowsAfterPauseWindowElapses(t *testing.T) {
	m := newTestManager(t)
	m.SetLimits("alice", models.RiskLimits{
		DailyLossCap:           1_000_000,
		MaxDrawdown:            1,
		MaxConsecutiveFailures: 1,
		PauseWindow:            time.Millisecond,
	})

	m.RecordTradeResult("alice", -10, 10000, false)
	time.Sleep(5 * time.Millisecond)

	d := m.CanTrade("alice", 0.001, 100, 0.002, 10000)
	assert.True(t, d.Allowed)
}

func TestCanTrade_DeniesOnDailyLossCap(t *testing.T) {
	m := newTestManager(t)
	m.SetLimits("alice", models.RiskLimits{
		DailyLossCap:           1,
		MaxDrawdown:            1,
		MaxConsecutiveFailures: 100,
		PauseWindow:            time.Minute,
	})

	d := m.CanTrade("alice", 1000, 100, 0.5, 10000)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLossCap, d.Reason)
}

func TestCanTrade_DeniesOnDrawdown(t *testing.T) {
	m := newTestManager(t)
	m.SetLimits("alice", models.RiskLimits{
		DailyLossCap:           1_000_000,
		MaxDrawdown:            0.1,
		MaxConsecutiveFailures: 100,
		PauseWindow:            time.Minute,
	})

	// Establish a high peak, then trade at a much lower balance.
	m.RecordTradeResult("alice", 0, 10000, true)
	d := m.CanTrade("alice", 0.001, 100, 0.002, 8000)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonDrawdown, d.Reason)
}

func TestRecordTradeResult_SuccessResetsConsecutiveFailures(t *testing.T) {
	m := newTestManager(t)
	m.RecordTradeResult("bob", -5, 10000, false)
	m.RecordTradeResult("bob", 5, 10000, true)

	snap, err := m.Snapshot("bob")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.False(t, snap.Paused)
}

func TestRecordTradeResult_PeakBalanceIsMonotonic(t *testing.T) {
	m := newTestManager(t)
	m.RecordTradeResult("carol", 100, 10000, true)
	m.RecordTradeResult("carol", -50, 9000, true)

	snap, err := m.Snapshot("carol")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, snap.PeakBalance)
}

func TestReset_ClearsPause(t *testing.T) {
	m := newTestManager(t)
	m.SetLimits("dave", models.RiskLimits{MaxConsecutiveFailures: 1, PauseWindow: time.Hour, DailyLossCap: 1e9, MaxDrawdown: 1})
	m.RecordTradeResult("dave", -1, 10000, false)

	snap, _ := m.Snapshot("dave")
	require.True(t, snap.Paused)

	m.Reset("dave")
	snap, _ = m.Snapshot("dave")
	assert.False(t, snap.Paused)
}
