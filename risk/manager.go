// Package risk implements the per-tenant risk state machine gating every
// trade attempt: daily loss cap, drawdown from peak balance, consecutive
// failure cool-down, and UTC day rollover.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/quantforge/hft/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Decision is the outcome of a canTrade check.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	ReasonPausedByRisk = "paused_by_risk"
	ReasonDailyLossCap = "daily_loss_cap"
	ReasonDrawdown     = "drawdown"
)

// Manager is the process-wide, per-tenant risk state machine. It is a
// singleton: one Manager instance guards every tenant's UserRiskState.
type Manager struct {
	mu     sync.Mutex
	states map[string]*models.UserRiskState
	limits map[string]models.RiskLimits // per-tenant override; falls back to DefaultRiskLimits

	rolloverCron *cron.Cron
}

// NewManager constructs a risk manager and starts its UTC-midnight
// rollover sweep. Call Stop to shut the sweep down cleanly.
func NewManager() *Manager {
	m := &Manager{
		states: make(map[string]*models.UserRiskState),
		limits: make(map[string]models.RiskLimits),
	}

	// Belt-and-suspenders reset: the lazy per-call rollover in canTrade
	// covers active tenants, but a tenant with zero trade activity across
	// midnight would never trigger it. The cron sweep guarantees every
	// known tenant's counters reset exactly once per UTC day.
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc("0 0 * * *", m.rolloverAll)
	if err != nil {
		log.Error().Err(err).Msg("risk: failed to schedule daily rollover sweep")
	} else {
		c.Start()
		m.rolloverCron = c
	}
	return m
}

// Stop halts the rollover sweep. Safe to call more than once.
func (m *Manager) Stop() {
	if m.rolloverCron != nil {
		ctx := m.rolloverCron.Stop()
		<-ctx.Done()
	}
}

// SetLimits overrides the default risk limits for one tenant.
func (m *Manager) SetLimits(tenant string, limits models.RiskLimits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[tenant] = limits
}

func (m *Manager) limitsFor(tenant string) models.RiskLimits {
	if l, ok := m.limits[tenant]; ok {
		return l
	}
	return models.DefaultRiskLimits()
}

// state returns (creating lazily) the tenant's risk state, with day
// rollover already applied.
func (m *Manager) state(tenant string, balance float64) *models.UserRiskState {
	st, ok := m.states[tenant]
	if !ok {
		st = &models.UserRiskState{
			Tenant:            tenant,
			DailyStartBalance: balance,
			PeakBalance:       balance,
		}
		m.states[tenant] = st
	}
	m.rollover(st, balance)
	return st
}

func (m *Manager) rollover(st *models.UserRiskState, balance float64) {
	today := time.Now().UTC().Format("2006-01-02")
	if st.LastRolloverDay == today {
		return
	}
	st.LastRolloverDay = today
	st.DailyLoss = 0
	st.DailyStartBalance = balance
}

func (m *Manager) rolloverAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := time.Now().UTC().Format("2006-01-02")
	for tenant, st := range m.states {
		if st.LastRolloverDay == today {
			continue
		}
		st.LastRolloverDay = today
		st.DailyLoss = 0
		st.DailyStartBalance = st.PeakBalance
		log.Info().Str("tenant", tenant).Msg("risk: daily rollover")
	}
}

// CanTrade evaluates whether a tenant may place a trade of the given size
// at the given mid price, assuming the given adverse move fraction, per
// spec §4.6. balance is the tenant's current account balance, used both
// for drawdown and to seed a freshly-created risk state.
func (m *Manager) CanTrade(tenant string, tradeSize, midPrice, assumedAdverseMove, balance float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(tenant, balance)
	limits := m.limitsFor(tenant)

	if st.Paused {
		if time.Since(st.LastFailureTime) < limits.PauseWindow {
			return Decision{Allowed: false, Reason: ReasonPausedByRisk}
		}
		st.Paused = false
	}

	projectedLoss := st.DailyLoss + tradeSize*midPrice*assumedAdverseMove
	if projectedLoss > limits.DailyLossCap {
		return Decision{Allowed: false, Reason: ReasonDailyLossCap}
	}

	if st.PeakBalance > 0 {
		drawdown := (st.PeakBalance - balance) / st.PeakBalance
		if drawdown > limits.MaxDrawdown {
			return Decision{Allowed: false, Reason: ReasonDrawdown}
		}
	}

	return Decision{Allowed: true}
}

// RecordTradeResult updates daily loss, peak balance, and the consecutive
// failure counter after a trade attempt completes. success=false on an
// exchange rejection or a losing fill; pnl is the realized profit/loss of
// the trade (negative for a loss).
func (m *Manager) RecordTradeResult(tenant string, pnl, balance float64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(tenant, balance)
	limits := m.limitsFor(tenant)

	if pnl < 0 {
		st.DailyLoss -= pnl
	}
	if balance > st.PeakBalance {
		st.PeakBalance = balance
	}

	if !success {
		st.ConsecutiveFailures++
		if st.ConsecutiveFailures >= limits.MaxConsecutiveFailures {
			st.Paused = true
			st.PausedReason = "consecutive_failures"
			st.LastFailureTime = time.Now()
			log.Warn().Str("tenant", tenant).Int("failures", st.ConsecutiveFailures).
				Msg("risk: tenant paused after consecutive failures")
		}
	} else {
		st.ConsecutiveFailures = 0
	}
}

// Snapshot returns a copy of a tenant's current risk state, or an error if
// no state has been created yet.
func (m *Manager) Snapshot(tenant string) (models.UserRiskState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[tenant]
	if !ok {
		return models.UserRiskState{}, fmt.Errorf("risk: no state for tenant %q", tenant)
	}
	return *st, nil
}

// Reset clears a tenant's pause state, e.g. on manual operator override.
func (m *Manager) Reset(tenant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[tenant]; ok {
		st.Paused = false
		st.PausedReason = ""
		st.ConsecutiveFailures = 0
	}
}
