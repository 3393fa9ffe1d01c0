package models

import "time"

// UserRiskState is the per-tenant state the risk manager gates every trade
// attempt against. Created lazily on first use; reset at UTC day rollover
// except PeakBalance, which is a monotonic high-water mark.
type UserRiskState struct {
	Tenant              string
	DailyLoss           float64
	DailyStartBalance   float64
	PeakBalance         float64
	ConsecutiveFailures int
	LastFailureTime     time.Time
	Paused              bool
	PausedReason        string
	LastRolloverDay     string // YYYY-MM-DD in UTC, empty until first touch
}

// RiskLimits are the per-tenant thresholds read from EngineConfig-adjacent
// settings; kept separate from EngineConfig because they are not
// symbol-scoped the way quoting parameters are.
type RiskLimits struct {
	DailyLossCap               float64
	MaxDrawdown                float64
	MaxConsecutiveFailures     int
	PauseWindow                time.Duration
	SingleTradeSizeCap         float64
}

// DefaultRiskLimits mirrors spec defaults: 3 consecutive failures, 15
// minute cool-down.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		DailyLossCap:           1_000_000, // effectively unlimited unless tenant configures tighter
		MaxDrawdown:            0.25,
		MaxConsecutiveFailures: 3,
		PauseWindow:            15 * time.Minute,
		SingleTradeSizeCap:     0,
	}
}
