package models

import "time"

// EngineConfig is the per-tenant, per-symbol tuning for the HFT engine and
// its market-making strategy. Journalled as tenants/{tenant}/hftSettings.
type EngineConfig struct {
	Symbol          string  `json:"symbol" db:"symbol"`
	QuoteSize       float64 `json:"quote_size" db:"quote_size"`
	AdversePct      float64 `json:"adverse_pct" db:"adverse_pct"`
	CancelMs        int64   `json:"cancel_ms" db:"cancel_ms"`
	MaxPos          float64 `json:"max_pos" db:"max_pos"`
	MinSpreadPct    float64 `json:"min_spread_pct" db:"min_spread_pct"`
	MaxTradesPerDay int     `json:"max_trades_per_day" db:"max_trades_per_day"`
	Enabled         bool    `json:"enabled" db:"enabled"`
}

// Validate enforces the constraints named in the external interface table:
// numeric fields strictly positive, symbol non-empty, adversePct in (0,1),
// maxTradesPerDay >= 1.
func (c EngineConfig) Validate() []string {
	var errs []string
	if c.Symbol == "" {
		errs = append(errs, "symbol must not be empty")
	}
	if c.QuoteSize <= 0 {
		errs = append(errs, "quote_size must be strictly positive")
	}
	if c.AdversePct <= 0 || c.AdversePct >= 1 {
		errs = append(errs, "adverse_pct must be in (0,1)")
	}
	if c.CancelMs <= 0 {
		errs = append(errs, "cancel_ms must be strictly positive")
	}
	if c.MaxPos <= 0 {
		errs = append(errs, "max_pos must be strictly positive")
	}
	if c.MinSpreadPct < 0 {
		errs = append(errs, "min_spread_pct must not be negative")
	}
	if c.MaxTradesPerDay < 1 {
		errs = append(errs, "max_trades_per_day must be at least 1")
	}
	return errs
}

// EngineType enumerates the kinds of periodic driver an engine can run.
type EngineType string

// EngineTypeHFT is presently the only engine type.
const EngineTypeHFT EngineType = "hft"

// EngineStatus is the journalled, queryable snapshot of one tenant's engine.
// Journalled as tenants/{tenant}/engineStatus.
type EngineStatus struct {
	Active     bool         `json:"active" db:"active"`
	EngineType EngineType   `json:"engine_type" db:"engine_type"`
	Symbol     string       `json:"symbol" db:"symbol"`
	Config     EngineConfig `json:"config" db:"-"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}
