package engine

import (
	"context"
	"fmt"

	"github.com/quantforge/hft/exchange"
	"github.com/quantforge/hft/execution"
	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/research"
	"github.com/quantforge/hft/risk"
	"github.com/quantforge/hft/store"
	"github.com/quantforge/hft/strategy"
	"github.com/rs/zerolog/log"
)

// UserEngine is the composite owning one tenant's entire trading stack:
// its exchange adapter, order manager, research engine, strategy, and the
// HFTEngine driving them. No field is ever shared with another tenant's
// UserEngine.
type UserEngine struct {
	Tenant   string
	Adapter  exchange.Adapter
	Orders   *execution.OrderManager
	Research *research.Engine
	Strategy strategy.Strategy
	HFT      *HFTEngine

	events EventPublisher
}

// newUserEngine wires one tenant's stack. strategyName must resolve via
// strategy.New.
func newUserEngine(
	tenant string,
	adapter exchange.Adapter,
	strategyName string,
	config models.EngineConfig,
	riskMgr *risk.Manager,
	ds store.DataStore,
	pub execution.UpdatePublisher,
	events EventPublisher,
) (*UserEngine, error) {
	strat, err := strategy.New(strategyName)
	if err != nil {
		return nil, fmt.Errorf("user_engine: %w", err)
	}
	if err := strat.Init(config); err != nil {
		return nil, fmt.Errorf("user_engine: strategy init: %w", err)
	}

	orders := execution.NewOrderManager(tenant, adapter, riskMgr, ds, pub)
	researchEngine := research.NewEngine()
	hft := NewHFTEngine(tenant, adapter, researchEngine, strat, orders, riskMgr, ds, events, config)

	return &UserEngine{
		Tenant:   tenant,
		Adapter:  adapter,
		Orders:   orders,
		Research: researchEngine,
		Strategy: strat,
		HFT:      hft,
		events:   events,
	}, nil
}

// Start initialises the strategy's bindings (already done at construction)
// and starts the HFT cycle for symbol.
func (u *UserEngine) Start(symbol string, intervalMs int64) error {
	if err := u.HFT.Start(symbol, intervalMs); err != nil {
		return fmt.Errorf("user_engine: %w", err)
	}
	return nil
}

// Shutdown cascades per spec §4.11: stop HFT, cancel all pending via the
// strategy/order manager, disconnect the adapter, emit engine_stop.
func (u *UserEngine) Shutdown(ctx context.Context) error {
	u.HFT.Stop()

	var firstErr error
	if err := u.Adapter.Disconnect(); err != nil {
		log.Warn().Err(err).Str("tenant", u.Tenant).Msg("user_engine: adapter disconnect failed")
		firstErr = err
	}

	if u.events != nil {
		u.events.PublishEngineEvent(u.Tenant, "stop", nil)
	}

	return firstErr
}
