// Package strategy implements the Strategy capability (C7): consumers of a
// ResearchResult and a fresh orderbook that emit side-effecting order
// actions. MarketMaking is the hard component; the others are lighter
// orderbook-driven variants sharing the same capability set.
package strategy

import (
	"context"
	"fmt"

	"github.com/quantforge/hft/exchange"
	"github.com/quantforge/hft/models"
)

// OrderUpdate is forwarded to a running strategy whenever one of its own
// orders changes state.
type OrderUpdate struct {
	Order models.Order
	Trade *models.Trade
}

// Strategy is the capability set every variant implements: init, consume a
// tick, react to order updates, and shut down cleanly.
type Strategy interface {
	// Name identifies the strategy, e.g. "market_making".
	Name() string

	// Init configures the strategy for one tenant/symbol pair.
	Init(config models.EngineConfig) error

	// OnResearch is invoked once per HFT cycle with the latest research
	// result and orderbook; it may place or cancel orders via placer.
	OnResearch(ctx context.Context, result models.ResearchResult, book models.Orderbook, placer OrderPlacer) error

	// OnOrderUpdate is invoked whenever one of the strategy's own orders
	// changes state (fill, cancel, rejection).
	OnOrderUpdate(update OrderUpdate)

	// CancelStale runs only the cancellation half of a cycle, with no new
	// placement: the driver calls this instead of OnResearch when a fresh
	// result's accuracy falls below the placement threshold. Strategies
	// that never rest orders treat this as a no-op.
	CancelStale(ctx context.Context, book models.Orderbook, placer OrderPlacer)

	// Shutdown cancels any outstanding orders and releases timers.
	Shutdown(ctx context.Context, placer OrderPlacer)
}

// OrderPlacer is the subset of OrderManager a strategy needs: place and
// cancel, nothing else. Keeping it narrow means strategies never reach
// past the order lifecycle into persistence or risk directly.
type OrderPlacer interface {
	SubmitOrder(ctx context.Context, params exchange.OrderParams, midPrice, assumedAdverseMove, balance float64) (models.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// Factory constructs a fresh, uninitialized strategy instance.
type Factory func() Strategy

var registry = map[string]Factory{
	"market_making":  func() Strategy { return NewMarketMaking() },
	"ma_crossover":    func() Strategy { return NewMACrossover() },
	"imbalance_chase": func() Strategy { return NewImbalanceChase() },
}

// New constructs a strategy by registered name.
func New(name string) (Strategy, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown strategy %q (available: %v)", name, Available())
	}
	return factory(), nil
}

// Available lists every registered strategy name.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
