// Package execution provides order lifecycle management (C5 OrderManager):
// validation, risk-gated submission, persistence, and audit logging for a
// single tenant's orders against its ExchangeAdapter.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quantforge/hft/exchange"
	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/risk"
	"github.com/quantforge/hft/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// UpdatePublisher broadcasts an order update to a tenant's connected
// clients. Satisfied by *realtime.EventBus; kept as an interface here so
// execution never imports realtime's connection-management concerns.
type UpdatePublisher interface {
	PublishOrderUpdate(tenant string, order models.Order)
}

// OrderManager owns the order lifecycle for exactly one tenant: it
// validates, risk-checks, submits to the adapter, persists, and logs every
// order it handles.
type OrderManager struct {
	tenant  string
	adapter exchange.Adapter
	risk    *risk.Manager
	store   store.DataStore
	pub     UpdatePublisher

	mu     sync.RWMutex
	orders map[string]models.Order
}

// NewOrderManager constructs an order manager for one tenant. pub and ds
// may be nil when no realtime fan-out or persistence is wired (e.g. tests).
func NewOrderManager(tenant string, adapter exchange.Adapter, riskMgr *risk.Manager, ds store.DataStore, pub UpdatePublisher) *OrderManager {
	return &OrderManager{
		tenant:  tenant,
		adapter: adapter,
		risk:    riskMgr,
		store:   ds,
		pub:     pub,
		orders:  make(map[string]models.Order),
	}
}

func (om *OrderManager) validate(p exchange.OrderParams) error {
	if p.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	qty, err := decimal.NewFromString(p.Quantity)
	if err != nil || !qty.IsPositive() {
		return fmt.Errorf("quantity must be a positive decimal")
	}
	if p.Type == models.OrderTypeLimit {
		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("limit orders require a positive price")
		}
	}
	return nil
}

// SubmitOrder validates, risk-checks, and places an order. ctx carries
// audit fields (requestor IP, API key ID, or the engine marker from
// NewEngineContext) for the log line below. midPrice and balance feed the
// risk decision; assumedAdverseMove follows the same units CanTrade
// expects.
func (om *OrderManager) SubmitOrder(ctx context.Context, p exchange.OrderParams, midPrice, assumedAdverseMove, balance float64) (models.Order, error) {
	if err := om.validate(p); err != nil {
		return models.Order{}, fmt.Errorf("order validation failed: %w", err)
	}

	if om.risk != nil {
		qty, _ := decimal.NewFromString(p.Quantity)
		tradeSize, _ := qty.Float64()
		decision := om.risk.CanTrade(om.tenant, tradeSize, midPrice, assumedAdverseMove, balance)
		if !decision.Allowed {
			return models.Order{}, fmt.Errorf("risk check failed: %s", decision.Reason)
		}
	}

	result, err := om.adapter.PlaceOrder(ctx, p)
	if om.risk != nil {
		om.risk.RecordTradeResult(om.tenant, 0, balance, err == nil)
	}
	if err != nil {
		om.logExecution(result, fmt.Sprintf("rejected: %v", err))
		return models.Order{}, fmt.Errorf("adapter rejected order: %w", err)
	}

	om.mu.Lock()
	om.orders[result.ID] = result
	om.mu.Unlock()

	om.logExecution(result, "submitted")

	log.Info().Str("tenant", om.tenant).Str("order_id", result.ID).Str("symbol", result.Symbol).
		Str("side", string(result.Side)).Str("quantity", result.Quantity.String()).
		Str("status", string(result.Status)).Str("user_ip", auditIPFromCtx(ctx)).
		Str("api_key_id", auditKeyIDFromCtx(ctx)).Msg("execution: order submitted")

	if om.pub != nil {
		om.pub.PublishOrderUpdate(om.tenant, result)
	}

	return result, nil
}

func (om *OrderManager) logExecution(order models.Order, reason string) {
	if om.store == nil {
		return
	}
	if err := om.store.SaveExecutionLog(om.tenant, order, reason); err != nil {
		log.Error().Err(err).Str("tenant", om.tenant).Msg("execution: failed to persist execution log")
	}
}

// CancelOrder cancels a resting order. An UNKNOWN_ORDER response from the
// adapter is not surfaced as an error — the order is already gone.
func (om *OrderManager) CancelOrder(ctx context.Context, symbol, orderID string) error {
	log.Info().Str("tenant", om.tenant).Str("order_id", orderID).
		Str("user_ip", auditIPFromCtx(ctx)).Str("api_key_id", auditKeyIDFromCtx(ctx)).
		Msg("execution: cancellation requested")

	if err := om.adapter.CancelOrder(ctx, symbol, orderID); err != nil {
		if errors.Is(err, exchange.ErrUnknownOrder) {
			log.Info().Str("tenant", om.tenant).Str("order_id", orderID).
				Msg("execution: cancel target unknown to adapter, treating as already-cancelled")
		} else {
			log.Warn().Err(err).Str("tenant", om.tenant).Str("order_id", orderID).
				Msg("execution: cancellation failed")
			return err
		}
	}

	om.mu.Lock()
	if order, ok := om.orders[orderID]; ok {
		order.Status = models.OrderStatusCanceled
		om.orders[orderID] = order
	}
	om.mu.Unlock()
	return nil
}

// GetOrder returns an order from the local cache, falling back to the
// adapter when not yet seen (e.g. after a restart before the engine
// manager has replayed persisted state).
func (om *OrderManager) GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	om.mu.RLock()
	order, ok := om.orders[orderID]
	om.mu.RUnlock()
	if ok {
		return order, nil
	}
	return om.adapter.GetOrderStatus(ctx, symbol, orderID)
}

// OrderFilter narrows GetOrders to a symbol and/or status.
type OrderFilter struct {
	Symbol string
	Status models.OrderStatus
}

// GetOrders returns every cached order matching filter.
func (om *OrderManager) GetOrders(filter OrderFilter) []models.Order {
	om.mu.RLock()
	defer om.mu.RUnlock()

	matched := make([]models.Order, 0, len(om.orders))
	for _, order := range om.orders {
		if filter.Symbol != "" && order.Symbol != filter.Symbol {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, order)
	}
	return matched
}
