// Package exchange provides the ExchangeAdapter capability — a typed
// interface over a spot exchange: orderbook snapshots, order placement,
// cancellation, status, and streaming subscriptions. Wire specifics of any
// concrete adapter are out of scope beyond the HMAC-signed-request
// requirement; callers depend only on this interface.
package exchange

import (
	"context"

	"github.com/quantforge/hft/models"
)

// OrderParams describes a new order to place.
type OrderParams struct {
	ClientID string
	Symbol   string
	Side     models.OrderSide
	Type     models.OrderType
	Quantity string // decimal string, exchange-precision sensitive
	Price    string // decimal string; ignored for MARKET orders
}

// ValidationResult is the outcome of validating a tenant's API credentials.
type ValidationResult struct {
	Valid       bool
	CanTrade    bool
	CanWithdraw bool
	Error       string
}

// OrderbookUpdate is delivered to orderbook stream subscribers.
type OrderbookUpdate struct {
	Book models.Orderbook
	Err  error
}

// UserDataEvent is delivered to user-data stream subscribers: order status
// changes and fills.
type UserDataEvent struct {
	Order *models.Order
	Trade *models.Trade
	Err   error
}

// Adapter is the capability every concrete exchange integration (or the
// in-memory paper adapter) implements. One instance is owned exclusively
// by a single UserEngine.
type Adapter interface {
	// Name identifies the adapter implementation, e.g. "binance", "paper".
	Name() string

	// GetOrderbook fetches a depth-level snapshot for symbol.
	GetOrderbook(ctx context.Context, symbol string, depth int) (models.Orderbook, error)

	// PlaceOrder submits a new order and returns it in canonical shape.
	PlaceOrder(ctx context.Context, params OrderParams) (models.Order, error)

	// CancelOrder cancels a resting order. Idempotent: an UNKNOWN_ORDER
	// response from the exchange is treated as success by the caller
	// (OrderManager), not by the adapter itself.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// GetOrderStatus fetches the current state of one order.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (models.Order, error)

	// SubscribeOrderbook streams book updates for symbol until ctx is
	// cancelled. onUpdate is invoked from the adapter's own goroutine.
	SubscribeOrderbook(ctx context.Context, symbol string, onUpdate func(OrderbookUpdate)) error

	// SubscribeUserData streams order/fill events for the authenticated
	// account until ctx is cancelled.
	SubscribeUserData(ctx context.Context, onUpdate func(UserDataEvent)) error

	// ValidateAPIKey checks the configured credentials against the
	// exchange without placing an order.
	ValidateAPIKey(ctx context.Context) (ValidationResult, error)

	// Disconnect tears down any open streaming connections. Safe to call
	// more than once.
	Disconnect() error
}
