// Package models provides shared domain types for the trading engine.
// These types are used across all packages for consistent data representation.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus represents the current state of an order.
//
// Lifecycle: NEW -> (PARTIALLY_FILLED)* -> (FILLED | CANCELED | REJECTED).
// A terminal status is final; transitions out of a terminal status are a bug.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status is a final state.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// Order represents a single order on the exchange, in the canonical shape
// every ExchangeAdapter response is translated into.
type Order struct {
	ID             string          `json:"id" db:"id"`
	ClientID       string          `json:"client_id" db:"client_id"`
	Tenant         string          `json:"tenant" db:"tenant"`
	Symbol         string          `json:"symbol" db:"symbol"`
	Side           OrderSide       `json:"side" db:"side"`
	Type           OrderType       `json:"type" db:"type"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	Price          decimal.Decimal `json:"price" db:"price"`
	Status         OrderStatus     `json:"status" db:"status"`
	FilledQuantity decimal.Decimal `json:"filled_quantity" db:"filled_quantity"`
	AveragePrice   decimal.Decimal `json:"average_price" db:"average_price"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Trade represents a single fill against an order.
type Trade struct {
	ID         string          `json:"id" db:"id"`
	OrderID    string          `json:"order_id" db:"order_id"`
	Tenant     string          `json:"tenant" db:"tenant"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       OrderSide       `json:"side" db:"side"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	Price      decimal.Decimal `json:"price" db:"price"`
	ExecutedAt time.Time       `json:"executed_at" db:"executed_at"`
}

// SignedQuantity returns the trade quantity signed by side: positive for a
// buy fill, negative for a sell fill. Used to update strategy inventory.
func (t Trade) SignedQuantity() decimal.Decimal {
	if t.Side == OrderSideSell {
		return t.Quantity.Neg()
	}
	return t.Quantity
}

// Position is a derived bookkeeping record of net holdings in a symbol.
type Position struct {
	Symbol      string          `json:"symbol" db:"symbol"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost" db:"average_cost"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
