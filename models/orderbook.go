package models

import "github.com/shopspring/decimal"

// OrderbookLevel is a single price/quantity rung of an order book side.
// Both fields are non-negative.
type OrderbookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Orderbook is a point-in-time snapshot of one symbol's resting liquidity.
// Bids are ordered descending by price, asks ascending by price.
// Invariant: when both sides are non-empty, Bids[0].Price < Asks[0].Price.
type Orderbook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderbookLevel `json:"bids"`
	Asks      []OrderbookLevel `json:"asks"`
	UpdateSeq int64            `json:"update_seq"`
}

// BestBid returns the top bid level and true, or a zero level and false if
// the book has no bids.
func (ob Orderbook) BestBid() (OrderbookLevel, bool) {
	if len(ob.Bids) == 0 {
		return OrderbookLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the top ask level and true, or a zero level and false if
// the book has no asks.
func (ob Orderbook) BestAsk() (OrderbookLevel, bool) {
	if len(ob.Asks) == 0 {
		return OrderbookLevel{}, false
	}
	return ob.Asks[0], true
}

// Mid returns the midpoint of the best bid and best ask, and true only when
// both sides of the book are present.
func (ob Orderbook) Mid() (decimal.Decimal, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Spread returns Asks[0].Price - Bids[0].Price, and true only when both
// sides of the book are present.
func (ob Orderbook) Spread() (decimal.Decimal, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}
