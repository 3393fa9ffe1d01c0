package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantforge/hft/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaperAdapter simulates an exchange for dry-run engines. No real money is
// at risk — all fills are instant and deterministic against the last
// price/book fed in through SetMarketPrice.
type PaperAdapter struct {
	mu           sync.Mutex
	cash         decimal.Decimal
	positions    map[string]models.Position
	orders       map[string]models.Order
	orderCounter int
	lastPrice    map[string]decimal.Decimal
	lastBook     map[string]models.Orderbook
	connected    bool
}

// NewPaperAdapter constructs a paper adapter seeded with the given starting
// cash balance.
func NewPaperAdapter(initialCash decimal.Decimal) *PaperAdapter {
	return &PaperAdapter{
		cash:      initialCash,
		positions: make(map[string]models.Position),
		orders:    make(map[string]models.Order),
		lastPrice: make(map[string]decimal.Decimal),
		lastBook:  make(map[string]models.Orderbook),
		connected: true,
	}
}

func (p *PaperAdapter) Name() string { return "paper" }

// SetMarketPrice feeds a synthetic top-of-book into the simulator, used by
// research/strategy code driving paper engines off a live feed from another
// adapter.
func (p *PaperAdapter) SetMarketPrice(symbol string, book models.Orderbook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastBook[symbol] = book
	if mid, ok := book.Mid(); ok {
		p.lastPrice[symbol] = mid
	}
}

func (p *PaperAdapter) GetOrderbook(ctx context.Context, symbol string, depth int) (models.Orderbook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	book, ok := p.lastBook[symbol]
	if !ok {
		return models.Orderbook{}, NewError(404, fmt.Sprintf("no simulated book for %s", symbol), nil)
	}
	if depth > 0 && depth < len(book.Bids) {
		book.Bids = book.Bids[:depth]
	}
	if depth > 0 && depth < len(book.Asks) {
		book.Asks = book.Asks[:depth]
	}
	return book, nil
}

func (p *PaperAdapter) PlaceOrder(ctx context.Context, params OrderParams) (models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return models.Order{}, NewError(503, "paper adapter disconnected", nil)
	}

	qty, err := decimal.NewFromString(params.Quantity)
	if err != nil {
		return models.Order{}, NewError(400, "malformed quantity", err)
	}

	price, ok := p.lastPrice[params.Symbol]
	if params.Type == models.OrderTypeLimit {
		if p, err := decimal.NewFromString(params.Price); err == nil {
			price = p
		}
	}
	if !ok && params.Type == models.OrderTypeMarket {
		return models.Order{}, NewError(400, fmt.Sprintf("no price available for %s", params.Symbol), nil)
	}

	p.orderCounter++
	order := models.Order{
		ID:        fmt.Sprintf("paper-%06d", p.orderCounter),
		ClientID:  params.ClientID,
		Symbol:    params.Symbol,
		Side:      params.Side,
		Type:      params.Type,
		Quantity:  qty,
		Price:     price,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if order.ClientID == "" {
		order.ClientID = uuid.NewString()
	}

	if params.Side == models.OrderSideBuy {
		cost := price.Mul(qty)
		if cost.GreaterThan(p.cash) {
			order.Status = models.OrderStatusRejected
			p.orders[order.ID] = order
			return order, NewError(400, fmt.Sprintf("insufficient cash: need %s, have %s", cost, p.cash), nil)
		}
	}

	order.Status = models.OrderStatusFilled
	order.FilledQuantity = qty
	order.AveragePrice = price
	order.UpdatedAt = time.Now()

	if params.Side == models.OrderSideBuy {
		p.applyFill(params.Symbol, qty, price)
	} else {
		p.applyFill(params.Symbol, qty.Neg(), price)
	}
	p.orders[order.ID] = order

	log.Info().Str("order_id", order.ID).Str("symbol", order.Symbol).
		Str("side", string(order.Side)).Str("quantity", qty.String()).Str("price", price.String()).
		Msg("exchange: paper order filled")

	return order, nil
}

// applyFill updates cash and the net position for a signed quantity (positive
// for a buy, negative for a sell) filled at price.
func (p *PaperAdapter) applyFill(symbol string, signedQty, price decimal.Decimal) {
	notional := signedQty.Mul(price)
	p.cash = p.cash.Sub(notional)

	pos, exists := p.positions[symbol]
	if !exists {
		pos = models.Position{Symbol: symbol}
	}
	newQty := pos.Quantity.Add(signedQty)
	if !pos.Quantity.IsZero() && pos.Quantity.Sign() == signedQty.Sign() && !newQty.IsZero() {
		totalCost := pos.AverageCost.Mul(pos.Quantity).Add(notional)
		pos.AverageCost = totalCost.Div(newQty).Abs()
	} else if pos.Quantity.IsZero() {
		pos.AverageCost = price
	}
	pos.Quantity = newQty
	pos.UpdatedAt = time.Now()

	if pos.Quantity.IsZero() {
		delete(p.positions, symbol)
	} else {
		p.positions[symbol] = pos
	}
}

func (p *PaperAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok {
		// The paper adapter itself treats an unknown order as already
		// settled and returns nil rather than an ErrUnknownOrder error.
		return nil
	}
	if order.Status.IsTerminal() {
		return nil
	}
	order.Status = models.OrderStatusCanceled
	order.UpdatedAt = time.Now()
	p.orders[orderID] = order
	return nil
}

func (p *PaperAdapter) GetOrderStatus(ctx context.Context, symbol, orderID string) (models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok {
		return models.Order{}, NewError(404, fmt.Sprintf("unknown order %s", orderID), nil)
	}
	return order, nil
}

func (p *PaperAdapter) ValidateAPIKey(ctx context.Context) (ValidationResult, error) {
	return ValidationResult{Valid: true, CanTrade: true}, nil
}

// SubscribeOrderbook replays whatever book is fed via SetMarketPrice at a
// fixed cadence. There is no external feed to reconnect to, so this never
// returns until ctx is cancelled.
func (p *PaperAdapter) SubscribeOrderbook(ctx context.Context, symbol string, onUpdate func(OrderbookUpdate)) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			book, ok := p.lastBook[symbol]
			p.mu.Unlock()
			if ok {
				onUpdate(OrderbookUpdate{Book: book})
			}
		}
	}
}

// SubscribeUserData never emits: paper fills are delivered synchronously
// from PlaceOrder, not via a side channel.
func (p *PaperAdapter) SubscribeUserData(ctx context.Context, onUpdate func(UserDataEvent)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *PaperAdapter) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}
