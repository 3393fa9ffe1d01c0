package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantforge/hft/exchange"
	"github.com/quantforge/hft/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// pendingOrder is the strategy-local record of a resting quote: it exists
// only while the order is open, and is removed on terminal status or
// cancel.
type pendingOrder struct {
	orderID        string
	symbol         string
	side           models.OrderSide
	price          decimal.Decimal
	quantity       decimal.Decimal
	placedAt       time.Time
	cancelTimer    *time.Timer
}

// MarketMaking maintains a pair of resting limit quotes skewed by
// inventory, cancelling on a deadline or an adverse price move. This is
// the hardest component in the system: concurrent quote placement,
// per-order cancel timers, and strict decimal arithmetic so that adverse
// move and inventory thresholds never drift across many thousands of
// ticks.
type MarketMaking struct {
	mu        sync.Mutex
	config    models.EngineConfig
	pending   map[string]*pendingOrder
	inventory decimal.Decimal
}

// NewMarketMaking constructs an uninitialized market-making strategy.
func NewMarketMaking() *MarketMaking {
	return &MarketMaking{pending: make(map[string]*pendingOrder)}
}

func (m *MarketMaking) Name() string { return "market_making" }

func (m *MarketMaking) Init(config models.EngineConfig) error {
	if problems := config.Validate(); len(problems) > 0 {
		return fmt.Errorf("strategy: invalid engine config: %v", problems)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
	return nil
}

// OnResearch runs one market-making cycle: adverse-move cancellation
// followed by inventory-aware quoting, per spec.md §4.4.
func (m *MarketMaking) OnResearch(ctx context.Context, result models.ResearchResult, book models.Orderbook, placer OrderPlacer) error {
	m.mu.Lock()
	cfg := m.config
	m.mu.Unlock()

	bestBid, hasBid := book.BestBid()
	bestAsk, hasAsk := book.BestAsk()
	if !hasBid || !hasAsk {
		return nil
	}
	mid, _ := book.Mid()
	spread, _ := book.Spread()

	minSpread := cfg.MinSpreadPct
	if minSpread == 0 {
		sp, _ := spread.Div(mid).Float64()
		minSpread = sp * 0.5
	}
	spreadFrac, _ := spread.Div(mid).Float64()
	if spreadFrac < minSpread {
		return nil
	}

	m.cancelAdverseOrders(ctx, mid, cfg.AdversePct, placer)

	m.mu.Lock()
	inventory := m.inventory
	m.mu.Unlock()

	threshold := decimal.NewFromFloat(cfg.MaxPos * 0.3)
	adverseSkew := decimal.NewFromFloat(cfg.AdversePct * 0.5)
	quoteSize := fmt.Sprintf("%g", cfg.QuoteSize)

	var placedIDs []string

	quoteBuy := func() {
		price := bestBid.Price.Mul(decimal.NewFromInt(1).Sub(adverseSkew))
		order, err := placer.SubmitOrder(ctx, exchange.OrderParams{
			Symbol: cfg.Symbol, Side: models.OrderSideBuy, Type: models.OrderTypeLimit,
			Quantity: quoteSize, Price: price.String(),
		}, 0, 0, 0)
		if err != nil {
			log.Warn().Err(err).Str("symbol", cfg.Symbol).Msg("strategy: buy quote rejected")
			return
		}
		m.registerPending(ctx, order, price, placer)
		placedIDs = append(placedIDs, order.ID)
	}

	quoteSell := func() {
		price := bestAsk.Price.Mul(decimal.NewFromInt(1).Add(adverseSkew))
		order, err := placer.SubmitOrder(ctx, exchange.OrderParams{
			Symbol: cfg.Symbol, Side: models.OrderSideSell, Type: models.OrderTypeLimit,
			Quantity: quoteSize, Price: price.String(),
		}, 0, 0, 0)
		if err != nil {
			log.Warn().Err(err).Str("symbol", cfg.Symbol).Msg("strategy: sell quote rejected")
			return
		}
		m.registerPending(ctx, order, price, placer)
		placedIDs = append(placedIDs, order.ID)
	}

	switch {
	case inventory.Abs().LessThan(threshold):
		quoteBuy()
		quoteSell()
	case inventory.GreaterThan(threshold):
		quoteSell()
	default: // inventory < -threshold
		quoteBuy()
	}

	if len(placedIDs) > 0 {
		log.Info().Str("symbol", cfg.Symbol).Strs("order_ids", placedIDs).Msg("strategy: quotes placed")
	}
	return nil
}

// cancelAdverseOrders cancels every pending order whose signed move away
// from mid exceeds adversePct.
func (m *MarketMaking) cancelAdverseOrders(ctx context.Context, mid decimal.Decimal, adversePct float64, placer OrderPlacer) {
	m.mu.Lock()
	toCancel := make([]*pendingOrder, 0)
	for _, p := range m.pending {
		move := adverseMove(p.side, p.price, mid)
		if move > adversePct {
			toCancel = append(toCancel, p)
		}
	}
	m.mu.Unlock()

	for _, p := range toCancel {
		m.cancelOne(ctx, p, placer)
	}
}

// adverseMove returns the signed price movement against a resting quote: a
// BUY is adverse when mid falls below its placement price, a SELL is
// adverse when mid rises above its placement price.
func adverseMove(side models.OrderSide, placedPrice, mid decimal.Decimal) float64 {
	if placedPrice.IsZero() {
		return 0
	}
	var diff decimal.Decimal
	if side == models.OrderSideBuy {
		diff = placedPrice.Sub(mid).Div(placedPrice)
	} else {
		diff = mid.Sub(placedPrice).Div(placedPrice)
	}
	f, _ := diff.Float64()
	return f
}

func (m *MarketMaking) registerPending(ctx context.Context, order models.Order, price decimal.Decimal, placer OrderPlacer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := m.config
	p := &pendingOrder{
		orderID: order.ID, symbol: order.Symbol, side: order.Side,
		price: price, quantity: order.Quantity, placedAt: time.Now(),
	}
	deadline := time.Duration(cfg.CancelMs) * time.Millisecond
	p.cancelTimer = time.AfterFunc(deadline, func() {
		m.mu.Lock()
		still, ok := m.pending[order.ID]
		m.mu.Unlock()
		if !ok {
			return // already terminated; idempotent
		}
		m.cancelOne(ctx, still, placer)
	})
	m.pending[order.ID] = p
}

func (m *MarketMaking) cancelOne(ctx context.Context, p *pendingOrder, placer OrderPlacer) {
	if err := placer.CancelOrder(ctx, p.symbol, p.orderID); err != nil {
		log.Warn().Err(err).Str("order_id", p.orderID).Msg("strategy: cancel failed")
	}
	m.removePending(p.orderID)
}

func (m *MarketMaking) removePending(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pending[orderID]; ok {
		if p.cancelTimer != nil {
			p.cancelTimer.Stop()
		}
		delete(m.pending, orderID)
	}
}

// CancelStale runs only the adverse-move cancellation pass, used when the
// driver has decided the latest result's accuracy is too low to place new
// quotes but stale resting ones should still be swept.
func (m *MarketMaking) CancelStale(ctx context.Context, book models.Orderbook, placer OrderPlacer) {
	mid, ok := book.Mid()
	if !ok {
		return
	}
	m.mu.Lock()
	adversePct := m.config.AdversePct
	m.mu.Unlock()
	m.cancelAdverseOrders(ctx, mid, adversePct, placer)
}

func (m *MarketMaking) OnOrderUpdate(update OrderUpdate) {
	m.mu.Lock()
	_, tracked := m.pending[update.Order.ID]
	m.mu.Unlock()
	if !tracked {
		return
	}

	if update.Trade != nil {
		m.mu.Lock()
		m.inventory = m.inventory.Add(update.Trade.SignedQuantity())
		m.mu.Unlock()
	}

	if update.Order.Status.IsTerminal() {
		m.removePending(update.Order.ID)
	}
}

// Shutdown cancels every outstanding quote and stops all timers.
func (m *MarketMaking) Shutdown(ctx context.Context, placer OrderPlacer) {
	m.mu.Lock()
	pending := make([]*pendingOrder, 0, len(m.pending))
	for _, p := range m.pending {
		pending = append(pending, p)
	}
	m.mu.Unlock()

	for _, p := range pending {
		m.cancelOne(ctx, p, placer)
	}
}
