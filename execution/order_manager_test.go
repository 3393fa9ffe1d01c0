package execution

import (
	"context"
	"fmt"
	"testing"

	"github.com/quantforge/hft/exchange"
	"github.com/quantforge/hft/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unknownOrderAdapter wraps a real PaperAdapter but forces CancelOrder to
// fail the way a live exchange adapter does for an order ID it no longer
// recognizes, so the idempotency handling under test is OrderManager's own
// rather than the paper adapter quietly swallowing it.
type unknownOrderAdapter struct {
	*exchange.PaperAdapter
}

func (a *unknownOrderAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return fmt.Errorf("%w: order %s not found", exchange.ErrUnknownOrder, orderID)
}

type fakePublisher struct {
	published []models.Order
}

func (f *fakePublisher) PublishOrderUpdate(tenant string, order models.Order) {
	f.published = append(f.published, order)
}

func newTestOrderManager(t *testing.T) (*OrderManager, *exchange.PaperAdapter, *fakePublisher) {
	t.Helper()
	adapter := exchange.NewPaperAdapter(decimal.NewFromInt(10000))
	adapter.SetMarketPrice("BTC/USDT", models.Orderbook{
		Symbol: "BTC/USDT",
		Bids:   []models.OrderbookLevel{{Price: decimal.NewFromInt(99), Quantity: decimal.NewFromInt(1)}},
		Asks:   []models.OrderbookLevel{{Price: decimal.NewFromInt(101), Quantity: decimal.NewFromInt(1)}},
	})
	pub := &fakePublisher{}
	om := NewOrderManager("alice", adapter, nil, nil, pub)
	return om, adapter, pub
}

func TestSubmitOrder_RejectsMissingSymbol(t *testing.T) {
	om, _, _ := newTestOrderManager(t)
	_, err := om.SubmitOrder(context.Background(), exchange.OrderParams{
		Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: "1",
	}, 100, 0.002, 10000)
	assert.Error(t, err)
}

func TestSubmitOrder_RejectsNonPositiveQuantity(t *testing.T) {
	om, _, _ := newTestOrderManager(t)
	_, err := om.SubmitOrder(context.Background(), exchange.OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: "0",
	}, 100, 0.002, 10000)
	assert.Error(t, err)
}

func TestSubmitOrder_HappyPath_PublishesUpdate(t *testing.T) {
	om, _, pub := newTestOrderManager(t)
	order, err := om.SubmitOrder(context.Background(), exchange.OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: "1",
	}, 100, 0.002, 10000)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, order.Status)
	require.Len(t, pub.published, 1)
	assert.Equal(t, order.ID, pub.published[0].ID)
}

func TestGetOrder_ChecksCacheBeforeAdapter(t *testing.T) {
	om, _, _ := newTestOrderManager(t)
	order, err := om.SubmitOrder(context.Background(), exchange.OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: "1",
	}, 100, 0.002, 10000)
	require.NoError(t, err)

	got, err := om.GetOrder(context.Background(), "BTC/USDT", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestCancelOrder_UpdatesCachedStatus(t *testing.T) {
	om, adapter, _ := newTestOrderManager(t)
	_ = adapter
	order, err := om.SubmitOrder(context.Background(), exchange.OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Quantity: "1", Price: "99",
	}, 100, 0.002, 10000)
	require.NoError(t, err)

	require.NoError(t, om.CancelOrder(context.Background(), "BTC/USDT", order.ID))
	filtered := om.GetOrders(OrderFilter{Status: models.OrderStatusCanceled})
	require.Len(t, filtered, 1)
}

func TestCancelOrder_UnknownOrderFromAdapterIsIdempotent(t *testing.T) {
	om, adapter, _ := newTestOrderManager(t)
	order, err := om.SubmitOrder(context.Background(), exchange.OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Quantity: "1", Price: "99",
	}, 100, 0.002, 10000)
	require.NoError(t, err)

	om.adapter = &unknownOrderAdapter{PaperAdapter: adapter}

	require.NoError(t, om.CancelOrder(context.Background(), "BTC/USDT", order.ID))
	filtered := om.GetOrders(OrderFilter{Status: models.OrderStatusCanceled})
	require.Len(t, filtered, 1)
}

func TestGetOrders_FiltersBySymbolAndStatus(t *testing.T) {
	om, _, _ := newTestOrderManager(t)
	_, err := om.SubmitOrder(context.Background(), exchange.OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: "1",
	}, 100, 0.002, 10000)
	require.NoError(t, err)

	matched := om.GetOrders(OrderFilter{Symbol: "ETH/USDT"})
	assert.Empty(t, matched)

	matched = om.GetOrders(OrderFilter{Symbol: "BTC/USDT", Status: models.OrderStatusFilled})
	assert.Len(t, matched, 1)
}
