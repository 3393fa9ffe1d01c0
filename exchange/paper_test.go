package exchange

import (
	"context"
	"testing"

	"github.com/quantforge/hft/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookAt(symbol string, bid, ask float64) models.Orderbook {
	return models.Orderbook{
		Symbol: symbol,
		Bids:   []models.OrderbookLevel{{Price: decimal.NewFromFloat(bid), Quantity: decimal.NewFromInt(1)}},
		Asks:   []models.OrderbookLevel{{Price: decimal.NewFromFloat(ask), Quantity: decimal.NewFromInt(1)}},
	}
}

func TestPaperAdapter_PlaceOrder_MarketBuyFillsAtMid(t *testing.T) {
	p := NewPaperAdapter(decimal.NewFromInt(10000))
	p.SetMarketPrice("BTC/USDT", bookAt("BTC/USDT", 99, 101))

	order, err := p.PlaceOrder(context.Background(), OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, order.Status)
	assert.True(t, order.AveragePrice.Equal(decimal.NewFromInt(100)))
}

func TestPaperAdapter_PlaceOrder_RejectsInsufficientCash(t *testing.T) {
	p := NewPaperAdapter(decimal.NewFromInt(50))
	p.SetMarketPrice("BTC/USDT", bookAt("BTC/USDT", 99, 101))

	order, err := p.PlaceOrder(context.Background(), OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: "1",
	})
	require.Error(t, err)
	assert.Equal(t, models.OrderStatusRejected, order.Status)
}

func TestPaperAdapter_PlaceOrder_NoBookIsError(t *testing.T) {
	p := NewPaperAdapter(decimal.NewFromInt(10000))
	_, err := p.PlaceOrder(context.Background(), OrderParams{
		Symbol: "ETH/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: "1",
	})
	assert.Error(t, err)
}

func TestPaperAdapter_BuyThenSell_ClosesPosition(t *testing.T) {
	p := NewPaperAdapter(decimal.NewFromInt(10000))
	p.SetMarketPrice("BTC/USDT", bookAt("BTC/USDT", 99, 101))

	_, err := p.PlaceOrder(context.Background(), OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: "1",
	})
	require.NoError(t, err)

	_, err = p.PlaceOrder(context.Background(), OrderParams{
		Symbol: "BTC/USDT", Side: models.OrderSideSell, Type: models.OrderTypeMarket, Quantity: "1",
	})
	require.NoError(t, err)

	_, exists := p.positions["BTC/USDT"]
	assert.False(t, exists)
}

func TestPaperAdapter_CancelOrder_UnknownIDIsIdempotent(t *testing.T) {
	p := NewPaperAdapter(decimal.NewFromInt(10000))
	err := p.CancelOrder(context.Background(), "BTC/USDT", "does-not-exist")
	assert.NoError(t, err)
}

func TestPaperAdapter_GetOrderStatus_UnknownIDErrors(t *testing.T) {
	p := NewPaperAdapter(decimal.NewFromInt(10000))
	_, err := p.GetOrderStatus(context.Background(), "BTC/USDT", "does-not-exist")
	assert.Error(t, err)
}

func TestPaperAdapter_ValidateAPIKey_AlwaysValid(t *testing.T) {
	p := NewPaperAdapter(decimal.NewFromInt(10000))
	res, err := p.ValidateAPIKey(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Valid)
}
