package strategy

import (
	"context"
	"sync"
	"testing"

	"github.com/quantforge/hft/exchange"
	"github.com/quantforge/hft/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	mu        sync.Mutex
	submitted []exchange.OrderParams
	canceled  []string
	nextID    int
}

func (f *fakePlacer) SubmitOrder(ctx context.Context, p exchange.OrderParams, midPrice, assumedAdverseMove, balance float64) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.submitted = append(f.submitted, p)
	qty, _ := decimal.NewFromString(p.Quantity)
	price, _ := decimal.NewFromString(p.Price)
	return models.Order{
		ID: "o-" + string(rune('0'+f.nextID)), Symbol: p.Symbol, Side: p.Side, Type: p.Type,
		Quantity: qty, Price: price, Status: models.OrderStatusNew,
	}, nil
}

func (f *fakePlacer) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, orderID)
	return nil
}

func testConfig() models.EngineConfig {
	return models.EngineConfig{
		Symbol: "BTC/USDT", QuoteSize: 0.01, AdversePct: 0.01, CancelMs: 60000,
		MaxPos: 1, MaxTradesPerDay: 1000, Enabled: true,
	}
}

func testBook() models.Orderbook {
	return models.Orderbook{
		Symbol: "BTC/USDT",
		Bids:   []models.OrderbookLevel{{Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}},
		Asks:   []models.OrderbookLevel{{Price: decimal.NewFromInt(101), Quantity: decimal.NewFromInt(1)}},
	}
}

func TestMarketMaking_NeutralInventoryQuotesBothSides(t *testing.T) {
	mm := NewMarketMaking()
	require.NoError(t, mm.Init(testConfig()))
	placer := &fakePlacer{}

	err := mm.OnResearch(context.Background(), models.ResearchResult{Signal: models.SignalBuy, Accuracy: 0.9}, testBook(), placer)
	require.NoError(t, err)
	assert.Len(t, placer.submitted, 2)
}

func TestMarketMaking_LongInventoryQuotesSellOnly(t *testing.T) {
	mm := NewMarketMaking()
	require.NoError(t, mm.Init(testConfig()))
	mm.inventory = decimal.NewFromFloat(0.5) // > maxPos*0.3
	placer := &fakePlacer{}

	err := mm.OnResearch(context.Background(), models.ResearchResult{}, testBook(), placer)
	require.NoError(t, err)
	require.Len(t, placer.submitted, 1)
	assert.Equal(t, models.OrderSideSell, placer.submitted[0].Side)
}

func TestMarketMaking_ShortInventoryQuotesBuyOnly(t *testing.T) {
	mm := NewMarketMaking()
	require.NoError(t, mm.Init(testConfig()))
	mm.inventory = decimal.NewFromFloat(-0.5)
	placer := &fakePlacer{}

	err := mm.OnResearch(context.Background(), models.ResearchResult{}, testBook(), placer)
	require.NoError(t, err)
	require.Len(t, placer.submitted, 1)
	assert.Equal(t, models.OrderSideBuy, placer.submitted[0].Side)
}

func TestMarketMaking_EmptyBookIsNoOp(t *testing.T) {
	mm := NewMarketMaking()
	require.NoError(t, mm.Init(testConfig()))
	placer := &fakePlacer{}

	err := mm.OnResearch(context.Background(), models.ResearchResult{}, models.Orderbook{Symbol: "BTC/USDT"}, placer)
	require.NoError(t, err)
	assert.Empty(t, placer.submitted)
}

func TestAdverseMove_BuySideComputesCorrectSign(t *testing.T) {
	// Mid falling below the buy's placement is adverse: the resting buy is
	// now priced above the market it would fill into.
	placed := decimal.NewFromInt(100)
	mid := decimal.NewFromInt(90)
	move := adverseMove(models.OrderSideBuy, placed, mid)
	assert.Greater(t, move, 0.0)
}

func TestAdverseMove_BuySideMidRisingIsFavourable(t *testing.T) {
	placed := decimal.NewFromInt(100)
	mid := decimal.NewFromInt(110)
	move := adverseMove(models.OrderSideBuy, placed, mid)
	assert.Less(t, move, 0.0)
}

func TestAdverseMove_SellSideComputesCorrectSign(t *testing.T) {
	// Mid rising above the sell's placement is adverse: the resting sell
	// is now priced below the market it would fill into.
	placed := decimal.NewFromInt(100)
	mid := decimal.NewFromInt(110)
	move := adverseMove(models.OrderSideSell, placed, mid)
	assert.Greater(t, move, 0.0)
}

// TestCancelAdverseOrders_ScenarioC locks in the seed-test scenario from the
// external interface table: BUY @99.9 and SELL @100.2001 resting, adversePct
// 0.002, mid moves to 100.5. The SELL has moved against it (mid rose past
// the ask) and is cancelled; the BUY has moved in its favour and stays.
func TestCancelAdverseOrders_ScenarioC(t *testing.T) {
	mm := NewMarketMaking()
	cfg := testConfig()
	cfg.AdversePct = 0.002
	require.NoError(t, mm.Init(cfg))

	mm.pending = map[string]*pendingOrder{
		"buy-1":  {orderID: "buy-1", symbol: cfg.Symbol, side: models.OrderSideBuy, price: decimal.NewFromFloat(99.9)},
		"sell-1": {orderID: "sell-1", symbol: cfg.Symbol, side: models.OrderSideSell, price: decimal.NewFromFloat(100.2001)},
	}

	placer := &fakePlacer{}
	mm.cancelAdverseOrders(context.Background(), decimal.NewFromFloat(100.5), cfg.AdversePct, placer)

	assert.Equal(t, []string{"sell-1"}, placer.canceled)
	assert.Contains(t, mm.pending, "buy-1")
	assert.NotContains(t, mm.pending, "sell-1")
}

func TestMarketMaking_OnOrderUpdate_TracksInventoryOnFill(t *testing.T) {
	mm := NewMarketMaking()
	require.NoError(t, mm.Init(testConfig()))
	placer := &fakePlacer{}
	require.NoError(t, mm.OnResearch(context.Background(), models.ResearchResult{}, testBook(), placer))

	var id string
	for orderID := range mm.pending {
		id = orderID
		break
	}
	require.NotEmpty(t, id)

	trade := &models.Trade{Side: models.OrderSideBuy, Quantity: decimal.NewFromFloat(0.01)}
	mm.OnOrderUpdate(OrderUpdate{Order: models.Order{ID: id, Status: models.OrderStatusFilled}, Trade: trade})

	assert.True(t, mm.inventory.Equal(decimal.NewFromFloat(0.01)))
	assert.NotContains(t, mm.pending, id)
}

func TestMarketMaking_Shutdown_CancelsAllPending(t *testing.T) {
	mm := NewMarketMaking()
	require.NoError(t, mm.Init(testConfig()))
	placer := &fakePlacer{}
	require.NoError(t, mm.OnResearch(context.Background(), models.ResearchResult{}, testBook(), placer))

	mm.Shutdown(context.Background(), placer)
	assert.Empty(t, mm.pending)
	assert.NotEmpty(t, placer.canceled)
}
