package strategy

import (
	"context"
	"testing"

	"github.com/quantforge/hft/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMACrossover_WaitsForFullWindowBeforeTrading(t *testing.T) {
	s := NewMACrossover()
	require.NoError(t, s.Init(testConfig()))
	placer := &fakePlacer{}

	for i := 0; i < 5; i++ {
		require.NoError(t, s.OnResearch(context.Background(), models.ResearchResult{}, testBook(), placer))
	}
	assert.Empty(t, placer.submitted)
}

func TestMACrossover_TradesOnceWindowFull(t *testing.T) {
	s := NewMACrossover()
	require.NoError(t, s.Init(testConfig()))
	placer := &fakePlacer{}

	for i := 0; i < 25; i++ {
		price := decimal.NewFromInt(int64(100 + i))
		b := models.Orderbook{
			Symbol: "BTC/USDT",
			Bids:   []models.OrderbookLevel{{Price: price, Quantity: decimal.NewFromInt(1)}},
			Asks:   []models.OrderbookLevel{{Price: price.Add(decimal.NewFromInt(1)), Quantity: decimal.NewFromInt(1)}},
		}
		require.NoError(t, s.OnResearch(context.Background(), models.ResearchResult{}, b, placer))
	}
	assert.NotEmpty(t, placer.submitted)
}

func TestImbalanceChase_SkipsLowAccuracySignals(t *testing.T) {
	s := NewImbalanceChase()
	require.NoError(t, s.Init(testConfig()))
	placer := &fakePlacer{}

	err := s.OnResearch(context.Background(), models.ResearchResult{Signal: models.SignalBuy, Accuracy: 0.6}, testBook(), placer)
	require.NoError(t, err)
	assert.Empty(t, placer.submitted)
}

func TestImbalanceChase_TradesOnHighConfidenceSignal(t *testing.T) {
	s := NewImbalanceChase()
	require.NoError(t, s.Init(testConfig()))
	placer := &fakePlacer{}

	err := s.OnResearch(context.Background(), models.ResearchResult{Signal: models.SignalSell, Accuracy: 0.9}, testBook(), placer)
	require.NoError(t, err)
	require.Len(t, placer.submitted, 1)
	assert.Equal(t, models.OrderSideSell, placer.submitted[0].Side)
}

func TestNew_UnknownStrategyErrors(t *testing.T) {
	_, err := New("does-not-exist")
	assert.Error(t, err)
}

func TestNew_KnownStrategiesResolve(t *testing.T) {
	for _, name := range Available() {
		s, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
}
