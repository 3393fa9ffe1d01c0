package analysis

import (
	"testing"
	"time"

	"github.com/quantforge/hft/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestCalculateMetrics(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name           string
		orders         []models.Order
		initialBalance float64
		expected       PerformanceMetrics
	}{
		{
			name:           "empty orders",
			orders:         []models.Order{},
			initialBalance: 1000.0,
			expected:       PerformanceMetrics{},
		},
		{
			name: "single profitable round trip",
			orders: []models.Order{
				{Symbol: "BTC/USDT", Side: models.OrderSideBuy, Status: models.OrderStatusFilled, FilledQuantity: dec("1"), AveragePrice: dec("100"), UpdatedAt: now.Add(-2 * time.Hour)},
				{Symbol: "BTC/USDT", Side: models.OrderSideSell, Status: models.OrderStatusFilled, FilledQuantity: dec("1"), AveragePrice: dec("110"), UpdatedAt: now},
			},
			initialBalance: 1000.0,
			expected: PerformanceMetrics{
				TotalTrades:   1,
				WinningTrades: 1,
				WinRate:       1.0,
				TotalPnL:      10.0,
				AveragePnL:    10.0,
				BestTrade:     10.0,
			},
		},
		{
			name: "mixed win and loss",
			orders: []models.Order{
				{Symbol: "BTC/USDT", Side: models.OrderSideBuy, Status: models.OrderStatusFilled, FilledQuantity: dec("1"), AveragePrice: dec("100"), UpdatedAt: now.Add(-4 * time.Hour)},
				{Symbol: "BTC/USDT", Side: models.OrderSideSell, Status: models.OrderStatusFilled, FilledQuantity: dec("1"), AveragePrice: dec("110"), UpdatedAt: now.Add(-3 * time.Hour)},
				{Symbol: "ETH/USDT", Side: models.OrderSideBuy, Status: models.OrderStatusFilled, FilledQuantity: dec("5"), AveragePrice: dec("20"), UpdatedAt: now.Add(-2 * time.Hour)},
				{Symbol: "ETH/USDT", Side: models.OrderSideSell, Status: models.OrderStatusFilled, FilledQuantity: dec("5"), AveragePrice: dec("19"), UpdatedAt: now.Add(-1 * time.Hour)},
			},
			initialBalance: 1000.0,
			expected: PerformanceMetrics{
				TotalTrades:   2,
				WinningTrades: 1,
				LosingTrades:  1,
				WinRate:       0.5,
				TotalPnL:      5.0,
				AveragePnL:    2.5,
				BestTrade:     10.0,
				WorstTrade:    -5.0,
				ProfitFactor:  2.0,
			},
		},
		{
			name: "sell with no open position is ignored",
			orders: []models.Order{
				{Symbol: "BTC/USDT", Side: models.OrderSideSell, Status: models.OrderStatusFilled, FilledQuantity: dec("1"), AveragePrice: dec("110"), UpdatedAt: now},
			},
			initialBalance: 1000.0,
			expected:       PerformanceMetrics{},
		},
		{
			name: "unfilled orders are excluded",
			orders: []models.Order{
				{Symbol: "BTC/USDT", Side: models.OrderSideBuy, Status: models.OrderStatusNew, FilledQuantity: dec("1"), AveragePrice: dec("100"), UpdatedAt: now},
			},
			initialBalance: 1000.0,
			expected:       PerformanceMetrics{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateMetrics(tt.orders, tt.initialBalance)

			assert.Equal(t, tt.expected.TotalTrades, result.TotalTrades)
			assert.Equal(t, tt.expected.WinningTrades, result.WinningTrades)
			assert.Equal(t, tt.expected.LosingTrades, result.LosingTrades)
			assert.InDelta(t, tt.expected.WinRate, result.WinRate, 0.001)
			assert.InDelta(t, tt.expected.TotalPnL, result.TotalPnL, 0.001)
			assert.InDelta(t, tt.expected.AveragePnL, result.AveragePnL, 0.001)

			if tt.expected.ProfitFactor != 0 {
				assert.InDelta(t, tt.expected.ProfitFactor, result.ProfitFactor, 0.001)
			}
		})
	}
}
