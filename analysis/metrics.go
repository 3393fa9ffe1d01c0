// Package analysis computes realized-PnL performance metrics from a
// tenant's filled order history, for the performance reporting endpoint.
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/quantforge/hft/models"
)

// PerformanceMetrics holds aggregate performance statistics for one tenant
// over the orders passed to CalculateMetrics.
type PerformanceMetrics struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	TotalPnL        float64 `json:"total_pnl"`
	AveragePnL      float64 `json:"average_pnl"`
	BestTrade       float64 `json:"best_trade"`
	WorstTrade      float64 `json:"worst_trade"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	ProfitFactor    float64 `json:"profit_factor"`
	AverageHoldTime string  `json:"average_hold_time"`
	AvgHoldTimeSecs float64 `json:"avg_hold_time_secs"`
}

// CalculateMetrics computes performance metrics from a tenant's filled
// orders using a weighted-average-cost basis per symbol. Long-only: a buy
// adds to the position's cost basis, a sell realizes PnL against it.
// Short positions are not tracked — a sell with no open quantity is
// ignored rather than opening a short, since market-making adapters flatten
// inventory through their own cancel/requote cycle rather than carrying
// directional shorts across ticks.
func CalculateMetrics(orders []models.Order, initialBalance float64) PerformanceMetrics {
	var filled []models.Order
	for _, o := range orders {
		if o.Status == models.OrderStatusFilled {
			filled = append(filled, o)
		}
	}
	sort.Slice(filled, func(i, j int) bool {
		return filled[i].UpdatedAt.Before(filled[j].UpdatedAt)
	})

	metrics := PerformanceMetrics{}

	type position struct {
		avgPrice float64
		quantity float64
		openTime time.Time
	}
	positions := make(map[string]position)

	var realizedPnLs []float64
	var equityCurve []float64
	currentEquity := initialBalance
	equityCurve = append(equityCurve, currentEquity)

	var totalHoldDuration time.Duration
	var closedTradeCount int

	grossProfit := 0.0
	grossLoss := 0.0

	for _, order := range filled {
		qty, _ := order.FilledQuantity.Float64()
		if qty == 0 {
			qty, _ = order.Quantity.Float64()
		}
		avgPrice, _ := order.AveragePrice.Float64()
		if avgPrice == 0 {
			avgPrice, _ = order.Price.Float64()
		}

		symbol := order.Symbol
		pos := positions[symbol]

		switch order.Side {
		case models.OrderSideBuy:
			totalCost := (pos.quantity * pos.avgPrice) + (qty * avgPrice)
			totalQty := pos.quantity + qty
			if totalQty > 0 {
				pos.avgPrice = totalCost / totalQty
			} else {
				pos.avgPrice = 0
			}
			pos.quantity = totalQty
			if pos.quantity > 0 && pos.openTime.IsZero() {
				pos.openTime = order.UpdatedAt
			}
			positions[symbol] = pos

		case models.OrderSideSell:
			if pos.quantity <= 0 {
				continue
			}
			sellQty := math.Min(qty, pos.quantity)
			pnl := (avgPrice - pos.avgPrice) * sellQty

			realizedPnLs = append(realizedPnLs, pnl)
			currentEquity += pnl
			equityCurve = append(equityCurve, currentEquity)

			if pnl > 0 {
				metrics.WinningTrades++
				grossProfit += pnl
			} else {
				metrics.LosingTrades++
				grossLoss += math.Abs(pnl)
			}
			metrics.TotalPnL += pnl
			closedTradeCount++

			if pnl > metrics.BestTrade {
				metrics.BestTrade = pnl
			}
			if pnl < metrics.WorstTrade {
				metrics.WorstTrade = pnl
			}

			if !pos.openTime.IsZero() {
				totalHoldDuration += order.UpdatedAt.Sub(pos.openTime)
			}

			pos.quantity -= sellQty
			if pos.quantity <= 1e-8 {
				pos.quantity = 0
				pos.avgPrice = 0
				pos.openTime = time.Time{}
			}
			positions[symbol] = pos
		}
	}

	metrics.TotalTrades = closedTradeCount

	if closedTradeCount > 0 {
		metrics.WinRate = float64(metrics.WinningTrades) / float64(closedTradeCount)
		metrics.AveragePnL = metrics.TotalPnL / float64(closedTradeCount)
		metrics.AvgHoldTimeSecs = totalHoldDuration.Seconds() / float64(closedTradeCount)
		metrics.AverageHoldTime = (time.Duration(metrics.AvgHoldTimeSecs) * time.Second).String()
	}

	if grossLoss > 0 {
		metrics.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		metrics.ProfitFactor = 0.0
	}

	metrics.MaxDrawdown = calculateMaxDrawdown(equityCurve)
	metrics.SharpeRatio = calculateSharpeRatio(realizedPnLs)

	return metrics
}

func calculateMaxDrawdown(equityCurve []float64) float64 {
	maxPeak := -math.MaxFloat64
	maxDrawdown := 0.0

	for _, equity := range equityCurve {
		if equity > maxPeak {
			maxPeak = equity
		}
		drawdown := (maxPeak - equity) / maxPeak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0.0
	}

	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-mean, 2)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if stdDev == 0 {
		return 0.0
	}

	return mean / stdDev
}
