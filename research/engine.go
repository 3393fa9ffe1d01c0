package research

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/utils/indicators"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultImbalanceThreshold = 0.20
	minImbalanceThreshold     = 0.05
	maxImbalanceThreshold     = 0.40

	liquidityGateAccuracyCap = 0.49
	topLevelsForImbalance    = 10
	topLevelsForDepth        = 5
)

// Engine computes a ResearchResult from a live orderbook snapshot plus the
// rolling history it has itself accumulated for the symbol. One Engine is
// owned by exactly one UserEngine; its histories are never shared across
// tenants.
type Engine struct {
	mu        sync.Mutex
	histories map[string]*PerSymbolHistory
	externals []ExternalFeatureProvider
}

// NewEngine constructs a research engine. externals may be empty — missing
// external-feature providers simply contribute nothing to accuracy.
func NewEngine(externals ...ExternalFeatureProvider) *Engine {
	return &Engine{
		histories: make(map[string]*PerSymbolHistory),
		externals: externals,
	}
}

func (e *Engine) historyFor(symbol string) *PerSymbolHistory {
	h, ok := e.histories[symbol]
	if !ok {
		h = newPerSymbolHistory()
		e.histories[symbol] = h
	}
	return h
}

// Run derives a ResearchResult for symbol from book. Missing either side of
// the book is not an error: it yields a neutral HOLD result per the
// liquidity-gate failure semantics, and the snapshot is not journalled by
// the caller in that case.
func (e *Engine) Run(ctx context.Context, symbol string, book models.Orderbook) models.ResearchResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	bestBid, hasBid := book.BestBid()
	bestAsk, hasAsk := book.BestAsk()
	if !hasBid || !hasAsk {
		return models.ResearchResult{Symbol: symbol, Signal: models.SignalHold, Accuracy: 0.5}
	}
	mid, _ := book.Mid()
	midF, _ := mid.Float64()
	bidF, _ := bestBid.Price.Float64()
	askF, _ := bestAsk.Price.Float64()

	h := e.historyFor(symbol)

	imbalance := computeImbalance(book)
	spreadPct := (askF - bidF) / midF * 100
	depth := computeDepth(book)
	volume := depth // proxy used uniformly, per the teacher's micro-signal convention

	var momentum float64
	if prevMid, ok := h.previousMid(); ok && prevMid != 0 {
		momentum = (midF - prevMid) / prevMid
	}
	volatility := computeVolatility(h.mids.values())

	micro := models.MicroSignals{
		SpreadPct: spreadPct, Volume: volume, PriceMomentum: momentum, Depth: depth, Volatility: volatility,
	}

	imbalanceThreshold := dynamicImbalanceThreshold(h.absImbalance.values())
	spreadWideCutoff := math.Inf(1)
	if spreads := h.spreadPct.values(); len(spreads) > 0 {
		spreadWideCutoff = percentile(spreads, 0.80)
	}
	depthLow := median(h.depth.values()) * 0.5
	volumeLow := median(h.volume.values()) * 0.5

	features := fetchAll(ctx, e.externals, symbol)
	rsiConfirm := rsiConfirmation(h.mids.values(), imbalance)
	accuracy := scoreAccuracy(imbalance, spreadPct, volume, volumeLow, depth, depthLow, momentum, rsiConfirm, features)

	if spreadPct > spreadWideCutoff || depth < depthLow || volume < volumeLow {
		accuracy = math.Min(accuracy, liquidityGateAccuracyCap)
	}
	accuracy = models.ClampAccuracy(accuracy)

	signal := models.SignalHold
	switch {
	case accuracy < 0.5:
		signal = models.SignalHold
	case imbalance > imbalanceThreshold:
		signal = models.SignalBuy
	case imbalance < -imbalanceThreshold:
		signal = models.SignalSell
	}

	// Append after computing momentum so the *next* call sees this snapshot
	// as its "previous" one.
	h.appendBook(book)
	h.spreadPct.push(spreadPct)
	h.depth.push(depth)
	h.volume.push(volume)
	h.absImbalance.push(math.Abs(imbalance))
	h.mids.push(midF)

	return models.ResearchResult{
		Symbol:            symbol,
		Signal:            signal,
		Accuracy:          accuracy,
		Imbalance:         imbalance,
		MicroSignals:      micro,
		RecommendedAction: models.RecommendedAction(signal, accuracy),
	}
}

func computeImbalance(book models.Orderbook) float64 {
	bidQty := sumTopQty(book.Bids, topLevelsForImbalance)
	askQty := sumTopQty(book.Asks, topLevelsForImbalance)
	total := bidQty + askQty
	if total == 0 {
		return 0
	}
	return (bidQty - askQty) / total
}

func sumTopQty(levels []models.OrderbookLevel, n int) float64 {
	total := 0.0
	for i, lvl := range levels {
		if i >= n {
			break
		}
		q, _ := lvl.Quantity.Float64()
		total += q
	}
	return total
}

func computeDepth(book models.Orderbook) float64 {
	return sumNotional(book.Bids, topLevelsForDepth) + sumNotional(book.Asks, topLevelsForDepth)
}

func sumNotional(levels []models.OrderbookLevel, n int) float64 {
	total := 0.0
	for i, lvl := range levels {
		if i >= n {
			break
		}
		q, _ := lvl.Quantity.Float64()
		p, _ := lvl.Price.Float64()
		total += q * p
	}
	return total
}

// computeVolatility returns the stddev of mid-price returns over the last
// 20 snapshots, or 0 if fewer than 2 samples exist.
func computeVolatility(mids []float64) float64 {
	window := mids
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	if len(window) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		returns = append(returns, (window[i]-window[i-1])/window[i-1])
	}
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil)
}

func dynamicImbalanceThreshold(absImbalances []float64) float64 {
	if len(absImbalances) == 0 {
		return defaultImbalanceThreshold
	}
	p70 := percentile(absImbalances, 0.70)
	if p70 < minImbalanceThreshold {
		return minImbalanceThreshold
	}
	if p70 > maxImbalanceThreshold {
		return maxImbalanceThreshold
	}
	return p70
}

// percentile returns the p-quantile (p in [0,1]) of values using gonum's
// empirical CDF interpolation. Returns 0 for an empty series.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return percentile(values, 0.5)
}

// rsiConfirmation computes a 14-period RSI over the mid-price series and
// returns a small bonus when it agrees with the orderbook imbalance
// direction (overbought while imbalance favors sells, oversold while it
// favors buys), 0 otherwise. Needs at least 15 samples to say anything.
func rsiConfirmation(mids []float64, imbalance float64) float64 {
	const period = 14
	if len(mids) < period+1 {
		return 0
	}
	rsi := indicators.RSI(mids, period)
	last := rsi[len(rsi)-1]
	if last == 0 {
		return 0
	}
	switch {
	case last > 70 && imbalance < 0:
		return 0.05
	case last < 30 && imbalance > 0:
		return 0.05
	case last > 70 && imbalance > 0, last < 30 && imbalance < 0:
		return -0.03
	default:
		return 0
	}
}

// scoreAccuracy implements the additive confidence scoring rule: a base of
// 0.5 plus tiered bonuses for imbalance strength, spread tightness, volume,
// depth, momentum, and external features. Clamping to [0.10, 0.95] happens
// in the caller after the liquidity gate is applied.
func scoreAccuracy(imbalance, spreadPct, volume, volumeLow, depth, depthLow, momentum, rsiConfirm float64, features []models.ExternalFeature) float64 {
	accuracy := 0.5
	absImb := math.Abs(imbalance)

	switch {
	case absImb > 0.30:
		accuracy += 0.15
	case absImb > 0.20:
		accuracy += 0.10
	case absImb > 0.10:
		accuracy += 0.05
	}

	switch {
	case spreadPct < 0.05:
		accuracy += 0.10
	case spreadPct < 0.10:
		accuracy += 0.05
	}

	if volumeLow > 0 {
		switch {
		case volume > volumeLow*3:
			accuracy += 0.10
		case volume > volumeLow*1.5:
			accuracy += 0.05
		}
	}

	if depthLow > 0 && depth > depthLow*2 {
		accuracy += 0.05
	}

	if math.Abs(momentum) > 0.001 {
		accuracy += 0.05
	}

	externalAdj := 0.0
	for _, f := range features {
		if f.Value > 0 {
			externalAdj += 0.02
		} else if f.Value < 0 {
			externalAdj -= 0.02
		}
	}
	if externalAdj < -0.05 {
		externalAdj = -0.05
	}
	if externalAdj > 0.15 {
		externalAdj = 0.15
	}

	return accuracy + externalAdj + rsiConfirm
}
