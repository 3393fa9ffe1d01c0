package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantforge/hft/exchange"
	"github.com/quantforge/hft/models"
	"github.com/rs/zerolog/log"
)

// MACrossover is a lighter strategy retargeted from daily-bar moving
// averages to the mid-price series the orderbook feed actually provides:
// it keeps its own short/long rolling averages of mid price and trades
// the crossover.
type MACrossover struct {
	mu          sync.Mutex
	config      models.EngineConfig
	shortPeriod int
	longPeriod  int
	mids        []float64
	lastSignal  models.Signal
}

func NewMACrossover() *MACrossover {
	return &MACrossover{shortPeriod: 10, longPeriod: 20}
}

func (s *MACrossover) Name() string { return "ma_crossover" }

func (s *MACrossover) Init(config models.EngineConfig) error {
	if problems := config.Validate(); len(problems) > 0 {
		return fmt.Errorf("strategy: invalid engine config: %v", problems)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	return nil
}

func (s *MACrossover) OnResearch(ctx context.Context, result models.ResearchResult, book models.Orderbook, placer OrderPlacer) error {
	mid, ok := book.Mid()
	if !ok {
		return nil
	}
	midF, _ := mid.Float64()

	s.mu.Lock()
	s.mids = append(s.mids, midF)
	if len(s.mids) > s.longPeriod {
		s.mids = s.mids[len(s.mids)-s.longPeriod:]
	}
	if len(s.mids) < s.longPeriod {
		s.mu.Unlock()
		return nil
	}
	shortAvg := average(s.mids[len(s.mids)-s.shortPeriod:])
	longAvg := average(s.mids)
	cfg := s.config
	prev := s.lastSignal
	s.mu.Unlock()

	signal := models.SignalHold
	if shortAvg > longAvg {
		signal = models.SignalBuy
	} else if shortAvg < longAvg {
		signal = models.SignalSell
	}

	if signal == prev || signal == models.SignalHold {
		return nil
	}

	side := models.OrderSideBuy
	if signal == models.SignalSell {
		side = models.OrderSideSell
	}
	_, err := placer.SubmitOrder(ctx, exchange.OrderParams{
		Symbol: cfg.Symbol, Side: side, Type: models.OrderTypeMarket,
		Quantity: fmt.Sprintf("%g", cfg.QuoteSize),
	}, midF, cfg.AdversePct, 0)
	if err != nil {
		log.Warn().Err(err).Str("symbol", cfg.Symbol).Msg("strategy: crossover order rejected")
	}

	s.mu.Lock()
	s.lastSignal = signal
	s.mu.Unlock()
	return nil
}

func (s *MACrossover) OnOrderUpdate(update OrderUpdate) {}

func (s *MACrossover) CancelStale(ctx context.Context, book models.Orderbook, placer OrderPlacer) {}

func (s *MACrossover) Shutdown(ctx context.Context, placer OrderPlacer) {}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ImbalanceChase trades directly off the research engine's signal and
// accuracy without maintaining its own resting quotes: a single market
// order per high-confidence signal, no inventory skewing.
type ImbalanceChase struct {
	mu     sync.Mutex
	config models.EngineConfig
}

func NewImbalanceChase() *ImbalanceChase {
	return &ImbalanceChase{}
}

func (s *ImbalanceChase) Name() string { return "imbalance_chase" }

func (s *ImbalanceChase) Init(config models.EngineConfig) error {
	if problems := config.Validate(); len(problems) > 0 {
		return fmt.Errorf("strategy: invalid engine config: %v", problems)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	return nil
}

func (s *ImbalanceChase) OnResearch(ctx context.Context, result models.ResearchResult, book models.Orderbook, placer OrderPlacer) error {
	if result.Signal == models.SignalHold || result.Accuracy < 0.85 {
		return nil
	}
	mid, ok := book.Mid()
	if !ok {
		return nil
	}
	midF, _ := mid.Float64()

	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()

	side := models.OrderSideBuy
	if result.Signal == models.SignalSell {
		side = models.OrderSideSell
	}
	_, err := placer.SubmitOrder(ctx, exchange.OrderParams{
		Symbol: cfg.Symbol, Side: side, Type: models.OrderTypeMarket,
		Quantity: fmt.Sprintf("%g", cfg.QuoteSize),
	}, midF, cfg.AdversePct, 0)
	if err != nil {
		log.Warn().Err(err).Str("symbol", cfg.Symbol).Msg("strategy: imbalance chase order rejected")
	}
	return nil
}

func (s *ImbalanceChase) OnOrderUpdate(update OrderUpdate) {}

func (s *ImbalanceChase) CancelStale(ctx context.Context, book models.Orderbook, placer OrderPlacer) {}

func (s *ImbalanceChase) Shutdown(ctx context.Context, placer OrderPlacer) {}
