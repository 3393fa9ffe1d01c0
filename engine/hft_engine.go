// Package engine implements the HFTEngine (C8), UserEngine (C9), and
// EngineManager (C10) capabilities: the periodic per-tenant trading cycle
// and the per-tenant composite and process-wide registry that own it.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantforge/hft/exchange"
	"github.com/quantforge/hft/execution"
	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/research"
	"github.com/quantforge/hft/risk"
	"github.com/quantforge/hft/store"
	"github.com/quantforge/hft/strategy"
	"github.com/rs/zerolog/log"
)

// HFTState is the engine's externally observable lifecycle state.
type HFTState string

const (
	HFTIdle     HFTState = "idle"
	HFTRunning  HFTState = "running"
	HFTStopping HFTState = "stopping"
)

const (
	defaultIntervalMs           = 100
	defaultMinAccuracy          = 0.85
	orderbookDepth               = 20
	maxConsecutiveInternalErrors = 3
)

// EventPublisher is the narrow broadcasting capability an HFTEngine needs;
// satisfied by *realtime.EventBus.
type EventPublisher interface {
	PublishResearchUpdate(tenant string, result models.ResearchResult)
	PublishEngineEvent(tenant, event string, detail interface{})
}

// HFTEngine drives one periodic research+strategy cycle for one tenant's
// symbol at a fixed cadence. A cycle is non-reentrant: an overlapping tick
// is dropped rather than queued.
type HFTEngine struct {
	tenant   string
	adapter  exchange.Adapter
	research *research.Engine
	strat    strategy.Strategy
	orders   *execution.OrderManager
	riskMgr  *risk.Manager
	ds       store.DataStore
	events   EventPublisher

	mu              sync.Mutex
	state           HFTState
	config          models.EngineConfig
	symbol          string
	intervalMs      int64
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	cycleMu         sync.Mutex
	dailyTradeCount int
	lastTradeDay    string
	consecutiveErrs int
	autoTrade       bool
	cappedOnce      bool
}

// NewHFTEngine constructs a driver bound to one tenant's wiring. ds and
// events may be nil (e.g. in tests); persistence and fan-out are then
// skipped silently.
func NewHFTEngine(
	tenant string,
	adapter exchange.Adapter,
	researchEngine *research.Engine,
	strat strategy.Strategy,
	orders *execution.OrderManager,
	riskMgr *risk.Manager,
	ds store.DataStore,
	events EventPublisher,
	config models.EngineConfig,
) *HFTEngine {
	return &HFTEngine{
		tenant:   tenant,
		adapter:  adapter,
		research: researchEngine,
		strat:    strat,
		orders:   orders,
		riskMgr:  riskMgr,
		ds:       ds,
		events:   events,
		config:   config,
		state:    HFTIdle,
	}
}

// State returns the engine's current lifecycle state.
func (e *HFTEngine) State() HFTState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetAutoTrade flips the flag consulted before each cycle attempts any
// order placement.
func (e *HFTEngine) SetAutoTrade(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoTrade = on
}

// AutoTrade reports the current autoTrade flag.
func (e *HFTEngine) AutoTrade() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoTrade
}

// Symbol returns the symbol currently armed (empty if never started).
func (e *HFTEngine) Symbol() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.symbol
}

// Start arms a periodic tick for symbol. Idempotent: a no-op when already
// running the same symbol. Fails if running a different symbol — stop
// first.
func (e *HFTEngine) Start(symbol string, intervalMs int64) error {
	e.mu.Lock()
	if e.state == HFTRunning {
		if e.symbol == symbol {
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()
		return fmt.Errorf("hft_engine: already running symbol %q for tenant %q", e.symbol, e.tenant)
	}
	if intervalMs <= 0 {
		intervalMs = defaultIntervalMs
	}
	e.symbol = symbol
	e.intervalMs = intervalMs

	today := time.Now().UTC().Format("2006-01-02")
	if e.lastTradeDay != today {
		e.dailyTradeCount = 0
		e.lastTradeDay = today
	}
	e.cappedOnce = false
	e.consecutiveErrs = 0
	e.state = HFTRunning

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.loop(ctx)

	log.Info().Str("tenant", e.tenant).Str("symbol", symbol).Int64("interval_ms", intervalMs).
		Msg("hft_engine: started")
	return nil
}

// Stop cancels the tick, waits for any in-flight cycle to finish, and
// returns once every pending strategy order is cancelled. Idempotent.
func (e *HFTEngine) Stop() {
	e.mu.Lock()
	if e.state == HFTIdle {
		e.mu.Unlock()
		return
	}
	e.state = HFTStopping
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	e.strat.Shutdown(execution.NewEngineContext(), e.orders)

	e.mu.Lock()
	e.state = HFTIdle
	e.mu.Unlock()

	log.Info().Str("tenant", e.tenant).Msg("hft_engine: stopped")
}

// OnOrderUpdate forwards an order/fill event to the running strategy.
func (e *HFTEngine) OnOrderUpdate(update strategy.OrderUpdate) {
	e.strat.OnOrderUpdate(update)
}

func (e *HFTEngine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Duration(e.intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one cycle per spec.md §4.2. A TryLock failure means the
// previous cycle is still running; that tick is dropped, not queued.
func (e *HFTEngine) tick(ctx context.Context) {
	if !e.cycleMu.TryLock() {
		return
	}
	defer e.cycleMu.Unlock()

	e.mu.Lock()
	running := e.state == HFTRunning
	autoTrade := e.autoTrade
	symbol := e.symbol
	cfg := e.config
	e.mu.Unlock()

	if !running || !autoTrade {
		return
	}

	if e.dailyCapReached(cfg.MaxTradesPerDay) {
		e.warnDailyCapOnce()
		return
	}

	book, err := e.adapter.GetOrderbook(ctx, symbol, orderbookDepth)
	if err != nil {
		e.onInternalError(fmt.Errorf("fetch orderbook: %w", err))
		return
	}

	result := e.research.Run(ctx, symbol, book)
	if e.events != nil {
		e.events.PublishResearchUpdate(e.tenant, result)
	}
	_, hasMid := book.Mid()
	if e.ds != nil && hasMid {
		if logErr := e.ds.SaveResearchLog(e.tenant, result); logErr != nil {
			log.Error().Err(logErr).Str("tenant", e.tenant).Msg("hft_engine: failed to persist research log")
		}
	}

	if result.Accuracy < defaultMinAccuracy {
		e.strat.CancelStale(ctx, book, e.orders)
		return
	}

	mid, _ := book.Mid()
	midF, _ := mid.Float64()
	decision := e.riskMgr.CanTrade(e.tenant, cfg.QuoteSize, midF, cfg.AdversePct, 0)
	if !decision.Allowed {
		if e.ds != nil {
			_ = e.ds.LogActivity(e.tenant, "SKIPPED", "reason="+decision.Reason)
		}
		return
	}

	if err := e.strat.OnResearch(ctx, result, book, e.orders); err != nil {
		e.onInternalError(fmt.Errorf("strategy cycle: %w", err))
		return
	}

	e.mu.Lock()
	e.dailyTradeCount++
	e.consecutiveErrs = 0
	e.mu.Unlock()
}

func (e *HFTEngine) dailyCapReached(max int) bool {
	if max <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyTradeCount >= max
}

func (e *HFTEngine) warnDailyCapOnce() {
	e.mu.Lock()
	already := e.cappedOnce
	e.cappedOnce = true
	e.mu.Unlock()
	if already {
		return
	}
	log.Warn().Str("tenant", e.tenant).Msg("hft_engine: daily trade cap reached")
	if e.events != nil {
		e.events.PublishEngineEvent(e.tenant, "error", map[string]string{"reason": "daily cap"})
	}
}

func (e *HFTEngine) onInternalError(err error) {
	log.Error().Err(err).Str("tenant", e.tenant).Msg("hft_engine: cycle error")
	if e.events != nil {
		e.events.PublishEngineEvent(e.tenant, "error", map[string]string{"reason": err.Error()})
	}

	e.mu.Lock()
	e.consecutiveErrs++
	stop := e.consecutiveErrs >= maxConsecutiveInternalErrors
	e.mu.Unlock()

	if stop {
		log.Warn().Str("tenant", e.tenant).Msg("hft_engine: auto-stopping after consecutive internal errors")
		go e.Stop()
	}
}
