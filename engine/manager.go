package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantforge/hft/exchange"
	"github.com/quantforge/hft/execution"
	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/risk"
	"github.com/quantforge/hft/store"
	"github.com/quantforge/hft/vault"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Publisher is everything a UserEngine's wiring needs to broadcast:
// order updates (for OrderManager) plus research/engine events (for
// HFTEngine). Satisfied by *realtime.EventBus.
type Publisher interface {
	execution.UpdatePublisher
	EventPublisher
}

// ErrAlreadyExists is returned by CreateEngine when a tenant already has an
// engine and reinit was not requested.
var ErrAlreadyExists = fmt.Errorf("engine: tenant already has an engine")

// ErrNotFound is returned by tenant-scoped operations when no engine has
// been created yet for that tenant.
var ErrNotFound = fmt.Errorf("engine: no engine for tenant")

// Manager is the process-wide tenant → UserEngine registry (C10), the only
// entry point the HTTP control plane uses. One Manager instance is a
// process singleton.
type Manager struct {
	mu          sync.RWMutex
	engines     map[string]*UserEngine
	tenantLocks map[string]*sync.Mutex

	vault *vault.KeyVault
	risk  *risk.Manager
	ds    store.DataStore
	pub   Publisher
}

// NewManager constructs an empty registry bound to the process singletons
// it wires every created engine against.
func NewManager(v *vault.KeyVault, riskMgr *risk.Manager, ds store.DataStore, pub Publisher) *Manager {
	return &Manager{
		engines:     make(map[string]*UserEngine),
		tenantLocks: make(map[string]*sync.Mutex),
		vault:       v,
		risk:        riskMgr,
		ds:          ds,
		pub:         pub,
	}
}

func (m *Manager) lockFor(tenant string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.tenantLocks[tenant]
	if !ok {
		l = &sync.Mutex{}
		m.tenantLocks[tenant] = l
	}
	return l
}

// CreateEngine passes apiKey/apiSecret through KeyVault.Decrypt; an input
// that is not a KeyVault ciphertext (a plaintext key included) decrypts to
// empty and the engine gets a paper adapter instead of a Binance one. It
// then wires an ExchangeAdapter + OrderManager + HFTEngine
// for strategyName, and registers the result. Fails with ErrAlreadyExists
// unless reinit is true, in which case the old engine is shut down first.
func (m *Manager) CreateEngine(
	ctx context.Context,
	tenant, apiKeyCipher, apiSecretCipher string,
	testnet bool,
	strategyName string,
	config models.EngineConfig,
	reinit bool,
) (*UserEngine, error) {
	lock := m.lockFor(tenant)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	existing, exists := m.engines[tenant]
	m.mu.RUnlock()

	if exists {
		if !reinit {
			return nil, ErrAlreadyExists
		}
		if err := existing.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Str("tenant", tenant).Msg("engine: shutdown of prior engine failed during reinit")
		}
	}

	adapter := m.buildAdapter(apiKeyCipher, apiSecretCipher, testnet)

	ue, err := newUserEngine(tenant, adapter, strategyName, config, m.risk, m.ds, m.pub, m.pub)
	if err != nil {
		_ = adapter.Disconnect()
		return nil, fmt.Errorf("engine: create engine for %q: %w", tenant, err)
	}

	m.mu.Lock()
	m.engines[tenant] = ue
	m.mu.Unlock()

	log.Info().Str("tenant", tenant).Str("strategy", strategyName).Bool("reinit", reinit).
		Msg("engine: engine created")
	return ue, nil
}

func (m *Manager) buildAdapter(apiKeyCipher, apiSecretCipher string, testnet bool) exchange.Adapter {
	if apiKeyCipher == "" || apiSecretCipher == "" || m.vault == nil {
		return exchange.NewPaperAdapter(decimal.NewFromInt(10000))
	}
	apiKey := m.vault.Decrypt(apiKeyCipher)
	apiSecret := m.vault.Decrypt(apiSecretCipher)
	if apiKey == "" || apiSecret == "" {
		log.Warn().Msg("engine: credential decrypt failed, falling back to paper adapter")
		return exchange.NewPaperAdapter(decimal.NewFromInt(10000))
	}
	return exchange.NewBinanceAdapter(apiKey, apiSecret, testnet)
}

// GetEngine returns tenant's engine, or ErrNotFound.
func (m *Manager) GetEngine(tenant string) (*UserEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ue, ok := m.engines[tenant]
	if !ok {
		return nil, ErrNotFound
	}
	return ue, nil
}

// StartHFT starts the tenant's HFT cycle. When symbol is empty it takes the
// symbol of the tenant's first stored HFT EngineStatus; the stored
// EngineConfig itself is not loaded, and the engine keeps the config it was
// created with. Idempotent if already running that symbol.
func (m *Manager) StartHFT(tenant, symbol string, intervalMs int64) error {
	ue, err := m.GetEngine(tenant)
	if err != nil {
		return err
	}

	lock := m.lockFor(tenant)
	lock.Lock()
	defer lock.Unlock()

	if symbol == "" && m.ds != nil {
		statuses, err := m.ds.GetAllEngineStatuses(tenant)
		if err == nil {
			for _, st := range statuses {
				if st.EngineType == models.EngineTypeHFT {
					symbol = st.Symbol
					break
				}
			}
		}
	}
	if symbol == "" {
		return fmt.Errorf("engine: no symbol configured for tenant %q", tenant)
	}

	if err := ue.Start(symbol, intervalMs); err != nil {
		return err
	}

	if m.ds != nil {
		status := models.EngineStatus{Active: true, EngineType: models.EngineTypeHFT, Symbol: symbol}
		if saveErr := m.ds.SaveEngineStatus(tenant, status); saveErr != nil {
			log.Error().Err(saveErr).Str("tenant", tenant).Msg("engine: failed to persist engine status")
		}
	}
	if m.pub != nil {
		m.pub.PublishEngineEvent(tenant, "start", map[string]string{"symbol": symbol})
	}
	return nil
}

// StopHFT stops the tenant's HFT cycle, cancelling quotes and timers.
// Idempotent; a tenant with no running engine is a no-op, not an error,
// except when the tenant has no engine at all.
func (m *Manager) StopHFT(tenant string) error {
	ue, err := m.GetEngine(tenant)
	if err != nil {
		return err
	}

	lock := m.lockFor(tenant)
	lock.Lock()
	defer lock.Unlock()

	ue.HFT.Stop()

	if m.ds != nil {
		status := models.EngineStatus{Active: false, EngineType: models.EngineTypeHFT, Symbol: ue.HFT.Symbol()}
		if saveErr := m.ds.SaveEngineStatus(tenant, status); saveErr != nil {
			log.Error().Err(saveErr).Str("tenant", tenant).Msg("engine: failed to persist engine status")
		}
	}
	if m.pub != nil {
		m.pub.PublishEngineEvent(tenant, "stop", nil)
	}
	return nil
}

// StartAutoTrade flips the tenant's autoTrade flag on.
func (m *Manager) StartAutoTrade(tenant string) error {
	ue, err := m.GetEngine(tenant)
	if err != nil {
		return err
	}
	ue.HFT.SetAutoTrade(true)
	return nil
}

// StopAutoTrade flips the tenant's autoTrade flag off. The HFT ticker keeps
// running, but each cycle is skipped entirely while the flag is off, so
// neither new placements nor the cancel-stale pass happen.
func (m *Manager) StopAutoTrade(tenant string) error {
	ue, err := m.GetEngine(tenant)
	if err != nil {
		return err
	}
	ue.HFT.SetAutoTrade(false)
	return nil
}

// Shutdown tears down every registered engine, best-effort, and clears the
// registry.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	engines := make([]*UserEngine, 0, len(m.engines))
	for _, ue := range m.engines {
		engines = append(engines, ue)
	}
	m.engines = make(map[string]*UserEngine)
	m.mu.Unlock()

	var firstErr error
	for _, ue := range engines {
		if err := ue.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
