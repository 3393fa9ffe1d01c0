package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/quantforge/hft/analysis"
	"github.com/quantforge/hft/config"
	"github.com/quantforge/hft/engine"
	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/notifications"
	"github.com/quantforge/hft/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Handler holds every HTTP handler for the control plane. All tenant-scoped
// endpoints read the tenant from TenantFromCtx, set by AuthMiddleware.
type Handler struct {
	manager   *engine.Manager
	ds        store.DataStore
	notifier  *notifications.Manager
	config    *config.Config
	startTime time.Time
}

// NewHandler wires a handler against the process singletons. ds and
// notifier may be nil in tests.
func NewHandler(manager *engine.Manager, ds store.DataStore, notifier *notifications.Manager, cfg *config.Config) *Handler {
	return &Handler{
		manager:   manager,
		ds:        ds,
		notifier:  notifier,
		config:    cfg,
		startTime: time.Now(),
	}
}

// HealthHandler reports process-level liveness; never tenant-scoped.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"mode":      string(h.config.TradingMode),
		"timestamp": time.Now(),
	})
}

// MetricsHandler reports basic runtime statistics.
func (h *Handler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]uint64{
			"alloc": m.Alloc, "total_alloc": m.TotalAlloc, "sys": m.Sys, "num_gc": uint64(m.NumGC),
		},
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// hftStartRequest is the body of POST /api/hft/start.
type hftStartRequest struct {
	Symbol     string `json:"symbol" validate:"required"`
	IntervalMs int64  `json:"interval_ms" validate:"gte=0"`
}

// StartHFTHandler starts the caller's HFT cycle. Creating the engine first
// (with a paper adapter, if the tenant has no stored integration) is the
// caller's responsibility via createEngine — start only arms an existing one.
func (h *Handler) StartHFTHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())

	var req hftStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if details := validateStruct(req); details != nil {
		writeValidationError(w, details)
		return
	}

	if err := h.manager.StartHFT(tenant, req.Symbol, req.IntervalMs); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// StopHFTHandler stops the caller's HFT cycle. Always 200; idempotent.
func (h *Handler) StopHFTHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())
	if err := h.manager.StopHFT(tenant); err != nil && !errors.Is(err, engine.ErrNotFound) {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// HFTStatusHandler reports whether the caller has an engine and its
// current state.
func (h *Handler) HFTStatusHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())

	ue, err := h.manager.GetEngine(tenant)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"hasEngine": false, "running": false})
		return
	}

	resp := map[string]interface{}{
		"hasEngine": true,
		"running":   ue.HFT.State() == engine.HFTRunning,
		"autoTrade": ue.HFT.AutoTrade(),
		"symbol":    ue.HFT.Symbol(),
	}
	if h.ds != nil {
		if status, err := h.ds.GetEngineStatus(tenant, models.EngineTypeHFT, ue.HFT.Symbol()); err == nil {
			resp["engineStatus"] = status
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HFTLogsHandler tails the caller's execution audit log, newest first.
func (h *Handler) HFTLogsHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())

	if h.ds == nil {
		writeJSON(w, http.StatusOK, []store.ExecutionLogEntry{})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	entries, err := h.ds.GetHFTExecutionLogs(tenant, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read execution logs")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type autoTradeToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// AutoTradeToggleHandler flips the caller's autoTrade flag. The HFT ticker
// keeps running either way, but while autoTrade is off every cycle is
// skipped entirely: no research, no placements, no cancel-stale pass.
func (h *Handler) AutoTradeToggleHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())

	var req autoTradeToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	if req.Enabled {
		err = h.manager.StartAutoTrade(tenant)
	} else {
		err = h.manager.StopAutoTrade(tenant)
	}
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

type researchRunRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

// ResearchRunHandler runs one ad-hoc research pass for the caller outside
// the periodic HFT cycle, using the tenant's own adapter and research
// engine so results reflect their actual exchange connectivity.
func (h *Handler) ResearchRunHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())

	var req researchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if details := validateStruct(req); details != nil {
		writeValidationError(w, details)
		return
	}

	ue, err := h.manager.GetEngine(tenant)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	book, err := ue.Adapter.GetOrderbook(r.Context(), req.Symbol, 20)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch orderbook: "+err.Error())
		return
	}

	result := ue.Research.Run(r.Context(), req.Symbol, book)
	writeJSON(w, http.StatusOK, result)
}

// EngineConfigUpsertHandler validates and persists an EngineConfig for the
// caller as an HFT EngineStatus record. The stored config is not applied to
// an existing engine: an engine keeps the config it was created with, and
// startHFT does not read the stored config.
func (h *Handler) EngineConfigUpsertHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())

	var cfg models.EngineConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		details := make(map[string]string, len(errs))
		for i, e := range errs {
			details[strconv.Itoa(i)] = e
		}
		writeValidationError(w, details)
		return
	}

	if h.ds != nil {
		status := models.EngineStatus{EngineType: models.EngineTypeHFT, Symbol: cfg.Symbol, Active: cfg.Enabled, Config: cfg}
		if err := h.ds.SaveEngineStatus(tenant, status); err != nil {
			log.Error().Err(err).Str("tenant", tenant).Msg("api: failed to persist engine config")
			writeError(w, http.StatusInternalServerError, "failed to persist config")
			return
		}
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PerformanceHandler reports realized-PnL statistics derived from the
// caller's execution audit trail.
func (h *Handler) PerformanceHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())

	if h.ds == nil {
		writeJSON(w, http.StatusOK, analysis.PerformanceMetrics{})
		return
	}

	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := h.ds.GetHFTExecutionLogs(tenant, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read execution logs")
		return
	}

	orders := make([]models.Order, 0, len(entries))
	for _, e := range entries {
		if e.Status != string(models.OrderStatusFilled) {
			continue
		}
		qty, _ := decimal.NewFromString(e.Quantity)
		price, _ := decimal.NewFromString(e.Price)
		orders = append(orders, models.Order{
			ID:             e.OrderID,
			Tenant:         e.Tenant,
			Symbol:         e.Symbol,
			Side:           models.OrderSide(e.Side),
			Status:         models.OrderStatusFilled,
			Quantity:       qty,
			FilledQuantity: qty,
			Price:          price,
			AveragePrice:   price,
			UpdatedAt:      e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, analysis.CalculateMetrics(orders, 0))
}

// NotificationsListHandler returns the caller's notification history.
func (h *Handler) NotificationsListHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	history, err := h.notifier.GetHistory(tenant, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read notifications")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// NotificationsMarkAllReadHandler marks every one of the caller's
// notifications as read.
func (h *Handler) NotificationsMarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())
	if err := h.notifier.MarkAllAsRead(tenant); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "no engine for this tenant", "NOT_FOUND")
	case errors.Is(err, engine.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "engine already exists", "CONFLICT")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

type createEngineRequest struct {
	APIKeyCipher    string             `json:"api_key_cipher"`
	APISecretCipher string             `json:"api_secret_cipher"`
	Testnet         bool               `json:"testnet"`
	Strategy        string             `json:"strategy" validate:"required"`
	Config          models.EngineConfig `json:"config" validate:"required"`
	Reinit          bool               `json:"reinit"`
}

// CreateEngineHandler provisions the caller's trading stack: an exchange
// adapter (paper, if no credentials are supplied), an OrderManager, and an
// HFTEngine bound to the requested strategy. Omitted credentials fall back
// to a paper adapter rather than failing the request.
func (h *Handler) CreateEngineHandler(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromCtx(r.Context())

	var req createEngineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if details := validateStruct(req); details != nil {
		writeValidationError(w, details)
		return
	}
	if errs := req.Config.Validate(); len(errs) > 0 {
		details := make(map[string]string, len(errs))
		for i, e := range errs {
			details[strconv.Itoa(i)] = e
		}
		writeValidationError(w, details)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ue, err := h.manager.CreateEngine(ctx, tenant, req.APIKeyCipher, req.APISecretCipher, req.Testnet, req.Strategy, req.Config, req.Reinit)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"tenant": tenant, "strategy": ue.Strategy.Name(), "adapter": ue.Adapter.Name()})
}
