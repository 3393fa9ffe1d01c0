// Package api provides the multi-tenant REST + WebSocket control plane.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/quantforge/hft/config"
	"github.com/quantforge/hft/engine"
	"github.com/quantforge/hft/notifications"
	"github.com/quantforge/hft/realtime"
	"github.com/quantforge/hft/store"
)

// NewRouter builds the process HTTP router: public health/websocket
// endpoints plus the authenticated, per-tenant control plane described by
// the external interface table.
func NewRouter(
	cfg *config.Config,
	manager *engine.Manager,
	ds store.DataStore,
	notifier *notifications.Manager,
	bus *realtime.EventBus,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(TraceMiddleware)
	r.Use(middleware.RealIP)
	r.Use(zerologLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// 100 req/min per IP globally, plus a tighter burst cap.
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(httprate.LimitByIP(20, time.Second))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
			next.ServeHTTP(w, r)
		})
	})

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy", "default-src 'self'")
			next.ServeHTTP(w, r)
		})
	})

	r.Use(newCORSMiddleware(cfg))

	h := NewHandler(manager, ds, notifier, cfg)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"service": "quantforge-hft", "status": "running"})
	})
	r.Get("/health", h.HealthHandler)

	if bus != nil {
		r.Route("/ws", func(r chi.Router) {
			r.Use(AuthMiddleware(cfg))
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				bus.HandleTenant(TenantFromCtx(r.Context()), w, r)
			})
		})
		r.Get("/ws/admin", bus.HandleAdmin)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg))
		r.Use(AuditMiddleware)

		r.Post("/engine/create", h.CreateEngineHandler)
		r.Post("/engine/config", h.EngineConfigUpsertHandler)

		r.Post("/hft/start", h.StartHFTHandler)
		r.Post("/hft/stop", h.StopHFTHandler)
		r.Get("/hft/status", h.HFTStatusHandler)
		r.Get("/hft/logs", h.HFTLogsHandler)

		r.Post("/auto-trade/toggle", h.AutoTradeToggleHandler)

		r.Post("/research/run", h.ResearchRunHandler)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.NotificationsListHandler)
			r.Put("/read-all", h.NotificationsMarkAllReadHandler)
		})

		r.Get("/metrics", h.MetricsHandler)
		r.Get("/metrics/performance", h.PerformanceHandler)
		r.Post("/config/rotate-key", h.RotateAPIKeyHandler)
	})

	return r
}

// RotateAPIKeyHandler rotates the control-plane API key. Intentionally not
// tenant-scoped: it governs access to every tenant's engine.
func (h *Handler) RotateAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	newKey, err := h.config.RotateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rotate API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_key": newKey})
}
