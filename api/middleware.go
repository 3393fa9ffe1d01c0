package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/quantforge/hft/config"
	"github.com/quantforge/hft/tracing"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	tenantKey    contextKey = "tenant"
	auditIPKey   contextKey = "audit_ip"
	auditKeyIDKey contextKey = "audit_key_id"
)

// TraceMiddleware injects a trace ID into the request context for
// structured logging correlation, falling back to chi's RequestID.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := middleware.GetReqID(r.Context())
		if traceID == "" {
			traceID = tracing.NewTraceID()
		}
		ctx := tracing.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware requires a valid X-API-Key header (constant-time compared)
// and a non-empty X-Tenant-ID header, which every downstream handler reads
// via TenantFromCtx. If no API key is configured the check is skipped —
// dev-mode only, never true outside a local run.
func AuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.APIKey == "" {
				log.Warn().Msg("api: no API_KEY configured, authentication disabled")
			} else {
				apiKey := r.Header.Get("X-API-Key")
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(cfg.APIKey)) != 1 {
					log.Warn().Str("ip", r.RemoteAddr).Str("path", r.URL.Path).
						Msg("api: unauthorized request: invalid API key")
					writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
					return
				}
			}

			tenant := r.Header.Get("X-Tenant-ID")
			if tenant == "" {
				writeError(w, http.StatusBadRequest, "X-Tenant-ID header is required", "MISSING_TENANT")
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromCtx returns the authenticated tenant id, or "" if absent.
func TenantFromCtx(ctx context.Context) string {
	if t, ok := ctx.Value(tenantKey).(string); ok {
		return t
	}
	return ""
}

// AuditMiddleware injects the requestor IP and a hashed API key identifier
// into the context, safe to log without exposing the key itself.
func AuditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), auditIPKey, r.RemoteAddr)

		keyID := "dev-mode"
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			hash := sha256.Sum256([]byte(apiKey))
			keyID = fmt.Sprintf("%x", hash[:4])
		}
		ctx = context.WithValue(ctx, auditKeyIDKey, keyID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// zerologLogger logs each completed request with the trace ID for correlation.
func zerologLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		tracing.Logger(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// newCORSMiddleware allows only origins in cfg.AllowedOrigins.
func newCORSMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := false
			for _, o := range cfg.AllowedOrigins {
				if o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Tenant-ID")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}
			if r.Method == http.MethodOptions {
				if allowed {
					w.WriteHeader(http.StatusOK)
				} else {
					w.WriteHeader(http.StatusForbidden)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
