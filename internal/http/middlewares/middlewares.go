// Package middlewares contiene los middlewares HTTP del servicio.
package middlewares

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	httperrors "github.com/dropDatabas3/knock/internal/http/errors"
	"github.com/dropDatabas3/knock/internal/observability/logger"
	"github.com/dropDatabas3/knock/internal/observability/metrics"
	"github.com/dropDatabas3/knock/internal/rate"
)

// ClientIP extrae la IP del cliente, considerando proxies.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// =================================================================================
// REQUEST LOGGING
// =================================================================================

// RequestLogger inyecta un logger scoped en el contexto y loguea cada
// request al terminar, con duración y status.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		scoped := logger.L().With(
			logger.RequestID(reqID),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.ClientIP(ClientIP(r)),
		)
		ctx := logger.ToContext(r.Context(), scoped)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		elapsed := time.Since(start)
		scoped.Info("request completed",
			logger.Status(ww.Status()),
			logger.Duration(elapsed),
		)
		metrics.HTTPRequestDuration.
			WithLabelValues(r.URL.Path, strconv.Itoa(ww.Status())).
			Observe(elapsed.Seconds())
	})
}

// =================================================================================
// RATE LIMITING
// =================================================================================

// KeyFunc deriva la clave de rate limiting del request.
type KeyFunc func(r *http.Request) string

// KeyByIP limita por IP de cliente.
func KeyByIP(prefix string) KeyFunc {
	return func(r *http.Request) string {
		return prefix + ":" + ClientIP(r)
	}
}

// RateLimit aplica el limiter con la clave derivada del request.
// En caso de error del backend deja pasar (fail-open): el rate limiter
// nunca debe tirar el servicio de autenticación.
func RateLimit(limiter rate.Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			res, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				metrics.RateLimited.Inc()
				retry := int(res.RetryAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				httperrors.WriteError(w, r, httperrors.ErrRateLimited.WithRetryAfter(retry))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =================================================================================
// ADMIN KEY
// =================================================================================

// AdminKey protege la superficie admin con una clave compartida en el
// header X-Admin-Key.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				httperrors.WriteError(w, r, httperrors.ErrAdminKeyInvalid.WithDetail("admin surface disabled"))
				return
			}
			got := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				httperrors.WriteError(w, r, httperrors.ErrAdminKeyInvalid)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =================================================================================
// CORS
// =================================================================================

// CORS aplica cabeceras CORS simples para los orígenes permitidos.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed["*"] || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
