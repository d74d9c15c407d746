// Package metrics expone los contadores Prometheus del servicio.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts cuenta intentos de autenticación por método y resultado.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knock_auth_attempts_total",
		Help: "Authentication attempts by method and status.",
	}, []string{"method", "status"})

	// TokenRefreshes cuenta refrescos de tokens exitosos.
	TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knock_token_refreshes_total",
		Help: "Successful token refreshes.",
	})

	// SessionsCreated cuenta pares access/refresh emitidos.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knock_sessions_created_total",
		Help: "Access/refresh token pairs issued.",
	})

	// EmailsSent cuenta emails entregados por el worker.
	EmailsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knock_emails_sent_total",
		Help: "Emails delivered by the queue worker.",
	})

	// EmailsFailed cuenta intentos de envío fallidos.
	EmailsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knock_emails_failed_total",
		Help: "Email delivery attempts that failed.",
	})

	// RateLimited cuenta requests rechazados por rate limiting.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knock_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})

	// HTTPRequestDuration mide la duración de requests HTTP.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "knock_http_request_duration_seconds",
		Help:    "HTTP request latency by path and status.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"path", "status"})
)

// RecordAuthSuccess registra un intento de autenticación exitoso.
func RecordAuthSuccess(method string) {
	AuthAttempts.WithLabelValues(method, "success").Inc()
}

// RecordAuthFailure registra un intento de autenticación fallido.
func RecordAuthFailure(method string) {
	AuthAttempts.WithLabelValues(method, "failure").Inc()
}
