// Package router arma el árbol de rutas del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/knock/internal/http/controllers"
	"github.com/dropDatabas3/knock/internal/http/middlewares"
	"github.com/dropDatabas3/knock/internal/rate"
)

// Deps contiene todas las dependencias del router.
type Deps struct {
	// Controllers
	Magic    *controllers.MagicController
	TOTP     *controllers.TOTPController
	WebAuthn *controllers.WebAuthnController
	Token    *controllers.TokenController
	Admin    *controllers.AdminController
	Health   *controllers.HealthController

	// RequestLimiter limita los endpoints que inician un flujo (emiten
	// challenges o encolan emails). Opcional: nil desactiva el límite.
	RequestLimiter rate.Limiter

	// VerifyLimiter limita los endpoints que consumen credenciales.
	// Opcional: nil desactiva el límite.
	VerifyLimiter rate.Limiter

	// AdminKey protege /v1/admin. Vacío = superficie deshabilitada.
	AdminKey string

	// AllowedOrigins para CORS. Vacío = sin cabeceras CORS.
	AllowedOrigins []string
}

// New construye el router HTTP completo.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)
	if len(d.AllowedOrigins) > 0 {
		r.Use(middlewares.CORS(d.AllowedOrigins))
	}

	// ===========================================================================
	// Operacional
	// ===========================================================================
	r.Get("/healthz", d.Health.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ===========================================================================
	// Auth
	// ===========================================================================
	r.Route("/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middlewares.RateLimit(d.RequestLimiter, middlewares.KeyByIP("req")))
			r.Post("/request/magic", d.Magic.Request)
			r.Post("/totp/enroll", d.TOTP.Enroll)
			r.Post("/webauthn/register/options", d.WebAuthn.RegisterOptions)
			r.Post("/webauthn/login/options", d.WebAuthn.LoginOptions)
		})

		r.Group(func(r chi.Router) {
			r.Use(middlewares.RateLimit(d.VerifyLimiter, middlewares.KeyByIP("verify")))
			r.Post("/verify/magic", d.Magic.Verify)
			r.Post("/totp/verify", d.TOTP.Verify)
			r.Post("/webauthn/register/complete", d.WebAuthn.RegisterComplete)
			r.Post("/webauthn/login/complete", d.WebAuthn.LoginComplete)
			r.Post("/token/refresh", d.Token.Refresh)
			r.Post("/token/revoke", d.Token.Revoke)
		})
	})

	// ===========================================================================
	// Admin
	// ===========================================================================
	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(middlewares.AdminKey(d.AdminKey))
		r.Get("/users", d.Admin.ListUsers)
		r.Post("/users/{userID}/revoke", d.Admin.RevokeSessions)
		r.Get("/email-queue/stats", d.Admin.EmailQueueStats)
		r.Get("/audit", d.Admin.AuditTail)
	})

	return r
}
