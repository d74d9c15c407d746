package controllers

import (
	"net/http"

	"github.com/dropDatabas3/knock/internal/observability/logger"
	"github.com/dropDatabas3/knock/internal/store"
)

// HealthController maneja el endpoint de health check.
type HealthController struct {
	dal store.DataAccessLayer
}

// NewHealthController crea el controller.
func NewHealthController(dal store.DataAccessLayer) *HealthController {
	return &HealthController{dal: dal}
}

// Healthz maneja GET /healthz. Verifica conectividad con la base.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := c.dal.Ping(r.Context()); err != nil {
		logger.From(r.Context()).Error("health check failed",
			logger.Layer("http"),
			logger.Component("health"),
			logger.Err(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
