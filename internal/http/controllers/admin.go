package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/knock/internal/auth/session"
	"github.com/dropDatabas3/knock/internal/domain/repository"
	"github.com/dropDatabas3/knock/internal/http/dto"
	httperrors "github.com/dropDatabas3/knock/internal/http/errors"
	"github.com/dropDatabas3/knock/internal/store"
)

// AdminController expone la superficie operativa del servicio.
type AdminController struct {
	dal      store.DataAccessLayer
	sessions session.Service
}

// NewAdminController crea el controller.
func NewAdminController(dal store.DataAccessLayer, sessions session.Service) *AdminController {
	return &AdminController{dal: dal, sessions: sessions}
}

// ListUsers maneja GET /v1/admin/users.
func (c *AdminController) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter := repository.ListUsersFilter{
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
		Search: r.URL.Query().Get("search"),
	}

	users, err := c.dal.Users().List(r.Context(), filter)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	out := make([]dto.UserOut, 0, len(users))
	for i := range users {
		u := &users[i]
		out = append(out, dto.UserOut{
			ID:           u.ID,
			Email:        u.Email,
			TOTPEnrolled: u.TOTPEnrolled(),
			CreatedAt:    u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// EmailQueueStats maneja GET /v1/admin/email-queue/stats.
func (c *AdminController) EmailQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.dal.EmailTasks().Stats(r.Context())
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.EmailQueueStatsOut{
		Pending: stats.Pending,
		Sending: stats.Sending,
		Sent:    stats.Sent,
		Failed:  stats.Failed,
	})
}

// AuditTail maneja GET /v1/admin/audit.
func (c *AdminController) AuditTail(w http.ResponseWriter, r *http.Request) {
	entries, err := c.dal.Audit().ListRecent(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	out := make([]dto.AuditEntryOut, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		out = append(out, dto.AuditEntryOut{
			ID:        e.ID,
			EventType: e.EventType,
			UserID:    derefOrEmpty(e.UserID),
			Email:     derefOrEmpty(e.Email),
			IPAddress: derefOrEmpty(e.IPAddress),
			Success:   e.Success,
			Detail:    derefOrEmpty(e.Detail),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// RevokeSessions maneja POST /v1/admin/users/{userID}/revoke.
// Revoca todas las sesiones vigentes del usuario.
func (c *AdminController) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		httperrors.WriteError(w, r, httperrors.ErrBadRequest.WithDetail("userID is required"))
		return
	}

	if _, err := c.dal.Users().GetByID(r.Context(), userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httperrors.WriteError(w, r, httperrors.ErrUserNotFound)
			return
		}
		httperrors.WriteError(w, r, err)
		return
	}

	n, err := c.sessions.RevokeAll(r.Context(), userID)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.RevokeOut{Revoked: n})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
