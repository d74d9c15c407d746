// Package audit registra eventos de seguridad del servicio.
//
// Los eventos se despachan de forma asincrónica: el caller nunca se
// bloquea y un fallo del sink nunca afecta la operación que lo originó.
package audit

import (
	"context"
	"time"

	"github.com/dropDatabas3/knock/internal/domain/repository"
	"github.com/dropDatabas3/knock/internal/observability/logger"
)

// Tipos de evento emitidos por los servicios de autenticación.
const (
	EventMagicLinkRequested       = "magic_link_requested"
	EventMagicLinkVerified        = "magic_link_verified"
	EventMagicLinkRejected        = "magic_link_rejected"
	EventTOTPEnrolled             = "totp_enrolled"
	EventTOTPVerified             = "totp_verified"
	EventTOTPRejected             = "totp_rejected"
	EventWebAuthnRegistered       = "webauthn_registered"
	EventWebAuthnLoginCompleted   = "webauthn_login_completed"
	EventWebAuthnLoginRejected    = "webauthn_login_rejected"
	EventTokenRefreshed           = "token_refreshed"
	EventTokenRefreshRejected     = "token_refresh_rejected"
	EventSessionRevoked           = "session_revoked"
)

// Event es un evento de auditoría emitido por los servicios.
type Event struct {
	Type    string
	UserID  string
	Email   string
	IP      string
	Success bool
	Detail  string
}

// Recorder acepta eventos de auditoría.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// ─── Dispatcher asincrónico ──────────────────────────────────────────

// Dispatcher encola eventos en un canal acotado y los persiste en
// background. Si el canal se llena, el evento se loguea y se descarta.
type Dispatcher struct {
	repo repository.AuditRepository
	ch   chan Event
	done chan struct{}
	now  func() time.Time
}

// NewDispatcher crea el dispatcher con un buffer de buf eventos.
// Si now es nil usa time.Now.
func NewDispatcher(repo repository.AuditRepository, buf int, now func() time.Time) *Dispatcher {
	if buf <= 0 {
		buf = 256
	}
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		repo: repo,
		ch:   make(chan Event, buf),
		done: make(chan struct{}),
		now:  now,
	}
}

// Run drena el canal hasta que el contexto se cancele. Al cerrar,
// termina de persistir lo que quedó encolado.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.ch:
					d.persist(ev)
				default:
					return
				}
			}
		case ev := <-d.ch:
			d.persist(ev)
		}
	}
}

// Wait bloquea hasta que Run termine de drenar.
func (d *Dispatcher) Wait() { <-d.done }

// Record encola el evento sin bloquear. También lo loguea siempre,
// para que el trail exista aunque la persistencia falle.
func (d *Dispatcher) Record(ctx context.Context, ev Event) {
	logger.From(ctx).Info("audit event",
		logger.Event(ev.Type),
		logger.UserID(ev.UserID),
		logger.Bool("success", ev.Success),
	)
	select {
	case d.ch <- ev:
	default:
		logger.From(ctx).Warn("audit buffer full, event dropped", logger.Event(ev.Type))
	}
}

func (d *Dispatcher) persist(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := repository.AuditEntry{
		EventType: ev.Type,
		Success:   ev.Success,
		CreatedAt: d.now(),
	}
	if ev.UserID != "" {
		entry.UserID = &ev.UserID
	}
	if ev.Email != "" {
		entry.Email = &ev.Email
	}
	if ev.IP != "" {
		entry.IPAddress = &ev.IP
	}
	if ev.Detail != "" {
		entry.Detail = &ev.Detail
	}
	if err := d.repo.Insert(ctx, entry); err != nil {
		logger.L().Error("audit insert failed", logger.Event(ev.Type), logger.Err(err))
	}
}

// ─── Recorder nulo ───────────────────────────────────────────────────

// Nop es un Recorder que descarta todo (tests, tooling).
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
