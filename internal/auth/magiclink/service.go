// Package magiclink implementa el flujo de login por enlace de un solo uso.
package magiclink

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/knock/internal/audit"
	"github.com/dropDatabas3/knock/internal/auth/session"
	"github.com/dropDatabas3/knock/internal/domain/repository"
	"github.com/dropDatabas3/knock/internal/email"
	"github.com/dropDatabas3/knock/internal/observability/logger"
	"github.com/dropDatabas3/knock/internal/observability/metrics"
	"github.com/dropDatabas3/knock/internal/rate"
	tokens "github.com/dropDatabas3/knock/internal/security/token"
	"github.com/dropDatabas3/knock/internal/webhooks"
)

// Service errors
var (
	ErrInvalidEmail     = errors.New("magiclink: invalid email address")
	ErrInvalidToken     = errors.New("magiclink: invalid token")
	ErrTokenUsed        = errors.New("magiclink: token already used")
	ErrTokenExpired     = errors.New("magiclink: token expired")
	ErrEmailRateLimited = errors.New("magiclink: email volume limit reached for recipient")
)

// Service implementa solicitud y verificación de magic links.
type Service interface {
	// Request genera un token de un solo uso y encola el email con el
	// enlace. No revela si el email existía previamente.
	Request(ctx context.Context, emailAddr, clientIP string) error

	// Verify consume el token (exactamente una vez) y emite la sesión.
	Verify(ctx context.Context, rawToken, clientIP string) (*session.TokenPair, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Users    repository.UserRepository
	Links    repository.MagicLinkRepository
	Queue    email.Queue
	Sessions session.Service
	Audit    audit.Recorder
	Webhooks webhooks.Notifier

	// EmailLimiter acota el volumen de emails salientes por destinatario.
	// Opcional: nil desactiva el límite.
	EmailLimiter rate.Limiter

	BaseURL    string        // ej. https://app.example.com/auth/magic
	TTL        time.Duration // default 15m
	TokenBytes int           // default 32
	Now        func() time.Time
}

type service struct {
	users        repository.UserRepository
	links        repository.MagicLinkRepository
	queue        email.Queue
	sessions     session.Service
	audit        audit.Recorder
	webhooks     webhooks.Notifier
	emailLimiter rate.Limiter

	baseURL    string
	ttl        time.Duration
	tokenBytes int
	now        func() time.Time
}

// New crea el Service.
func New(d Deps) Service {
	if d.TTL <= 0 {
		d.TTL = 15 * time.Minute
	}
	if d.TokenBytes <= 0 {
		d.TokenBytes = 32
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Webhooks == nil {
		d.Webhooks = webhooks.Nop{}
	}
	return &service{
		users:        d.Users,
		links:        d.Links,
		queue:        d.Queue,
		sessions:     d.Sessions,
		audit:        d.Audit,
		webhooks:     d.Webhooks,
		emailLimiter: d.EmailLimiter,
		baseURL:      d.BaseURL,
		ttl:          d.TTL,
		tokenBytes:   d.TokenBytes,
		now:          d.Now,
	}
}

func (s *service) Request(ctx context.Context, emailAddr, clientIP string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("magiclink"),
		logger.Op("Request"),
	)

	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if _, err := mail.ParseAddress(emailAddr); err != nil || emailAddr == "" {
		return ErrInvalidEmail
	}

	// Segundo bucket: acota cuántos emails salen hacia un mismo
	// destinatario. Si el backend del limiter falla, deja pasar.
	if s.emailLimiter != nil {
		res, err := s.emailLimiter.Allow(ctx, "email:"+emailAddr)
		if err != nil {
			log.Warn("email limiter unavailable", logger.Err(err))
		} else if !res.Allowed {
			metrics.RateLimited.Inc()
			return ErrEmailRateLimited
		}
	}

	user, err := s.users.GetOrCreateByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}

	raw, err := tokens.GenerateOpaqueToken(s.tokenBytes)
	if err != nil {
		return err
	}
	if err := s.links.Create(ctx, repository.CreateMagicLinkInput{
		UserID:    user.ID,
		TokenHash: tokens.SHA256Base64URL(raw),
		ExpiresAt: s.now().Add(s.ttl),
	}); err != nil {
		return err
	}

	link := fmt.Sprintf("%s?token=%s", s.baseURL, url.QueryEscape(raw))
	if _, err := s.queue.EnqueueMagicLink(ctx, emailAddr, link, s.ttl); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventMagicLinkRequested,
		UserID:  user.ID,
		Email:   emailAddr,
		IP:      clientIP,
		Success: true,
	})
	log.Info("magic link requested", logger.UserID(user.ID))
	return nil
}

func (s *service) Verify(ctx context.Context, rawToken, clientIP string) (*session.TokenPair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("magiclink"),
		logger.Op("Verify"),
	)

	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrInvalidToken
	}

	userID, err := s.links.Consume(ctx, tokens.SHA256Base64URL(rawToken), s.now())
	if err != nil {
		log.Debug("magic link rejected", logger.Err(err))
		metrics.RecordAuthFailure("magic")
		s.audit.Record(ctx, audit.Event{
			Type:    audit.EventMagicLinkRejected,
			IP:      clientIP,
			Success: false,
			Detail:  rejectionDetail(err),
		})
		switch {
		case errors.Is(err, repository.ErrAlreadyUsed):
			return nil, ErrTokenUsed
		case errors.Is(err, repository.ErrTokenExpired):
			return nil, ErrTokenExpired
		case repository.IsNotFound(err):
			return nil, ErrInvalidToken
		default:
			return nil, err
		}
	}

	pair, err := s.sessions.Issue(ctx, userID)
	if err != nil {
		return nil, err
	}

	metrics.RecordAuthSuccess("magic")
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventMagicLinkVerified,
		UserID:  userID,
		IP:      clientIP,
		Success: true,
	})
	user, err := s.users.GetByID(ctx, userID)
	if err == nil {
		s.webhooks.Notify(audit.EventMagicLinkVerified, userID, user.Email)
	} else {
		s.webhooks.Notify(audit.EventMagicLinkVerified, userID, "")
	}
	log.Info("magic link verified", logger.UserID(userID))
	return pair, nil
}

func rejectionDetail(err error) string {
	switch {
	case errors.Is(err, repository.ErrAlreadyUsed):
		return "token already used"
	case errors.Is(err, repository.ErrTokenExpired):
		return "token expired"
	default:
		return "token unknown"
	}
}
