// Package totp implementa enrolamiento y verificación de códigos TOTP
// como segundo método de login.
package totp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/knock/internal/audit"
	"github.com/dropDatabas3/knock/internal/auth/session"
	"github.com/dropDatabas3/knock/internal/domain/repository"
	"github.com/dropDatabas3/knock/internal/observability/logger"
	"github.com/dropDatabas3/knock/internal/observability/metrics"
	totpx "github.com/dropDatabas3/knock/internal/security/totp"
	"github.com/dropDatabas3/knock/internal/webhooks"
)

// Service errors
var (
	ErrUserNotFound = errors.New("totp: user not found")
	ErrNotEnrolled  = errors.New("totp: user not enrolled")
	ErrInvalidCode  = errors.New("totp: invalid code")
)

// Enrollment es el resultado de un enrolamiento: el secreto en base32 y
// la URI otpauth:// para mostrar como QR.
type Enrollment struct {
	Secret     string
	OTPAuthURL string
}

// Service implementa enrolamiento y login por TOTP.
type Service interface {
	// Enroll genera un secreto nuevo para el usuario. Re-enrolar pisa
	// el secreto anterior.
	Enroll(ctx context.Context, emailAddr string) (*Enrollment, error)

	// Verify valida el código y emite la sesión.
	Verify(ctx context.Context, emailAddr, code, clientIP string) (*session.TokenPair, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Users    repository.UserRepository
	Sessions session.Service
	Audit    audit.Recorder
	Webhooks webhooks.Notifier

	Issuer string // nombre mostrado en la app autenticadora
	Skew   int    // pasos de tolerancia, default 1
	Now    func() time.Time
}

type service struct {
	users    repository.UserRepository
	sessions session.Service
	audit    audit.Recorder
	webhooks webhooks.Notifier

	issuer string
	skew   int
	now    func() time.Time
}

// New crea el Service.
func New(d Deps) Service {
	if d.Issuer == "" {
		d.Issuer = "Knock"
	}
	if d.Skew <= 0 {
		d.Skew = 1
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
		users:    d.Users,
		sessions: d.Sessions,
		audit:    d.Audit,
		webhooks: d.Webhooks,
		issuer:   d.Issuer,
		skew:     d.Skew,
		now:      d.Now,
	}
}

func (s *service) Enroll(ctx context.Context, emailAddr string) (*Enrollment, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("totp"),
		logger.Op("Enroll"),
	)

	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	user, err := s.users.GetOrCreateByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	secret, err := totpx.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := s.users.SetTOTPSecret(ctx, user.ID, secret); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventTOTPEnrolled,
		UserID:  user.ID,
		Email:   emailAddr,
		Success: true,
	})
	log.Info("totp enrolled", logger.UserID(user.ID))
	return &Enrollment{
		Secret:     secret,
		OTPAuthURL: totpx.OTPAuthURL(s.issuer, emailAddr, secret),
	}, nil
}

func (s *service) Verify(ctx context.Context, emailAddr, code, clientIP string) (*session.TokenPair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("totp"),
		logger.Op("Verify"),
	)

	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if repository.IsNotFound(err) {
			s.reject(ctx, "", emailAddr, clientIP, "unknown user")
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.TOTPEnrolled() {
		s.reject(ctx, user.ID, emailAddr, clientIP, "not enrolled")
		return nil, ErrNotEnrolled
	}

	if !totpx.Verify(*user.TOTPSecret, code, s.now(), s.skew) {
		log.Debug("totp code rejected", logger.UserID(user.ID))
		s.reject(ctx, user.ID, emailAddr, clientIP, "code mismatch")
		return nil, ErrInvalidCode
	}

	pair, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	metrics.RecordAuthSuccess("totp")
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventTOTPVerified,
		UserID:  user.ID,
		Email:   emailAddr,
		IP:      clientIP,
		Success: true,
	})
	s.webhooks.Notify(audit.EventTOTPVerified, user.ID, emailAddr)
	log.Info("totp verified", logger.UserID(user.ID))
	return pair, nil
}

func (s *service) reject(ctx context.Context, userID, emailAddr, clientIP, detail string) {
	metrics.RecordAuthFailure("totp")
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventTOTPRejected,
		UserID:  userID,
		Email:   emailAddr,
		IP:      clientIP,
		Success: false,
		Detail:  detail,
	})
}
