// Package session emite y rota las credenciales de sesión del servicio:
// un access token JWT de vida corta y un refresh token de vida larga.
//
// El refresh token es un valor opaco envuelto en un JWT; en la base
// solo se guarda su hash, así el registro es revocable sin que una fuga
// de la base exponga material canjeable.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/knock/internal/audit"
	jwtx "github.com/dropDatabas3/knock/internal/jwt"
	"github.com/dropDatabas3/knock/internal/observability/logger"
	"github.com/dropDatabas3/knock/internal/observability/metrics"
	tokens "github.com/dropDatabas3/knock/internal/security/token"
	"github.com/dropDatabas3/knock/internal/domain/repository"
)

// Service errors
var (
	ErrInvalidRefreshToken = errors.New("session: invalid refresh token")
	ErrRefreshTokenExpired = errors.New("session: refresh token expired")
	ErrRefreshTokenRevoked = errors.New("session: refresh token revoked")
)

// TokenPair es el resultado de una autenticación exitosa.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64 // segundos de vida del access token
}

// Service emite, rota y revoca sesiones.
type Service interface {
	// Issue emite un par access/refresh para el usuario.
	Issue(ctx context.Context, userID string) (*TokenPair, error)

	// Refresh canjea un refresh token por un par nuevo. El token viejo
	// queda revocado en la misma operación (rotación).
	Refresh(ctx context.Context, refreshJWT string) (*TokenPair, error)

	// Revoke revoca la sesión del refresh token presentado. Los access
	// tokens ya emitidos siguen válidos hasta su propio vencimiento.
	Revoke(ctx context.Context, refreshJWT string) error

	// RevokeAll revoca todas las sesiones vigentes del usuario.
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Tokens         repository.RefreshTokenRepository
	Codec          *jwtx.Codec
	Audit          audit.Recorder
	AccessTTL      time.Duration // default 15m
	RefreshTTL     time.Duration // default 30d
	RevokeOnRotate bool          // default true (setear explícitamente)
	Now            func() time.Time
}

type service struct {
	tokens         repository.RefreshTokenRepository
	codec          *jwtx.Codec
	audit          audit.Recorder
	accessTTL      time.Duration
	refreshTTL     time.Duration
	revokeOnRotate bool
	now            func() time.Time
}

// New crea el Service.
func New(d Deps) Service {
	if d.AccessTTL <= 0 {
		d.AccessTTL = 15 * time.Minute
	}
	if d.RefreshTTL <= 0 {
		d.RefreshTTL = 30 * 24 * time.Hour
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	return &service{
		tokens:         d.Tokens,
		codec:          d.Codec,
		audit:          d.Audit,
		accessTTL:      d.AccessTTL,
		refreshTTL:     d.RefreshTTL,
		revokeOnRotate: d.RevokeOnRotate,
		now:            d.Now,
	}
}

func (s *service) Issue(ctx context.Context, userID string) (*TokenPair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("session"),
		logger.Op("Issue"),
		logger.UserID(userID),
	)

	access, err := s.codec.Sign(userID, jwtx.KindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}

	// El sub del refresh JWT es un valor opaco, no el user_id: el dueño
	// se resuelve contra el registro revocable en la base.
	opaque, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	if _, err := s.tokens.Create(ctx, repository.CreateRefreshTokenInput{
		UserID:    userID,
		TokenHash: tokens.SHA256Base64URL(opaque),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}); err != nil {
		return nil, err
	}

	refresh, err := s.codec.Sign(opaque, jwtx.KindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	metrics.SessionsCreated.Inc()
	log.Debug("session issued")
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *service) Refresh(ctx context.Context, refreshJWT string) (*TokenPair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("session"),
		logger.Op("Refresh"),
	)

	opaque, err := s.codec.Parse(refreshJWT, jwtx.KindRefresh)
	if err != nil {
		log.Debug("refresh jwt rejected", logger.Err(err))
		if errors.Is(err, jwtx.ErrExpired) {
			s.recordRefreshRejected(ctx, "expired")
			return nil, ErrRefreshTokenExpired
		}
		s.recordRefreshRejected(ctx, "invalid")
		return nil, ErrInvalidRefreshToken
	}

	hash := tokens.SHA256Base64URL(opaque)
	userID, err := s.consume(ctx, hash)
	if err != nil {
		log.Debug("refresh record rejected", logger.Err(err))
		switch {
		case errors.Is(err, repository.ErrTokenRevoked):
			s.recordRefreshRejected(ctx, "revoked")
			return nil, ErrRefreshTokenRevoked
		case errors.Is(err, repository.ErrTokenExpired):
			s.recordRefreshRejected(ctx, "expired")
			return nil, ErrRefreshTokenExpired
		case repository.IsNotFound(err):
			s.recordRefreshRejected(ctx, "invalid")
			return nil, ErrInvalidRefreshToken
		default:
			return nil, err
		}
	}

	pair, err := s.Issue(ctx, userID)
	if err != nil {
		return nil, err
	}
	metrics.TokenRefreshes.Inc()
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventTokenRefreshed,
		UserID:  userID,
		Success: true,
	})
	log.Debug("session refreshed", logger.UserID(userID))
	return pair, nil
}

func (s *service) recordRefreshRejected(ctx context.Context, detail string) {
	s.audit.Record(ctx, audit.Event{
		Type:   audit.EventTokenRefreshRejected,
		Detail: detail,
	})
}

// consume valida el registro y, con rotación estricta, lo revoca en la
// misma operación condicional.
func (s *service) consume(ctx context.Context, hash string) (string, error) {
	if s.revokeOnRotate {
		return s.tokens.Consume(ctx, hash, s.now())
	}
	rec, err := s.tokens.GetByHash(ctx, hash)
	if err != nil {
		return "", err
	}
	if rec.RevokedAt != nil {
		return "", repository.ErrTokenRevoked
	}
	if !rec.ExpiresAt.After(s.now()) {
		return "", repository.ErrTokenExpired
	}
	return rec.UserID, nil
}

func (s *service) Revoke(ctx context.Context, refreshJWT string) error {
	opaque, err := s.codec.Parse(refreshJWT, jwtx.KindRefresh)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return ErrRefreshTokenExpired
		}
		return ErrInvalidRefreshToken
	}
	if err := s.tokens.Revoke(ctx, tokens.SHA256Base64URL(opaque)); err != nil {
		if repository.IsNotFound(err) {
			return ErrInvalidRefreshToken
		}
		return err
	}
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventSessionRevoked,
		Success: true,
	})
	logger.From(ctx).Info("session revoked",
		logger.Layer("service"),
		logger.Component("session"),
	)
	return nil
}

func (s *service) RevokeAll(ctx context.Context, userID string) (int, error) {
	n, err := s.tokens.RevokeAllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventSessionRevoked,
		UserID:  userID,
		Success: true,
		Detail:  "all sessions",
	})
	logger.From(ctx).Info("sessions revoked",
		logger.Layer("service"),
		logger.Component("session"),
		logger.UserID(userID),
		logger.Count(n),
	)
	return n, nil
}
