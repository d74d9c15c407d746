// Package webauthn implementa registro y login con credenciales
// WebAuthn (passkeys) sobre la librería go-webauthn.
//
// Cada ceremonia vive como un challenge pendiente persistido con TTL;
// el estado serializado de la librería se guarda tal cual se ofreció y
// el challenge se elimina en cuanto la ceremonia llega a un desenlace,
// sea éxito o rechazo.
package webauthn

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dropDatabas3/knock/internal/audit"
	"github.com/dropDatabas3/knock/internal/auth/session"
	"github.com/dropDatabas3/knock/internal/domain/repository"
	"github.com/dropDatabas3/knock/internal/observability/logger"
	"github.com/dropDatabas3/knock/internal/observability/metrics"
	"github.com/dropDatabas3/knock/internal/webhooks"
)

// Service errors
var (
	ErrInvalidEmail       = errors.New("webauthn: invalid email address")
	ErrUserNotFound       = errors.New("webauthn: user not found")
	ErrNoCredentials      = errors.New("webauthn: user has no credentials")
	ErrChallengeNotFound  = errors.New("webauthn: challenge not found")
	ErrChallengeExpired   = errors.New("webauthn: challenge expired")
	ErrVerificationFailed = errors.New("webauthn: verification failed")
	ErrReplayDetected     = errors.New("webauthn: sign counter did not advance")
)

// RelyingParty abstrae las ceremonias de la librería go-webauthn.
// Implementada por *webauthn.WebAuthn; los tests inyectan un fake.
type RelyingParty interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// Parser abstrae el parseo de las respuestas del cliente.
type Parser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Challenge es el resultado de iniciar una ceremonia: el ID para la
// fase de completado y las options serializadas para el navegador.
type Challenge struct {
	ChallengeID string
	OptionsJSON json.RawMessage
}

// Service implementa las cuatro operaciones WebAuthn.
type Service interface {
	BeginRegistration(ctx context.Context, emailAddr string) (*Challenge, error)
	FinishRegistration(ctx context.Context, challengeID string, responseJSON []byte) (credentialID string, err error)
	BeginLogin(ctx context.Context, emailAddr string) (*Challenge, error)
	FinishLogin(ctx context.Context, challengeID string, responseJSON []byte, clientIP string) (*session.TokenPair, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Users       repository.UserRepository
	Challenges  repository.PendingChallengeRepository
	Credentials repository.WebAuthnCredentialRepository
	Sessions    session.Service
	RP          RelyingParty
	Parser      Parser
	Audit       audit.Recorder
	Webhooks    webhooks.Notifier

	ChallengeTTL time.Duration // default 5m
	Now          func() time.Time
}

type service struct {
	users       repository.UserRepository
	challenges  repository.PendingChallengeRepository
	credentials repository.WebAuthnCredentialRepository
	sessions    session.Service
	rp          RelyingParty
	parser      Parser
	audit       audit.Recorder
	webhooks    webhooks.Notifier

	challengeTTL time.Duration
	now          func() time.Time
}

// New crea el Service.
func New(d Deps) Service {
	if d.ChallengeTTL <= 0 {
		d.ChallengeTTL = 5 * time.Minute
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Parser == nil {
		d.Parser = defaultParser{}
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Webhooks == nil {
		d.Webhooks = webhooks.Nop{}
	}
	return &service{
		users:        d.Users,
		challenges:   d.Challenges,
		credentials:  d.Credentials,
		sessions:     d.Sessions,
		rp:           d.RP,
		parser:       d.Parser,
		audit:        d.Audit,
		webhooks:     d.Webhooks,
		challengeTTL: d.ChallengeTTL,
		now:          d.Now,
	}
}

// ─── Registro ────────────────────────────────────────────────────────

func (s *service) BeginRegistration(ctx context.Context, emailAddr string) (*Challenge, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" {
		return nil, ErrInvalidEmail
	}

	user, err := s.users.GetOrCreateByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			return nil, ErrInvalidEmail
		}
		return nil, err
	}
	su, err := s.loadUser(ctx, user)
	if err != nil {
		return nil, err
	}

	var opts []webauthn.RegistrationOption
	if len(su.credentials) > 0 {
		opts = append(opts, webauthn.WithExclusions(webauthn.Credentials(su.credentials).CredentialDescriptors()))
	}

	creation, sessionData, err := s.rp.BeginRegistration(su, opts...)
	if err != nil {
		return nil, err
	}
	return s.storeChallenge(ctx, user.ID, repository.PurposeRegister, creation, sessionData)
}

func (s *service) FinishRegistration(ctx context.Context, challengeID string, responseJSON []byte) (string, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("webauthn"),
		logger.Op("FinishRegistration"),
	)

	ch, sessionData, err := s.takeChallenge(ctx, challengeID, repository.PurposeRegister)
	if err != nil {
		return "", err
	}
	// El challenge se consume con este intento, gane o pierda.
	defer func() { _ = s.challenges.Delete(ctx, ch.ID) }()

	user, err := s.users.GetByID(ctx, ch.UserID)
	if err != nil {
		return "", err
	}
	su, err := s.loadUser(ctx, user)
	if err != nil {
		return "", err
	}

	parsed, err := s.parser.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		log.Debug("credential response unparseable", logger.Err(err))
		return "", ErrVerificationFailed
	}
	credential, err := s.rp.CreateCredential(su, *sessionData, parsed)
	if err != nil {
		log.Debug("credential rejected", logger.Err(err))
		return "", ErrVerificationFailed
	}

	id, err := s.credentials.Create(ctx, repository.CreateWebAuthnCredentialInput{
		UserID:       user.ID,
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		SignCount:    credential.Authenticator.SignCount,
		Transports:   transportStrings(credential.Transport),
	})
	if err != nil {
		return "", err
	}

	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventWebAuthnRegistered,
		UserID:  user.ID,
		Email:   user.Email,
		Success: true,
	})
	log.Info("webauthn credential registered", logger.UserID(user.ID))
	return id, nil
}

// ─── Login ───────────────────────────────────────────────────────────

func (s *service) BeginLogin(ctx context.Context, emailAddr string) (*Challenge, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" {
		return nil, ErrInvalidEmail
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	su, err := s.loadUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(su.credentials) == 0 {
		return nil, ErrNoCredentials
	}

	assertion, sessionData, err := s.rp.BeginLogin(su)
	if err != nil {
		return nil, err
	}
	return s.storeChallenge(ctx, user.ID, repository.PurposeLogin, assertion, sessionData)
}

func (s *service) FinishLogin(ctx context.Context, challengeID string, responseJSON []byte, clientIP string) (*session.TokenPair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("webauthn"),
		logger.Op("FinishLogin"),
	)

	ch, sessionData, err := s.takeChallenge(ctx, challengeID, repository.PurposeLogin)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.challenges.Delete(ctx, ch.ID) }()

	user, err := s.users.GetByID(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}
	su, err := s.loadUser(ctx, user)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parser.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		log.Debug("assertion unparseable", logger.Err(err))
		s.rejectLogin(ctx, user, clientIP, "assertion unparseable")
		return nil, ErrVerificationFailed
	}
	credential, err := s.rp.ValidateLogin(su, *sessionData, parsed)
	if err != nil {
		log.Debug("assertion rejected", logger.Err(err))
		s.rejectLogin(ctx, user, clientIP, "assertion rejected")
		return nil, ErrVerificationFailed
	}
	if credential.Authenticator.CloneWarning {
		log.Warn("authenticator clone warning", logger.UserID(user.ID))
		s.rejectLogin(ctx, user, clientIP, "clone warning")
		return nil, ErrReplayDetected
	}

	if err := s.bumpSignCount(ctx, su, credential); err != nil {
		log.Warn("sign counter regression", logger.UserID(user.ID))
		s.rejectLogin(ctx, user, clientIP, "sign counter regression")
		return nil, err
	}

	pair, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	metrics.RecordAuthSuccess("webauthn")
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventWebAuthnLoginCompleted,
		UserID:  user.ID,
		Email:   user.Email,
		IP:      clientIP,
		Success: true,
	})
	s.webhooks.Notify(audit.EventWebAuthnLoginCompleted, user.ID, user.Email)
	log.Info("webauthn login completed", logger.UserID(user.ID))
	return pair, nil
}

// bumpSignCount avanza el contador con compare-and-set. Un contador que
// no avanza cuando venía avanzando es señal de autenticador clonado.
func (s *service) bumpSignCount(ctx context.Context, su *serviceUser, credential *webauthn.Credential) error {
	var stored uint32
	for _, c := range su.credentials {
		if string(c.ID) == string(credential.ID) {
			stored = c.Authenticator.SignCount
			break
		}
	}
	// Autenticadores sin soporte de contador reportan siempre cero.
	if credential.Authenticator.SignCount == 0 && stored == 0 {
		return nil
	}

	ok, err := s.credentials.BumpSignCount(ctx, credential.ID, credential.Authenticator.SignCount, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrReplayDetected
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────

func (s *service) loadUser(ctx context.Context, user *repository.User) (*serviceUser, error) {
	records, err := s.credentials.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &serviceUser{user: user, credentials: toLibraryCredentials(records)}, nil
}

func (s *service) storeChallenge(ctx context.Context, userID string, purpose repository.ChallengePurpose, options any, sessionData *webauthn.SessionData) (*Challenge, error) {
	sessionJSON, err := json.Marshal(sessionData)
	if err != nil {
		return nil, err
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	id, err := s.challenges.Create(ctx, repository.CreatePendingChallengeInput{
		UserID:      userID,
		Purpose:     purpose,
		SessionData: sessionJSON,
		ExpiresAt:   s.now().Add(s.challengeTTL),
	})
	if err != nil {
		return nil, err
	}
	return &Challenge{ChallengeID: id, OptionsJSON: optionsJSON}, nil
}

func (s *service) takeChallenge(ctx context.Context, challengeID string, purpose repository.ChallengePurpose) (*repository.PendingChallenge, *webauthn.SessionData, error) {
	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		return nil, nil, ErrChallengeNotFound
	}
	ch, err := s.challenges.Get(ctx, challengeID, purpose)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrChallengeNotFound
		}
		return nil, nil, err
	}
	if !ch.ExpiresAt.After(s.now()) {
		_ = s.challenges.Delete(ctx, ch.ID)
		return nil, nil, ErrChallengeExpired
	}
	var sessionData webauthn.SessionData
	if err := json.Unmarshal(ch.SessionData, &sessionData); err != nil {
		_ = s.challenges.Delete(ctx, ch.ID)
		return nil, nil, ErrVerificationFailed
	}
	return ch, &sessionData, nil
}

func (s *service) rejectLogin(ctx context.Context, user *repository.User, clientIP, detail string) {
	metrics.RecordAuthFailure("webauthn")
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventWebAuthnLoginRejected,
		UserID:  user.ID,
		Email:   user.Email,
		IP:      clientIP,
		Success: false,
		Detail:  detail,
	})
}
