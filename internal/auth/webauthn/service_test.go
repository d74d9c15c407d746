package webauthn

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/knock/internal/auth/session"
	"github.com/dropDatabas3/knock/internal/domain/repository"
)

// ─── Fakes ───────────────────────────────────────────────────────────

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*repository.User
	seq   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*repository.User)}
}

func (r *fakeUserRepo) GetOrCreateByEmail(_ context.Context, email string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	r.seq++
	u := &repository.User{ID: "user-" + strconv.Itoa(r.seq), Email: email}
	r.users[email] = u
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) SetTOTPSecret(context.Context, string, string) error { return nil }

func (r *fakeUserRepo) List(context.Context, repository.ListUsersFilter) ([]repository.User, error) {
	return nil, nil
}

type fakeChallengeRepo struct {
	mu         sync.Mutex
	challenges map[string]*repository.PendingChallenge
	seq        int
}

func newFakeChallengeRepo() *fakeChallengeRepo {
	return &fakeChallengeRepo{challenges: make(map[string]*repository.PendingChallenge)}
}

func (r *fakeChallengeRepo) Create(_ context.Context, input repository.CreatePendingChallengeInput) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := "ch-" + strconv.Itoa(r.seq)
	r.challenges[id] = &repository.PendingChallenge{
		ID:          id,
		UserID:      input.UserID,
		Purpose:     input.Purpose,
		SessionData: input.SessionData,
		ExpiresAt:   input.ExpiresAt,
	}
	return id, nil
}

func (r *fakeChallengeRepo) Get(_ context.Context, id string, purpose repository.ChallengePurpose) (*repository.PendingChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.challenges[id]
	if !ok || ch.Purpose != purpose {
		return nil, repository.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (r *fakeChallengeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.challenges, id)
	return nil
}

func (r *fakeChallengeRepo) DeleteExpired(context.Context, time.Time) (int, error) { return 0, nil }

func (r *fakeChallengeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.challenges)
}

type fakeCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]*repository.WebAuthnCredential // por credential_id
	seq   int
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{creds: make(map[string]*repository.WebAuthnCredential)}
}

func (r *fakeCredentialRepo) Create(_ context.Context, input repository.CreateWebAuthnCredentialInput) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(input.CredentialID)
	if _, ok := r.creds[key]; ok {
		return "", repository.ErrConflict
	}
	r.seq++
	id := "cred-" + strconv.Itoa(r.seq)
	r.creds[key] = &repository.WebAuthnCredential{
		ID:           id,
		UserID:       input.UserID,
		CredentialID: input.CredentialID,
		PublicKey:    input.PublicKey,
		SignCount:    input.SignCount,
		Transports:   input.Transports,
	}
	return id, nil
}

func (r *fakeCredentialRepo) GetByCredentialID(_ context.Context, credentialID []byte) (*repository.WebAuthnCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[string(credentialID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCredentialRepo) ListByUser(_ context.Context, userID string) ([]repository.WebAuthnCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.WebAuthnCredential
	for _, c := range r.creds {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeCredentialRepo) BumpSignCount(_ context.Context, credentialID []byte, newCount uint32, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[string(credentialID)]
	if !ok || c.SignCount >= newCount {
		return false, nil
	}
	c.SignCount = newCount
	c.LastUsedAt = &usedAt
	return true, nil
}

type fakeSessions struct{ issued []string }

func (s *fakeSessions) Issue(_ context.Context, userID string) (*session.TokenPair, error) {
	s.issued = append(s.issued, userID)
	return &session.TokenPair{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer"}, nil
}

func (s *fakeSessions) Refresh(context.Context, string) (*session.TokenPair, error) {
	return nil, session.ErrInvalidRefreshToken
}

func (s *fakeSessions) Revoke(context.Context, string) error { return nil }

func (s *fakeSessions) RevokeAll(context.Context, string) (int, error) { return 0, nil }

// fakeRP simula la librería: las ceremonias devuelven material fijo y
// la validación se controla por campo.
type fakeRP struct {
	credential  *webauthn.Credential
	validateErr error
}

func (rp *fakeRP) BeginRegistration(user webauthn.User, _ ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	return &protocol.CredentialCreation{}, &webauthn.SessionData{
		Challenge: "test-challenge",
		UserID:    user.WebAuthnID(),
	}, nil
}

func (rp *fakeRP) CreateCredential(_ webauthn.User, _ webauthn.SessionData, _ *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	if rp.validateErr != nil {
		return nil, rp.validateErr
	}
	return rp.credential, nil
}

func (rp *fakeRP) BeginLogin(user webauthn.User, _ ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{
		Challenge: "test-challenge",
		UserID:    user.WebAuthnID(),
	}, nil
}

func (rp *fakeRP) ValidateLogin(_ webauthn.User, _ webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	if rp.validateErr != nil {
		return nil, rp.validateErr
	}
	return rp.credential, nil
}

type fakeParser struct{}

func (fakeParser) ParseCredentialCreationResponseBytes([]byte) (*protocol.ParsedCredentialCreationData, error) {
	return &protocol.ParsedCredentialCreationData{}, nil
}

func (fakeParser) ParseCredentialRequestResponseBytes([]byte) (*protocol.ParsedCredentialAssertionData, error) {
	return &protocol.ParsedCredentialAssertionData{}, nil
}

// ─── Entorno ─────────────────────────────────────────────────────────

type env struct {
	users      *fakeUserRepo
	challenges *fakeChallengeRepo
	creds      *fakeCredentialRepo
	sessions   *fakeSessions
	rp         *fakeRP
	svc        Service
	now        time.Time
}

func newEnv() *env {
	e := &env{
		users:      newFakeUserRepo(),
		challenges: newFakeChallengeRepo(),
		creds:      newFakeCredentialRepo(),
		sessions:   &fakeSessions{},
		rp: &fakeRP{credential: &webauthn.Credential{
			ID:        []byte("cred-id-1"),
			PublicKey: []byte("public-key"),
			Authenticator: webauthn.Authenticator{
				SignCount: 1,
			},
		}},
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	e.svc = New(Deps{
		Users:        e.users,
		Challenges:   e.challenges,
		Credentials:  e.creds,
		Sessions:     e.sessions,
		RP:           e.rp,
		Parser:       fakeParser{},
		ChallengeTTL: 5 * time.Minute,
		Now:          func() time.Time { return e.now },
	})
	return e
}

func (e *env) register(t *testing.T, email string) {
	t.Helper()
	ch, err := e.svc.BeginRegistration(context.Background(), email)
	require.NoError(t, err)
	_, err = e.svc.FinishRegistration(context.Background(), ch.ChallengeID, []byte(`{}`))
	require.NoError(t, err)
}

// ─── Tests ───────────────────────────────────────────────────────────

func TestRegistrationRoundTrip(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	ch, err := e.svc.BeginRegistration(ctx, "user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, ch.ChallengeID)
	assert.NotEmpty(t, ch.OptionsJSON)
	assert.Equal(t, 1, e.challenges.count())

	id, err := e.svc.FinishRegistration(ctx, ch.ChallengeID, []byte(`{}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// El challenge se consumió y la credencial quedó persistida.
	assert.Equal(t, 0, e.challenges.count())
	stored, err := e.creds.GetByCredentialID(ctx, []byte("cred-id-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), stored.SignCount)
	assert.Equal(t, []byte("public-key"), stored.PublicKey)
}

func TestFinishRegistrationConsumesChallengeOnFailure(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	ch, err := e.svc.BeginRegistration(ctx, "user@example.com")
	require.NoError(t, err)

	e.rp.validateErr = errors.New("attestation invalid")
	_, err = e.svc.FinishRegistration(ctx, ch.ChallengeID, []byte(`{}`))
	assert.ErrorIs(t, err, ErrVerificationFailed)

	// Terminal: el mismo challenge no admite un segundo intento.
	assert.Equal(t, 0, e.challenges.count())
	e.rp.validateErr = nil
	_, err = e.svc.FinishRegistration(ctx, ch.ChallengeID, []byte(`{}`))
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestFinishRegistrationRejectsExpiredChallenge(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	ch, err := e.svc.BeginRegistration(ctx, "user@example.com")
	require.NoError(t, err)

	e.now = e.now.Add(6 * time.Minute)
	_, err = e.svc.FinishRegistration(ctx, ch.ChallengeID, []byte(`{}`))
	assert.ErrorIs(t, err, ErrChallengeExpired)
	assert.Equal(t, 0, e.challenges.count())
}

func TestChallengePurposeIsEnforced(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.register(t, "user@example.com")

	// Un challenge de login no sirve para completar un registro.
	ch, err := e.svc.BeginLogin(ctx, "user@example.com")
	require.NoError(t, err)
	_, err = e.svc.FinishRegistration(ctx, ch.ChallengeID, []byte(`{}`))
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestLoginRoundTrip(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.register(t, "user@example.com")

	ch, err := e.svc.BeginLogin(ctx, "user@example.com")
	require.NoError(t, err)

	e.rp.credential.Authenticator.SignCount = 2
	pair, err := e.svc.FinishLogin(ctx, ch.ChallengeID, []byte(`{}`), "1.2.3.4")
	require.NoError(t, err)
	assert.NotNil(t, pair)
	assert.Equal(t, []string{"user-1"}, e.sessions.issued)

	stored, err := e.creds.GetByCredentialID(ctx, []byte("cred-id-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), stored.SignCount)
	assert.NotNil(t, stored.LastUsedAt)
}

func TestLoginRejectsStaleSignCount(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.register(t, "user@example.com") // persistido con sign_count 1

	ch, err := e.svc.BeginLogin(ctx, "user@example.com")
	require.NoError(t, err)

	// El autenticador reporta el mismo contador: regresión.
	e.rp.credential.Authenticator.SignCount = 1
	_, err = e.svc.FinishLogin(ctx, ch.ChallengeID, []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrReplayDetected)
	assert.Empty(t, e.sessions.issued)
}

func TestLoginRejectsCloneWarning(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.register(t, "user@example.com")

	ch, err := e.svc.BeginLogin(ctx, "user@example.com")
	require.NoError(t, err)

	e.rp.credential.Authenticator.SignCount = 5
	e.rp.credential.Authenticator.CloneWarning = true
	_, err = e.svc.FinishLogin(ctx, ch.ChallengeID, []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrReplayDetected)
}

func TestBeginLoginRequiresCredentials(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, err := e.svc.BeginLogin(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = e.users.GetOrCreateByEmail(ctx, "bare@example.com")
	require.NoError(t, err)
	_, err = e.svc.BeginLogin(ctx, "bare@example.com")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestLoginChallengeIsSingleUse(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.register(t, "user@example.com")

	ch, err := e.svc.BeginLogin(ctx, "user@example.com")
	require.NoError(t, err)

	e.rp.credential.Authenticator.SignCount = 2
	_, err = e.svc.FinishLogin(ctx, ch.ChallengeID, []byte(`{}`), "")
	require.NoError(t, err)

	_, err = e.svc.FinishLogin(ctx, ch.ChallengeID, []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
