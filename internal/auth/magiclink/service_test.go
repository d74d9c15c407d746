package magiclink

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/knock/internal/auth/session"
	"github.com/dropDatabas3/knock/internal/domain/repository"
	"github.com/dropDatabas3/knock/internal/rate"
)

// ─── Fakes ───────────────────────────────────────────────────────────

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*repository.User // por email
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

func (r *fakeUserRepo) SetTOTPSecret(_ context.Context, id, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			u.TOTPSecret = &secret
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeUserRepo) List(context.Context, repository.ListUsersFilter) ([]repository.User, error) {
	return nil, nil
}

type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[string]*repository.MagicLink
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[string]*repository.MagicLink)}
}

func (r *fakeLinkRepo) Create(_ context.Context, input repository.CreateMagicLinkInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[input.TokenHash] = &repository.MagicLink{
		TokenHash: input.TokenHash,
		UserID:    input.UserID,
		ExpiresAt: input.ExpiresAt,
	}
	return nil
}

func (r *fakeLinkRepo) Consume(_ context.Context, hash string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[hash]
	if !ok {
		return "", repository.ErrNotFound
	}
	if l.Used {
		return "", repository.ErrAlreadyUsed
	}
	if !l.ExpiresAt.After(now) {
		return "", repository.ErrTokenExpired
	}
	l.Used = true
	return l.UserID, nil
}

func (r *fakeLinkRepo) DeleteExpired(context.Context, time.Time) (int, error) { return 0, nil }

type fakeQueue struct {
	mu    sync.Mutex
	sent  []string // links encolados
	to    []string
}

func (q *fakeQueue) EnqueueMagicLink(_ context.Context, recipient, link string, _ time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, link)
	q.to = append(q.to, recipient)
	return "task-1", nil
}

func (q *fakeQueue) Enqueue(context.Context, repository.EnqueueEmailInput) (string, error) {
	return "task-x", nil
}

type fakeSessions struct {
	issued []string
}

func (s *fakeSessions) Issue(_ context.Context, userID string) (*session.TokenPair, error) {
	s.issued = append(s.issued, userID)
	return &session.TokenPair{AccessToken: "at-" + userID, RefreshToken: "rt-" + userID, TokenType: "Bearer"}, nil
}

func (s *fakeSessions) Refresh(context.Context, string) (*session.TokenPair, error) {
	return nil, session.ErrInvalidRefreshToken
}

func (s *fakeSessions) Revoke(context.Context, string) error { return nil }

func (s *fakeSessions) RevokeAll(context.Context, string) (int, error) { return 0, nil }

// ─── Tests ───────────────────────────────────────────────────────────

type env struct {
	users    *fakeUserRepo
	links    *fakeLinkRepo
	queue    *fakeQueue
	sessions *fakeSessions
	svc      Service
	now      time.Time
}

func newEnv() *env {
	e := &env{
		users:    newFakeUserRepo(),
		links:    newFakeLinkRepo(),
		queue:    &fakeQueue{},
		sessions: &fakeSessions{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	e.svc = New(Deps{
		Users:    e.users,
		Links:    e.links,
		Queue:    e.queue,
		Sessions: e.sessions,
		BaseURL:  "https://app.example.com/auth/magic",
		TTL:      15 * time.Minute,
		Now:      func() time.Time { return e.now },
	})
	return e
}

// tokenFromLink extrae el token crudo del enlace encolado.
func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestRequestEnqueuesLinkWithToken(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	require.NoError(t, e.svc.Request(ctx, "User@Example.com ", "1.2.3.4"))

	require.Len(t, e.queue.sent, 1)
	assert.Equal(t, []string{"user@example.com"}, e.queue.to)
	assert.True(t, strings.HasPrefix(e.queue.sent[0], "https://app.example.com/auth/magic?token="))
	assert.NotEmpty(t, tokenFromLink(t, e.queue.sent[0]))

	// El hash persistido no es el token crudo.
	raw := tokenFromLink(t, e.queue.sent[0])
	_, ok := e.links.links[raw]
	assert.False(t, ok)
	assert.Len(t, e.links.links, 1)
}

func TestRequestRejectsInvalidEmail(t *testing.T) {
	e := newEnv()
	err := e.svc.Request(context.Background(), "not-an-email", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.Empty(t, e.queue.sent)
}

func TestVerifyIssuesSessionOnce(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	require.NoError(t, e.svc.Request(ctx, "user@example.com", ""))
	raw := tokenFromLink(t, e.queue.sent[0])

	pair, err := e.svc.Verify(ctx, raw, "1.2.3.4")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, []string{"user-1"}, e.sessions.issued)

	// Segundo canje: el link ya fue usado.
	_, err = e.svc.Verify(ctx, raw, "1.2.3.4")
	assert.ErrorIs(t, err, ErrTokenUsed)
}

func TestVerifyRejectsExpiredLink(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	require.NoError(t, e.svc.Request(ctx, "user@example.com", ""))
	raw := tokenFromLink(t, e.queue.sent[0])

	e.now = e.now.Add(16 * time.Minute)
	_, err := e.svc.Verify(ctx, raw, "")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyUsedWinsOverExpired(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	require.NoError(t, e.svc.Request(ctx, "user@example.com", ""))
	raw := tokenFromLink(t, e.queue.sent[0])

	_, err := e.svc.Verify(ctx, raw, "")
	require.NoError(t, err)

	// Usado y además vencido: reporta "usado".
	e.now = e.now.Add(time.Hour)
	_, err = e.svc.Verify(ctx, raw, "")
	assert.ErrorIs(t, err, ErrTokenUsed)
}

func TestVerifyRejectsUnknownToken(t *testing.T) {
	e := newEnv()
	_, err := e.svc.Verify(context.Background(), "nunca-existio", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequestIsIdempotentPerEmail(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	require.NoError(t, e.svc.Request(ctx, "user@example.com", ""))
	require.NoError(t, e.svc.Request(ctx, "user@example.com", ""))

	// Mismo usuario, dos links independientes.
	assert.Len(t, e.users.users, 1)
	assert.Len(t, e.links.links, 2)

	// Ambos links canjean para el mismo usuario.
	for _, link := range e.queue.sent {
		pair, err := e.svc.Verify(ctx, tokenFromLink(t, link), "")
		require.NoError(t, err)
		assert.NotNil(t, pair)
	}
	assert.Equal(t, []string{"user-1", "user-1"}, e.sessions.issued)
}

type stubEmailLimiter struct {
	res     rate.Result
	err     error
	lastKey string
}

func (l *stubEmailLimiter) Allow(_ context.Context, key string) (rate.Result, error) {
	l.lastKey = key
	return l.res, l.err
}

func TestRequestBoundsEmailVolumePerRecipient(t *testing.T) {
	e := newEnv()
	lim := &stubEmailLimiter{res: rate.Result{Allowed: false, RetryAfter: time.Hour}}
	e.svc = New(Deps{
		Users:        e.users,
		Links:        e.links,
		Queue:        e.queue,
		Sessions:     e.sessions,
		EmailLimiter: lim,
		BaseURL:      "https://app.example.com/auth/magic",
		Now:          func() time.Time { return e.now },
	})

	err := e.svc.Request(context.Background(), "user@example.com", "")

	assert.ErrorIs(t, err, ErrEmailRateLimited)
	assert.Equal(t, "email:user@example.com", lim.lastKey)
	assert.Empty(t, e.queue.sent, "no debe encolar cuando el bucket rechaza")
}

func TestRequestEmailLimiterFailsOpen(t *testing.T) {
	e := newEnv()
	lim := &stubEmailLimiter{err: errors.New("backend down")}
	e.svc = New(Deps{
		Users:        e.users,
		Links:        e.links,
		Queue:        e.queue,
		Sessions:     e.sessions,
		EmailLimiter: lim,
		BaseURL:      "https://app.example.com/auth/magic",
		Now:          func() time.Time { return e.now },
	})

	require.NoError(t, e.svc.Request(context.Background(), "user@example.com", ""))
	assert.Len(t, e.queue.sent, 1)
}
