package totp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/knock/internal/auth/session"
	"github.com/dropDatabas3/knock/internal/domain/repository"
)

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

// validCode calcula el código HOTP esperado para el secreto en el
// instante dado (mismo algoritmo que el paquete security/totp).
func validCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	require.NoError(t, err)

	counter := at.Unix() / 30
	var msg [8]byte
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}
	m := hmac.New(sha1.New, raw)
	_, _ = m.Write(msg[:])
	sum := m.Sum(nil)
	offset := int(sum[len(sum)-1] & 0x0f)
	bin := (int(sum[offset])&0x7f)<<24 | int(sum[offset+1])<<16 | int(sum[offset+2])<<8 | int(sum[offset+3])
	return fmt.Sprintf("%06d", bin%1000000)
}

func newTestService(users *fakeUserRepo, sessions *fakeSessions, now *time.Time) Service {
	return New(Deps{
		Users:    users,
		Sessions: sessions,
		Issuer:   "Knock",
		Skew:     1,
		Now:      func() time.Time { return *now },
	})
}

func TestEnrollReturnsSecretAndURI(t *testing.T) {
	users := newFakeUserRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(users, &fakeSessions{}, &now)

	enr, err := svc.Enroll(context.Background(), "User@Example.com")
	require.NoError(t, err)
	assert.Len(t, enr.Secret, 32)
	assert.Contains(t, enr.OTPAuthURL, "otpauth://totp/")
	assert.Contains(t, enr.OTPAuthURL, "user%40example.com")
	assert.Contains(t, enr.OTPAuthURL, "secret="+enr.Secret)

	u, err := users.GetByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, u.TOTPSecret)
	assert.Equal(t, enr.Secret, *u.TOTPSecret)
}

func TestReenrollReplacesSecret(t *testing.T) {
	users := newFakeUserRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(users, &fakeSessions{}, &now)

	ctx := context.Background()
	first, err := svc.Enroll(ctx, "user@example.com")
	require.NoError(t, err)
	second, err := svc.Enroll(ctx, "user@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	// Solo el secreto nuevo verifica.
	sessions := &fakeSessions{}
	svc = newTestService(users, sessions, &now)
	_, err = svc.Verify(ctx, "user@example.com", validCode(t, first.Secret, now), "")
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.Verify(ctx, "user@example.com", validCode(t, second.Secret, now), "")
	require.NoError(t, err)
	assert.Len(t, sessions.issued, 1)
}

func TestVerifyAcceptsAdjacentStep(t *testing.T) {
	users := newFakeUserRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sessions := &fakeSessions{}
	svc := newTestService(users, sessions, &now)

	ctx := context.Background()
	enr, err := svc.Enroll(ctx, "user@example.com")
	require.NoError(t, err)

	// Código del paso anterior, dentro de la ventana de skew.
	code := validCode(t, enr.Secret, now.Add(-30*time.Second))
	_, err = svc.Verify(ctx, "user@example.com", code, "")
	require.NoError(t, err)
}

func TestVerifyRejectsDistantStep(t *testing.T) {
	users := newFakeUserRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(users, &fakeSessions{}, &now)

	ctx := context.Background()
	enr, err := svc.Enroll(ctx, "user@example.com")
	require.NoError(t, err)

	code := validCode(t, enr.Secret, now.Add(-5*time.Minute))
	_, err = svc.Verify(ctx, "user@example.com", code, "")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyUnknownUser(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeUserRepo(), &fakeSessions{}, &now)

	_, err := svc.Verify(context.Background(), "nobody@example.com", "123456", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestVerifyNotEnrolled(t *testing.T) {
	users := newFakeUserRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(users, &fakeSessions{}, &now)

	ctx := context.Background()
	_, err := users.GetOrCreateByEmail(ctx, "user@example.com")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "user@example.com", "123456", "")
	assert.ErrorIs(t, err, ErrNotEnrolled)
}
