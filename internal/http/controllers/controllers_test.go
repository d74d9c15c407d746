package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/knock/internal/auth/magiclink"
	"github.com/dropDatabas3/knock/internal/auth/session"
)

// ─── Fakes ───────────────────────────────────────────────────────────

type fakeMagicService struct {
	requestErr error
	verifyErr  error
	pair       *session.TokenPair

	lastEmail string
	lastToken string
}

func (f *fakeMagicService) Request(_ context.Context, emailAddr, _ string) error {
	f.lastEmail = emailAddr
	return f.requestErr
}

func (f *fakeMagicService) Verify(_ context.Context, rawToken, _ string) (*session.TokenPair, error) {
	f.lastToken = rawToken
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.pair, nil
}

type fakeSessionService struct {
	refreshErr error
	pair       *session.TokenPair
	revoked    int
}

func (f *fakeSessionService) Issue(context.Context, string) (*session.TokenPair, error) {
	return f.pair, nil
}

func (f *fakeSessionService) Refresh(context.Context, string) (*session.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.pair, nil
}

func (f *fakeSessionService) Revoke(context.Context, string) error {
	return f.refreshErr
}

func (f *fakeSessionService) RevokeAll(context.Context, string) (int, error) {
	return f.revoked, nil
}

func postJSON(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

var testPair = &session.TokenPair{
	AccessToken:  "access",
	RefreshToken: "refresh",
	TokenType:    "Bearer",
	ExpiresIn:    900,
}

// ─── Magic link ──────────────────────────────────────────────────────

func TestMagicRequestAccepted(t *testing.T) {
	svc := &fakeMagicService{}
	ctrl := NewMagicController(svc)

	rec := postJSON(ctrl.Request, `{"email":"ana@example.com"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ana@example.com", svc.lastEmail)
}

func TestMagicRequestInvalidEmail(t *testing.T) {
	svc := &fakeMagicService{requestErr: magiclink.ErrInvalidEmail}
	ctrl := NewMagicController(svc)

	rec := postJSON(ctrl.Request, `{"email":"no-es-un-email"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_EMAIL", errorCode(t, rec))
}

func TestMagicRequestMalformedBody(t *testing.T) {
	ctrl := NewMagicController(&fakeMagicService{})

	rec := postJSON(ctrl.Request, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", errorCode(t, rec))
}

func TestMagicVerifySuccess(t *testing.T) {
	svc := &fakeMagicService{pair: testPair}
	ctrl := NewMagicController(svc)

	rec := postJSON(ctrl.Verify, `{"token":"raw-token"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "access", out.AccessToken)
	assert.Equal(t, "Bearer", out.TokenType)
	assert.Equal(t, int64(900), out.ExpiresIn)
	assert.Equal(t, "raw-token", svc.lastToken)
}

func TestMagicVerifyErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"used", magiclink.ErrTokenUsed, http.StatusUnauthorized, "TOKEN_USED"},
		{"expired", magiclink.ErrTokenExpired, http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"unknown", magiclink.ErrInvalidToken, http.StatusUnauthorized, "TOKEN_INVALID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := NewMagicController(&fakeMagicService{verifyErr: tc.err})
			rec := postJSON(ctrl.Verify, `{"token":"x"}`)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, errorCode(t, rec))
		})
	}
}

func TestMagicVerifyEmptyToken(t *testing.T) {
	ctrl := NewMagicController(&fakeMagicService{})

	rec := postJSON(ctrl.Verify, `{"token":"  "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, rec))
}

// ─── Token refresh ───────────────────────────────────────────────────

func TestTokenRefreshSuccess(t *testing.T) {
	ctrl := NewTokenController(&fakeSessionService{pair: testPair})

	rec := postJSON(ctrl.Refresh, `{"refresh_token":"abc"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "refresh", out.RefreshToken)
}

func TestTokenRefreshErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"expired", session.ErrRefreshTokenExpired, "TOKEN_EXPIRED"},
		{"revoked", session.ErrRefreshTokenRevoked, "TOKEN_REVOKED"},
		{"invalid", session.ErrInvalidRefreshToken, "TOKEN_INVALID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := NewTokenController(&fakeSessionService{refreshErr: tc.err})
			rec := postJSON(ctrl.Refresh, `{"refresh_token":"abc"}`)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tc.wantCode, errorCode(t, rec))
		})
	}
}

func TestTokenRefreshEmptyToken(t *testing.T) {
	ctrl := NewTokenController(&fakeSessionService{})

	rec := postJSON(ctrl.Refresh, `{"refresh_token":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	ctrl := NewMagicController(&fakeMagicService{})

	rec := postJSON(ctrl.Request, `{"email":"a@b.com","extra":true}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", errorCode(t, rec))
}
