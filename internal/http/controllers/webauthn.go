package controllers

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/knock/internal/auth/webauthn"
	"github.com/dropDatabas3/knock/internal/http/dto"
	httperrors "github.com/dropDatabas3/knock/internal/http/errors"
	"github.com/dropDatabas3/knock/internal/http/middlewares"
)

// WebAuthnController maneja los endpoints de WebAuthn.
type WebAuthnController struct {
	service webauthn.Service
}

// NewWebAuthnController crea el controller.
func NewWebAuthnController(service webauthn.Service) *WebAuthnController {
	return &WebAuthnController{service: service}
}

// RegisterOptions maneja POST /v1/auth/webauthn/register/options.
func (c *WebAuthnController) RegisterOptions(w http.ResponseWriter, r *http.Request) {
	var in dto.WebAuthnOptionsIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	ch, err := c.service.BeginRegistration(r.Context(), in.Email)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WebAuthnOptionsOut{
		ChallengeID: ch.ChallengeID,
		Options:     ch.OptionsJSON,
	})
}

// RegisterComplete maneja POST /v1/auth/webauthn/register/complete.
func (c *WebAuthnController) RegisterComplete(w http.ResponseWriter, r *http.Request) {
	var in dto.WebAuthnCompleteIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	credentialID, err := c.service.FinishRegistration(r.Context(), in.ChallengeID, in.Response)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.WebAuthnRegisterOut{CredentialID: credentialID})
}

// LoginOptions maneja POST /v1/auth/webauthn/login/options.
func (c *WebAuthnController) LoginOptions(w http.ResponseWriter, r *http.Request) {
	var in dto.WebAuthnOptionsIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	ch, err := c.service.BeginLogin(r.Context(), in.Email)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WebAuthnOptionsOut{
		ChallengeID: ch.ChallengeID,
		Options:     ch.OptionsJSON,
	})
}

// LoginComplete maneja POST /v1/auth/webauthn/login/complete.
func (c *WebAuthnController) LoginComplete(w http.ResponseWriter, r *http.Request) {
	var in dto.WebAuthnCompleteIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	pair, err := c.service.FinishLogin(r.Context(), in.ChallengeID, in.Response, middlewares.ClientIP(r))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairOut(pair))
}

// writeError mapea los errores del service al catálogo de la API.
func (c *WebAuthnController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, webauthn.ErrInvalidEmail):
		httperrors.WriteError(w, r, httperrors.ErrInvalidEmail)
	case errors.Is(err, webauthn.ErrUserNotFound):
		httperrors.WriteError(w, r, httperrors.ErrUserNotFound)
	case errors.Is(err, webauthn.ErrNoCredentials):
		httperrors.WriteError(w, r, httperrors.ErrNoCredentials)
	case errors.Is(err, webauthn.ErrChallengeNotFound):
		httperrors.WriteError(w, r, httperrors.ErrChallengeNotFound)
	case errors.Is(err, webauthn.ErrChallengeExpired):
		httperrors.WriteError(w, r, httperrors.ErrTokenExpired.WithDetail("challenge expired"))
	case errors.Is(err, webauthn.ErrVerificationFailed), errors.Is(err, webauthn.ErrReplayDetected):
		httperrors.WriteError(w, r, httperrors.ErrInvalidCredentials)
	default:
		httperrors.WriteError(w, r, err)
	}
}
