package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/knock/internal/auth/session"
	"github.com/dropDatabas3/knock/internal/http/dto"
	httperrors "github.com/dropDatabas3/knock/internal/http/errors"
)

// TokenController maneja la rotación de tokens.
type TokenController struct {
	service session.Service
}

// NewTokenController crea el controller.
func NewTokenController(service session.Service) *TokenController {
	return &TokenController{service: service}
}

// Refresh maneja POST /v1/auth/token/refresh.
func (c *TokenController) Refresh(w http.ResponseWriter, r *http.Request) {
	var in dto.TokenRefreshIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(in.RefreshToken) == "" {
		httperrors.WriteError(w, r, httperrors.ErrBadRequest.WithDetail("refresh_token is required"))
		return
	}

	pair, err := c.service.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshTokenExpired):
			httperrors.WriteError(w, r, httperrors.ErrTokenExpired)
		case errors.Is(err, session.ErrRefreshTokenRevoked):
			httperrors.WriteError(w, r, httperrors.ErrTokenRevoked)
		case errors.Is(err, session.ErrInvalidRefreshToken):
			httperrors.WriteError(w, r, httperrors.ErrTokenInvalid)
		default:
			httperrors.WriteError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenPairOut(pair))
}

// Revoke maneja POST /v1/auth/token/revoke (logout).
// Revoca la sesión del refresh token presentado.
func (c *TokenController) Revoke(w http.ResponseWriter, r *http.Request) {
	var in dto.TokenRefreshIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(in.RefreshToken) == "" {
		httperrors.WriteError(w, r, httperrors.ErrBadRequest.WithDetail("refresh_token is required"))
		return
	}

	if err := c.service.Revoke(r.Context(), in.RefreshToken); err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshTokenExpired):
			httperrors.WriteError(w, r, httperrors.ErrTokenExpired)
		case errors.Is(err, session.ErrInvalidRefreshToken):
			httperrors.WriteError(w, r, httperrors.ErrTokenInvalid)
		default:
			httperrors.WriteError(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
