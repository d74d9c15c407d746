package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/knock/internal/auth/magiclink"
	"github.com/dropDatabas3/knock/internal/http/dto"
	httperrors "github.com/dropDatabas3/knock/internal/http/errors"
	"github.com/dropDatabas3/knock/internal/http/middlewares"
)

// MagicController maneja los endpoints de magic link.
type MagicController struct {
	service magiclink.Service
}

// NewMagicController crea el controller.
func NewMagicController(service magiclink.Service) *MagicController {
	return &MagicController{service: service}
}

// Request maneja POST /v1/auth/request/magic.
// Responde 202 siempre que el email sea sintácticamente válido: el
// resultado no revela si la cuenta existía.
func (c *MagicController) Request(w http.ResponseWriter, r *http.Request) {
	var in dto.MagicRequestIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	err := c.service.Request(r.Context(), in.Email, middlewares.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, magiclink.ErrInvalidEmail):
			httperrors.WriteError(w, r, httperrors.ErrInvalidEmail)
		case errors.Is(err, magiclink.ErrEmailRateLimited):
			httperrors.WriteError(w, r, httperrors.ErrRateLimited)
		default:
			httperrors.WriteError(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Verify maneja POST /v1/auth/verify/magic.
func (c *MagicController) Verify(w http.ResponseWriter, r *http.Request) {
	var in dto.MagicVerifyIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Token) == "" {
		httperrors.WriteError(w, r, httperrors.ErrBadRequest.WithDetail("token is required"))
		return
	}

	pair, err := c.service.Verify(r.Context(), in.Token, middlewares.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, magiclink.ErrTokenUsed):
			httperrors.WriteError(w, r, httperrors.ErrTokenUsed)
		case errors.Is(err, magiclink.ErrTokenExpired):
			httperrors.WriteError(w, r, httperrors.ErrTokenExpired)
		case errors.Is(err, magiclink.ErrInvalidToken):
			httperrors.WriteError(w, r, httperrors.ErrTokenInvalid)
		default:
			httperrors.WriteError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenPairOut(pair))
}
