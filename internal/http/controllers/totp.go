package controllers

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/knock/internal/auth/totp"
	"github.com/dropDatabas3/knock/internal/http/dto"
	httperrors "github.com/dropDatabas3/knock/internal/http/errors"
	"github.com/dropDatabas3/knock/internal/http/middlewares"
)

// TOTPController maneja los endpoints de TOTP.
type TOTPController struct {
	service totp.Service
}

// NewTOTPController crea el controller.
func NewTOTPController(service totp.Service) *TOTPController {
	return &TOTPController{service: service}
}

// Enroll maneja POST /v1/auth/totp/enroll.
func (c *TOTPController) Enroll(w http.ResponseWriter, r *http.Request) {
	var in dto.TOTPEnrollIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	enr, err := c.service.Enroll(r.Context(), in.Email)
	if err != nil {
		if errors.Is(err, totp.ErrUserNotFound) {
			httperrors.WriteError(w, r, httperrors.ErrInvalidEmail)
			return
		}
		httperrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TOTPEnrollOut{
		Secret:     enr.Secret,
		OTPAuthURL: enr.OTPAuthURL,
	})
}

// Verify maneja POST /v1/auth/totp/verify.
func (c *TOTPController) Verify(w http.ResponseWriter, r *http.Request) {
	var in dto.TOTPVerifyIn
	if err := decodeJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	pair, err := c.service.Verify(r.Context(), in.Email, in.Code, middlewares.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, totp.ErrUserNotFound), errors.Is(err, totp.ErrInvalidCode):
			// Mismo error para usuario inexistente y código incorrecto.
			httperrors.WriteError(w, r, httperrors.ErrInvalidCredentials)
		case errors.Is(err, totp.ErrNotEnrolled):
			httperrors.WriteError(w, r, httperrors.ErrNotEnrolled)
		default:
			httperrors.WriteError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenPairOut(pair))
}
