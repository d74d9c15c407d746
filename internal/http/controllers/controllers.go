// Package controllers contiene los controllers HTTP del servicio.
//
// Los controllers solo traducen HTTP ↔ services: decodifican el body,
// delegan en el service y mapean sus errores al catálogo de la API.
package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/knock/internal/auth/session"
	"github.com/dropDatabas3/knock/internal/http/dto"
	httperrors "github.com/dropDatabas3/knock/internal/http/errors"
)

const maxBodyBytes = 64 * 1024

// decodeJSON decodifica el body JSON con límite de tamaño.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return httperrors.ErrInvalidJSON.WithCause(err)
	}
	return nil
}

// writeJSON escribe una respuesta JSON con el status dado.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// tokenPairOut convierte el resultado del service al DTO de la API.
func tokenPairOut(pair *session.TokenPair) dto.TokenPairOut {
	return dto.TokenPairOut{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	}
}
