package repository

import (
	"context"
	"time"
)

// RefreshToken representa el registro revocable de un refresh token.
// El valor opaco viaja envuelto en un JWT firmado; acá solo vive su hash.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Valid indica si el token sigue siendo canjeable.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && !now.After(t.ExpiresAt)
}

// CreateRefreshTokenInput contiene los datos para crear un refresh token.
type CreateRefreshTokenInput struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}

// RefreshTokenRepository define operaciones sobre refresh tokens.
type RefreshTokenRepository interface {
	// Create crea un nuevo refresh token. Retorna el ID del registro.
	Create(ctx context.Context, input CreateRefreshTokenInput) (string, error)

	// GetByHash busca un token por su hash.
	// Retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Consume valida y revoca el token en una sola operación condicional
	// (rotación con revoke-on-rotate). Retorna el user_id del dueño.
	// Retorna ErrNotFound si no existe, ErrTokenRevoked si ya estaba
	// revocado y ErrTokenExpired si venció.
	Consume(ctx context.Context, tokenHash string, now time.Time) (userID string, err error)

	// Revoke revoca un token por su hash. Idempotente.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeAllByUser revoca todos los tokens vigentes de un usuario.
	// Retorna el número de tokens revocados.
	RevokeAllByUser(ctx context.Context, userID string) (int, error)

	// DeleteExpired elimina tokens vencidos o revocados (cleanup job).
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
