package repository

import (
	"context"
	"time"
)

// MagicLink representa un token de login de un solo uso.
// Solo se persiste el hash del token, nunca el valor crudo.
type MagicLink struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// CreateMagicLinkInput contiene los datos para crear un magic link.
type CreateMagicLinkInput struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}

// MagicLinkRepository define operaciones sobre magic links.
type MagicLinkRepository interface {
	// Create inserta un magic link nuevo (used = false).
	Create(ctx context.Context, input CreateMagicLinkInput) error

	// Consume marca el link como usado y retorna el user_id, de forma
	// atómica (conditional update, nunca read-then-write).
	// Retorna ErrNotFound si el hash no existe, ErrAlreadyUsed si ya fue
	// consumido y ErrTokenExpired si expiró. El chequeo de "usado" va
	// antes que el de expiración: un link usado y además vencido reporta
	// ErrAlreadyUsed.
	Consume(ctx context.Context, tokenHash string, now time.Time) (userID string, err error)

	// DeleteExpired elimina links vencidos (cleanup job).
	// Retorna el número de filas eliminadas.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
