package repository

import (
	"context"
	"time"
)

// ChallengePurpose indica el propósito de una ceremonia WebAuthn pendiente.
type ChallengePurpose string

const (
	PurposeRegister ChallengePurpose = "register"
	PurposeLogin    ChallengePurpose = "login"
)

// PendingChallenge representa una ceremonia WebAuthn en curso.
// SessionData guarda el estado serializado de la ceremonia tal como se
// ofreció al cliente; hace falta para verificar la respuesta contra
// exactamente lo ofrecido.
type PendingChallenge struct {
	ID          string
	UserID      string
	Purpose     ChallengePurpose
	SessionData []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// CreatePendingChallengeInput contiene los datos para iniciar una ceremonia.
type CreatePendingChallengeInput struct {
	UserID      string
	Purpose     ChallengePurpose
	SessionData []byte
	ExpiresAt   time.Time
}

// PendingChallengeRepository define operaciones sobre ceremonias pendientes.
type PendingChallengeRepository interface {
	// Create persiste una ceremonia pendiente. Retorna el ID generado.
	Create(ctx context.Context, input CreatePendingChallengeInput) (string, error)

	// Get busca una ceremonia por ID y propósito.
	// Retorna ErrNotFound si no existe o el propósito no coincide.
	Get(ctx context.Context, id string, purpose ChallengePurpose) (*PendingChallenge, error)

	// Delete elimina una ceremonia pendiente. Idempotente.
	Delete(ctx context.Context, id string) error

	// DeleteExpired elimina ceremonias vencidas (cleanup job).
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// WebAuthnCredential representa una credencial pública registrada.
type WebAuthnCredential struct {
	ID           string
	UserID       string
	CredentialID []byte
	PublicKey    []byte
	SignCount    uint32
	Transports   []string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
}

// CreateWebAuthnCredentialInput contiene los datos de una credencial nueva.
type CreateWebAuthnCredentialInput struct {
	UserID       string
	CredentialID []byte
	PublicKey    []byte
	SignCount    uint32
	Transports   []string
}

// WebAuthnCredentialRepository define operaciones sobre credenciales.
type WebAuthnCredentialRepository interface {
	// Create persiste una credencial recién registrada.
	// Retorna ErrConflict si el credential_id ya existe.
	Create(ctx context.Context, input CreateWebAuthnCredentialInput) (string, error)

	// GetByCredentialID busca una credencial por su credential_id binario.
	// Retorna ErrNotFound si no existe.
	GetByCredentialID(ctx context.Context, credentialID []byte) (*WebAuthnCredential, error)

	// ListByUser retorna todas las credenciales de un usuario.
	ListByUser(ctx context.Context, userID string) ([]WebAuthnCredential, error)

	// BumpSignCount actualiza el contador de firmas con compare-and-set:
	// solo escribe si el nuevo valor es estrictamente mayor al persistido.
	// Retorna false si la condición no se cumplió (regresión de contador,
	// es decir un posible replay de autenticador clonado).
	BumpSignCount(ctx context.Context, credentialID []byte, newCount uint32, usedAt time.Time) (bool, error)
}
