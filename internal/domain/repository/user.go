// Package repository define interfaces de acceso a datos.
package repository

import (
	"context"
	"time"
)

// User representa un usuario del sistema.
// El ID es inmutable y el email es único; el core nunca borra usuarios.
type User struct {
	ID         string
	Email      string
	TOTPSecret *string // base32 sin padding; nil = no enrolado
	CreatedAt  time.Time
}

// TOTPEnrolled indica si el usuario tiene un secreto TOTP configurado.
func (u *User) TOTPEnrolled() bool {
	return u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// ListUsersFilter opciones para listar usuarios.
type ListUsersFilter struct {
	Limit  int    // Default 100, max 500
	Offset int    // Default 0
	Search string // Opcional: búsqueda por email
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// GetOrCreateByEmail busca un usuario por email, creándolo si no existe.
	// Cualquier verificador puede provocar la creación del usuario.
	GetOrCreateByEmail(ctx context.Context, email string) (*User, error)

	// GetByEmail busca un usuario por email.
	// Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID busca un usuario por ID.
	// Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, userID string) (*User, error)

	// SetTOTPSecret persiste el secreto TOTP del usuario, pisando cualquier
	// secreto anterior (re-enrolar invalida el secreto previo).
	SetTOTPSecret(ctx context.Context, userID, secretB32 string) error

	// List lista usuarios con paginación (superficie admin).
	List(ctx context.Context, filter ListUsersFilter) ([]User, error)
}
