// Package store define la capa de acceso a datos (DAL) del servicio.
//
// Los servicios de dominio dependen de las interfaces de
// internal/domain/repository; este paquete agrupa esas interfaces en un
// único handle y provee la fábrica por driver.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/knock/internal/domain/repository"
	"github.com/dropDatabas3/knock/internal/store/pg"
)

// DataAccessLayer agrupa todos los repositorios bajo un único handle.
// Se inyecta explícitamente en los servicios; no hay estado global.
type DataAccessLayer interface {
	Users() repository.UserRepository
	MagicLinks() repository.MagicLinkRepository
	RefreshTokens() repository.RefreshTokenRepository
	PendingChallenges() repository.PendingChallengeRepository
	WebAuthnCredentials() repository.WebAuthnCredentialRepository
	EmailTasks() repository.EmailTaskRepository
	Audit() repository.AuditRepository

	Ping(ctx context.Context) error
	Close()
}

// Config contiene los parámetros de conexión del store.
type Config struct {
	Driver          string // hoy solo "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

// Open crea el DAL según el driver configurado.
func Open(ctx context.Context, cfg Config) (DataAccessLayer, error) {
	switch cfg.Driver {
	case "", "postgres", "pg":
		return pg.New(ctx, cfg.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}
