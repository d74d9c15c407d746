// Package pg implementa la capa de acceso a datos sobre PostgreSQL
// usando pgx/v5 con pool de conexiones.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/knock/internal/domain/repository"
)

// Store es el handle principal sobre el pool de PostgreSQL.
type Store struct {
	pool *pgxpool.Pool

	users       *userRepo
	magicLinks  *magicLinkRepo
	tokens      *refreshTokenRepo
	challenges  *pendingChallengeRepo
	credentials *webauthnCredentialRepo
	emails      *emailTaskRepo
	audit       *auditRepo
}

// PoolConfig contiene tuning opcional del pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

// New crea el Store y valida la conexión con un ping.
func New(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	// Mapear MaxIdleConns → MinConns (pgxpool)
	if cfg.MaxIdleConns > 0 {
		pcfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{pool: pool}
	s.users = &userRepo{pool: pool}
	s.magicLinks = &magicLinkRepo{pool: pool}
	s.tokens = &refreshTokenRepo{pool: pool}
	s.challenges = &pendingChallengeRepo{pool: pool}
	s.credentials = &webauthnCredentialRepo{pool: pool}
	s.emails = &emailTaskRepo{pool: pool}
	s.audit = &auditRepo{pool: pool}
	return s, nil
}

// Pool expone el pool interno para usos avanzados (migraciones/metrics).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Users() repository.UserRepository                     { return s.users }
func (s *Store) MagicLinks() repository.MagicLinkRepository           { return s.magicLinks }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository     { return s.tokens }
func (s *Store) PendingChallenges() repository.PendingChallengeRepository {
	return s.challenges
}
func (s *Store) WebAuthnCredentials() repository.WebAuthnCredentialRepository {
	return s.credentials
}
func (s *Store) EmailTasks() repository.EmailTaskRepository { return s.emails }
func (s *Store) Audit() repository.AuditRepository          { return s.audit }

// isUniqueViolation detecta violaciones de constraint UNIQUE (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
