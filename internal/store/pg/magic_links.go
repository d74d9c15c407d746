package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/knock/internal/domain/repository"
)

type magicLinkRepo struct{ pool *pgxpool.Pool }

func (r *magicLinkRepo) Create(ctx context.Context, input repository.CreateMagicLinkInput) error {
	const q = `
		INSERT INTO magic_link (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)`
	_, err := r.pool.Exec(ctx, q, input.TokenHash, input.UserID, input.ExpiresAt)
	if err != nil && isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func (r *magicLinkRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	// Conditional update: solo gana exactamente un consumidor.
	const q = `
		UPDATE magic_link
		SET used = TRUE
		WHERE token_hash = $1 AND used = FALSE AND expires_at > $2
		RETURNING user_id`
	var userID string
	err := r.pool.QueryRow(ctx, q, tokenHash, now).Scan(&userID)
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	// Clasificar el rechazo. "usado" gana sobre "vencido".
	const qWhy = `SELECT used, expires_at FROM magic_link WHERE token_hash = $1`
	var used bool
	var expiresAt time.Time
	switch err := r.pool.QueryRow(ctx, qWhy, tokenHash).Scan(&used, &expiresAt); {
	case errors.Is(err, pgx.ErrNoRows):
		return "", repository.ErrNotFound
	case err != nil:
		return "", err
	case used:
		return "", repository.ErrAlreadyUsed
	case !expiresAt.After(now):
		return "", repository.ErrTokenExpired
	default:
		// Carrera: otro consumidor ganó entre el UPDATE y la lectura.
		return "", repository.ErrAlreadyUsed
	}
}

func (r *magicLinkRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM magic_link WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
