package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/knock/internal/domain/repository"
)

type refreshTokenRepo struct{ pool *pgxpool.Pool }

func (r *refreshTokenRepo) Create(ctx context.Context, input repository.CreateRefreshTokenInput) (string, error) {
	const q = `
		INSERT INTO refresh_token (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id`
	var id string
	if err := r.pool.QueryRow(ctx, q, input.UserID, input.TokenHash, input.ExpiresAt).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return "", repository.ErrConflict
		}
		return "", err
	}
	return id, nil
}

func (r *refreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	const q = `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_token WHERE token_hash = $1`
	var t repository.RefreshToken
	if err := r.pool.QueryRow(ctx, q, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *refreshTokenRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	// Rotación: validar y revocar en una sola operación condicional.
	const q = `
		UPDATE refresh_token
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING user_id`
	var userID string
	err := r.pool.QueryRow(ctx, q, tokenHash, now).Scan(&userID)
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	const qWhy = `SELECT revoked_at, expires_at FROM refresh_token WHERE token_hash = $1`
	var revokedAt *time.Time
	var expiresAt time.Time
	switch err := r.pool.QueryRow(ctx, qWhy, tokenHash).Scan(&revokedAt, &expiresAt); {
	case errors.Is(err, pgx.ErrNoRows):
		return "", repository.ErrNotFound
	case err != nil:
		return "", err
	case revokedAt != nil:
		return "", repository.ErrTokenRevoked
	case !expiresAt.After(now):
		return "", repository.ErrTokenExpired
	default:
		return "", repository.ErrTokenRevoked
	}
}

func (r *refreshTokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE refresh_token SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	return err
}

func (r *refreshTokenRepo) RevokeAllByUser(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_token SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *refreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM refresh_token
		WHERE expires_at <= $1 OR revoked_at IS NOT NULL`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
