package pg

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/knock/internal/domain/repository"
)

type userRepo struct{ pool *pgxpool.Pool }

func (r *userRepo) GetOrCreateByEmail(ctx context.Context, email string) (*repository.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, repository.ErrInvalidInput
	}
	// Upsert idempotente: el DO UPDATE vacío fuerza RETURNING también
	// cuando la fila ya existía.
	const q = `
		INSERT INTO app_user (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, totp_secret, created_at`
	var u repository.User
	if err := r.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.TOTPSecret, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	const q = `SELECT id, email, totp_secret, created_at FROM app_user WHERE email = LOWER($1)`
	var u repository.User
	if err := r.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.TOTPSecret, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	const q = `SELECT id, email, totp_secret, created_at FROM app_user WHERE id = $1`
	var u repository.User
	if err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.TOTPSecret, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) SetTOTPSecret(ctx context.Context, userID, secret string) error {
	// Re-enrolar pisa el secreto anterior.
	tag, err := r.pool.Exec(ctx, `UPDATE app_user SET totp_secret = $2 WHERE id = $1`, userID, secret)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// listUsersQuery arma el SELECT según el filtro: el search opcional
// filtra por email con ILIKE.
func listUsersQuery(filter repository.ListUsersFilter) (string, []any) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `
		SELECT id, email, totp_secret, created_at
		FROM app_user`
	args := []any{limit, filter.Offset}
	if s := strings.TrimSpace(filter.Search); s != "" {
		q += `
		WHERE email ILIKE $3`
		args = append(args, "%"+s+"%")
	}
	q += `
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	return q, args
}

func (r *userRepo) List(ctx context.Context, filter repository.ListUsersFilter) ([]repository.User, error) {
	q, args := listUsersQuery(filter)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.User
	for rows.Next() {
		var u repository.User
		if err := rows.Scan(&u.ID, &u.Email, &u.TOTPSecret, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
