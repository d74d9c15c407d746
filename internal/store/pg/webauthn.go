package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/knock/internal/domain/repository"
)

type pendingChallengeRepo struct{ pool *pgxpool.Pool }

func (r *pendingChallengeRepo) Create(ctx context.Context, input repository.CreatePendingChallengeInput) (string, error) {
	const q = `
		INSERT INTO pending_webauthn (user_id, purpose, session_data, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	var id string
	if err := r.pool.QueryRow(ctx, q, input.UserID, string(input.Purpose), input.SessionData, input.ExpiresAt).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *pendingChallengeRepo) Get(ctx context.Context, id string, purpose repository.ChallengePurpose) (*repository.PendingChallenge, error) {
	const q = `
		SELECT id, user_id, purpose, session_data, created_at, expires_at
		FROM pending_webauthn
		WHERE id = $1 AND purpose = $2`
	var c repository.PendingChallenge
	var p string
	if err := r.pool.QueryRow(ctx, q, id, string(purpose)).Scan(&c.ID, &c.UserID, &p, &c.SessionData, &c.CreatedAt, &c.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	c.Purpose = repository.ChallengePurpose(p)
	return &c, nil
}

func (r *pendingChallengeRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pending_webauthn WHERE id = $1`, id)
	return err
}

func (r *pendingChallengeRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pending_webauthn WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type webauthnCredentialRepo struct{ pool *pgxpool.Pool }

func (r *webauthnCredentialRepo) Create(ctx context.Context, input repository.CreateWebAuthnCredentialInput) (string, error) {
	const q = `
		INSERT INTO webauthn_credential (user_id, credential_id, public_key, sign_count, transports)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var id string
	if err := r.pool.QueryRow(ctx, q, input.UserID, input.CredentialID, input.PublicKey, input.SignCount, input.Transports).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return "", repository.ErrConflict
		}
		return "", err
	}
	return id, nil
}

func (r *webauthnCredentialRepo) GetByCredentialID(ctx context.Context, credentialID []byte) (*repository.WebAuthnCredential, error) {
	const q = `
		SELECT id, user_id, credential_id, public_key, sign_count, transports, created_at, last_used_at
		FROM webauthn_credential
		WHERE credential_id = $1`
	var c repository.WebAuthnCredential
	if err := r.pool.QueryRow(ctx, q, credentialID).Scan(
		&c.ID, &c.UserID, &c.CredentialID, &c.PublicKey, &c.SignCount, &c.Transports, &c.CreatedAt, &c.LastUsedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *webauthnCredentialRepo) ListByUser(ctx context.Context, userID string) ([]repository.WebAuthnCredential, error) {
	const q = `
		SELECT id, user_id, credential_id, public_key, sign_count, transports, created_at, last_used_at
		FROM webauthn_credential
		WHERE user_id = $1
		ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.WebAuthnCredential
	for rows.Next() {
		var c repository.WebAuthnCredential
		if err := rows.Scan(&c.ID, &c.UserID, &c.CredentialID, &c.PublicKey, &c.SignCount, &c.Transports, &c.CreatedAt, &c.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *webauthnCredentialRepo) BumpSignCount(ctx context.Context, credentialID []byte, newCount uint32, usedAt time.Time) (bool, error) {
	// CAS: solo avanza si el contador nuevo es estrictamente mayor.
	const q = `
		UPDATE webauthn_credential
		SET sign_count = $2, last_used_at = $3
		WHERE credential_id = $1 AND sign_count < $2`
	tag, err := r.pool.Exec(ctx, q, credentialID, newCount, usedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
