package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/knock/internal/domain/repository"
)

type auditRepo struct{ pool *pgxpool.Pool }

func (r *auditRepo) Insert(ctx context.Context, entry repository.AuditEntry) error {
	const q = `
		INSERT INTO audit_log (event_type, user_id, email, ip_address, success, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q, entry.EventType, entry.UserID, entry.Email, entry.IPAddress, entry.Success, entry.Detail)
	return err
}

func (r *auditRepo) ListRecent(ctx context.Context, limit int) ([]repository.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	const q = `
		SELECT id, event_type, user_id, email, ip_address, success, detail, created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.AuditEntry
	for rows.Next() {
		var e repository.AuditEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.UserID, &e.Email, &e.IPAddress, &e.Success, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
