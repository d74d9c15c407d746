package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/knock/internal/domain/repository"
)

type emailTaskRepo struct{ pool *pgxpool.Pool }

func (r *emailTaskRepo) Enqueue(ctx context.Context, input repository.EnqueueEmailInput) (string, error) {
	const q = `
		INSERT INTO email_queue (recipient, subject, text_body, html_body, status, next_try_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW())
		RETURNING id`
	var id string
	if err := r.pool.QueryRow(ctx, q, input.Recipient, input.Subject, input.TextBody, input.HTMLBody).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *emailTaskRepo) FetchDue(ctx context.Context, now time.Time, limit int) ([]repository.EmailTask, error) {
	if limit <= 0 {
		limit = 50
	}
	// SKIP LOCKED evita que workers concurrentes se bloqueen entre sí en
	// el SELECT. La no-doble-entrega no depende de estos locks (se sueltan
	// al terminar el statement): la garantiza el UPDATE condicional de
	// MarkSending, que reclama cada tarea por transición de estado.
	const q = `
		SELECT id, recipient, subject, text_body, html_body, attempts, status, next_try_at, last_error, created_at, sent_at
		FROM email_queue
		WHERE status IN ('pending', 'failed') AND next_try_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`
	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.EmailTask
	for rows.Next() {
		var t repository.EmailTask
		var status string
		if err := rows.Scan(&t.ID, &t.Recipient, &t.Subject, &t.TextBody, &t.HTMLBody, &t.Attempts, &status, &t.NextTryAt, &t.LastError, &t.CreatedAt, &t.SentAt); err != nil {
			return nil, err
		}
		t.Status = repository.EmailTaskStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *emailTaskRepo) MarkSending(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE email_queue SET status = 'sending'
		WHERE id = $1 AND status IN ('pending', 'failed')`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *emailTaskRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE email_queue SET status = 'sent', sent_at = $2
		WHERE id = $1`, id, at)
	return err
}

func (r *emailTaskRepo) MarkFailed(ctx context.Context, id string, errMsg string, attempts int, nextTryAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE email_queue
		SET status = 'failed', attempts = $3, last_error = $2, next_try_at = $4
		WHERE id = $1`, id, errMsg, attempts, nextTryAt)
	return err
}

func (r *emailTaskRepo) Stats(ctx context.Context) (*repository.EmailQueueStats, error) {
	const q = `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'sending'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM email_queue`
	var st repository.EmailQueueStats
	if err := r.pool.QueryRow(ctx, q).Scan(&st.Pending, &st.Sending, &st.Sent, &st.Failed); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *emailTaskRepo) DeleteSent(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM email_queue WHERE status = 'sent' AND sent_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
