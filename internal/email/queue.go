package email

import (
	"context"
	"time"

	"github.com/dropDatabas3/knock/internal/domain/repository"
	"github.com/dropDatabas3/knock/internal/observability/logger"
)

// Queue encola emails para entrega asincrónica.
type Queue interface {
	// EnqueueMagicLink encola el email de magic link para recipient.
	EnqueueMagicLink(ctx context.Context, recipient, link string, ttl time.Duration) (string, error)

	// Enqueue encola un email arbitrario ya renderizado.
	Enqueue(ctx context.Context, input repository.EnqueueEmailInput) (string, error)
}

type queue struct {
	tasks  repository.EmailTaskRepository
	issuer string
}

// NewQueue crea la cola sobre el repositorio de tareas.
func NewQueue(tasks repository.EmailTaskRepository, issuer string) Queue {
	return &queue{tasks: tasks, issuer: issuer}
}

func (q *queue) EnqueueMagicLink(ctx context.Context, recipient, link string, ttl time.Duration) (string, error) {
	subject, htmlBody, textBody, err := RenderMagicLink(MagicLinkVars{
		Link:   link,
		TTL:    ttl,
		Issuer: q.issuer,
	})
	if err != nil {
		return "", err
	}
	return q.Enqueue(ctx, repository.EnqueueEmailInput{
		Recipient: recipient,
		Subject:   subject,
		TextBody:  textBody,
		HTMLBody:  htmlBody,
	})
}

func (q *queue) Enqueue(ctx context.Context, input repository.EnqueueEmailInput) (string, error) {
	id, err := q.tasks.Enqueue(ctx, input)
	if err != nil {
		return "", err
	}
	logger.From(ctx).Debug("email enqueued",
		logger.Layer("service"),
		logger.Op("email.enqueue"),
		logger.TaskID(id),
	)
	return id, nil
}
