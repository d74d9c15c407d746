package repository

import (
	"context"
	"time"
)

// EmailTaskStatus indica el estado de una tarea en la cola de emails.
type EmailTaskStatus string

const (
	EmailStatusPending EmailTaskStatus = "pending"
	EmailStatusSending EmailTaskStatus = "sending"
	EmailStatusSent    EmailTaskStatus = "sent"
	EmailStatusFailed  EmailTaskStatus = "failed"
)

// EmailTask representa un email encolado para entrega asincrónica.
// Transiciones: pending→sending→{sent, failed}; failed reintenta tras
// backoff volviendo a sending. "sent" es terminal.
type EmailTask struct {
	ID        string
	Recipient string
	Subject   string
	TextBody  string
	HTMLBody  string
	Attempts  int
	Status    EmailTaskStatus
	NextTryAt time.Time
	LastError *string
	CreatedAt time.Time
	SentAt    *time.Time
}

// EnqueueEmailInput contiene los datos para encolar un email.
type EnqueueEmailInput struct {
	Recipient string
	Subject   string
	TextBody  string
	HTMLBody  string // opcional
}

// EmailQueueStats contiene conteos por estado para la superficie admin.
type EmailQueueStats struct {
	Pending int
	Sending int
	Sent    int
	Failed  int
}

// EmailTaskRepository define operaciones sobre la cola de emails.
type EmailTaskRepository interface {
	// Enqueue inserta una tarea con status=pending y next_try_at=now.
	// No hace I/O de red; el envío ocurre solo en el worker.
	Enqueue(ctx context.Context, input EnqueueEmailInput) (string, error)

	// FetchDue retorna tareas con status en {pending, failed} y
	// next_try_at <= now, ordenadas por created_at ascendente, hasta limit.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]EmailTask, error)

	// MarkSending marca la tarea como en envío.
	MarkSending(ctx context.Context, id string) error

	// MarkSent marca la tarea como entregada (estado terminal).
	MarkSent(ctx context.Context, id string, at time.Time) error

	// MarkFailed registra un intento fallido: incrementa attempts, guarda
	// last_error y agenda el próximo intento.
	MarkFailed(ctx context.Context, id string, errMsg string, attempts int, nextTryAt time.Time) error

	// Stats retorna conteos por estado.
	Stats(ctx context.Context) (*EmailQueueStats, error)

	// DeleteSent elimina tareas entregadas antes del corte (cleanup job).
	DeleteSent(ctx context.Context, before time.Time) (int, error)
}
