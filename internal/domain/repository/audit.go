package repository

import (
	"context"
	"time"
)

// AuditEntry representa una fila del log de auditoría.
type AuditEntry struct {
	ID        int64
	EventType string
	UserID    *string
	Email     *string
	IPAddress *string
	Success   bool
	Detail    *string
	CreatedAt time.Time
}

// AuditRepository define operaciones sobre el log de auditoría.
// La escritura es fire-and-forget desde el punto de vista del core.
type AuditRepository interface {
	// Insert persiste una entrada de auditoría.
	Insert(ctx context.Context, entry AuditEntry) error

	// ListRecent retorna las entradas más recientes (superficie admin).
	ListRecent(ctx context.Context, limit int) ([]AuditEntry, error)
}
