// Package webhooks notifica eventos de autenticación a un endpoint
// externo configurado. El POST es fire-and-forget: se dispara en una
// goroutine propia y un fallo solo se loguea.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/knock/internal/observability/logger"
)

const requestTimeout = 10 * time.Second

// Payload es el cuerpo JSON enviado al endpoint. DeliveryID es único
// por entrega y le permite al receptor deduplicar.
type Payload struct {
	DeliveryID string `json:"delivery_id"`
	Event      string `json:"event"`
	UserID     string `json:"user_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Notifier publica eventos a webhooks externos.
type Notifier interface {
	Notify(event, userID, email string)
}

// HTTPNotifier implementa Notifier con POST JSON autenticado por el
// header X-Webhook-Secret.
type HTTPNotifier struct {
	URL    string
	Secret string
	Client *http.Client
	now    func() time.Time
}

// New crea un notifier. Si url es vacío retorna un notifier nulo.
func New(url, secret string) Notifier {
	if url == "" {
		return Nop{}
	}
	return &HTTPNotifier{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: requestTimeout},
		now:    time.Now,
	}
}

func (n *HTTPNotifier) Notify(event, userID, email string) {
	go n.deliver(event, userID, email)
}

func (n *HTTPNotifier) deliver(event, userID, email string) {
	body, err := json.Marshal(Payload{
		DeliveryID: uuid.NewString(),
		Event:      event,
		UserID:     userID,
		Email:      email,
		Timestamp:  n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.Secret != "" {
		req.Header.Set("X-Webhook-Secret", n.Secret)
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		logger.L().Warn("webhook delivery failed",
			logger.Component("webhooks"),
			logger.Event(event),
			logger.Err(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.L().Warn("webhook returned non-2xx",
			logger.Component("webhooks"),
			logger.Event(event),
			logger.Status(resp.StatusCode),
		)
	}
}

// Nop descarta todas las notificaciones (webhooks deshabilitados).
type Nop struct{}

func (Nop) Notify(string, string, string) {}
