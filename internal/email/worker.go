package email

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/knock/internal/domain/repository"
	"github.com/dropDatabas3/knock/internal/observability/logger"
	"github.com/dropDatabas3/knock/internal/observability/metrics"
)

// WorkerConfig contiene los parámetros del worker de entrega.
type WorkerConfig struct {
	PollInterval time.Duration // default 5s
	BatchSize    int           // default 50
	BackoffBase  time.Duration // default 60s
	MaxBackoff   time.Duration // default 1h
	MaxAttempts  int           // 0 = sin límite
	Concurrency  int           // envíos simultáneos por batch, default 4
}

func (c *WorkerConfig) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Minute
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Hour
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// Worker drena la cola de emails: toma tareas vencidas, las envía por
// SMTP y agenda reintentos con backoff exponencial cuando fallan.
type Worker struct {
	tasks  repository.EmailTaskRepository
	sender Sender
	cfg    WorkerConfig
	now    func() time.Time
}

// NewWorker crea el worker. Si now es nil usa time.Now.
func NewWorker(tasks repository.EmailTaskRepository, sender Sender, cfg WorkerConfig, now func() time.Time) *Worker {
	cfg.withDefaults()
	if now == nil {
		now = time.Now
	}
	return &Worker{tasks: tasks, sender: sender, cfg: cfg, now: now}
}

// Run ejecuta el loop de polling hasta que el contexto se cancele.
func (w *Worker) Run(ctx context.Context) error {
	log := logger.L().With(logger.Component("email_worker"))
	log.Info("email worker started",
		logger.String("poll_interval", w.cfg.PollInterval.String()),
		logger.Int("batch_size", w.cfg.BatchSize),
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("email worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				log.Error("email batch failed", logger.Err(err))
			}
		}
	}
}

// ProcessBatch toma un batch de tareas vencidas y las procesa en paralelo.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	due, err := w.tasks.FetchDue(ctx, w.now(), w.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, task := range due {
		task := task
		g.Go(func() error {
			w.process(ctx, task)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) process(ctx context.Context, task repository.EmailTask) {
	log := logger.L().With(
		logger.Component("email_worker"),
		logger.TaskID(task.ID),
		logger.Attempts(task.Attempts),
	)

	if err := w.tasks.MarkSending(ctx, task.ID); err != nil {
		// Otro worker la reclamó primero.
		if repository.IsNotFound(err) {
			return
		}
		log.Error("mark sending failed", logger.Err(err))
		return
	}

	if err := w.sender.Send(task.Recipient, task.Subject, task.HTMLBody, task.TextBody); err != nil {
		w.fail(ctx, task, err)
		return
	}

	if err := w.tasks.MarkSent(ctx, task.ID, w.now()); err != nil {
		log.Error("mark sent failed", logger.Err(err))
		return
	}
	metrics.EmailsSent.Inc()
	log.Info("email delivered")
}

// neverRetry agenda la tarea fuera de todo horizonte de polling cuando
// se agota MaxAttempts.
var neverRetry = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

func (w *Worker) fail(ctx context.Context, task repository.EmailTask, sendErr error) {
	attempts := task.Attempts + 1
	nextTry := w.now().Add(w.Backoff(attempts))
	exhausted := w.cfg.MaxAttempts > 0 && attempts >= w.cfg.MaxAttempts
	if exhausted {
		nextTry = neverRetry
	}
	if err := w.tasks.MarkFailed(ctx, task.ID, sendErr.Error(), attempts, nextTry); err != nil {
		logger.L().Error("mark failed failed", logger.Err(err), logger.TaskID(task.ID))
		return
	}
	metrics.EmailsFailed.Inc()
	log := logger.L().With(
		logger.Component("email_worker"),
		logger.TaskID(task.ID),
		logger.Attempts(attempts),
		logger.Err(sendErr),
	)
	if exhausted {
		log.Error("email delivery gave up, max attempts reached")
		return
	}
	log.Warn("email delivery failed",
		logger.String("next_try_at", nextTry.Format(time.RFC3339)))
}

// Backoff calcula la espera después del intento fallido n (1-indexed):
// base * 2^n, con tope en MaxBackoff. El primer fallo espera 2x la base.
func (w *Worker) Backoff(attempts int) time.Duration {
	d := w.cfg.BackoffBase
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	if d > w.cfg.MaxBackoff {
		return w.cfg.MaxBackoff
	}
	return d
}
