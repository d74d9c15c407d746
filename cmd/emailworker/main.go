// Command emailworker drena la cola de emails sin levantar la API.
// Útil para correr la entrega en un proceso separado del servidor.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/knock/internal/config"
	"github.com/dropDatabas3/knock/internal/email"
	"github.com/dropDatabas3/knock/internal/observability/logger"
	"github.com/dropDatabas3/knock/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "ruta del archivo de configuración")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "knock-emailworker",
	})
	defer logger.Sync()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dal, err := store.Open(ctx, store.Config{
		Driver:          cfg.Storage.Driver,
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		lg.Fatal("store open failed", logger.Err(err))
	}
	defer dal.Close()

	sender := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	sender.TLSMode = cfg.SMTP.TLS
	sender.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify

	worker := email.NewWorker(dal.EmailTasks(), sender, email.WorkerConfig{
		PollInterval: cfg.PollInterval(),
		BatchSize:    cfg.EmailWorker.BatchSize,
		BackoffBase:  cfg.BackoffBase(),
		MaxBackoff:   cfg.MaxBackoff(),
		MaxAttempts:  cfg.EmailWorker.MaxAttempts,
		Concurrency:  cfg.EmailWorker.Concurrency,
	}, time.Now)

	lg.Info("email worker started")
	worker.Run(ctx)
	lg.Info("email worker stopped")
}
