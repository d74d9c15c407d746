// Command knock levanta el servicio de autenticación sin contraseñas:
// API HTTP, worker de emails y dispatcher de auditoría en un proceso.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/knock/internal/audit"
	"github.com/dropDatabas3/knock/internal/auth/magiclink"
	"github.com/dropDatabas3/knock/internal/auth/session"
	totpauth "github.com/dropDatabas3/knock/internal/auth/totp"
	webauthnauth "github.com/dropDatabas3/knock/internal/auth/webauthn"
	"github.com/dropDatabas3/knock/internal/config"
	"github.com/dropDatabas3/knock/internal/email"
	"github.com/dropDatabas3/knock/internal/http/controllers"
	"github.com/dropDatabas3/knock/internal/http/router"
	jwtx "github.com/dropDatabas3/knock/internal/jwt"
	"github.com/dropDatabas3/knock/internal/observability/logger"
	"github.com/dropDatabas3/knock/internal/rate"
	"github.com/dropDatabas3/knock/internal/store"
	"github.com/dropDatabas3/knock/internal/webhooks"
	"github.com/dropDatabas3/knock/migrations"
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
		ServiceName: "knock",
	})
	defer logger.Sync()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── Storage ─────────────────────────────────────────────────────

	if cfg.Flags.Migrate {
		if err := migrations.Up(ctx, cfg.Storage.DSN); err != nil {
			lg.Fatal("migrations failed", logger.Err(err))
		}
		lg.Info("migrations applied")
	}

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

	// ─── Infra compartida ────────────────────────────────────────────

	codec, err := jwtx.NewCodec([]byte(cfg.JWT.Secret), cfg.JWT.Issuer, time.Now)
	if err != nil {
		lg.Fatal("jwt codec", logger.Err(err))
	}

	dispatcher := audit.NewDispatcher(dal.Audit(), cfg.Audit.QueueSize, time.Now)
	go dispatcher.Run(ctx)

	notifier := webhooks.New(cfg.Webhooks.URL, cfg.Webhooks.Secret)

	requestLimiter, verifyLimiter, emailLimiter := buildLimiters(cfg)

	// ─── Services ────────────────────────────────────────────────────

	sessions := session.New(session.Deps{
		Tokens:         dal.RefreshTokens(),
		Codec:          codec,
		Audit:          dispatcher,
		AccessTTL:      cfg.AccessTTL(),
		RefreshTTL:     cfg.RefreshTTL(),
		RevokeOnRotate: cfg.RevokeOnRotate(),
	})

	queue := email.NewQueue(dal.EmailTasks(), cfg.TOTP.Issuer)

	magicSvc := magiclink.New(magiclink.Deps{
		Users:        dal.Users(),
		Links:        dal.MagicLinks(),
		Queue:        queue,
		Sessions:     sessions,
		Audit:        dispatcher,
		Webhooks:     notifier,
		EmailLimiter: emailLimiter,
		BaseURL:      cfg.MagicLink.BaseURL,
		TTL:          cfg.MagicLinkTTL(),
		TokenBytes:   cfg.MagicLink.TokenBytes,
	})

	totpSvc := totpauth.New(totpauth.Deps{
		Users:    dal.Users(),
		Sessions: sessions,
		Audit:    dispatcher,
		Webhooks: notifier,
		Issuer:   cfg.TOTP.Issuer,
		Skew:     cfg.TOTP.Skew,
	})

	rp, err := webauthnauth.NewRelyingParty(webauthnauth.RPConfig{
		DisplayName: cfg.WebAuthn.RPDisplayName,
		ID:          cfg.WebAuthn.RPID,
		Origins:     cfg.WebAuthn.RPOrigins,
	})
	if err != nil {
		lg.Fatal("webauthn relying party", logger.Err(err))
	}
	webauthnSvc := webauthnauth.New(webauthnauth.Deps{
		Users:        dal.Users(),
		Challenges:   dal.PendingChallenges(),
		Credentials:  dal.WebAuthnCredentials(),
		Sessions:     sessions,
		RP:           rp,
		Audit:        dispatcher,
		Webhooks:     notifier,
		ChallengeTTL: cfg.ChallengeTTL(),
	})

	// ─── Email worker ────────────────────────────────────────────────

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
	go worker.Run(ctx)

	// ─── HTTP ────────────────────────────────────────────────────────

	handler := router.New(router.Deps{
		Magic:          controllers.NewMagicController(magicSvc),
		TOTP:           controllers.NewTOTPController(totpSvc),
		WebAuthn:       controllers.NewWebAuthnController(webauthnSvc),
		Token:          controllers.NewTokenController(sessions),
		Admin:          controllers.NewAdminController(dal, sessions),
		Health:         controllers.NewHealthController(dal),
		RequestLimiter: requestLimiter,
		VerifyLimiter:  verifyLimiter,
		AdminKey:       cfg.Admin.Key,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", logger.Err(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown failed", logger.Err(err))
	}
	lg.Info("bye")
}

// buildLimiters arma los limiters según el backend configurado.
// Retorna limiters nil si el rate limiting está deshabilitado.
func buildLimiters(cfg *config.Config) (request, verify, email rate.Limiter) {
	if !cfg.Rate.Enabled {
		return nil, nil, nil
	}
	if cfg.Rate.Backend == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Rate.Redis.Addr,
			Password: cfg.Rate.Redis.Password,
			DB:       cfg.Rate.Redis.DB,
		})
		return rate.NewRedisLimiter(client, "rl:req:", cfg.Rate.Request.Limit, cfg.RateRequestWin()),
			rate.NewRedisLimiter(client, "rl:verify:", cfg.Rate.Verify.Limit, cfg.RateVerifyWin()),
			rate.NewRedisLimiter(client, "rl:email:", cfg.Rate.Email.Limit, cfg.RateEmailWin())
	}
	return rate.NewMemoryLimiter(cfg.Rate.Request.Limit, cfg.RateRequestWin(), time.Now),
		rate.NewMemoryLimiter(cfg.Rate.Verify.Limit, cfg.RateVerifyWin(), time.Now),
		rate.NewMemoryLimiter(cfg.Rate.Email.Limit, cfg.RateEmailWin(), time.Now)
}
