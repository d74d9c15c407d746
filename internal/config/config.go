// Package config carga la configuración del servicio desde YAML con
// overrides por variables de entorno.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
		// debug | info | warn | error
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	JWT struct {
		Secret         string `yaml:"secret"`
		Issuer         string `yaml:"issuer"`
		AccessTTL      string `yaml:"access_ttl"`
		RefreshTTL     string `yaml:"refresh_ttl"`
		RevokeOnRotate *bool  `yaml:"revoke_on_rotate"`
	} `yaml:"jwt"`

	MagicLink struct {
		BaseURL    string `yaml:"base_url"`
		TTL        string `yaml:"ttl"`
		TokenBytes int    `yaml:"token_bytes"`
	} `yaml:"magic_link"`

	TOTP struct {
		Issuer string `yaml:"issuer"`
		Skew   int    `yaml:"skew"`
	} `yaml:"totp"`

	WebAuthn struct {
		RPDisplayName string   `yaml:"rp_display_name"`
		RPID          string   `yaml:"rp_id"`
		RPOrigins     []string `yaml:"rp_origins"`
		ChallengeTTL  string   `yaml:"challenge_ttl"`
	} `yaml:"webauthn"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	EmailWorker struct {
		PollInterval string `yaml:"poll_interval"`
		BatchSize    int    `yaml:"batch_size"`
		BackoffBase  string `yaml:"backoff_base"`
		MaxBackoff   string `yaml:"max_backoff"`
		MaxAttempts  int    `yaml:"max_attempts"` // 0 = sin límite
		Concurrency  int    `yaml:"concurrency"`
	} `yaml:"email_worker"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Backend string `yaml:"backend"` // memory | redis
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`

		// Endpoints que inician flujos (magic link, enroll, options).
		Request struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"request"`

		// Endpoints que consumen credenciales.
		Verify struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"verify"`

		// Volumen de emails salientes por destinatario.
		Email struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"email"`
	} `yaml:"rate"`

	Admin struct {
		Key string `yaml:"key"`
	} `yaml:"admin"`

	Webhooks struct {
		URL    string `yaml:"url"`
		Secret string `yaml:"secret"`
	} `yaml:"webhooks"`

	Audit struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"audit"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

// Load lee el YAML, aplica defaults y overrides por env, y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "knock"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h" // 30d
	}
	if c.MagicLink.TTL == "" {
		c.MagicLink.TTL = "15m"
	}
	if c.MagicLink.TokenBytes == 0 {
		c.MagicLink.TokenBytes = 32
	}
	if c.TOTP.Issuer == "" {
		c.TOTP.Issuer = "Knock"
	}
	if c.TOTP.Skew == 0 {
		c.TOTP.Skew = 1
	}
	if c.WebAuthn.ChallengeTTL == "" {
		c.WebAuthn.ChallengeTTL = "5m"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.EmailWorker.PollInterval == "" {
		c.EmailWorker.PollInterval = "5s"
	}
	if c.EmailWorker.BatchSize == 0 {
		c.EmailWorker.BatchSize = 50
	}
	if c.EmailWorker.BackoffBase == "" {
		c.EmailWorker.BackoffBase = "1m"
	}
	if c.EmailWorker.MaxBackoff == "" {
		c.EmailWorker.MaxBackoff = "1h"
	}
	if c.EmailWorker.Concurrency == 0 {
		c.EmailWorker.Concurrency = 4
	}
	if c.Rate.Backend == "" {
		c.Rate.Backend = "memory"
	}
	if c.Rate.Request.Limit == 0 {
		c.Rate.Request.Limit = 5
	}
	if c.Rate.Request.Window == "" {
		c.Rate.Request.Window = "10m"
	}
	if c.Rate.Verify.Limit == 0 {
		c.Rate.Verify.Limit = 20
	}
	if c.Rate.Verify.Window == "" {
		c.Rate.Verify.Window = "1m"
	}
	if c.Rate.Email.Limit == 0 {
		c.Rate.Email.Limit = 10
	}
	if c.Rate.Email.Window == "" {
		c.Rate.Email.Window = "1h"
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = 1024
	}

	// Overrides por env + salvaguarda prod
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// ─── Duraciones parseadas ────────────────────────────────────────────

func (c *Config) AccessTTL() time.Duration      { return mustDur(c.JWT.AccessTTL) }
func (c *Config) RefreshTTL() time.Duration     { return mustDur(c.JWT.RefreshTTL) }
func (c *Config) MagicLinkTTL() time.Duration   { return mustDur(c.MagicLink.TTL) }
func (c *Config) ChallengeTTL() time.Duration   { return mustDur(c.WebAuthn.ChallengeTTL) }
func (c *Config) PollInterval() time.Duration   { return mustDur(c.EmailWorker.PollInterval) }
func (c *Config) BackoffBase() time.Duration    { return mustDur(c.EmailWorker.BackoffBase) }
func (c *Config) MaxBackoff() time.Duration     { return mustDur(c.EmailWorker.MaxBackoff) }
func (c *Config) RateRequestWin() time.Duration { return mustDur(c.Rate.Request.Window) }
func (c *Config) RateVerifyWin() time.Duration  { return mustDur(c.Rate.Verify.Window) }
func (c *Config) RateEmailWin() time.Duration   { return mustDur(c.Rate.Email.Window) }

// RevokeOnRotate retorna el flag con default true: rotar un refresh
// token revoca el anterior salvo que se desactive explícitamente.
func (c *Config) RevokeOnRotate() bool {
	if c.JWT.RevokeOnRotate == nil {
		return true
	}
	return *c.JWT.RevokeOnRotate
}

// mustDur asume que Validate ya verificó el string.
func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Validate verifica los valores críticos de configuración.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("config: jwt.secret must be at least 32 bytes")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required")
	}
	if c.MagicLink.BaseURL == "" {
		return fmt.Errorf("config: magic_link.base_url is required")
	}
	if c.Rate.Backend != "memory" && c.Rate.Backend != "redis" {
		return fmt.Errorf("config: rate.backend must be memory or redis, got %q", c.Rate.Backend)
	}
	if c.Rate.Backend == "redis" && c.Rate.Redis.Addr == "" {
		return fmt.Errorf("config: rate.redis.addr is required when backend is redis")
	}

	durations := map[string]string{
		"jwt.access_ttl":             c.JWT.AccessTTL,
		"jwt.refresh_ttl":            c.JWT.RefreshTTL,
		"magic_link.ttl":             c.MagicLink.TTL,
		"webauthn.challenge_ttl":     c.WebAuthn.ChallengeTTL,
		"email_worker.poll_interval": c.EmailWorker.PollInterval,
		"email_worker.backoff_base":  c.EmailWorker.BackoffBase,
		"email_worker.max_backoff":   c.EmailWorker.MaxBackoff,
		"rate.request.window":        c.Rate.Request.Window,
		"rate.verify.window":         c.Rate.Verify.Window,
		"rate.email.window":          c.Rate.Email.Window,
	}
	for name, raw := range durations {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return fmt.Errorf("config: storage.postgres.conn_max_lifetime: %w", err)
		}
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno
// y fuerza seguridad en prod.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("APP_LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvStr("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}
	if v, ok := getEnvBool("JWT_REVOKE_ON_ROTATE"); ok {
		c.JWT.RevokeOnRotate = &v
	}

	// MAGIC LINK
	if v, ok := getEnvStr("MAGIC_LINK_BASE_URL"); ok {
		c.MagicLink.BaseURL = v
	}
	if v, ok := getEnvStr("MAGIC_LINK_TTL"); ok {
		c.MagicLink.TTL = v
	}

	// TOTP
	if v, ok := getEnvStr("TOTP_ISSUER"); ok {
		c.TOTP.Issuer = v
	}
	if v, ok := getEnvInt("TOTP_SKEW"); ok {
		c.TOTP.Skew = v
	}

	// WEBAUTHN
	if v, ok := getEnvStr("WEBAUTHN_RP_DISPLAY_NAME"); ok {
		c.WebAuthn.RPDisplayName = v
	}
	if v, ok := getEnvStr("WEBAUTHN_RP_ID"); ok {
		c.WebAuthn.RPID = v
	}
	if v, ok := getEnvCSV("WEBAUTHN_RP_ORIGINS"); ok {
		c.WebAuthn.RPOrigins = v
	}
	if v, ok := getEnvStr("WEBAUTHN_CHALLENGE_TTL"); ok {
		c.WebAuthn.ChallengeTTL = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v) // auto|starttls|ssl|none
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}

	// EMAIL WORKER
	if v, ok := getEnvStr("EMAIL_WORKER_POLL_INTERVAL"); ok {
		c.EmailWorker.PollInterval = v
	}
	if v, ok := getEnvInt("EMAIL_WORKER_BATCH_SIZE"); ok {
		c.EmailWorker.BatchSize = v
	}
	if v, ok := getEnvStr("EMAIL_WORKER_BACKOFF_BASE"); ok {
		c.EmailWorker.BackoffBase = v
	}
	if v, ok := getEnvStr("EMAIL_WORKER_MAX_BACKOFF"); ok {
		c.EmailWorker.MaxBackoff = v
	}
	if v, ok := getEnvInt("EMAIL_WORKER_MAX_ATTEMPTS"); ok {
		c.EmailWorker.MaxAttempts = v
	}
	if v, ok := getEnvInt("EMAIL_WORKER_CONCURRENCY"); ok {
		c.EmailWorker.Concurrency = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_BACKEND"); ok {
		c.Rate.Backend = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Rate.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Rate.Redis.DB = v
	}
	if v, ok := getEnvInt("RATE_REQUEST_LIMIT"); ok {
		c.Rate.Request.Limit = v
	}
	if v, ok := getEnvStr("RATE_REQUEST_WINDOW"); ok {
		c.Rate.Request.Window = v
	}
	if v, ok := getEnvInt("RATE_VERIFY_LIMIT"); ok {
		c.Rate.Verify.Limit = v
	}
	if v, ok := getEnvStr("RATE_VERIFY_WINDOW"); ok {
		c.Rate.Verify.Window = v
	}
	if v, ok := getEnvInt("RATE_EMAIL_LIMIT"); ok {
		c.Rate.Email.Limit = v
	}
	if v, ok := getEnvStr("RATE_EMAIL_WINDOW"); ok {
		c.Rate.Email.Window = v
	}

	// ADMIN
	if v, ok := getEnvStr("ADMIN_KEY"); ok {
		c.Admin.Key = v
	}

	// WEBHOOKS
	if v, ok := getEnvStr("WEBHOOKS_URL"); ok {
		c.Webhooks.URL = v
	}
	if v, ok := getEnvStr("WEBHOOKS_SECRET"); ok {
		c.Webhooks.Secret = v
	}

	// AUDIT
	if v, ok := getEnvInt("AUDIT_QUEUE_SIZE"); ok {
		c.Audit.QueueSize = v
	}

	// FLAGS
	if v, ok := getEnvBool("FLAGS_MIGRATE"); ok {
		c.Flags.Migrate = v
	}

	// Guardia dura: en prod el rate limiting queda siempre activo.
	if strings.EqualFold(c.App.Env, "prod") {
		c.Rate.Enabled = true
	}
}
