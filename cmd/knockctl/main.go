// Command knockctl es la CLI operativa de Knock: habla con la
// superficie /v1/admin del servicio y corre migraciones.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/knock/internal/store"
	"github.com/dropDatabas3/knock/migrations"
)

type client struct {
	BaseURL   string
	AdminKey  string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-Key", c.AdminKey)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	var (
		baseURL  = envOr("KNOCK_ADMIN_URL", "http://localhost:8080")
		adminKey = envOr("KNOCK_ADMIN_KEY", "")
		out      = envOr("KNOCK_OUT", "text")
		timeout  = 30 * time.Second
	)

	root := &cobra.Command{
		Use:   "knockctl",
		Short: "CLI operativa para Knock (superficie /v1/admin)",
	}

	root.PersistentFlags().StringVar(&baseURL, "admin-url", baseURL, "URL base del servicio (env KNOCK_ADMIN_URL)")
	root.PersistentFlags().StringVar(&adminKey, "admin-key", adminKey, "Clave admin X-Admin-Key (env KNOCK_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	httpClient := &http.Client{Timeout: timeout}
	cl := &client{HTTP: httpClient}

	// Los flags se resuelven recién al correr el comando.
	resolve := func() error {
		cl.BaseURL = baseURL
		cl.AdminKey = adminKey
		cl.OutFormat = out
		if cl.AdminKey == "" {
			return fmt.Errorf("falta admin key (flag --admin-key o env KNOCK_ADMIN_KEY)")
		}
		return nil
	}

	// users list
	var usersLimit, usersOffset int
	var usersSearch string
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Listar usuarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolve(); err != nil {
				return err
			}
			path := fmt.Sprintf("/v1/admin/users?limit=%d&offset=%d", usersLimit, usersOffset)
			if usersSearch != "" {
				path += "&search=" + usersSearch
			}
			status, body, err := cl.do("GET", path)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("users fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	usersCmd.Flags().IntVar(&usersLimit, "limit", 100, "Máximo de usuarios a listar")
	usersCmd.Flags().IntVar(&usersOffset, "offset", 0, "Offset de paginación")
	usersCmd.Flags().StringVar(&usersSearch, "search", "", "Búsqueda por email (opcional)")

	// queue stats
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Estadísticas de la cola de emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolve(); err != nil {
				return err
			}
			status, body, err := cl.do("GET", "/v1/admin/email-queue/stats")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("queue fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	// audit tail
	var auditLimit int
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Últimas entradas del log de auditoría",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolve(); err != nil {
				return err
			}
			status, body, err := cl.do("GET", fmt.Sprintf("/v1/admin/audit?limit=%d", auditLimit))
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("audit fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Cantidad de entradas")

	// revoke
	var revokeUserID string
	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revocar todas las sesiones de un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolve(); err != nil {
				return err
			}
			if revokeUserID == "" {
				return fmt.Errorf("--user es requerido")
			}
			status, body, err := cl.do("POST", "/v1/admin/users/"+revokeUserID+"/revoke")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("revoke fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	revokeCmd.Flags().StringVar(&revokeUserID, "user", "", "ID del usuario")

	// migrate (directo contra la base, no necesita admin key)
	var migrateDSN string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplicar migraciones pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := migrateDSN
			if dsn == "" {
				dsn = os.Getenv("STORAGE_DSN")
			}
			if dsn == "" {
				return fmt.Errorf("falta DSN (flag --dsn o env STORAGE_DSN)")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := migrations.Up(ctx, dsn); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	migrateCmd.Flags().StringVar(&migrateDSN, "dsn", "", "DSN de Postgres (env STORAGE_DSN)")

	// cleanup (directo contra la base): borra filas vencidas o ya
	// entregadas. Pensado para correr desde cron.
	var cleanupDSN string
	var keepSentFor time.Duration
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Borrar links vencidos, tokens revocados, challenges expirados y emails entregados",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := cleanupDSN
			if dsn == "" {
				dsn = os.Getenv("STORAGE_DSN")
			}
			if dsn == "" {
				return fmt.Errorf("falta DSN (flag --dsn o env STORAGE_DSN)")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			dal, err := store.Open(ctx, store.Config{DSN: dsn})
			if err != nil {
				return err
			}
			defer dal.Close()

			now := time.Now()
			links, err := dal.MagicLinks().DeleteExpired(ctx, now)
			if err != nil {
				return err
			}
			tokens, err := dal.RefreshTokens().DeleteExpired(ctx, now)
			if err != nil {
				return err
			}
			challenges, err := dal.PendingChallenges().DeleteExpired(ctx, now)
			if err != nil {
				return err
			}
			emails, err := dal.EmailTasks().DeleteSent(ctx, now.Add(-keepSentFor))
			if err != nil {
				return err
			}
			fmt.Printf("magic_links=%d refresh_tokens=%d pending_webauthn=%d email_queue=%d\n",
				links, tokens, challenges, emails)
			return nil
		},
	}
	cleanupCmd.Flags().StringVar(&cleanupDSN, "dsn", "", "DSN de Postgres (env STORAGE_DSN)")
	cleanupCmd.Flags().DurationVar(&keepSentFor, "keep-sent", 72*time.Hour, "Retención de emails entregados")

	root.AddCommand(usersCmd, queueCmd, auditCmd, revokeCmd, migrateCmd, cleanupCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
