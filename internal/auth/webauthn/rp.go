package webauthn

import (
	"github.com/go-webauthn/webauthn/webauthn"
)

// RPConfig identifica al relying party frente a los autenticadores.
type RPConfig struct {
	DisplayName string
	ID          string   // dominio, ej. "app.example.com"
	Origins     []string // orígenes permitidos, ej. "https://app.example.com"
}

// NewRelyingParty construye el relying party real de go-webauthn.
func NewRelyingParty(cfg RPConfig) (RelyingParty, error) {
	return webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.DisplayName,
		RPID:          cfg.ID,
		RPOrigins:     cfg.Origins,
	})
}
