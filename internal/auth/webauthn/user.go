package webauthn

import (
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dropDatabas3/knock/internal/domain/repository"
)

// serviceUser adapta un usuario y sus credenciales persistidas a la
// interfaz webauthn.User de la librería.
type serviceUser struct {
	user        *repository.User
	credentials []webauthn.Credential
}

func (u *serviceUser) WebAuthnID() []byte          { return []byte(u.user.ID) }
func (u *serviceUser) WebAuthnName() string        { return u.user.Email }
func (u *serviceUser) WebAuthnDisplayName() string { return u.user.Email }
func (u *serviceUser) WebAuthnIcon() string        { return "" }

func (u *serviceUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// toLibraryCredentials reconstruye las credenciales de la librería desde
// las columnas persistidas.
func toLibraryCredentials(records []repository.WebAuthnCredential) []webauthn.Credential {
	if len(records) == 0 {
		return nil
	}
	out := make([]webauthn.Credential, 0, len(records))
	for _, rec := range records {
		transports := make([]protocol.AuthenticatorTransport, 0, len(rec.Transports))
		for _, t := range rec.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		out = append(out, webauthn.Credential{
			ID:        rec.CredentialID,
			PublicKey: rec.PublicKey,
			Transport: transports,
			Authenticator: webauthn.Authenticator{
				SignCount: rec.SignCount,
			},
		})
	}
	return out
}

func transportStrings(transports []protocol.AuthenticatorTransport) []string {
	out := make([]string, 0, len(transports))
	for _, t := range transports {
		out = append(out, string(t))
	}
	return out
}
