package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// MagicLinkVars son las variables del template de magic link.
type MagicLinkVars struct {
	Link    string
	TTL     time.Duration
	Issuer  string
	Support string
}

var magicLinkHTML = template.Must(template.New("magic_link_html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 480px; margin: 0 auto;">
  <h2>Inicia sesión en {{.Issuer}}</h2>
  <p>Hacé clic en el botón para iniciar sesión. El enlace vence en {{.TTLMinutes}} minutos y solo sirve una vez.</p>
  <p style="text-align: center;">
    <a href="{{.Link}}" style="display: inline-block; padding: 12px 24px; background: #1a73e8; color: #fff; text-decoration: none; border-radius: 4px;">Iniciar sesión</a>
  </p>
  <p style="color: #666; font-size: 12px;">Si no pediste este email, podés ignorarlo.</p>
</body>
</html>`))

const magicLinkText = `Inicia sesión en %s

Abrí este enlace para iniciar sesión (vence en %d minutos, un solo uso):

%s

Si no pediste este email, ignoralo.`

// RenderMagicLink renderiza el email de magic link en HTML y texto plano.
func RenderMagicLink(vars MagicLinkVars) (subject, htmlBody, textBody string, err error) {
	minutes := int(vars.TTL.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	data := struct {
		MagicLinkVars
		TTLMinutes int
	}{vars, minutes}

	var buf bytes.Buffer
	if err := magicLinkHTML.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("email: render magic link: %w", err)
	}

	subject = fmt.Sprintf("Tu enlace de acceso a %s", vars.Issuer)
	textBody = fmt.Sprintf(magicLinkText, vars.Issuer, minutes, vars.Link)
	return subject, buf.String(), textBody, nil
}
