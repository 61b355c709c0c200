package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

var invitationTmpl = template.Must(template.New("invitation").Parse(`<!doctype html>
<html>
<body style="font-family: Arial, sans-serif; color: #111827;">
  <h2>Te invitaron a {{.EmpresaName}}</h2>
  <p>{{if .InviterName}}{{.InviterName}} te invitó{{else}}Te invitaron{{end}} a unirte al equipo de <strong>{{.EmpresaName}}</strong> como <strong>{{.Role}}</strong>.</p>
  <p><a href="{{.AcceptURL}}" style="background:#4f46e5;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none;">Aceptar invitación</a></p>
  <p style="font-size:12px;color:#6b7280;">El enlace vence el {{.ExpiresAt}}.</p>
</body>
</html>`))

// InvitationData fills the invitation email.
type InvitationData struct {
	EmpresaName string
	InviterName string
	Role        string
	AcceptURL   string
	ExpiresAt   string
}

// InvitationEmail renders the team invitation email.
func InvitationEmail(to string, data InvitationData) (Email, error) {
	var buf bytes.Buffer
	if err := invitationTmpl.Execute(&buf, data); err != nil {
		return Email{}, err
	}
	return Email{
		To:      []string{to},
		Subject: fmt.Sprintf("Invitación para unirte a %s", data.EmpresaName),
		HTML:    buf.String(),
		Text:    fmt.Sprintf("Te invitaron a %s. Acepta aquí: %s", data.EmpresaName, data.AcceptURL),
	}, nil
}
