package mail

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/valyala/bytebufferpool"
)

// AlertNotice is the content of a security alert e-mail.
type AlertNotice struct {
	TenantID   uint
	IdentityID uint
	Type       string
	Severity   string
	Message    string
	AuditEvent string
	CreatedAt  time.Time
}

var alertTemplate = template.Must(template.New("alert").Parse(`A {{.Severity}} security alert was raised.

Type:       {{.Type}}
Tenant:     {{.TenantID}}
Identity:   {{.IdentityID}}
Raised at:  {{.CreatedAt.UTC.Format "2006-01-02 15:04:05 MST"}}
{{- if .AuditEvent}}
Audit event: {{.AuditEvent}}
{{- end}}

{{.Message}}
`))

// SendSecurityAlert e-mails notice to every recipient in one message.
func SendSecurityAlert(sender MailSender, to []string, notice AlertNotice) error {
	if len(to) == 0 {
		return nil
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := alertTemplate.Execute(buf, notice); err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] %s", notice.Severity, strings.ReplaceAll(strings.ToLower(notice.Type), "_", " ")),
		Body:    buf.String(),
	})
}
