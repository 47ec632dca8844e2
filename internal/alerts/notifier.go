package alerts

import (
	"context"

	"github.com/khanghh/kadmin/internal/mail"
	"github.com/khanghh/kadmin/model"
)

// MailNotifier e-mails alerts to a fixed list of recipients.
type MailNotifier struct {
	sender     mail.MailSender
	recipients []string
}

func (n *MailNotifier) Notify(ctx context.Context, alert *model.SecurityAlert) error {
	return mail.SendSecurityAlert(n.sender, n.recipients, mail.AlertNotice{
		TenantID:   alert.TenantID,
		IdentityID: alert.IdentityID,
		Type:       alert.Type,
		Severity:   alert.Severity.String(),
		Message:    alert.Message,
		AuditEvent: alert.AuditEvent,
		CreatedAt:  alert.CreatedAt,
	})
}

func NewMailNotifier(sender mail.MailSender, recipients []string) *MailNotifier {
	return &MailNotifier{sender: sender, recipients: recipients}
}
