package mail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	messages []*Message
}

func (c *captureSender) Send(message *Message) error {
	c.messages = append(c.messages, message)
	return nil
}

func TestSendSecurityAlert(t *testing.T) {
	sender := &captureSender{}
	notice := AlertNotice{
		TenantID:   7,
		IdentityID: 42,
		Type:       "REPEATED_LOGIN_FAILURE",
		Severity:   "HIGH",
		Message:    "5 failed logins within 15m0s",
		AuditEvent: "01HZX3K5D6W4Q0T2B8R9M7N1PA",
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, SendSecurityAlert(sender, []string{"sec@acme.io", "ops@acme.io"}, notice))

	require.Len(t, sender.messages, 1)
	msg := sender.messages[0]
	assert.Equal(t, []string{"sec@acme.io", "ops@acme.io"}, msg.To)
	assert.Equal(t, "[HIGH] repeated login failure", msg.Subject)
	assert.Contains(t, msg.Body, "Identity:   42")
	assert.Contains(t, msg.Body, "2024-05-01 10:00:00 UTC")
	assert.Contains(t, msg.Body, "Audit event: 01HZX3K5D6W4Q0T2B8R9M7N1PA")
	assert.Contains(t, msg.Body, "5 failed logins within 15m0s")
}

func TestSendSecurityAlertWithoutRecipients(t *testing.T) {
	sender := &captureSender{}
	require.NoError(t, SendSecurityAlert(sender, nil, AlertNotice{}))
	assert.Empty(t, sender.messages)
}

func TestNewSMTPMailSenderRequiresHost(t *testing.T) {
	_, err := NewSMTPMailSender(SMTPConfig{}, "noreply@acme.io")
	assert.Error(t, err)

	sender, err := NewSMTPMailSender(SMTPConfig{Host: "smtp.acme.io", Port: 465, TLS: true}, "noreply@acme.io")
	require.NoError(t, err)
	assert.True(t, sender.SSL)
	assert.Equal(t, "smtp.acme.io", sender.TLSConfig.ServerName)
}
