package mail

import (
	"log/slog"
	"strings"
)

type Message struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
	IsHTML  bool
}

type MailSender interface {
	Send(message *Message) error
}

// LogMailSender writes messages to the log instead of delivering them. It is the
// "log" backend used in development.
type LogMailSender struct {
	From string
}

func (s *LogMailSender) Send(message *Message) error {
	slog.Info("Mail message",
		"from", s.From,
		"to", strings.Join(message.To, ","),
		"subject", message.Subject,
		"body", message.Body,
	)
	return nil
}
