package mail

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"gopkg.in/gomail.v2"
)

type SMTPMailSender struct {
	*gomail.Dialer
	From string
}

func (s *SMTPMailSender) Send(message *Message) error {
	from := message.From
	if from == "" {
		from = s.From
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", message.To...)
	if len(message.Cc) > 0 {
		msg.SetHeader("Cc", message.Cc...)
	}
	msg.SetHeader("Subject", message.Subject)
	if message.IsHTML {
		msg.SetBody("text/html", message.Body)
	} else {
		msg.SetBody("text/plain", message.Body)
	}
	return s.DialAndSend(msg)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	CertFile string
	KeyFile  string
	CAFile   string
}

func dialSMTP(smtpCfg SMTPConfig) (*gomail.Dialer, error) {
	if smtpCfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	dialer := gomail.NewDialer(smtpCfg.Host, smtpCfg.Port, smtpCfg.Username, smtpCfg.Password)
	tlsConfig := &tls.Config{ServerName: smtpCfg.Host, MinVersion: tls.VersionTLS12}
	if smtpCfg.CAFile != "" {
		caCert, err := os.ReadFile(smtpCfg.CAFile)
		if err != nil {
			return nil, err
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates found in %s", smtpCfg.CAFile)
		}
		tlsConfig.RootCAs = caPool
	}
	if smtpCfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(smtpCfg.CertFile, smtpCfg.KeyFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	dialer.TLSConfig = tlsConfig
	dialer.SSL = smtpCfg.TLS
	return dialer, nil
}

func NewSMTPMailSender(smtpConfig SMTPConfig, from string) (*SMTPMailSender, error) {
	dialer, err := dialSMTP(smtpConfig)
	if err != nil {
		return nil, err
	}
	return &SMTPMailSender{
		Dialer: dialer,
		From:   from,
	}, nil
}
