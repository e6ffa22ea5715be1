// Package mailer implements the EMAIL delivery channel over SMTP.
// The Sender interface exists so handlers can be tested with a fake.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// ErrNotConfigured is returned when no SMTP host is set. The caller records
// it as a FAILED delivery on the email channel.
var ErrNotConfigured = errors.New("smtp is not configured")

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender sends a single email message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends through a plain SMTP endpoint.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender builds a sender from cfg. Auth is optional: with no
// username/password the dialog skips AUTH.
func NewSMTPSender(cfg Config) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		from: cfg.From,
	}
}

// Send delivers msg. Returns ErrNotConfigured when the sender was built
// without a host.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if strings.HasPrefix(s.addr, ":") {
		return ErrNotConfigured
	}
	data := buildEmailData(s.from, msg)
	return smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(data))
}

// buildEmailData renders the RFC 822 headers + body.
func buildEmailData(from string, msg Message) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
