// Package mail sends transactional email over plain SMTP. Delivery is best
// effort everywhere it is used; a mail failure never blocks a signup or a
// ledger operation.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Sender delivers a single message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPMailer struct {
	host string
	port string
	from string
	auth smtp.Auth
}

func NewSMTPMailer(host, port, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{host: host, port: port, from: from, auth: auth}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, m.auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	slog.InfoContext(ctx, "Mail sent", "to", to, "subject", subject)
	return nil
}
