/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ErrSMTPNotConfigured is returned by transports that cannot deliver mail
// because no SMTP host is set.
var ErrSMTPNotConfigured = errors.New("SMTP not configured")

// Transport delivers one rendered email.
type Transport interface {
	Send(ctx context.Context, to, subject, html string) error
}

// SMTPConfig holds SMTP settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPTransport sends mail through an SMTP relay. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when offered.
type SMTPTransport struct {
	config SMTPConfig
}

// NewSMTPTransport creates an SMTP transport.
func NewSMTPTransport(config SMTPConfig) *SMTPTransport {
	return &SMTPTransport{config: config}
}

func (t *SMTPTransport) Send(ctx context.Context, to, subject, html string) error {
	if t.config.Host == "" {
		return backoff.Permanent(ErrSMTPNotConfigured)
	}
	if strings.TrimSpace(to) == "" || strings.ContainsAny(to, "\r\n") {
		return backoff.Permanent(fmt.Errorf("invalid recipient %q", to))
	}

	addr := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)
	conn, err := t.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("SMTP dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("SMTP handshake: %w", err)
	}
	defer client.Close()

	if t.config.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: t.config.Host}); err != nil {
				return fmt.Errorf("SMTP starttls: %w", err)
			}
		}
	}
	if t.config.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("SMTP auth: %w", err)
			}
		}
	}

	if err := client.Mail(t.config.From); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(t.buildMessage(to, subject, html)); err != nil {
		return fmt.Errorf("SMTP write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("SMTP send failed: %w", err)
	}
	return client.Quit()
}

func (t *SMTPTransport) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	if t.config.Port == 465 {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: t.config.Host}}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

func (t *SMTPTransport) buildMessage(to, subject, html string) []byte {
	from := t.config.From
	if t.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", t.config.FromName, t.config.From)
	}

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(html)
	return []byte(msg.String())
}

// LogTransport logs messages it cannot send. It is used when no SMTP host is
// configured and fails every send, so nothing is recorded as delivered.
type LogTransport struct {
	logger zerolog.Logger
}

// NewLogTransport creates a logging transport.
func NewLogTransport(logger zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger.With().Str("component", "mail").Logger()}
}

func (t *LogTransport) Send(_ context.Context, to, subject, html string) error {
	t.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(html)).
		Msg("email not sent, SMTP not configured")
	return backoff.Permanent(ErrSMTPNotConfigured)
}
