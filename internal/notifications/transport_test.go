package notifications

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

func TestSMTPBuildMessage(t *testing.T) {
	tr := NewSMTPTransport(SMTPConfig{Host: "mail.example.com", Port: 587, From: "noreply@example.com", FromName: "Slotkeeper"})
	msg := string(tr.buildMessage("client@example.com", "Appointment Reminder", "<p>hello</p>"))

	for _, want := range []string{
		"From: Slotkeeper <noreply@example.com>\r\n",
		"To: client@example.com\r\n",
		"Subject: Appointment Reminder\r\n",
		"Content-Type: text/html; charset=UTF-8\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	if !strings.HasSuffix(msg, "\r\n\r\n<p>hello</p>") {
		t.Fatalf("body not separated from headers:\n%s", msg)
	}
}

func TestSMTPRejectsWithoutRetry(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
		to   string
	}{
		{"no host", SMTPConfig{}, "client@example.com"},
		{"header injection", SMTPConfig{Host: "mail.example.com", Port: 587}, "a@example.com\r\nBcc: x@example.com"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewSMTPTransport(tc.cfg).Send(context.Background(), tc.to, "s", "b")
			var permanent *backoff.PermanentError
			if !errors.As(err, &permanent) {
				t.Fatalf("expected permanent error, got %v", err)
			}
		})
	}
}

func TestLogTransportFailsPermanently(t *testing.T) {
	err := NewLogTransport(zerolog.Nop()).Send(context.Background(), "client@example.com", "s", "b")
	var permanent *backoff.PermanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if !errors.Is(err, ErrSMTPNotConfigured) {
		t.Fatalf("expected ErrSMTPNotConfigured, got %v", err)
	}
}

// rejectingSMTP accepts connections and fails every AUTH with 535.
func rejectingSMTP(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				_, _ = conn.Write([]byte("220 localhost ESMTP\r\n"))
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					switch cmd := strings.ToUpper(strings.Fields(line + " x")[0]); cmd {
					case "EHLO":
						_, _ = conn.Write([]byte("250-localhost\r\n250 AUTH PLAIN\r\n"))
					case "AUTH":
						_, _ = conn.Write([]byte("535 5.7.8 Authentication failed\r\n"))
					case "QUIT":
						_, _ = conn.Write([]byte("221 bye\r\n"))
						return
					default:
						_, _ = conn.Write([]byte("250 ok\r\n"))
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestSMTPAuthFailureIsRetried(t *testing.T) {
	port := rejectingSMTP(t)
	tr := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: port, Username: "u", Password: "p", From: "noreply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := tr.Send(ctx, "client@example.com", "s", "b")
	if err == nil || !strings.Contains(err.Error(), "SMTP auth") {
		t.Fatalf("expected auth error, got %v", err)
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		t.Fatalf("auth failure must stay retriable, got %v", err)
	}
}
