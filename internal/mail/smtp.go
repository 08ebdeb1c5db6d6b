package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
	Timeout  time.Duration
}

// SMTPTransport sends through a plain SMTP relay with STARTTLS when the
// server offers it. Every step runs against a dialed connection with a
// deadline, so a stalled server surfaces as a TransportError instead of a
// hung dispatch.
type SMTPTransport struct {
	cfg SMTPConfig
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)

	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return apperrors.NewTransportError("dial "+addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(deadline); err != nil {
		return apperrors.NewTransportError("set deadline", err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		return apperrors.NewTransportError("smtp handshake", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(nil); err != nil {
			return apperrors.NewTransportError("starttls", err)
		}
	}

	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return apperrors.NewTransportError("smtp auth", err)
		}
	}

	if err := client.Mail(t.cfg.Sender); err != nil {
		return apperrors.NewTransportError("mail from", err)
	}
	if err := client.Rcpt(to); err != nil {
		return apperrors.NewTransportError("rcpt to", err)
	}

	w, err := client.Data()
	if err != nil {
		return apperrors.NewTransportError("data", err)
	}
	if _, err := w.Write([]byte(buildMessage(t.cfg.Sender, to, subject, body))); err != nil {
		return apperrors.NewTransportError("write body", err)
	}
	if err := w.Close(); err != nil {
		return apperrors.NewTransportError("close body", err)
	}

	if err := client.Quit(); err != nil {
		return apperrors.NewTransportError("quit", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}

var _ Transport = (*SMTPTransport)(nil)
