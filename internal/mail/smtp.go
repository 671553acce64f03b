package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
)

// SMTPTransport delivers messages through the smtp_config resource named
// on each job. Failures are classified by SMTP reply code: 4xx replies and
// network errors are retryable, 5xx replies are permanent.
type SMTPTransport struct {
	hostname string
	logger   *slog.Logger
}

func NewSMTPTransport(hostname string, logger *slog.Logger) *SMTPTransport {
	if hostname == "" {
		hostname = "localhost"
	}
	return &SMTPTransport{hostname: hostname, logger: logger}
}

func (t *SMTPTransport) Send(ctx context.Context, cfg *domain.SMTPConfig, msg *Message) Result {
	if _, err := netmail.ParseAddress(msg.ToEmail); err != nil {
		return Permanent(fmt.Sprintf("invalid address %q", msg.ToEmail))
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return Retryable(fmt.Sprintf("connecting to %s: %v", addr, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	var c *smtp.Client
	if cfg.UseTLS {
		c, err = smtp.NewClientStartTLS(conn, &tls.Config{ServerName: cfg.Host})
		if err != nil {
			return classify("STARTTLS", err)
		}
	} else {
		c = smtp.NewClient(conn)
		if err := c.Hello(t.hostname); err != nil {
			return classify("HELO", err)
		}
	}
	defer c.Close()
	if cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", cfg.Username, cfg.Password)); err != nil {
			return classify("AUTH", err)
		}
	}

	raw := buildMessage(msg)
	if err := c.SendMail(msg.FromEmail, []string{msg.ToEmail}, strings.NewReader(raw)); err != nil {
		return classify("DATA", err)
	}

	// Best effort; the message was accepted already.
	_ = c.Quit()
	return Sent()
}

func classify(phase string, err error) Result {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		reason := fmt.Sprintf("%s: %d %s", phase, smtpErr.Code, smtpErr.Message)
		if smtpErr.Temporary() {
			return Retryable(reason)
		}
		return Permanent(reason)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retryable(fmt.Sprintf("%s: timed out", phase))
	}
	return Retryable(fmt.Sprintf("%s: %v", phase, err))
}

func buildMessage(msg *Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", formatAddress(msg.FromName, msg.FromEmail))
	fmt.Fprintf(&b, "To: %s\r\n", formatAddress(msg.ToName, msg.ToEmail))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	if msg.TrackingID != "" {
		fmt.Fprintf(&b, "X-Tracking-ID: %s\r\n", msg.TrackingID)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")
	return b.String()
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
