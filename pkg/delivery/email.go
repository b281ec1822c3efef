package delivery

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/wisbric/pulse/pkg/addrguard"
	"github.com/wisbric/pulse/pkg/integration"
)

// EmailSender delivers the payload as a plain-text message over SMTP with
// optional STARTTLS. Recipients were syntactically validated at integration
// create time; the address guard still vets the SMTP host itself.
type EmailSender struct {
	guard *addrguard.Guard
}

// NewEmailSender creates an EmailSender.
func NewEmailSender(guard *addrguard.Guard) *EmailSender {
	return &EmailSender{guard: guard}
}

// Kind implements Sender.
func (s *EmailSender) Kind() string { return integration.KindEmail }

// Send implements Sender.
func (s *EmailSender) Send(ctx context.Context, config json.RawMessage, p Payload) error {
	var cfg integration.EmailConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("decoding email config: %w", err)
	}

	if err := s.guard.CheckHost(ctx, cfg.Host); err != nil {
		return fmt.Errorf("destination rejected: %w", err)
	}

	port := cfg.Port
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	// net/smtp has no context support; honor the deadline via the dialer
	// and a connection deadline covering the whole exchange.
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if cfg.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("server does not support STARTTLS")
		}
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return fmt.Errorf("starting TLS: %w", err)
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range cfg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := wc.Write([]byte(buildMessage(cfg, p))); err != nil {
		_ = wc.Close()
		return fmt.Errorf("writing message body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}

	return client.Quit()
}

func buildMessage(cfg integration.EmailConfig, p Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s alert for device %s\r\n", strings.ToUpper(p.Severity), p.AlertType, p.DeviceID)
	fmt.Fprintf(&b, "X-Correlation-ID: %s\r\n", p.CorrelationID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(p.Message)
	b.WriteString("\r\n")
	return b.String()
}
