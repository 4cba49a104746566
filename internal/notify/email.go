package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"stock-pattern/internal/config"
)

// implicitTLSPort is the SMTPS port. Other ports use SendMail, which
// upgrades with STARTTLS when the server offers it.
const implicitTLSPort = 465

// EmailNotifier mails notifications over SMTP.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

// NewEmailNotifier creates an EmailNotifier. To may hold several
// comma-separated addresses. The login defaults to the sender address.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	e := &EmailNotifier{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}
	if e.username == "" {
		e.username = cfg.From
	}
	if cfg.Enabled {
		for _, addr := range strings.Split(cfg.To, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				e.to = append(e.to, addr)
			}
		}
	}
	return e
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) IsEnabled() bool {
	return e.host != "" && e.from != "" && len(e.to) > 0
}

// buildMessage renders a plain-text message. A setups digest carries its
// JSON body alone; other notifications get their data appended.
func (e *EmailNotifier) buildMessage(n Notification) string {
	var b strings.Builder
	header := func(k, v string) { b.WriteString(k + ": " + v + "\r\n") }
	header("From", e.from)
	header("To", strings.Join(e.to, ", "))
	header("Subject", n.Title)
	header("Content-Type", "text/plain; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(n.Message)

	if n.Type != NotificationSetups && len(n.Data) > 0 {
		if data, err := json.MarshalIndent(n.Data, "", "  "); err == nil {
			b.WriteString("\n\n---\nData:\n")
			b.Write(data)
		}
	}
	return b.String()
}

// Send delivers n to every recipient. SMTP has no context support, so ctx
// is only checked before dialing.
func (e *EmailNotifier) Send(ctx context.Context, n Notification) error {
	if !e.IsEnabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	msg := []byte(e.buildMessage(n))

	if e.port != implicitTLSPort {
		return smtp.SendMail(addr, auth, e.from, e.to, msg)
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.host})
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()
	return e.deliver(client, auth, msg)
}

func (e *EmailNotifier) deliver(c *smtp.Client, auth smtp.Auth, msg []byte) error {
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(e.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range e.to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end of data: %w", err)
	}
	return c.Quit()
}
