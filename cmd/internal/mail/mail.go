// Package mail delivers magic-link emails over SMTP.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"

	"github.com/domodwyer/mailyak/v3"
)

// Config holds SMTP settings.
type Config struct {
	Host     string `env:"USERBASE_SMTP_HOST"`
	Port     int    `env:"USERBASE_SMTP_PORT, default=587"`
	Username string `env:"USERBASE_SMTP_USERNAME"`
	Password string `env:"USERBASE_SMTP_PASSWORD"`
	From     string `env:"USERBASE_SMTP_FROM"`
}

// Configured reports whether enough is set to send mail.
func (c Config) Configured() bool { return c.Host != "" && c.From != "" }

// SMTPMailer sends HTML mail through an SMTP relay.
type SMTPMailer struct {
	cfg Config
	log *slog.Logger
}

// NewSMTP returns a mailer for cfg.
func NewSMTP(cfg Config, log *slog.Logger) (*SMTPMailer, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("mail: host and from are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &SMTPMailer{cfg: cfg, log: log}, nil
}

// Send delivers one message. mailyak has no context support, so the send
// runs in its own goroutine and ctx only bounds how long the caller waits.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	msg := mailyak.New(net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port)), auth)
	msg.To(to)
	msg.From(m.cfg.From)
	msg.Subject(subject)
	msg.HTML().Set(html)

	done := make(chan error, 1)
	go func() {
		done <- msg.Send()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mail: send: %w", err)
		}
	}

	m.log.Info("mail.sent", "subject", subject)
	return nil
}

// LogMailer writes messages to the log instead of sending them.
// It exposes sign-in links and is meant for local development only.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, html string) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("mail.dev.not_sent", "to", to, "subject", subject, "body", html)
	return nil
}
