// Package smtp implements the mailer over an SMTP relay.
package smtp

import (
	"context"
	"fmt"
	"os"
	"strconv"

	gomail "gopkg.in/gomail.v2"

	"permitdesk/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Mailer = (*Mailer)(nil)

// Config holds SMTP relay parameters.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is used when a message carries no explicit sender.
	From string
}

// Mailer sends mail through a gomail dialer.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// New constructs a mailer from explicit config.
func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}, nil
}

// Environment variables:
//   PERMITDESK_SMTP_HOST (required)
//   PERMITDESK_SMTP_PORT (default 587)
//   PERMITDESK_SMTP_USER / PERMITDESK_SMTP_PASSWORD
//   PERMITDESK_SMTP_FROM (default sender address)

// OpenFromEnv constructs a mailer from process environment.
func OpenFromEnv() (*Mailer, error) {
	port := 0
	if raw := os.Getenv("PERMITDESK_SMTP_PORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("PERMITDESK_SMTP_PORT: %w", err)
		}
		port = p
	}
	return New(Config{
		Host:     os.Getenv("PERMITDESK_SMTP_HOST"),
		Port:     port,
		Username: os.Getenv("PERMITDESK_SMTP_USER"),
		Password: os.Getenv("PERMITDESK_SMTP_PASSWORD"),
		From:     os.Getenv("PERMITDESK_SMTP_FROM"),
	})
}

// Send delivers one message, honoring context cancellation before the dial.
func (m *Mailer) Send(ctx context.Context, msg domain.Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := msg.From
	if from == "" {
		from = m.from
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)
	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}
