// Package memory implements the mailer as an in-memory capture for tests.
package memory

import (
	"context"
	"sync"

	"permitdesk/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Mailer = (*Mailer)(nil)

// Mailer records every message it is asked to send.
type Mailer struct {
	mu   sync.Mutex
	sent []domain.Mail
	err  error
}

// New returns an empty capture mailer.
func New() *Mailer { return &Mailer{} }

// FailWith makes subsequent sends return err; nil restores success.
func (m *Mailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Send records the message.
func (m *Mailer) Send(_ context.Context, msg domain.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of every recorded message.
func (m *Mailer) Sent() []domain.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Mail, len(m.sent))
	copy(out, m.sent)
	return out
}
