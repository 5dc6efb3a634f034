package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"permitdesk/pkg/domain"
)

// publishTimeout bounds the best-effort push after a notification is
// persisted.
const publishTimeout = 5 * time.Second

// Dispatcher persists notifications and then pushes them to the event bus
// and mailer best-effort. The persisted record is the source of truth: a
// dropped push is recoverable from the notification list, so push and mail
// failures are logged and never surfaced to the workflow that raised them.
type Dispatcher struct {
	store  domain.EntityStore
	bus    domain.EventBus
	mailer domain.Mailer
	from   string
	log    zerolog.Logger
	newID  func() string
	now    func() time.Time
	wg     sync.WaitGroup
}

// DispatcherOption adjusts a Dispatcher at construction.
type DispatcherOption func(*Dispatcher)

// WithMailer attaches an outbound mailer sending from the given address.
func WithMailer(m domain.Mailer, from string) DispatcherOption {
	return func(d *Dispatcher) {
		d.mailer = m
		d.from = from
	}
}

// WithDispatcherClock overrides the dispatcher clock.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithDispatcherIDs overrides notification ID generation.
func WithDispatcherIDs(newID func() string) DispatcherOption {
	return func(d *Dispatcher) { d.newID = newID }
}

// NewDispatcher builds a dispatcher over store and bus. bus may be nil when
// no realtime transport is configured.
func NewDispatcher(store domain.EntityStore, bus domain.EventBus, log zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store: store,
		bus:   bus,
		log:   log.With().Str("component", "dispatcher").Logger(),
		newID: newUUID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify persists the notification for ev, then pushes it asynchronously.
// The persist error is the only one returned: once the record is durable the
// notification counts as delivered.
func (d *Dispatcher) Notify(ctx context.Context, ev domain.Event, mail *domain.Mail) (domain.Notification, error) {
	now := d.now()
	n := domain.Notification{
		ID:        d.newID(),
		UserID:    ev.UserID,
		Type:      ev.Type,
		Title:     ev.Title,
		Message:   ev.Message,
		Priority:  ev.Priority,
		ProjectID: ev.ProjectID,
		PermitID:  ev.PermitID,
		CreatedAt: now,
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}
	if err := putNotification(ctx, d.store, n); err != nil {
		return domain.Notification{}, err
	}

	ev.CreatedAt = now
	// The push must outlive the request that triggered it.
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.push(bg, ev, mail)
	}()
	return n, nil
}

func (d *Dispatcher) push(ctx context.Context, ev domain.Event, mail *domain.Mail) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if d.bus != nil {
		if err := d.bus.Publish(ctx, ev); err != nil {
			d.log.Warn().Err(err).Str("user", ev.UserID).Str("type", ev.Type).Msg("event publish failed")
		}
	}
	if mail != nil && d.mailer != nil {
		m := *mail
		if m.From == "" {
			m.From = d.from
		}
		if err := d.mailer.Send(ctx, m); err != nil {
			d.log.Warn().Err(err).Str("to", m.To).Msg("notification mail failed")
		}
	}
}

// Flush waits for all in-flight pushes. Tests use it to observe dispatch
// side effects deterministically.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}
