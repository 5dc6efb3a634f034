package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"permitdesk/internal/infra/persistence/memory"
	"permitdesk/pkg/domain"
)

func TestDispatcherPersistsThenPushes(t *testing.T) {
	store := memory.NewStore()
	bus := &recordingBus{}
	mailer := &recordingMailer{}
	d := NewDispatcher(store, bus, zerolog.Nop(), WithMailer(mailer, "noreply@permitdesk.local"))

	ev := domain.Event{
		UserID:    "user-1",
		Type:      "project_approved",
		Title:     "Project approved",
		Message:   "Project \"Garage\" was approved.",
		ProjectID: "proj-1",
		Priority:  domain.PriorityHigh,
	}
	n, err := d.Notify(context.Background(), ev, &domain.Mail{To: "u@example.com", Subject: ev.Title, Body: ev.Message})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	d.Flush()

	stored, err := listNotifications(context.Background(), store, "user-1")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != n.ID {
		t.Fatalf("stored notifications = %v", stored)
	}
	if stored[0].IsRead {
		t.Fatal("new notification must start unread")
	}

	pushed := bus.published()
	if len(pushed) != 1 || pushed[0].Type != "project_approved" {
		t.Fatalf("published events = %v", pushed)
	}
	mails := mailer.mails()
	if len(mails) != 1 || mails[0].To != "u@example.com" {
		t.Fatalf("sent mail = %v", mails)
	}
	if mails[0].From != "noreply@permitdesk.local" {
		t.Fatalf("mail from = %q, want dispatcher default", mails[0].From)
	}
}

func TestDispatcherPushFailureInvisible(t *testing.T) {
	store := memory.NewStore()
	bus := &recordingBus{err: errors.New("broker down")}
	d := NewDispatcher(store, bus, zerolog.Nop())

	if _, err := d.Notify(context.Background(), domain.Event{UserID: "user-1", Type: "x", Title: "t"}, nil); err != nil {
		t.Fatalf("Notify surfaced push failure: %v", err)
	}
	d.Flush()

	stored, err := listNotifications(context.Background(), store, "user-1")
	if err != nil || len(stored) != 1 {
		t.Fatalf("notification not persisted: %v %v", stored, err)
	}
}

func TestDispatcherPushOutlivesRequestContext(t *testing.T) {
	store := memory.NewStore()
	bus := &recordingBus{}
	d := NewDispatcher(store, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := d.Notify(ctx, domain.Event{UserID: "user-1", Type: "x", Title: "t"}, nil)
	cancel() // request ends immediately after the transition returned
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	d.Flush()

	if got := bus.published(); len(got) != 1 {
		t.Fatalf("push dropped with request context, events = %v", got)
	}
}

func TestDispatcherDefaultsPriority(t *testing.T) {
	store := memory.NewStore()
	d := NewDispatcher(store, nil, zerolog.Nop(), WithDispatcherClock(func() time.Time {
		return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	}))
	n, err := d.Notify(context.Background(), domain.Event{UserID: "user-1", Type: "x", Title: "t"}, nil)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	d.Flush()
	if n.Priority != domain.PriorityNormal {
		t.Fatalf("priority = %s, want normal default", n.Priority)
	}
}
