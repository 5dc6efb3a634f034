package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"permitdesk/pkg/domain"
)

var errInjected = errors.New("injected store failure")

// flakyStore wraps a real store and injects failures: partition reads listed
// in failPartitions error, and batch commits beyond commitBudget error
// without applying.
type flakyStore struct {
	domain.EntityStore
	mu             sync.Mutex
	failPartitions map[string]bool
	commitBudget   int // -1 = unlimited
	commits        int
}

func newFlakyStore(inner domain.EntityStore) *flakyStore {
	return &flakyStore{
		EntityStore:    inner,
		failPartitions: make(map[string]bool),
		commitBudget:   -1,
	}
}

func (s *flakyStore) List(ctx context.Context, p domain.CollectionPath, q domain.Query) ([]domain.Record, error) {
	s.mu.Lock()
	fail := s.failPartitions[p.Partition]
	s.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return s.EntityStore.List(ctx, p, q)
}

func (s *flakyStore) Batch(p domain.CollectionPath) domain.WriteBatch {
	return &flakyBatch{store: s, inner: s.EntityStore.Batch(p)}
}

type flakyBatch struct {
	store *flakyStore
	inner domain.WriteBatch
}

func (b *flakyBatch) Put(id string, record json.RawMessage) { b.inner.Put(id, record) }
func (b *flakyBatch) Delete(id string)                      { b.inner.Delete(id) }
func (b *flakyBatch) Len() int                              { return b.inner.Len() }

func (b *flakyBatch) Commit(ctx context.Context) error {
	b.store.mu.Lock()
	b.store.commits++
	overBudget := b.store.commitBudget >= 0 && b.store.commits > b.store.commitBudget
	b.store.mu.Unlock()
	if overBudget {
		return errInjected
	}
	return b.inner.Commit(ctx)
}

// recordingBus captures published events.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (b *recordingBus) Publish(_ context.Context, ev domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) published() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.events...)
}

// recordingMailer captures sent mail.
type recordingMailer struct {
	mu   sync.Mutex
	sent []domain.Mail
}

func (m *recordingMailer) Send(_ context.Context, msg domain.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) mails() []domain.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Mail(nil), m.sent...)
}

// analyzerFunc adapts a function to the DocumentAnalyzer interface.
type analyzerFunc func(ctx context.Context, documentURL, hint string) (domain.Analysis, error)

func (f analyzerFunc) Extract(ctx context.Context, documentURL, hint string) (domain.Analysis, error) {
	return f(ctx, documentURL, hint)
}
