// Package memory provides an in-memory implementation of the partitioned
// entity store used for tests and ephemeral environments.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"permitdesk/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.EntityStore = (*Store)(nil)

// Store keeps every collection in process memory. Records are copied on the
// way in and out so callers can never alias stored state.
type Store struct {
	mu sync.RWMutex
	// collection -> partition -> id -> record
	collections map[string]map[string]map[string]json.RawMessage
}

// NewStore returns an empty in-memory entity store.
func NewStore() *Store {
	return &Store{collections: make(map[string]map[string]map[string]json.RawMessage)}
}

func (s *Store) partition(p domain.CollectionPath, create bool) map[string]json.RawMessage {
	coll, ok := s.collections[p.Collection]
	if !ok {
		if !create {
			return nil
		}
		coll = make(map[string]map[string]json.RawMessage)
		s.collections[p.Collection] = coll
	}
	part, ok := coll[p.Partition]
	if !ok {
		if !create {
			return nil
		}
		part = make(map[string]json.RawMessage)
		coll[p.Partition] = part
	}
	return part
}

// Put creates or replaces a record.
func (s *Store) Put(_ context.Context, p domain.CollectionPath, id string, record json.RawMessage) error {
	if id == "" {
		return domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partition(p, true)[id] = cloneRaw(record)
	return nil
}

// Get returns a copy of the record or a NotFoundError.
func (s *Store) Get(_ context.Context, p domain.CollectionPath, id string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	part := s.partition(p, false)
	rec, ok := part[id]
	if !ok {
		return nil, domain.NotFoundError{Entity: p.Collection, ID: id}
	}
	return cloneRaw(rec), nil
}

// Delete removes a record; absent records are a no-op.
func (s *Store) Delete(_ context.Context, p domain.CollectionPath, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if part := s.partition(p, false); part != nil {
		delete(part, id)
	}
	return nil
}

// List returns the partition's records, filtered by the pushed-down equality
// when one is supplied. Results are ordered by id ascending for determinism.
func (s *Store) List(_ context.Context, p domain.CollectionPath, q domain.Query) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	part := s.partition(p, false)
	if part == nil {
		return nil, nil
	}
	out := make([]domain.Record, 0, len(part))
	for id, rec := range part {
		if !q.IsZero() && !fieldEquals(rec, q.Field, q.Equals) {
			continue
		}
		out = append(out, domain.Record{ID: id, Data: cloneRaw(rec)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListPartitions enumerates partition keys of a collection, sorted ascending.
func (s *Store) ListPartitions(_ context.Context, collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll := s.collections[collection]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Compile-time assertion of the optional compare-and-swap capability.
var _ domain.ConditionalStore = (*Store)(nil)

// PutIfMatch replaces the record only while its field still equals want.
func (s *Store) PutIfMatch(_ context.Context, p domain.CollectionPath, id string, record json.RawMessage, field, want string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	part := s.partition(p, false)
	current, ok := part[id]
	if !ok {
		return domain.NotFoundError{Entity: p.Collection, ID: id}
	}
	if !fieldMatchesWant(current, field, want) {
		return domain.ErrPreconditionFailed
	}
	part[id] = cloneRaw(record)
	return nil
}

// Batch returns a write batch scoped to one partition.
func (s *Store) Batch(p domain.CollectionPath) domain.WriteBatch {
	return &batch{store: s, path: p}
}

type batchOp struct {
	id     string
	record json.RawMessage // nil means delete
}

type batch struct {
	store *Store
	path  domain.CollectionPath
	ops   []batchOp
}

func (b *batch) Put(id string, record json.RawMessage) {
	b.ops = append(b.ops, batchOp{id: id, record: cloneRaw(record)})
}

func (b *batch) Delete(id string) {
	b.ops = append(b.ops, batchOp{id: id})
}

func (b *batch) Len() int { return len(b.ops) }

// Commit applies all staged operations atomically under the store lock.
func (b *batch) Commit(_ context.Context) error {
	if len(b.ops) > domain.MaxBatchOps {
		return domain.ValidationError{Field: "batch", Reason: "exceeds max batch size"}
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	part := b.store.partition(b.path, true)
	for _, op := range b.ops {
		if op.record == nil {
			delete(part, op.id)
			continue
		}
		part[op.id] = cloneRaw(op.record)
	}
	return nil
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	cp := make(json.RawMessage, len(r))
	copy(cp, r)
	return cp
}

// fieldMatchesWant implements conditional-write matching: an empty want
// matches an absent or null field, a non-empty want requires string equality.
func fieldMatchesWant(rec json.RawMessage, field, want string) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(rec, &top); err != nil {
		return false
	}
	raw, ok := top[field]
	if !ok || string(raw) == "null" {
		return want == ""
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		return false
	}
	return got == want
}

// fieldEquals decodes only the record's top level to test the pushed-down
// equality. Non-string fields never match.
func fieldEquals(rec json.RawMessage, field, want string) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(rec, &top); err != nil {
		return false
	}
	raw, ok := top[field]
	if !ok {
		return false
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		return false
	}
	return got == want
}
