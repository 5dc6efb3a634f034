package memory

import (
	"context"
	"encoding/json"
	"testing"

	"permitdesk/internal/infra/persistence/storetest"
	"permitdesk/pkg/domain"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(_ *testing.T) domain.EntityStore { return NewStore() })
}

func TestRecordsDoNotAliasCallerBuffers(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	p := domain.ProjectsOf("alice")

	buf := json.RawMessage(`{"name":"garage"}`)
	if err := store.Put(ctx, p, "p1", buf); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Mutating the caller's buffer must not corrupt stored state.
	buf[9] = 'X'
	raw, err := store.Get(ctx, p, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["name"] != "garage" {
		t.Fatalf("stored record aliased caller buffer: %v", got)
	}
}

func TestPutEmptyIDRejected(t *testing.T) {
	store := NewStore()
	err := store.Put(context.Background(), domain.Permits(), "", json.RawMessage(`{}`))
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestQueryOnNonStringFieldNeverMatches(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	p := domain.ProjectsOf("bob")
	if err := store.Put(ctx, p, "p1", json.RawMessage(`{"estimated_cost":40000}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	rows, err := store.List(ctx, p, domain.Query{Field: "estimated_cost", Equals: "40000"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("numeric field matched string equality: %d rows", len(rows))
	}
}
