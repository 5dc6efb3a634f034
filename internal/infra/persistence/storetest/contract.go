// Package storetest holds the behavioural contract shared by every entity
// store backend. Backend test files call Run with a factory so memory,
// sqlite, and postgres stay interchangeable.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"permitdesk/pkg/domain"
)

// Factory produces a fresh, empty store for each contract case.
type Factory func(t *testing.T) domain.EntityStore

// Run executes the full store contract against the supplied factory.
func Run(t *testing.T, factory Factory) {
	t.Run("PutGetRoundTrip", func(t *testing.T) { testPutGet(t, factory(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory(t)) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("ListFiltersByEquality", func(t *testing.T) { testListFilter(t, factory(t)) })
	t.Run("ListPartitions", func(t *testing.T) { testListPartitions(t, factory(t)) })
	t.Run("PartitionsAreIsolated", func(t *testing.T) { testIsolation(t, factory(t)) })
	t.Run("BatchCommit", func(t *testing.T) { testBatch(t, factory(t)) })
	t.Run("BatchOverflowRejected", func(t *testing.T) { testBatchOverflow(t, factory(t)) })
	t.Run("ConditionalPut", func(t *testing.T) { testConditionalPut(t, factory(t)) })
}

type probe struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal probe: %v", err)
	}
	return b
}

func testPutGet(t *testing.T, store domain.EntityStore) {
	ctx := context.Background()
	p := domain.ProjectsOf("alice")
	want := probe{Name: "garage", Status: "draft"}
	if err := store.Put(ctx, p, "p1", mustRaw(t, want)); err != nil {
		t.Fatalf("put: %v", err)
	}
	raw, err := store.Get(ctx, p, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got probe
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}

	// Replacement overwrites in place.
	want.Status = "submitted"
	if err := store.Put(ctx, p, "p1", mustRaw(t, want)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	raw, err = store.Get(ctx, p, "p1")
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "submitted" {
		t.Fatalf("expected replacement to win, got %+v", got)
	}
}

func testGetMissing(t *testing.T, store domain.EntityStore) {
	_, err := store.Get(context.Background(), domain.ProjectsOf("alice"), "nope")
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func testDelete(t *testing.T, store domain.EntityStore) {
	ctx := context.Background()
	p := domain.NotificationsOf("alice")
	if err := store.Put(ctx, p, "n1", mustRaw(t, probe{Name: "hello"})); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, p, "n1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, p, "n1"); !domain.IsNotFound(err) {
		t.Fatalf("expected record gone, got %v", err)
	}
	// Deleting again must not error.
	if err := store.Delete(ctx, p, "n1"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func testListFilter(t *testing.T, store domain.EntityStore) {
	ctx := context.Background()
	p := domain.ProjectsOf("bob")
	rows := []probe{
		{Name: "deck", Status: "submitted"},
		{Name: "fence", Status: "draft"},
		{Name: "pool", Status: "submitted"},
	}
	for i, row := range rows {
		if err := store.Put(ctx, p, fmt.Sprintf("p%d", i), mustRaw(t, row)); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	all, err := store.List(ctx, p, domain.Query{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	filtered, err := store.List(ctx, p, domain.Query{Field: "status", Equals: "submitted"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 submitted records, got %d", len(filtered))
	}
	for _, rec := range filtered {
		var got probe
		if err := json.Unmarshal(rec.Data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Status != "submitted" {
			t.Fatalf("filter leaked %+v", got)
		}
	}
}

func testListPartitions(t *testing.T, store domain.EntityStore) {
	ctx := context.Background()
	for _, owner := range []string{"carol", "alice", "bob"} {
		if err := store.Put(ctx, domain.ProjectsOf(owner), "p1", mustRaw(t, probe{Name: owner})); err != nil {
			t.Fatalf("put %s: %v", owner, err)
		}
	}
	keys, err := store.ListPartitions(ctx, "projects")
	if err != nil {
		t.Fatalf("list partitions: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected sorted partitions %v, got %v", want, keys)
		}
	}
}

func testIsolation(t *testing.T, store domain.EntityStore) {
	ctx := context.Background()
	if err := store.Put(ctx, domain.ProjectsOf("alice"), "p1", mustRaw(t, probe{Name: "a"})); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Get(ctx, domain.ProjectsOf("bob"), "p1"); !domain.IsNotFound(err) {
		t.Fatalf("partition leak: %v", err)
	}
	rows, err := store.List(ctx, domain.ProjectsOf("bob"), domain.Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty foreign partition, got %d rows", len(rows))
	}
}

func testBatch(t *testing.T, store domain.EntityStore) {
	ctx := context.Background()
	p := domain.NotificationsOf("dora")
	if err := store.Put(ctx, p, "old", mustRaw(t, probe{Name: "old"})); err != nil {
		t.Fatalf("seed: %v", err)
	}
	b := store.Batch(p)
	b.Put("n1", mustRaw(t, probe{Name: "one"}))
	b.Put("n2", mustRaw(t, probe{Name: "two"}))
	b.Delete("old")
	if b.Len() != 3 {
		t.Fatalf("expected 3 staged ops, got %d", b.Len())
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	rows, err := store.List(ctx, p, domain.Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after batch, got %d", len(rows))
	}
	if _, err := store.Get(ctx, p, "old"); !domain.IsNotFound(err) {
		t.Fatalf("expected batched delete applied, got %v", err)
	}
}

func testConditionalPut(t *testing.T, store domain.EntityStore) {
	cs, ok := store.(domain.ConditionalStore)
	if !ok {
		t.Skip("store does not implement ConditionalStore")
	}
	ctx := context.Background()
	p := domain.ProjectsOf("frank")

	type claimable struct {
		Title    string  `json:"title"`
		Reviewer *string `json:"reviewer,omitempty"`
	}
	seed := mustRaw(t, claimable{Title: "Deck"})
	if err := store.Put(ctx, p, "p1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rev := "rev-1"
	claimed := mustRaw(t, claimable{Title: "Deck", Reviewer: &rev})
	// First claim succeeds: reviewer is still unset.
	if err := cs.PutIfMatch(ctx, p, "p1", claimed, "reviewer", ""); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	// A racing second claim must observe the stale expectation.
	other := "rev-2"
	stolen := mustRaw(t, claimable{Title: "Deck", Reviewer: &other})
	err := cs.PutIfMatch(ctx, p, "p1", stolen, "reviewer", "")
	if !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}
	// Matching the current value still works.
	if err := cs.PutIfMatch(ctx, p, "p1", claimed, "reviewer", "rev-1"); err != nil {
		t.Fatalf("matched claim: %v", err)
	}
	// Missing records surface NotFound, not precondition failure.
	if err := cs.PutIfMatch(ctx, p, "missing", claimed, "reviewer", ""); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func testBatchOverflow(t *testing.T, store domain.EntityStore) {
	b := store.Batch(domain.NotificationsOf("eve"))
	for i := 0; i <= domain.MaxBatchOps; i++ {
		b.Delete(fmt.Sprintf("n%d", i))
	}
	err := b.Commit(context.Background())
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError for oversized batch, got %v", err)
	}
}
