package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"permitdesk/internal/infra/persistence/memory"
	"permitdesk/pkg/domain"
)

func seedNotifications(t *testing.T, store domain.EntityStore, userID string, count int, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		n := domain.Notification{
			ID:        fmt.Sprintf("n-%04d", i),
			UserID:    userID,
			Type:      "status_change",
			Title:     "t",
			CreatedAt: createdAt,
		}
		if err := putNotification(ctx, store, n); err != nil {
			t.Fatalf("seed notification %d: %v", i, err)
		}
	}
}

func TestPurgeNotificationsChunksAtBatchCeiling(t *testing.T) {
	inner := memory.NewStore()
	store := newFlakyStore(inner)
	h := newHarness(t, store)
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	seedNotifications(t, store, "user-1", 1200, cutoff.Add(-time.Hour))

	deleted, err := h.svc.PurgeNotifications(context.Background(), "user-1", cutoff)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1200 {
		t.Fatalf("deleted = %d, want 1200", deleted)
	}
	// 1200 deletes = three chunk commits of 500, 500 and 200.
	if store.commits != 3 {
		t.Fatalf("batch commits = %d, want 3", store.commits)
	}
	left, err := listNotifications(context.Background(), store, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("%d notifications survived the purge", len(left))
	}
}

func TestPurgeNotificationsFailedChunkKeepsPriorChunks(t *testing.T) {
	inner := memory.NewStore()
	store := newFlakyStore(inner)
	h := newHarness(t, store)
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	seedNotifications(t, store, "user-1", 1200, cutoff.Add(-time.Hour))
	store.commitBudget = 1 // second chunk commit fails

	deleted, err := h.svc.PurgeNotifications(context.Background(), "user-1", cutoff)
	if err == nil {
		t.Fatal("expected the second chunk commit to fail")
	}
	if deleted != 500 {
		t.Fatalf("deleted = %d, want the first committed chunk of 500", deleted)
	}
	left, err := listNotifications(context.Background(), store, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 700 {
		t.Fatalf("%d notifications remain, want 700 untouched", len(left))
	}
}

func TestPurgeNotificationsHonorsCutoff(t *testing.T) {
	store := memory.NewStore()
	h := newHarness(t, store)
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	seedNotifications(t, store, "user-1", 10, cutoff.Add(-time.Hour))
	// Fresh notifications sit past the cutoff and survive.
	ctx := context.Background()
	fresh := domain.Notification{ID: "fresh", UserID: "user-1", Type: "x", Title: "t", CreatedAt: cutoff.Add(time.Hour)}
	if err := putNotification(ctx, store, fresh); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	deleted, err := h.svc.PurgeNotifications(ctx, "user-1", cutoff)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 10 {
		t.Fatalf("deleted = %d, want 10", deleted)
	}
	left, err := listNotifications(ctx, store, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 1 || left[0].ID != "fresh" {
		t.Fatalf("survivors = %v, want only the fresh notification", left)
	}
}

func TestPurgeAllNotificationsSweepsEveryPartition(t *testing.T) {
	store := memory.NewStore()
	h := newHarness(t, store)
	old := h.clock.t.Add(-200 * 24 * time.Hour)

	seedNotifications(t, store, "user-1", 5, old)
	seedNotifications(t, store, "user-2", 7, old)

	total, err := h.svc.PurgeAllNotifications(context.Background(), 90*24*time.Hour)
	if err != nil {
		t.Fatalf("purge all: %v", err)
	}
	if total != 12 {
		t.Fatalf("total deleted = %d, want 12", total)
	}
}
