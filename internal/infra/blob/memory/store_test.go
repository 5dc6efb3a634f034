package memory

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestPutDeleteURL(t *testing.T) {
	ctx := context.Background()
	store := New()

	info, err := store.Put(ctx, "projects/alice/p1/plan.pdf", strings.NewReader("plan bytes"), "application/pdf")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("plan bytes")) {
		t.Fatalf("size = %d", info.Size)
	}
	if info.ContentType != "application/pdf" {
		t.Fatalf("content type = %q", info.ContentType)
	}

	if _, err := store.Put(ctx, "projects/alice/p1/plan.pdf", strings.NewReader("x"), ""); err == nil {
		t.Fatal("expected duplicate key to fail")
	}

	u, err := store.URL(ctx, "projects/alice/p1/plan.pdf", time.Minute)
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if u == "" {
		t.Fatal("expected non-empty url")
	}

	existed, err := store.Delete(ctx, "projects/alice/p1/plan.pdf")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "projects/alice/p1/plan.pdf")
	if err != nil || existed {
		t.Fatalf("repeat delete: existed=%v err=%v", existed, err)
	}
	if _, err := store.URL(ctx, "projects/alice/p1/plan.pdf", time.Minute); err == nil {
		t.Fatal("expected url of deleted blob to fail")
	}
}
