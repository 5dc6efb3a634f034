package fs

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestPutDeleteURL(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	info, err := store.Put(ctx, "permits/x1/site-plan.pdf", strings.NewReader("content"), "application/pdf")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("content")) {
		t.Fatalf("size = %d", info.Size)
	}
	if !strings.HasPrefix(info.URL, "file://") {
		t.Fatalf("expected file URL, got %q", info.URL)
	}

	if _, err := store.Put(ctx, "permits/x1/site-plan.pdf", strings.NewReader("y"), ""); err == nil {
		t.Fatal("expected duplicate key to fail")
	}

	existed, err := store.Delete(ctx, "permits/x1/site-plan.pdf")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "permits/x1/site-plan.pdf")
	if err != nil || existed {
		t.Fatalf("repeat delete: existed=%v err=%v", existed, err)
	}
}

func TestKeySanitization(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"", "  ", "../escape", "/abs/path", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), ""); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestBaseURL(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir(), "https://files.example.com/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	info, err := store.Put(ctx, "doc.pdf", strings.NewReader("x"), "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.URL != "https://files.example.com/doc.pdf" {
		t.Fatalf("url = %q", info.URL)
	}
	u, err := store.URL(ctx, "doc.pdf", time.Minute)
	if err != nil || u != info.URL {
		t.Fatalf("url: %q err=%v", u, err)
	}
}
