package payment

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestCreateIntent(t *testing.T) {
	g := New("secret")
	intent, err := g.CreateIntent(context.Background(), 4000000, "usd", map[string]string{"project_id": "p1"})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if !strings.HasPrefix(intent.IntentID, "pi_") {
		t.Fatalf("intent id = %q", intent.IntentID)
	}
	if !strings.HasPrefix(intent.ClientSecret, intent.IntentID+"_secret_") {
		t.Fatalf("client secret = %q", intent.ClientSecret)
	}

	if _, err := g.CreateIntent(context.Background(), 0, "usd", nil); err == nil {
		t.Fatal("zero amount accepted")
	}
	if _, err := g.CreateIntent(context.Background(), 100, "", nil); err == nil {
		t.Fatal("empty currency accepted")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	g := New("secret")
	payload, err := json.Marshal(map[string]any{
		"type":      "payment_intent.succeeded",
		"intent_id": "pi_123",
		"metadata":  map[string]string{"owner_id": "u1", "project_id": "p1"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	ev, err := g.Verify(payload, g.Sign(payload))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ev.Type != "payment_intent.succeeded" || ev.IntentID != "pi_123" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Metadata["project_id"] != "p1" {
		t.Fatalf("metadata = %v", ev.Metadata)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	g := New("secret")
	payload := []byte(`{"type":"payment_intent.succeeded","intent_id":"pi_123"}`)

	if _, err := g.Verify(payload, "deadbeef"); err == nil {
		t.Fatal("bad signature accepted")
	}
	if _, err := g.Verify(payload, New("other").Sign(payload)); err == nil {
		t.Fatal("signature from another secret accepted")
	}
	// Tampered payload fails against the original signature.
	sig := g.Sign(payload)
	tampered := []byte(`{"type":"payment_intent.succeeded","intent_id":"pi_999"}`)
	if _, err := g.Verify(tampered, sig); err == nil {
		t.Fatal("tampered payload accepted")
	}
}

func TestVerifyRejectsMalformedBody(t *testing.T) {
	g := New("secret")
	for _, payload := range [][]byte{
		[]byte("not json"),
		[]byte(`{"intent_id":"pi_123"}`),
		[]byte(`{"type":"payment_intent.succeeded"}`),
	} {
		if _, err := g.Verify(payload, g.Sign(payload)); err == nil {
			t.Fatalf("malformed payload accepted: %s", payload)
		}
	}
}
