package core

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"permitdesk/internal/infra/payment"
	"permitdesk/internal/infra/persistence/memory"
	"permitdesk/pkg/domain"
)

func TestPaymentFlow(t *testing.T) {
	gateway := payment.New("test-secret")
	h := newHarness(t, memory.NewStore(), WithPaymentGateway(gateway))
	ctx := context.Background()

	applicant := registerActor(t, h, "ursula", domain.RoleUser)
	revX := registerActor(t, h, "xavier", domain.RoleReviewer)

	p, err := h.svc.CreateProject(ctx, applicant, CreateProjectInput{Title: "Garage", Type: "renovation", EstimatedCost: 40000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Payment is gated on approval.
	if _, err := h.svc.CreatePaymentIntent(ctx, applicant, applicant.ID, p.ID); !domain.IsInvalidTransition(err) {
		t.Fatalf("pre-approval intent: expected InvalidTransitionError, got %v", err)
	}

	if _, err := h.svc.AttachProjectDocument(ctx, applicant, applicant.ID, p.ID, "plan.pdf", "application/pdf", strings.NewReader("doc")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := h.svc.TransitionProject(ctx, revX, applicant.ID, p.ID, ActionAssign, TransitionPayload{Reviewer: revX.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := h.svc.TransitionProject(ctx, revX, applicant.ID, p.ID, ActionApprove, TransitionPayload{}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Only the owner opens payment.
	if _, err := h.svc.CreatePaymentIntent(ctx, revX, applicant.ID, p.ID); !domain.IsAccessDenied(err) {
		t.Fatalf("reviewer intent: expected AccessDeniedError, got %v", err)
	}

	intent, err := h.svc.CreatePaymentIntent(ctx, applicant, applicant.ID, p.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.IntentID == "" {
		t.Fatal("empty intent id")
	}
	got, err := h.svc.GetProject(ctx, applicant, applicant.ID, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PaymentStatus != domain.PaymentPending {
		t.Fatalf("payment status = %s, want pending", got.PaymentStatus)
	}

	// Webhook confirms the payment.
	body, err := json.Marshal(map[string]any{
		"type":      "payment_intent.succeeded",
		"intent_id": intent.IntentID,
		"metadata":  map[string]string{"owner_id": applicant.ID, "project_id": p.ID},
	})
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	if err := h.svc.HandlePaymentWebhook(ctx, body, gateway.Sign(body)); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	got, err = h.svc.GetProject(ctx, applicant, applicant.ID, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("payment status = %s, want paid", got.PaymentStatus)
	}

	h.dispatcher.Flush()
	notifications, err := h.svc.ListNotifications(ctx, applicant, applicant.ID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	found := false
	for _, n := range notifications {
		if n.Type == "payment_received" {
			found = true
		}
	}
	if !found {
		t.Fatal("no payment_received notification")
	}

	// A forged signature never reaches the store.
	if err := h.svc.HandlePaymentWebhook(ctx, body, "deadbeef"); err == nil {
		t.Fatal("forged webhook accepted")
	}
}
