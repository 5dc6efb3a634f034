// Package payment provides a local payment gateway with HMAC-signed
// webhooks. It stands in for a hosted processor in development and tests;
// real capture never happens here.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"permitdesk/pkg/domain"
)

// EnvWebhookSecret configures the shared webhook signing secret.
const EnvWebhookSecret = "PERMITDESK_PAYMENT_WEBHOOK_SECRET"

// Gateway issues synthetic payment intents and verifies webhook payloads
// signed with a shared HMAC-SHA256 secret.
type Gateway struct {
	secret []byte
}

var _ domain.PaymentGateway = (*Gateway)(nil)

// New returns a gateway with the given webhook secret.
func New(secret string) *Gateway {
	return &Gateway{secret: []byte(secret)}
}

// OpenFromEnv builds a gateway from the environment.
func OpenFromEnv() (*Gateway, error) {
	secret := os.Getenv(EnvWebhookSecret)
	if secret == "" {
		return nil, fmt.Errorf("payment: %s is required", EnvWebhookSecret)
	}
	return New(secret), nil
}

// CreateIntent mints an intent ID and client secret locally. Amount and
// currency are accepted for interface parity; nothing is charged.
func (g *Gateway) CreateIntent(_ context.Context, amountCents int64, currency string, _ map[string]string) (domain.PaymentIntent, error) {
	if amountCents <= 0 {
		return domain.PaymentIntent{}, fmt.Errorf("payment: amount must be positive, got %d", amountCents)
	}
	if currency == "" {
		return domain.PaymentIntent{}, fmt.Errorf("payment: currency is required")
	}
	id := "pi_" + uuid.NewString()
	return domain.PaymentIntent{
		IntentID:     id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
	}, nil
}

// webhookBody is the wire shape of a webhook payload.
type webhookBody struct {
	Type     string            `json:"type"`
	IntentID string            `json:"intent_id"`
	Metadata map[string]string `json:"metadata"`
}

// Verify checks the payload's HMAC-SHA256 hex signature and decodes the
// event. A bad signature or malformed body rejects the webhook.
func (g *Gateway) Verify(payload []byte, signature string) (domain.PaymentEvent, error) {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return domain.PaymentEvent{}, fmt.Errorf("payment: webhook signature mismatch")
	}
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("payment: decode webhook: %w", err)
	}
	if body.Type == "" || body.IntentID == "" {
		return domain.PaymentEvent{}, fmt.Errorf("payment: webhook missing type or intent_id")
	}
	return domain.PaymentEvent{
		Type:     body.Type,
		IntentID: body.IntentID,
		Metadata: body.Metadata,
	}, nil
}

// Sign computes the signature for a payload. Exposed so tests and the local
// simulator can produce valid webhooks.
func (g *Gateway) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
