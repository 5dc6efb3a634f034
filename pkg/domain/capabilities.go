package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored blob.
type BlobInfo struct {
	Key         string    `json:"key"`
	URL         string    `json:"url,omitempty"`
	Size        int64     `json:"size_bytes"`
	ContentType string    `json:"content_type,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// BlobStore stores uploaded document bytes. Semantics mirror a minimal
// subset of S3 so the S3/MinIO adapter is nearly 1:1 while filesystem and
// memory adapters can emulate them.
type BlobStore interface {
	// Put stores a new blob at key. Fails if the key already exists.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (BlobInfo, error)
	// Delete removes a blob. Returns (false, nil) when the key is absent.
	Delete(ctx context.Context, key string) (bool, error)
	// URL returns a time-limited retrieval URL for the key.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Event is a real-time message addressed to a single user.
type Event struct {
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ProjectID string    `json:"project_id,omitempty"`
	PermitID  string    `json:"permit_id,omitempty"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// EventBus pushes events to connected clients. Publication is fire and
// forget: delivery failure is logged by the caller and never observed by the
// workflow transition that produced the event.
type EventBus interface {
	Publish(ctx context.Context, ev Event) error
}

// Mail is an outbound email message.
type Mail struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer sends outbound email.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// Analysis is the result of AI-assisted document extraction.
type Analysis struct {
	EstimatedCost         float64  `json:"estimated_cost"`
	EstimatedTimelineDays int      `json:"estimated_timeline_days"`
	RequiredPermits       []string `json:"required_permits,omitempty"`
	Issues                []string `json:"issues,omitempty"`
}

// DocumentAnalyzer extracts cost and timeline estimates from an uploaded
// document. It may fail; callers must substitute a deterministic fallback
// rather than surface the failure.
type DocumentAnalyzer interface {
	Extract(ctx context.Context, documentURL, hint string) (Analysis, error)
}

// PaymentIntent is a created payment awaiting client-side confirmation.
type PaymentIntent struct {
	IntentID     string
	ClientSecret string
}

// PaymentEvent is a verified payment webhook event.
type PaymentEvent struct {
	Type     string
	IntentID string
	Metadata map[string]string
}

// PaymentGateway creates payment intents and verifies webhook payloads.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (PaymentIntent, error)
	Verify(payload []byte, signature string) (PaymentEvent, error)
}
