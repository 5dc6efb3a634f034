// Package core implements the permitdesk service: workflow transitions over
// projects and permits, the access control guard, federated queries across
// per-owner partitions, and notification dispatch.
package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"permitdesk/pkg/domain"
)

func newUUID() string { return uuid.NewString() }

// Service exposes every permitdesk operation. All mutating and read paths
// funnel through Authorize; transitions go through the pure workflow engine
// and the returned copy is what gets persisted.
type Service struct {
	store      domain.EntityStore
	blobs      domain.BlobStore
	analyzer   domain.DocumentAnalyzer
	payments   domain.PaymentGateway
	federation *Federation
	dispatcher *Dispatcher
	log        zerolog.Logger
	metrics    MetricsRecorder
	now        func() time.Time
	newID      func() string
}

// Option adjusts a Service at construction.
type Option func(*Service)

// WithBlobStore attaches the document blob backend.
func WithBlobStore(b domain.BlobStore) Option {
	return func(s *Service) { s.blobs = b }
}

// WithAnalyzer attaches a document analyzer. Absent or failing analyzers are
// replaced by the deterministic fallback table.
func WithAnalyzer(a domain.DocumentAnalyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

// WithPaymentGateway attaches the payment gateway.
func WithPaymentGateway(g domain.PaymentGateway) Option {
	return func(s *Service) { s.payments = g }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs overrides entity ID generation.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService builds a service over store with dispatcher d for notification
// side effects.
func NewService(store domain.EntityStore, d *Dispatcher, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		dispatcher: d,
		log:        log.With().Str("component", "service").Logger(),
		metrics:    NopMetrics{},
		now:        time.Now,
		newID:      newUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.federation = NewFederation(store, log, s.metrics)
	return s
}

// Federation exposes the federated query layer directly, for callers that
// need the partial-result report.
func (s *Service) Federation() *Federation { return s.federation }

// observe records one completed operation.
func (s *Service) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case domain.IsNotFound(err):
		status = "not_found"
	case domain.IsAccessDenied(err):
		status = "access_denied"
	case domain.IsInvalidTransition(err):
		status = "invalid_transition"
	case domain.IsValidation(err):
		status = "validation"
	default:
		status = "error"
	}
	s.metrics.ObserveOp(op, status, time.Since(start))
}

// RegisterUser creates a platform identity. New users always start in the
// applicant role; elevation is a separate admin action.
func (s *Service) RegisterUser(ctx context.Context, email, name string) (domain.User, error) {
	start := s.now()
	var err error
	defer func() { s.observe("register_user", start, err) }()

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		err = domain.ValidationError{Field: "email", Reason: "must be a valid address"}
		return domain.User{}, err
	}
	if strings.TrimSpace(name) == "" {
		err = domain.ValidationError{Field: "name", Reason: "must not be empty"}
		return domain.User{}, err
	}
	u := domain.User{
		ID:        s.newID(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Role:      domain.RoleUser,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	if err = putUser(ctx, s.store, u); err != nil {
		return domain.User{}, err
	}
	s.log.Info().Str("op", "register_user").Str("user", u.ID).Msg("user registered")
	return u, nil
}

// GetUser returns a user record. Users may read themselves; reviewers and
// admins may read anyone.
func (s *Service) GetUser(ctx context.Context, actor domain.Actor, userID string) (domain.User, error) {
	if actor.ID != userID && actor.Role == domain.RoleUser {
		return domain.User{}, domain.AccessDeniedError{Actor: actor.ID, Action: "read_user", Reason: "not your account"}
	}
	return getUser(ctx, s.store, userID)
}

// SetUserRole changes a user's role. Admin only.
func (s *Service) SetUserRole(ctx context.Context, actor domain.Actor, userID string, role domain.Role) (domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.User{}, domain.AccessDeniedError{Actor: actor.ID, Action: "set_role", Reason: "admin-only action"}
	}
	switch role {
	case domain.RoleUser, domain.RoleReviewer, domain.RoleAdmin:
	default:
		return domain.User{}, domain.ValidationError{Field: "role", Reason: "unknown role"}
	}
	u, err := getUser(ctx, s.store, userID)
	if err != nil {
		return domain.User{}, err
	}
	u.Role = role
	if err := putUser(ctx, s.store, u); err != nil {
		return domain.User{}, err
	}
	s.log.Info().Str("op", "set_role").Str("user", userID).Str("role", string(role)).Msg("role changed")
	return u, nil
}

// DeactivateUser marks a user inactive. Admin only.
func (s *Service) DeactivateUser(ctx context.Context, actor domain.Actor, userID string) error {
	if actor.Role != domain.RoleAdmin {
		return domain.AccessDeniedError{Actor: actor.ID, Action: "deactivate_user", Reason: "admin-only action"}
	}
	u, err := getUser(ctx, s.store, userID)
	if err != nil {
		return err
	}
	u.IsActive = false
	return putUser(ctx, s.store, u)
}
