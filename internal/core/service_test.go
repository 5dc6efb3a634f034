package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	blobmemory "permitdesk/internal/infra/blob/memory"
	"permitdesk/internal/infra/persistence/memory"
	"permitdesk/pkg/domain"
)

// testHarness bundles a service over in-memory backends with a controllable
// clock and sequential IDs.
type testHarness struct {
	svc        *Service
	store      domain.EntityStore
	blobs      *blobmemory.Store
	bus        *recordingBus
	mailer     *recordingMailer
	dispatcher *Dispatcher
	clock      *fakeClock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newHarness(t *testing.T, store domain.EntityStore, opts ...Option) *testHarness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	bus := &recordingBus{}
	mailer := &recordingMailer{}
	d := NewDispatcher(store, bus, zerolog.Nop(),
		WithMailer(mailer, "noreply@permitdesk.local"),
		WithDispatcherClock(clock.now),
		WithDispatcherIDs(newID))
	blobs := blobmemory.New()
	svc := NewService(store, d, zerolog.Nop(),
		append([]Option{WithBlobStore(blobs), WithClock(clock.now), WithIDs(newID)}, opts...)...)
	return &testHarness{svc: svc, store: store, blobs: blobs, bus: bus, mailer: mailer, dispatcher: d, clock: clock}
}

func registerActor(t *testing.T, h *testHarness, name string, role domain.Role) domain.Actor {
	t.Helper()
	u, err := h.svc.RegisterUser(context.Background(), name+"@example.com", name)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	if role != domain.RoleUser {
		u, err = h.svc.SetUserRole(context.Background(), domain.Actor{ID: "root", Role: domain.RoleAdmin}, u.ID, role)
		if err != nil {
			t.Fatalf("elevate %s: %v", name, err)
		}
	}
	return domain.Actor{ID: u.ID, Role: u.Role}
}

// TestGarageScenario walks the full applicant/reviewer flow: draft, document
// upload auto-submits, claim, competing reviewer denied, reject with comment
// and reason, one notification for the owner.
func TestGarageScenario(t *testing.T) {
	h := newHarness(t, memory.NewStore())
	ctx := context.Background()

	applicant := registerActor(t, h, "ursula", domain.RoleUser)
	revX := registerActor(t, h, "xavier", domain.RoleReviewer)
	revY := registerActor(t, h, "yolanda", domain.RoleReviewer)

	p, err := h.svc.CreateProject(ctx, applicant, CreateProjectInput{
		Title:                 "Garage",
		Type:                  "renovation",
		EstimatedCost:         40000,
		EstimatedTimelineDays: 60,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.Status != domain.ProjectDraft {
		t.Fatalf("new project status = %s, want draft", p.Status)
	}

	// Attaching the first document submits the project.
	doc, err := h.svc.AttachProjectDocument(ctx, applicant, applicant.ID, p.ID, "plan.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("attach document: %v", err)
	}
	if doc.BlobKey == "" {
		t.Fatal("document missing blob key")
	}
	p, err = h.svc.GetProject(ctx, applicant, applicant.ID, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if p.Status != domain.ProjectSubmitted {
		t.Fatalf("status after first document = %s, want submitted", p.Status)
	}
	if p.SubmittedAt == nil {
		t.Fatal("SubmittedAt not set on submission")
	}

	// Reviewer X claims the unassigned project.
	p, err = h.svc.TransitionProject(ctx, revX, applicant.ID, p.ID, ActionAssign, TransitionPayload{Reviewer: revX.ID})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if p.Status != domain.ProjectUnderReview || p.Reviewer == nil || *p.Reviewer != revX.ID {
		t.Fatalf("after assign: status=%s reviewer=%v", p.Status, p.Reviewer)
	}

	// Reviewer Y is locked out once X holds the assignment.
	if _, err := h.svc.TransitionProject(ctx, revY, applicant.ID, p.ID, ActionApprove, TransitionPayload{}); !domain.IsAccessDenied(err) {
		t.Fatalf("unassigned reviewer approve: expected AccessDeniedError, got %v", err)
	}

	p, err = h.svc.TransitionProject(ctx, revX, applicant.ID, p.ID, ActionReject, TransitionPayload{
		Comment: "Missing structural plan",
		Reasons: []string{"incomplete_docs"},
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if p.Status != domain.ProjectRejected || p.RejectedAt == nil {
		t.Fatalf("after reject: status=%s rejectedAt=%v", p.Status, p.RejectedAt)
	}

	h.dispatcher.Flush()
	notifications, err := h.svc.ListNotifications(ctx, applicant, applicant.ID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var rejected int
	for _, n := range notifications {
		if n.Type == "project_rejected" {
			rejected++
			if n.ProjectID != p.ID {
				t.Fatalf("notification project ref = %s, want %s", n.ProjectID, p.ID)
			}
		}
	}
	if rejected != 1 {
		t.Fatalf("rejection notifications = %d, want exactly 1", rejected)
	}
	// Rejection also goes out by mail.
	mails := h.mailer.mails()
	found := false
	for _, m := range mails {
		if m.Subject == "Project rejected" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no rejection mail among %v", mails)
	}
}

func TestAssignRaceSecondClaimLoses(t *testing.T) {
	h := newHarness(t, memory.NewStore())
	ctx := context.Background()

	applicant := registerActor(t, h, "ursula", domain.RoleUser)
	revX := registerActor(t, h, "xavier", domain.RoleReviewer)
	revY := registerActor(t, h, "yolanda", domain.RoleReviewer)

	p, err := h.svc.CreateProject(ctx, applicant, CreateProjectInput{Title: "Deck", Type: "renovation", EstimatedCost: 8000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.svc.AttachProjectDocument(ctx, applicant, applicant.ID, p.ID, "plan.pdf", "application/pdf", strings.NewReader("doc")); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if _, err := h.svc.TransitionProject(ctx, revX, applicant.ID, p.ID, ActionAssign, TransitionPayload{Reviewer: revX.ID}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := h.svc.TransitionProject(ctx, revY, applicant.ID, p.ID, ActionAssign, TransitionPayload{Reviewer: revY.ID}); !domain.IsAccessDenied(err) {
		t.Fatalf("second claim: expected AccessDeniedError, got %v", err)
	}

	got, err := h.svc.GetProject(ctx, revX, applicant.ID, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Reviewer == nil || *got.Reviewer != revX.ID {
		t.Fatalf("reviewer = %v, want first claimant", got.Reviewer)
	}
}

func TestInternalCommentsHiddenFromApplicant(t *testing.T) {
	h := newHarness(t, memory.NewStore())
	ctx := context.Background()

	applicant := registerActor(t, h, "ursula", domain.RoleUser)
	revX := registerActor(t, h, "xavier", domain.RoleReviewer)

	p, err := h.svc.CreateProject(ctx, applicant, CreateProjectInput{Title: "Fence", Type: "renovation", EstimatedCost: 3000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.svc.AttachProjectDocument(ctx, applicant, applicant.ID, p.ID, "plan.pdf", "application/pdf", strings.NewReader("doc")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := h.svc.TransitionProject(ctx, revX, applicant.ID, p.ID, ActionAssign, TransitionPayload{Reviewer: revX.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := h.svc.CommentOnProject(ctx, revX, applicant.ID, p.ID, "sloppy drawings, check history", true); err != nil {
		t.Fatalf("internal comment: %v", err)
	}
	if _, err := h.svc.CommentOnProject(ctx, revX, applicant.ID, p.ID, "please add a site plan", false); err != nil {
		t.Fatalf("public comment: %v", err)
	}

	asApplicant, err := h.svc.GetProject(ctx, applicant, applicant.ID, p.ID)
	if err != nil {
		t.Fatalf("get as applicant: %v", err)
	}
	if len(asApplicant.ReviewComments) != 1 || asApplicant.ReviewComments[0].IsInternal {
		t.Fatalf("applicant sees %v", asApplicant.ReviewComments)
	}

	asReviewer, err := h.svc.GetProject(ctx, revX, applicant.ID, p.ID)
	if err != nil {
		t.Fatalf("get as reviewer: %v", err)
	}
	if len(asReviewer.ReviewComments) != 2 {
		t.Fatalf("reviewer sees %d comments, want 2", len(asReviewer.ReviewComments))
	}

	// Applicants cannot author internal comments.
	if _, err := h.svc.CommentOnProject(ctx, applicant, applicant.ID, p.ID, "sneaky", true); !domain.IsAccessDenied(err) {
		t.Fatalf("expected AccessDeniedError, got %v", err)
	}
}

func TestUpdateFrozenAfterSubmission(t *testing.T) {
	h := newHarness(t, memory.NewStore())
	ctx := context.Background()

	applicant := registerActor(t, h, "ursula", domain.RoleUser)
	p, err := h.svc.CreateProject(ctx, applicant, CreateProjectInput{Title: "Shed", Type: "renovation", EstimatedCost: 2000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "Bigger shed"
	if _, err := h.svc.UpdateProjectDetails(ctx, applicant, applicant.ID, p.ID, UpdateProjectInput{Title: &title}); err != nil {
		t.Fatalf("draft update: %v", err)
	}

	if _, err := h.svc.TransitionProject(ctx, applicant, applicant.ID, p.ID, ActionSubmit, TransitionPayload{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := h.svc.UpdateProjectDetails(ctx, applicant, applicant.ID, p.ID, UpdateProjectInput{Title: &title}); !domain.IsInvalidTransition(err) {
		t.Fatalf("post-submit update: expected InvalidTransitionError, got %v", err)
	}
}

func TestPermitLifecycleWithDocumentResume(t *testing.T) {
	h := newHarness(t, memory.NewStore())
	ctx := context.Background()

	applicant := registerActor(t, h, "ursula", domain.RoleUser)
	revX := registerActor(t, h, "xavier", domain.RoleReviewer)

	p, err := h.svc.CreateProject(ctx, applicant, CreateProjectInput{Title: "Garage", Type: "renovation", EstimatedCost: 40000})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	permit, err := h.svc.CreatePermit(ctx, applicant, CreatePermitInput{
		ProjectID:      p.ID,
		ProjectOwnerID: applicant.ID,
		PermitType:     domain.PermitBuilding,
	})
	if err != nil {
		t.Fatalf("create permit: %v", err)
	}
	if permit.Status != domain.PermitSubmitted || permit.SubmittedAt == nil {
		t.Fatalf("new permit: status=%s submittedAt=%v", permit.Status, permit.SubmittedAt)
	}

	permit, err = h.svc.TransitionPermit(ctx, revX, permit.ID, ActionAssign, TransitionPayload{Reviewer: revX.ID})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	permit, err = h.svc.TransitionPermit(ctx, revX, permit.ID, ActionRequestMoreDocs, TransitionPayload{RequestedDocuments: []string{"structural plan"}})
	if err != nil {
		t.Fatalf("request docs: %v", err)
	}
	if permit.Status != domain.PermitMoreDocsNeeded {
		t.Fatalf("status = %s, want request_more_docs", permit.Status)
	}

	// Supplying the document moves the permit back under review.
	if _, err := h.svc.AttachPermitDocument(ctx, applicant, permit.ID, "structural.pdf", "application/pdf", strings.NewReader("doc")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	permit, err = h.svc.GetPermit(ctx, revX, permit.ID)
	if err != nil {
		t.Fatalf("get permit: %v", err)
	}
	if permit.Status != domain.PermitUnderReview {
		t.Fatalf("status after docs = %s, want under_review", permit.Status)
	}
	if permit.RequestedDocuments != nil {
		t.Fatalf("requested documents not cleared: %v", permit.RequestedDocuments)
	}

	permit, err = h.svc.TransitionPermit(ctx, revX, permit.ID, ActionApprove, TransitionPayload{})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if permit.Status != domain.PermitApproved || permit.ApprovedAt == nil {
		t.Fatalf("approve left status=%s approvedAt=%v", permit.Status, permit.ApprovedAt)
	}

	// Permit types outside the accepted set are rejected up front.
	if _, err := h.svc.CreatePermit(ctx, applicant, CreatePermitInput{ProjectID: p.ID, ProjectOwnerID: applicant.ID, PermitType: "hvac"}); !domain.IsValidation(err) {
		t.Fatalf("invalid permit type: expected ValidationError, got %v", err)
	}
}

func TestPermitInternalCommentsHidden(t *testing.T) {
	h := newHarness(t, memory.NewStore())
	ctx := context.Background()

	applicant := registerActor(t, h, "ursula", domain.RoleUser)
	revX := registerActor(t, h, "xavier", domain.RoleReviewer)

	p, err := h.svc.CreateProject(ctx, applicant, CreateProjectInput{Title: "Garage", Type: "renovation", EstimatedCost: 40000})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	permit, err := h.svc.CreatePermit(ctx, applicant, CreatePermitInput{ProjectID: p.ID, ProjectOwnerID: applicant.ID, PermitType: domain.PermitElectric})
	if err != nil {
		t.Fatalf("create permit: %v", err)
	}
	if _, err := h.svc.AddPermitComment(ctx, revX, permit.ID, "wiring diagram looks off", true); err != nil {
		t.Fatalf("internal comment: %v", err)
	}
	if _, err := h.svc.AddPermitComment(ctx, revX, permit.ID, "please confirm breaker rating", false); err != nil {
		t.Fatalf("public comment: %v", err)
	}

	visible, err := h.svc.ListPermitComments(ctx, applicant, permit.ID)
	if err != nil {
		t.Fatalf("list as applicant: %v", err)
	}
	if len(visible) != 1 || visible[0].IsInternal {
		t.Fatalf("applicant sees %v", visible)
	}
	all, err := h.svc.ListPermitComments(ctx, revX, permit.ID)
	if err != nil {
		t.Fatalf("list as reviewer: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("reviewer sees %d comments, want 2", len(all))
	}
}

func TestAnalyzerFallbackFillsMissingEstimates(t *testing.T) {
	h := newHarness(t, memory.NewStore())
	ctx := context.Background()

	applicant := registerActor(t, h, "ursula", domain.RoleUser)
	p, err := h.svc.CreateProject(ctx, applicant, CreateProjectInput{Title: "Teardown", Type: "demolition"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.svc.AttachProjectDocument(ctx, applicant, applicant.ID, p.ID, "scope.pdf", "application/pdf", strings.NewReader("doc")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	got, err := h.svc.GetProject(ctx, applicant, applicant.ID, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EstimatedCost != 20000 || got.EstimatedTimelineDays != 14 {
		t.Fatalf("estimates = %v/%v, want demolition defaults", got.EstimatedCost, got.EstimatedTimelineDays)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	h := newHarness(t, memory.NewStore())
	ctx := context.Background()

	applicant := registerActor(t, h, "ursula", domain.RoleUser)
	n, err := h.dispatcher.Notify(ctx, domain.Event{UserID: applicant.ID, Type: "x", Title: "t"}, nil)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	h.dispatcher.Flush()

	got, err := h.svc.MarkNotificationRead(ctx, applicant, n.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !got.IsRead {
		t.Fatal("notification still unread")
	}
	// Reading someone else's partition misses.
	other := domain.Actor{ID: "someone-else", Role: domain.RoleUser}
	if _, err := h.svc.MarkNotificationRead(ctx, other, n.ID); !domain.IsNotFound(err) {
		t.Fatalf("cross-user mark read: expected NotFoundError, got %v", err)
	}
}
