package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"permitdesk/pkg/domain"
)

// documentURLTTL is the lifetime of presigned document URLs handed back to
// callers.
const documentURLTTL = 15 * time.Minute

// CreateProjectInput is the applicant-supplied slice of a new project.
type CreateProjectInput struct {
	Title                 string
	Type                  string
	EstimatedCost         float64
	EstimatedTimelineDays int
}

// CreateProject creates a draft project in the actor's own partition.
func (s *Service) CreateProject(ctx context.Context, actor domain.Actor, in CreateProjectInput) (domain.Project, error) {
	start := s.now()
	var err error
	defer func() { s.observe("create_project", start, err) }()

	if actor.Role != domain.RoleUser && actor.Role != domain.RoleAdmin {
		err = domain.AccessDeniedError{Actor: actor.ID, Action: "create_project", Reason: "applicant-only action"}
		return domain.Project{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		err = domain.ValidationError{Field: "title", Reason: "must not be empty"}
		return domain.Project{}, err
	}
	if strings.TrimSpace(in.Type) == "" {
		err = domain.ValidationError{Field: "type", Reason: "must not be empty"}
		return domain.Project{}, err
	}
	if in.EstimatedCost < 0 {
		err = domain.ValidationError{Field: "estimated_cost", Reason: "must not be negative"}
		return domain.Project{}, err
	}

	now := s.now()
	p := domain.Project{
		ID:                    s.newID(),
		OwnerID:               actor.ID,
		Title:                 strings.TrimSpace(in.Title),
		Type:                  strings.ToLower(strings.TrimSpace(in.Type)),
		Status:                domain.ProjectDraft,
		EstimatedCost:         in.EstimatedCost,
		EstimatedTimelineDays: in.EstimatedTimelineDays,
		PaymentStatus:         domain.PaymentUnpaid,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err = putProject(ctx, s.store, p); err != nil {
		return domain.Project{}, err
	}
	s.log.Info().Str("op", "create_project").Str("project", p.ID).Str("owner", p.OwnerID).Msg("project created")
	return p, nil
}

// GetProject returns one project. Internal review comments are stripped for
// applicants.
func (s *Service) GetProject(ctx context.Context, actor domain.Actor, ownerID, projectID string) (domain.Project, error) {
	p, err := getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := Authorize(actor, ActionRead, ProjectTarget(p)).Err(actor, ActionRead); err != nil {
		return domain.Project{}, err
	}
	if actor.Role == domain.RoleUser {
		p.ReviewComments = visibleComments(p.ReviewComments)
	}
	return p, nil
}

// ListMyProjects is the single-partition cheap path for applicants reading
// their own projects.
func (s *Service) ListMyProjects(ctx context.Context, actor domain.Actor, f Filters) ([]domain.Project, error) {
	projects, err := s.federation.FindByApplicant(ctx, actor.ID, f)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].ReviewComments = visibleComments(projects[i].ReviewComments)
	}
	return projects, nil
}

// UpdateProjectInput carries the mutable draft fields. Nil pointers leave the
// field unchanged.
type UpdateProjectInput struct {
	Title                 *string
	Type                  *string
	EstimatedCost         *float64
	EstimatedTimelineDays *int
}

// UpdateProjectDetails edits a draft project. Once submitted, details are
// frozen; only workflow transitions mutate the project.
func (s *Service) UpdateProjectDetails(ctx context.Context, actor domain.Actor, ownerID, projectID string, in UpdateProjectInput) (domain.Project, error) {
	start := s.now()
	var err error
	defer func() { s.observe("update_project", start, err) }()

	var p domain.Project
	p, err = getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err = Authorize(actor, ActionUpdate, ProjectTarget(p)).Err(actor, ActionUpdate); err != nil {
		return domain.Project{}, err
	}
	if p.Status != domain.ProjectDraft {
		err = domain.InvalidTransitionError{Entity: "project", From: string(p.Status), Action: "update"}
		return domain.Project{}, err
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			err = domain.ValidationError{Field: "title", Reason: "must not be empty"}
			return domain.Project{}, err
		}
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Type != nil {
		p.Type = strings.ToLower(strings.TrimSpace(*in.Type))
	}
	if in.EstimatedCost != nil {
		if *in.EstimatedCost < 0 {
			err = domain.ValidationError{Field: "estimated_cost", Reason: "must not be negative"}
			return domain.Project{}, err
		}
		p.EstimatedCost = *in.EstimatedCost
	}
	if in.EstimatedTimelineDays != nil {
		p.EstimatedTimelineDays = *in.EstimatedTimelineDays
	}
	p.UpdatedAt = s.now()
	if err = putProject(ctx, s.store, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// TransitionProject applies one workflow action to a project and dispatches
// the resulting notification. Assignments persist conditionally on the
// stored reviewer so two racing claims cannot both win.
func (s *Service) TransitionProject(ctx context.Context, actor domain.Actor, ownerID, projectID string, action Action, payload TransitionPayload) (domain.Project, error) {
	start := s.now()
	var err error
	defer func() { s.observe("transition_project", start, err) }()

	var p domain.Project
	p, err = getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	prevReviewer := ""
	if p.Reviewer != nil {
		prevReviewer = *p.Reviewer
	}

	p, err = TransitionProject(p, actor, action, payload, s.now())
	if err != nil {
		return domain.Project{}, err
	}

	if action == ActionAssign {
		err = putProjectIfReviewer(ctx, s.store, p, prevReviewer)
		if errors.Is(err, domain.ErrPreconditionFailed) {
			err = domain.AccessDeniedError{Actor: actor.ID, Action: string(action), Reason: "already claimed by another reviewer"}
		}
	} else {
		err = putProject(ctx, s.store, p)
	}
	if err != nil {
		return domain.Project{}, err
	}

	s.log.Info().Str("op", "transition_project").Str("project", p.ID).
		Str("action", string(action)).Str("status", string(p.Status)).Msg("project transitioned")
	s.notifyProjectTransition(ctx, p, actor, action, payload)
	return p, nil
}

// CommentOnProject appends a review comment to the project record.
func (s *Service) CommentOnProject(ctx context.Context, actor domain.Actor, ownerID, projectID, text string, internal bool) (domain.Project, error) {
	p, err := getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := Authorize(actor, ActionComment, ProjectTarget(p)).Err(actor, ActionComment); err != nil {
		return domain.Project{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Project{}, domain.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if internal && actor.Role == domain.RoleUser {
		return domain.Project{}, domain.AccessDeniedError{Actor: actor.ID, Action: "comment", Reason: "internal comments are reviewer-only"}
	}
	now := s.now()
	p.ReviewComments = append(p.ReviewComments, domain.Comment{
		ID:         s.newID(),
		Author:     actor.ID,
		Role:       actor.Role,
		Text:       text,
		IsInternal: internal,
		CreatedAt:  now,
	})
	p.UpdatedAt = now
	if err := putProject(ctx, s.store, p); err != nil {
		return domain.Project{}, err
	}
	if actor.Role == domain.RoleUser {
		p.ReviewComments = visibleComments(p.ReviewComments)
	}
	return p, nil
}

// AttachProjectDocument uploads a document, records it under the project,
// and, on the first document of a draft, submits the project. Blob failure
// surfaces as a DependencyError; analysis failure never does.
func (s *Service) AttachProjectDocument(ctx context.Context, actor domain.Actor, ownerID, projectID, name, contentType string, r io.Reader) (domain.Document, error) {
	start := s.now()
	var err error
	defer func() { s.observe("attach_project_document", start, err) }()

	var p domain.Project
	p, err = getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return domain.Document{}, err
	}
	if err = Authorize(actor, ActionAttachDocument, ProjectTarget(p)).Err(actor, ActionAttachDocument); err != nil {
		return domain.Document{}, err
	}
	if p.Status.IsTerminal() {
		err = domain.InvalidTransitionError{Entity: "project", From: string(p.Status), Action: "attach_document"}
		return domain.Document{}, err
	}
	if s.blobs == nil {
		err = domain.DependencyError{Capability: "blobstore", Err: errors.New("not configured")}
		return domain.Document{}, err
	}

	docID := s.newID()
	key := path.Join("users", ownerID, "projects", projectID, docID)
	info, blobErr := s.blobs.Put(ctx, key, r, contentType)
	if blobErr != nil {
		err = domain.DependencyError{Capability: "blobstore", Err: blobErr}
		return domain.Document{}, err
	}

	doc := domain.Document{
		ID:          docID,
		Name:        name,
		URL:         info.URL,
		BlobKey:     info.Key,
		ContentType: contentType,
		Size:        info.Size,
		UploadedAt:  s.now(),
	}
	if err = putDocument(ctx, s.store, domain.ProjectDocuments(ownerID, projectID), doc); err != nil {
		return domain.Document{}, err
	}

	// Estimates missing at draft time are filled from document analysis,
	// falling back to the per-type default table.
	if p.EstimatedCost == 0 || p.EstimatedTimelineDays == 0 {
		a := AnalyzeWithFallback(ctx, s.analyzer, s.log, info.URL, p.Type)
		if p.EstimatedCost == 0 {
			p.EstimatedCost = a.EstimatedCost
		}
		if p.EstimatedTimelineDays == 0 {
			p.EstimatedTimelineDays = a.EstimatedTimelineDays
		}
	}

	if p.Status == domain.ProjectDraft {
		p, err = TransitionProject(p, actor, ActionSubmit, TransitionPayload{}, s.now())
		if err != nil {
			return domain.Document{}, err
		}
	} else {
		p.UpdatedAt = s.now()
	}
	if err = putProject(ctx, s.store, p); err != nil {
		return domain.Document{}, err
	}
	s.log.Info().Str("op", "attach_project_document").Str("project", projectID).
		Str("document", docID).Str("status", string(p.Status)).Msg("document attached")
	return doc, nil
}

// ListProjectDocuments returns the documents of a project.
func (s *Service) ListProjectDocuments(ctx context.Context, actor domain.Actor, ownerID, projectID string) ([]domain.Document, error) {
	p, err := getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, ActionRead, ProjectTarget(p)).Err(actor, ActionRead); err != nil {
		return nil, err
	}
	return listDocuments(ctx, s.store, domain.ProjectDocuments(ownerID, projectID))
}

// ProjectDocumentURL returns a fresh time-limited retrieval URL for a stored
// document.
func (s *Service) ProjectDocumentURL(ctx context.Context, actor domain.Actor, ownerID, projectID, docID string) (string, error) {
	p, err := getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return "", err
	}
	if err := Authorize(actor, ActionRead, ProjectTarget(p)).Err(actor, ActionRead); err != nil {
		return "", err
	}
	doc, err := getDocument(ctx, s.store, domain.ProjectDocuments(ownerID, projectID), docID)
	if err != nil {
		return "", err
	}
	if s.blobs == nil {
		return doc.URL, nil
	}
	url, err := s.blobs.URL(ctx, doc.BlobKey, documentURLTTL)
	if err != nil {
		return "", domain.DependencyError{Capability: "blobstore", Err: err}
	}
	return url, nil
}

// VerifyProjectDocument marks a document verified by a reviewer.
func (s *Service) VerifyProjectDocument(ctx context.Context, actor domain.Actor, ownerID, projectID, docID string) (domain.Document, error) {
	p, err := getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return domain.Document{}, err
	}
	if err := Authorize(actor, ActionVerifyDocument, ProjectTarget(p)).Err(actor, ActionVerifyDocument); err != nil {
		return domain.Document{}, err
	}
	docs := domain.ProjectDocuments(ownerID, projectID)
	doc, err := getDocument(ctx, s.store, docs, docID)
	if err != nil {
		return domain.Document{}, err
	}
	now := s.now()
	doc.IsVerified = true
	doc.VerifiedBy = actor.ID
	doc.VerifiedAt = &now
	if err := putDocument(ctx, s.store, docs, doc); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// CreatePaymentIntent opens payment for an approved project. The project
// moves to payment_status=pending until the webhook confirms.
func (s *Service) CreatePaymentIntent(ctx context.Context, actor domain.Actor, ownerID, projectID string) (domain.PaymentIntent, error) {
	start := s.now()
	var err error
	defer func() { s.observe("create_payment_intent", start, err) }()

	var p domain.Project
	p, err = getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if err = Authorize(actor, ActionPay, ProjectTarget(p)).Err(actor, ActionPay); err != nil {
		return domain.PaymentIntent{}, err
	}
	if p.Status != domain.ProjectApproved {
		err = domain.InvalidTransitionError{Entity: "project", From: string(p.Status), Action: "pay"}
		return domain.PaymentIntent{}, err
	}
	if p.PaymentStatus == domain.PaymentPaid {
		err = domain.ValidationError{Field: "payment_status", Reason: "project already paid"}
		return domain.PaymentIntent{}, err
	}
	if s.payments == nil {
		err = domain.DependencyError{Capability: "payments", Err: errors.New("not configured")}
		return domain.PaymentIntent{}, err
	}

	amount := p.ActualCost
	if amount == 0 {
		amount = p.EstimatedCost
	}
	intent, payErr := s.payments.CreateIntent(ctx, int64(amount*100), "usd", map[string]string{
		"owner_id":   ownerID,
		"project_id": projectID,
	})
	if payErr != nil {
		err = domain.DependencyError{Capability: "payments", Err: payErr}
		return domain.PaymentIntent{}, err
	}

	p.PaymentStatus = domain.PaymentPending
	p.UpdatedAt = s.now()
	if err = putProject(ctx, s.store, p); err != nil {
		return domain.PaymentIntent{}, err
	}
	return intent, nil
}

// HandlePaymentWebhook verifies and applies a payment gateway webhook. A
// succeeded intent marks the referenced project paid and notifies the owner.
func (s *Service) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.payments == nil {
		return domain.DependencyError{Capability: "payments", Err: errors.New("not configured")}
	}
	ev, err := s.payments.Verify(payload, signature)
	if err != nil {
		return domain.DependencyError{Capability: "payments", Err: err}
	}
	if ev.Type != "payment_intent.succeeded" {
		s.log.Debug().Str("type", ev.Type).Msg("ignoring payment event")
		return nil
	}
	ownerID, projectID := ev.Metadata["owner_id"], ev.Metadata["project_id"]
	if ownerID == "" || projectID == "" {
		return domain.ValidationError{Field: "metadata", Reason: "missing owner_id or project_id"}
	}
	p, err := getProject(ctx, s.store, ownerID, projectID)
	if err != nil {
		return err
	}
	p.PaymentStatus = domain.PaymentPaid
	p.UpdatedAt = s.now()
	if err := putProject(ctx, s.store, p); err != nil {
		return err
	}
	s.dispatch(ctx, domain.Event{
		UserID:    ownerID,
		Type:      "payment_received",
		Title:     "Payment received",
		Message:   fmt.Sprintf("Payment for project %q was received.", p.Title),
		ProjectID: projectID,
		Priority:  domain.PriorityNormal,
	}, nil)
	return nil
}

// notifyProjectTransition raises the owner- and reviewer-facing side effects
// of a project transition. Approve and reject also go out by mail.
func (s *Service) notifyProjectTransition(ctx context.Context, p domain.Project, actor domain.Actor, action Action, payload TransitionPayload) {
	ev := domain.Event{
		UserID:    p.OwnerID,
		ProjectID: p.ID,
		Priority:  domain.PriorityNormal,
	}
	var mail *domain.Mail
	switch action {
	case ActionSubmit:
		ev.Type, ev.Title = "project_submitted", "Project submitted"
		ev.Message = fmt.Sprintf("Project %q was submitted for review.", p.Title)
	case ActionAssign:
		ev.Type, ev.Title = "project_under_review", "Review started"
		ev.Message = fmt.Sprintf("Project %q is now under review.", p.Title)
	case ActionApprove:
		ev.Type, ev.Title, ev.Priority = "project_approved", "Project approved", domain.PriorityHigh
		ev.Message = fmt.Sprintf("Project %q was approved.", p.Title)
		mail = &domain.Mail{Subject: ev.Title, Body: ev.Message}
	case ActionReject:
		ev.Type, ev.Title, ev.Priority = "project_rejected", "Project rejected", domain.PriorityHigh
		ev.Message = fmt.Sprintf("Project %q was rejected: %s", p.Title, payload.Comment)
		mail = &domain.Mail{Subject: ev.Title, Body: ev.Message}
	case ActionWithdraw:
		// Withdrawals are owner-initiated; nothing to tell the owner.
		return
	default:
		return
	}
	s.dispatch(ctx, ev, mail)
}

// dispatch resolves the recipient address and hands off to the dispatcher.
// Dispatch problems are logged, never propagated.
func (s *Service) dispatch(ctx context.Context, ev domain.Event, mail *domain.Mail) {
	if s.dispatcher == nil {
		return
	}
	if mail != nil {
		if u, err := getUser(ctx, s.store, ev.UserID); err == nil {
			mail.To = u.Email
		} else {
			s.log.Warn().Err(err).Str("user", ev.UserID).Msg("recipient lookup failed, skipping mail")
			mail = nil
		}
	}
	if _, err := s.dispatcher.Notify(ctx, ev, mail); err != nil {
		s.log.Warn().Err(err).Str("user", ev.UserID).Str("type", ev.Type).Msg("notification persist failed")
	}
}

// visibleComments filters out internal review notes.
func visibleComments(comments []domain.Comment) []domain.Comment {
	out := make([]domain.Comment, 0, len(comments))
	for _, c := range comments {
		if !c.IsInternal {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
