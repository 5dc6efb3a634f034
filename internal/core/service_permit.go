package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"permitdesk/pkg/domain"
)

// CreatePermitInput is the applicant-supplied slice of a new permit.
type CreatePermitInput struct {
	ProjectID         string
	ProjectOwnerID    string
	PermitType        domain.PermitType
	SelectedDocuments []string
}

// CreatePermit files a permit for one of the actor's projects. Permits are
// born submitted; there is no draft state.
func (s *Service) CreatePermit(ctx context.Context, actor domain.Actor, in CreatePermitInput) (domain.Permit, error) {
	start := s.now()
	var err error
	defer func() { s.observe("create_permit", start, err) }()

	if !domain.ValidPermitType(in.PermitType) {
		err = domain.ValidationError{Field: "permit_type", Reason: fmt.Sprintf("unknown type %q", in.PermitType)}
		return domain.Permit{}, err
	}
	var p domain.Project
	p, err = getProject(ctx, s.store, in.ProjectOwnerID, in.ProjectID)
	if err != nil {
		return domain.Permit{}, err
	}
	if actor.Role != domain.RoleAdmin && actor.ID != p.OwnerID {
		err = domain.AccessDeniedError{Actor: actor.ID, Action: "create_permit", Reason: "not the project owner"}
		return domain.Permit{}, err
	}

	now := s.now()
	submitted := now
	permit := domain.Permit{
		ID:                s.newID(),
		ProjectID:         p.ID,
		ProjectOwnerID:    p.OwnerID,
		Applicant:         p.OwnerID,
		PermitType:        in.PermitType,
		Status:            domain.PermitSubmitted,
		SelectedDocuments: in.SelectedDocuments,
		CreatedAt:         now,
		UpdatedAt:         now,
		SubmittedAt:       &submitted,
	}
	if err = putPermit(ctx, s.store, permit); err != nil {
		return domain.Permit{}, err
	}
	s.log.Info().Str("op", "create_permit").Str("permit", permit.ID).
		Str("project", p.ID).Str("type", string(in.PermitType)).Msg("permit filed")
	return permit, nil
}

// GetPermit returns one permit.
func (s *Service) GetPermit(ctx context.Context, actor domain.Actor, permitID string) (domain.Permit, error) {
	p, err := getPermit(ctx, s.store, permitID)
	if err != nil {
		return domain.Permit{}, err
	}
	if err := Authorize(actor, ActionRead, PermitTarget(p)).Err(actor, ActionRead); err != nil {
		return domain.Permit{}, err
	}
	return p, nil
}

// ListPermitsByStatus returns permits in one status. The permits collection
// is global, so a single pushed-down query suffices.
func (s *Service) ListPermitsByStatus(ctx context.Context, actor domain.Actor, status domain.PermitStatus) ([]domain.Permit, error) {
	if actor.Role == domain.RoleUser {
		return nil, domain.AccessDeniedError{Actor: actor.ID, Action: "list_permits", Reason: "reviewer-only action"}
	}
	records, err := s.store.List(ctx, domain.Permits(), domain.Query{Field: "status", Equals: string(status)})
	if err != nil {
		return nil, err
	}
	return decodePermits(records)
}

// ListMyPermits returns the actor's own permits.
func (s *Service) ListMyPermits(ctx context.Context, actor domain.Actor) ([]domain.Permit, error) {
	records, err := s.store.List(ctx, domain.Permits(), domain.Query{Field: "applicant", Equals: actor.ID})
	if err != nil {
		return nil, err
	}
	return decodePermits(records)
}

// TransitionPermit applies one workflow action to a permit and dispatches the
// resulting notification.
func (s *Service) TransitionPermit(ctx context.Context, actor domain.Actor, permitID string, action Action, payload TransitionPayload) (domain.Permit, error) {
	start := s.now()
	var err error
	defer func() { s.observe("transition_permit", start, err) }()

	var p domain.Permit
	p, err = getPermit(ctx, s.store, permitID)
	if err != nil {
		return domain.Permit{}, err
	}
	prevReviewer := ""
	if p.Reviewer != nil {
		prevReviewer = *p.Reviewer
	}

	p, err = TransitionPermit(p, actor, action, payload, s.now())
	if err != nil {
		return domain.Permit{}, err
	}

	if action == ActionAssign {
		err = putPermitIfReviewer(ctx, s.store, p, prevReviewer)
		if errors.Is(err, domain.ErrPreconditionFailed) {
			err = domain.AccessDeniedError{Actor: actor.ID, Action: string(action), Reason: "already claimed by another reviewer"}
		}
	} else {
		err = putPermit(ctx, s.store, p)
	}
	if err != nil {
		return domain.Permit{}, err
	}

	s.log.Info().Str("op", "transition_permit").Str("permit", p.ID).
		Str("action", string(action)).Str("status", string(p.Status)).Msg("permit transitioned")
	s.notifyPermitTransition(ctx, p, action, payload)
	return p, nil
}

// AddPermitComment appends a comment to the permit's comment sub-collection.
func (s *Service) AddPermitComment(ctx context.Context, actor domain.Actor, permitID, text string, internal bool) (domain.Comment, error) {
	p, err := getPermit(ctx, s.store, permitID)
	if err != nil {
		return domain.Comment{}, err
	}
	if err := Authorize(actor, ActionComment, PermitTarget(p)).Err(actor, ActionComment); err != nil {
		return domain.Comment{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Comment{}, domain.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if internal && actor.Role == domain.RoleUser {
		return domain.Comment{}, domain.AccessDeniedError{Actor: actor.ID, Action: "comment", Reason: "internal comments are reviewer-only"}
	}
	c := domain.Comment{
		ID:         s.newID(),
		Author:     actor.ID,
		Role:       actor.Role,
		Text:       text,
		IsInternal: internal,
		CreatedAt:  s.now(),
	}
	if err := putComment(ctx, s.store, domain.PermitComments(permitID), c); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// ListPermitComments returns the permit's comments, hiding internal notes
// from applicants.
func (s *Service) ListPermitComments(ctx context.Context, actor domain.Actor, permitID string) ([]domain.Comment, error) {
	p, err := getPermit(ctx, s.store, permitID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, ActionRead, PermitTarget(p)).Err(actor, ActionRead); err != nil {
		return nil, err
	}
	comments, err := listComments(ctx, s.store, domain.PermitComments(permitID))
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleUser {
		comments = visibleComments(comments)
	}
	return comments, nil
}

// AttachPermitDocument uploads a document onto a permit. When the permit is
// waiting on requested documents, supplying one moves it back to
// under_review and notifies the reviewer.
func (s *Service) AttachPermitDocument(ctx context.Context, actor domain.Actor, permitID, name, contentType string, r io.Reader) (domain.Document, error) {
	start := s.now()
	var err error
	defer func() { s.observe("attach_permit_document", start, err) }()

	var p domain.Permit
	p, err = getPermit(ctx, s.store, permitID)
	if err != nil {
		return domain.Document{}, err
	}
	if err = Authorize(actor, ActionAttachDocument, PermitTarget(p)).Err(actor, ActionAttachDocument); err != nil {
		return domain.Document{}, err
	}
	if p.Status.IsTerminal() {
		err = domain.InvalidTransitionError{Entity: "permit", From: string(p.Status), Action: "attach_document"}
		return domain.Document{}, err
	}
	if s.blobs == nil {
		err = domain.DependencyError{Capability: "blobstore", Err: errors.New("not configured")}
		return domain.Document{}, err
	}

	docID := s.newID()
	key := path.Join("permits", permitID, docID)
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
	if err = putDocument(ctx, s.store, domain.PermitDocuments(permitID), doc); err != nil {
		return domain.Document{}, err
	}

	if p.Status == domain.PermitMoreDocsNeeded {
		p, err = TransitionPermit(p, actor, ActionResumeReview, TransitionPayload{}, s.now())
		if err != nil {
			return domain.Document{}, err
		}
		if err = putPermit(ctx, s.store, p); err != nil {
			return domain.Document{}, err
		}
		if p.Reviewer != nil {
			s.dispatch(ctx, domain.Event{
				UserID:   *p.Reviewer,
				Type:     "permit_docs_supplied",
				Title:    "Requested documents supplied",
				Message:  fmt.Sprintf("Permit %s received the requested documents and is back under review.", p.ID),
				PermitID: p.ID,
				Priority: domain.PriorityNormal,
			}, nil)
		}
	}
	return doc, nil
}

// VerifyPermitDocument marks a permit document verified by a reviewer.
func (s *Service) VerifyPermitDocument(ctx context.Context, actor domain.Actor, permitID, docID string) (domain.Document, error) {
	p, err := getPermit(ctx, s.store, permitID)
	if err != nil {
		return domain.Document{}, err
	}
	if err := Authorize(actor, ActionVerifyDocument, PermitTarget(p)).Err(actor, ActionVerifyDocument); err != nil {
		return domain.Document{}, err
	}
	docs := domain.PermitDocuments(permitID)
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

// notifyPermitTransition raises applicant-facing side effects of a permit
// transition. Approve, reject and document requests also go out by mail.
func (s *Service) notifyPermitTransition(ctx context.Context, p domain.Permit, action Action, payload TransitionPayload) {
	ev := domain.Event{
		UserID:   p.Applicant,
		PermitID: p.ID,
		Priority: domain.PriorityNormal,
	}
	var mail *domain.Mail
	switch action {
	case ActionAssign:
		ev.Type, ev.Title = "permit_under_review", "Permit review started"
		ev.Message = fmt.Sprintf("Your %s permit is now under review.", p.PermitType)
	case ActionApprove:
		ev.Type, ev.Title, ev.Priority = "permit_approved", "Permit approved", domain.PriorityHigh
		ev.Message = fmt.Sprintf("Your %s permit was approved.", p.PermitType)
		mail = &domain.Mail{Subject: ev.Title, Body: ev.Message}
	case ActionReject:
		ev.Type, ev.Title, ev.Priority = "permit_rejected", "Permit rejected", domain.PriorityHigh
		ev.Message = fmt.Sprintf("Your %s permit was rejected: %s", p.PermitType, payload.Comment)
		mail = &domain.Mail{Subject: ev.Title, Body: ev.Message}
	case ActionRequestMoreDocs:
		ev.Type, ev.Title, ev.Priority = "permit_more_docs", "Documents requested", domain.PriorityHigh
		ev.Message = fmt.Sprintf("Your %s permit needs more documents: %s.", p.PermitType, strings.Join(payload.RequestedDocuments, ", "))
		mail = &domain.Mail{Subject: ev.Title, Body: ev.Message}
	default:
		return
	}
	s.dispatch(ctx, ev, mail)
}
