package core

import (
	"strings"
	"time"

	"permitdesk/pkg/domain"
)

// TransitionPayload carries the action-specific inputs of a workflow
// transition.
type TransitionPayload struct {
	Reviewer           string   // assign
	Comment            string   // approve (optional), reject (required), comment
	Internal           bool     // comment visibility
	Reasons            []string // reject: structured rejection reasons
	RequestedDocuments []string // request_more_docs
}

// minRejectCommentLen is the shortest acceptable rejection comment.
const minRejectCommentLen = 10

// projectEdges is the project state graph: legal actions per current status.
// Terminal states have no entry and therefore no outgoing edges.
var projectEdges = map[domain.ProjectStatus]map[Action]domain.ProjectStatus{
	domain.ProjectDraft: {
		ActionSubmit: domain.ProjectSubmitted,
	},
	domain.ProjectSubmitted: {
		ActionAssign:   domain.ProjectUnderReview,
		ActionApprove:  domain.ProjectApproved,
		ActionReject:   domain.ProjectRejected,
		ActionWithdraw: domain.ProjectWithdrawn,
	},
	domain.ProjectUnderReview: {
		ActionAssign:   domain.ProjectUnderReview, // admin reassignment
		ActionApprove:  domain.ProjectApproved,
		ActionReject:   domain.ProjectRejected,
		ActionWithdraw: domain.ProjectWithdrawn,
	},
}

// permitEdges is the permit state graph. request_more_docs is the single
// state with a return edge: supplying documents moves the permit back to
// under_review via ActionResumeReview.
var permitEdges = map[domain.PermitStatus]map[Action]domain.PermitStatus{
	domain.PermitSubmitted: {
		ActionAssign:  domain.PermitUnderReview,
		ActionApprove: domain.PermitApproved,
		ActionReject:  domain.PermitRejected,
	},
	domain.PermitUnderReview: {
		ActionAssign:          domain.PermitUnderReview,
		ActionApprove:         domain.PermitApproved,
		ActionReject:          domain.PermitRejected,
		ActionRequestMoreDocs: domain.PermitMoreDocsNeeded,
	},
	domain.PermitMoreDocsNeeded: {
		ActionResumeReview: domain.PermitUnderReview,
	},
}

// ActionResumeReview is the internal action taken when an applicant supplies
// the requested documents; it is never invoked directly by a caller.
const ActionResumeReview Action = "resume_review"

// TransitionProject applies one workflow action to a project. It is pure:
// the caller persists the returned copy. Edge legality is checked before
// authorization so that acting on a terminal entity reports
// InvalidTransitionError regardless of the actor.
func TransitionProject(p domain.Project, actor domain.Actor, action Action, payload TransitionPayload, now time.Time) (domain.Project, error) {
	next, ok := projectEdges[p.Status][action]
	if !ok {
		return p, domain.InvalidTransitionError{Entity: "project", From: string(p.Status), Action: string(action)}
	}
	if err := Authorize(actor, action, ProjectTarget(p)).Err(actor, action); err != nil {
		return p, err
	}
	if err := validateTransitionPayload(action, payload); err != nil {
		return p, err
	}

	switch action {
	case ActionSubmit:
		// SubmittedAt is set exactly once, on first entry to submitted.
		if p.SubmittedAt == nil {
			at := now
			p.SubmittedAt = &at
		}
	case ActionAssign:
		if p.Reviewer != nil && *p.Reviewer != payload.Reviewer && actor.Role != domain.RoleAdmin {
			return p, domain.AccessDeniedError{Actor: actor.ID, Action: string(action), Reason: "already claimed by another reviewer"}
		}
		reviewer := payload.Reviewer
		p.Reviewer = &reviewer
	case ActionApprove:
		at := now
		p.ApprovedAt = &at
		if payload.Comment != "" {
			p.ReviewComments = append(p.ReviewComments, reviewComment(actor, payload, now))
		}
	case ActionReject:
		at := now
		p.RejectedAt = &at
		p.RejectionReasons = append(p.RejectionReasons, payload.Reasons...)
		p.ReviewComments = append(p.ReviewComments, reviewComment(actor, payload, now))
	case ActionWithdraw:
		// No extra fields; the status change is the whole effect.
	}

	p.Status = next
	p.UpdatedAt = now
	return p, nil
}

// TransitionPermit applies one workflow action to a permit; same contract as
// TransitionProject.
func TransitionPermit(p domain.Permit, actor domain.Actor, action Action, payload TransitionPayload, now time.Time) (domain.Permit, error) {
	next, ok := permitEdges[p.Status][action]
	if !ok {
		return p, domain.InvalidTransitionError{Entity: "permit", From: string(p.Status), Action: string(action)}
	}
	if action != ActionResumeReview {
		if err := Authorize(actor, action, PermitTarget(p)).Err(actor, action); err != nil {
			return p, err
		}
	}
	if err := validateTransitionPayload(action, payload); err != nil {
		return p, err
	}

	switch action {
	case ActionAssign:
		if p.Reviewer != nil && *p.Reviewer != payload.Reviewer && actor.Role != domain.RoleAdmin {
			return p, domain.AccessDeniedError{Actor: actor.ID, Action: string(action), Reason: "already claimed by another reviewer"}
		}
		reviewer := payload.Reviewer
		p.Reviewer = &reviewer
	case ActionApprove:
		at := now
		p.ApprovedAt = &at
	case ActionReject:
		at := now
		p.RejectedAt = &at
		p.RejectionReasons = append(p.RejectionReasons, payload.Reasons...)
	case ActionRequestMoreDocs:
		p.RequestedDocuments = append(p.RequestedDocuments, payload.RequestedDocuments...)
	case ActionResumeReview:
		// Requested documents were supplied; clear the outstanding request.
		p.RequestedDocuments = nil
	}

	p.Status = next
	p.UpdatedAt = now
	return p, nil
}

func validateTransitionPayload(action Action, payload TransitionPayload) error {
	switch action {
	case ActionAssign:
		if payload.Reviewer == "" {
			return domain.ValidationError{Field: "reviewer", Reason: "must not be empty"}
		}
	case ActionReject:
		if len(strings.TrimSpace(payload.Comment)) < minRejectCommentLen {
			return domain.ValidationError{Field: "comment", Reason: "rejection comment must be at least 10 characters"}
		}
		if len(payload.Reasons) == 0 {
			return domain.ValidationError{Field: "reasons", Reason: "at least one structured reason required"}
		}
	case ActionRequestMoreDocs:
		if len(payload.RequestedDocuments) == 0 {
			return domain.ValidationError{Field: "requested_documents", Reason: "at least one document required"}
		}
	}
	return nil
}

func reviewComment(actor domain.Actor, payload TransitionPayload, now time.Time) domain.Comment {
	return domain.Comment{
		Author:    actor.ID,
		Role:      actor.Role,
		Text:      payload.Comment,
		CreatedAt: now,
	}
}
