package core

import (
	"permitdesk/pkg/domain"
)

// Action enumerates every guarded operation on projects and permits.
type Action string

// Guarded actions. Workflow transitions and plain reads share the same
// authorization path.
const (
	ActionRead            Action = "read"
	ActionUpdate          Action = "update"
	ActionSubmit          Action = "submit"
	ActionWithdraw        Action = "withdraw"
	ActionAssign          Action = "assign"
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequestMoreDocs Action = "request_more_docs"
	ActionComment         Action = "comment"
	ActionAttachDocument  Action = "attach_document"
	ActionVerifyDocument  Action = "verify_document"
	ActionPay             Action = "pay"
)

// Target is the authorization-relevant projection of a project or permit.
type Target struct {
	OwnerID  string
	Reviewer *string
	// ClaimWindow reports whether the entity sits in the claimable status
	// range (submitted or under_review).
	ClaimWindow bool
}

// ProjectTarget projects a project for authorization.
func ProjectTarget(p domain.Project) Target {
	return Target{OwnerID: p.OwnerID, Reviewer: p.Reviewer, ClaimWindow: p.Status.InClaimWindow()}
}

// PermitTarget projects a permit for authorization.
func PermitTarget(p domain.Permit) Target {
	return Target{OwnerID: p.Applicant, Reviewer: p.Reviewer, ClaimWindow: p.Status.InClaimWindow()}
}

// Decision is the guard verdict. A zero Decision denies.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into the error surfaced to callers; nil when allowed.
func (d Decision) Err(actor domain.Actor, action Action) error {
	if d.Allowed {
		return nil
	}
	return domain.AccessDeniedError{Actor: actor.ID, Action: string(action), Reason: d.Reason}
}

// Authorize is the single source of truth for "may actor X perform action Y
// on entity Z". Every mutating and read path consults it; nothing
// re-implements ownership or claim-window comparison inline.
//
// The reviewer rule: a reviewer may act on an entity iff they are its
// assigned reviewer, or the entity is still unassigned inside the claimable
// window (submitted/under_review). Once a reviewer is assigned, other
// reviewers are locked out even though the status remains in the window.
func Authorize(actor domain.Actor, action Action, t Target) Decision {
	if actor.Role == domain.RoleAdmin {
		return allow()
	}
	switch action {
	case ActionRead:
		if actor.ID == t.OwnerID {
			return allow()
		}
		if actor.Role == domain.RoleReviewer {
			return reviewerDecision(actor, t)
		}
		return deny("not the owner")
	case ActionUpdate, ActionSubmit, ActionWithdraw, ActionPay:
		if actor.Role == domain.RoleUser && actor.ID == t.OwnerID {
			return allow()
		}
		return deny("applicant-only action")
	case ActionAttachDocument:
		// Owners attach uploads; reviewers never write applicant documents.
		if actor.Role == domain.RoleUser && actor.ID == t.OwnerID {
			return allow()
		}
		return deny("applicant-only action")
	case ActionAssign, ActionApprove, ActionReject, ActionRequestMoreDocs, ActionVerifyDocument:
		if actor.Role != domain.RoleReviewer {
			return deny("reviewer-only action")
		}
		return reviewerDecision(actor, t)
	case ActionComment:
		if actor.ID == t.OwnerID {
			return allow()
		}
		if actor.Role == domain.RoleReviewer {
			return reviewerDecision(actor, t)
		}
		return deny("not a participant")
	default:
		return deny("unknown action")
	}
}

func reviewerDecision(actor domain.Actor, t Target) Decision {
	if t.Reviewer != nil {
		if *t.Reviewer == actor.ID {
			return allow()
		}
		return deny("assigned to another reviewer")
	}
	if t.ClaimWindow {
		return allow()
	}
	return deny("outside the claimable window")
}
