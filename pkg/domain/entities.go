// Package domain defines the core persistent entities, workflow enums, error
// taxonomy, and the persistence and collaborator contracts used by permitdesk.
package domain

import "time"

// Role identifies the authorization class of an actor.
type Role string

// Supported actor roles.
const (
	// RoleUser is an applicant who owns projects and files permits.
	RoleUser Role = "user"
	// RoleReviewer acts on submitted projects and permits.
	RoleReviewer Role = "reviewer"
	// RoleAdmin bypasses ownership and assignment checks.
	RoleAdmin Role = "admin"
)

// Actor is the authenticated principal attached to every operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// ProjectStatus enumerates the canonical project workflow states.
type ProjectStatus string

// Project workflow states. Approved, rejected and withdrawn are terminal.
const (
	ProjectDraft       ProjectStatus = "draft"
	ProjectSubmitted   ProjectStatus = "submitted"
	ProjectUnderReview ProjectStatus = "under_review"
	ProjectApproved    ProjectStatus = "approved"
	ProjectRejected    ProjectStatus = "rejected"
	ProjectWithdrawn   ProjectStatus = "withdrawn"
)

// PermitStatus enumerates the canonical permit workflow states.
type PermitStatus string

// Permit workflow states. request_more_docs is the single state with a
// return edge back to under_review.
const (
	PermitSubmitted      PermitStatus = "submitted"
	PermitUnderReview    PermitStatus = "under_review"
	PermitMoreDocsNeeded PermitStatus = "request_more_docs"
	PermitApproved       PermitStatus = "approved"
	PermitRejected       PermitStatus = "rejected"
)

// PermitType enumerates the permit categories accepted by the platform.
type PermitType string

// Supported permit types.
const (
	PermitBuilding   PermitType = "building"
	PermitElectric   PermitType = "electric"
	PermitPlumber    PermitType = "plumber"
	PermitDemolition PermitType = "demolition"
)

// PaymentStatus tracks the payment lifecycle of an approved project.
type PaymentStatus string

// Payment states.
const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Priority classifies notification urgency.
type Priority string

// Notification priorities.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// User is a platform identity. User IDs double as the partition keys of the
// projects collection.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is a permit application project owned by exactly one user. Its
// storage partition key is OwnerID.
type Project struct {
	ID                    string        `json:"id"`
	OwnerID               string        `json:"owner_id"`
	Title                 string        `json:"title"`
	Type                  string        `json:"type"`
	Status                ProjectStatus `json:"status"`
	EstimatedCost         float64       `json:"estimated_cost"`
	EstimatedTimelineDays int           `json:"estimated_timeline_days"`
	ActualCost            float64       `json:"actual_cost"`
	PaymentStatus         PaymentStatus `json:"payment_status"`
	Reviewer              *string       `json:"reviewer,omitempty"`
	ReviewComments        []Comment     `json:"review_comments,omitempty"`
	RejectionReasons      []string      `json:"rejection_reasons,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
	SubmittedAt           *time.Time    `json:"submitted_at,omitempty"`
	ApprovedAt            *time.Time    `json:"approved_at,omitempty"`
	RejectedAt            *time.Time    `json:"rejected_at,omitempty"`
}

// Permit is a review request attached to a project. Permits live in a single
// global collection rather than per-owner partitions.
type Permit struct {
	ID                 string       `json:"id"`
	ProjectID          string       `json:"project_id"`
	ProjectOwnerID     string       `json:"project_owner_id"`
	Applicant          string       `json:"applicant"`
	PermitType         PermitType   `json:"permit_type"`
	Status             PermitStatus `json:"status"`
	Reviewer           *string      `json:"reviewer,omitempty"`
	SelectedDocuments  []string     `json:"selected_documents,omitempty"`
	RequestedDocuments []string     `json:"requested_documents,omitempty"`
	RejectionReasons   []string     `json:"rejection_reasons,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	SubmittedAt        *time.Time   `json:"submitted_at,omitempty"`
	ApprovedAt         *time.Time   `json:"approved_at,omitempty"`
	RejectedAt         *time.Time   `json:"rejected_at,omitempty"`
}

// Document is an uploaded file attached to a project or permit.
type Document struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	BlobKey     string     `json:"blob_key"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size_bytes"`
	IsVerified  bool       `json:"is_verified"`
	VerifiedBy  string     `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	UploadedAt  time.Time  `json:"uploaded_at"`
}

// Comment is a review note attached to a project or permit. Internal comments
// are never surfaced to applicants.
type Comment struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	IsInternal bool      `json:"is_internal,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification is a persisted side effect of a workflow transition. Only
// IsRead ever mutates after creation.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	Priority  Priority  `json:"priority"`
	ProjectID string    `json:"project_id,omitempty"`
	PermitID  string    `json:"permit_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TerminalProjectStatuses lists project states with no outgoing edges.
func TerminalProjectStatuses() []ProjectStatus {
	return []ProjectStatus{ProjectApproved, ProjectRejected, ProjectWithdrawn}
}

// IsTerminal reports whether the status admits no further transitions.
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectApproved || s == ProjectRejected || s == ProjectWithdrawn
}

// IsTerminal reports whether the permit status admits no further transitions.
func (s PermitStatus) IsTerminal() bool {
	return s == PermitApproved || s == PermitRejected
}

// InClaimWindow reports whether a reviewer who is not the assigned reviewer
// may still act on a project: the unclaimed/claimable status range.
func (s ProjectStatus) InClaimWindow() bool {
	return s == ProjectSubmitted || s == ProjectUnderReview
}

// InClaimWindow reports the claimable window for permits.
func (s PermitStatus) InClaimWindow() bool {
	return s == PermitSubmitted || s == PermitUnderReview
}

// ValidPermitType reports whether t is one of the accepted permit categories.
func ValidPermitType(t PermitType) bool {
	switch t {
	case PermitBuilding, PermitElectric, PermitPlumber, PermitDemolition:
		return true
	}
	return false
}
