package domain

import (
	"errors"
	"fmt"
)

// NotFoundError reports an absent entity or sub-entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// AccessDeniedError reports an authorization guard rejection.
type AccessDeniedError struct {
	Actor  string
	Action string
	Reason string
}

func (e AccessDeniedError) Error() string {
	return fmt.Sprintf("actor %s denied %s: %s", e.Actor, e.Action, e.Reason)
}

// InvalidTransitionError reports a workflow edge that does not exist in the
// state graph. The target entity is left unchanged.
type InvalidTransitionError struct {
	Entity string
	From   string
	Action string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: action %q is not legal from state %q", e.Entity, e.Action, e.From)
}

// ValidationError reports a malformed input payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DependencyError reports a collaborator (blob store, payment gateway,
// analyzer, mailer, event bus) failure.
type DependencyError struct {
	Capability string
	Err        error
}

func (e DependencyError) Error() string {
	return fmt.Sprintf("%s dependency failed: %v", e.Capability, e.Err)
}

// Unwrap exposes the underlying collaborator error.
func (e DependencyError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsAccessDenied reports whether err is, or wraps, an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var ad AccessDeniedError
	return errors.As(err, &ad)
}

// IsInvalidTransition reports whether err is, or wraps, an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var it InvalidTransitionError
	return errors.As(err, &it)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
