package workflows

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError indicates the referenced entity does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidTransitionError indicates the requested status change is not a
// legal edge from the current status.
type InvalidTransitionError struct {
	Entity    string
	Current   string
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %s to %s", e.Entity, e.Current, e.Attempted)
}

// ForbiddenError indicates the actor lacks the role or ownership required
// for the operation.
type ForbiddenError struct {
	Action   string
	Required string
}

func (e *ForbiddenError) Error() string {
	if e.Required != "" {
		return fmt.Sprintf("forbidden: %s requires %s", e.Action, e.Required)
	}
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// DuplicateApprovalError indicates an active approval already exists for
// the target.
type DuplicateApprovalError struct {
	TargetKind string
	TargetID   string
}

func (e *DuplicateApprovalError) Error() string {
	return fmt.Sprintf("a pending approval already exists for %s %s", e.TargetKind, e.TargetID)
}

// AlreadyDecidedError indicates the approval record is no longer pending.
type AlreadyDecidedError struct {
	ApprovalID string
	Status     string
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("approval %s already decided: %s", e.ApprovalID, e.Status)
}

// ValidationError indicates malformed input, detected before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StorageError wraps a persistence-layer failure. It aborts the whole
// operation; no ledger call is attempted after one.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// LedgerError wraps a failure of the external attestation service. It is
// never surfaced as a failure of the transition that triggered it.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// HTTPStatus maps a workflow error to the status code the API surfaces.
func HTTPStatus(err error) int {
	var (
		notFound     *NotFoundError
		invalid      *InvalidTransitionError
		forbidden    *ForbiddenError
		duplicate    *DuplicateApprovalError
		decided      *AlreadyDecidedError
		validation   *ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &duplicate), errors.As(err, &decided):
		return http.StatusConflict
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
