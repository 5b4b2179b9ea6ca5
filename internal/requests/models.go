package requests

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"commune-portal/admin-portal-backend/internal/identity"
	"commune-portal/admin-portal-backend/pkg/workflows"
)

// Status is the canonical request lifecycle enumeration. These values are
// the only legal spellings; nothing downstream compares free-form strings.
type Status = workflows.State

const (
	StatusDraft          Status = "DRAFT"
	StatusSubmitted      Status = "SUBMITTED"
	StatusInReview       Status = "IN_REVIEW"
	StatusAdditionalInfo Status = "ADDITIONAL_INFO_REQUIRED"
	StatusApproved       Status = "APPROVED"
	StatusProcessing     Status = "PROCESSING"
	StatusCompleted      Status = "COMPLETED"
	StatusRejected       Status = "REJECTED"
	StatusCancelled      Status = "CANCELLED"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Request is a citizen's application for an administrative document.
type Request struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	ReferenceNumber       string          `json:"reference_number" db:"reference_number"`
	DocumentTypeCode      string          `json:"document_type_code" db:"document_type_code"`
	Title                 string          `json:"title" db:"title"`
	Description           string          `json:"description" db:"description"`
	Priority              Priority        `json:"priority" db:"priority"`
	Status                Status          `json:"status" db:"status"`
	Data                  json.RawMessage `json:"data" db:"data"`
	RequestorID           uuid.UUID       `json:"requestor_id" db:"requestor_id"`
	AssignedOfficerID     *uuid.UUID      `json:"assigned_officer_id,omitempty" db:"assigned_officer_id"`
	ApproverID            *uuid.UUID      `json:"approver_id,omitempty" db:"approver_id"`
	ResultingDocumentID   *uuid.UUID      `json:"resulting_document_id,omitempty" db:"resulting_document_id"`
	RejectionReason       *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	AdditionalInfoRequest *string         `json:"additional_info_request,omitempty" db:"additional_info_request"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	SubmittedAt           *time.Time      `json:"submitted_at,omitempty" db:"submitted_at"`
	ApprovedAt            *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	DueDate               *time.Time      `json:"due_date,omitempty" db:"due_date"`
}

// AuditEntry is one immutable record of a single status transition.
type AuditEntry struct {
	ID         uuid.UUID `json:"id" db:"id"`
	RequestID  uuid.UUID `json:"request_id" db:"request_id"`
	OldStatus  Status    `json:"old_status" db:"old_status"`
	NewStatus  Status    `json:"new_status" db:"new_status"`
	ActorID    uuid.UUID `json:"actor_id" db:"actor_id"`
	Comment    string    `json:"comment" db:"comment"`
	LedgerTxID *string   `json:"ledger_tx_id,omitempty" db:"ledger_tx_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

var (
	roleCitizen  = string(identity.RoleCitizen)
	roleOfficer  = string(identity.RoleOfficer)
	roleChairman = string(identity.RoleChairman)
)

// Machine is the request lifecycle. Ownership rules finer than role class
// (requestor-only, assigned-officer-only) are enforced by the service.
var Machine = workflows.NewStateMachine("request").
	Allow(StatusDraft, StatusSubmitted, roleCitizen).
	Allow(StatusDraft, StatusCancelled, roleCitizen).
	Allow(StatusSubmitted, StatusInReview, roleOfficer, roleChairman).
	Allow(StatusSubmitted, StatusRejected, roleOfficer, roleChairman).
	Allow(StatusSubmitted, StatusCancelled, roleCitizen).
	Allow(StatusInReview, StatusAdditionalInfo, roleOfficer, roleChairman).
	Allow(StatusInReview, StatusApproved, roleOfficer, roleChairman).
	Allow(StatusInReview, StatusRejected, roleOfficer, roleChairman).
	Allow(StatusInReview, StatusCancelled, roleCitizen).
	Allow(StatusAdditionalInfo, StatusInReview, roleCitizen, roleOfficer).
	Allow(StatusApproved, StatusProcessing, roleOfficer).
	Allow(StatusProcessing, StatusCompleted, roleOfficer).
	Allow(StatusProcessing, StatusCancelled, roleCitizen, roleOfficer, roleChairman).
	MarkTerminal(StatusCompleted, StatusRejected, StatusCancelled)

// Filter narrows request listings.
type Filter struct {
	RequestorID       *uuid.UUID
	AssignedOfficerID *uuid.UUID
	Status            *Status
}
