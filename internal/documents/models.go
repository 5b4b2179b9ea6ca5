package documents

import (
	"time"

	"github.com/google/uuid"

	"commune-portal/admin-portal-backend/internal/identity"
	"commune-portal/admin-portal-backend/pkg/workflows"
)

// Status is the issued-document lifecycle enumeration.
type Status = workflows.State

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
	StatusRevoked         Status = "REVOKED"
)

// LedgerStatus tracks the document's attestation state on the external ledger.
type LedgerStatus string

const (
	LedgerNotStored LedgerStatus = "NOT_STORED"
	LedgerStored    LedgerStatus = "STORED"
	LedgerUpdated   LedgerStatus = "UPDATED"
	LedgerVerified  LedgerStatus = "VERIFIED"
	LedgerError     LedgerStatus = "ERROR"
)

// Document is the issued artifact resulting from a completed request.
type Document struct {
	ID                   uuid.UUID    `json:"id" db:"id"`
	DocumentTypeCode     string       `json:"document_type_code" db:"document_type_code"`
	Title                string       `json:"title" db:"title"`
	Content              string       `json:"content" db:"content"`
	Status               Status       `json:"status" db:"status"`
	CitizenID            uuid.UUID    `json:"citizen_id" db:"citizen_id"`
	IssuedByID           uuid.UUID    `json:"issued_by_id" db:"issued_by_id"`
	SourceRequestID      *uuid.UUID   `json:"source_request_id,omitempty" db:"source_request_id"`
	ChairmanApprovedByID *uuid.UUID   `json:"chairman_approved_by_id,omitempty" db:"chairman_approved_by_id"`
	RevokedByID          *uuid.UUID   `json:"revoked_by_id,omitempty" db:"revoked_by_id"`
	RevocationReason     *string      `json:"revocation_reason,omitempty" db:"revocation_reason"`
	ValidFrom            *time.Time   `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil           *time.Time   `json:"valid_until,omitempty" db:"valid_until"`
	IssuedDate           *time.Time   `json:"issued_date,omitempty" db:"issued_date"`
	LedgerStatus         LedgerStatus `json:"ledger_status" db:"ledger_status"`
	LedgerTxID           *string      `json:"ledger_tx_id,omitempty" db:"ledger_tx_id"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
}

var (
	roleOfficer  = string(identity.RoleOfficer)
	roleChairman = string(identity.RoleChairman)
	roleSystem   = "system"
)

// Machine is the document lifecycle. EXPIRED is reached only by the
// time-based sweep, REVOKED only from APPROVED.
var Machine = workflows.NewStateMachine("document").
	Allow(StatusDraft, StatusPendingApproval, roleOfficer, roleChairman).
	Allow(StatusDraft, StatusApproved, roleChairman).
	Allow(StatusPendingApproval, StatusApproved, roleChairman).
	Allow(StatusPendingApproval, StatusRejected, roleChairman).
	Allow(StatusApproved, StatusRevoked, roleChairman).
	Allow(StatusApproved, StatusExpired, roleSystem).
	MarkTerminal(StatusRejected, StatusExpired, StatusRevoked)

// Filter narrows document listings.
type Filter struct {
	CitizenID        *uuid.UUID
	DocumentTypeCode *string
	Status           *Status
}
