package approvals

import (
	"time"

	"github.com/google/uuid"
)

// TargetKind says what an approval record decides on.
type TargetKind string

const (
	TargetRequest  TargetKind = "REQUEST"
	TargetDocument TargetKind = "DOCUMENT"
)

// Status is the approval record lifecycle. Deciding is terminal for the
// record; a fresh record is opened if the target needs sign-off again.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusRevoked  Status = "revoked"
)

// ApprovalRecord is the second-tier (chairman) sign-off wrapper around a
// request or document.
type ApprovalRecord struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	TargetKind    TargetKind `json:"target_kind" db:"target_kind"`
	TargetID      uuid.UUID  `json:"target_id" db:"target_id"`
	Status        Status     `json:"status" db:"status"`
	Priority      string     `json:"priority" db:"priority"`
	RequestedByID uuid.UUID  `json:"requested_by_id" db:"requested_by_id"`
	ApproverID    *uuid.UUID `json:"approver_id,omitempty" db:"approver_id"`
	DueDate       *time.Time `json:"due_date,omitempty" db:"due_date"`
	Reason        *string    `json:"reason,omitempty" db:"reason"`
	LedgerTxID    *string    `json:"ledger_tx_id,omitempty" db:"ledger_tx_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty" db:"decided_at"`
}
