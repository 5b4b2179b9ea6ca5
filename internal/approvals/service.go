package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commune-portal/admin-portal-backend/internal/documents"
	"commune-portal/admin-portal-backend/internal/identity"
	"commune-portal/admin-portal-backend/internal/ledger"
	"commune-portal/admin-portal-backend/pkg/workflows"
)

// Gate feeds a chairman decision back into the target's own workflow.
// The request and document services both satisfy it.
type Gate interface {
	ApplyGateDecision(ctx context.Context, targetID uuid.UUID, approved bool, chairman identity.Actor, reason string) error
}

// Service resolves second-tier chairman approvals for requests and
// documents. At most one pending record exists per target.
type Service struct {
	repo          Repository
	requestGate   Gate
	documentGate  Gate
	ledger        ledger.Client
	ledgerTimeout time.Duration
	logger        *zap.Logger
}

func NewService(repo Repository, ledgerClient ledger.Client, ledgerTimeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:          repo,
		ledger:        ledgerClient,
		ledgerTimeout: ledgerTimeout,
		logger:        logger,
	}
}

// SetGates wires the target workflows after construction; the services
// reference each other so the hookup happens once all exist.
func (s *Service) SetGates(requestGate, documentGate Gate) {
	s.requestGate = requestGate
	s.documentGate = documentGate
}

// RequestApproval opens a pending approval for a target. Fails with
// DuplicateApproval while an earlier one is still undecided.
func (s *Service) RequestApproval(ctx context.Context, kind TargetKind, targetID uuid.UUID, requestedBy identity.Actor, priority string, dueDate *time.Time) (*ApprovalRecord, error) {
	record := &ApprovalRecord{
		ID:            uuid.New(),
		TargetKind:    kind,
		TargetID:      targetID,
		Status:        StatusPending,
		Priority:      priority,
		RequestedByID: requestedBy.ID,
		DueDate:       dueDate,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.CreateIfNoneActive(ctx, record); err != nil {
		if errors.Is(err, ErrActiveExists) {
			return nil, &workflows.DuplicateApprovalError{TargetKind: string(kind), TargetID: targetID.String()}
		}
		return nil, &workflows.StorageError{Op: "create approval record", Err: err}
	}

	s.logger.Info("Approval requested",
		zap.String("approval_id", record.ID.String()),
		zap.String("target_kind", string(kind)),
		zap.String("target_id", targetID.String()),
		zap.String("requested_by", requestedBy.ID.String()))

	return record, nil
}

// OpenForDocument opens the chairman gate for a freshly issued document.
func (s *Service) OpenForDocument(ctx context.Context, doc *documents.Document, requestedBy uuid.UUID, priority string, dueDate *time.Time) error {
	record := &ApprovalRecord{
		ID:            uuid.New(),
		TargetKind:    TargetDocument,
		TargetID:      doc.ID,
		Status:        StatusPending,
		Priority:      priority,
		RequestedByID: requestedBy,
		DueDate:       dueDate,
		CreatedAt:     time.Now(),
	}
	if err := s.repo.CreateIfNoneActive(ctx, record); err != nil {
		if errors.Is(err, ErrActiveExists) {
			return &workflows.DuplicateApprovalError{TargetKind: string(TargetDocument), TargetID: doc.ID.String()}
		}
		return &workflows.StorageError{Op: "create approval record", Err: err}
	}
	return nil
}

// Decide resolves a pending approval. The record is claimed first through a
// compare-and-swap, so a concurrent decider observes AlreadyDecided; the
// decision is then applied to the target's own workflow. If the target
// refuses the decision the record is reopened, so record and target never
// disagree.
func (s *Service) Decide(ctx context.Context, actor identity.Actor, approvalID uuid.UUID, approved bool, reason string) (*ApprovalRecord, error) {
	if !actor.HasRole(identity.RoleChairman) {
		return nil, &workflows.ForbiddenError{Action: "decide approval", Required: string(identity.RoleChairman)}
	}
	if !approved && reason == "" {
		return nil, &workflows.ValidationError{Field: "reason", Message: "required when rejecting"}
	}

	record, err := s.repo.GetByID(ctx, approvalID)
	if err != nil {
		return nil, &workflows.StorageError{Op: "get approval record", Err: err}
	}
	if record == nil {
		return nil, &workflows.NotFoundError{Resource: "approval", ID: approvalID.String()}
	}
	if record.Status != StatusPending {
		return nil, &workflows.AlreadyDecidedError{ApprovalID: approvalID.String(), Status: string(record.Status)}
	}

	now := time.Now()
	record.Status = StatusApproved
	if !approved {
		record.Status = StatusRejected
	}
	record.ApproverID = &actor.ID
	record.DecidedAt = &now
	if reason != "" {
		record.Reason = &reason
	}

	if err := s.repo.Decide(ctx, record); err != nil {
		if errors.Is(err, ErrNotPending) {
			return nil, &workflows.AlreadyDecidedError{ApprovalID: approvalID.String(), Status: string(record.Status)}
		}
		return nil, &workflows.StorageError{Op: "decide approval", Err: err}
	}

	gate := s.requestGate
	if record.TargetKind == TargetDocument {
		gate = s.documentGate
	}
	if err := gate.ApplyGateDecision(ctx, record.TargetID, approved, actor, reason); err != nil {
		if rerr := s.repo.Reopen(ctx, record.ID); rerr != nil {
			s.logger.Error("Approval decided but target update failed and the record could not be reopened",
				zap.String("approval_id", record.ID.String()),
				zap.String("target_id", record.TargetID.String()),
				zap.Error(rerr))
			return nil, err
		}
		record.Status = StatusPending
		record.ApproverID = nil
		record.DecidedAt = nil
		record.Reason = nil
		s.logger.Warn("Target refused the gate decision, approval reopened",
			zap.String("approval_id", record.ID.String()),
			zap.String("target_kind", string(record.TargetKind)),
			zap.String("target_id", record.TargetID.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Approval decided",
		zap.String("approval_id", record.ID.String()),
		zap.String("status", string(record.Status)),
		zap.String("approver", actor.ID.String()))

	s.attestDecision(record, actor)

	return record, nil
}

// ListPending returns the chairman's queue, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]ApprovalRecord, error) {
	records, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, &workflows.StorageError{Op: "list pending approvals", Err: err}
	}
	return records, nil
}

// Get returns a single approval record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ApprovalRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, &workflows.StorageError{Op: "get approval record", Err: err}
	}
	if record == nil {
		return nil, &workflows.NotFoundError{Resource: "approval", ID: id.String()}
	}
	return record, nil
}

func (s *Service) attestDecision(record *ApprovalRecord, actor identity.Actor) {
	lctx, lcancel := context.WithTimeout(context.Background(), s.ledgerTimeout)
	defer lcancel()

	payload, _ := json.Marshal(map[string]interface{}{
		"approval_id": record.ID.String(),
		"target_kind": record.TargetKind,
		"target_id":   record.TargetID.String(),
		"status":      record.Status,
		"approver":    actor.ID.String(),
	})

	receipt, err := s.ledger.Submit(lctx, ledger.KindApproval, record.ID.String(), payload, actor.ID.String())
	if err != nil {
		s.logger.Warn("Approval ledger attestation failed",
			zap.String("approval_id", record.ID.String()),
			zap.Error(err))
		return
	}

	// The submit may have consumed the whole deadline; the tx id write gets
	// its own.
	ctx, cancel := context.WithTimeout(context.Background(), s.ledgerTimeout)
	defer cancel()

	record.LedgerTxID = &receipt.TxID
	if err := s.repo.SetLedgerTx(ctx, record.ID, receipt.TxID); err != nil {
		s.logger.Warn("Failed to record ledger tx id", zap.Error(err))
	}
}
