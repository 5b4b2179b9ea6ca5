package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commune-portal/admin-portal-backend/internal/catalog"
	"commune-portal/admin-portal-backend/internal/identity"
	"commune-portal/admin-portal-backend/internal/ledger"
	"commune-portal/admin-portal-backend/pkg/metrics"
	"commune-portal/admin-portal-backend/pkg/workflows"
)

// Catalog is the document-type store the workflow consults at submission.
type Catalog interface {
	Get(ctx context.Context, code string) (*catalog.DocumentType, error)
	ValidateData(dt *catalog.DocumentType, data json.RawMessage) error
}

// DocumentIssuer creates the issued document when a request completes.
// Implementations must be idempotent per request.
type DocumentIssuer interface {
	IssueForRequest(ctx context.Context, req *Request, officer identity.Actor) (uuid.UUID, error)
}

// Notifier pushes status-change notifications. Nil disables notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, subject, body string)
}

// Service is the request workflow engine: it validates transitions, enforces
// actor permissions, commits status+audit atomically and attests each
// committed transition to the ledger best-effort.
type Service struct {
	repo          Repository
	catalog       Catalog
	ledger        ledger.Client
	issuer        DocumentIssuer
	notifier      Notifier
	ledgerTimeout time.Duration
	logger        *zap.Logger
}

func NewService(repo Repository, cat Catalog, ledgerClient ledger.Client, issuer DocumentIssuer, notifier Notifier, ledgerTimeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:          repo,
		catalog:       cat,
		ledger:        ledgerClient,
		issuer:        issuer,
		notifier:      notifier,
		ledgerTimeout: ledgerTimeout,
		logger:        logger,
	}
}

// CreateInput describes a new draft request.
type CreateInput struct {
	DocumentTypeCode string          `json:"document_type_code"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Priority         Priority        `json:"priority"`
	Data             json.RawMessage `json:"data"`
}

// Create opens a new request in DRAFT for the acting citizen.
func (s *Service) Create(ctx context.Context, actor identity.Actor, input CreateInput) (*Request, error) {
	if input.Title == "" {
		return nil, &workflows.ValidationError{Field: "title", Message: "must not be empty"}
	}
	if _, err := s.catalog.Get(ctx, input.DocumentTypeCode); err != nil {
		return nil, err
	}
	priority := input.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return nil, &workflows.ValidationError{Field: "priority", Message: "unknown priority"}
	}

	req := &Request{
		ID:               uuid.New(),
		DocumentTypeCode: input.DocumentTypeCode,
		Title:            input.Title,
		Description:      input.Description,
		Priority:         priority,
		Status:           StatusDraft,
		Data:             input.Data,
		RequestorID:      actor.ID,
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("{}")
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, &workflows.StorageError{Op: "create request", Err: err}
	}

	s.logger.Info("Request created",
		zap.String("request_id", req.ID.String()),
		zap.String("reference", req.ReferenceNumber),
		zap.String("requestor", actor.ID.String()))

	return req, nil
}

// Get loads a request by id; citizens only see their own.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.HasRole(identity.RoleOfficer) && !actor.HasRole(identity.RoleChairman) && req.RequestorID != actor.ID {
		return nil, &workflows.ForbiddenError{Action: "view request " + req.ReferenceNumber}
	}
	return req, nil
}

// List returns requests matching the filter; citizens are pinned to their own.
func (s *Service) List(ctx context.Context, actor identity.Actor, filter Filter) ([]Request, error) {
	if !actor.HasRole(identity.RoleOfficer) && !actor.HasRole(identity.RoleChairman) {
		filter.RequestorID = &actor.ID
	}
	reqs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, &workflows.StorageError{Op: "list requests", Err: err}
	}
	return reqs, nil
}

// History returns the audit trail oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]AuditEntry, error) {
	entries, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, &workflows.StorageError{Op: "load audit history", Err: err}
	}
	return entries, nil
}

// Submit moves DRAFT to SUBMITTED: validates the payload against the
// document type, stamps submittedAt and derives the due date. The due date
// is set here once and never recalculated.
func (s *Service) Submit(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequestorID != actor.ID {
		return nil, &workflows.ForbiddenError{Action: "submit request " + req.ReferenceNumber, Required: "requestor"}
	}

	dt, err := s.catalog.Get(ctx, req.DocumentTypeCode)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.ValidateData(dt, req.Data); err != nil {
		return nil, err
	}

	err = s.transition(ctx, req, StatusSubmitted, actor, "submitted", func(r *Request) {
		now := time.Now()
		due := now.AddDate(0, 0, dt.EstimatedProcessingDays)
		r.SubmittedAt = &now
		r.DueDate = &due
	})
	return req, err
}

// Claim self-assigns a SUBMITTED request to the acting officer. Two racing
// claims resolve through the status compare-and-swap: the loser observes
// InvalidTransition.
func (s *Service) Claim(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Request, error) {
	return s.assign(ctx, actor, id, actor.ID)
}

// Assign puts a SUBMITTED request under review by the named officer.
func (s *Service) Assign(ctx context.Context, actor identity.Actor, id, officerID uuid.UUID) (*Request, error) {
	return s.assign(ctx, actor, id, officerID)
}

func (s *Service) assign(ctx context.Context, actor identity.Actor, id, officerID uuid.UUID) (*Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.transition(ctx, req, StatusInReview, actor, "assigned for review", func(r *Request) {
		r.AssignedOfficerID = &officerID
	})
	return req, err
}

// RequestInfo asks the citizen for additional information.
func (s *Service) RequestInfo(ctx context.Context, actor identity.Actor, id uuid.UUID, message string) (*Request, error) {
	if message == "" {
		return nil, &workflows.ValidationError{Field: "message", Message: "must describe the missing information"}
	}
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAssignedOrChairman(req, actor, "request additional information"); err != nil {
		return nil, err
	}
	err = s.transition(ctx, req, StatusAdditionalInfo, actor, message, func(r *Request) {
		r.AdditionalInfoRequest = &message
	})
	return req, err
}

// ProvideInfo returns the request to review after the citizen supplied the
// missing information. An updated payload replaces the stored one.
func (s *Service) ProvideInfo(ctx context.Context, actor identity.Actor, id uuid.UUID, data json.RawMessage, comment string) (*Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.HasRole(identity.RoleOfficer) && req.RequestorID != actor.ID {
		return nil, &workflows.ForbiddenError{Action: "provide information for " + req.ReferenceNumber, Required: "requestor"}
	}
	err = s.transition(ctx, req, StatusInReview, actor, comment, func(r *Request) {
		if len(data) > 0 {
			r.Data = data
		}
		r.AdditionalInfoRequest = nil
	})
	return req, err
}

// Approve marks a reviewed request APPROVED and records the approver.
func (s *Service) Approve(ctx context.Context, actor identity.Actor, id uuid.UUID, comment string) (*Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAssignedOrChairman(req, actor, "approve request"); err != nil {
		return nil, err
	}
	err = s.transition(ctx, req, StatusApproved, actor, comment, func(r *Request) {
		now := time.Now()
		r.ApprovedAt = &now
		r.ApproverID = &actor.ID
	})
	return req, err
}

// Reject refuses a request. A non-empty reason is required.
func (s *Service) Reject(ctx context.Context, actor identity.Actor, id uuid.UUID, reason string) (*Request, error) {
	if reason == "" {
		return nil, &workflows.ValidationError{Field: "reason", Message: "must not be empty"}
	}
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusInReview {
		if err := s.requireAssignedOrChairman(req, actor, "reject request"); err != nil {
			return nil, err
		}
	}
	err = s.transition(ctx, req, StatusRejected, actor, reason, func(r *Request) {
		r.RejectionReason = &reason
	})
	return req, err
}

// StartProcessing moves an APPROVED request into PROCESSING.
func (s *Service) StartProcessing(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAssignedOrChairman(req, actor, "start processing"); err != nil {
		return nil, err
	}
	err = s.transition(ctx, req, StatusProcessing, actor, "processing started", nil)
	return req, err
}

// Complete finishes processing and triggers document issuance. Completing
// an already-completed request is a no-op returning the existing state, so
// retried calls never issue a second document. A completed request whose
// issuance failed earlier retries the issuance alone.
func (s *Service) Complete(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusCompleted {
		if req.ResultingDocumentID != nil {
			return req, nil
		}
		if err := s.requireAssignedOrChairman(req, actor, "complete request"); err != nil {
			return nil, err
		}
		if err := s.issueAndLink(ctx, req, actor); err != nil {
			return nil, err
		}
		return req, nil
	}
	if err := s.requireAssignedOrChairman(req, actor, "complete request"); err != nil {
		return nil, err
	}

	err = s.transition(ctx, req, StatusCompleted, actor, "processing completed", func(r *Request) {
		now := time.Now()
		r.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}

	if err := s.issueAndLink(ctx, req, actor); err != nil {
		return nil, err
	}
	return req, nil
}

// issueAndLink obtains the request's document and records it. The issuer is
// idempotent per request, so retries converge on one document.
func (s *Service) issueAndLink(ctx context.Context, req *Request, actor identity.Actor) error {
	docID, err := s.issuer.IssueForRequest(ctx, req, actor)
	if err != nil {
		return fmt.Errorf("request completed but document issuance failed: %w", err)
	}
	if err := s.repo.SetResultingDocument(ctx, req.ID, docID); err != nil {
		return &workflows.StorageError{Op: "link resulting document", Err: err}
	}
	req.ResultingDocumentID = &docID
	return nil
}

// Cancel is available to the requestor in pre-processing states and, for
// PROCESSING, to the assigned officer or chairman as well.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, id uuid.UUID, reason string) (*Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequestorID != actor.ID {
		if err := s.requireAssignedOrChairman(req, actor, "cancel request "+req.ReferenceNumber); err != nil {
			return nil, err
		}
	}
	comment := reason
	if comment == "" {
		comment = "cancelled"
	}
	err = s.transition(ctx, req, StatusCancelled, actor, comment, func(r *Request) {
		if reason != "" {
			r.RejectionReason = &reason
		}
	})
	return req, err
}

// ApplyGateDecision feeds a chairman gate decision back into the request:
// approval moves IN_REVIEW to APPROVED, rejection to REJECTED.
func (s *Service) ApplyGateDecision(ctx context.Context, targetID uuid.UUID, approved bool, chairman identity.Actor, reason string) error {
	if approved {
		_, err := s.Approve(ctx, chairman, targetID, reason)
		return err
	}
	_, err := s.Reject(ctx, chairman, targetID, reason)
	return err
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, &workflows.StorageError{Op: "get request", Err: err}
	}
	if req == nil {
		return nil, &workflows.NotFoundError{Resource: "request", ID: id.String()}
	}
	return req, nil
}

func (s *Service) requireAssignedOrChairman(req *Request, actor identity.Actor, action string) error {
	if actor.HasRole(identity.RoleChairman) {
		return nil
	}
	if actor.HasRole(identity.RoleOfficer) && req.AssignedOfficerID != nil && *req.AssignedOfficerID == actor.ID {
		return nil
	}
	return &workflows.ForbiddenError{Action: action, Required: "assigned officer or chairman"}
}

// transition validates the edge, commits the mutated request and its audit
// entry in one transaction, then attests the committed transition. The
// ledger call runs after commit and never rolls it back.
func (s *Service) transition(ctx context.Context, req *Request, to Status, actor identity.Actor, comment string, mutate func(*Request)) error {
	from := req.Status
	if err := Machine.Authorize(from, to, actor.RoleStrings()); err != nil {
		metrics.TransitionsTotal.WithLabelValues("request", string(from), string(to), "denied").Inc()
		return err
	}

	updated := *req
	updated.Status = to
	if mutate != nil {
		mutate(&updated)
	}

	entry := &AuditEntry{
		ID:        uuid.New(),
		RequestID: req.ID,
		OldStatus: from,
		NewStatus: to,
		ActorID:   actor.ID,
		Comment:   comment,
		CreatedAt: time.Now(),
	}

	start := time.Now()
	if err := s.repo.Transition(ctx, &updated, from, entry); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			current := string(from)
			if latest, lerr := s.repo.GetByID(ctx, req.ID); lerr == nil && latest != nil {
				current = string(latest.Status)
			}
			metrics.TransitionsTotal.WithLabelValues("request", string(from), string(to), "conflict").Inc()
			return &workflows.InvalidTransitionError{Entity: "request", Current: current, Attempted: string(to)}
		}
		metrics.TransitionsTotal.WithLabelValues("request", string(from), string(to), "error").Inc()
		return &workflows.StorageError{Op: "commit transition", Err: err}
	}
	metrics.TransitionsTotal.WithLabelValues("request", string(from), string(to), "success").Inc()
	metrics.TransitionDuration.WithLabelValues("request").Observe(time.Since(start).Seconds())

	*req = updated

	s.logger.Info("Request transitioned",
		zap.String("request_id", req.ID.String()),
		zap.String("reference", req.ReferenceNumber),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor.ID.String()))

	s.attestTransition(req, entry, actor)
	s.notifyTransition(ctx, req, from, to)

	return nil
}

// attestTransition submits the committed transition to the ledger with a
// bounded timeout. Failure downgrades to a warning; the authoritative state
// change already committed.
func (s *Service) attestTransition(req *Request, entry *AuditEntry, actor identity.Actor) {
	ctx, cancel := context.WithTimeout(context.Background(), s.ledgerTimeout)
	defer cancel()

	payload, _ := json.Marshal(map[string]interface{}{
		"reference_number": req.ReferenceNumber,
		"old_status":       entry.OldStatus,
		"new_status":       entry.NewStatus,
		"actor":            actor.ID.String(),
		"comment":          entry.Comment,
		"at":               entry.CreatedAt,
	})

	receipt, err := s.ledger.Submit(ctx, ledger.KindRequest, req.ID.String(), payload, actor.ID.String())
	if err != nil {
		metrics.LedgerSubmissionsTotal.WithLabelValues(string(ledger.KindRequest), "error").Inc()
		s.logger.Warn("Ledger attestation failed",
			zap.String("request_id", req.ID.String()),
			zap.Error(err))
		return
	}
	metrics.LedgerSubmissionsTotal.WithLabelValues(string(ledger.KindRequest), "success").Inc()

	// The submit may have consumed the whole deadline; the tx id write gets
	// its own.
	rctx, rcancel := context.WithTimeout(context.Background(), s.ledgerTimeout)
	defer rcancel()

	entry.LedgerTxID = &receipt.TxID
	if err := s.repo.SetAuditLedgerTx(rctx, entry.ID, receipt.TxID); err != nil {
		s.logger.Warn("Failed to record ledger tx id",
			zap.String("audit_entry_id", entry.ID.String()),
			zap.Error(err))
	}
}

func (s *Service) notifyTransition(ctx context.Context, req *Request, from, to Status) {
	if s.notifier == nil {
		return
	}
	subject := fmt.Sprintf("Request %s is now %s", req.ReferenceNumber, to)
	body := fmt.Sprintf("Status changed from %s to %s.", from, to)
	s.notifier.Notify(ctx, req.RequestorID, subject, body)
	if req.AssignedOfficerID != nil {
		s.notifier.Notify(ctx, *req.AssignedOfficerID, subject, body)
	}
}
