package documents

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commune-portal/admin-portal-backend/internal/catalog"
	"commune-portal/admin-portal-backend/internal/identity"
	"commune-portal/admin-portal-backend/internal/ledger"
	"commune-portal/admin-portal-backend/internal/requests"
	"commune-portal/admin-portal-backend/pkg/metrics"
	"commune-portal/admin-portal-backend/pkg/workflows"
)

// Catalog supplies document-type definitions for issuance.
type Catalog interface {
	Get(ctx context.Context, code string) (*catalog.DocumentType, error)
}

// ApprovalOpener opens the chairman approval record for a document that
// requires second-tier sign-off.
type ApprovalOpener interface {
	OpenForDocument(ctx context.Context, doc *Document, requestedBy uuid.UUID, priority string, dueDate *time.Time) error
}

// Service issues documents from completed requests and runs the document
// approval sub-workflow.
type Service struct {
	repo          Repository
	catalog       Catalog
	ledger        ledger.Client
	opener        ApprovalOpener
	ledgerTimeout time.Duration
	logger        *zap.Logger
}

func NewService(repo Repository, cat Catalog, ledgerClient ledger.Client, opener ApprovalOpener, ledgerTimeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:          repo,
		catalog:       cat,
		ledger:        ledgerClient,
		opener:        opener,
		ledgerTimeout: ledgerTimeout,
		logger:        logger,
	}
}

// IssueForRequest creates the document for a completed request. At most one
// document exists per request: a retried completion returns the existing
// document instead of creating a duplicate.
func (s *Service) IssueForRequest(ctx context.Context, req *requests.Request, officer identity.Actor) (uuid.UUID, error) {
	existing, err := s.repo.GetDocumentByRequest(ctx, req.ID)
	if err != nil {
		return uuid.Nil, &workflows.StorageError{Op: "lookup issued document", Err: err}
	}
	if existing != nil {
		return existing.ID, nil
	}

	dt, err := s.catalog.Get(ctx, req.DocumentTypeCode)
	if err != nil {
		return uuid.Nil, err
	}

	now := time.Now()
	doc := &Document{
		ID:               uuid.New(),
		DocumentTypeCode: dt.Code,
		Title:            dt.Name + " - " + req.ReferenceNumber,
		Content:          RenderTemplate(dt.Template, req.Data),
		Status:           StatusDraft,
		CitizenID:        req.RequestorID,
		IssuedByID:       officer.ID,
		SourceRequestID:  &req.ID,
		ValidFrom:        &now,
		LedgerStatus:     LedgerNotStored,
	}
	if dt.ValidityMonths != nil {
		until := now.AddDate(0, *dt.ValidityMonths, 0)
		doc.ValidUntil = &until
	}
	if dt.RequiresChairmanApproval {
		doc.Status = StatusPendingApproval
	} else {
		doc.IssuedDate = &now
	}

	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return uuid.Nil, &workflows.StorageError{Op: "create document", Err: err}
	}
	metrics.DocumentsIssuedTotal.WithLabelValues(dt.Code).Inc()

	if dt.RequiresChairmanApproval {
		if err := s.opener.OpenForDocument(ctx, doc, officer.ID, string(req.Priority), req.DueDate); err != nil {
			return uuid.Nil, err
		}
	}

	s.logger.Info("Document issued",
		zap.String("document_id", doc.ID.String()),
		zap.String("document_type", dt.Code),
		zap.String("source_request", req.ReferenceNumber),
		zap.String("status", string(doc.Status)))

	s.attestDocument(doc, officer.ID, "issued")

	return doc.ID, nil
}

// Get loads a document; citizens only see their own.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Document, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.HasRole(identity.RoleOfficer) && !actor.HasRole(identity.RoleChairman) && doc.CitizenID != actor.ID {
		return nil, &workflows.ForbiddenError{Action: "view document " + id.String()}
	}
	return doc, nil
}

// List returns documents matching the filter; citizens are pinned to their own.
func (s *Service) List(ctx context.Context, actor identity.Actor, filter Filter) ([]Document, error) {
	if !actor.HasRole(identity.RoleOfficer) && !actor.HasRole(identity.RoleChairman) {
		filter.CitizenID = &actor.ID
	}
	docs, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, &workflows.StorageError{Op: "list documents", Err: err}
	}
	return docs, nil
}

// ApplyGateDecision feeds the chairman's decision into the document:
// approval issues it, rejection is terminal.
func (s *Service) ApplyGateDecision(ctx context.Context, docID uuid.UUID, approved bool, chairman identity.Actor, reason string) error {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return err
	}

	to := StatusApproved
	if !approved {
		to = StatusRejected
	}

	return s.transition(ctx, doc, to, chairman, func(d *Document) {
		if approved {
			now := time.Now()
			d.ChairmanApprovedByID = &chairman.ID
			d.IssuedDate = &now
		} else {
			d.RevocationReason = &reason
		}
	})
}

// Revoke withdraws an APPROVED document. Irreversible.
func (s *Service) Revoke(ctx context.Context, actor identity.Actor, docID uuid.UUID, reason string) (*Document, error) {
	if reason == "" {
		return nil, &workflows.ValidationError{Field: "reason", Message: "must not be empty"}
	}
	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	err = s.transition(ctx, doc, StatusRevoked, actor, func(d *Document) {
		d.RevokedByID = &actor.ID
		d.RevocationReason = &reason
	})
	return doc, err
}

// Verify recomputes the content hash and checks it against the ledger. A
// ledger failure surfaces as "unverified", never as an error.
func (s *Service) Verify(ctx context.Context, actor identity.Actor, docID uuid.UUID) (bool, error) {
	doc, err := s.Get(ctx, actor, docID)
	if err != nil {
		return false, err
	}

	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	verified, err := s.ledger.Verify(lctx, doc.ID.String(), ledger.HashPayload(attestationPayload(doc)))
	if err != nil {
		s.logger.Warn("Ledger verification unavailable",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err))
		return false, nil
	}

	if verified && doc.LedgerStatus != LedgerVerified {
		if err := s.repo.SetLedgerState(ctx, doc.ID, LedgerVerified, nil); err != nil {
			s.logger.Warn("Failed to record ledger verification", zap.Error(err))
		}
	}
	return verified, nil
}

// RenderPDF produces the printable form of a document.
func (s *Service) RenderPDF(ctx context.Context, actor identity.Actor, docID uuid.UUID) ([]byte, error) {
	doc, err := s.Get(ctx, actor, docID)
	if err != nil {
		return nil, err
	}
	return renderPDF(doc)
}

// ExpireOverdue flips APPROVED documents past their validity window to
// EXPIRED. Run on a schedule by the expiry worker.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpireOverdue(ctx)
	if err != nil {
		return 0, &workflows.StorageError{Op: "expire documents", Err: err}
	}
	if count > 0 {
		s.logger.Info("Documents expired", zap.Int64("count", count))
	}
	return count, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, &workflows.StorageError{Op: "get document", Err: err}
	}
	if doc == nil {
		return nil, &workflows.NotFoundError{Resource: "document", ID: id.String()}
	}
	return doc, nil
}

func (s *Service) transition(ctx context.Context, doc *Document, to Status, actor identity.Actor, mutate func(*Document)) error {
	from := doc.Status
	if err := Machine.Authorize(from, to, actor.RoleStrings()); err != nil {
		metrics.TransitionsTotal.WithLabelValues("document", string(from), string(to), "denied").Inc()
		return err
	}

	updated := *doc
	updated.Status = to
	if mutate != nil {
		mutate(&updated)
	}

	if err := s.repo.UpdateStatus(ctx, &updated, from); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			current := string(from)
			if latest, lerr := s.repo.GetDocumentByID(ctx, doc.ID); lerr == nil && latest != nil {
				current = string(latest.Status)
			}
			metrics.TransitionsTotal.WithLabelValues("document", string(from), string(to), "conflict").Inc()
			return &workflows.InvalidTransitionError{Entity: "document", Current: current, Attempted: string(to)}
		}
		metrics.TransitionsTotal.WithLabelValues("document", string(from), string(to), "error").Inc()
		return &workflows.StorageError{Op: "commit document transition", Err: err}
	}
	metrics.TransitionsTotal.WithLabelValues("document", string(from), string(to), "success").Inc()

	*doc = updated

	s.logger.Info("Document transitioned",
		zap.String("document_id", doc.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor.ID.String()))

	s.attestDocument(doc, actor.ID, string(to))
	return nil
}

// attestationPayload is the canonical attested form of a document; Verify
// hashes the same bytes, so a content change invalidates prior attestations.
func attestationPayload(doc *Document) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{
		"document_id": doc.ID.String(),
		"content":     doc.Content,
	})
	return payload
}

// attestDocument submits the document state to the ledger best-effort and
// records the resulting ledger status on the row.
func (s *Service) attestDocument(doc *Document, actorID uuid.UUID, event string) {
	lctx, lcancel := context.WithTimeout(context.Background(), s.ledgerTimeout)
	receipt, err := s.ledger.Submit(lctx, ledger.KindDocument, doc.ID.String(), attestationPayload(doc), actorID.String())
	lcancel()

	// A submit that failed by timeout has an expired context; the ledger
	// status writes below get their own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), s.ledgerTimeout)
	defer cancel()

	if err != nil {
		metrics.LedgerSubmissionsTotal.WithLabelValues(string(ledger.KindDocument), "error").Inc()
		s.logger.Warn("Document ledger attestation failed",
			zap.String("document_id", doc.ID.String()),
			zap.String("event", event),
			zap.Error(err))
		doc.LedgerStatus = LedgerError
		if serr := s.repo.SetLedgerState(ctx, doc.ID, LedgerError, nil); serr != nil {
			s.logger.Warn("Failed to record ledger error state", zap.Error(serr))
		}
		return
	}
	metrics.LedgerSubmissionsTotal.WithLabelValues(string(ledger.KindDocument), "success").Inc()

	status := LedgerStored
	if doc.LedgerTxID != nil {
		status = LedgerUpdated
	}
	doc.LedgerStatus = status
	doc.LedgerTxID = &receipt.TxID
	if err := s.repo.SetLedgerState(ctx, doc.ID, status, &receipt.TxID); err != nil {
		s.logger.Warn("Failed to record ledger tx id", zap.Error(err))
	}
}
