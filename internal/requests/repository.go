package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrStaleStatus is returned by Transition when the request's status no
// longer matches the expected prior state; the caller lost a race and must
// surface InvalidTransition.
var ErrStaleStatus = errors.New("request status changed concurrently")

type Repository interface {
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	List(ctx context.Context, filter Filter) ([]Request, error)

	// Transition persists the mutated request and its audit entry in one
	// transaction, guarded by a compare-and-swap on the prior status.
	Transition(ctx context.Context, req *Request, from Status, entry *AuditEntry) error

	History(ctx context.Context, requestID uuid.UUID) ([]AuditEntry, error)
	SetAuditLedgerTx(ctx context.Context, entryID uuid.UUID, txID string) error
	SetResultingDocument(ctx context.Context, requestID, documentID uuid.UUID) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO requests (
			id, reference_number, document_type_code, title, description,
			priority, status, data, requestor_id
		) VALUES (
			$1,
			'REQ-' || to_char(now(), 'YYYY') || '-' || lpad(nextval('request_reference_seq')::text, 5, '0'),
			$2, $3, $4, $5, $6, $7, $8
		)
		RETURNING reference_number, created_at`
	return r.db.QueryRowxContext(ctx, query,
		req.ID, req.DocumentTypeCode, req.Title, req.Description,
		req.Priority, req.Status, req.Data, req.RequestorID,
	).Scan(&req.ReferenceNumber, &req.CreatedAt)
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	var req Request
	err := r.db.GetContext(ctx, &req, "SELECT * FROM requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &req, err
}

func (r *postgresRepository) List(ctx context.Context, filter Filter) ([]Request, error) {
	var reqs []Request
	query := "SELECT * FROM requests WHERE 1=1"
	var args []interface{}
	argCount := 1

	if filter.RequestorID != nil {
		query += fmt.Sprintf(" AND requestor_id = $%d", argCount)
		args = append(args, *filter.RequestorID)
		argCount++
	}
	if filter.AssignedOfficerID != nil {
		query += fmt.Sprintf(" AND assigned_officer_id = $%d", argCount)
		args = append(args, *filter.AssignedOfficerID)
		argCount++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filter.Status)
		argCount++
	}
	query += " ORDER BY created_at DESC"

	err := r.db.SelectContext(ctx, &reqs, query, args...)
	return reqs, err
}

func (r *postgresRepository) Transition(ctx context.Context, req *Request, from Status, entry *AuditEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	update := `
		UPDATE requests SET
			status = :status,
			assigned_officer_id = :assigned_officer_id,
			approver_id = :approver_id,
			rejection_reason = :rejection_reason,
			additional_info_request = :additional_info_request,
			data = :data,
			submitted_at = :submitted_at,
			approved_at = :approved_at,
			completed_at = :completed_at,
			due_date = :due_date
		WHERE id = :id AND status = :expected_status`
	args := map[string]interface{}{
		"id":                      req.ID,
		"status":                  req.Status,
		"assigned_officer_id":     req.AssignedOfficerID,
		"approver_id":             req.ApproverID,
		"rejection_reason":        req.RejectionReason,
		"additional_info_request": req.AdditionalInfoRequest,
		"data":                    req.Data,
		"submitted_at":            req.SubmittedAt,
		"approved_at":             req.ApprovedAt,
		"completed_at":            req.CompletedAt,
		"due_date":                req.DueDate,
		"expected_status":         from,
	}

	res, err := tx.NamedExecContext(ctx, update, args)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStaleStatus
	}

	audit := `
		INSERT INTO request_audit_log (
			id, request_id, old_status, new_status, actor_id, comment, ledger_tx_id, created_at
		) VALUES (
			:id, :request_id, :old_status, :new_status, :actor_id, :comment, :ledger_tx_id, :created_at
		)`
	if _, err := tx.NamedExecContext(ctx, audit, entry); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *postgresRepository) History(ctx context.Context, requestID uuid.UUID) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := r.db.SelectContext(ctx, &entries,
		"SELECT * FROM request_audit_log WHERE request_id = $1 ORDER BY created_at ASC", requestID)
	return entries, err
}

func (r *postgresRepository) SetAuditLedgerTx(ctx context.Context, entryID uuid.UUID, txID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE request_audit_log SET ledger_tx_id = $1 WHERE id = $2", txID, entryID)
	return err
}

func (r *postgresRepository) SetResultingDocument(ctx context.Context, requestID, documentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE requests SET resulting_document_id = $1 WHERE id = $2", documentID, requestID)
	return err
}
