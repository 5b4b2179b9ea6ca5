package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrStaleStatus is returned by UpdateStatus when the document's status no
// longer matches the expected prior state.
var ErrStaleStatus = errors.New("document status changed concurrently")

type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetDocumentByRequest(ctx context.Context, requestID uuid.UUID) (*Document, error)
	ListDocuments(ctx context.Context, filter Filter) ([]Document, error)

	// UpdateStatus compare-and-swaps the document status and persists the
	// decision fields carried on doc.
	UpdateStatus(ctx context.Context, doc *Document, from Status) error

	SetLedgerState(ctx context.Context, id uuid.UUID, status LedgerStatus, txID *string) error
	ExpireOverdue(ctx context.Context) (int64, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateDocument(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (
			id, document_type_code, title, content, status, citizen_id,
			issued_by_id, source_request_id, valid_from, valid_until,
			issued_date, ledger_status
		) VALUES (
			:id, :document_type_code, :title, :content, :status, :citizen_id,
			:issued_by_id, :source_request_id, :valid_from, :valid_until,
			:issued_date, :ledger_status
		)`
	_, err := r.db.NamedExecContext(ctx, query, doc)
	return err
}

func (r *postgresRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.GetContext(ctx, &doc, "SELECT * FROM documents WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &doc, err
}

func (r *postgresRepository) GetDocumentByRequest(ctx context.Context, requestID uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.GetContext(ctx, &doc, "SELECT * FROM documents WHERE source_request_id = $1", requestID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &doc, err
}

func (r *postgresRepository) ListDocuments(ctx context.Context, filter Filter) ([]Document, error) {
	var docs []Document
	query := "SELECT * FROM documents WHERE 1=1"
	var args []interface{}
	argCount := 1

	if filter.CitizenID != nil {
		query += fmt.Sprintf(" AND citizen_id = $%d", argCount)
		args = append(args, *filter.CitizenID)
		argCount++
	}
	if filter.DocumentTypeCode != nil {
		query += fmt.Sprintf(" AND document_type_code = $%d", argCount)
		args = append(args, *filter.DocumentTypeCode)
		argCount++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filter.Status)
		argCount++
	}
	query += " ORDER BY created_at DESC"

	err := r.db.SelectContext(ctx, &docs, query, args...)
	return docs, err
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, doc *Document, from Status) error {
	query := `
		UPDATE documents SET
			status = :status,
			chairman_approved_by_id = :chairman_approved_by_id,
			revoked_by_id = :revoked_by_id,
			revocation_reason = :revocation_reason,
			issued_date = :issued_date,
			valid_from = :valid_from,
			valid_until = :valid_until
		WHERE id = :id AND status = :expected_status`
	args := map[string]interface{}{
		"id":                      doc.ID,
		"status":                  doc.Status,
		"chairman_approved_by_id": doc.ChairmanApprovedByID,
		"revoked_by_id":           doc.RevokedByID,
		"revocation_reason":       doc.RevocationReason,
		"issued_date":             doc.IssuedDate,
		"valid_from":              doc.ValidFrom,
		"valid_until":             doc.ValidUntil,
		"expected_status":         from,
	}

	res, err := r.db.NamedExecContext(ctx, query, args)
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
	return nil
}

func (r *postgresRepository) SetLedgerState(ctx context.Context, id uuid.UUID, status LedgerStatus, txID *string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE documents SET ledger_status = $1, ledger_tx_id = COALESCE($2, ledger_tx_id) WHERE id = $3",
		status, txID, id)
	return err
}

func (r *postgresRepository) ExpireOverdue(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE documents SET status = $1 WHERE status = $2 AND valid_until IS NOT NULL AND valid_until < now()",
		StatusExpired, StatusApproved)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
