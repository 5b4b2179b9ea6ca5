package approvals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	// ErrActiveExists is returned by CreateIfNoneActive when a pending
	// record already exists for the target.
	ErrActiveExists = errors.New("a pending approval already exists for target")

	// ErrNotPending is returned by Decide when the record was already
	// decided concurrently.
	ErrNotPending = errors.New("approval record is not pending")
)

type Repository interface {
	// CreateIfNoneActive inserts the record unless a pending one exists for
	// the same target. The check and insert are a single atomic statement.
	CreateIfNoneActive(ctx context.Context, record *ApprovalRecord) error

	GetByID(ctx context.Context, id uuid.UUID) (*ApprovalRecord, error)
	GetActiveForTarget(ctx context.Context, kind TargetKind, targetID uuid.UUID) (*ApprovalRecord, error)
	ListPending(ctx context.Context) ([]ApprovalRecord, error)

	// Decide compare-and-swaps the record from pending to the decided state.
	Decide(ctx context.Context, record *ApprovalRecord) error

	// Reopen returns a just-decided record to pending after the decision
	// could not be applied to its target.
	Reopen(ctx context.Context, id uuid.UUID) error

	SetLedgerTx(ctx context.Context, id uuid.UUID, txID string) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateIfNoneActive(ctx context.Context, record *ApprovalRecord) error {
	// The partial unique index on (target_kind, target_id) WHERE
	// status = 'pending' backs this insert; ON CONFLICT turns the race
	// into a zero-row no-op.
	query := `
		INSERT INTO approval_records (
			id, target_kind, target_id, status, priority, requested_by_id, due_date, reason
		) VALUES (
			:id, :target_kind, :target_id, :status, :priority, :requested_by_id, :due_date, :reason
		)
		ON CONFLICT (target_kind, target_id) WHERE status = 'pending' DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", ErrActiveExists, record.TargetKind, record.TargetID)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*ApprovalRecord, error) {
	var record ApprovalRecord
	err := r.db.GetContext(ctx, &record, "SELECT * FROM approval_records WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &record, err
}

func (r *postgresRepository) GetActiveForTarget(ctx context.Context, kind TargetKind, targetID uuid.UUID) (*ApprovalRecord, error) {
	var record ApprovalRecord
	err := r.db.GetContext(ctx, &record,
		"SELECT * FROM approval_records WHERE target_kind = $1 AND target_id = $2 AND status = 'pending'",
		kind, targetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &record, err
}

func (r *postgresRepository) ListPending(ctx context.Context) ([]ApprovalRecord, error) {
	var records []ApprovalRecord
	err := r.db.SelectContext(ctx, &records,
		"SELECT * FROM approval_records WHERE status = 'pending' ORDER BY created_at ASC")
	return records, err
}

func (r *postgresRepository) Decide(ctx context.Context, record *ApprovalRecord) error {
	query := `
		UPDATE approval_records SET
			status = :status,
			approver_id = :approver_id,
			reason = :reason,
			decided_at = :decided_at
		WHERE id = :id AND status = 'pending'`
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *postgresRepository) Reopen(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE approval_records SET
			status = 'pending',
			approver_id = NULL,
			reason = NULL,
			decided_at = NULL
		WHERE id = $1`, id)
	return err
}

func (r *postgresRepository) SetLedgerTx(ctx context.Context, id uuid.UUID, txID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE approval_records SET ledger_tx_id = $1 WHERE id = $2", txID, id)
	return err
}
