package catalog

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	CreateDocumentType(ctx context.Context, dt *DocumentType) error
	GetDocumentType(ctx context.Context, code string) (*DocumentType, error)
	ListDocumentTypes(ctx context.Context) ([]DocumentType, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateDocumentType(ctx context.Context, dt *DocumentType) error {
	query := `
		INSERT INTO document_types (
			code, name, description, template, required_fields,
			estimated_processing_days, requires_chairman_approval, validity_months
		) VALUES (
			:code, :name, :description, :template, :required_fields,
			:estimated_processing_days, :requires_chairman_approval, :validity_months
		)`
	_, err := r.db.NamedExecContext(ctx, query, dt)
	return err
}

func (r *postgresRepository) GetDocumentType(ctx context.Context, code string) (*DocumentType, error) {
	var dt DocumentType
	err := r.db.GetContext(ctx, &dt, "SELECT * FROM document_types WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &dt, err
}

func (r *postgresRepository) ListDocumentTypes(ctx context.Context) ([]DocumentType, error) {
	var types []DocumentType
	err := r.db.SelectContext(ctx, &types, "SELECT * FROM document_types ORDER BY code")
	return types, err
}
