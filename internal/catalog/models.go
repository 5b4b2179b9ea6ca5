package catalog

import (
	"time"

	"github.com/lib/pq"
)

// DocumentType describes one kind of issuable administrative document and
// how requests for it are processed.
type DocumentType struct {
	Code                     string         `json:"code" db:"code"`
	Name                     string         `json:"name" db:"name"`
	Description              string         `json:"description" db:"description"`
	Template                 string         `json:"template" db:"template"`
	RequiredFields           pq.StringArray `json:"required_fields" db:"required_fields"`
	EstimatedProcessingDays  int            `json:"estimated_processing_days" db:"estimated_processing_days"`
	RequiresChairmanApproval bool           `json:"requires_chairman_approval" db:"requires_chairman_approval"`
	ValidityMonths           *int           `json:"validity_months,omitempty" db:"validity_months"`
	CreatedAt                time.Time      `json:"created_at" db:"created_at"`
}
