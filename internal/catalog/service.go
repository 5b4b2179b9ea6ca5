package catalog

import (
	"context"
	"encoding/json"
	"sync"

	"commune-portal/admin-portal-backend/pkg/workflows"
)

// Service serves document-type definitions with a small in-process cache;
// the catalog changes rarely and is read on every submission.
type Service struct {
	repo  Repository
	mu    sync.RWMutex
	cache map[string]*DocumentType
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		cache: make(map[string]*DocumentType),
	}
}

// Get returns the document type for a code, or NotFoundError.
func (s *Service) Get(ctx context.Context, code string) (*DocumentType, error) {
	s.mu.RLock()
	cached, ok := s.cache[code]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	dt, err := s.repo.GetDocumentType(ctx, code)
	if err != nil {
		return nil, &workflows.StorageError{Op: "get document type", Err: err}
	}
	if dt == nil {
		return nil, &workflows.NotFoundError{Resource: "document type", ID: code}
	}

	s.mu.Lock()
	s.cache[code] = dt
	s.mu.Unlock()
	return dt, nil
}

// List returns all known document types.
func (s *Service) List(ctx context.Context) ([]DocumentType, error) {
	types, err := s.repo.ListDocumentTypes(ctx)
	if err != nil {
		return nil, &workflows.StorageError{Op: "list document types", Err: err}
	}
	return types, nil
}

// Create registers a new document type and primes the cache.
func (s *Service) Create(ctx context.Context, dt *DocumentType) error {
	if dt.Code == "" {
		return &workflows.ValidationError{Field: "code", Message: "must not be empty"}
	}
	if dt.EstimatedProcessingDays <= 0 {
		return &workflows.ValidationError{Field: "estimated_processing_days", Message: "must be positive"}
	}
	if err := s.repo.CreateDocumentType(ctx, dt); err != nil {
		return &workflows.StorageError{Op: "create document type", Err: err}
	}

	s.mu.Lock()
	s.cache[dt.Code] = dt
	s.mu.Unlock()
	return nil
}

// ValidateData checks the request payload against the type's required
// fields before a request may be submitted.
func (s *Service) ValidateData(dt *DocumentType, data json.RawMessage) error {
	fields := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			return &workflows.ValidationError{Field: "data", Message: "must be a flat JSON object of strings"}
		}
	}
	for _, required := range dt.RequiredFields {
		if fields[required] == "" {
			return &workflows.ValidationError{Field: required, Message: "is required for " + dt.Code}
		}
	}
	return nil
}
