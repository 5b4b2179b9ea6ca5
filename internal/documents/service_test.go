package documents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"commune-portal/admin-portal-backend/internal/catalog"
	"commune-portal/admin-portal-backend/internal/identity"
	"commune-portal/admin-portal-backend/internal/ledger"
	"commune-portal/admin-portal-backend/internal/requests"
	"commune-portal/admin-portal-backend/pkg/workflows"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateDocument(ctx context.Context, doc *Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockRepository) GetDocumentByRequest(ctx context.Context, requestID uuid.UUID) (*Document, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockRepository) ListDocuments(ctx context.Context, filter Filter) ([]Document, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, doc *Document, from Status) error {
	args := m.Called(ctx, doc, from)
	return args.Error(0)
}

func (m *MockRepository) SetLedgerState(ctx context.Context, id uuid.UUID, status LedgerStatus, txID *string) error {
	args := m.Called(ctx, id, status, txID)
	return args.Error(0)
}

func (m *MockRepository) ExpireOverdue(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) Get(ctx context.Context, code string) (*catalog.DocumentType, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.DocumentType), args.Error(1)
}

type MockOpener struct {
	mock.Mock
}

func (m *MockOpener) OpenForDocument(ctx context.Context, doc *Document, requestedBy uuid.UUID, priority string, dueDate *time.Time) error {
	args := m.Called(ctx, doc, requestedBy, priority, dueDate)
	return args.Error(0)
}

var (
	testOfficer  = identity.Actor{ID: uuid.New(), Username: "officer", Roles: []identity.Role{identity.RoleOfficer}}
	testChairman = identity.Actor{ID: uuid.New(), Username: "chairman", Roles: []identity.Role{identity.RoleChairman}}
	testCitizen  = identity.Actor{ID: uuid.New(), Username: "citizen", Roles: []identity.Role{identity.RoleCitizen}}
)

func sourceRequest() *requests.Request {
	return &requests.Request{
		ID:               uuid.New(),
		ReferenceNumber:  "REQ-2026-00042",
		DocumentTypeCode: "RESIDENCE_CERT",
		RequestorID:      testCitizen.ID,
		Priority:         requests.PriorityNormal,
		Data:             json.RawMessage(`{"full_name":"Anna Pop","address":"Str. Morii 5"}`),
	}
}

func TestIssueForRequestWithoutGate(t *testing.T) {
	repo := new(MockRepository)
	cat := new(MockCatalog)
	opener := new(MockOpener)
	svc := NewService(repo, cat, ledger.NewMemoryClient(), opener, time.Second, zap.NewNop())

	req := sourceRequest()
	months := 6
	cat.On("Get", mock.Anything, "RESIDENCE_CERT").Return(&catalog.DocumentType{
		Code:           "RESIDENCE_CERT",
		Name:           "Residence Certificate",
		Template:       "{{ full_name }} resides at {{ address }}.",
		ValidityMonths: &months,
	}, nil)
	repo.On("GetDocumentByRequest", mock.Anything, req.ID).Return(nil, nil)

	var created *Document
	repo.On("CreateDocument", mock.Anything, mock.AnythingOfType("*documents.Document")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*Document) }).
		Return(nil)
	repo.On("SetLedgerState", mock.Anything, mock.Anything, LedgerStored, mock.Anything).Return(nil)

	docID, err := svc.IssueForRequest(context.Background(), req, testOfficer)
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, created.ID, docID)
	assert.Equal(t, StatusDraft, created.Status)
	assert.Equal(t, "Anna Pop resides at Str. Morii 5.", created.Content)
	assert.Equal(t, testCitizen.ID, created.CitizenID)
	assert.Equal(t, testOfficer.ID, created.IssuedByID)
	assert.NotNil(t, created.IssuedDate, "ungated documents are issued immediately")
	require.NotNil(t, created.ValidUntil)
	assert.WithinDuration(t, time.Now().AddDate(0, 6, 0), *created.ValidUntil, time.Minute)

	opener.AssertNotCalled(t, "OpenForDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueForRequestOpensChairmanGate(t *testing.T) {
	repo := new(MockRepository)
	cat := new(MockCatalog)
	opener := new(MockOpener)
	svc := NewService(repo, cat, ledger.NewMemoryClient(), opener, time.Second, zap.NewNop())

	req := sourceRequest()
	req.DocumentTypeCode = "LAND_USE_PERMIT"
	cat.On("Get", mock.Anything, "LAND_USE_PERMIT").Return(&catalog.DocumentType{
		Code:                     "LAND_USE_PERMIT",
		Name:                     "Land Use Permit",
		RequiresChairmanApproval: true,
	}, nil)
	repo.On("GetDocumentByRequest", mock.Anything, req.ID).Return(nil, nil)
	repo.On("CreateDocument", mock.Anything, mock.Anything).Return(nil)
	repo.On("SetLedgerState", mock.Anything, mock.Anything, LedgerStored, mock.Anything).Return(nil)
	opener.On("OpenForDocument", mock.Anything, mock.Anything, testOfficer.ID, string(requests.PriorityNormal), mock.Anything).Return(nil)

	_, err := svc.IssueForRequest(context.Background(), req, testOfficer)
	require.NoError(t, err)

	opener.AssertExpectations(t)
	created := repo.Calls[1].Arguments.Get(1).(*Document)
	assert.Equal(t, StatusPendingApproval, created.Status)
	assert.Nil(t, created.IssuedDate, "gated documents are not issued until sign-off")
}

func TestIssueForRequestIsIdempotent(t *testing.T) {
	repo := new(MockRepository)
	cat := new(MockCatalog)
	svc := NewService(repo, cat, ledger.NewMemoryClient(), new(MockOpener), time.Second, zap.NewNop())

	req := sourceRequest()
	existing := &Document{ID: uuid.New(), SourceRequestID: &req.ID}
	repo.On("GetDocumentByRequest", mock.Anything, req.ID).Return(existing, nil)

	docID, err := svc.IssueForRequest(context.Background(), req, testOfficer)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, docID)
	repo.AssertNotCalled(t, "CreateDocument", mock.Anything, mock.Anything)
}

func TestApplyGateDecision(t *testing.T) {
	t.Run("approve issues the document", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockCatalog), ledger.NewMemoryClient(), nil, time.Second, zap.NewNop())

		doc := &Document{ID: uuid.New(), Status: StatusPendingApproval, CitizenID: testCitizen.ID}
		repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)

		var updated *Document
		repo.On("UpdateStatus", mock.Anything, mock.Anything, StatusPendingApproval).
			Run(func(args mock.Arguments) { updated = args.Get(1).(*Document) }).
			Return(nil)
		repo.On("SetLedgerState", mock.Anything, doc.ID, mock.Anything, mock.Anything).Return(nil)

		err := svc.ApplyGateDecision(context.Background(), doc.ID, true, testChairman, "")
		require.NoError(t, err)

		require.NotNil(t, updated)
		assert.Equal(t, StatusApproved, updated.Status)
		assert.Equal(t, testChairman.ID, *updated.ChairmanApprovedByID)
		assert.NotNil(t, updated.IssuedDate)
	})

	t.Run("reject is terminal", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockCatalog), ledger.NewMemoryClient(), nil, time.Second, zap.NewNop())

		doc := &Document{ID: uuid.New(), Status: StatusPendingApproval, CitizenID: testCitizen.ID}
		repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)

		var updated *Document
		repo.On("UpdateStatus", mock.Anything, mock.Anything, StatusPendingApproval).
			Run(func(args mock.Arguments) { updated = args.Get(1).(*Document) }).
			Return(nil)
		repo.On("SetLedgerState", mock.Anything, doc.ID, mock.Anything, mock.Anything).Return(nil)

		err := svc.ApplyGateDecision(context.Background(), doc.ID, false, testChairman, "parcel under litigation")
		require.NoError(t, err)

		require.NotNil(t, updated)
		assert.Equal(t, StatusRejected, updated.Status)
		assert.Equal(t, "parcel under litigation", *updated.RevocationReason)
	})
}

func TestRevoke(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockCatalog), ledger.NewMemoryClient(), nil, time.Second, zap.NewNop())

	_, err := svc.Revoke(context.Background(), testChairman, uuid.New(), "")
	var validation *workflows.ValidationError
	require.True(t, errors.As(err, &validation))

	draft := &Document{ID: uuid.New(), Status: StatusDraft, CitizenID: testCitizen.ID}
	repo.On("GetDocumentByID", mock.Anything, draft.ID).Return(draft, nil)
	_, err = svc.Revoke(context.Background(), testChairman, draft.ID, "mistake")
	var invalid *workflows.InvalidTransitionError
	assert.True(t, errors.As(err, &invalid), "only approved documents can be revoked")

	approved := &Document{ID: uuid.New(), Status: StatusApproved, CitizenID: testCitizen.ID}
	repo.On("GetDocumentByID", mock.Anything, approved.ID).Return(approved, nil)

	_, err = svc.Revoke(context.Background(), testOfficer, approved.ID, "mistake")
	var forbidden *workflows.ForbiddenError
	assert.True(t, errors.As(err, &forbidden), "revocation is a chairman action")

	var updated *Document
	repo.On("UpdateStatus", mock.Anything, mock.Anything, StatusApproved).
		Run(func(args mock.Arguments) { updated = args.Get(1).(*Document) }).
		Return(nil)
	repo.On("SetLedgerState", mock.Anything, approved.ID, mock.Anything, mock.Anything).Return(nil)

	_, err = svc.Revoke(context.Background(), testChairman, approved.ID, "issued on falsified data")
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, updated.Status)
	assert.Equal(t, testChairman.ID, *updated.RevokedByID)
}

func TestVerifyAgainstLedger(t *testing.T) {
	repo := new(MockRepository)
	mem := ledger.NewMemoryClient()
	svc := NewService(repo, new(MockCatalog), mem, nil, time.Second, zap.NewNop())

	doc := &Document{ID: uuid.New(), Status: StatusApproved, CitizenID: testCitizen.ID, Content: "certified content"}
	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("SetLedgerState", mock.Anything, doc.ID, mock.Anything, mock.Anything).Return(nil)

	// Attest, then verify the same content.
	svc.attestDocument(doc, testOfficer.ID, "issued")

	verified, err := svc.Verify(context.Background(), testChairman, doc.ID)
	require.NoError(t, err)
	assert.True(t, verified)

	// Tampered content no longer matches the attested hash.
	doc.Content = "tampered content"
	verified, err = svc.Verify(context.Background(), testChairman, doc.ID)
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestVerifyLedgerOutageReportsUnverified(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockCatalog), &failingLedger{}, nil, time.Second, zap.NewNop())

	doc := &Document{ID: uuid.New(), Status: StatusApproved, CitizenID: testCitizen.ID}
	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)

	verified, err := svc.Verify(context.Background(), testChairman, doc.ID)
	require.NoError(t, err, "an unreachable ledger is not a caller error")
	assert.False(t, verified)
}

func TestCitizenAccessIsPinnedToOwnDocuments(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockCatalog), ledger.NewMemoryClient(), nil, time.Second, zap.NewNop())

	doc := &Document{ID: uuid.New(), Status: StatusApproved, CitizenID: uuid.New()}
	repo.On("GetDocumentByID", mock.Anything, doc.ID).Return(doc, nil)

	_, err := svc.Get(context.Background(), testCitizen, doc.ID)
	var forbidden *workflows.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	repo.On("ListDocuments", mock.Anything, mock.MatchedBy(func(f Filter) bool {
		return f.CitizenID != nil && *f.CitizenID == testCitizen.ID
	})).Return([]Document{}, nil)

	_, err = svc.List(context.Background(), testCitizen, Filter{})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRenderTemplate(t *testing.T) {
	data := json.RawMessage(`{"full_name":"Anna Pop","parcel_id":"123/4"}`)

	assert.Equal(t, "Permit for Anna Pop, parcel 123/4.",
		RenderTemplate("Permit for {{ full_name }}, parcel {{ parcel_id }}.", data))
	assert.Equal(t, "Missing:  end.",
		RenderTemplate("Missing: {{ unknown }} end.", data), "unknown placeholders render empty")
	assert.Equal(t, "No placeholders.", RenderTemplate("No placeholders.", nil))
}

func TestLedgerTimeoutStillRecordsErrorState(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockCatalog), &stalledLedger{}, nil, 20*time.Millisecond, zap.NewNop())

	doc := &Document{ID: uuid.New(), Status: StatusApproved, CitizenID: testCitizen.ID, Content: "certified content"}
	repo.On("SetLedgerState", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), doc.ID, LedgerError, (*string)(nil)).Return(nil)

	svc.attestDocument(doc, testOfficer.ID, "issued")

	assert.Equal(t, LedgerError, doc.LedgerStatus)
	repo.AssertExpectations(t)
}

// failingLedger errors on every call, standing in for an unreachable
// attestation service.
type failingLedger struct{}

func (f *failingLedger) Submit(ctx context.Context, kind ledger.Kind, refID string, payload json.RawMessage, actor string) (*ledger.Receipt, error) {
	return nil, &workflows.LedgerError{Op: "submit", Err: errors.New("connection refused")}
}

func (f *failingLedger) Verify(ctx context.Context, refID string, expectedHash string) (bool, error) {
	return false, &workflows.LedgerError{Op: "verify", Err: errors.New("connection refused")}
}

func (f *failingLedger) History(ctx context.Context, refID string) ([]ledger.Entry, error) {
	return nil, &workflows.LedgerError{Op: "history", Err: errors.New("connection refused")}
}

// stalledLedger hangs until the submit deadline expires, standing in for an
// attestation service that accepts connections but never answers.
type stalledLedger struct{}

func (s *stalledLedger) Submit(ctx context.Context, kind ledger.Kind, refID string, payload json.RawMessage, actor string) (*ledger.Receipt, error) {
	<-ctx.Done()
	return nil, &workflows.LedgerError{Op: "submit", Err: ctx.Err()}
}

func (s *stalledLedger) Verify(ctx context.Context, refID string, expectedHash string) (bool, error) {
	<-ctx.Done()
	return false, &workflows.LedgerError{Op: "verify", Err: ctx.Err()}
}

func (s *stalledLedger) History(ctx context.Context, refID string) ([]ledger.Entry, error) {
	<-ctx.Done()
	return nil, &workflows.LedgerError{Op: "history", Err: ctx.Err()}
}
