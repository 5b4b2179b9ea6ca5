package approvals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"commune-portal/admin-portal-backend/internal/identity"
	"commune-portal/admin-portal-backend/internal/ledger"
	"commune-portal/admin-portal-backend/pkg/workflows"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateIfNoneActive(ctx context.Context, record *ApprovalRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*ApprovalRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ApprovalRecord), args.Error(1)
}

func (m *MockRepository) GetActiveForTarget(ctx context.Context, kind TargetKind, targetID uuid.UUID) (*ApprovalRecord, error) {
	args := m.Called(ctx, kind, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ApprovalRecord), args.Error(1)
}

func (m *MockRepository) ListPending(ctx context.Context) ([]ApprovalRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]ApprovalRecord), args.Error(1)
}

func (m *MockRepository) Decide(ctx context.Context, record *ApprovalRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) Reopen(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) SetLedgerTx(ctx context.Context, id uuid.UUID, txID string) error {
	args := m.Called(ctx, id, txID)
	return args.Error(0)
}

// recordingGate remembers the decision applied to it.
type recordingGate struct {
	applied  bool
	targetID uuid.UUID
	approved bool
	err      error
}

func (g *recordingGate) ApplyGateDecision(ctx context.Context, targetID uuid.UUID, approved bool, chairman identity.Actor, reason string) error {
	if g.err != nil {
		return g.err
	}
	g.applied = true
	g.targetID = targetID
	g.approved = approved
	return nil
}

var (
	gateOfficer  = identity.Actor{ID: uuid.New(), Username: "officer", Roles: []identity.Role{identity.RoleOfficer}}
	gateChairman = identity.Actor{ID: uuid.New(), Username: "chairman", Roles: []identity.Role{identity.RoleChairman}}
)

func newTestService(repo Repository) (*Service, *recordingGate, *recordingGate) {
	svc := NewService(repo, ledger.NewMemoryClient(), time.Second, zap.NewNop())
	reqGate := &recordingGate{}
	docGate := &recordingGate{}
	svc.SetGates(reqGate, docGate)
	return svc, reqGate, docGate
}

func TestRequestApprovalRejectsDuplicates(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)
	targetID := uuid.New()

	repo.On("CreateIfNoneActive", mock.Anything, mock.Anything).Return(nil).Once()
	record, err := svc.RequestApproval(context.Background(), TargetRequest, targetID, gateOfficer, "normal", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, record.Status)
	assert.Equal(t, gateOfficer.ID, record.RequestedByID)

	repo.On("CreateIfNoneActive", mock.Anything, mock.Anything).Return(ErrActiveExists).Once()
	_, err = svc.RequestApproval(context.Background(), TargetRequest, targetID, gateOfficer, "normal", nil)

	var duplicate *workflows.DuplicateApprovalError
	require.True(t, errors.As(err, &duplicate))
	assert.Equal(t, targetID.String(), duplicate.TargetID)
}

func TestDecideRequiresChairman(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	_, err := svc.Decide(context.Background(), gateOfficer, uuid.New(), true, "")

	var forbidden *workflows.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))
}

func TestDecideRequiresReasonOnRejection(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	_, err := svc.Decide(context.Background(), gateChairman, uuid.New(), false, "")

	var validation *workflows.ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestDecideApproveFeedsRequestGate(t *testing.T) {
	repo := new(MockRepository)
	svc, reqGate, docGate := newTestService(repo)

	record := &ApprovalRecord{ID: uuid.New(), TargetKind: TargetRequest, TargetID: uuid.New(), Status: StatusPending}
	repo.On("GetByID", mock.Anything, record.ID).Return(record, nil)
	repo.On("Decide", mock.Anything, mock.Anything).Return(nil)
	repo.On("SetLedgerTx", mock.Anything, record.ID, mock.Anything).Return(nil)

	decided, err := svc.Decide(context.Background(), gateChairman, record.ID, true, "")
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, decided.Status)
	assert.Equal(t, gateChairman.ID, *decided.ApproverID)
	assert.NotNil(t, decided.DecidedAt)
	assert.NotNil(t, decided.LedgerTxID)
	assert.True(t, reqGate.applied)
	assert.True(t, reqGate.approved)
	assert.Equal(t, record.TargetID, reqGate.targetID)
	assert.False(t, docGate.applied)
}

func TestDecideRejectFeedsDocumentGate(t *testing.T) {
	repo := new(MockRepository)
	svc, reqGate, docGate := newTestService(repo)

	record := &ApprovalRecord{ID: uuid.New(), TargetKind: TargetDocument, TargetID: uuid.New(), Status: StatusPending}
	repo.On("GetByID", mock.Anything, record.ID).Return(record, nil)
	repo.On("Decide", mock.Anything, mock.Anything).Return(nil)
	repo.On("SetLedgerTx", mock.Anything, record.ID, mock.Anything).Return(nil)

	decided, err := svc.Decide(context.Background(), gateChairman, record.ID, false, "incomplete survey")
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, decided.Status)
	assert.Equal(t, "incomplete survey", *decided.Reason)
	assert.True(t, docGate.applied)
	assert.False(t, docGate.approved)
	assert.False(t, reqGate.applied)
}

func TestDecideReopensWhenTargetRefusesDecision(t *testing.T) {
	repo := new(MockRepository)
	svc, reqGate, _ := newTestService(repo)
	// The request moved on while the approval sat in the queue.
	reqGate.err = &workflows.InvalidTransitionError{Entity: "request", Current: "REJECTED", Attempted: "APPROVED"}

	record := &ApprovalRecord{ID: uuid.New(), TargetKind: TargetRequest, TargetID: uuid.New(), Status: StatusPending}
	repo.On("GetByID", mock.Anything, record.ID).Return(record, nil)
	repo.On("Decide", mock.Anything, mock.Anything).Return(nil)
	repo.On("Reopen", mock.Anything, record.ID).Return(nil)

	_, err := svc.Decide(context.Background(), gateChairman, record.ID, true, "")

	var invalid *workflows.InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	repo.AssertCalled(t, "Reopen", mock.Anything, record.ID)
	assert.Equal(t, StatusPending, record.Status, "record and target must not disagree")
	assert.Nil(t, record.ApproverID)
	assert.Nil(t, record.DecidedAt)
}

func TestNewApprovalAllowedAfterDecision(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)
	targetID := uuid.New()

	repo.On("CreateIfNoneActive", mock.Anything, mock.Anything).Return(nil).Once()
	first, err := svc.RequestApproval(context.Background(), TargetRequest, targetID, gateOfficer, "normal", nil)
	require.NoError(t, err)

	repo.On("CreateIfNoneActive", mock.Anything, mock.Anything).Return(ErrActiveExists).Once()
	_, err = svc.RequestApproval(context.Background(), TargetRequest, targetID, gateOfficer, "normal", nil)
	var duplicate *workflows.DuplicateApprovalError
	require.True(t, errors.As(err, &duplicate))

	repo.On("GetByID", mock.Anything, first.ID).Return(first, nil)
	repo.On("Decide", mock.Anything, mock.Anything).Return(nil)
	repo.On("SetLedgerTx", mock.Anything, first.ID, mock.Anything).Return(nil)
	_, err = svc.Decide(context.Background(), gateChairman, first.ID, true, "")
	require.NoError(t, err)

	// With the earlier record decided, the target accepts a fresh approval.
	repo.On("CreateIfNoneActive", mock.Anything, mock.Anything).Return(nil).Once()
	second, err := svc.RequestApproval(context.Background(), TargetRequest, targetID, gateOfficer, "normal", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, StatusPending, second.Status)
}

func TestDecideTwiceReportsAlreadyDecided(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	now := time.Now()
	record := &ApprovalRecord{ID: uuid.New(), TargetKind: TargetRequest, TargetID: uuid.New(), Status: StatusApproved, DecidedAt: &now}
	repo.On("GetByID", mock.Anything, record.ID).Return(record, nil)

	_, err := svc.Decide(context.Background(), gateChairman, record.ID, true, "")

	var decidedErr *workflows.AlreadyDecidedError
	require.True(t, errors.As(err, &decidedErr))
	assert.Equal(t, string(StatusApproved), decidedErr.Status)
}

func TestDecideRaceLoserReportsAlreadyDecided(t *testing.T) {
	repo := new(MockRepository)
	svc, reqGate, _ := newTestService(repo)

	record := &ApprovalRecord{ID: uuid.New(), TargetKind: TargetRequest, TargetID: uuid.New(), Status: StatusPending}
	repo.On("GetByID", mock.Anything, record.ID).Return(record, nil)
	// A concurrent chairman decided between our read and our write.
	repo.On("Decide", mock.Anything, mock.Anything).Return(ErrNotPending)

	_, err := svc.Decide(context.Background(), gateChairman, record.ID, true, "")

	var decidedErr *workflows.AlreadyDecidedError
	assert.True(t, errors.As(err, &decidedErr))
	assert.False(t, reqGate.applied, "the loser must not touch the target")
}

func TestDecideNotFound(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).Return(nil, nil)

	_, err := svc.Decide(context.Background(), gateChairman, id, true, "")

	var notFound *workflows.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}
