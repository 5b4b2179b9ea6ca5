package workflows

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testMachine() *StateMachine {
	return NewStateMachine("ticket").
		Allow("OPEN", "IN_PROGRESS", "agent").
		Allow("OPEN", "CLOSED", "agent", "manager").
		Allow("IN_PROGRESS", "CLOSED", "manager").
		MarkTerminal("CLOSED")
}

func TestCanTransition(t *testing.T) {
	sm := testMachine()

	assert.True(t, sm.CanTransition("OPEN", "IN_PROGRESS"))
	assert.True(t, sm.CanTransition("OPEN", "CLOSED"))
	assert.False(t, sm.CanTransition("IN_PROGRESS", "OPEN"))
	assert.False(t, sm.CanTransition("CLOSED", "OPEN"))
	assert.False(t, sm.CanTransition("UNKNOWN", "OPEN"))
}

func TestAllowedTransitions(t *testing.T) {
	sm := testMachine()

	assert.ElementsMatch(t, []State{"IN_PROGRESS", "CLOSED"}, sm.AllowedTransitions("OPEN"))
	assert.Empty(t, sm.AllowedTransitions("CLOSED"))
}

func TestIsTerminal(t *testing.T) {
	sm := testMachine()

	assert.True(t, sm.IsTerminal("CLOSED"))
	assert.False(t, sm.IsTerminal("OPEN"))
}

func TestAuthorize(t *testing.T) {
	sm := testMachine()

	assert.NoError(t, sm.Authorize("OPEN", "IN_PROGRESS", []string{"agent"}))
	assert.NoError(t, sm.Authorize("OPEN", "CLOSED", []string{"manager", "agent"}))

	err := sm.Authorize("OPEN", "IN_PROGRESS", []string{"manager"})
	var forbidden *ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	err = sm.Authorize("CLOSED", "OPEN", []string{"manager"})
	var invalid *InvalidTransitionError
	assert.True(t, errors.As(err, &invalid))
	assert.Equal(t, "CLOSED", invalid.Current)
	assert.Equal(t, "OPEN", invalid.Attempted)

	// Unknown source state is an invalid edge, not a permission problem.
	err = sm.Authorize("UNKNOWN", "OPEN", []string{"manager"})
	assert.True(t, errors.As(err, &invalid))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &NotFoundError{Resource: "ticket", ID: "42"}, http.StatusNotFound},
		{"invalid transition", &InvalidTransitionError{Entity: "ticket", Current: "CLOSED", Attempted: "OPEN"}, http.StatusConflict},
		{"duplicate approval", &DuplicateApprovalError{TargetKind: "REQUEST", TargetID: "42"}, http.StatusConflict},
		{"already decided", &AlreadyDecidedError{ApprovalID: "42", Status: "approved"}, http.StatusConflict},
		{"forbidden", &ForbiddenError{Action: "close"}, http.StatusForbidden},
		{"validation", &ValidationError{Field: "reason", Message: "required"}, http.StatusBadRequest},
		{"storage", &StorageError{Op: "insert", Err: errors.New("boom")}, http.StatusInternalServerError},
		{"wrapped", &StorageError{Op: "insert", Err: &NotFoundError{Resource: "ticket", ID: "42"}}, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}
