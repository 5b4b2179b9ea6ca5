package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"commune-portal/admin-portal-backend/pkg/workflows"
)

type memoryUserRepo struct {
	users map[string]*User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*User)}
}

func (r *memoryUserRepo) CreateUser(ctx context.Context, user *User) error {
	r.users[user.Username] = user
	return nil
}

func (r *memoryUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return r.users[username], nil
}

func newIdentityService() *Service {
	return NewService(newMemoryUserRepo(), "test-secret", time.Hour, zap.NewNop())
}

func TestProvisionDefaultsToCitizen(t *testing.T) {
	svc := newIdentityService()

	user, err := svc.Provision(context.Background(), ProvisionInput{
		Username: "anna",
		Password: "correct horse",
		FullName: "Anna Pop",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"citizen"}, []string(user.Roles))
	assert.NotEqual(t, "correct horse", user.PasswordHash)
}

func TestProvisionValidation(t *testing.T) {
	svc := newIdentityService()
	ctx := context.Background()

	var validation *workflows.ValidationError

	_, err := svc.Provision(ctx, ProvisionInput{Password: "long enough"})
	assert.True(t, errors.As(err, &validation))

	_, err = svc.Provision(ctx, ProvisionInput{Username: "anna", Password: "short"})
	assert.True(t, errors.As(err, &validation))

	_, err = svc.Provision(ctx, ProvisionInput{Username: "anna", Password: "long enough"})
	require.NoError(t, err)

	_, err = svc.Provision(ctx, ProvisionInput{Username: "anna", Password: "long enough"})
	require.True(t, errors.As(err, &validation), "usernames are unique")
	assert.Equal(t, "username", validation.Field)
}

func TestAuthenticateAndParseTokenRoundTrip(t *testing.T) {
	svc := newIdentityService()
	ctx := context.Background()

	user, err := svc.Provision(ctx, ProvisionInput{
		Username: "bogdan",
		Password: "super secret",
		FullName: "Bogdan Ionescu",
		Roles:    []Role{RoleOfficer, RoleChairman},
	})
	require.NoError(t, err)

	token, _, err := svc.Authenticate(ctx, "bogdan", "super secret")
	require.NoError(t, err)

	actor, err := svc.ParseToken(token)
	require.NoError(t, err)

	assert.Equal(t, user.ID, actor.ID)
	assert.Equal(t, "bogdan", actor.Username)
	assert.Equal(t, "Bogdan Ionescu", actor.FullName)
	assert.True(t, actor.HasRole(RoleOfficer))
	assert.True(t, actor.HasRole(RoleChairman))
	assert.False(t, actor.HasRole(RoleCitizen))
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := newIdentityService()
	ctx := context.Background()

	_, err := svc.Provision(ctx, ProvisionInput{Username: "anna", Password: "long enough"})
	require.NoError(t, err)

	var forbidden *workflows.ForbiddenError

	_, _, err = svc.Authenticate(ctx, "anna", "wrong password")
	assert.True(t, errors.As(err, &forbidden))

	_, _, err = svc.Authenticate(ctx, "nobody", "long enough")
	assert.True(t, errors.As(err, &forbidden))
}

func TestParseTokenRejectsGarbageAndForeignSignatures(t *testing.T) {
	svc := newIdentityService()
	ctx := context.Background()

	_, err := svc.ParseToken("not a token")
	var forbidden *workflows.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	other := NewService(newMemoryUserRepo(), "different-secret", time.Hour, zap.NewNop())
	_, provErr := other.Provision(ctx, ProvisionInput{Username: "eve", Password: "long enough"})
	require.NoError(t, provErr)
	token, _, authErr := other.Authenticate(ctx, "eve", "long enough")
	require.NoError(t, authErr)

	_, err = svc.ParseToken(token)
	assert.True(t, errors.As(err, &forbidden), "tokens signed with another secret are rejected")
}
