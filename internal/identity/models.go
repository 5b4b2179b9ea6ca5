package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Role is one of the three fixed portal roles.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleOfficer  Role = "officer"
	RoleChairman Role = "chairman"
)

// Actor is the identity invoking a workflow operation. Roles is the single
// canonical role set; workflow code checks membership here and nowhere else.
type Actor struct {
	ID       uuid.UUID
	Username string
	FullName string
	Roles    []Role
}

// HasRole reports membership in the actor's role set.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleStrings returns the role set as plain strings for the state machine.
func (a Actor) RoleStrings() []string {
	out := make([]string, len(a.Roles))
	for i, r := range a.Roles {
		out[i] = string(r)
	}
	return out
}

// User is the persisted account row behind an Actor.
type User struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Username     string         `json:"username" db:"username"`
	FullName     string         `json:"full_name" db:"full_name"`
	PasswordHash string         `json:"-" db:"password_hash"`
	Roles        pq.StringArray `json:"roles" db:"roles"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// Actor converts the stored row into the workflow-facing actor context.
func (u *User) Actor() Actor {
	roles := make([]Role, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = Role(r)
	}
	return Actor{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Roles:    roles,
	}
}
