package models

import "github.com/google/uuid"

// Role is the marketplace role of an authenticated user.
type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleWorker
}

// Actor is the identity supplied by the session collaborator for the current call.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}
