package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role on the platform. It is set at creation and never changes.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleHR       Role = "HR"
	RoleEmployee Role = "EMPLOYEE"
	RoleCoach    Role = "COACH"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleEmployee, RoleCoach:
		return true
	}
	return false
}

// RequiresOrganization reports whether users of this role must belong to an organization.
func (r Role) RequiresOrganization() bool {
	return r == RoleHR || r == RoleEmployee
}

// User represents a platform user. OrganizationID is nil for ADMIN and COACH users.
type User struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	FullName       string     `json:"full_name" db:"full_name"`
	Role           Role       `json:"role" db:"role"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty" db:"organization_id"`
	Active         bool       `json:"active" db:"active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
