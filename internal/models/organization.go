package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant company whose employees use the platform.
type Organization struct {
	ID               uuid.UUID `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Active           bool      `json:"active" db:"active"`
	EmployeeCapacity int       `json:"employee_capacity" db:"employee_capacity"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
