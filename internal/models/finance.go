package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a financial account tracked for an employee.
type Account struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	Name           string    `json:"name" db:"name"`
	Kind           string    `json:"kind" db:"kind"`
	BalanceCents   int64     `json:"balance_cents" db:"balance_cents"`
	Currency       string    `json:"currency" db:"currency"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// FinancialTransaction is one income or expense entry of an employee.
type FinancialTransaction struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	OrganizationID uuid.UUID  `json:"organization_id" db:"organization_id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	AccountID      *uuid.UUID `json:"account_id,omitempty" db:"account_id"`
	AmountCents    int64      `json:"amount_cents" db:"amount_cents"`
	Currency       string     `json:"currency" db:"currency"`
	Category       string     `json:"category" db:"category"`
	Description    string     `json:"description" db:"description"`
	OccurredAt     time.Time  `json:"occurred_at" db:"occurred_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// MonthlySummary is the aggregated income and spending of an employee for one month.
type MonthlySummary struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	Month          time.Time `json:"month" db:"month"`
	IncomeCents    int64     `json:"income_cents" db:"income_cents"`
	ExpenseCents   int64     `json:"expense_cents" db:"expense_cents"`
	SavingsCents   int64     `json:"savings_cents" db:"savings_cents"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
