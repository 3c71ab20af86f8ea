package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerwise/coaching-backend/internal/models"
)

func selectAll[T any](ctx context.Context, g *Gateway, entity Entity, filter Filter, opts selectOptions) ([]T, error) {
	scope, err := g.Authorize(ctx, entity, OpRead)
	if err != nil {
		return nil, err
	}
	stmt, err := compileSelect(scope, filter, opts)
	if err != nil {
		return nil, err
	}
	rows, err := g.db.Query(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entity, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}

func selectOne[T any](ctx context.Context, g *Gateway, entity Entity, filter Filter) (*T, error) {
	list, err := selectAll[T](ctx, g, entity, filter, selectOptions{limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func insertOne[T any](ctx context.Context, g *Gateway, entity Entity, payload Row) (*T, error) {
	scope, err := g.Authorize(ctx, entity, OpCreate)
	if err != nil {
		return nil, err
	}
	stmt, err := compileInsert(scope, payload)
	if err != nil {
		return nil, err
	}
	rows, err := g.db.Query(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", entity, err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", entity, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("create %s: no row returned", entity)
	}
	return &list[0], nil
}

// putID adds an optional id predicate.
func putID(f Filter, col string, id *uuid.UUID) {
	if id != nil {
		f[col] = *id
	}
}

// TransactionFilter narrows transaction reads. OrganizationID is honoured for ADMIN only.
type TransactionFilter struct {
	OrganizationID *uuid.UUID
	UserID         *uuid.UUID
	AccountID      *uuid.UUID
	Category       string
	Limit          int
}

// TransactionRepository reads and writes financial transactions.
type TransactionRepository struct{ g *Gateway }

// Transactions returns the financial transaction repository.
func (g *Gateway) Transactions() TransactionRepository { return TransactionRepository{g: g} }

// List returns the caller's visible transactions, newest first.
func (r TransactionRepository) List(ctx context.Context, f TransactionFilter) ([]models.FinancialTransaction, error) {
	filter := Filter{}
	putID(filter, "organization_id", f.OrganizationID)
	putID(filter, "user_id", f.UserID)
	putID(filter, "account_id", f.AccountID)
	if f.Category != "" {
		filter["category"] = f.Category
	}
	return selectAll[models.FinancialTransaction](ctx, r.g, EntityTransactions, filter, selectOptions{limit: f.Limit})
}

// Create records a transaction for the caller.
func (r TransactionRepository) Create(ctx context.Context, t models.FinancialTransaction) (*models.FinancialTransaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	payload := Row{
		"id":           t.ID,
		"user_id":      t.UserID,
		"account_id":   t.AccountID,
		"amount_cents": t.AmountCents,
		"currency":     t.Currency,
		"category":     t.Category,
		"description":  t.Description,
		"occurred_at":  t.OccurredAt,
	}
	if t.OrganizationID != uuid.Nil {
		payload["organization_id"] = t.OrganizationID
	}
	return insertOne[models.FinancialTransaction](ctx, r.g, EntityTransactions, payload)
}

// SummaryFilter narrows monthly summary reads.
type SummaryFilter struct {
	OrganizationID *uuid.UUID
	UserID         *uuid.UUID
	Month          *time.Time
	Limit          int
}

// SummaryRepository reads monthly summaries.
type SummaryRepository struct{ g *Gateway }

// Summaries returns the monthly summary repository.
func (g *Gateway) Summaries() SummaryRepository { return SummaryRepository{g: g} }

// List returns monthly summaries, latest month first.
func (r SummaryRepository) List(ctx context.Context, f SummaryFilter) ([]models.MonthlySummary, error) {
	filter := Filter{}
	putID(filter, "organization_id", f.OrganizationID)
	putID(filter, "user_id", f.UserID)
	if f.Month != nil {
		filter["month"] = *f.Month
	}
	return selectAll[models.MonthlySummary](ctx, r.g, EntityMonthlySummaries, filter, selectOptions{limit: f.Limit})
}

// AccountFilter narrows account reads.
type AccountFilter struct {
	OrganizationID *uuid.UUID
	UserID         *uuid.UUID
}

// AccountRepository reads financial accounts.
type AccountRepository struct{ g *Gateway }

// Accounts returns the account repository.
func (g *Gateway) Accounts() AccountRepository { return AccountRepository{g: g} }

// List returns the caller's visible accounts.
func (r AccountRepository) List(ctx context.Context, f AccountFilter) ([]models.Account, error) {
	filter := Filter{}
	putID(filter, "organization_id", f.OrganizationID)
	putID(filter, "user_id", f.UserID)
	return selectAll[models.Account](ctx, r.g, EntityAccounts, filter, selectOptions{})
}

// UserFilter narrows user reads.
type UserFilter struct {
	OrganizationID *uuid.UUID
	Role           models.Role
	Active         *bool
}

// UserRepository reads users.
type UserRepository struct{ g *Gateway }

// Users returns the user repository.
func (g *Gateway) Users() UserRepository { return UserRepository{g: g} }

// Get returns one user visible to the caller.
func (r UserRepository) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return selectOne[models.User](ctx, r.g, EntityUsers, Filter{"id": id})
}

// List returns users visible to the caller.
func (r UserRepository) List(ctx context.Context, f UserFilter) ([]models.User, error) {
	filter := Filter{}
	putID(filter, "organization_id", f.OrganizationID)
	if f.Role != "" {
		filter["role"] = string(f.Role)
	}
	if f.Active != nil {
		filter["active"] = *f.Active
	}
	return selectAll[models.User](ctx, r.g, EntityUsers, filter, selectOptions{})
}

// SetActive activates or deactivates a user. It returns the affected row count.
func (r UserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) (int64, error) {
	return r.g.Update(ctx, EntityUsers, Filter{"id": id}, Row{"active": active, "updated_at": at})
}

// BookingFilter narrows booking reads.
type BookingFilter struct {
	OrganizationID *uuid.UUID
	CoachID        *uuid.UUID
	EmployeeID     *uuid.UUID
	SlotID         *uuid.UUID
	Status         models.BookingStatus
	Limit          int
}

// BookingRepository reads and writes consultation bookings.
type BookingRepository struct{ g *Gateway }

// Bookings returns the consultation booking repository.
func (g *Gateway) Bookings() BookingRepository { return BookingRepository{g: g} }

// Get returns one booking visible to the caller.
func (r BookingRepository) Get(ctx context.Context, id uuid.UUID) (*models.ConsultationBooking, error) {
	return selectOne[models.ConsultationBooking](ctx, r.g, EntityBookings, Filter{"id": id})
}

// Lock returns one booking visible to the caller and row-locks it until the
// surrounding transaction ends. Use it on a gateway bound by WithQuerier.
func (r BookingRepository) Lock(ctx context.Context, id uuid.UUID) (*models.ConsultationBooking, error) {
	list, err := selectAll[models.ConsultationBooking](ctx, r.g, EntityBookings, Filter{"id": id}, selectOptions{limit: 1, forUpdate: true})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// List returns bookings visible to the caller, newest first.
func (r BookingRepository) List(ctx context.Context, f BookingFilter) ([]models.ConsultationBooking, error) {
	filter := Filter{}
	putID(filter, "organization_id", f.OrganizationID)
	putID(filter, "coach_id", f.CoachID)
	putID(filter, "employee_id", f.EmployeeID)
	putID(filter, "slot_id", f.SlotID)
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	return selectAll[models.ConsultationBooking](ctx, r.g, EntityBookings, filter, selectOptions{limit: f.Limit})
}

// Create inserts a booking. Organization and employee come from the Tenant Context.
func (r BookingRepository) Create(ctx context.Context, b models.ConsultationBooking) (*models.ConsultationBooking, error) {
	payload := Row{
		"id":              b.ID,
		"slot_id":         b.SlotID,
		"coach_id":        b.CoachID,
		"employee_id":     b.EmployeeID,
		"status":          string(b.Status),
		"meeting_room_id": b.MeetingRoomID,
		"created_at":      b.CreatedAt,
		"updated_at":      b.UpdatedAt,
	}
	if b.OrganizationID != uuid.Nil {
		payload["organization_id"] = b.OrganizationID
	}
	return insertOne[models.ConsultationBooking](ctx, r.g, EntityBookings, payload)
}

// MarkCancelled moves a CONFIRMED booking to CANCELLED. It returns the affected row count.
func (r BookingRepository) MarkCancelled(ctx context.Context, id, by uuid.UUID, at time.Time, reason string) (int64, error) {
	return r.g.Update(ctx, EntityBookings,
		Filter{"id": id, "status": string(models.BookingConfirmed)},
		Row{
			"status":              string(models.BookingCancelled),
			"cancelled_by":        by,
			"cancelled_at":        at,
			"cancellation_reason": reason,
			"updated_at":          at,
		})
}

// MarkCompleted moves a CONFIRMED booking to COMPLETED. It returns the affected row count.
func (r BookingRepository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	return r.g.Update(ctx, EntityBookings,
		Filter{"id": id, "status": string(models.BookingConfirmed)},
		Row{
			"status":       string(models.BookingCompleted),
			"completed_at": at,
			"updated_at":   at,
		})
}
