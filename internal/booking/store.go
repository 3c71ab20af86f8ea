package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerwise/coaching-backend/internal/models"
)

// TxOptions bounds one booking transaction.
type TxOptions struct {
	// LockTimeout bounds each row lock wait.
	LockTimeout time.Duration
	// StatementTimeout bounds each statement.
	StatementTimeout time.Duration
}

// SlotQuery selects a coach's slots starting in [From, To). Zero bounds are open.
type SlotQuery struct {
	CoachID uuid.UUID
	From    time.Time
	To      time.Time
	Status  models.SlotStatus
}

// Store opens serializable transactions over slots and bookings.
type Store interface {
	Begin(ctx context.Context, opts TxOptions) (Tx, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*models.CoachSlot, error)
	ListSlots(ctx context.Context, q SlotQuery) ([]models.CoachSlot, error)
}

// Tx is one booking transaction. Row locks are held until Commit or Rollback.
// Callers always lock a slot before any booking of it.
type Tx interface {
	// LockCoach serializes slot creation for one coach.
	LockCoach(ctx context.Context, coachID uuid.UUID) error
	// LockSlot locks and returns the slot, or ErrSlotNotFound.
	LockSlot(ctx context.Context, id uuid.UUID) (*models.CoachSlot, error)
	// FindBooking returns the booking without locking it, or ErrBookingNotFound.
	FindBooking(ctx context.Context, id uuid.UUID) (*models.ConsultationBooking, error)
	// LockBooking locks and returns the booking, or ErrBookingNotFound.
	LockBooking(ctx context.Context, id uuid.UUID) (*models.ConsultationBooking, error)
	ListSlots(ctx context.Context, q SlotQuery) ([]models.CoachSlot, error)
	InsertSlot(ctx context.Context, slot *models.CoachSlot) error
	SetSlotStatus(ctx context.Context, id uuid.UUID, status models.SlotStatus, at time.Time) error
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	// InsertBooking fails with ErrSlotNotAvailable when the slot already has a live booking.
	InsertBooking(ctx context.Context, b *models.ConsultationBooking) error
	CancelBooking(ctx context.Context, id, by uuid.UUID, at time.Time, reason string) error
	CompleteBooking(ctx context.Context, id uuid.UUID, at time.Time) error
	Commit(ctx context.Context) error
	// Rollback is a no-op after Commit.
	Rollback(ctx context.Context) error
}
