package models

import (
	"time"

	"github.com/google/uuid"
)

// SlotStatus is the booking state of a coach's time slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotBlocked   SlotStatus = "BLOCKED"
)

// BookingStatus is the lifecycle state of a consultation booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// CoachingProfile holds display attributes of a COACH user.
type CoachingProfile struct {
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Bio         string    `json:"bio" db:"bio"`
	Specialties []string  `json:"specialties" db:"specialties"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// CoachSlot is one bookable hour offered by a coach.
// Date is the calendar day; StartTime and EndTime are absolute instants within it.
type CoachSlot struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	CoachID   uuid.UUID  `json:"coach_id" db:"coach_id"`
	Date      time.Time  `json:"date" db:"slot_date"`
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   time.Time  `json:"end_time" db:"end_time"`
	Status    SlotStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ConsultationBooking links an employee to a coach slot.
type ConsultationBooking struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	SlotID             uuid.UUID     `json:"slot_id" db:"slot_id"`
	CoachID            uuid.UUID     `json:"coach_id" db:"coach_id"`
	EmployeeID         uuid.UUID     `json:"employee_id" db:"employee_id"`
	OrganizationID     uuid.UUID     `json:"organization_id" db:"organization_id"`
	Status             BookingStatus `json:"status" db:"status"`
	MeetingRoomID      string        `json:"meeting_room_id,omitempty" db:"meeting_room_id"`
	CancelledBy        *uuid.UUID    `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string       `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}
