// Package meeting reserves the video room a consultation takes place in.
package meeting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable is returned when no room could be reserved.
var ErrUnavailable = errors.New("meeting: room reservation unavailable")

// Request describes the consultation a room is reserved for.
type Request struct {
	BookingID  uuid.UUID
	CoachID    uuid.UUID
	EmployeeID uuid.UUID
	StartsAt   time.Time
	EndsAt     time.Time
}

// RoomID is the deterministic room name of a booking.
func (r Request) RoomID() string {
	return "consult-" + r.BookingID.String()
}

// Reservation is a reserved room and the join tokens of both participants.
type Reservation struct {
	RoomID        string    `json:"room_id"`
	CoachToken    string    `json:"coach_token,omitempty"`
	EmployeeToken string    `json:"employee_token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Reserver reserves rooms before a booking commits and releases them when the commit fails.
type Reserver interface {
	Reserve(ctx context.Context, req Request) (Reservation, error)
	Release(ctx context.Context, roomID string) error
}

// Noop reserves a named room without contacting any provider.
type Noop struct{}

// Reserve implements Reserver.
func (Noop) Reserve(ctx context.Context, req Request) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	return Reservation{RoomID: req.RoomID(), ExpiresAt: req.EndsAt}, nil
}

// Release implements Reserver.
func (Noop) Release(context.Context, string) error { return nil }
