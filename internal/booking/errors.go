package booking

import (
	"errors"
	"fmt"
)

// Category errors. Every conflict wraps ErrConflict and every retryable failure wraps ErrTransient.
var (
	// ErrConflict means the request lost against the current slot or booking state. Do not retry.
	ErrConflict = errors.New("booking conflict")
	// ErrTransient means a lock wait, serialization failure or deadline aborted the transaction. Retry.
	ErrTransient = errors.New("booking temporarily unavailable, try again")
	// ErrSerialization is a transient abort the transactor retries itself against a fresh snapshot.
	ErrSerialization = fmt.Errorf("%w: serialization failure", ErrTransient)
)

var (
	ErrSlotNotAvailable = fmt.Errorf("%w: slot is not available", ErrConflict)
	ErrSlotInPast       = fmt.Errorf("%w: slot has already started", ErrConflict)
	ErrAlreadyCancelled = fmt.Errorf("%w: booking already cancelled", ErrConflict)
	ErrBookingNotActive = fmt.Errorf("%w: booking is not active", ErrConflict)
	ErrSessionStarted   = fmt.Errorf("%w: session has already started", ErrConflict)
	ErrNotCompletable   = fmt.Errorf("%w: session has not ended yet", ErrConflict)
	ErrSlotBooked       = fmt.Errorf("%w: slot is booked", ErrConflict)
	ErrSlotOverlap      = fmt.Errorf("%w: slot overlaps an existing slot", ErrConflict)
	ErrSlotHasHistory   = fmt.Errorf("%w: slot has booking history", ErrConflict)
)

var (
	ErrSlotNotFound    = errors.New("slot not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrForbidden       = errors.New("operation not permitted for this actor")
	ErrNotBookingOwner = fmt.Errorf("%w: requester does not own the booking", ErrForbidden)
	ErrInvalidSlot     = errors.New("invalid slot")
)

func serialization(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSerialization, op, err)
}

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}
