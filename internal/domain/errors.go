package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrReservationNotFound = errors.New("reservation not found")

	ErrInvalidRange      = errors.New("start time must be before end time")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid slot status transition")

	ErrSlotUnavailable        = errors.New("slot not available or does not exist")
	ErrReservationExpired     = errors.New("reservation has expired")
	ErrDuplicateEmail         = errors.New("client with this email already exists")
	ErrProviderHasBookings    = errors.New("provider has reserved or confirmed slots")
	ErrClientHasReservations  = errors.New("client has reservations")
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrLeadTimeViolation = errors.New("slot starts too soon to be reserved")

	ErrLeaseHeld = errors.New("lease is held by another owner")
)

// Kind classifies an error for callers that map failures onto transports.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidInput
	KindConflict
	KindPolicy
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindPolicy:
		return "policy_violation"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage returns err wrapped as a StorageError unless it is nil or
// already carries a domain classification.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Invalid returns an input validation error carrying msg.
func Invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// KindOf reports the Kind of err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var se *StorageError
	switch {
	case errors.Is(err, ErrProviderNotFound),
		errors.Is(err, ErrClientNotFound),
		errors.Is(err, ErrSlotNotFound),
		errors.Is(err, ErrReservationNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidTransition):
		return KindInvalidInput
	case errors.Is(err, ErrSlotUnavailable),
		errors.Is(err, ErrReservationExpired),
		errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrProviderHasBookings),
		errors.Is(err, ErrClientHasReservations),
		errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrLeaseHeld):
		return KindConflict
	case errors.Is(err, ErrLeadTimeViolation):
		return KindPolicy
	case errors.As(err, &se):
		return KindStorage
	}
	return KindUnknown
}
