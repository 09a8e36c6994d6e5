package model

import "errors"

// Domain errors returned by the repository and ledger layers. Handlers map
// these to HTTP status codes; everything here is recoverable at the request
// boundary.
var (
	// ErrCapacityExceeded is returned when the requested party size exceeds
	// the remaining capacity of a slot. No partial booking is attempted.
	ErrCapacityExceeded = errors.New("not enough slots available")

	// ErrCapacityUnderflow is returned when a release would drive a slot's
	// reserved count below zero. This is an invariant violation, not a
	// user error.
	ErrCapacityUnderflow = errors.New("slot reserved count would underflow")

	// ErrPastDate is returned when a booking or cancellation targets a slot
	// whose date has already passed.
	ErrPastDate = errors.New("tour date has passed")

	// ErrExceedsMaxParticipants is returned when the party size exceeds the
	// tour-level participant ceiling.
	ErrExceedsMaxParticipants = errors.New("party size exceeds tour maximum participants")

	// ErrNotCancellable is returned when a booking is already in a terminal
	// state or its tour date has passed.
	ErrNotCancellable = errors.New("booking cannot be cancelled")

	// ErrPaymentAmountMismatch is returned when the gateway reports an amount
	// that differs from the amount pinned at payment creation. Requires
	// manual reconciliation, never auto-corrected.
	ErrPaymentAmountMismatch = errors.New("gateway amount does not match payment amount")

	// ErrConcurrencyConflict is returned after retries on a contended slot
	// are exhausted. Callers may retry the whole request.
	ErrConcurrencyConflict = errors.New("concurrent update conflict, retry the request")

	// ErrPaymentAlreadyOpen is returned when a booking already has a payment
	// that is pending, processing or completed.
	ErrPaymentAlreadyOpen = errors.New("booking already has an open payment")

	// ErrInvalidStatus is returned when a state transition is requested from
	// a status that does not allow it.
	ErrInvalidStatus = errors.New("invalid status for requested transition")

	// ErrSlotInUse is returned when deleting a slot that bookings still
	// reference.
	ErrSlotInUse = errors.New("slot is referenced by bookings")

	// ErrCapacityBelowReserved is returned when an operator reconfigures a
	// slot's total capacity below its current reserved count.
	ErrCapacityBelowReserved = errors.New("total capacity cannot drop below reserved count")

	// ErrDuplicateSlot is returned when creating a slot for a (tour, date)
	// pair that already has one.
	ErrDuplicateSlot = errors.New("slot already exists for tour and date")

	ErrSlotNotFound    = errors.New("availability slot not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrPaymentNotFound = errors.New("payment not found")
)
