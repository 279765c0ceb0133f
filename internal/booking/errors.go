package booking

import "errors"

// Error taxonomy of the reservation core. Handlers map these to HTTP codes;
// none of them leaves the store in a partially written state.
var (
	// ErrSlotUnavailable: the slot is held by a live lock or an active
	// appointment. Recoverable; callers should re-query availability.
	ErrSlotUnavailable = errors.New("slot is not available")

	// ErrSlotNotInSchedule: the requested range does not match any template
	// window for that weekday.
	ErrSlotNotInSchedule = errors.New("slot is not in the practitioner's schedule")

	// ErrPastSlot: the slot's start time is not in the future.
	ErrPastSlot = errors.New("slot is in the past")

	ErrPractitionerInactive = errors.New("practitioner is not accepting bookings")

	// ErrInvalidCode: wrong verification code. Non-destructive; the caller
	// may retry until the lock expires.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrLockExpired / ErrCodeExpired are terminal for the lock; the caller
	// must start a new reservation.
	ErrLockExpired = errors.New("slot lock has expired")
	ErrCodeExpired = errors.New("verification code has expired")

	// ErrUnauthorized: the requester does not own the lock.
	ErrUnauthorized = errors.New("requester does not own this lock")

	// ErrInvalidState: operation attempted on a lock or appointment outside
	// its eligible state, e.g. a second confirmation of the same lock.
	ErrInvalidState = errors.New("invalid state for this operation")

	ErrCannotCancel     = errors.New("appointment cannot be cancelled")
	ErrCannotReschedule = errors.New("appointment cannot be rescheduled")

	ErrLockNotFound        = errors.New("slot lock not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)
