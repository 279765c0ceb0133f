package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the reservation service.
//
// The two insert paths (InsertLock and the appointment insert inside
// ConfirmLock / Reschedule) must be atomic insert-if-absent operations: a
// conflicting active record makes the write fail with ErrSlotUnavailable,
// with no visible change. Application-level check-then-write is not enough.
type Repository interface {
	// InsertLock persists a new lock in a single atomic step. Stale locked
	// rows for the same slot are expired lazily inside the same transaction,
	// then the insert succeeds only if no live lock and no active appointment
	// holds the slot.
	InsertLock(ctx context.Context, lock *SlotLock) error
	GetLockByID(ctx context.Context, id uuid.UUID) (*SlotLock, error)

	// ConfirmLock transitions the lock locked->confirmed and creates the
	// appointment in one transaction. Exactly one concurrent caller wins;
	// losers observe ErrLockExpired or ErrInvalidState depending on what the
	// winner (or the sweeper) did to the lock.
	ConfirmLock(ctx context.Context, lockID uuid.UUID, appt *Appointment) (*Appointment, error)

	// ExpireLock flips a single lock locked->expired.
	ExpireLock(ctx context.Context, lockID uuid.UUID) error

	// ExpireOverdueLocks flips every locked row past its lock expiry and
	// returns how many were released. Idempotent.
	ExpireOverdueLocks(ctx context.Context, now time.Time) (int64, error)

	// Live slot state for availability listings and reschedule checks.
	ActiveLocksForDate(ctx context.Context, practitionerID uuid.UUID, date time.Time, now time.Time) ([]SlotLock, error)
	ActiveAppointmentsForDate(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, statuses []AppointmentStatus, limit, offset int) ([]Appointment, error)

	// CancelAppointment sets status=cancelled with audit fields, guarded by a
	// status compare-and-swap on pending/confirmed.
	CancelAppointment(ctx context.Context, id uuid.UUID, by ActorRole, at time.Time, reason string) (*Appointment, error)

	// Reschedule marks the original appointment rescheduled and inserts its
	// replacement in one transaction. A slot conflict on the replacement
	// yields ErrSlotUnavailable and leaves the original untouched.
	Reschedule(ctx context.Context, originalID uuid.UUID, replacement *Appointment) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
