package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const lockColumns = `id, practitioner_id, requester_id, slot_date, start_time, end_time, mode, code, fee, status, lock_expires_at, code_expires_at, created_at, updated_at`

func scanLock(row pgx.Row) (*SlotLock, error) {
	var l SlotLock

	err := row.Scan(
		&l.ID,
		&l.Slot.PractitionerID,
		&l.RequesterID,
		&l.Slot.Date,
		&l.Slot.Start,
		&l.Slot.End,
		&l.Slot.Mode,
		&l.Code,
		&l.Fee,
		&l.Status,
		&l.LockExpiresAt,
		&l.CodeExpiresAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLockNotFound
		}
		return nil, err
	}

	return &l, nil
}

const appointmentColumns = `id, patient_id, practitioner_id, slot_date, start_time, end_time, mode, fee, status, booking_type, rescheduled_from,
	cancelled_by, cancelled_at, cancel_reason,
	original_date, original_start, original_end, rescheduled_by, rescheduled_at, reschedule_reason,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancelledBy, rescheduledBy *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Slot.PractitionerID,
		&a.Slot.Date,
		&a.Slot.Start,
		&a.Slot.End,
		&a.Slot.Mode,
		&a.Fee,
		&a.Status,
		&a.BookingType,
		&a.RescheduledFrom,
		&cancelledBy,
		&a.CancelledAt,
		&a.CancelReason,
		&a.OriginalDate,
		&a.OriginalStart,
		&a.OriginalEnd,
		&rescheduledBy,
		&a.RescheduledAt,
		&a.RescheduleReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if cancelledBy != nil {
		role := ActorRole(*cancelledBy)
		a.CancelledBy = &role
	}
	if rescheduledBy != nil {
		role := ActorRole(*rescheduledBy)
		a.RescheduledBy = &role
	}

	return &a, nil
}

// InsertLock expires stale locked rows for the slot, then inserts the new
// lock if no live lock and no active appointment holds it. The partial
// unique index on (practitioner, date, start, end, mode) WHERE status =
// 'locked' is what makes concurrent inserts resolve to one winner.
func (r *PgRepository) InsertLock(ctx context.Context, lock *SlotLock) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin lock tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s := lock.Slot

	if _, err := tx.Exec(ctx, `
		UPDATE slot_locks
		SET status = 'expired', updated_at = now()
		WHERE practitioner_id = $1 AND slot_date = $2 AND start_time = $3 AND end_time = $4 AND mode = $5
		  AND status = 'locked'
		  AND lock_expires_at <= now()
	`, s.PractitionerID, s.Date, s.Start, s.End, s.Mode); err != nil {
		return fmt.Errorf("expire stale locks: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO slot_locks (id, practitioner_id, requester_id, slot_date, start_time, end_time, mode, code, fee, status, lock_expires_at, code_expires_at)
		SELECT $6, $1, $7, $2, $3, $4, $5, $8, $9, 'locked', $10, $11
		WHERE NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE practitioner_id = $1 AND slot_date = $2 AND start_time = $3 AND end_time = $4 AND mode = $5
			  AND status IN ('pending', 'confirmed')
		)
		AND NOT EXISTS (
			SELECT 1 FROM slot_locks
			WHERE practitioner_id = $1 AND slot_date = $2 AND start_time = $3 AND end_time = $4 AND mode = $5
			  AND status = 'confirmed'
			  AND lock_expires_at > now()
		)
		RETURNING created_at, updated_at
	`, s.PractitionerID, s.Date, s.Start, s.End, s.Mode,
		lock.ID, lock.RequesterID, lock.Code, lock.Fee, lock.LockExpiresAt, lock.CodeExpiresAt)

	if err := row.Scan(&lock.CreatedAt, &lock.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || uniqueViolation(err) {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("insert slot lock: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lock tx: %w", err)
	}

	return nil
}

func (r *PgRepository) GetLockByID(ctx context.Context, id uuid.UUID) (*SlotLock, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+lockColumns+`
		FROM slot_locks
		WHERE id = $1
	`, id)
	return scanLock(row)
}

// ConfirmLock flips the lock locked->confirmed and creates the appointment in
// one transaction. The compare-and-swap on status makes duplicate confirms
// lose; the appointments partial unique index backstops the slot invariant.
func (r *PgRepository) ConfirmLock(ctx context.Context, lockID uuid.UUID, appt *Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin confirm tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE slot_locks
		SET status = 'confirmed', updated_at = now()
		WHERE id = $1 AND status = 'locked'
	`, lockID)
	if err != nil {
		return nil, fmt.Errorf("confirm slot lock: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var status LockStatus
		err := tx.QueryRow(ctx, `SELECT status FROM slot_locks WHERE id = $1`, lockID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrLockNotFound
			}
			return nil, fmt.Errorf("read lock status: %w", err)
		}
		if status == LockStatusExpired {
			return nil, ErrLockExpired
		}
		return nil, ErrInvalidState
	}

	s := appt.Slot
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, practitioner_id, slot_date, start_time, end_time, mode, fee, status, booking_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, appt.ID, appt.PatientID, s.PractitionerID, s.Date, s.Start, s.End, s.Mode, appt.Fee, appt.Status, appt.BookingType)

	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		if uniqueViolation(err) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm tx: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) ExpireLock(ctx context.Context, lockID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE slot_locks
		SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'locked'
	`, lockID)
	if err != nil {
		return fmt.Errorf("expire slot lock: %w", err)
	}
	return nil
}

func (r *PgRepository) ExpireOverdueLocks(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slot_locks
		SET status = 'expired', updated_at = now()
		WHERE status = 'locked' AND lock_expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ActiveLocksForDate(ctx context.Context, practitionerID uuid.UUID, date time.Time, now time.Time) ([]SlotLock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+lockColumns+`
		FROM slot_locks
		WHERE practitioner_id = $1 AND slot_date = $2
		  AND status IN ('locked', 'confirmed')
		  AND lock_expires_at > $3
	`, practitionerID, date, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SlotLock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *l)
	}

	return result, rows.Err()
}

func (r *PgRepository) ActiveAppointmentsForDate(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1 AND slot_date = $2
		  AND status IN ('pending', 'confirmed')
	`, practitionerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, statuses []AppointmentStatus, limit, offset int) ([]Appointment, error) {
	var filter []string
	for _, s := range statuses {
		filter = append(filter, string(s))
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY slot_date DESC, start_time
		LIMIT $3 OFFSET $4
	`, patientID, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID, by ActorRole, at time.Time, reason string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_by = $2,
		    cancelled_at = $3,
		    cancel_reason = $4,
		    updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		RETURNING `+appointmentColumns+`
	`, id, string(by), at, reason)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrCannotCancel
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) Reschedule(ctx context.Context, originalID uuid.UUID, replacement *Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'rescheduled', updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`, originalID)
	if err != nil {
		return nil, fmt.Errorf("mark original rescheduled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrCannotReschedule
	}

	s := replacement.Slot
	var rescheduledBy *string
	if replacement.RescheduledBy != nil {
		v := string(*replacement.RescheduledBy)
		rescheduledBy = &v
	}

	// Same shape as InsertLock: the insert must lose to a live lock held by
	// someone else on the destination slot, not only to the appointments
	// unique index.
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, practitioner_id, slot_date, start_time, end_time, mode, fee, status, booking_type, rescheduled_from,
			original_date, original_start, original_end, rescheduled_by, rescheduled_at, reschedule_reason)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		WHERE NOT EXISTS (
			SELECT 1 FROM slot_locks
			WHERE practitioner_id = $3 AND slot_date = $4 AND start_time = $5 AND end_time = $6 AND mode = $7
			  AND status = 'locked'
			  AND lock_expires_at > now()
		)
		RETURNING created_at, updated_at
	`, replacement.ID, replacement.PatientID, s.PractitionerID, s.Date, s.Start, s.End, s.Mode,
		replacement.Fee, replacement.Status, replacement.BookingType, replacement.RescheduledFrom,
		replacement.OriginalDate, replacement.OriginalStart, replacement.OriginalEnd,
		rescheduledBy, replacement.RescheduledAt, replacement.RescheduleReason)

	if err := row.Scan(&replacement.CreatedAt, &replacement.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || uniqueViolation(err) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("insert rescheduled appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reschedule tx: %w", err)
	}

	return replacement, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, lock_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.LockID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
