package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medibook/slot-reservation/internal/availability"
	"github.com/medibook/slot-reservation/internal/config"
	redisclient "github.com/medibook/slot-reservation/internal/redis"
)

const (
	EventSlotLocked             = "SLOT_LOCKED"
	EventLockConfirmed          = "LOCK_CONFIRMED"
	EventLockExpired            = "LOCK_EXPIRED"
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

// Service runs the reservation protocol: lock, verify-and-confirm, cancel,
// reschedule, and the expiry sweep.
type Service struct {
	repo     Repository
	avail    availability.Repository
	schedule *availability.Schedule
	locker   redisclient.Locker
	cfg      config.Config
	log      zerolog.Logger

	// now is swapped in tests to control expiry and grace-window behavior.
	now func() time.Time
}

func NewService(repo Repository, avail availability.Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		avail:    avail,
		schedule: availability.NewSchedule(avail),
		locker:   locker,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// ListAvailableSlots combines the weekly template with live lock and
// appointment state. mode narrows the listing when non-nil.
func (s *Service) ListAvailableSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time, mode *availability.Mode) ([]AvailableSlot, error) {
	if _, err := s.avail.GetPractitionerByID(ctx, practitionerID); err != nil {
		return nil, err
	}

	day := midnightUTC(date)

	windows, err := s.schedule.SlotsForDate(ctx, practitionerID, day)
	if err != nil {
		return nil, fmt.Errorf("load template slots: %w", err)
	}

	now := s.now()
	locks, err := s.repo.ActiveLocksForDate(ctx, practitionerID, day, now)
	if err != nil {
		return nil, fmt.Errorf("load active locks: %w", err)
	}
	appts, err := s.repo.ActiveAppointmentsForDate(ctx, practitionerID, day)
	if err != nil {
		return nil, fmt.Errorf("load active appointments: %w", err)
	}

	taken := make(map[string]bool)
	for _, l := range locks {
		taken[l.Slot.Start+"|"+l.Slot.End+"|"+string(l.Slot.Mode)] = true
	}
	for _, a := range appts {
		taken[a.Slot.Start+"|"+a.Slot.End+"|"+string(a.Slot.Mode)] = true
	}

	var result []AvailableSlot
	for _, w := range windows {
		if mode != nil && w.Mode != *mode {
			continue
		}
		result = append(result, AvailableSlot{
			Start:     w.Start,
			End:       w.End,
			Mode:      w.Mode,
			Available: !taken[w.Start+"|"+w.End+"|"+string(w.Mode)],
		})
	}

	return result, nil
}

// ReserveSlot locks a slot for one requester and issues a verification code.
// The check-and-insert is atomic at the storage layer; the Redis mutex only
// shields the database from a thundering herd on popular slots.
func (s *Service) ReserveSlot(ctx context.Context, slot Slot, requesterID uuid.UUID) (*SlotLock, error) {
	slot.Date = midnightUTC(slot.Date)
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	if requesterID == uuid.Nil {
		return nil, fmt.Errorf("requester id is required")
	}

	practitioner, err := s.avail.GetPractitionerByID(ctx, slot.PractitionerID)
	if err != nil {
		return nil, err
	}
	if !practitioner.Active {
		return nil, ErrPractitionerInactive
	}

	now := s.now()
	if !slot.StartsAt().After(now) {
		return nil, ErrPastSlot
	}

	if err := s.slotInSchedule(ctx, slot); err != nil {
		return nil, err
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	lock := &SlotLock{
		ID:            uuid.New(),
		Slot:          slot,
		RequesterID:   requesterID,
		Code:          code,
		Fee:           practitioner.FeeFor(slot.Mode),
		Status:        LockStatusLocked,
		LockExpiresAt: now.Add(s.cfg.LockTTL),
		CodeExpiresAt: now.Add(s.cfg.CodeTTL),
	}

	err = s.locker.WithSlotMutex(ctx, slot.Key(), func(lockCtx context.Context) error {
		return s.repo.InsertLock(lockCtx, lock)
	})
	switch {
	case err == nil:
	case errors.Is(err, redisclient.ErrMutexNotAcquired):
		return nil, ErrSlotUnavailable
	case errors.Is(err, redisclient.ErrMutexUnavailable):
		// Redis being down costs throughput, not correctness: the insert's
		// uniqueness guard still picks a single winner.
		s.log.Warn().Err(err).Str("slot", slot.Key()).Msg("slot mutex unavailable, relying on storage guard")
		if err := s.repo.InsertLock(ctx, lock); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	s.logEvent(ctx, EventSlotLocked, nil, &lock.ID, map[string]any{
		"slot":         slot.Key(),
		"requester_id": requesterID.String(),
		"expires_at":   lock.LockExpiresAt,
	})

	return lock, nil
}

// ConfirmReservation verifies the code and commits the booking. The
// locked->confirmed transition and the appointment insert happen in one
// storage transaction, so concurrent confirms yield exactly one appointment.
func (s *Service) ConfirmReservation(ctx context.Context, lockID uuid.UUID, code string, requesterID uuid.UUID) (*Appointment, error) {
	lock, err := s.repo.GetLockByID(ctx, lockID)
	if err != nil {
		return nil, err
	}

	if lock.RequesterID != requesterID {
		return nil, ErrUnauthorized
	}

	switch lock.Status {
	case LockStatusLocked:
	case LockStatusExpired:
		return nil, ErrLockExpired
	default:
		return nil, ErrInvalidState
	}

	now := s.now()
	if !now.Before(lock.LockExpiresAt) {
		if err := s.repo.ExpireLock(ctx, lock.ID); err != nil {
			s.log.Error().Err(err).Stringer("lock_id", lock.ID).Msg("failed to expire overdue lock during confirm")
		}
		s.logEvent(ctx, EventLockExpired, nil, &lock.ID, map[string]any{"reason": "confirm_after_expiry"})
		return nil, ErrLockExpired
	}
	if !now.Before(lock.CodeExpiresAt) {
		return nil, ErrCodeExpired
	}
	if code != lock.Code {
		return nil, ErrInvalidCode
	}

	appt := &Appointment{
		ID:          uuid.New(),
		PatientID:   requesterID,
		Slot:        lock.Slot,
		Fee:         lock.Fee,
		Status:      StatusConfirmed,
		BookingType: BookingTypeNew,
	}

	created, err := s.repo.ConfirmLock(ctx, lock.ID, appt)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventLockConfirmed, &created.ID, &lock.ID, map[string]any{})
	s.logEvent(ctx, EventAppointmentBooked, &created.ID, &lock.ID, map[string]any{
		"slot": created.Slot.Key(),
		"fee":  created.Fee,
	})

	return created, nil
}

// CancelAppointment applies the eligibility rule and cancels. The status
// compare-and-swap in the repository keeps racing cancels idempotent at one.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, role ActorRole, reason string) (*Appointment, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid actor role %q", role)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !appt.ModifiableAt(now) {
		return nil, ErrCannotCancel
	}

	cancelled, err := s.repo.CancelAppointment(ctx, id, role, now, reason)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventAppointmentCancelled, &cancelled.ID, nil, map[string]any{
		"by":     string(role),
		"reason": reason,
	})

	return cancelled, nil
}

// RescheduleAppointment moves a booking to a new slot. The original record
// keeps the full history with status=rescheduled; the replacement carries the
// original slot in its audit fields and the fee snapshotted at lock time.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, newDate time.Time, newStart, newEnd string, role ActorRole, reason string) (*Appointment, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid actor role %q", role)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !appt.ModifiableAt(now) {
		return nil, ErrCannotReschedule
	}

	newSlot := Slot{
		PractitionerID: appt.Slot.PractitionerID,
		Date:           midnightUTC(newDate),
		Start:          newStart,
		End:            newEnd,
		Mode:           appt.Slot.Mode,
	}
	if err := newSlot.Validate(); err != nil {
		return nil, err
	}
	if !newSlot.StartsAt().After(now) {
		return nil, ErrPastSlot
	}
	if err := s.slotInSchedule(ctx, newSlot); err != nil {
		return nil, err
	}
	if err := s.destinationFree(ctx, newSlot, appt.ID, now); err != nil {
		return nil, err
	}

	originalDate := appt.Slot.Date
	originalStart := appt.Slot.Start
	originalEnd := appt.Slot.End

	replacement := &Appointment{
		ID:               uuid.New(),
		PatientID:        appt.PatientID,
		Slot:             newSlot,
		Fee:              appt.Fee,
		Status:           StatusConfirmed,
		BookingType:      BookingTypeRescheduled,
		RescheduledFrom:  &appt.ID,
		OriginalDate:     &originalDate,
		OriginalStart:    &originalStart,
		OriginalEnd:      &originalEnd,
		RescheduledBy:    &role,
		RescheduledAt:    &now,
		RescheduleReason: &reason,
	}

	created, err := s.repo.Reschedule(ctx, appt.ID, replacement)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventAppointmentRescheduled, &created.ID, nil, map[string]any{
		"from": appt.Slot.Key(),
		"to":   newSlot.Key(),
		"by":   string(role),
	})

	return created, nil
}

// SweepExpiredLocks is called by the expiry worker and the internal sweep
// endpoint. Idempotent; safe to run concurrently with confirmations.
func (s *Service) SweepExpiredLocks(ctx context.Context) (int64, error) {
	released, err := s.repo.ExpireOverdueLocks(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired locks: %w", err)
	}
	if released > 0 {
		s.log.Info().Int64("released", released).Msg("released expired slot locks")
	}
	return released, nil
}

// GetAppointment retrieves a single appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListAppointmentsByPatient lists a patient's appointments, newest first.
// status accepts a concrete status, "booked" for pending+confirmed, or ""
// for everything.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var statuses []AppointmentStatus
	switch status {
	case "":
	case "booked":
		statuses = []AppointmentStatus{StatusPending, StatusConfirmed}
	default:
		statuses = []AppointmentStatus{AppointmentStatus(status)}
	}

	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID, statuses, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// slotInSchedule requires an exact template window match for the slot's
// weekday, range and mode.
func (s *Service) slotInSchedule(ctx context.Context, slot Slot) error {
	windows, err := s.schedule.SlotsForDate(ctx, slot.PractitionerID, slot.Date)
	if err != nil {
		return fmt.Errorf("load template slots: %w", err)
	}
	for _, w := range windows {
		if w.Start == slot.Start && w.End == slot.End && w.Mode == slot.Mode {
			return nil
		}
	}
	return ErrSlotNotInSchedule
}

// destinationFree is the TryLock-equivalent availability check used by
// reschedule: any live lock or active appointment on the destination slot,
// other than the appointment being moved, blocks the move. The unique index
// inside Repository.Reschedule backstops this under races.
func (s *Service) destinationFree(ctx context.Context, slot Slot, excludeAppointment uuid.UUID, now time.Time) error {
	locks, err := s.repo.ActiveLocksForDate(ctx, slot.PractitionerID, slot.Date, now)
	if err != nil {
		return fmt.Errorf("load active locks: %w", err)
	}
	for _, l := range locks {
		if l.Slot.Equal(slot) {
			return ErrSlotUnavailable
		}
	}

	appts, err := s.repo.ActiveAppointmentsForDate(ctx, slot.PractitionerID, slot.Date)
	if err != nil {
		return fmt.Errorf("load active appointments: %w", err)
	}
	for _, a := range appts {
		if a.ID != excludeAppointment && a.Slot.Equal(slot) {
			return ErrSlotUnavailable
		}
	}

	return nil
}

func (s *Service) logEvent(ctx context.Context, eventType string, appointmentID, lockID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		LockID:        lockID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to insert event log")
	}
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
