package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medibook/slot-reservation/internal/availability"
)

type LockStatus string

const (
	LockStatusLocked    LockStatus = "locked"
	LockStatusConfirmed LockStatus = "confirmed"
	LockStatusExpired   LockStatus = "expired"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

type BookingType string

const (
	BookingTypeNew         BookingType = "new"
	BookingTypeRescheduled BookingType = "rescheduled"
)

type ActorRole string

const (
	RolePatient ActorRole = "patient"
	RoleDoctor  ActorRole = "doctor"
	RoleAdmin   ActorRole = "admin"
)

func (r ActorRole) Valid() bool {
	return r == RolePatient || r == RoleDoctor || r == RoleAdmin
}

// Slot is one concrete bookable unit: practitioner, calendar date, time range
// and consultation mode. Two slots are the same iff all five fields match.
type Slot struct {
	PractitionerID uuid.UUID
	Date           time.Time // calendar date, midnight UTC
	Start          string    // "HH:MM"
	End            string    // "HH:MM"
	Mode           availability.Mode
}

// Equal reports slot identity: all five fields must match. Dates compare by
// instant, not by representation.
func (s Slot) Equal(other Slot) bool {
	return s.PractitionerID == other.PractitionerID &&
		s.Date.Equal(other.Date) &&
		s.Start == other.Start &&
		s.End == other.End &&
		s.Mode == other.Mode
}

// Key renders the slot identity as a stable string, used for the Redis
// reserve mutex and the event log.
func (s Slot) Key() string {
	return fmt.Sprintf("%s:%s:%s-%s:%s", s.PractitionerID, s.Date.Format("2006-01-02"), s.Start, s.End, s.Mode)
}

// StartsAt combines the calendar date with the start-of-slot clock time.
func (s Slot) StartsAt() time.Time {
	mins, err := availability.ParseClock(s.Start)
	if err != nil {
		return s.Date
	}
	return s.Date.Add(time.Duration(mins) * time.Minute)
}

func (s Slot) Validate() error {
	if s.PractitionerID == uuid.Nil {
		return fmt.Errorf("practitioner id is required")
	}
	if s.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("invalid mode %q", s.Mode)
	}
	start, err := availability.ParseClock(s.Start)
	if err != nil {
		return err
	}
	end, err := availability.ParseClock(s.End)
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("slot start %s must be before end %s", s.Start, s.End)
	}
	return nil
}

// SlotLock is a provisional claim on one slot by one requester, pending
// verification-code confirmation.
type SlotLock struct {
	ID            uuid.UUID
	Slot          Slot
	RequesterID   uuid.UUID
	Code          string
	Fee           float64
	Status        LockStatus
	LockExpiresAt time.Time
	CodeExpiresAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Appointment is the durable committed booking.
type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	Slot            Slot
	Fee             float64
	Status          AppointmentStatus
	BookingType     BookingType
	RescheduledFrom *uuid.UUID

	CancelledBy  *ActorRole
	CancelledAt  *time.Time
	CancelReason *string

	OriginalDate     *time.Time
	OriginalStart    *string
	OriginalEnd      *string
	RescheduledBy    *ActorRole
	RescheduledAt    *time.Time
	RescheduleReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// ModifiableAt implements the cancel/reschedule eligibility rule: the
// appointment must be in the future, and either it was booked less than 24
// hours ago (grace window, regardless of how soon the appointment is) or at
// least 24 hours remain before it starts.
func (a *Appointment) ModifiableAt(now time.Time) bool {
	if !a.Active() {
		return false
	}
	startsAt := a.Slot.StartsAt()
	if !startsAt.After(now) {
		return false
	}
	if now.Sub(a.CreatedAt) < 24*time.Hour {
		return true
	}
	return startsAt.Sub(now) >= 24*time.Hour
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	LockID        *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AvailableSlot is what listing returns: a template window plus its live
// availability after lock and appointment state is applied.
type AvailableSlot struct {
	Start     string
	End       string
	Mode      availability.Mode
	Available bool
}
