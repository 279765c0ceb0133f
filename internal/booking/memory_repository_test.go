package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medibook/slot-reservation/internal/availability"
)

// The storage layer itself must refuse a reschedule onto a slot held by a
// live lock, with no reliance on the service's pre-flight check.
func TestRepositoryRescheduleBlockedByLiveLock(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: baseTime}
	repo := NewMemoryRepository()
	repo.Now = clock.Now

	practitionerID := uuid.New()
	source := Slot{
		PractitionerID: practitionerID,
		Date:           day(1),
		Start:          "10:00",
		End:            "10:30",
		Mode:           availability.ModeOnline,
	}
	dest := source
	dest.Start, dest.End = "14:00", "14:30"

	// A committed booking on the source slot.
	srcLock := &SlotLock{
		ID:            uuid.New(),
		Slot:          source,
		RequesterID:   uuid.New(),
		Code:          "111111",
		Status:        LockStatusLocked,
		LockExpiresAt: baseTime.Add(5 * time.Minute),
		CodeExpiresAt: baseTime.Add(10 * time.Minute),
	}
	if err := repo.InsertLock(ctx, srcLock); err != nil {
		t.Fatalf("InsertLock source: %v", err)
	}
	appt, err := repo.ConfirmLock(ctx, srcLock.ID, &Appointment{
		ID:          uuid.New(),
		PatientID:   srcLock.RequesterID,
		Slot:        source,
		Status:      StatusConfirmed,
		BookingType: BookingTypeNew,
	})
	if err != nil {
		t.Fatalf("ConfirmLock: %v", err)
	}

	// Someone else holds a live lock on the destination slot.
	destLock := &SlotLock{
		ID:            uuid.New(),
		Slot:          dest,
		RequesterID:   uuid.New(),
		Code:          "222222",
		Status:        LockStatusLocked,
		LockExpiresAt: baseTime.Add(5 * time.Minute),
		CodeExpiresAt: baseTime.Add(10 * time.Minute),
	}
	if err := repo.InsertLock(ctx, destLock); err != nil {
		t.Fatalf("InsertLock destination: %v", err)
	}

	_, err = repo.Reschedule(ctx, appt.ID, &Appointment{
		ID:              uuid.New(),
		PatientID:       appt.PatientID,
		Slot:            dest,
		Status:          StatusConfirmed,
		BookingType:     BookingTypeRescheduled,
		RescheduledFrom: &appt.ID,
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("err = %v, want ErrSlotUnavailable", err)
	}

	// The original booking must be untouched, and the lock holder must still
	// be able to confirm.
	orig, err := repo.GetAppointmentByID(ctx, appt.ID)
	if err != nil {
		t.Fatalf("GetAppointmentByID: %v", err)
	}
	if orig.Status != StatusConfirmed {
		t.Errorf("original status = %s, want confirmed", orig.Status)
	}
	if _, err := repo.ConfirmLock(ctx, destLock.ID, &Appointment{
		ID:          uuid.New(),
		PatientID:   destLock.RequesterID,
		Slot:        dest,
		Status:      StatusConfirmed,
		BookingType: BookingTypeNew,
	}); err != nil {
		t.Fatalf("lock holder's confirm after failed reschedule: %v", err)
	}

	// Once the destination lock has expired the move goes through.
	expiredDest := dest
	expiredDest.Start, expiredDest.End = "11:00", "11:30"
	staleLock := &SlotLock{
		ID:            uuid.New(),
		Slot:          expiredDest,
		RequesterID:   uuid.New(),
		Code:          "333333",
		Status:        LockStatusLocked,
		LockExpiresAt: baseTime.Add(5 * time.Minute),
		CodeExpiresAt: baseTime.Add(10 * time.Minute),
	}
	if err := repo.InsertLock(ctx, staleLock); err != nil {
		t.Fatalf("InsertLock stale: %v", err)
	}
	clock.Advance(6 * time.Minute)

	if _, err := repo.Reschedule(ctx, appt.ID, &Appointment{
		ID:              uuid.New(),
		PatientID:       appt.PatientID,
		Slot:            expiredDest,
		Status:          StatusConfirmed,
		BookingType:     BookingTypeRescheduled,
		RescheduledFrom: &appt.ID,
	}); err != nil {
		t.Fatalf("Reschedule past an expired lock: %v", err)
	}
}
