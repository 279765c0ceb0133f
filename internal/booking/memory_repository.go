package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded Repository with the same atomicity
// semantics as PgRepository: every insert-if-absent and compare-and-swap runs
// under one lock. Used by the test suite and the race simulator.
type MemoryRepository struct {
	mu           sync.Mutex
	locks        map[uuid.UUID]*SlotLock
	appointments map[uuid.UUID]*Appointment
	events       []EventLog

	// Now is swapped in tests so lazy expiry inside InsertLock follows the
	// same clock as the service under test.
	Now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		locks:        make(map[uuid.UUID]*SlotLock),
		appointments: make(map[uuid.UUID]*Appointment),
		Now:          time.Now,
	}
}

func (r *MemoryRepository) InsertLock(_ context.Context, lock *SlotLock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now()

	for _, l := range r.locks {
		if !l.Slot.Equal(lock.Slot) {
			continue
		}
		if l.Status == LockStatusLocked && !l.LockExpiresAt.After(now) {
			l.Status = LockStatusExpired
			l.UpdatedAt = now
			continue
		}
		if (l.Status == LockStatusLocked || l.Status == LockStatusConfirmed) && l.LockExpiresAt.After(now) {
			return ErrSlotUnavailable
		}
	}

	for _, a := range r.appointments {
		if a.Active() && a.Slot.Equal(lock.Slot) {
			return ErrSlotUnavailable
		}
	}

	stored := *lock
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.locks[lock.ID] = &stored

	lock.CreatedAt = now
	lock.UpdatedAt = now
	return nil
}

func (r *MemoryRepository) GetLockByID(_ context.Context, id uuid.UUID) (*SlotLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[id]
	if !ok {
		return nil, ErrLockNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *MemoryRepository) ConfirmLock(_ context.Context, lockID uuid.UUID, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[lockID]
	if !ok {
		return nil, ErrLockNotFound
	}
	if l.Status != LockStatusLocked {
		if l.Status == LockStatusExpired {
			return nil, ErrLockExpired
		}
		return nil, ErrInvalidState
	}

	for _, a := range r.appointments {
		if a.Active() && a.Slot.Equal(appt.Slot) {
			return nil, ErrSlotUnavailable
		}
	}

	now := r.Now()
	l.Status = LockStatusConfirmed
	l.UpdatedAt = now

	stored := *appt
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.appointments[appt.ID] = &stored

	cp := stored
	return &cp, nil
}

func (r *MemoryRepository) ExpireLock(_ context.Context, lockID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.locks[lockID]; ok && l.Status == LockStatusLocked {
		l.Status = LockStatusExpired
		l.UpdatedAt = r.Now()
	}
	return nil
}

func (r *MemoryRepository) ExpireOverdueLocks(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, l := range r.locks {
		if l.Status == LockStatusLocked && !l.LockExpiresAt.After(now) {
			l.Status = LockStatusExpired
			l.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) ActiveLocksForDate(_ context.Context, practitionerID uuid.UUID, date time.Time, now time.Time) ([]SlotLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []SlotLock
	for _, l := range r.locks {
		if l.Slot.PractitionerID != practitionerID || !l.Slot.Date.Equal(date) {
			continue
		}
		if (l.Status == LockStatusLocked || l.Status == LockStatusConfirmed) && l.LockExpiresAt.After(now) {
			result = append(result, *l)
		}
	}
	return result, nil
}

func (r *MemoryRepository) ActiveAppointmentsForDate(_ context.Context, practitionerID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Slot.PractitionerID == practitionerID && a.Slot.Date.Equal(date) && a.Active() {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, statuses []AppointmentStatus, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	match := func(s AppointmentStatus) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}

	var all []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID && match(a.Status) {
			all = append(all, *a)
		}
	}

	sortAppointments(all)

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) CancelAppointment(_ context.Context, id uuid.UUID, by ActorRole, at time.Time, reason string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || !a.Active() {
		return nil, ErrCannotCancel
	}

	a.Status = StatusCancelled
	a.CancelledBy = &by
	a.CancelledAt = &at
	a.CancelReason = &reason
	a.UpdatedAt = r.Now()

	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) Reschedule(_ context.Context, originalID uuid.UUID, replacement *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orig, ok := r.appointments[originalID]
	if !ok || !orig.Active() {
		return nil, ErrCannotReschedule
	}

	now := r.Now()

	for _, a := range r.appointments {
		if a.ID != originalID && a.Active() && a.Slot.Equal(replacement.Slot) {
			return nil, ErrSlotUnavailable
		}
	}
	for _, l := range r.locks {
		if l.Status == LockStatusLocked && l.LockExpiresAt.After(now) && l.Slot.Equal(replacement.Slot) {
			return nil, ErrSlotUnavailable
		}
	}
	orig.Status = StatusRescheduled
	orig.UpdatedAt = now

	stored := *replacement
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.appointments[replacement.ID] = &stored

	cp := stored
	return &cp, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

// newest date first, then by start time, matching the SQL ordering.
func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].Slot.Date.Equal(appts[j].Slot.Date) {
			return appts[i].Slot.Date.After(appts[j].Slot.Date)
		}
		return appts[i].Slot.Start < appts[j].Slot.Start
	})
}
