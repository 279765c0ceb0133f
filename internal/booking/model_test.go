package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medibook/slot-reservation/internal/availability"
)

func TestSlotValidate(t *testing.T) {
	valid := Slot{
		PractitionerID: uuid.New(),
		Date:           time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		Start:          "10:00",
		End:            "10:30",
		Mode:           availability.ModeOnline,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid slot rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Slot)
	}{
		{"missing practitioner", func(s *Slot) { s.PractitionerID = uuid.Nil }},
		{"zero date", func(s *Slot) { s.Date = time.Time{} }},
		{"bad mode", func(s *Slot) { s.Mode = "phone" }},
		{"bad start", func(s *Slot) { s.Start = "10am" }},
		{"bad end", func(s *Slot) { s.End = "25:00" }},
		{"inverted range", func(s *Slot) { s.Start, s.End = "11:00", "10:00" }},
		{"empty range", func(s *Slot) { s.End = s.Start }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid
			tc.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSlotStartsAt(t *testing.T) {
	s := Slot{
		Date:  time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		Start: "14:30",
	}
	want := time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC)
	if got := s.StartsAt(); !got.Equal(want) {
		t.Errorf("StartsAt = %v, want %v", got, want)
	}
}

func TestSlotEqual(t *testing.T) {
	base := Slot{
		PractitionerID: uuid.New(),
		Date:           time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		Start:          "10:00",
		End:            "10:30",
		Mode:           availability.ModeOnline,
	}

	// Same instant in another zone is the same calendar slot.
	other := base
	other.Date = base.Date.In(time.FixedZone("X", 3600))
	if !base.Equal(other) {
		t.Error("same instant in a different zone should compare equal")
	}

	other = base
	other.Mode = availability.ModeInPerson
	if base.Equal(other) {
		t.Error("different mode should not compare equal")
	}
}

func TestAppointmentModifiableAt(t *testing.T) {
	booked := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	appt := func(startOffset time.Duration, status AppointmentStatus) *Appointment {
		start := booked.Add(startOffset)
		return &Appointment{
			Status: status,
			Slot: Slot{
				Date:  time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
				Start: start.Format("15:04"),
				End:   start.Add(30 * time.Minute).Format("15:04"),
			},
			CreatedAt: booked,
		}
	}

	cases := []struct {
		name string
		appt *Appointment
		now  time.Time
		want bool
	}{
		{"fresh booking, appointment soon", appt(2*time.Hour, StatusConfirmed), booked.Add(time.Hour), true},
		{"just inside the grace window", appt(30*time.Hour, StatusConfirmed), booked.Add(24*time.Hour - time.Minute), true},
		{"grace window closes at exactly 24h", appt(30*time.Hour, StatusConfirmed), booked.Add(24 * time.Hour), false},
		{"old booking, ample notice", appt(53*time.Hour, StatusConfirmed), booked.Add(25 * time.Hour), true},
		{"old booking, exactly 24h notice", appt(49*time.Hour, StatusConfirmed), booked.Add(25 * time.Hour), true},
		{"old booking, short notice", appt(29*time.Hour, StatusConfirmed), booked.Add(25 * time.Hour), false},
		{"appointment already started", appt(2*time.Hour, StatusConfirmed), booked.Add(2 * time.Hour), false},
		{"cancelled", appt(53*time.Hour, StatusCancelled), booked.Add(time.Hour), false},
		{"completed", appt(53*time.Hour, StatusCompleted), booked.Add(time.Hour), false},
		{"pending is still modifiable", appt(2*time.Hour, StatusPending), booked.Add(time.Hour), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.appt.ModifiableAt(tc.now); got != tc.want {
				t.Errorf("ModifiableAt = %v, want %v", got, tc.want)
			}
		})
	}
}
