package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medibook/slot-reservation/internal/availability"
	"github.com/medibook/slot-reservation/internal/booking"
	"github.com/medibook/slot-reservation/internal/config"
)

type passLocker struct{}

func (passLocker) WithSlotMutex(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testServer struct {
	router         http.Handler
	practitionerID uuid.UUID
	date           string // a date two days out, covered by the template
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := booking.NewMemoryRepository()
	avail := availability.NewMemoryRepository()

	practitionerID := uuid.New()
	avail.AddPractitioner(availability.Practitioner{
		ID:          practitionerID,
		Name:        "Dr. Osei",
		FeeOnline:   45,
		FeeInPerson: 70,
		Active:      true,
	})

	var rules []availability.Rule
	for weekday := time.Sunday; weekday <= time.Saturday; weekday++ {
		rules = append(rules,
			availability.Rule{Weekday: weekday, Start: "10:00", End: "10:30", Mode: availability.ModeOnline},
			availability.Rule{Weekday: weekday, Start: "10:30", End: "11:00", Mode: availability.ModeOnline},
			availability.Rule{Weekday: weekday, Start: "15:00", End: "15:30", Mode: availability.ModeInPerson},
		)
	}
	if err := avail.ReplaceWeeklyTemplate(context.Background(), practitionerID, rules); err != nil {
		t.Fatalf("seed template: %v", err)
	}

	cfg := config.Config{
		LockTTL: 5 * time.Minute,
		CodeTTL: 10 * time.Minute,
	}
	svc := booking.NewService(repo, avail, passLocker{}, cfg, zerolog.Nop())

	router := NewRouter(RouterConfig{
		Service: svc,
		Logger:  zerolog.Nop(),
	})

	return &testServer{
		router:         router,
		practitionerID: practitionerID,
		date:           time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02"),
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (ts *testServer) reserve(t *testing.T, start, end, mode string, requesterID uuid.UUID) ReserveSlotResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/reservations", ReserveSlotRequest{
		DoctorID:    ts.practitionerID.String(),
		Date:        ts.date,
		StartTime:   start,
		EndTime:     end,
		Mode:        mode,
		RequesterID: requesterID.String(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reserve status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[ReserveSlotResponse](t, rec)
}

func (ts *testServer) book(t *testing.T, start, end, mode string, patientID uuid.UUID) AppointmentResponse {
	t.Helper()
	res := ts.reserve(t, start, end, mode, patientID)
	rec := ts.do(t, http.MethodPost, "/reservations/"+res.LockID.String()+"/confirm", ConfirmReservationRequest{
		Code:        res.Code,
		RequesterID: patientID.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[AppointmentResponse](t, rec)
}

func TestReservationFlow(t *testing.T) {
	ts := newTestServer(t)
	patientID := uuid.New()

	slotsPath := fmt.Sprintf("/practitioners/%s/slots?date=%s", ts.practitionerID, ts.date)

	rec := ts.do(t, http.MethodGet, slotsPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list slots status = %d", rec.Code)
	}
	slots := decode[[]SlotResponse](t, rec)
	if len(slots) != 3 {
		t.Fatalf("slots = %d, want 3 template windows", len(slots))
	}
	for _, s := range slots {
		if !s.Available {
			t.Errorf("window %s should start out available", s.StartTime)
		}
	}

	res := ts.reserve(t, "10:00", "10:30", "online", patientID)
	if res.Code == "" || res.LockID == uuid.Nil {
		t.Fatal("reserve response missing lock id or code")
	}

	rec = ts.do(t, http.MethodGet, slotsPath, nil)
	for _, s := range decode[[]SlotResponse](t, rec) {
		if s.StartTime == "10:00" && s.Mode == "online" && s.Available {
			t.Error("locked window still listed as available")
		}
	}

	rec = ts.do(t, http.MethodPost, "/reservations/"+res.LockID.String()+"/confirm", ConfirmReservationRequest{
		Code:        res.Code,
		RequesterID: patientID.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
	appt := decode[AppointmentResponse](t, rec)
	if appt.Status != "confirmed" {
		t.Errorf("status = %s, want confirmed", appt.Status)
	}
	if appt.Fee != 45 {
		t.Errorf("fee = %v, want 45", appt.Fee)
	}

	rec = ts.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get appointment status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", CancelAppointmentRequest{
		ActorRole: "patient",
		Reason:    "changed plans",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[AppointmentResponse](t, rec); got.Status != "cancelled" {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	ts := newTestServer(t)
	patientID := uuid.New()
	appt := ts.book(t, "10:00", "10:30", "online", patientID)

	rec := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/reschedule", RescheduleAppointmentRequest{
		NewDate:   ts.date,
		StartTime: "10:30",
		EndTime:   "11:00",
		ActorRole: "patient",
		Reason:    "earlier works better",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule status = %d, body %s", rec.Code, rec.Body.String())
	}
	moved := decode[AppointmentResponse](t, rec)
	if moved.BookingType != "rescheduled" {
		t.Errorf("booking type = %s, want rescheduled", moved.BookingType)
	}
	if moved.RescheduledFrom == nil || *moved.RescheduledFrom != appt.ID {
		t.Errorf("rescheduled_from = %v, want %s", moved.RescheduledFrom, appt.ID)
	}
	if moved.StartTime != "10:30" {
		t.Errorf("start = %s, want 10:30", moved.StartTime)
	}
}

func TestListAppointmentsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	patientID := uuid.New()
	ts.book(t, "10:00", "10:30", "online", patientID)
	ts.book(t, "15:00", "15:30", "in-person", patientID)

	rec := ts.do(t, http.MethodGet, "/appointments?patient_id="+patientID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	appts := decode[[]AppointmentResponse](t, rec)
	if len(appts) != 2 {
		t.Fatalf("appointments = %d, want 2", len(appts))
	}

	rec = ts.do(t, http.MethodGet, "/appointments?patient_id=not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad patient_id status = %d, want 400", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	patientID := uuid.New()

	expectError := func(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
		t.Helper()
		if rec.Code != status {
			t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
		}
		if got := decode[ErrorResponse](t, rec); got.Error != code {
			t.Errorf("error = %q, want %q", got.Error, code)
		}
	}

	t.Run("conflicting reservation", func(t *testing.T) {
		ts.reserve(t, "10:00", "10:30", "online", patientID)
		rec := ts.do(t, http.MethodPost, "/reservations", ReserveSlotRequest{
			DoctorID:    ts.practitionerID.String(),
			Date:        ts.date,
			StartTime:   "10:00",
			EndTime:     "10:30",
			Mode:        "online",
			RequesterID: uuid.NewString(),
		})
		expectError(t, rec, http.StatusConflict, "slot_unavailable")
	})

	t.Run("slot outside template", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/reservations", ReserveSlotRequest{
			DoctorID:    ts.practitionerID.String(),
			Date:        ts.date,
			StartTime:   "12:00",
			EndTime:     "12:30",
			Mode:        "online",
			RequesterID: uuid.NewString(),
		})
		expectError(t, rec, http.StatusBadRequest, "slot_not_in_schedule")
	})

	t.Run("unknown practitioner", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/reservations", ReserveSlotRequest{
			DoctorID:    uuid.NewString(),
			Date:        ts.date,
			StartTime:   "10:00",
			EndTime:     "10:30",
			Mode:        "online",
			RequesterID: uuid.NewString(),
		})
		expectError(t, rec, http.StatusNotFound, "practitioner_not_found")
	})

	t.Run("wrong verification code", func(t *testing.T) {
		res := ts.reserve(t, "10:30", "11:00", "online", patientID)
		wrong := "000000"
		if res.Code == wrong {
			wrong = "000001"
		}
		rec := ts.do(t, http.MethodPost, "/reservations/"+res.LockID.String()+"/confirm", ConfirmReservationRequest{
			Code:        wrong,
			RequesterID: patientID.String(),
		})
		expectError(t, rec, http.StatusBadRequest, "invalid_code")
	})

	t.Run("confirm by a different requester", func(t *testing.T) {
		res := ts.reserve(t, "15:00", "15:30", "in-person", patientID)
		rec := ts.do(t, http.MethodPost, "/reservations/"+res.LockID.String()+"/confirm", ConfirmReservationRequest{
			Code:        res.Code,
			RequesterID: uuid.NewString(),
		})
		expectError(t, rec, http.StatusForbidden, "unauthorized")
	})

	t.Run("unknown lock", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/reservations/"+uuid.NewString()+"/confirm", ConfirmReservationRequest{
			Code:        "123456",
			RequesterID: uuid.NewString(),
		})
		expectError(t, rec, http.StatusNotFound, "lock_not_found")
	})

	t.Run("unknown appointment", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
		expectError(t, rec, http.StatusNotFound, "appointment_not_found")
	})

	t.Run("malformed ids", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
		expectError(t, rec, http.StatusBadRequest, "invalid_appointment_id")
	})

	t.Run("invalid actor role", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", CancelAppointmentRequest{
			ActorRole: "robot",
		})
		expectError(t, rec, http.StatusBadRequest, "invalid_actor_role")
	})
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}

	req := httptest.NewRequest(http.MethodGet, "/appointments/not-a-uuid", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Errorf("X-Request-ID = %q, want the caller's id echoed", got)
	}
}
