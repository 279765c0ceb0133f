package api

import (
	"time"

	"github.com/google/uuid"
)

type ReserveSlotRequest struct {
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"` // YYYY-MM-DD
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Mode        string `json:"mode"`
	RequesterID string `json:"requester_id"`
}

// ReserveSlotResponse carries the verification code in-body; delivering it
// out of band (SMS, email) is the caller's job.
type ReserveSlotResponse struct {
	LockID    uuid.UUID `json:"lock_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ConfirmReservationRequest struct {
	Code        string `json:"code"`
	RequesterID string `json:"requester_id"`
}

type CancelAppointmentRequest struct {
	ActorRole string `json:"actor_role"`
	Reason    string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	NewDate   string `json:"new_date"` // YYYY-MM-DD
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	ActorRole string `json:"actor_role"`
	Reason    string `json:"reason"`
}

type SlotResponse struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Mode      string `json:"mode"`
	Available bool   `json:"available"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	Date            string     `json:"date"`
	StartTime       string     `json:"start_time"`
	EndTime         string     `json:"end_time"`
	Mode            string     `json:"mode"`
	Fee             float64    `json:"fee"`
	Status          string     `json:"status"`
	BookingType     string     `json:"booking_type"`
	RescheduledFrom *uuid.UUID `json:"rescheduled_from,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type SweepResponse struct {
	Released int64 `json:"released"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
