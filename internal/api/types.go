package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateProviderRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Specialty string `json:"specialty"`
}

type ProviderResponse struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Specialty string `json:"specialty"`
}

type AddAvailabilityRequest struct {
	StartTime time.Time `json:"start_time"`
}

type SlotResponse struct {
	ID         int64     `json:"id"`
	ProviderID int64     `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	Status     string    `json:"status"`
}

type BookAppointmentRequest struct {
	ProviderID       int64     `json:"provider_id"`
	PatientFirstName string    `json:"patient_first_name"`
	PatientLastName  string    `json:"patient_last_name"`
	StartTime        time.Time `json:"start_time"`
}

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID int64     `json:"provider_id"`
	Patient    string    `json:"patient"`
	StartTime  time.Time `json:"start_time"`
	Status     string    `json:"status"`
}

type CancelResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
