package notify

import (
	"time"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

// Event is the payload fanned out to every subscriber of a provider. It is
// transient: brokers deliver it, nothing persists it.
type Event struct {
	Kind       string    `json:"kind"`
	ProviderID int64     `json:"providerId"`
	Patient    string    `json:"patient"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
}
