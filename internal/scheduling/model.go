package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	// StatusPending and StatusFinalized are reserved for future flows; no
	// transition into or out of them is implemented.
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusFinalized AppointmentStatus = "finalized"
)

type SlotStatus string

const (
	SlotOpen SlotStatus = "open"
	SlotHeld SlotStatus = "held"
)

type Provider struct {
	ID        int64
	FirstName string
	LastName  string
	Specialty string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilitySlot is one bookable provider opening. At most one slot exists
// per (provider, start time) pair.
type AvailabilitySlot struct {
	ID         int64
	ProviderID int64
	StartTime  time.Time
	Status     SlotStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PatientName identifies a patient across providers. Two appointments with
// the same name tuple belong to the same patient.
type PatientName struct {
	FirstName string
	LastName  string
}

func (p PatientName) Display() string {
	return fmt.Sprintf("%s %s", p.FirstName, p.LastName)
}

type Appointment struct {
	ID         uuid.UUID
	ProviderID int64
	Patient    PatientName
	StartTime  time.Time
	Status     AppointmentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
