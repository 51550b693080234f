package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrDuplicateSlot       = errors.New("provider already has a slot at that time")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrAppointmentConflict surfaces the store-level uniqueness backstop on
	// confirmed appointments.
	ErrAppointmentConflict = errors.New("conflicting confirmed appointment")
)

// Repository contains all store interactions needed by the service.
type Repository interface {
	CreateProvider(ctx context.Context, p Provider) (*Provider, error)
	GetProviderByID(ctx context.Context, id int64) (*Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)

	// CreateSlot returns ErrDuplicateSlot when a slot already exists for
	// (provider, start time).
	CreateSlot(ctx context.Context, providerID int64, startTime time.Time) (*AvailabilitySlot, error)
	GetSlot(ctx context.Context, providerID int64, startTime time.Time) (*AvailabilitySlot, error)
	ListSlotsByProvider(ctx context.Context, providerID int64) ([]AvailabilitySlot, error)
	// UpdateSlotStatus is a compare-and-set; ErrSlotNotFound when no slot
	// matches (provider, start time, from).
	UpdateSlotStatus(ctx context.Context, providerID int64, startTime time.Time, from, to SlotStatus) error

	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// For conflict checks
	HasConfirmedAppointmentAt(ctx context.Context, patient PatientName, startTime time.Time) (bool, error)

	ListAppointmentsByPatient(ctx context.Context, patient PatientName) ([]Appointment, error)
}
