package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicware/realtime-scheduling/internal/notify"
	redisclient "github.com/clinicware/realtime-scheduling/internal/redis"
)

var (
	ErrPatientConflict  = errors.New("patient already has a confirmed appointment at that time")
	ErrSlotUnavailable  = errors.New("slot is not open")
	ErrBookingContended = errors.New("slot is currently being booked, please retry")
)

// Service is the scheduling engine. It validates booking invariants against
// the store, mutates slot and appointment state, and emits a notification
// through the broker on every successful state change. Notification is
// best-effort: a committed booking or cancellation is never rolled back
// because its event failed to publish.
type Service struct {
	repo   Repository
	broker notify.Broker
	locker redisclient.Locker
	log    zerolog.Logger
}

func NewService(repo Repository, broker notify.Broker, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		broker: broker,
		locker: locker,
		log:    log.With().Str("component", "scheduling").Logger(),
	}
}

func (s *Service) RegisterProvider(ctx context.Context, firstName, lastName, specialty string) (*Provider, error) {
	p, err := s.repo.CreateProvider(ctx, Provider{
		FirstName: firstName,
		LastName:  lastName,
		Specialty: specialty,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	return p, nil
}

func (s *Service) ListProviders(ctx context.Context) ([]Provider, error) {
	providers, err := s.repo.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}

// AddAvailability creates an open slot for the provider. At most one slot
// may exist per (provider, start time); a duplicate is rejected.
func (s *Service) AddAvailability(ctx context.Context, providerID int64, startTime time.Time) (*AvailabilitySlot, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	slot, err := s.repo.CreateSlot(ctx, providerID, startTime)
	if err != nil {
		if errors.Is(err, ErrDuplicateSlot) {
			return nil, err
		}
		return nil, fmt.Errorf("create slot: %w", err)
	}

	return slot, nil
}

func (s *Service) ListAvailability(ctx context.Context, providerID int64) ([]AvailabilitySlot, error) {
	slots, err := s.repo.ListSlotsByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// Book reserves the provider's slot at startTime for the patient. Checks run
// in order: patient conflict, slot existence, slot open. The check-then-act
// sequence holds a lock per patient identity and per slot so concurrent
// attempts against the same slot or the same patient serialize instead of
// double-booking.
func (s *Service) Book(ctx context.Context, providerID int64, patient PatientName, startTime time.Time) (*Appointment, error) {
	var created *Appointment

	err := s.locker.WithLock(ctx, patientLockKey(patient, startTime), func(ctx context.Context) error {
		conflict, err := s.repo.HasConfirmedAppointmentAt(ctx, patient, startTime)
		if err != nil {
			return fmt.Errorf("check patient conflict: %w", err)
		}
		if conflict {
			return ErrPatientConflict
		}

		return s.locker.WithLock(ctx, slotLockKey(providerID, startTime), func(ctx context.Context) error {
			slot, err := s.repo.GetSlot(ctx, providerID, startTime)
			if err != nil {
				if errors.Is(err, ErrSlotNotFound) {
					return err
				}
				return fmt.Errorf("load slot: %w", err)
			}
			if slot.Status != SlotOpen {
				return ErrSlotUnavailable
			}

			appt, err := s.repo.CreateAppointment(ctx, Appointment{
				ID:         uuid.New(),
				ProviderID: providerID,
				Patient:    patient,
				StartTime:  startTime,
				Status:     StatusConfirmed,
			})
			if err != nil {
				if errors.Is(err, ErrAppointmentConflict) {
					// The store's uniqueness backstop fired under us.
					return ErrSlotUnavailable
				}
				return fmt.Errorf("create appointment: %w", err)
			}

			if err := s.repo.UpdateSlotStatus(ctx, providerID, startTime, SlotOpen, SlotHeld); err != nil {
				return fmt.Errorf("hold slot: %w", err)
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.publish(ctx, notify.EventAppointmentBooked, created, "New appointment booked")

	return created, nil
}

// Cancel moves the appointment to cancelled and returns its slot to open.
// Cancelling an already-cancelled appointment succeeds without effect and
// emits no event.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == StatusCancelled {
		return nil
	}

	cancelled, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusConfirmed, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// A concurrent cancel won the compare-and-set.
			s.log.Debug().Stringer("appointment_id", id).Msg("cancel raced, already cancelled")
			return nil
		}
		return fmt.Errorf("cancel appointment: %w", err)
	}

	// The slot may have been removed since booking; its absence is tolerated.
	if err := s.repo.UpdateSlotStatus(ctx, appt.ProviderID, appt.StartTime, SlotHeld, SlotOpen); err != nil && !errors.Is(err, ErrSlotNotFound) {
		s.log.Warn().Err(err).
			Int64("provider_id", appt.ProviderID).
			Time("start_time", appt.StartTime).
			Msg("failed to reopen slot after cancellation")
	}

	s.publish(ctx, notify.EventAppointmentCancelled, cancelled, "Appointment cancelled by the patient")

	return nil
}

// ListByPatient returns the patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patient PatientName) ([]Appointment, error) {
	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patient)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) publish(ctx context.Context, kind string, appt *Appointment, message string) {
	ev := notify.Event{
		Kind:       kind,
		ProviderID: appt.ProviderID,
		Patient:    appt.Patient.Display(),
		Timestamp:  appt.StartTime,
		Message:    message,
	}

	if err := s.broker.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("kind", kind).
			Int64("provider_id", appt.ProviderID).
			Msg("notification publish failed")
	}
}

func slotLockKey(providerID int64, startTime time.Time) string {
	return fmt.Sprintf("book:slot:%d:%d", providerID, startTime.UTC().Unix())
}

func patientLockKey(patient PatientName, startTime time.Time) string {
	return fmt.Sprintf("book:patient:%s|%s:%d",
		strings.ToLower(patient.FirstName),
		strings.ToLower(patient.LastName),
		startTime.UTC().Unix(),
	)
}
