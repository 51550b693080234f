package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.Specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.StartTime,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.Patient.FirstName,
		&a.Patient.LastName,
		&a.StartTime,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Interface methods

func (r *PgRepository) CreateProvider(ctx context.Context, p Provider) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO providers (first_name, last_name, specialty, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, first_name, last_name, specialty, created_at, updated_at
	`, p.FirstName, p.LastName, p.Specialty)

	return scanProvider(row)
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id int64) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)

	return scanProvider(row)
}

func (r *PgRepository) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, first_name, last_name, specialty, created_at, updated_at
		FROM providers
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}

	return providers, rows.Err()
}

func (r *PgRepository) CreateSlot(ctx context.Context, providerID int64, startTime time.Time) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_slots (provider_id, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, provider_id, start_time, status, created_at, updated_at
	`, providerID, startTime, SlotOpen)

	slot, err := scanSlot(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlot
		}
		return nil, err
	}

	return slot, nil
}

func (r *PgRepository) GetSlot(ctx context.Context, providerID int64, startTime time.Time) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, start_time, status, created_at, updated_at
		FROM availability_slots
		WHERE provider_id = $1 AND start_time = $2
	`, providerID, startTime)

	return scanSlot(row)
}

func (r *PgRepository) ListSlotsByProvider(ctx context.Context, providerID int64) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, start_time, status, created_at, updated_at
		FROM availability_slots
		WHERE provider_id = $1
		ORDER BY start_time ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []AvailabilitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}

	return slots, rows.Err()
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, providerID int64, startTime time.Time, from, to SlotStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET status = $4, updated_at = now()
		WHERE provider_id = $1 AND start_time = $2 AND status = $3
	`, providerID, startTime, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}

	return nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, patient_first_name, patient_last_name, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, provider_id, patient_first_name, patient_last_name, start_time, status, created_at, updated_at
	`, a.ID, a.ProviderID, a.Patient.FirstName, a.Patient.LastName, a.StartTime, a.Status)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAppointmentConflict
		}
		return nil, err
	}

	return appt, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, patient_first_name, patient_last_name, start_time, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING id, provider_id, patient_first_name, patient_last_name, start_time, status, created_at, updated_at
	`, id, from, to)

	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	return nil
}

func (r *PgRepository) HasConfirmedAppointmentAt(ctx context.Context, patient PatientName, startTime time.Time) (bool, error) {
	var exists bool

	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE patient_first_name = $1
			  AND patient_last_name = $2
			  AND start_time = $3
			  AND status = $4
		)
	`, patient.FirstName, patient.LastName, startTime, StatusConfirmed).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patient PatientName) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, patient_first_name, patient_last_name, start_time, status, created_at, updated_at
		FROM appointments
		WHERE patient_first_name = $1 AND patient_last_name = $2
		ORDER BY start_time DESC
	`, patient.FirstName, patient.LastName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, *a)
	}

	return appointments, rows.Err()
}
