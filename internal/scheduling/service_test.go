package scheduling_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicware/realtime-scheduling/internal/notify"
	"github.com/clinicware/realtime-scheduling/internal/scheduling"
)

// passLocker runs the critical section directly; lock contention is a Redis
// concern exercised elsewhere.
type passLocker struct{}

func (passLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRepo struct {
	mu             sync.Mutex
	nextProviderID int64
	nextSlotID     int64
	providers      map[int64]scheduling.Provider
	slots          map[string]*scheduling.AvailabilitySlot
	appointments   map[uuid.UUID]*scheduling.Appointment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		providers:    make(map[int64]scheduling.Provider),
		slots:        make(map[string]*scheduling.AvailabilitySlot),
		appointments: make(map[uuid.UUID]*scheduling.Appointment),
	}
}

func slotKey(providerID int64, ts time.Time) string {
	return fmt.Sprintf("%d:%d", providerID, ts.UTC().Unix())
}

func (r *fakeRepo) CreateProvider(_ context.Context, p scheduling.Provider) (*scheduling.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextProviderID++
	p.ID = r.nextProviderID
	r.providers[p.ID] = p
	return &p, nil
}

func (r *fakeRepo) GetProviderByID(_ context.Context, id int64) (*scheduling.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, scheduling.ErrProviderNotFound
	}
	return &p, nil
}

func (r *fakeRepo) ListProviders(_ context.Context) ([]scheduling.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]scheduling.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeRepo) CreateSlot(_ context.Context, providerID int64, startTime time.Time) (*scheduling.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey(providerID, startTime)
	if _, exists := r.slots[key]; exists {
		return nil, scheduling.ErrDuplicateSlot
	}

	r.nextSlotID++
	slot := &scheduling.AvailabilitySlot{
		ID:         r.nextSlotID,
		ProviderID: providerID,
		StartTime:  startTime,
		Status:     scheduling.SlotOpen,
	}
	r.slots[key] = slot

	copied := *slot
	return &copied, nil
}

func (r *fakeRepo) GetSlot(_ context.Context, providerID int64, startTime time.Time) (*scheduling.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[slotKey(providerID, startTime)]
	if !ok {
		return nil, scheduling.ErrSlotNotFound
	}
	copied := *slot
	return &copied, nil
}

func (r *fakeRepo) ListSlotsByProvider(_ context.Context, providerID int64) ([]scheduling.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []scheduling.AvailabilitySlot
	for _, slot := range r.slots {
		if slot.ProviderID == providerID {
			out = append(out, *slot)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateSlotStatus(_ context.Context, providerID int64, startTime time.Time, from, to scheduling.SlotStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[slotKey(providerID, startTime)]
	if !ok || slot.Status != from {
		return scheduling.ErrSlotNotFound
	}
	slot.Status = to
	return nil
}

func (r *fakeRepo) CreateAppointment(_ context.Context, a scheduling.Appointment) (*scheduling.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := a
	r.appointments[a.ID] = &stored

	copied := stored
	return &copied, nil
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, scheduling.ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to scheduling.AppointmentStatus) (*scheduling.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, scheduling.ErrAppointmentNotFound
	}
	a.Status = to

	copied := *a
	return &copied, nil
}

func (r *fakeRepo) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return scheduling.ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *fakeRepo) HasConfirmedAppointmentAt(_ context.Context, patient scheduling.PatientName, startTime time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appointments {
		if a.Patient == patient && a.StartTime.Equal(startTime) && a.Status == scheduling.StatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) ListAppointmentsByPatient(_ context.Context, patient scheduling.PatientName) ([]scheduling.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []scheduling.Appointment
	for _, a := range r.appointments {
		if a.Patient == patient {
			out = append(out, *a)
		}
	}
	// Newest first, matching the store contract.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartTime.After(out[i].StartTime) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// confirmedCount reports how many confirmed appointments exist for the
// (provider, time) pair.
func (r *fakeRepo) confirmedCount(providerID int64, ts time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, a := range r.appointments {
		if a.ProviderID == providerID && a.StartTime.Equal(ts) && a.Status == scheduling.StatusConfirmed {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*scheduling.Service, *fakeRepo, *notify.MemoryBroker) {
	t.Helper()

	repo := newFakeRepo()
	broker := notify.NewMemoryBroker(8, zerolog.Nop())
	t.Cleanup(func() { _ = broker.Close() })

	svc := scheduling.NewService(repo, broker, passLocker{}, zerolog.Nop())
	return svc, repo, broker
}

func mustRegisterProvider(t *testing.T, svc *scheduling.Service) *scheduling.Provider {
	t.Helper()
	p, err := svc.RegisterProvider(context.Background(), "Laura", "Méndez", "Cardiology")
	require.NoError(t, err)
	return p
}

var (
	slotTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ana      = scheduling.PatientName{FirstName: "Ana", LastName: "Gómez"}
)

func TestAddAvailability(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p := mustRegisterProvider(t, svc)

	slot, err := svc.AddAvailability(ctx, p.ID, slotTime)
	require.NoError(t, err)
	assert.Equal(t, scheduling.SlotOpen, slot.Status)
	assert.Equal(t, p.ID, slot.ProviderID)

	_, err = svc.AddAvailability(ctx, p.ID, slotTime)
	assert.ErrorIs(t, err, scheduling.ErrDuplicateSlot)

	_, err = svc.AddAvailability(ctx, 999, slotTime)
	assert.ErrorIs(t, err, scheduling.ErrProviderNotFound)
}

func TestBook_SuccessHoldsSlotAndNotifies(t *testing.T) {
	svc, repo, broker := newTestService(t)
	ctx := context.Background()

	p := mustRegisterProvider(t, svc)
	_, err := svc.AddAvailability(ctx, p.ID, slotTime)
	require.NoError(t, err)

	sub, err := broker.Subscribe(ctx, p.ID)
	require.NoError(t, err)
	defer broker.Unsubscribe(sub)

	appt, err := svc.Book(ctx, p.ID, ana, slotTime)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusConfirmed, appt.Status)
	assert.Equal(t, ana, appt.Patient)

	slot, err := repo.GetSlot(ctx, p.ID, slotTime)
	require.NoError(t, err)
	assert.Equal(t, scheduling.SlotHeld, slot.Status)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, notify.EventAppointmentBooked, ev.Kind)
		assert.Equal(t, p.ID, ev.ProviderID)
		assert.Equal(t, "Ana Gómez", ev.Patient)
		assert.True(t, ev.Timestamp.Equal(slotTime))
	case <-time.After(time.Second):
		t.Fatal("no booking event received")
	}
}

func TestBook_RejectsHeldSlot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	p := mustRegisterProvider(t, svc)
	_, err := svc.AddAvailability(ctx, p.ID, slotTime)
	require.NoError(t, err)

	_, err = svc.Book(ctx, p.ID, ana, slotTime)
	require.NoError(t, err)

	// Identical repeat attempt is rejected, and no second confirmed
	// appointment appears.
	_, err = svc.Book(ctx, p.ID, ana, slotTime)
	assert.ErrorIs(t, err, scheduling.ErrSlotUnavailable)
	assert.Equal(t, 1, repo.confirmedCount(p.ID, slotTime))

	_, err = svc.Book(ctx, p.ID, scheduling.PatientName{FirstName: "Luis", LastName: "Paz"}, slotTime)
	assert.ErrorIs(t, err, scheduling.ErrSlotUnavailable)
	assert.Equal(t, 1, repo.confirmedCount(p.ID, slotTime))
}

func TestBook_SlotNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	p := mustRegisterProvider(t, svc)

	_, err := svc.Book(context.Background(), p.ID, ana, slotTime)
	assert.ErrorIs(t, err, scheduling.ErrSlotNotFound)
}

func TestBook_PatientConflictAcrossProviders(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first := mustRegisterProvider(t, svc)
	second, err := svc.RegisterProvider(ctx, "Pedro", "Suárez", "Neurology")
	require.NoError(t, err)

	_, err = svc.AddAvailability(ctx, first.ID, slotTime)
	require.NoError(t, err)
	_, err = svc.AddAvailability(ctx, second.ID, slotTime)
	require.NoError(t, err)

	_, err = svc.Book(ctx, first.ID, ana, slotTime)
	require.NoError(t, err)

	// Same patient, same time, different provider.
	_, err = svc.Book(ctx, second.ID, ana, slotTime)
	assert.ErrorIs(t, err, scheduling.ErrPatientConflict)

	// The second provider's slot stays open for someone else.
	slots, err := svc.ListAvailability(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, scheduling.SlotOpen, slots[0].Status)
}

func TestCancel_ReopensSlotAndNotifies(t *testing.T) {
	svc, repo, broker := newTestService(t)
	ctx := context.Background()

	p := mustRegisterProvider(t, svc)
	_, err := svc.AddAvailability(ctx, p.ID, slotTime)
	require.NoError(t, err)

	appt, err := svc.Book(ctx, p.ID, ana, slotTime)
	require.NoError(t, err)

	sub, err := broker.Subscribe(ctx, p.ID)
	require.NoError(t, err)
	defer broker.Unsubscribe(sub)

	require.NoError(t, svc.Cancel(ctx, appt.ID))

	stored, err := repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, stored.Status)

	slot, err := repo.GetSlot(ctx, p.ID, slotTime)
	require.NoError(t, err)
	assert.Equal(t, scheduling.SlotOpen, slot.Status)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, notify.EventAppointmentCancelled, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no cancellation event received")
	}

	// Second cancel succeeds silently and emits nothing.
	require.NoError(t, svc.Cancel(ctx, appt.ID))
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event after idempotent cancel: %+v", ev)
	default:
	}
}

func TestCancel_UnknownAppointment(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, scheduling.ErrAppointmentNotFound)
}

func TestCancel_ToleratesMissingSlot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	p := mustRegisterProvider(t, svc)
	_, err := svc.AddAvailability(ctx, p.ID, slotTime)
	require.NoError(t, err)

	appt, err := svc.Book(ctx, p.ID, ana, slotTime)
	require.NoError(t, err)

	// Simulate the slot record having been removed since booking.
	repo.mu.Lock()
	delete(repo.slots, slotKey(p.ID, slotTime))
	repo.mu.Unlock()

	require.NoError(t, svc.Cancel(ctx, appt.ID))

	stored, err := repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, stored.Status)
}

func TestCancelThenRebook(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p := mustRegisterProvider(t, svc)
	_, err := svc.AddAvailability(ctx, p.ID, slotTime)
	require.NoError(t, err)

	appt, err := svc.Book(ctx, p.ID, ana, slotTime)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, appt.ID))

	// The reopened slot can be booked again, including by the same patient.
	rebooked, err := svc.Book(ctx, p.ID, ana, slotTime)
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, rebooked.ID)
}

func TestListByPatient_NewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p := mustRegisterProvider(t, svc)

	times := []time.Time{
		slotTime,
		slotTime.Add(2 * time.Hour),
		slotTime.Add(time.Hour),
	}
	for _, ts := range times {
		_, err := svc.AddAvailability(ctx, p.ID, ts)
		require.NoError(t, err)
		_, err = svc.Book(ctx, p.ID, ana, ts)
		require.NoError(t, err)
	}

	appointments, err := svc.ListByPatient(ctx, ana)
	require.NoError(t, err)
	require.Len(t, appointments, 3)

	for i := 1; i < len(appointments); i++ {
		assert.True(t, appointments[i].StartTime.Before(appointments[i-1].StartTime),
			"appointments must be ordered newest first")
	}
}
