package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/apperr"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/notify"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
	"github.com/hackgods/doctor-booking/internal/timeconv"
)

// memRepo mimics PgRepository, including the active (doctor, scheduled_at) unique index.
type memRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	events       []EventLog

	conflictChecks atomic.Int32
	failList       error
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:      map[uuid.UUID]Doctor{},
		patients:     map[uuid.UUID]Patient{},
		appointments: map[uuid.UUID]Appointment{},
	}
}

func (r *memRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.doctors[id]
	return ok, nil
}

func (r *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	p := r.patients[a.PatientID]
	return &AppointmentDetail{
		Appointment:  a,
		DoctorName:   r.doctors[a.DoctorID].Name,
		PatientName:  p.Name,
		PatientEmail: p.Email,
	}, nil
}

func (r *memRepo) ListActiveAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.conflictChecks.Add(1)
	if r.failList != nil {
		return nil, r.failList
	}
	return r.filter(func(a Appointment) bool {
		return a.DoctorID == doctorID && !a.ScheduledAt.Before(from) && !a.ScheduledAt.After(to) && !a.Status.IsTerminal()
	}), nil
}

func (r *memRepo) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.filter(func(a Appointment) bool {
		return a.DoctorID == doctorID && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to)
	}), nil
}

func (r *memRepo) ListUpcomingActive(ctx context.Context, from, to time.Time) ([]AppointmentDetail, error) {
	var out []AppointmentDetail
	for _, a := range r.filter(func(a Appointment) bool {
		return !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) && a.Status.IsActive()
	}) {
		d, _ := r.GetAppointmentDetail(ctx, a.ID)
		out = append(out, *d)
	}
	return out, nil
}

func (r *memRepo) filter(keep func(Appointment) bool) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (r *memRepo) insertLocked(appt Appointment) (*Appointment, error) {
	for _, a := range r.appointments {
		if a.DoctorID == appt.DoctorID && a.ScheduledAt.Equal(appt.ScheduledAt) && a.Status.IsActive() {
			return nil, ErrDuplicateSlot
		}
	}
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	r.appointments[appt.ID] = appt
	return &appt, nil
}

func (r *memRepo) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(appt)
}

func (r *memRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || !statusIn(a.Status, from) {
		return nil, ErrStatusChanged
	}
	a.Status = to
	r.appointments[id] = a
	return &a, nil
}

func (r *memRepo) RescheduleAppointment(ctx context.Context, oldID uuid.UUID, from []AppointmentStatus, replacement Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.appointments[oldID]
	if !ok || !statusIn(old.Status, from) {
		return nil, ErrStatusChanged
	}
	retired := old
	retired.Status = StatusRescheduled
	r.appointments[oldID] = retired

	created, err := r.insertLocked(replacement)
	if err != nil {
		r.appointments[oldID] = old
		return nil, err
	}
	return created, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

type windowStub map[time.Weekday][]availability.Window

func (w windowStub) GetActiveWindows(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]availability.Window, error) {
	return w[day], nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
	err     error
}

func (n *recordingNotifier) Notify(ctx context.Context, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

type busyLocker struct{ err error }

func (l busyLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	return l.err
}

// Monday 2025-01-06 07:00 local.
var testNow = time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *memRepo
	notifier *recordingNotifier
	svc      *Service
	doctor   Doctor
	patient  Patient
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()

	repo := newMemRepo()
	email := "pat@example.com"
	doctor := Doctor{ID: uuid.New(), Name: "Dr. Ada", ConsultationFee: 80}
	patient := Patient{ID: uuid.New(), Name: "Pat", Email: &email}
	repo.doctors[doctor.ID] = doctor
	repo.patients[patient.ID] = patient

	windows := windowStub{
		time.Monday: {{DoctorID: doctor.ID, DayOfWeek: time.Monday, StartTime: "09:00", EndTime: "17:00", IsActive: true}},
	}
	notifier := &recordingNotifier{}

	svc := NewService(repo, windows, locker, notifier, zap.NewNop(),
		WithClock(timeconv.FixedClock(testNow)),
	)

	return &fixture{repo: repo, notifier: notifier, svc: svc, doctor: doctor, patient: patient}
}

// at returns the UTC instant of a local hour on Monday 2025-01-06.
func at(hour int) time.Time {
	return timeconv.Platform.ToUTC(timeconv.Date{Year: 2025, Month: time.January, Day: 6}, hour, 0)
}

func (f *fixture) params(hour int) CreateParams {
	return CreateParams{PatientID: f.patient.ID, DoctorID: f.doctor.ID, ScheduledAt: at(hour)}
}

func TestCreateAppointment_Success(t *testing.T) {
	f := newFixture(t, nil)

	appt, err := f.svc.CreateAppointment(context.Background(), f.params(9))
	if err != nil {
		t.Fatalf("CreateAppointment returned error: %v", err)
	}
	f.svc.Wait()

	if appt.Status != StatusScheduled || appt.Type != TypeVideo {
		t.Fatalf("unexpected status/type: %s/%s", appt.Status, appt.Type)
	}
	if !appt.ScheduledAt.Equal(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 08:00 UTC, got %s", appt.ScheduledAt)
	}
	if appt.Fee != 80 || appt.DurationMinutes != 60 || appt.MeetingID == "" {
		t.Fatalf("unexpected appointment: %+v", appt)
	}

	if got := f.repo.eventTypes(); len(got) != 1 || got[0] != EventAppointmentCreated {
		t.Fatalf("expected one created event, got %v", got)
	}
	if len(f.notifier.notices) != 1 {
		t.Fatalf("expected one notice, got %d", len(f.notifier.notices))
	}
	n := f.notifier.notices[0]
	if n.Kind != notify.KindBooked || n.DisplayTime != "9:00 AM" || n.PatientEmail != "pat@example.com" {
		t.Fatalf("unexpected notice: %+v", n)
	}
}

func TestCreateAppointment_PastInstantRejectedBeforeConflictCheck(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.clock = timeconv.FixedClock(at(9).Add(30 * time.Minute))

	_, err := f.svc.CreateAppointment(context.Background(), f.params(9))
	if !apperr.HasCode(err, "slot_in_past") {
		t.Fatalf("expected slot_in_past, got %v", err)
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation kind, got %v", err)
	}
	if n := f.repo.conflictChecks.Load(); n != 0 {
		t.Fatalf("conflict check must not run, ran %d times", n)
	}
}

func TestCreateAppointment_ExactlyNowIsPast(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.clock = timeconv.FixedClock(at(9))

	_, err := f.svc.CreateAppointment(context.Background(), f.params(9))
	if !apperr.HasCode(err, "slot_in_past") {
		t.Fatalf("expected slot_in_past, got %v", err)
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	f := newFixture(t, nil)
	long := string(make([]byte, 1001))

	tests := []struct {
		name string
		mut  func(*CreateParams)
		code string
	}{
		{"missing doctor", func(p *CreateParams) { p.DoctorID = uuid.Nil }, "invalid_request"},
		{"missing instant", func(p *CreateParams) { p.ScheduledAt = time.Time{} }, "invalid_request"},
		{"unknown type", func(p *CreateParams) { p.Type = "PHONE" }, "invalid_request"},
		{"notes too long", func(p *CreateParams) { p.Notes = &long }, "invalid_request"},
		{"half hour", func(p *CreateParams) { p.ScheduledAt = at(9).Add(30 * time.Minute) }, "slot_not_aligned"},
		{"stray seconds", func(p *CreateParams) { p.ScheduledAt = at(9).Add(time.Second) }, "slot_not_aligned"},
		{"before window", func(p *CreateParams) { p.ScheduledAt = at(8) }, "outside_availability"},
		{"last hour spills out", func(p *CreateParams) { p.ScheduledAt = at(17) }, "outside_availability"},
		{"unavailable weekday", func(p *CreateParams) { p.ScheduledAt = at(9).Add(24 * time.Hour) }, "outside_availability"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.params(10)
			tt.mut(&p)

			_, err := f.svc.CreateAppointment(context.Background(), p)
			if !apperr.Is(err, apperr.KindValidation) || !apperr.HasCode(err, tt.code) {
				t.Fatalf("expected validation %s, got %v", tt.code, err)
			}
		})
	}
}

func TestCreateAppointment_UnknownParties(t *testing.T) {
	f := newFixture(t, nil)

	p := f.params(9)
	p.DoctorID = uuid.New()
	if _, err := f.svc.CreateAppointment(context.Background(), p); !apperr.HasCode(err, "doctor_not_found") {
		t.Fatalf("expected doctor_not_found, got %v", err)
	}

	p = f.params(9)
	p.PatientID = uuid.New()
	if _, err := f.svc.CreateAppointment(context.Background(), p); !apperr.HasCode(err, "patient_not_found") {
		t.Fatalf("expected patient_not_found, got %v", err)
	}
}

func TestCreateAppointment_SecondBookingConflicts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.CreateAppointment(ctx, f.params(9)); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := f.svc.CreateAppointment(ctx, f.params(9))
	if !apperr.Is(err, apperr.KindConflict) || !apperr.HasCode(err, "slot_unavailable") {
		t.Fatalf("expected slot_unavailable conflict, got %v", err)
	}
	if apperr.As(err).HTTPStatus() != 409 {
		t.Fatalf("expected 409, got %d", apperr.As(err).HTTPStatus())
	}
}

func TestCreateAppointment_ConcurrentSameSlotExactlyOneWins(t *testing.T) {
	f := newFixture(t, nil)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateAppointment(context.Background(), f.params(11))
			switch {
			case err == nil:
				succeeded.Add(1)
			case apperr.Is(err, apperr.KindConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	f.svc.Wait()

	if succeeded.Load() != 1 || conflicts.Load() != attempts-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", attempts-1, succeeded.Load(), conflicts.Load())
	}
}

func TestCreateAppointment_LockContentionIsConflict(t *testing.T) {
	f := newFixture(t, busyLocker{err: redisclient.ErrLockNotAcquired})

	_, err := f.svc.CreateAppointment(context.Background(), f.params(9))
	if !apperr.HasCode(err, "slot_unavailable") {
		t.Fatalf("expected slot_unavailable, got %v", err)
	}
}

func TestCreateAppointment_LockBackendDownStillBooks(t *testing.T) {
	f := newFixture(t, busyLocker{err: redisclient.ErrLockUnavailable})

	if _, err := f.svc.CreateAppointment(context.Background(), f.params(9)); err != nil {
		t.Fatalf("expected booking to proceed without the lock, got %v", err)
	}
	f.svc.Wait()
}

func TestCreateAppointment_StoreFailureIsGeneric(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.failList = errors.New("connection reset by peer")

	_, err := f.svc.CreateAppointment(context.Background(), f.params(9))
	appErr := apperr.As(err)
	if appErr.Kind != apperr.KindInternal || appErr.HTTPStatus() != 500 {
		t.Fatalf("expected internal error, got %v", err)
	}
	if appErr.Message != "an unexpected error occurred" {
		t.Fatalf("store details leaked into message: %q", appErr.Message)
	}
}

func TestCreateAppointment_NotifierFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.err = errors.New("smtp down")

	appt, err := f.svc.CreateAppointment(context.Background(), f.params(9))
	if err != nil {
		t.Fatalf("booking must succeed despite notifier failure: %v", err)
	}
	f.svc.Wait()

	stored, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	if err != nil || stored.Status != StatusScheduled {
		t.Fatalf("booking must stay persisted, got %+v, %v", stored, err)
	}
}

func TestCreateAppointment_NoPairwiseOverlap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, hour := range []int{9, 10, 9, 12, 10, 16, 12} {
		_, _ = f.svc.CreateAppointment(ctx, f.params(hour))
	}
	f.svc.Wait()

	booked, _ := f.repo.ListActiveAppointments(ctx, f.doctor.ID, at(0), at(23))
	if len(booked) != 4 {
		t.Fatalf("expected 4 bookings, got %d", len(booked))
	}
	for i := range booked {
		for j := i + 1; j < len(booked); j++ {
			if Overlaps(booked[i].ScheduledAt, booked[j].ScheduledAt) {
				t.Fatalf("appointments %d and %d overlap", i, j)
			}
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.CreateAppointment(ctx, f.params(9))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.CompleteAppointment(ctx, appt.ID); !apperr.HasCode(err, "invalid_status_transition") {
		t.Fatalf("SCHEDULED -> COMPLETED must be rejected, got %v", err)
	}

	steps := []struct {
		name string
		fn   func(context.Context, uuid.UUID) (*Appointment, error)
		want AppointmentStatus
	}{
		{"confirm", f.svc.ConfirmAppointment, StatusConfirmed},
		{"start", f.svc.StartAppointment, StatusInProgress},
		{"complete", f.svc.CompleteAppointment, StatusCompleted},
	}
	for _, step := range steps {
		got, err := step.fn(ctx, appt.ID)
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got.Status != step.want {
			t.Fatalf("%s: expected %s, got %s", step.name, step.want, got.Status)
		}
	}

	if _, err := f.svc.CancelAppointment(ctx, appt.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("completed appointment must not be cancellable, got %v", err)
	}
	f.svc.Wait()
}

func TestCancelAppointment_FreesSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.CreateAppointment(ctx, f.params(9))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.CancelAppointment(ctx, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.CreateAppointment(ctx, f.params(9)); err != nil {
		t.Fatalf("cancelled slot must be bookable again: %v", err)
	}
	f.svc.Wait()

	var cancelled int
	for _, n := range f.notifier.notices {
		if n.Kind == notify.KindCancelled {
			cancelled++
		}
	}
	if cancelled != 1 {
		t.Fatalf("expected one cancellation notice, got %d", cancelled)
	}
}

func TestTransition_UnknownAppointment(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ConfirmAppointment(context.Background(), uuid.New())
	if !apperr.HasCode(err, "appointment_not_found") {
		t.Fatalf("expected appointment_not_found, got %v", err)
	}
}

func TestRescheduleAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	original, err := f.svc.CreateAppointment(ctx, f.params(9))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	blocker, err := f.svc.CreateAppointment(ctx, f.params(10))
	if err != nil {
		t.Fatalf("create blocker: %v", err)
	}

	if _, err := f.svc.RescheduleAppointment(ctx, original.ID, at(10)); !apperr.HasCode(err, "slot_unavailable") {
		t.Fatalf("expected conflict with %s, got %v", blocker.ID, err)
	}
	if got, _ := f.repo.GetAppointmentByID(ctx, original.ID); got.Status != StatusScheduled {
		t.Fatalf("failed reschedule must leave original active, got %s", got.Status)
	}

	moved, err := f.svc.RescheduleAppointment(ctx, original.ID, at(14))
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	f.svc.Wait()

	if moved.ID == original.ID || moved.Status != StatusScheduled || !moved.ScheduledAt.Equal(at(14)) {
		t.Fatalf("unexpected replacement: %+v", moved)
	}
	old, _ := f.repo.GetAppointmentByID(ctx, original.ID)
	if old.Status != StatusRescheduled {
		t.Fatalf("expected original RESCHEDULED, got %s", old.Status)
	}

	// the vacated hour is bookable again
	if _, err := f.svc.CreateAppointment(ctx, f.params(9)); err != nil {
		t.Fatalf("vacated slot must be bookable: %v", err)
	}
	f.svc.Wait()
}

func TestRescheduleAppointment_SameHourKeepsOwnSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	original, err := f.svc.CreateAppointment(ctx, f.params(9))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.RescheduleAppointment(ctx, original.ID, at(9)); err != nil {
		t.Fatalf("rescheduling onto its own hour must succeed: %v", err)
	}
	f.svc.Wait()
}

func TestListDoctorAppointments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, hour := range []int{9, 11} {
		if _, err := f.svc.CreateAppointment(ctx, f.params(hour)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	f.svc.Wait()

	got, err := f.svc.ListDoctorAppointments(ctx, f.doctor.ID, at(0), at(10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || !got[0].ScheduledAt.Equal(at(9)) {
		t.Fatalf("expected only the 09:00 appointment, got %+v", got)
	}

	if _, err := f.svc.ListDoctorAppointments(ctx, f.doctor.ID, at(10), at(9)); !apperr.HasCode(err, "invalid_range") {
		t.Fatalf("expected invalid_range, got %v", err)
	}
	if _, err := f.svc.ListDoctorAppointments(ctx, uuid.New(), at(0), at(10)); !apperr.HasCode(err, "doctor_not_found") {
		t.Fatalf("expected doctor_not_found, got %v", err)
	}
}
