package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/apperr"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/notify"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
	"github.com/hackgods/doctor-booking/internal/timeconv"
	"github.com/hackgods/doctor-booking/internal/validation"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentStarted     = "APPOINTMENT_STARTED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

const defaultNotifyTimeout = 15 * time.Second

// WindowSource provides a doctor's active availability windows for one weekday.
type WindowSource interface {
	GetActiveWindows(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]availability.Window, error)
}

type CreateParams struct {
	PatientID   uuid.UUID       `json:"patientId" validate:"required"`
	DoctorID    uuid.UUID       `json:"doctorId" validate:"required"`
	ScheduledAt time.Time       `json:"scheduledInstant" validate:"required"`
	Type        AppointmentType `json:"type" validate:"omitempty,oneof=VIDEO IN_PERSON FOLLOW_UP"`
	Notes       *string         `json:"notes" validate:"omitempty,max=1000"`
}

type Service struct {
	repo          Repository
	windows       WindowSource
	locker        redisclient.Locker
	notifier      notify.Notifier
	validate      *validator.Validate
	zone          timeconv.Zone
	clock         timeconv.Clock
	notifyTimeout time.Duration
	logger        *zap.Logger

	inflight sync.WaitGroup
}

type Option func(*Service)

func WithClock(clock timeconv.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithZone(zone timeconv.Zone) Option {
	return func(s *Service) { s.zone = zone }
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) { s.notifyTimeout = d }
}

func NewService(repo Repository, windows WindowSource, locker redisclient.Locker, notifier notify.Notifier, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		windows:       windows,
		locker:        locker,
		notifier:      notifier,
		validate:      validation.New(),
		zone:          timeconv.Platform,
		clock:         timeconv.SystemClock,
		notifyTimeout: defaultNotifyTimeout,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = redisclient.NoopLocker{}
	}
	return s
}

// CreateAppointment books a one-hour appointment at p.ScheduledAt.
// The Redis lock narrows concurrent attempts for the same doctor and instant; the
// active slot index in Postgres decides the winner.
func (s *Service) CreateAppointment(ctx context.Context, p CreateParams) (*Appointment, error) {
	if err := s.validate.StructCtx(ctx, p); err != nil {
		return nil, validation.ToAppError(err)
	}
	if p.Type == "" {
		p.Type = TypeVideo
	}
	at := p.ScheduledAt.UTC()

	doctor, err := s.checkBookable(ctx, p.DoctorID, p.PatientID, at)
	if err != nil {
		return nil, err
	}

	appt := Appointment{
		ID:              uuid.New(),
		DoctorID:        doctor.ID,
		PatientID:       p.PatientID,
		ScheduledAt:     at,
		DurationMinutes: DurationMinutes,
		Status:          StatusScheduled,
		Type:            p.Type,
		MeetingID:       newMeetingID(),
		Fee:             doctor.ConsultationFee,
		Notes:           p.Notes,
	}

	var created *Appointment
	err = s.withSlotLock(ctx, doctor.ID, at, func(lockCtx context.Context) error {
		if err := s.ensureFree(lockCtx, doctor.ID, at, uuid.Nil); err != nil {
			return err
		}

		c, err := s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, s.bookingError(err, doctor.ID, at)
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":    created.DoctorID.String(),
		"patient_id":   created.PatientID.String(),
		"scheduled_at": created.ScheduledAt,
		"fee":          created.Fee,
	})
	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.Time("scheduled_at", created.ScheduledAt),
	)

	s.dispatch(created.ID, notify.KindBooked)

	return created, nil
}

// checkBookable runs every validation that does not need the slot lock.
func (s *Service) checkBookable(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time) (*Doctor, error) {
	if at.Second() != 0 || at.Nanosecond() != 0 || s.zone.LocalMinuteOfDay(at)%DurationMinutes != 0 {
		return nil, apperr.Validation("slot_not_aligned", "appointments must start on the hour").
			WithDetails(map[string]any{"scheduledInstant": at.Format(time.RFC3339)})
	}

	if !at.After(s.clock()) {
		return nil, apperr.Validation("slot_in_past", "appointments must be booked in the future").
			WithDetails(map[string]any{"scheduledInstant": at.Format(time.RFC3339)})
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, apperr.NotFound("doctor_not_found", "doctor not found")
		}
		s.logger.Error("load doctor failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		return nil, apperr.Store("load doctor", err)
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, apperr.NotFound("patient_not_found", "patient not found")
		}
		s.logger.Error("load patient failed", zap.String("patient_id", patientID.String()), zap.Error(err))
		return nil, apperr.Store("load patient", err)
	}

	ok, err := s.withinAvailability(ctx, doctorID, at)
	if err != nil {
		s.logger.Error("load windows failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		return nil, apperr.Store("load availability", err)
	}
	if !ok {
		local := s.zone.ToLocal(at)
		return nil, apperr.Validation("outside_availability", "doctor is not available at the requested time").
			WithDetails(map[string]any{
				"date":        s.zone.LocalDate(at).String(),
				"displayTime": local.Label(),
			})
	}

	return doctor, nil
}

func (s *Service) withinAvailability(ctx context.Context, doctorID uuid.UUID, at time.Time) (bool, error) {
	date := s.zone.LocalDate(at)
	windows, err := s.windows.GetActiveWindows(ctx, doctorID, date.Weekday())
	if err != nil {
		return false, err
	}

	minute := s.zone.LocalMinuteOfDay(at)
	for _, w := range windows {
		start, err := timeconv.ClockMinutes(w.StartTime)
		if err != nil {
			continue
		}
		end, err := timeconv.ClockMinutes(w.EndTime)
		if err != nil {
			continue
		}
		if start <= minute && minute+DurationMinutes <= end {
			return true, nil
		}
	}
	return false, nil
}

// ensureFree fails with a conflict if an active appointment other than skip overlaps at.
func (s *Service) ensureFree(ctx context.Context, doctorID uuid.UUID, at time.Time, skip uuid.UUID) error {
	existing, err := s.repo.ListActiveAppointments(ctx, doctorID, at.Add(-Duration), at.Add(Duration))
	if err != nil {
		return apperr.Store("list appointments", err)
	}

	others := make([]Appointment, 0, len(existing))
	for _, a := range existing {
		if a.ID != skip {
			others = append(others, a)
		}
	}

	if _, found := FindConflict(at, others); found {
		return ErrDuplicateSlot
	}
	return nil
}

func (s *Service) withSlotLock(ctx context.Context, doctorID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	err := s.locker.WithSlotLock(ctx, doctorID, at, fn)
	if errors.Is(err, redisclient.ErrLockUnavailable) {
		s.logger.Warn("slot lock unavailable, relying on database constraint",
			zap.String("doctor_id", doctorID.String()),
			zap.Error(err),
		)
		return fn(ctx)
	}
	return err
}

func (s *Service) bookingError(err error, doctorID uuid.UUID, at time.Time) error {
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired), errors.Is(err, ErrDuplicateSlot):
		return apperr.Conflict("slot_unavailable", "the requested time is no longer available").
			WithDetails(map[string]any{
				"doctorId":         doctorID.String(),
				"scheduledInstant": at.Format(time.RFC3339),
			})
	case errors.Is(err, ErrStatusChanged):
		return apperr.Conflict("invalid_status_transition", "appointment status changed, reload and retry")
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		if appErr.Kind == apperr.KindInternal {
			s.logger.Error("booking failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		}
		return appErr
	}

	s.logger.Error("booking failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
	return apperr.Store("create appointment", err)
}

// Status transitions

func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, []AppointmentStatus{StatusScheduled}, StatusConfirmed, EventAppointmentConfirmed)
}

func (s *Service) StartAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, []AppointmentStatus{StatusScheduled, StatusConfirmed}, StatusInProgress, EventAppointmentStarted)
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, []AppointmentStatus{StatusInProgress, StatusConfirmed}, StatusCompleted, EventAppointmentCompleted)
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	updated, err := s.transition(ctx, id, ActiveStatuses, StatusCancelled, EventAppointmentCancelled)
	if err != nil {
		return nil, err
	}
	s.dispatch(updated.ID, notify.KindCancelled)
	return updated, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, event string) (*Appointment, error) {
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(appt.Status, from) {
		return nil, invalidTransition(appt.Status, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return nil, apperr.Conflict("invalid_status_transition", "appointment status changed, reload and retry")
		}
		s.logger.Error("update appointment status failed",
			zap.String("appointment_id", id.String()),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		return nil, apperr.Store("update appointment status", err)
	}

	s.logEvent(ctx, id, event, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	return updated, nil
}

// RescheduleAppointment retires the appointment as RESCHEDULED and books a new one at newAt
// for the same doctor and patient.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, newAt time.Time) (*Appointment, error) {
	old, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !old.Status.IsActive() {
		return nil, invalidTransition(old.Status, StatusRescheduled)
	}

	at := newAt.UTC()
	doctor, err := s.checkBookable(ctx, old.DoctorID, old.PatientID, at)
	if err != nil {
		return nil, err
	}

	replacement := Appointment{
		ID:              uuid.New(),
		DoctorID:        old.DoctorID,
		PatientID:       old.PatientID,
		ScheduledAt:     at,
		DurationMinutes: DurationMinutes,
		Status:          StatusScheduled,
		Type:            old.Type,
		MeetingID:       newMeetingID(),
		Fee:             doctor.ConsultationFee,
		Notes:           old.Notes,
	}

	var created *Appointment
	err = s.withSlotLock(ctx, old.DoctorID, at, func(lockCtx context.Context) error {
		// the appointment being moved does not block its own new time
		if err := s.ensureFree(lockCtx, old.DoctorID, at, old.ID); err != nil {
			return err
		}

		c, err := s.repo.RescheduleAppointment(lockCtx, old.ID, ActiveStatuses, replacement)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, s.bookingError(err, old.DoctorID, at)
	}

	s.logEvent(ctx, old.ID, EventAppointmentRescheduled, map[string]any{
		"replacement_id": created.ID.String(),
		"from":           old.ScheduledAt,
		"to":             created.ScheduledAt,
	})
	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":    created.DoctorID.String(),
		"patient_id":   created.PatientID.String(),
		"scheduled_at": created.ScheduledAt,
		"replaces":     old.ID.String(),
	})

	s.dispatch(created.ID, notify.KindBooked)

	return created, nil
}

// Queries

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.loadAppointment(ctx, id)
}

// ListDoctorAppointments returns appointments starting in [from, to), any status.
func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if !to.After(from) {
		return nil, apperr.Validation("invalid_range", "to must be after from").
			WithDetails(map[string]any{"from": from.Format(time.RFC3339), "to": to.Format(time.RFC3339)})
	}

	ok, err := s.repo.DoctorExists(ctx, doctorID)
	if err != nil {
		s.logger.Error("doctor lookup failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		return nil, apperr.Store("load doctor", err)
	}
	if !ok {
		return nil, apperr.NotFound("doctor_not_found", "doctor not found")
	}

	appts, err := s.repo.ListDoctorAppointments(ctx, doctorID, from.UTC(), to.UTC())
	if err != nil {
		s.logger.Error("list appointments failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		return nil, apperr.Store("list appointments", err)
	}
	return appts, nil
}

func (s *Service) loadAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, apperr.NotFound("appointment_not_found", "appointment not found")
		}
		s.logger.Error("load appointment failed", zap.String("appointment_id", id.String()), zap.Error(err))
		return nil, apperr.Store("load appointment", err)
	}
	return appt, nil
}

// Wait blocks until notifications dispatched so far have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// dispatch sends a notice in the background. The request that triggered it has already
// succeeded, so failures are only logged.
func (s *Service) dispatch(appointmentID uuid.UUID, kind notify.Kind) {
	if s.notifier == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		detail, err := s.repo.GetAppointmentDetail(ctx, appointmentID)
		if err != nil {
			s.logger.Warn("load appointment for notification failed",
				zap.String("appointment_id", appointmentID.String()),
				zap.Error(err),
			)
			return
		}

		if err := s.notifier.Notify(ctx, NoticeFor(kind, *detail, s.zone)); err != nil {
			s.logger.Warn("notification failed",
				zap.String("appointment_id", appointmentID.String()),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
	}()
}

// NoticeFor renders an appointment for notification channels in the given zone.
func NoticeFor(kind notify.Kind, d AppointmentDetail, zone timeconv.Zone) notify.Notice {
	n := notify.Notice{
		Kind:          kind,
		AppointmentID: d.ID,
		DoctorID:      d.DoctorID,
		DoctorName:    d.DoctorName,
		PatientID:     d.PatientID,
		PatientName:   d.PatientName,
		ScheduledAt:   d.ScheduledAt,
		LocalDate:     zone.LocalDate(d.ScheduledAt).String(),
		DisplayTime:   zone.ToLocal(d.ScheduledAt).Label(),
		MeetingID:     d.MeetingID,
		Type:          string(d.Type),
	}
	if d.PatientEmail != nil {
		n.PatientEmail = *d.PatientEmail
	}
	return n
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event payload failed", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("insert event log failed",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

func statusIn(s AppointmentStatus, set []AppointmentStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func invalidTransition(from, to AppointmentStatus) *apperr.AppError {
	return apperr.Conflict("invalid_status_transition", "appointment cannot move to the requested status").
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

func newMeetingID() string {
	return "mtg-" + uuid.NewString()
}
