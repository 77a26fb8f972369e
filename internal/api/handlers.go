package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/apperr"
	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/slots"
	"github.com/hackgods/doctor-booking/internal/timeconv"
	"github.com/hackgods/doctor-booking/internal/validation"
)

const defaultListRange = 7 * 24 * time.Hour

type ScheduleService interface {
	GetWeeklySchedule(ctx context.Context, doctorID uuid.UUID) (availability.Week, error)
	UpdateWeeklySchedule(ctx context.Context, doctorID uuid.UUID, week availability.Week) (availability.Week, error)
}

type SlotGenerator interface {
	Generate(ctx context.Context, doctorID uuid.UUID, date timeconv.Date) ([]slots.Slot, error)
}

type AppointmentService interface {
	CreateAppointment(ctx context.Context, p appointment.CreateParams) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	StartAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, newAt time.Time) (*appointment.Appointment, error)
}

type handlers struct {
	schedules    ScheduleService
	slots        SlotGenerator
	appointments AppointmentService
	validate     *validator.Validate
	zone         timeconv.Zone
	clock        timeconv.Clock
	logger       *zap.Logger
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid_"+name, name+" must be a valid UUID")
	}
	return id, nil
}

func parseInstant(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid_request", "request failed validation").
			WithDetails(map[string]any{field: "must be an RFC 3339 timestamp"})
	}
	return t.UTC(), nil
}

// Schedule

func (h *handlers) getSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	week, err := h.schedules.GetWeeklySchedule(r.Context(), doctorID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toWeeklyScheduleResponse(doctorID, week))
}

func (h *handlers) putSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req WeeklyScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		writeError(w, r, h.logger, validation.ToAppError(err))
		return
	}

	week := availability.EmptyWeek()
	seen := make(map[int]bool, len(req.Days))
	for _, d := range req.Days {
		day := *d.DayOfWeek
		if seen[day] {
			writeError(w, r, h.logger, apperr.Validation("invalid_schedule", "each day of week may appear once").
				WithDetails(map[string]any{"dayOfWeek": day}))
			return
		}
		seen[day] = true

		week[day] = availability.DaySchedule{
			DayOfWeek: time.Weekday(day),
			Available: d.Available,
			StartTime: d.StartTime,
			EndTime:   d.EndTime,
		}
	}

	updated, err := h.schedules.UpdateWeeklySchedule(r.Context(), doctorID, week)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toWeeklyScheduleResponse(doctorID, updated))
}

// Slots

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	raw := r.URL.Query().Get("date")
	date, err := timeconv.ParseDate(raw)
	if err != nil {
		writeError(w, r, h.logger, apperr.Validation("invalid_date", "date must be a calendar date in YYYY-MM-DD form").
			WithDetails(map[string]any{"date": raw}))
		return
	}

	free, err := h.slots.Generate(r.Context(), doctorID, date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: date.String(), Slots: free})
}

// Appointments

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		writeError(w, r, h.logger, validation.ToAppError(err))
		return
	}

	at, err := parseInstant("scheduledInstant", req.ScheduledInstant)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	appt, err := h.appointments.CreateAppointment(r.Context(), appointment.CreateParams{
		PatientID:   uuid.MustParse(req.PatientID),
		DoctorID:    uuid.MustParse(req.DoctorID),
		ScheduledAt: at,
		Type:        appointment.AppointmentType(req.Type),
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, h.zone))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	appt, err := h.appointments.GetAppointment(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, h.zone))
}

// listDoctorAppointments accepts from/to as RFC 3339 instants or YYYY-MM-DD local dates.
// A bare "to" date includes that whole day. The default range is the next seven days.
func (h *handlers) listDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	q := r.URL.Query()
	from, err := h.parseBound("from", q.Get("from"), false)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if from.IsZero() {
		from, _ = h.zone.DayBounds(h.zone.LocalDate(h.clock()))
	}
	to, err := h.parseBound("to", q.Get("to"), true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if to.IsZero() {
		to = from.Add(defaultListRange)
	}

	appts, err := h.appointments.ListDoctorAppointments(r.Context(), doctorID, from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := AppointmentListResponse{
		DoctorID:     doctorID,
		From:         from,
		To:           to,
		Appointments: make([]AppointmentResponse, 0, len(appts)),
	}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i], h.zone))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) parseBound(field, raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if date, err := timeconv.ParseDate(raw); err == nil {
		start, end := h.zone.DayBounds(date)
		if endOfDay {
			return end, nil
		}
		return start, nil
	}
	return parseInstant(field, raw)
}

type transitionFunc func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)

func (h *handlers) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		appt, err := fn(r.Context(), id)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, h.zone))
	}
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		writeError(w, r, h.logger, validation.ToAppError(err))
		return
	}

	at, err := parseInstant("scheduledInstant", req.ScheduledInstant)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	appt, err := h.appointments.RescheduleAppointment(r.Context(), id, at)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, h.zone))
}
