package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/slots"
	"github.com/hackgods/doctor-booking/internal/timeconv"
)

type DayScheduleRequest struct {
	DayOfWeek *int   `json:"dayOfWeek" validate:"required,min=0,max=6"`
	Available bool   `json:"available"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// WeeklyScheduleRequest replaces the whole week; days left out become unavailable.
type WeeklyScheduleRequest struct {
	Days []DayScheduleRequest `json:"days" validate:"required,max=7,dive"`
}

type DayScheduleResponse struct {
	DayOfWeek int    `json:"dayOfWeek"`
	Available bool   `json:"available"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

type WeeklyScheduleResponse struct {
	DoctorID uuid.UUID             `json:"doctorId"`
	Days     []DayScheduleResponse `json:"days"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID    `json:"doctorId"`
	Date     string       `json:"date"`
	Slots    []slots.Slot `json:"slots"`
}

type CreateAppointmentRequest struct {
	DoctorID         string  `json:"doctorId" validate:"required,uuid"`
	PatientID        string  `json:"patientId" validate:"required,uuid"`
	ScheduledInstant string  `json:"scheduledInstant" validate:"required"`
	Type             string  `json:"type" validate:"omitempty,oneof=VIDEO IN_PERSON FOLLOW_UP"`
	Notes            *string `json:"notes" validate:"omitempty,max=1000"`
}

type RescheduleRequest struct {
	ScheduledInstant string `json:"scheduledInstant" validate:"required"`
}

type AppointmentResponse struct {
	ID               uuid.UUID `json:"id"`
	DoctorID         uuid.UUID `json:"doctorId"`
	PatientID        uuid.UUID `json:"patientId"`
	ScheduledInstant time.Time `json:"scheduledInstant"`
	EndsAt           time.Time `json:"endsAt"`
	LocalDate        string    `json:"localDate"`
	DisplayTime      string    `json:"displayTime"`
	DurationMinutes  int       `json:"durationMinutes"`
	Status           string    `json:"status"`
	Type             string    `json:"type"`
	MeetingID        string    `json:"meetingId"`
	Fee              float64   `json:"fee"`
	Notes            *string   `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type AppointmentListResponse struct {
	DoctorID     uuid.UUID             `json:"doctorId"`
	From         time.Time             `json:"from"`
	To           time.Time             `json:"to"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment, zone timeconv.Zone) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		DoctorID:         a.DoctorID,
		PatientID:        a.PatientID,
		ScheduledInstant: a.ScheduledAt.UTC(),
		EndsAt:           a.EndsAt().UTC(),
		LocalDate:        zone.LocalDate(a.ScheduledAt).String(),
		DisplayTime:      zone.ToLocal(a.ScheduledAt).Label(),
		DurationMinutes:  a.DurationMinutes,
		Status:           string(a.Status),
		Type:             string(a.Type),
		MeetingID:        a.MeetingID,
		Fee:              a.Fee,
		Notes:            a.Notes,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toWeeklyScheduleResponse(doctorID uuid.UUID, week availability.Week) WeeklyScheduleResponse {
	days := make([]DayScheduleResponse, 0, len(week))
	for d, day := range week {
		days = append(days, DayScheduleResponse{
			DayOfWeek: d,
			Available: day.Available,
			StartTime: day.StartTime,
			EndTime:   day.EndTime,
		})
	}
	return WeeklyScheduleResponse{DoctorID: doctorID, Days: days}
}
