package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrDuplicateSlot is returned when the active slot index rejects an insert.
	ErrDuplicateSlot = errors.New("doctor already has an active appointment at this time")
	// ErrStatusChanged means the row was not in one of the expected statuses when updated.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)

// AppointmentDetail is an appointment joined with the names needed to notify about it.
type AppointmentDetail struct {
	Appointment
	DoctorName   string
	PatientName  string
	PatientEmail *string
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	// ListActiveAppointments returns non-terminal appointments for the doctor starting in [from, to].
	ListActiveAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	// ListDoctorAppointments returns every appointment starting in [from, to), any status.
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	// ListUpcomingActive returns active appointments of all doctors starting in [from, to).
	ListUpcomingActive(ctx context.Context, from, to time.Time) ([]AppointmentDetail, error)

	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)
	// RescheduleAppointment marks oldID RESCHEDULED and inserts replacement in one transaction.
	RescheduleAppointment(ctx context.Context, oldID uuid.UUID, from []AppointmentStatus, replacement Appointment) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
