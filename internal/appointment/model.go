package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "SCHEDULED"
	StatusConfirmed   AppointmentStatus = "CONFIRMED"
	StatusInProgress  AppointmentStatus = "IN_PROGRESS"
	StatusCompleted   AppointmentStatus = "COMPLETED"
	StatusCancelled   AppointmentStatus = "CANCELLED"
	StatusRescheduled AppointmentStatus = "RESCHEDULED"
)

// ActiveStatuses participate in conflict checks and in the unique slot index.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress}

func (s AppointmentStatus) IsActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

// IsTerminal is true only for statuses known to release the slot.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

type AppointmentType string

const (
	TypeVideo    AppointmentType = "VIDEO"
	TypeInPerson AppointmentType = "IN_PERSON"
	TypeFollowUp AppointmentType = "FOLLOW_UP"
)

// Every appointment, and therefore every slot, is exactly one hour.
const (
	DurationMinutes = 60
	Duration        = DurationMinutes * time.Minute
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialty       *string
	ConsultationFee float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Appointment struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	ScheduledAt     time.Time // UTC
	DurationMinutes int
	Status          AppointmentStatus
	Type            AppointmentType
	MeetingID       string
	Fee             float64
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(Duration)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
