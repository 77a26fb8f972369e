package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Kind string

const (
	KindBooked    Kind = "appointment.booked"
	KindReminder  Kind = "appointment.reminder"
	KindCancelled Kind = "appointment.cancelled"
)

// Notice is everything a channel needs to tell a patient about one appointment.
type Notice struct {
	Kind          Kind
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	DoctorName    string
	PatientID     uuid.UUID
	PatientName   string
	PatientEmail  string
	ScheduledAt   time.Time
	LocalDate     string
	DisplayTime   string
	MeetingID     string
	Type          string
}

// Notifier delivers a notice. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Fanout sends every notice to each notifier and joins the failures.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier only writes the notice to the log. Used when no channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notice) error {
	l.logger.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("appointment_id", n.AppointmentID.String()),
		zap.String("patient_id", n.PatientID.String()),
		zap.String("local_date", n.LocalDate),
		zap.String("display_time", n.DisplayTime),
	)
	return nil
}
