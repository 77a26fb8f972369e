package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// Store is the source of truth for recurring weekly windows.
type Store interface {
	// GetActiveWindows returns the doctor's active windows for one weekday, ordered by start time.
	GetActiveWindows(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]Window, error)
	// ListActiveWindows returns the doctor's whole active week ordered by day then start time.
	ListActiveWindows(ctx context.Context, doctorID uuid.UUID) ([]Window, error)
	// ReplaceWeeklySchedule deactivates every current window of the doctor and inserts
	// schedule.Windows as one unit. Appointments are never touched.
	ReplaceWeeklySchedule(ctx context.Context, schedule WeeklySchedule) error
}

// DoctorChecker answers whether a doctor record exists.
type DoctorChecker interface {
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
}
