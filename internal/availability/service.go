package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/apperr"
)

type Service struct {
	store   Store
	doctors DoctorChecker
	logger  *zap.Logger
}

func NewService(store Store, doctors DoctorChecker, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		doctors: doctors,
		logger:  logger,
	}
}

func (s *Service) ensureDoctor(ctx context.Context, doctorID uuid.UUID) error {
	ok, err := s.doctors.DoctorExists(ctx, doctorID)
	if err != nil {
		s.logger.Error("doctor lookup failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		return apperr.Store("load doctor", err)
	}
	if !ok {
		return apperr.NotFound("doctor_not_found", "doctor not found")
	}
	return nil
}

// GetWeeklySchedule returns all seven weekdays, unavailable ones included.
func (s *Service) GetWeeklySchedule(ctx context.Context, doctorID uuid.UUID) (Week, error) {
	if err := s.ensureDoctor(ctx, doctorID); err != nil {
		return Week{}, err
	}

	windows, err := s.store.ListActiveWindows(ctx, doctorID)
	if err != nil {
		s.logger.Error("list windows failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		return Week{}, apperr.Store("list windows", err)
	}

	return WeekFromWindows(windows), nil
}

// UpdateWeeklySchedule replaces the doctor's whole week. Appointments already booked outside
// the new schedule are left alone.
func (s *Service) UpdateWeeklySchedule(ctx context.Context, doctorID uuid.UUID, week Week) (Week, error) {
	schedule, err := NewScheduleBuilder(doctorID).Week(week).Build()
	if err != nil {
		return Week{}, err
	}

	if err := s.ensureDoctor(ctx, doctorID); err != nil {
		return Week{}, err
	}

	if err := s.store.ReplaceWeeklySchedule(ctx, schedule); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return Week{}, apperr.NotFound("doctor_not_found", "doctor not found")
		}
		s.logger.Error("replace schedule failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
		return Week{}, apperr.Store("replace schedule", err)
	}

	s.logger.Info("weekly schedule replaced",
		zap.String("doctor_id", doctorID.String()),
		zap.Int("windows", len(schedule.Windows)),
	)

	return WeekFromWindows(schedule.Windows), nil
}
