package slots

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/apperr"
	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/timeconv"
)

// Slot is a bookable start instant.
type Slot struct {
	Time        time.Time `json:"time"`
	DisplayTime string    `json:"displayTime"`
}

// AppointmentLister returns non-terminal appointments for a doctor starting in [from, to].
type AppointmentLister interface {
	ListActiveAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
}

// Generator derives free slots from weekly windows and existing appointments.
// Nothing is cached; each call reads the current state.
type Generator struct {
	doctors availability.DoctorChecker
	windows appointment.WindowSource
	appts   AppointmentLister
	zone    timeconv.Zone
	clock   timeconv.Clock
	logger  *zap.Logger
}

func NewGenerator(doctors availability.DoctorChecker, windows appointment.WindowSource, appts AppointmentLister, zone timeconv.Zone, clock timeconv.Clock, logger *zap.Logger) *Generator {
	if clock == nil {
		clock = timeconv.SystemClock
	}
	return &Generator{
		doctors: doctors,
		windows: windows,
		appts:   appts,
		zone:    zone,
		clock:   clock,
		logger:  logger,
	}
}

// Generate lists the free one-hour slots of doctorID on the local date, ascending.
func (g *Generator) Generate(ctx context.Context, doctorID uuid.UUID, date timeconv.Date) ([]Slot, error) {
	log := g.logger.With(zap.String("doctor_id", doctorID.String()), zap.String("date", date.String()))

	ok, err := g.doctors.DoctorExists(ctx, doctorID)
	if err != nil {
		log.Error("doctor lookup failed", zap.Error(err))
		return nil, apperr.Store("load doctor", err)
	}
	if !ok {
		return nil, apperr.NotFound("doctor_not_found", "doctor not found")
	}

	windows, err := g.windows.GetActiveWindows(ctx, doctorID, date.Weekday())
	if err != nil {
		log.Error("load windows failed", zap.Error(err))
		return nil, apperr.Store("load availability", err)
	}
	if len(windows) == 0 {
		return []Slot{}, nil
	}

	// an appointment starting late on the previous day can still reach into this one
	dayStart, dayEnd := g.zone.DayBounds(date)
	existing, err := g.appts.ListActiveAppointments(ctx, doctorID, dayStart.Add(-appointment.Duration), dayEnd)
	if err != nil {
		log.Error("load appointments failed", zap.Error(err))
		return nil, apperr.Store("list appointments", err)
	}

	now := g.clock()
	seen := make(map[int64]struct{})
	result := make([]Slot, 0)

	for _, w := range windows {
		start, err := timeconv.ClockMinutes(w.StartTime)
		if err != nil {
			log.Warn("skipping window with bad start", zap.String("start", w.StartTime))
			continue
		}
		end, err := timeconv.ClockMinutes(w.EndTime)
		if err != nil {
			log.Warn("skipping window with bad end", zap.String("end", w.EndTime))
			continue
		}

		firstHour := (start + 59) / 60
		for hour := firstHour; hour*60+appointment.DurationMinutes <= end; hour++ {
			instant := g.zone.ToUTC(date, hour, 0)

			if !instant.After(now) {
				continue
			}
			if _, dup := seen[instant.Unix()]; dup {
				continue
			}
			if _, taken := appointment.FindConflict(instant, existing); taken {
				continue
			}

			seen[instant.Unix()] = struct{}{}
			result = append(result, Slot{
				Time:        instant,
				DisplayTime: g.zone.ToLocal(instant).Label(),
			})
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Time.Before(result[j].Time) })

	return result, nil
}
