package availability

import (
	"time"

	"github.com/google/uuid"
)

// Window is one recurring weekly range, in platform local time, during which a doctor takes bookings.
type Window struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	DayOfWeek time.Weekday
	StartTime string // "HH:MM" local
	EndTime   string // "HH:MM" local, exclusive
	IsActive  bool
	CreatedAt time.Time
}

// WeeklySchedule is a complete replacement set of windows for one doctor.
// It is only produced by ScheduleBuilder, so every window in it has already been validated.
type WeeklySchedule struct {
	DoctorID uuid.UUID
	Windows  []Window
}

// DaySchedule is the external read/write shape for one weekday.
type DaySchedule struct {
	DayOfWeek time.Weekday
	Available bool
	StartTime string
	EndTime   string
}

// Week holds one DaySchedule per weekday, indexed Sunday=0.
type Week [7]DaySchedule

func EmptyWeek() Week {
	var w Week
	for d := range w {
		w[d] = DaySchedule{DayOfWeek: time.Weekday(d)}
	}
	return w
}

// WeekFromWindows folds active windows into the one-window-per-day read shape.
// Windows must be ordered by day then start; the earliest window of a day wins.
func WeekFromWindows(windows []Window) Week {
	w := EmptyWeek()
	for _, win := range windows {
		if !win.IsActive || win.DayOfWeek < time.Sunday || win.DayOfWeek > time.Saturday {
			continue
		}
		if w[win.DayOfWeek].Available {
			continue
		}
		w[win.DayOfWeek] = DaySchedule{
			DayOfWeek: win.DayOfWeek,
			Available: true,
			StartTime: win.StartTime,
			EndTime:   win.EndTime,
		}
	}
	return w
}
