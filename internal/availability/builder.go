package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/apperr"
	"github.com/hackgods/doctor-booking/internal/timeconv"
)

// ScheduleBuilder assembles a full replacement week before anything touches the store.
type ScheduleBuilder struct {
	doctorID uuid.UUID
	windows  []Window
	problems map[string]any
}

func NewScheduleBuilder(doctorID uuid.UUID) *ScheduleBuilder {
	return &ScheduleBuilder{
		doctorID: doctorID,
		problems: make(map[string]any),
	}
}

// Day adds one window on day. Problems are collected and reported together by Build.
func (b *ScheduleBuilder) Day(day time.Weekday, start, end string) *ScheduleBuilder {
	key := strings.ToLower(day.String())
	if day < time.Sunday || day > time.Saturday {
		b.problems[fmt.Sprintf("day_%d", int(day))] = "day of week must be between 0 (Sunday) and 6 (Saturday)"
		return b
	}

	startMin, err := timeconv.ClockMinutes(start)
	if err != nil {
		b.problems[key] = fmt.Sprintf("start time %q is missing or not HH:MM", start)
		return b
	}
	endMin, err := timeconv.ClockMinutes(end)
	if err != nil {
		b.problems[key] = fmt.Sprintf("end time %q is missing or not HH:MM", end)
		return b
	}
	if startMin >= endMin {
		b.problems[key] = fmt.Sprintf("start time %s must be before end time %s", start, end)
		return b
	}

	b.windows = append(b.windows, Window{
		DoctorID:  b.doctorID,
		DayOfWeek: day,
		StartTime: start,
		EndTime:   end,
		IsActive:  true,
	})
	return b
}

// Week adds every available day of w; unavailable days contribute nothing.
func (b *ScheduleBuilder) Week(w Week) *ScheduleBuilder {
	for d, day := range w {
		if !day.Available {
			continue
		}
		b.Day(time.Weekday(d), day.StartTime, day.EndTime)
	}
	return b
}

func (b *ScheduleBuilder) Build() (WeeklySchedule, error) {
	sort.SliceStable(b.windows, func(i, j int) bool {
		if b.windows[i].DayOfWeek != b.windows[j].DayOfWeek {
			return b.windows[i].DayOfWeek < b.windows[j].DayOfWeek
		}
		return b.windows[i].StartTime < b.windows[j].StartTime
	})

	for i := 1; i < len(b.windows); i++ {
		prev, cur := b.windows[i-1], b.windows[i]
		// "HH:MM" strings of fixed width order the same way as the times they name
		if prev.DayOfWeek == cur.DayOfWeek && cur.StartTime < prev.EndTime {
			b.problems[strings.ToLower(cur.DayOfWeek.String())] = fmt.Sprintf(
				"window %s-%s overlaps %s-%s", cur.StartTime, cur.EndTime, prev.StartTime, prev.EndTime)
		}
	}

	if len(b.problems) > 0 {
		return WeeklySchedule{}, apperr.Validation("invalid_schedule", "schedule has malformed entries").
			WithDetails(b.problems)
	}

	windows := make([]Window, len(b.windows))
	copy(windows, b.windows)
	return WeeklySchedule{DoctorID: b.doctorID, Windows: windows}, nil
}
