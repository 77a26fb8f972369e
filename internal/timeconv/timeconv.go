package timeconv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PlatformOffset is the platform's local wall clock offset. It never changes with the season.
const PlatformOffset = time.Hour

var (
	ErrInvalidDate  = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidClock = errors.New("invalid time, expected HH:MM")
)

// Zone is a fixed-offset local wall clock. It never consults the tz database or the host locale.
type Zone struct {
	offset time.Duration
}

// Platform is the zone every availability window and display label is expressed in.
var Platform = Fixed(PlatformOffset)

func Fixed(offset time.Duration) Zone {
	return Zone{offset: offset}
}

func (z Zone) Offset() time.Duration {
	return z.offset
}

// Date is a calendar date with no time or zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return Date{}, ErrInvalidDate
	}

	y, errY := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	d, errD := strconv.Atoi(parts[2])
	if errY != nil || errM != nil || errD != nil {
		return Date{}, ErrInvalidDate
	}

	date := Date{Year: y, Month: time.Month(m), Day: d}
	if !date.valid() {
		return Date{}, ErrInvalidDate
	}
	return date, nil
}

// valid rejects dates that time.Date would normalize, like 2025-02-30.
func (d Date) valid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	t := d.midnight()
	return t.Year() == d.Year && t.Month() == d.Month && t.Day() == d.Day
}

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Weekday is the civil day of week of the date, Sunday=0.
func (d Date) Weekday() time.Weekday {
	return d.midnight().Weekday()
}

func (d Date) AddDays(n int) Date {
	t := d.midnight().AddDate(0, 0, n)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ValidClock reports whether hour and minute name a wall clock reading.
func ValidClock(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// ToUTC converts a local wall clock reading on date to a UTC instant.
// The reading is laid out field by field on a zero-offset calendar and the fixed offset is
// subtracted, so local midnight correctly lands on the previous UTC day for positive offsets.
func (z Zone) ToUTC(date Date, hour, minute int) time.Time {
	wall := time.Date(date.Year, date.Month, date.Day, hour, minute, 0, 0, time.UTC)
	return wall.Add(-z.offset)
}

// LocalTime is a 12-hour wall clock reading.
type LocalTime struct {
	Hour12   int
	Minute   int
	Meridiem string
}

// Label formats the reading as "h:mm AM/PM".
func (lt LocalTime) Label() string {
	return fmt.Sprintf("%d:%02d %s", lt.Hour12, lt.Minute, lt.Meridiem)
}

// Hour24 converts back to a 0-23 hour.
func (lt LocalTime) Hour24() int {
	h := lt.Hour12 % 12
	if lt.Meridiem == "PM" {
		h += 12
	}
	return h
}

// ToLocal is the inverse of ToUTC.
func (z Zone) ToLocal(instant time.Time) LocalTime {
	wall := instant.UTC().Add(z.offset)

	h := wall.Hour()
	meridiem := "AM"
	if h >= 12 {
		meridiem = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}

	return LocalTime{Hour12: h12, Minute: wall.Minute(), Meridiem: meridiem}
}

// LocalDate returns the local calendar date the instant falls on.
func (z Zone) LocalDate(instant time.Time) Date {
	wall := instant.UTC().Add(z.offset)
	return Date{Year: wall.Year(), Month: wall.Month(), Day: wall.Day()}
}

// LocalMinuteOfDay returns minutes since local midnight.
func (z Zone) LocalMinuteOfDay(instant time.Time) int {
	wall := instant.UTC().Add(z.offset)
	return wall.Hour()*60 + wall.Minute()
}

// DayBounds returns the UTC instants of local midnight at the start and end of date.
func (z Zone) DayBounds(date Date) (time.Time, time.Time) {
	start := z.ToUTC(date, 0, 0)
	return start, start.Add(24 * time.Hour)
}

// ParseClock parses an "HH:MM" 24-hour reading.
func ParseClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, ErrInvalidClock
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || !ValidClock(h, m) {
		return 0, 0, ErrInvalidClock
	}
	return h, m, nil
}

// ClockMinutes parses "HH:MM" into minutes since midnight.
func ClockMinutes(s string) (int, error) {
	h, m, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}
