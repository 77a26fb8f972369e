package appointment

import "time"

// Overlaps reports whether two one-hour appointments starting at candidateStart and existingStart
// share any instant. Intervals are half-open, so back-to-back appointments do not overlap.
func Overlaps(candidateStart, existingStart time.Time) bool {
	return candidateStart.Before(existingStart.Add(Duration)) &&
		existingStart.Before(candidateStart.Add(Duration))
}

// FindConflict returns the first existing appointment the candidate would collide with.
// Anything not known to be terminal blocks the slot.
func FindConflict(candidateStart time.Time, existing []Appointment) (*Appointment, bool) {
	for i := range existing {
		if existing[i].Status.IsTerminal() {
			continue
		}
		if Overlaps(candidateStart, existing[i].ScheduledAt) {
			return &existing[i], true
		}
	}
	return nil, false
}
