package appointment

import (
	"testing"
	"time"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		candidate time.Time
		want      bool
	}{
		{"same start", base, true},
		{"starts 30m later", base.Add(30 * time.Minute), true},
		{"starts 30m earlier", base.Add(-30 * time.Minute), true},
		{"starts 1ns before end", base.Add(Duration - time.Nanosecond), true},
		{"back to back after", base.Add(Duration), false},
		{"back to back before", base.Add(-Duration), false},
		{"far away", base.Add(5 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.candidate, base); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if got := Overlaps(base, tt.candidate); got != tt.want {
				t.Fatalf("overlap must be symmetric")
			}
		})
	}
}

func TestOverlaps_ComparesInstantsNotWallClocks(t *testing.T) {
	utc := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	sameInstantLocal := utc.In(time.FixedZone("plus-one", 3600))

	if !Overlaps(sameInstantLocal, utc) {
		t.Fatal("the same instant in another zone must conflict")
	}
}

func TestFindConflict_IgnoresOnlyTerminalStatuses(t *testing.T) {
	at := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	for _, s := range []AppointmentStatus{StatusCompleted, StatusCancelled, StatusRescheduled} {
		if _, ok := FindConflict(at, []Appointment{{ScheduledAt: at, Status: s}}); ok {
			t.Errorf("%s must not block the slot", s)
		}
	}

	for _, s := range []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress, "SOMETHING_NEW"} {
		if _, ok := FindConflict(at, []Appointment{{ScheduledAt: at, Status: s}}); !ok {
			t.Errorf("%s must block the slot", s)
		}
	}
}

func TestFindConflict_ReturnsCollidingAppointment(t *testing.T) {
	at := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	existing := []Appointment{
		{ScheduledAt: at.Add(-2 * time.Hour), Status: StatusScheduled},
		{ScheduledAt: at.Add(-Duration), Status: StatusScheduled},
		{ScheduledAt: at.Add(30 * time.Minute), Status: StatusConfirmed, MeetingID: "hit"},
	}

	got, ok := FindConflict(at, existing)
	if !ok || got.MeetingID != "hit" {
		t.Fatalf("expected conflict with the 08:30 appointment, got %+v", got)
	}
}
