package timeconv

import (
	"testing"
	"time"
)

func TestToUTC_KnownInstant(t *testing.T) {
	d := Date{Year: 2025, Month: time.January, Day: 6}

	got := Platform.ToUTC(d, 16, 0)
	want := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want.Format(time.RFC3339), got.Format(time.RFC3339))
	}

	if label := Platform.ToLocal(got).Label(); label != "4:00 PM" {
		t.Fatalf("expected label 4:00 PM, got %q", label)
	}
}

func TestToUTC_MidnightRollsToPreviousDay(t *testing.T) {
	d := Date{Year: 2025, Month: time.March, Day: 1}

	got := Platform.ToUTC(d, 0, 30)
	want := time.Date(2025, 2, 28, 23, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want.Format(time.RFC3339), got.Format(time.RFC3339))
	}

	if ld := Platform.LocalDate(got); ld != d {
		t.Fatalf("expected local date %s, got %s", d, ld)
	}
}

func TestRoundTrip_AllClockReadings(t *testing.T) {
	dates := []Date{
		{Year: 2025, Month: time.January, Day: 1},
		{Year: 2024, Month: time.February, Day: 29},
		{Year: 2025, Month: time.December, Day: 31},
	}

	for _, d := range dates {
		for h := 0; h <= 23; h++ {
			for m := 0; m <= 59; m++ {
				lt := Platform.ToLocal(Platform.ToUTC(d, h, m))
				if lt.Hour24() != h || lt.Minute != m {
					t.Fatalf("%s %02d:%02d: round trip gave %s", d, h, m, lt.Label())
				}
			}
		}
	}
}

func TestToLocal_Labels(t *testing.T) {
	d := Date{Year: 2025, Month: time.June, Day: 2}

	tests := []struct {
		hour, minute int
		want         string
	}{
		{0, 0, "12:00 AM"},
		{0, 5, "12:05 AM"},
		{9, 0, "9:00 AM"},
		{11, 59, "11:59 AM"},
		{12, 0, "12:00 PM"},
		{13, 30, "1:30 PM"},
		{23, 0, "11:00 PM"},
	}

	for _, tt := range tests {
		got := Platform.ToLocal(Platform.ToUTC(d, tt.hour, tt.minute)).Label()
		if got != tt.want {
			t.Errorf("%02d:%02d: expected %q, got %q", tt.hour, tt.minute, tt.want, got)
		}
	}
}

func TestToUTC_IgnoresHostZone(t *testing.T) {
	saved := time.Local
	defer func() { time.Local = saved }()

	time.Local = time.FixedZone("far-away", -9*3600)

	got := Platform.ToUTC(Date{Year: 2025, Month: time.January, Day: 6}, 9, 0)
	want := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2025-01-06", want: Date{Year: 2025, Month: time.January, Day: 6}},
		{in: "2024-02-29", want: Date{Year: 2024, Month: time.February, Day: 29}},
		{in: "2025-02-29", wantErr: true},
		{in: "2025-13-01", wantErr: true},
		{in: "2025-1-6", wantErr: true},
		{in: "not-a-date", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestDate_Weekday(t *testing.T) {
	// 2025-01-05 was a Sunday
	d := Date{Year: 2025, Month: time.January, Day: 5}
	if d.Weekday() != time.Sunday {
		t.Fatalf("expected Sunday, got %s", d.Weekday())
	}
	if d.AddDays(1).Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %s", d.AddDays(1).Weekday())
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{in: "09:00", h: 9},
		{in: "17:30", h: 17, m: 30},
		{in: "00:00"},
		{in: "23:59", h: 23, m: 59},
		{in: "24:00", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}

	for _, tt := range tests {
		h, m, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil || h != tt.h || m != tt.m {
			t.Errorf("%q: expected %d:%d, got %d:%d (err %v)", tt.in, tt.h, tt.m, h, m, err)
		}
	}
}

func TestDayBounds(t *testing.T) {
	start, end := Platform.DayBounds(Date{Year: 2025, Month: time.January, Day: 6})
	if !start.Equal(time.Date(2025, 1, 5, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", start)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("unexpected span %s", end.Sub(start))
	}
}
